package acquisition

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// DefaultReadTimeout is the per-read timeout of the serial port.
const DefaultReadTimeout = 200 * time.Millisecond

// OpenSerial opens the hydrophone's serial port in 8N1 mode without flow
// control. Reads on the returned port return (0, nil) after readTimeout if
// no data is available.
func OpenSerial(path string, baud int, readTimeout time.Duration) (serial.Port, error) {
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot open serial port %s: %w", path, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("cannot set read timeout on %s: %w", path, err)
	}
	return port, nil
}
