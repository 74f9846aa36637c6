// Package telemetry builds the BuoyData snapshots sent by the buoy.
package telemetry

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/buoylink/buoylink/pkg/buoy1"
	"github.com/buoylink/buoylink/pkg/buoy1/model"
)

// VoltageReader reads the battery voltage.
type VoltageReader interface {
	Voltage() (float32, error)
}

// UptimeReader reads the OS uptime in seconds.
type UptimeReader interface {
	Uptime() int64
}

// Factory creates BuoyData snapshots for a given buoy.
type Factory struct {
	BuoyID  string
	Voltage VoltageReader
	Uptime  UptimeReader
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// New returns a snapshot carrying payload. If startTime is empty, the current
// time is used. A failure to read the voltage is logged and reported as 0V.
// GPS and DroppedBlocks are left for the caller to fill in.
func (f *Factory) New(payload []byte, startTime string) model.BuoyData {
	if startTime == "" {
		startTime = f.Timestamp()
	}
	var voltage float32
	if f.Voltage != nil {
		v, err := f.Voltage.Voltage()
		if err != nil {
			log.Error("Failed to read battery voltage", "error", err)
		} else {
			voltage = v
		}
	}
	var uptime int64
	if f.Uptime != nil {
		uptime = f.Uptime.Uptime()
	}
	if payload == nil {
		payload = []byte{}
	}
	return model.BuoyData{
		ID:         f.BuoyID,
		Hydrophone: payload,
		Voltage:    voltage,
		StartTime:  startTime,
		Uptime:     uptime,
	}
}

// Timestamp returns the current time formatted as a Start-Time value.
func (f *Factory) Timestamp() string {
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	return buoy1.FormatTime(now())
}
