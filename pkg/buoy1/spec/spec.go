// Package spec contains constants for the buoy1 upload protocol.
package spec

import "time"

const (
	// EndBoundary is appended after the payload of every upload. It is the
	// authoritative end-of-message marker; the length header is informational.
	EndBoundary = "------END!!!"

	// HeaderEnd terminates the request line and header block.
	HeaderEnd = "\r\n\r\n"

	// PathPrefix is the only accepted request path prefix. It is followed by
	// the buoy identifier.
	PathPrefix = "/id/"

	// MaxBuoyIDLength is the maximum length of a buoy identifier.
	MaxBuoyIDLength = 40

	// ResponseOK means "normal operation, no command".
	ResponseOK = "HTTP/1.1 200 OK\r\n\r\n"

	// ResponseNotImplemented is sent for any method other than POST.
	ResponseNotImplemented = "HTTP/1.1 501 Not Implemented\r\n\r\n"

	// DefaultPort is the server's default UDP port.
	DefaultPort = 4433

	// MaxStreamSize is the maximum number of bytes read from a single stream.
	// Anything larger is rejected.
	MaxStreamSize = 50 * 1024 * 1024

	// MinDecodeSize is the raw payload size above which the server derives a
	// waveform and a spectrogram from the upload.
	MinDecodeSize = 2 * 1024

	// MaxHeaders is the maximum number of headers accepted in a request.
	MaxHeaders = 1024

	// TimeFormat is the layout of the Start-Time header and of the timestamp
	// part of persisted file names. Always UTC.
	TimeFormat = "20060102T150405.000Z"

	// EpochYearPlaceholder prefixes Start-Time values recorded before the
	// buoy's clock was synchronized.
	EpochYearPlaceholder = "1970"

	// ConnectTimeout bounds the QUIC handshake.
	ConnectTimeout = 30 * time.Second

	// SendTimeout bounds writing the whole upload.
	SendTimeout = 180 * time.Second

	// ResponseTimeout bounds reading the server's response.
	ResponseTimeout = 25 * time.Second
)

// Header names used by the upload message.
const (
	HeaderHost           = "Host"
	HeaderContentType    = "Content-Type"
	HeaderBatteryVoltage = "Battery-Voltage"
	HeaderDroppedBlocks  = "Dropped-Blocks"
	HeaderGPS            = "GPS"
	HeaderStartTime      = "Start-Time"
	HeaderUptime         = "Uptime"
	HeaderVersion        = "sw-version"
	HeaderLength         = "length"
)

// NextProtos are the ALPN protocols negotiated by client and server.
var NextProtos = []string{"hq-20", "hq-22"}

// FrameMarker is the byte sequence at the start of every sensor data frame in
// the raw serial stream.
var FrameMarker = []byte{'S', 'T', 0x00, 0x01}
