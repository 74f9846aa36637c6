package model

// BuoyData is a snapshot of one recording window, or of a heartbeat when
// Hydrophone is empty. It is built once and handed over to a single upload
// attempt.
type BuoyData struct {
	// ID is the buoy identifier.
	ID string
	// Hydrophone is the framed sensor payload.
	Hydrophone []byte
	// Voltage is the battery voltage at the time the snapshot was taken.
	Voltage float32
	// DroppedBlocks is the number of sensor blocks dropped in this window.
	DroppedBlocks int
	// GPS is the last known position fix. It may be empty.
	GPS string
	// StartTime is the start of the recording window (spec.TimeFormat).
	StartTime string
	// Uptime is the buoy's OS uptime in seconds.
	Uptime int64
}

// IsHeartbeat reports whether d carries no hydrophone data.
func (d *BuoyData) IsHeartbeat() bool {
	return len(d.Hydrophone) == 0
}
