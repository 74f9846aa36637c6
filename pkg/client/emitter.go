package client

import (
	"time"

	"github.com/charmbracelet/log"
)

// Emitter is an interface for reporting upload progress.
type Emitter interface {
	// OnConnect is called when the QUIC connection is established.
	OnConnect(server string)
	// OnUploaded is called when the server's response has been received.
	OnUploaded(server string, bytes int, elapsed time.Duration)
	// OnError is called when an upload attempt fails.
	OnError(server string, err error)
}

// LogEmitter reports uploads through the default logger.
type LogEmitter struct{}

// OnConnect implements Emitter.
func (LogEmitter) OnConnect(server string) {
	log.Debug("Connected", "server", server)
}

// OnUploaded logs the payload size and the average rate.
func (LogEmitter) OnUploaded(server string, bytes int, elapsed time.Duration) {
	kb := float64(bytes) / 1024
	rate := 0.0
	if s := elapsed.Seconds(); s > 0 {
		rate = kb / s
	}
	log.Info("Uploaded", "server", server, "kB", roundTo(kb, 1), "kB/s", roundTo(rate, 2))
}

// OnError implements Emitter.
func (LogEmitter) OnError(server string, err error) {
	log.Error("Upload failed", "server", server, "error", err)
}

func roundTo(v float64, digits int) float64 {
	p := 1.0
	for i := 0; i < digits; i++ {
		p *= 10
	}
	return float64(int64(v*p+0.5)) / p
}

// Checks that LogEmitter implements Emitter.
var _ Emitter = LogEmitter{}
