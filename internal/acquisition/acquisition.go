// Package acquisition reads the hydrophone's serial stream and turns it into
// recording windows for the controller.
package acquisition

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/buoylink/buoylink/internal/framing"
	"github.com/buoylink/buoylink/internal/metrics"
	"github.com/buoylink/buoylink/internal/telemetry"
	"github.com/buoylink/buoylink/pkg/buoy1/model"
	"github.com/buoylink/buoylink/pkg/buoy1/spec"
)

// DefaultReadBufferSize is the size of a single serial read.
const DefaultReadBufferSize = 16384

// Sink receives the actions produced by the loop.
type Sink interface {
	Send(model.Action)
}

// Loop accumulates bytes from Source and emits one DataReady action per
// recording window.
//
// A read that returns no data and no error, or an error for which
// os.IsTimeout is true, is a timeout and is not fatal.
type Loop struct {
	Source         io.Reader
	Sink           Sink
	Factory        *telemetry.Factory
	RecordDuration time.Duration
	// Marker defaults to spec.FrameMarker.
	Marker []byte
	// ReadBufferSize defaults to DefaultReadBufferSize.
	ReadBufferSize int
}

// window is the mutable accumulation buffer of the current recording window.
type window struct {
	buf       []byte
	started   time.Time
	startTime string
}

// Run reads from Source until a read fails, in which case the error is
// returned, or ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	marker := l.Marker
	if marker == nil {
		marker = spec.FrameMarker
	}
	size := l.ReadBufferSize
	if size <= 0 {
		size = DefaultReadBufferSize
	}
	readBuf := make([]byte, size)
	w := &window{
		started:   time.Now(),
		startTime: l.Factory.Timestamp(),
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := l.Source.Read(readBuf)
		if n > 0 {
			w.buf = append(w.buf, readBuf[:n]...)
		}
		if err != nil && !isTimeout(err) {
			log.Error("Serial read failed", "error", err)
			return err
		}

		if time.Since(w.started) > l.RecordDuration && len(w.buf) > 0 {
			l.emit(w, marker)
		}
	}
}

// emit splits the window's buffer, sends the framed data and starts a new
// window carrying the remainder.
func (l *Loop) emit(w *window, marker []byte) {
	res := framing.Clean(w.buf, marker)
	if res.Anomaly != framing.AnomalyNone {
		log.Warn("Emitting unframed hydrophone data", "anomaly", res.Anomaly,
			"bytes", len(res.Frame))
		metrics.FrameAnomalies.WithLabelValues(res.Anomaly.String()).Inc()
	}
	log.Info("Collected hydrophone data", "start", w.startTime, "bytes", len(res.Frame))
	metrics.WindowBytes.Observe(float64(len(res.Frame)))

	l.Sink.Send(model.DataReady(l.Factory.New(res.Frame, w.startTime)))

	w.buf = res.Remainder
	w.started = time.Now()
	w.startTime = l.Factory.Timestamp()
}

func isTimeout(err error) bool {
	return os.IsTimeout(err) || errors.Is(err, os.ErrDeadlineExceeded)
}
