// Package delivery decides how BuoyData reaches the ingestion server.
package delivery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/buoylink/buoylink/internal/metrics"
	"github.com/buoylink/buoylink/pkg/buoy1/model"
	"github.com/buoylink/buoylink/pkg/client"
)

// Policy delivers BuoyData. Deliver must not block the caller for the
// duration of a network round trip.
type Policy interface {
	Deliver(ctx context.Context, data model.BuoyData)
}

// Uploader performs one upload attempt.
type Uploader interface {
	Upload(ctx context.Context, data model.BuoyData) (model.Command, error)
}

// Sender accepts actions for the controller.
type Sender interface {
	Send(a model.Action)
}

// FireAndForget starts one independent upload attempt per Deliver call.
// Failed attempts are logged and counted but never retried.
type FireAndForget struct {
	Uploader Uploader
	// Queue receives the command decoded from each server response. May be nil.
	Queue Sender

	dropped atomic.Int64
	wg      sync.WaitGroup
}

// Deliver implements Policy.
func (f *FireAndForget) Deliver(ctx context.Context, data model.BuoyData) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.attempt(ctx, data)
	}()
}

func (f *FireAndForget) attempt(ctx context.Context, data model.BuoyData) {
	cmd, err := f.Uploader.Upload(ctx, data)
	if err != nil {
		phase := "unknown"
		var pe *client.PhaseError
		if errors.As(err, &pe) {
			phase = string(pe.Phase)
		}
		result := "error"
		if pe != nil && pe.Timeout() {
			result = "timeout"
		}
		f.dropped.Add(1)
		metrics.UploadAttempts.WithLabelValues(result, phase).Inc()
		log.Warn("Upload dropped", "start_time", data.StartTime,
			"bytes", len(data.Hydrophone), "phase", phase, "error", err)
		return
	}
	metrics.UploadAttempts.WithLabelValues("ok", "").Inc()
	if f.Queue != nil {
		f.Queue.Send(model.ServerCommand(cmd))
	}
}

// Dropped returns the number of failed attempts so far.
func (f *FireAndForget) Dropped() int64 {
	return f.dropped.Load()
}

// Wait blocks until all the attempts started so far have finished.
func (f *FireAndForget) Wait() {
	f.wg.Wait()
}

var _ Policy = &FireAndForget{}
