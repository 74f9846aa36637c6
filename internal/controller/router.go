// Package controller routes the actions produced on the buoy: data ready for
// transmission and commands received from the server.
package controller

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/buoylink/buoylink/internal/actionq"
	"github.com/buoylink/buoylink/internal/delivery"
	"github.com/buoylink/buoylink/internal/gps"
	"github.com/buoylink/buoylink/internal/metrics"
	"github.com/buoylink/buoylink/internal/telemetry"
	"github.com/buoylink/buoylink/pkg/buoy1/model"
)

// Receiver is the consuming side of the action queue.
type Receiver interface {
	Receive(ctx context.Context, timeout time.Duration) (model.Action, error)
}

// CommandHandler executes a server directive.
type CommandHandler interface {
	Handle(ctx context.Context, cmd model.Command) error
}

// Commands is the default CommandHandler. Normal is a no-op; unknown kinds
// are logged and ignored.
type Commands struct{}

// Handle implements CommandHandler.
func (Commands) Handle(_ context.Context, cmd model.Command) error {
	switch cmd.Kind {
	case model.CommandNormal:
		return nil
	default:
		log.Warn("Ignoring unknown server command", "kind", cmd.Kind)
		return nil
	}
}

// Router is the single consumer of the action queue.
type Router struct {
	Queue    Receiver
	Position *gps.Position
	Policy   delivery.Policy
	Factory  *telemetry.Factory
	Handler  CommandHandler

	// SendInterval is the time waited before each drain of the queue.
	SendInterval time.Duration
	// NoDataWait is how long a drain waits for the next action before
	// sending a heartbeat.
	NoDataWait time.Duration
}

// Run alternates between waiting SendInterval and draining the queue until
// ctx is canceled.
func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.SendInterval):
		}
		r.drain(ctx)
	}
}

// drain routes actions until the queue stays empty for NoDataWait, at which
// point it sends one heartbeat and returns.
func (r *Router) drain(ctx context.Context) {
	for {
		a, err := r.Queue.Receive(ctx, r.NoDataWait)
		switch {
		case errors.Is(err, actionq.ErrTimeout):
			log.Info("No hydrophone data, sending heartbeat")
			metrics.Heartbeats.Inc()
			r.deliver(ctx, r.Factory.New(nil, ""))
			return
		case ctx.Err() != nil:
			return
		case err != nil:
			log.Error("Failed to receive action", "error", err)
			continue
		}
		r.route(ctx, a)
	}
}

func (r *Router) route(ctx context.Context, a model.Action) {
	switch a.Kind {
	case model.ActionDataReady:
		r.deliver(ctx, a.Data)
	case model.ActionServerCommand:
		if r.Handler == nil {
			return
		}
		if err := r.Handler.Handle(ctx, a.Command); err != nil {
			log.Error("Server command failed", "kind", a.Command.Kind, "error", err)
		}
	default:
		log.Warn("Unknown action", "kind", a.Kind)
	}
}

func (r *Router) deliver(ctx context.Context, data model.BuoyData) {
	if r.Position != nil {
		data.GPS = r.Position.Snapshot()
	}
	log.Debug("Delivering", "start_time", data.StartTime, "bytes", len(data.Hydrophone),
		"voltage", data.Voltage)
	r.Policy.Deliver(ctx, data)
}
