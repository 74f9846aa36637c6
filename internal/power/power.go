// Package power implements the buoy's power management loop.
//
// The supervisor periodically reads the battery voltage and, when it is low,
// asks the device to enter an ultra low power mode for a while. It shares no
// state with the rest of the buoy software.
package power

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/memoryless"

	"github.com/buoylink/buoylink/internal/metrics"
	"github.com/buoylink/buoylink/internal/telemetry"
)

// Tier is a battery voltage tier.
type Tier int

const (
	// TierNormal requires no action.
	TierNormal Tier = iota
	// TierMedium triggers a medium-length low power period.
	TierMedium
	// TierLow triggers a long low power period.
	TierLow
)

func (t Tier) String() string {
	switch t {
	case TierNormal:
		return "normal"
	case TierMedium:
		return "medium"
	case TierLow:
		return "low"
	}
	return "unknown"
}

// LowPowerAction puts the device to sleep for the given duration.
type LowPowerAction interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Supervisor is the power management loop.
type Supervisor struct {
	Voltage telemetry.VoltageReader
	Action  LowPowerAction

	// Interval between two voltage checks.
	Interval time.Duration
	// LowThreshold must be lower than MediumThreshold.
	LowThreshold    float32
	MediumThreshold float32
	// LowDelay is waited before acting on a low reading.
	LowDelay    time.Duration
	LowSleep    time.Duration
	MediumSleep time.Duration
}

// Classify returns the tier of the voltage v.
func (s *Supervisor) Classify(v float32) Tier {
	switch {
	case v < s.LowThreshold:
		return TierLow
	case v < s.MediumThreshold:
		return TierMedium
	}
	return TierNormal
}

// Tick performs one voltage check and returns the tier it acted upon. Errors
// are logged and abort the tick only.
func (s *Supervisor) Tick(ctx context.Context) Tier {
	v, err := s.Voltage.Voltage()
	if err != nil {
		log.Error("Power management: cannot read voltage", "error", err)
		return TierNormal
	}
	tier := s.Classify(v)
	var sleep time.Duration
	switch tier {
	case TierLow:
		select {
		case <-time.After(s.LowDelay):
		case <-ctx.Done():
			return tier
		}
		sleep = s.LowSleep
	case TierMedium:
		sleep = s.MediumSleep
	default:
		log.Debug("Power management: battery ok", "voltage", v)
		return tier
	}

	log.Warn("Power management: entering low power mode", "voltage", v,
		"tier", tier, "sleep", sleep)
	metrics.PowerActions.WithLabelValues(tier.String()).Inc()
	if err := s.Action.Sleep(ctx, sleep); err != nil {
		log.Error("Power management: low power action failed", "error", err)
	}
	return tier
}

// Run calls Tick every Interval until ctx is done. It returns an error only
// if Interval is not a valid ticker period.
func (s *Supervisor) Run(ctx context.Context) error {
	t, err := memoryless.NewTicker(ctx, memoryless.Config{
		Min:      s.Interval,
		Expected: s.Interval,
		Max:      s.Interval,
	})
	if err != nil {
		return err
	}
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.Tick(ctx)
		}
	}
}
