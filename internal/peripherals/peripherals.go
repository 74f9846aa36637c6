// Package peripherals abstracts the hardware that only some buoy profiles
// have: a GPS receiver and a navigation light.
package peripherals

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/buoylink/buoylink/internal/gps"
)

// Peripherals starts the background tasks driving optional hardware.
type Peripherals interface {
	// Start starts the tasks and returns immediately. Tasks stop when ctx is
	// done. Position receives the GPS fixes, if any.
	Start(ctx context.Context, position *gps.Position)
}

// New returns the Peripherals for the named profile ("full" or "none").
func New(profile string, full *Full) (Peripherals, error) {
	switch profile {
	case "full":
		return full, nil
	case "none", "":
		return None{}, nil
	}
	return nil, fmt.Errorf("unknown hardware profile %q", profile)
}

// None is a profile without optional hardware.
type None struct{}

// Start implements Peripherals.
func (None) Start(context.Context, *gps.Position) {}

// Full drives a GPS receiver and a navigation light.
type Full struct {
	GPS         gps.Locator
	GPSInterval time.Duration
	Light       *Light
}

// Start implements Peripherals.
func (f *Full) Start(ctx context.Context, position *gps.Position) {
	if f.GPS != nil {
		p := &gps.Poller{
			Locator:  f.GPS,
			Position: position,
			Interval: f.GPSInterval,
		}
		go func() {
			if err := p.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("GPS poller stopped", "error", err)
			}
		}()
	}
	if f.Light != nil {
		go f.Light.Run(ctx)
	}
}

// Light blinks a navigation light through a GPIO value file: NumFlashes
// short flashes every Interval.
type Light struct {
	// Path of the GPIO value file.
	Path       string
	Interval   time.Duration
	NumFlashes int
	On         time.Duration
	Off        time.Duration
	// IsDaylight reports whether the light should stay off. Defaults to
	// Daylight.
	IsDaylight func(time.Time) bool
}

// Daylight reports whether it is daytime at the deployment site in New
// Zealand, i.e. between 20:00 and 04:59 UTC. The light stays off then.
func Daylight(t time.Time) bool {
	h := t.UTC().Hour()
	return h > 19 || h < 5
}

// Run blinks the light until ctx is done.
func (l *Light) Run(ctx context.Context) {
	isDaylight := l.IsDaylight
	if isDaylight == nil {
		isDaylight = Daylight
	}
	for {
		if !sleep(ctx, l.Interval) {
			return
		}
		lit := !isDaylight(time.Now())
		for i := 0; i < l.NumFlashes; i++ {
			if lit {
				l.set("1")
			}
			if !sleep(ctx, l.On) {
				return
			}
			l.set("0")
			if !sleep(ctx, l.Off) {
				return
			}
		}
	}
}

// set writes v to the GPIO file. Failures are ignored: a missing light must
// not affect data collection.
func (l *Light) set(v string) {
	if err := os.WriteFile(l.Path, []byte(v), 0o644); err != nil {
		log.Debug("Cannot drive navigation light", "path", l.Path, "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
