// Package gps holds the buoy's last known position and the task that keeps it
// up to date.
package gps

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/memoryless"
)

// ErrNoFix is returned by a Locator that produced no output.
var ErrNoFix = errors.New("no GPS fix")

// Position is the last known GPS fix. Readers get a copy, never a reference
// to the shared value.
type Position struct {
	mu  sync.Mutex
	fix string
}

// Snapshot returns the last known fix, or the empty string.
func (p *Position) Snapshot() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fix
}

// Update replaces the last known fix.
func (p *Position) Update(fix string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fix = fix
}

// Locator acquires a new GPS fix.
type Locator interface {
	Locate(ctx context.Context) (string, error)
}

// LocatorFunc adapts a function to the Locator interface.
type LocatorFunc func(ctx context.Context) (string, error)

// Locate implements Locator.
func (f LocatorFunc) Locate(ctx context.Context) (string, error) {
	return f(ctx)
}

// CommandLocator runs an external command and uses the first line it prints
// as the fix.
type CommandLocator struct {
	Path string
}

// Locate implements Locator.
func (c CommandLocator) Locate(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, c.Path)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("cannot start %s: %w", c.Path, err)
	}
	sc := bufio.NewScanner(stdout)
	var line string
	found := sc.Scan()
	if found {
		line = sc.Text()
	}
	// Drain the rest so the command does not block on a full pipe.
	for sc.Scan() {
	}
	if err := cmd.Wait(); err != nil {
		return "", fmt.Errorf("%s: %w", c.Path, err)
	}
	if !found {
		return "", ErrNoFix
	}
	return line, nil
}

// Poller periodically refreshes a Position using a Locator.
type Poller struct {
	Locator  Locator
	Position *Position
	Interval time.Duration
}

// Poll acquires one fix and stores it. Errors leave the position unchanged.
func (p *Poller) Poll(ctx context.Context) {
	fix, err := p.Locator.Locate(ctx)
	if err != nil {
		log.Error("GPS acquisition failed", "error", err)
		return
	}
	log.Debug("GPS fix acquired", "fix", fix)
	p.Position.Update(fix)
}

// Run polls every Interval until ctx is done. The first poll happens after
// one Interval.
func (p *Poller) Run(ctx context.Context) error {
	t, err := memoryless.NewTicker(ctx, memoryless.Config{
		Min:      p.Interval,
		Expected: p.Interval,
		Max:      p.Interval,
	})
	if err != nil {
		return err
	}
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.Poll(ctx)
		}
	}
}
