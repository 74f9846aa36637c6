package power

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeVoltage struct {
	v   float32
	err error
}

func (f fakeVoltage) Voltage() (float32, error) { return f.v, f.err }

type fakeAction struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (f *fakeAction) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sleeps = append(f.sleeps, d)
	return nil
}

func (f *fakeAction) calls() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration{}, f.sleeps...)
}

func newSupervisor(v fakeVoltage, a *fakeAction) *Supervisor {
	return &Supervisor{
		Voltage:         v,
		Action:          a,
		Interval:        5 * time.Millisecond,
		LowThreshold:    11,
		MediumThreshold: 12,
		LowDelay:        time.Millisecond,
		LowSleep:        3 * time.Hour,
		MediumSleep:     30 * time.Minute,
	}
}

func TestSupervisor_Tick(t *testing.T) {
	tests := []struct {
		name      string
		voltage   fakeVoltage
		wantTier  Tier
		wantSleep []time.Duration
	}{
		{"low", fakeVoltage{v: 10.5}, TierLow, []time.Duration{3 * time.Hour}},
		{"medium", fakeVoltage{v: 11.5}, TierMedium, []time.Duration{30 * time.Minute}},
		{"at-low-threshold", fakeVoltage{v: 11}, TierMedium, []time.Duration{30 * time.Minute}},
		{"at-medium-threshold", fakeVoltage{v: 12}, TierNormal, nil},
		{"normal", fakeVoltage{v: 13.2}, TierNormal, nil},
		{"read-error", fakeVoltage{err: errors.New("adc")}, TierNormal, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAction{}
			s := newSupervisor(tt.voltage, a)
			if got := s.Tick(context.Background()); got != tt.wantTier {
				t.Errorf("Tick() = %v, want %v", got, tt.wantTier)
			}
			got := a.calls()
			if len(got) != len(tt.wantSleep) {
				t.Fatalf("Tick() invoked action %d times, want %d", len(got), len(tt.wantSleep))
			}
			for i := range got {
				if got[i] != tt.wantSleep[i] {
					t.Errorf("sleep[%d] = %v, want %v", i, got[i], tt.wantSleep[i])
				}
			}
		})
	}
}

func TestSupervisor_Run(t *testing.T) {
	a := &fakeAction{}
	s := newSupervisor(fakeVoltage{v: 11.5}, a)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() unexpected error = %v", err)
	}
	if len(a.calls()) < 2 {
		t.Errorf("Run() invoked action %d times, want at least 2", len(a.calls()))
	}
}

func TestSupervisor_Run_InvalidInterval(t *testing.T) {
	s := newSupervisor(fakeVoltage{v: 11.5}, &fakeAction{})
	s.Interval = -time.Second
	if err := s.Run(context.Background()); err == nil {
		t.Errorf("Run() expected error for a negative interval")
	}
}

func TestScriptAction_Sleep(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	script := filepath.Join(dir, "ulpm.sh")
	content := "#!/bin/sh\necho \"$1\" > " + out + "\n"
	if err := os.WriteFile(script, []byte(content), 0o755); err != nil {
		t.Fatal(err)
	}

	err := ScriptAction{Path: script}.Sleep(context.Background(), 30*time.Minute)
	if err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(b)) != "1800" {
		t.Errorf("script got argument %q, want 1800", b)
	}

	if err := (ScriptAction{Path: filepath.Join(dir, "missing")}).Sleep(context.Background(), time.Second); err == nil {
		t.Errorf("Sleep() with a missing script should fail")
	}
}
