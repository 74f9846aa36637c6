package gps

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPosition(t *testing.T) {
	p := &Position{}
	if got := p.Snapshot(); got != "" {
		t.Errorf("Snapshot() = %q, want empty", got)
	}
	p.Update("-41.28,174.77")
	if got := p.Snapshot(); got != "-41.28,174.77" {
		t.Errorf("Snapshot() = %q", got)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.Update("fix")
		}()
		go func() {
			defer wg.Done()
			p.Snapshot()
		}()
	}
	wg.Wait()
}

func TestPoller_Poll(t *testing.T) {
	pos := &Position{}
	pos.Update("old")
	p := &Poller{
		Locator: LocatorFunc(func(ctx context.Context) (string, error) {
			return "", errors.New("no satellites")
		}),
		Position: pos,
	}
	p.Poll(context.Background())
	if pos.Snapshot() != "old" {
		t.Errorf("failed poll must keep the previous fix, got %q", pos.Snapshot())
	}

	p.Locator = LocatorFunc(func(ctx context.Context) (string, error) {
		return "new", nil
	})
	p.Poll(context.Background())
	if pos.Snapshot() != "new" {
		t.Errorf("Snapshot() = %q, want new", pos.Snapshot())
	}
}

func TestPoller_Run(t *testing.T) {
	var calls atomic.Int32
	pos := &Position{}
	p := &Poller{
		Locator: LocatorFunc(func(ctx context.Context) (string, error) {
			calls.Add(1)
			return "fix", nil
		}),
		Position: pos,
		Interval: 5 * time.Millisecond,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if err := p.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v", err)
	}
	if calls.Load() < 2 {
		t.Errorf("Run() polled %d times, want at least 2", calls.Load())
	}
	if pos.Snapshot() != "fix" {
		t.Errorf("Snapshot() = %q", pos.Snapshot())
	}
}

func TestCommandLocator(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "gps.sh")
	content := "#!/bin/sh\necho '$GPGGA,123519,4807.038,N'\necho second\n"
	if err := os.WriteFile(script, []byte(content), 0o755); err != nil {
		t.Fatal(err)
	}
	fix, err := CommandLocator{Path: script}.Locate(context.Background())
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if fix != "$GPGGA,123519,4807.038,N" {
		t.Errorf("Locate() = %q", fix)
	}

	silent := filepath.Join(dir, "silent.sh")
	if err := os.WriteFile(silent, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := (CommandLocator{Path: silent}).Locate(context.Background()); !errors.Is(err, ErrNoFix) {
		t.Errorf("Locate() error = %v, want ErrNoFix", err)
	}
}
