package power

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
)

// ScriptAction runs an external script taking the sleep time in seconds as
// its only argument.
type ScriptAction struct {
	Path string
}

// Sleep implements LowPowerAction.
func (s ScriptAction) Sleep(ctx context.Context, d time.Duration) error {
	secs := strconv.Itoa(int(d / time.Second))
	out, err := exec.CommandContext(ctx, s.Path, secs).CombinedOutput()
	log.Info("Low power script done", "path", s.Path, "seconds", secs,
		"output", string(out))
	if err != nil {
		return fmt.Errorf("%s %s: %w", s.Path, secs, err)
	}
	return nil
}
