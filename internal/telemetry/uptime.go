package telemetry

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// ProcUptime reads the OS uptime from a /proc/uptime style file.
type ProcUptime struct {
	Path string
}

// Uptime implements UptimeReader. It returns 0 on error.
func (p ProcUptime) Uptime() int64 {
	path := p.Path
	if path == "" {
		path = "/proc/uptime"
	}
	b, err := os.ReadFile(path)
	if err != nil {
		log.Error("Failed to read uptime", "path", path, "error", err)
		return 0
	}
	fields := strings.Fields(string(b))
	if len(fields) == 0 {
		return 0
	}
	secs, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		log.Error("Failed to parse uptime", "path", path, "error", err)
		return 0
	}
	return int64(secs)
}
