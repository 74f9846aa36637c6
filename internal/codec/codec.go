// Package codec derives waveforms and spectrograms from raw hydrophone
// payloads by running external tools.
package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// Placeholders replaced in a Command's arguments.
const (
	InputPlaceholder  = "{in}"
	OutputPlaceholder = "{out}"
)

// ErrEmptyCommand is returned by Parse for a blank command line.
var ErrEmptyCommand = errors.New("empty command")

// Decoder converts a raw payload file into a waveform file and returns the
// number of decode errors it encountered.
type Decoder interface {
	Decode(ctx context.Context, in, out string) (int, error)
}

// Renderer draws a spectrogram of a waveform file.
type Renderer interface {
	Render(ctx context.Context, in, out string) error
}

// Command is an external tool invocation. Arguments equal to or containing
// {in} and {out} are expanded with the input and output paths.
type Command struct {
	Name string
	Args []string
}

// Parse splits a whitespace-separated command line.
func Parse(line string) (*Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ErrEmptyCommand
	}
	return &Command{Name: fields[0], Args: fields[1:]}, nil
}

func (c *Command) run(ctx context.Context, in, out string) ([]byte, error) {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		a = strings.ReplaceAll(a, InputPlaceholder, in)
		args[i] = strings.ReplaceAll(a, OutputPlaceholder, out)
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", c.Name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Decode implements Decoder. The error count is the integer on the last
// non-empty line of the tool's output, or 0 if there is none.
func (c *Command) Decode(ctx context.Context, in, out string) (int, error) {
	stdout, err := c.run(ctx, in, out)
	if err != nil {
		return 0, err
	}
	return parseErrorCount(stdout), nil
}

// Render implements Renderer.
func (c *Command) Render(ctx context.Context, in, out string) error {
	_, err := c.run(ctx, in, out)
	return err
}

func parseErrorCount(stdout []byte) int {
	lines := strings.Split(strings.TrimSpace(string(stdout)), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return 0
	}
	n, err := strconv.Atoi(last)
	if err != nil {
		log.Debug("Decoder output has no error count", "output", last)
		return 0
	}
	return n
}

var (
	_ Decoder  = &Command{}
	_ Renderer = &Command{}
)
