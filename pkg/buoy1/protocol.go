// Package buoy1 implements the buoy1 upload protocol: a single HTTP/1.1-like
// POST request carried over one QUIC stream, terminated by a literal boundary
// marker, and answered with a bare status line.
package buoy1

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/buoylink/buoylink/pkg/buoy1/model"
	"github.com/buoylink/buoylink/pkg/buoy1/spec"
)

var (
	// ErrIncompleteRequest is returned when the header block is not terminated.
	ErrIncompleteRequest = errors.New("incomplete request")
	// ErrInvalidRequest is returned for a malformed request line or header.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTooManyHeaders is returned when a request exceeds spec.MaxHeaders.
	ErrTooManyHeaders = errors.New("too many headers")
	// ErrInvalidPath is returned when the path does not match /id/<buoy id>.
	ErrInvalidPath = errors.New("invalid path")
	// ErrMissingBoundary is returned when the body does not end with
	// spec.EndBoundary.
	ErrMissingBoundary = errors.New("missing end boundary")
	// ErrUnexpectedResponse is returned when the server response is not one
	// of the known responses.
	ErrUnexpectedResponse = errors.New("unexpected server response")
)

var (
	pathRegexp      = regexp.MustCompile(`^/id/[0-9a-fA-F\-]{1,40}$`)
	startTimeRegexp = regexp.MustCompile(`^[0-9A-Za-z.:_\-]{4,64}$`)
)

// Request is a parsed upload request.
type Request struct {
	Method  string
	Path    string
	Proto   string
	Headers []model.Header
	// Body is everything after the header block, boundary included.
	Body []byte
}

// BuildUpload returns the complete wire message for data: request line,
// headers, payload and end boundary.
func BuildUpload(data model.BuoyData, version string) []byte {
	var b bytes.Buffer
	b.Grow(len(data.Hydrophone) + 512)
	fmt.Fprintf(&b, "POST %s%s HTTP/1.1\r\n", spec.PathPrefix, data.ID)
	writeHeader(&b, spec.HeaderHost, spec.PathPrefix+data.ID)
	writeHeader(&b, spec.HeaderContentType, "multipart/form-data")
	writeHeader(&b, spec.HeaderBatteryVoltage, FormatVoltage(data.Voltage))
	writeHeader(&b, spec.HeaderDroppedBlocks, strconv.Itoa(data.DroppedBlocks))
	writeHeader(&b, spec.HeaderGPS, data.GPS)
	writeHeader(&b, spec.HeaderStartTime, data.StartTime)
	writeHeader(&b, spec.HeaderUptime, strconv.FormatInt(data.Uptime, 10))
	writeHeader(&b, spec.HeaderVersion, version)
	fmt.Fprintf(&b, "%s: %d%s", spec.HeaderLength, len(data.Hydrophone), spec.HeaderEnd)
	b.Write(data.Hydrophone)
	b.WriteString(spec.EndBoundary)
	return b.Bytes()
}

func writeHeader(b *bytes.Buffer, name, value string) {
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\r\n")
}

// FormatVoltage formats v using the shortest representation that round-trips
// as a float32 (e.g. "12.5", "1").
func FormatVoltage(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}

// Method returns the first space-delimited token of buf, without parsing
// anything else.
func Method(buf []byte) string {
	i := bytes.IndexByte(buf, ' ')
	if i < 0 {
		return string(buf)
	}
	return string(buf[:i])
}

// ParseRequest parses the request line and headers in buf. The remaining
// bytes are returned as the request Body.
func ParseRequest(buf []byte) (*Request, error) {
	end := bytes.Index(buf, []byte(spec.HeaderEnd))
	if end < 0 {
		return nil, ErrIncompleteRequest
	}
	lines := strings.Split(string(buf[:end]), "\r\n")

	parts := strings.Split(lines[0], " ")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" ||
		!strings.HasPrefix(parts[2], "HTTP/") {
		return nil, fmt.Errorf("%w: bad request line %q", ErrInvalidRequest, lines[0])
	}
	if len(lines)-1 > spec.MaxHeaders {
		return nil, ErrTooManyHeaders
	}

	req := &Request{
		Method:  parts[0],
		Path:    parts[1],
		Proto:   parts[2],
		Headers: make([]model.Header, 0, len(lines)-1),
		Body:    buf[end+len(spec.HeaderEnd):],
	}
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			return nil, fmt.Errorf("%w: bad header %q", ErrInvalidRequest, line)
		}
		req.Headers = append(req.Headers, model.Header{
			Name:  name,
			Value: strings.Trim(value, " \t"),
		})
	}
	return req, nil
}

// Header returns the value of the first header matching name
// (case-insensitive), or the empty string.
func (r *Request) Header(name string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// StartTime returns the recording start time to use when naming persisted
// files. If the Start-Time header is missing, unusable as a file name, or
// was recorded before the buoy's clock was synchronized, the current time is
// used instead.
func (r *Request) StartTime(now time.Time) string {
	v := r.Header(spec.HeaderStartTime)
	if !startTimeRegexp.MatchString(v) || strings.HasPrefix(v, spec.EpochYearPlaceholder) {
		return FormatTime(now)
	}
	return v
}

// FormatTime formats t according to spec.TimeFormat, in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(spec.TimeFormat)
}

// BuoyIDFromPath extracts the buoy identifier from a /id/<id> path.
func BuoyIDFromPath(path string) (string, error) {
	if !pathRegexp.MatchString(path) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return path[len(spec.PathPrefix):], nil
}

// StripBoundary returns body without the trailing end boundary.
func StripBoundary(body []byte) ([]byte, error) {
	if !bytes.HasSuffix(body, []byte(spec.EndBoundary)) {
		return nil, ErrMissingBoundary
	}
	return body[:len(body)-len(spec.EndBoundary)], nil
}

// ParseResponse maps a server response to a Command. Unknown responses still
// yield the Normal command, together with ErrUnexpectedResponse so that the
// caller can log them.
func ParseResponse(resp []byte) (model.Command, error) {
	if string(resp) == spec.ResponseOK {
		return model.Normal(), nil
	}
	return model.Normal(), fmt.Errorf("%w: %q", ErrUnexpectedResponse, resp)
}
