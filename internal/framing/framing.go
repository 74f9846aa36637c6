// Package framing separates complete sensor frames from the raw serial byte
// stream.
//
// The stream coming from the hydrophone is a sequence of frames, each
// starting with a fixed marker. Bytes can be lost or corrupted on the wire,
// so every window is trimmed to whole frames: everything from the first
// marker up to (not including) the last one is emitted, and everything from
// the last marker onwards is carried into the next window, where it is
// scanned again.
package framing

// Anomaly describes why a buffer could not be split into frames.
type Anomaly int

const (
	// AnomalyNone means the buffer was split at two distinct markers.
	AnomalyNone Anomaly = iota
	// AnomalyNoMarker means no marker was found at all.
	AnomalyNoMarker
	// AnomalySingleMarker means only one marker position was found.
	AnomalySingleMarker
)

func (a Anomaly) String() string {
	switch a {
	case AnomalyNone:
		return "none"
	case AnomalyNoMarker:
		return "no-marker"
	case AnomalySingleMarker:
		return "single-marker"
	}
	return "unknown"
}

// Result is the outcome of Clean.
type Result struct {
	// Frame holds the complete frames found in the buffer.
	Frame []byte
	// Remainder must be prepended to the next window.
	Remainder []byte
	// Anomaly is AnomalyNone unless the whole buffer was passed through
	// unframed.
	Anomaly Anomaly
}

// Index returns the position of the first occurrence of marker in buf, or -1.
func Index(buf, marker []byte) int {
	if len(marker) == 0 || len(marker) > len(buf) {
		return -1
	}
	for i := 0; i <= len(buf)-len(marker); i++ {
		if matchAt(buf, marker, i) {
			return i
		}
	}
	return -1
}

// LastIndex returns the position of the last occurrence of marker in buf,
// or -1.
func LastIndex(buf, marker []byte) int {
	if len(marker) == 0 || len(marker) > len(buf) {
		return -1
	}
	for i := len(buf) - len(marker); i >= 0; i-- {
		if matchAt(buf, marker, i) {
			return i
		}
	}
	return -1
}

func matchAt(buf, marker []byte, i int) bool {
	for j := range marker {
		if buf[i+j] != marker[j] {
			return false
		}
	}
	return true
}

// Clean splits buf into complete frames and a remainder.
//
// When fewer than two markers are found, the whole buffer is returned as
// Frame with an empty Remainder and the corresponding Anomaly set: unframed
// data is passed through rather than dropped, and the caller is expected to
// report it.
//
// Frame and Remainder never alias buf.
func Clean(buf, marker []byte) Result {
	first := Index(buf, marker)
	if first < 0 {
		return passThrough(buf, AnomalyNoMarker)
	}
	last := LastIndex(buf, marker)
	if last <= first {
		return passThrough(buf, AnomalySingleMarker)
	}
	return Result{
		Frame:     clone(buf[first:last]),
		Remainder: clone(buf[last:]),
	}
}

func passThrough(buf []byte, a Anomaly) Result {
	return Result{
		Frame:     clone(buf),
		Remainder: []byte{},
		Anomaly:   a,
	}
}

func clone(b []byte) []byte {
	return append([]byte{}, b...)
}
