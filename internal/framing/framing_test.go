package framing

import (
	"bytes"
	"math/rand"
	"testing"
)

var marker = []byte{'S', 'T', 0x00, 0x01}

var buf30 = []byte{
	'S', 'T', 0x00, 0x01, 0x00, 0x01, 0x00, 0x01, 0x00, 0x01, 0x00, 0x01, 0x00, 0x01, 0x00, 'S',
	'T', 0x00, 0x01, 0x01, 0x00, 0x01, 'S', 'T', 0x00, 0x01, 0x01, 'S', 'T', 0x00,
}

func TestIndex(t *testing.T) {
	tests := []struct {
		name   string
		buf    []byte
		marker []byte
		want   int
	}{
		{"start", buf30, marker, 0},
		{"offset", buf30[1:], marker, 14},
		{"truncated-marker", buf30[28:], marker, -1},
		{"absent", buf30, []byte{0xff, 0xfe, 0xf1}, -1},
		{"at-end", []byte{0x00, 'S', 'T', 0x00, 0x01}, marker, 1},
		{"empty-marker", buf30, nil, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Index(tt.buf, tt.marker); got != tt.want {
				t.Errorf("Index() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLastIndex(t *testing.T) {
	tests := []struct {
		name   string
		buf    []byte
		marker []byte
		want   int
	}{
		{"full", buf30, marker, 22},
		{"last-only", buf30[22:], marker, 0},
		{"none-left", buf30[23:], marker, -1},
		{"truncated-marker", buf30[28:], marker, -1},
		{"absent", buf30, []byte{0xff, 0xfe, 0xf1}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LastIndex(tt.buf, tt.marker); got != tt.want {
				t.Errorf("LastIndex() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestClean(t *testing.T) {
	res := Clean(buf30, marker)
	wantFrame := buf30[:22]
	wantRem := []byte{'S', 'T', 0x00, 0x01, 0x01, 'S', 'T', 0x00}
	if !bytes.Equal(res.Frame, wantFrame) {
		t.Errorf("Clean() frame = %v, want %v", res.Frame, wantFrame)
	}
	if !bytes.Equal(res.Remainder, wantRem) {
		t.Errorf("Clean() remainder = %v, want %v", res.Remainder, wantRem)
	}
	if res.Anomaly != AnomalyNone {
		t.Errorf("Clean() anomaly = %v", res.Anomaly)
	}
}

func TestClean_Occurrences(t *testing.T) {
	garbage := []byte{0x10, 0x20, 0x30}
	payload := []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee}
	join := func(parts ...[]byte) []byte { return bytes.Join(parts, nil) }

	tests := []struct {
		name        string
		buf         []byte
		wantFrame   []byte
		wantRem     []byte
		wantAnomaly Anomaly
	}{
		{
			name:        "zero",
			buf:         join(garbage, payload),
			wantFrame:   join(garbage, payload),
			wantRem:     []byte{},
			wantAnomaly: AnomalyNoMarker,
		},
		{
			name:        "empty",
			buf:         []byte{},
			wantFrame:   []byte{},
			wantRem:     []byte{},
			wantAnomaly: AnomalyNoMarker,
		},
		{
			name:        "one",
			buf:         join(garbage, marker, payload),
			wantFrame:   join(garbage, marker, payload),
			wantRem:     []byte{},
			wantAnomaly: AnomalySingleMarker,
		},
		{
			name:      "two",
			buf:       join(garbage, marker, payload, marker, payload),
			wantFrame: join(marker, payload),
			wantRem:   join(marker, payload),
		},
		{
			name:      "two-last-at-end",
			buf:       join(marker, payload, marker),
			wantFrame: join(marker, payload),
			wantRem:   marker,
		},
		{
			name:      "many",
			buf:       join(garbage, marker, payload, marker, garbage, marker, payload, marker, payload),
			wantFrame: join(marker, payload, marker, garbage, marker, payload),
			wantRem:   join(marker, payload),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Clean(tt.buf, marker)
			if !bytes.Equal(res.Frame, tt.wantFrame) {
				t.Errorf("Clean() frame = %v, want %v", res.Frame, tt.wantFrame)
			}
			if !bytes.Equal(res.Remainder, tt.wantRem) {
				t.Errorf("Clean() remainder = %v, want %v", res.Remainder, tt.wantRem)
			}
			if res.Anomaly != tt.wantAnomaly {
				t.Errorf("Clean() anomaly = %v, want %v", res.Anomaly, tt.wantAnomaly)
			}
		})
	}
}

func TestClean_DoesNotAlias(t *testing.T) {
	buf := append([]byte{}, buf30...)
	res := Clean(buf, marker)
	buf[0] = 0xff
	buf[len(buf)-1] = 0xff
	if res.Frame[0] != 'S' || res.Remainder[len(res.Remainder)-1] != 0x00 {
		t.Errorf("Clean() result aliases the input buffer")
	}
}

// Feeding a marker-led stream through Clean in arbitrary chunks, carrying the
// remainder each time, must reproduce the stream exactly and in order.
func TestClean_RepeatedApplication(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	var stream []byte
	for i := 0; i < 200; i++ {
		stream = append(stream, marker...)
		frame := make([]byte, 1+rnd.Intn(64))
		// Payload bytes never contain the 'S' that starts the marker.
		for j := range frame {
			frame[j] = byte(rnd.Intn(int('S')))
		}
		stream = append(stream, frame...)
	}

	var out, carry []byte
	for rest := stream; len(rest) > 0; {
		n := 1 + rnd.Intn(300)
		if n > len(rest) {
			n = len(rest)
		}
		res := Clean(append(carry, rest[:n]...), marker)
		out = append(out, res.Frame...)
		carry = res.Remainder
		rest = rest[n:]
	}
	out = append(out, carry...)

	if !bytes.Equal(out, stream) {
		t.Fatalf("repeated Clean() lost or reordered data: got %d bytes, want %d",
			len(out), len(stream))
	}
}

func TestAnomaly_String(t *testing.T) {
	for a, want := range map[Anomaly]string{
		AnomalyNone:         "none",
		AnomalyNoMarker:     "no-marker",
		AnomalySingleMarker: "single-marker",
		Anomaly(42):         "unknown",
	} {
		if a.String() != want {
			t.Errorf("Anomaly(%d).String() = %q, want %q", a, a.String(), want)
		}
	}
}
