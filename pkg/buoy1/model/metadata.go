package model

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Header is a single request header, as received.
type Header struct {
	Name  string
	Value string
}

// Metadata is the content of the .json file written after an upload has been
// fully processed.
//
// It is encoded as a flat JSON object containing every request header in wire
// order, followed by "decode_errors" and "buoy_id". All values are strings.
type Metadata struct {
	Headers      []Header
	DecodeErrors int
	BuoyID       string
}

// MarshalJSON implements json.Marshaler. Header order is preserved.
func (m Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	write := func(k, v string) error {
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		vb, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
		return nil
	}
	for _, h := range m.Headers {
		if err := write(h.Name, h.Value); err != nil {
			return nil, err
		}
		buf.WriteByte(',')
	}
	if err := write("decode_errors", strconv.Itoa(m.DecodeErrors)); err != nil {
		return nil, err
	}
	buf.WriteByte(',')
	if err := write("buoy_id", m.BuoyID); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
