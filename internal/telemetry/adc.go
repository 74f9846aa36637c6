package telemetry

import (
	"errors"
	"os"
	"regexp"
	"strconv"
)

// Calibration of the ADC input: actual = CalA*raw + CalB, obtained by least
// squares over known reference voltages.
const (
	CalA = 0.001029309
	CalB = -26.655219
)

// ErrParseVoltage is returned when the ADC output cannot be parsed.
var ErrParseVoltage = errors.New("cannot parse ADC output")

var adcRegexp = regexp.MustCompile(`^Result:\d+ Raw:(\d+)`)

// ADC reads the battery voltage from a hwmon ADC file whose content looks
// like "Result:10499 Raw:24812".
type ADC struct {
	Path string
}

// Voltage implements VoltageReader.
func (a ADC) Voltage() (float32, error) {
	b, err := os.ReadFile(a.Path)
	if err != nil {
		return 0, err
	}
	return ParseADC(string(b))
}

// ParseADC converts the raw reading in s to a calibrated voltage.
func ParseADC(s string) (float32, error) {
	m := adcRegexp.FindStringSubmatch(s)
	if m == nil {
		return 0, ErrParseVoltage
	}
	raw, err := strconv.ParseFloat(m[1], 32)
	if err != nil {
		return 0, err
	}
	return float32(CalA*raw + CalB), nil
}

// Fixed is a VoltageReader that always returns the same value. It is used on
// hardware profiles without an ADC.
type Fixed float32

// Voltage implements VoltageReader.
func (f Fixed) Voltage() (float32, error) {
	return float32(f), nil
}
