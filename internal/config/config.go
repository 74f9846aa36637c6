// Package config holds the buoy's tuning parameters. Defaults match the
// deployed hardware; a YAML file can override any of them.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the buoy tuning configuration.
type Config struct {
	BuoyID string `yaml:"buoy_id"`

	// SendInterval is waited before each drain of the action queue.
	SendInterval time.Duration `yaml:"send_interval"`
	// RecordDuration is the length of one recording window.
	RecordDuration time.Duration `yaml:"record_duration"`
	// NoDataWait is how long to wait for data before sending a heartbeat.
	NoDataWait time.Duration `yaml:"no_data_wait"`

	Serial Serial `yaml:"serial"`
	Power  Power  `yaml:"power"`
	GPS    GPS    `yaml:"gps"`
	Light  Light  `yaml:"light"`

	ADCPath    string `yaml:"adc_path"`
	UptimePath string `yaml:"uptime_path"`
}

// Serial configures the hydrophone serial port.
type Serial struct {
	Path        string        `yaml:"path"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	BufferSize  int           `yaml:"buffer_size"`
}

// Power configures the power supervisor.
type Power struct {
	Interval        time.Duration `yaml:"interval"`
	LowThreshold    float32       `yaml:"low_threshold"`
	MediumThreshold float32       `yaml:"medium_threshold"`
	LowDelay        time.Duration `yaml:"low_delay"`
	LowSleep        time.Duration `yaml:"low_sleep"`
	MediumSleep     time.Duration `yaml:"medium_sleep"`
	Script          string        `yaml:"script"`
}

// GPS configures the GPS poller.
type GPS struct {
	Script   string        `yaml:"script"`
	Interval time.Duration `yaml:"interval"`
}

// Light configures the navigation light.
type Light struct {
	Path     string        `yaml:"path"`
	Interval time.Duration `yaml:"interval"`
	Flashes  int           `yaml:"flashes"`
	On       time.Duration `yaml:"on"`
	Off      time.Duration `yaml:"off"`
}

const defaultSendInterval = 5 * time.Minute

// Default returns the configuration used on the deployed buoys.
func Default() *Config {
	return &Config{
		BuoyID:         "1",
		SendInterval:   defaultSendInterval,
		RecordDuration: defaultSendInterval / 8,
		NoDataWait:     1800 * time.Second,
		Serial: Serial{
			Path:        "/dev/ttyUSB0",
			Baud:        230400,
			ReadTimeout: 200 * time.Millisecond,
			BufferSize:  16384,
		},
		Power: Power{
			Interval:        540 * time.Second,
			LowThreshold:    11.0,
			MediumThreshold: 12.0,
			LowDelay:        60 * time.Second,
			LowSleep:        3 * time.Hour,
			MediumSleep:     30 * time.Minute,
			Script:          "/home/root/sms_scripts/ulpm.sh",
		},
		GPS: GPS{
			Script:   "/home/root/gps.sh",
			Interval: 15 * time.Minute,
		},
		Light: Light{
			Path:     "/sys/class/gpio/gpio56/value",
			Interval: 16 * time.Second,
			Flashes:  5,
			On:       100 * time.Millisecond,
			Off:      400 * time.Millisecond,
		},
		ADCPath:    "/sys/class/hwmon/hwmon0/device/mpp_05",
		UptimePath: "/proc/uptime",
	}
}

// Load reads a YAML file over the defaults and validates the result. An
// empty path returns the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return c, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.BuoyID == "" {
		return errors.New("buoy_id must not be empty")
	}
	if c.Power.LowThreshold >= c.Power.MediumThreshold {
		return fmt.Errorf("low_threshold (%v) must be lower than medium_threshold (%v)",
			c.Power.LowThreshold, c.Power.MediumThreshold)
	}
	durations := map[string]time.Duration{
		"send_interval":       c.SendInterval,
		"record_duration":     c.RecordDuration,
		"no_data_wait":        c.NoDataWait,
		"serial.read_timeout": c.Serial.ReadTimeout,
		"power.interval":      c.Power.Interval,
		"gps.interval":        c.GPS.Interval,
		"light.interval":      c.Light.Interval,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Serial.Baud <= 0 || c.Serial.BufferSize <= 0 {
		return errors.New("serial baud and buffer_size must be positive")
	}
	return nil
}
