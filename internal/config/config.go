// Package config loads and validates the daemon configuration.
// The rest of the system only ever sees an immutable, validated Snapshot;
// reloading produces a fresh Snapshot and never mutates one in place.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned (wrapped) when a snapshot fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Defaults for fields the file may omit.
const (
	DefaultSafetyLowThreshold   = 15.0
	DefaultSafetyHighThreshold  = 99.0
	DefaultStalenessTimeoutSecs = 60
	DefaultScheduleWindowSecs   = 60
	DefaultRetentionYears       = 3
	DefaultTickIntervalSecs     = 5
	DefaultHTTPAddr             = ":8080"
	DefaultHistoryPath          = "maneuvers.db"
)

// RelayPin describes one physical relay channel.
type RelayPin struct {
	Pin        int  `yaml:"pin"`
	ActiveHigh bool `yaml:"active_high"`
}

// Snapshot is a validated, read-only configuration snapshot.
type Snapshot struct {
	MQTTBroker      string `yaml:"mqtt_broker"`
	MQTTPort        int    `yaml:"mqtt_port"`
	VictronDeviceID string `yaml:"victron_device_id"`

	RelayPins []RelayPin `yaml:"relay_pins"`

	ScheduledTime               string  `yaml:"scheduled_time"` // HH:MM
	MaxDurationScheduledMinutes int     `yaml:"max_duration_scheduled_minutes"`
	MaxDurationManualMinutes    int     `yaml:"max_duration_manual_minutes"`
	MaintenancePeriodDays       int     `yaml:"maintenance_period_days"`
	MaintenanceDurationSeconds  int     `yaml:"maintenance_duration_seconds"`
	SafetyLowThreshold          float64 `yaml:"safety_low_threshold"`
	SafetyHighThreshold         float64 `yaml:"safety_high_threshold"`
	StalenessTimeoutSeconds     int     `yaml:"staleness_timeout_seconds"`
	ScheduleWindowSeconds       int     `yaml:"schedule_window_seconds"`
	RetentionYears              int     `yaml:"retention_years"`
	TickIntervalSeconds         int     `yaml:"tick_interval_seconds"`

	HTTPAddr    string `yaml:"http_addr"`
	HistoryPath string `yaml:"history_path"`
}

// Load reads, defaults, and validates the YAML file at path.
func Load(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document. Defaults are seeded before
// decoding, so an explicit zero in the file (say `safety_low_threshold: 0`)
// stays zero instead of being mistaken for an omitted field.
func Parse(data []byte) (Snapshot, error) {
	s := defaults()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("parse config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// defaults returns a Snapshot holding every defaultable field's default.
// Fields present in the YAML document overwrite these on decode.
func defaults() Snapshot {
	return Snapshot{
		MQTTPort:                1883,
		SafetyLowThreshold:      DefaultSafetyLowThreshold,
		SafetyHighThreshold:     DefaultSafetyHighThreshold,
		StalenessTimeoutSeconds: DefaultStalenessTimeoutSecs,
		ScheduleWindowSeconds:   DefaultScheduleWindowSecs,
		RetentionYears:          DefaultRetentionYears,
		TickIntervalSeconds:     DefaultTickIntervalSecs,
		HTTPAddr:                DefaultHTTPAddr,
		HistoryPath:             DefaultHistoryPath,
	}
}

// Validate checks the snapshot against the ranges the engine relies on.
func (s Snapshot) Validate() error {
	if _, _, err := ParseScheduledTime(s.ScheduledTime); err != nil {
		return fmt.Errorf("%w: scheduled_time: %v", ErrInvalid, err)
	}
	if s.MaxDurationScheduledMinutes <= 0 {
		return fmt.Errorf("%w: max_duration_scheduled_minutes must be > 0", ErrInvalid)
	}
	if s.MaxDurationManualMinutes <= 0 {
		return fmt.Errorf("%w: max_duration_manual_minutes must be > 0", ErrInvalid)
	}
	if s.MaintenancePeriodDays <= 0 {
		return fmt.Errorf("%w: maintenance_period_days must be > 0", ErrInvalid)
	}
	if s.MaintenanceDurationSeconds <= 0 {
		return fmt.Errorf("%w: maintenance_duration_seconds must be > 0", ErrInvalid)
	}
	if s.SafetyLowThreshold < 0 || s.SafetyLowThreshold > 100 {
		return fmt.Errorf("%w: safety_low_threshold out of [0,100]", ErrInvalid)
	}
	if s.SafetyHighThreshold < 0 || s.SafetyHighThreshold > 100 {
		return fmt.Errorf("%w: safety_high_threshold out of [0,100]", ErrInvalid)
	}
	if s.SafetyLowThreshold >= s.SafetyHighThreshold {
		return fmt.Errorf("%w: safety_low_threshold must be below safety_high_threshold", ErrInvalid)
	}
	if s.StalenessTimeoutSeconds <= 0 {
		return fmt.Errorf("%w: staleness_timeout_seconds must be > 0", ErrInvalid)
	}
	if s.ScheduleWindowSeconds <= 0 {
		return fmt.Errorf("%w: schedule_window_seconds must be > 0", ErrInvalid)
	}
	if s.RetentionYears <= 0 {
		return fmt.Errorf("%w: retention_years must be > 0", ErrInvalid)
	}
	if s.TickIntervalSeconds <= 0 {
		return fmt.Errorf("%w: tick_interval_seconds must be > 0", ErrInvalid)
	}
	if len(s.RelayPins) == 0 || len(s.RelayPins) > 2 {
		return fmt.Errorf("%w: relay_pins must list 1 or 2 channels", ErrInvalid)
	}
	seen := map[int]bool{}
	for _, rp := range s.RelayPins {
		if rp.Pin < 0 {
			return fmt.Errorf("%w: relay pin %d is negative", ErrInvalid, rp.Pin)
		}
		if seen[rp.Pin] {
			return fmt.Errorf("%w: relay pin %d listed twice", ErrInvalid, rp.Pin)
		}
		seen[rp.Pin] = true
	}
	return nil
}

// ParseScheduledTime parses the HH:MM daily maneuver time.
func ParseScheduledTime(v string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, 0, fmt.Errorf("want HH:MM, got %q", v)
	}
	return t.Hour(), t.Minute(), nil
}

// Durations derived from the raw fields, so callers never re-multiply units.

func (s Snapshot) StalenessTimeout() time.Duration {
	return time.Duration(s.StalenessTimeoutSeconds) * time.Second
}

func (s Snapshot) ScheduleWindow() time.Duration {
	return time.Duration(s.ScheduleWindowSeconds) * time.Second
}

func (s Snapshot) MaxDurationScheduled() time.Duration {
	return time.Duration(s.MaxDurationScheduledMinutes) * time.Minute
}

func (s Snapshot) MaxDurationManual() time.Duration {
	return time.Duration(s.MaxDurationManualMinutes) * time.Minute
}

func (s Snapshot) MaintenanceDuration() time.Duration {
	return time.Duration(s.MaintenanceDurationSeconds) * time.Second
}

func (s Snapshot) MaintenancePeriod() time.Duration {
	return time.Duration(s.MaintenancePeriodDays) * 24 * time.Hour
}

func (s Snapshot) TickInterval() time.Duration {
	return time.Duration(s.TickIntervalSeconds) * time.Second
}

// BrokerURL returns the tcp:// broker address for the MQTT client.
func (s Snapshot) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", s.MQTTBroker, s.MQTTPort)
}
