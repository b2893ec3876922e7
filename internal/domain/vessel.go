package domain

import (
	"fmt"
	"math"
	"time"
)

// VesselConfig is fixed at registration and never mutated afterwards.
type VesselConfig struct {
	ID   string // MMSI
	Name string

	// Speeds in knots.
	StopThreshold     float64
	SlowdownThreshold float64
	NormalSpeed       float64

	CheckInterval time.Duration
	AlertCooldown time.Duration
}

func (c VesselConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: empty vessel id", ErrInvalidConfig)
	}
	if math.IsNaN(c.StopThreshold) || math.IsInf(c.StopThreshold, 0) ||
		math.IsNaN(c.SlowdownThreshold) || math.IsInf(c.SlowdownThreshold, 0) {
		return fmt.Errorf("%w: %s: thresholds must be finite", ErrInvalidConfig, c.ID)
	}
	if c.StopThreshold < 0 {
		return fmt.Errorf("%w: %s: stop threshold %.2f is negative", ErrInvalidConfig, c.ID, c.StopThreshold)
	}
	if c.StopThreshold > c.SlowdownThreshold {
		return fmt.Errorf("%w: %s: stop threshold %.2f above slowdown threshold %.2f",
			ErrInvalidConfig, c.ID, c.StopThreshold, c.SlowdownThreshold)
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("%w: %s: check interval must be > 0", ErrInvalidConfig, c.ID)
	}
	if c.AlertCooldown < 0 {
		return fmt.Errorf("%w: %s: alert cooldown must be >= 0", ErrInvalidConfig, c.ID)
	}
	return nil
}

// DisplayName falls back to the MMSI when no name was configured.
func (c VesselConfig) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

type Position struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

type VesselReading struct {
	ID        string    `json:"id"`
	Speed     float64   `json:"speed"`
	Timestamp time.Time `json:"timestamp"`
	Position  *Position `json:"position,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
	RawStatus string    `json:"raw_status,omitempty"`
}

type State uint8

const (
	StateUnknown State = iota
	StateNormal
	StateSlowdown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "UNKNOWN"
	case StateNormal:
		return "NORMAL"
	case StateSlowdown:
		return "SLOWDOWN"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, st := range States {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// States lists every known state, used for per-state gauges.
var States = []State{StateUnknown, StateNormal, StateSlowdown, StateStopped}

type AlertKind uint8

const (
	AlertStopped AlertKind = iota + 1
	AlertSlowdown
	AlertRecovered
)

func (k AlertKind) String() string {
	switch k {
	case AlertStopped:
		return "STOPPED"
	case AlertSlowdown:
		return "SLOWDOWN"
	case AlertRecovered:
		return "RECOVERED"
	default:
		return fmt.Sprintf("AlertKind(%d)", uint8(k))
	}
}

func (k AlertKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *AlertKind) UnmarshalText(text []byte) error {
	for _, kind := range []AlertKind{AlertStopped, AlertSlowdown, AlertRecovered} {
		if kind.String() == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown alert kind %q", text)
}

type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "INFO"
	SeverityWarning  AlertSeverity = "WARNING"
	SeverityCritical AlertSeverity = "CRITICAL"
)

func (k AlertKind) Severity() AlertSeverity {
	switch k {
	case AlertStopped:
		return SeverityCritical
	case AlertSlowdown:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

type AlertEvent struct {
	ID        string        `json:"id"`
	Name      string        `json:"name,omitempty"`
	Kind      AlertKind     `json:"kind"`
	Reading   VesselReading `json:"reading"`
	Previous  State         `json:"previous"`
	Current   State         `json:"current"`
	Timestamp time.Time     `json:"timestamp"`
}

// VesselStatus is an immutable copy of one vessel's runtime state. The owning
// monitor loop builds a fresh value on every change and swaps it in atomically.
type VesselStatus struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name,omitempty"`
	State               State          `json:"state"`
	LastReading         *VesselReading `json:"last_reading,omitempty"`
	LastPollAt          time.Time      `json:"last_poll_at,omitzero"`
	LastError           string         `json:"last_error,omitempty"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	Halted              bool           `json:"halted"`
}

type VesselSummary struct {
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	State         State      `json:"state"`
	LastReadingAt *time.Time `json:"last_reading_at,omitempty"`
	Halted        bool       `json:"halted,omitempty"`
}

type FleetSnapshot struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Total       int             `json:"total"`
	Vessels     []VesselSummary `json:"vessels"`
}

func (s VesselStatus) Summary() VesselSummary {
	out := VesselSummary{
		ID:     s.ID,
		Name:   s.Name,
		State:  s.State,
		Halted: s.Halted,
	}
	if s.LastReading != nil {
		ts := s.LastReading.Timestamp
		out.LastReadingAt = &ts
	}
	return out
}
