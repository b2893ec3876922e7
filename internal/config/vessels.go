package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"fleet-monitor/speedwatch/internal/domain"
)

// VesselRecord is the on-disk and HTTP shape of a vessel registration.
// Intervals are in seconds. An omitted or zero check_interval and an omitted
// alert_cooldown use the service defaults; alert_cooldown 0 disables suppression.
type VesselRecord struct {
	MMSI              string   `json:"mmsi"`
	Name              string   `json:"name,omitempty"`
	StopThreshold     float64  `json:"stop_threshold"`
	SlowdownThreshold float64  `json:"slowdown_threshold"`
	NormalSpeed       float64  `json:"normal_speed,omitempty"`
	CheckInterval     float64  `json:"check_interval,omitempty"`
	AlertCooldown     *float64 `json:"alert_cooldown,omitempty"`
}

type Defaults struct {
	CheckInterval time.Duration
	AlertCooldown time.Duration
}

func (c *Config) VesselDefaults() Defaults {
	return Defaults{
		CheckInterval: c.DefaultCheckInterval,
		AlertCooldown: c.DefaultAlertCooldown,
	}
}

// ToConfig converts a record, applying defaults. It does not validate.
func (r VesselRecord) ToConfig(d Defaults) domain.VesselConfig {
	cfg := domain.VesselConfig{
		ID:                strings.TrimSpace(r.MMSI),
		Name:              strings.TrimSpace(r.Name),
		StopThreshold:     r.StopThreshold,
		SlowdownThreshold: r.SlowdownThreshold,
		NormalSpeed:       r.NormalSpeed,
		CheckInterval:     seconds(r.CheckInterval),
		AlertCooldown:     d.AlertCooldown,
	}
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = d.CheckInterval
	}
	if r.AlertCooldown != nil {
		cfg.AlertCooldown = seconds(*r.AlertCooldown)
	}
	return cfg
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// LoadVessels reads a JSON array of vessel records from path.
func LoadVessels(path string, d Defaults) ([]domain.VesselConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vessels file: %w", err)
	}
	defer f.Close()
	return ParseVessels(f, d)
}

// ParseVessels rejects the whole file if any record is invalid or an MMSI repeats.
func ParseVessels(r io.Reader, d Defaults) ([]domain.VesselConfig, error) {
	var records []VesselRecord
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode vessels: %w", err)
	}

	seen := make(map[string]struct{}, len(records))
	out := make([]domain.VesselConfig, 0, len(records))
	for i, rec := range records {
		cfg := rec.ToConfig(d)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("vessel #%d: %w", i, err)
		}
		if _, dup := seen[cfg.ID]; dup {
			return nil, fmt.Errorf("vessel #%d: %w: %s", i, domain.ErrDuplicateVessel, cfg.ID)
		}
		seen[cfg.ID] = struct{}{}
		out = append(out, cfg)
	}
	return out, nil
}
