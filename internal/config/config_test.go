package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fleet-monitor/speedwatch/internal/domain"
)

var testDefaults = Defaults{CheckInterval: 2 * time.Minute, AlertCooldown: 30 * time.Minute}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HTTP_PORT", "")
	t.Setenv("FETCH_TIMEOUT", "")
	t.Setenv("ENABLE_DB", "")
	t.Setenv("ENABLE_REDIS", "")
	cfg := Load()
	if cfg.HTTPPort != "8002" {
		t.Errorf("HTTPPort = %q, want 8002", cfg.HTTPPort)
	}
	if cfg.FetchTimeout != 20*time.Second {
		t.Errorf("FetchTimeout = %v, want 20s", cfg.FetchTimeout)
	}
	if !cfg.EnableDB || !cfg.EnableRedis {
		t.Error("stores should be enabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("FETCH_TIMEOUT", "3s")
	t.Setenv("DISPATCH_TIMEOUT", "7")
	t.Setenv("ENABLE_DB", "false")
	t.Setenv("DB_MAX_CONNS", "not-a-number")
	t.Setenv("VALID_API_KEYS", "a,b")

	cfg := Load()
	if cfg.HTTPPort != "9000" {
		t.Errorf("HTTPPort = %q", cfg.HTTPPort)
	}
	if cfg.FetchTimeout != 3*time.Second {
		t.Errorf("FetchTimeout = %v", cfg.FetchTimeout)
	}
	if cfg.DispatchTimeout != 7*time.Second {
		t.Errorf("DispatchTimeout = %v", cfg.DispatchTimeout)
	}
	if cfg.EnableDB {
		t.Error("EnableDB should be false")
	}
	if cfg.DBMaxConns != 10 {
		t.Errorf("DBMaxConns = %d, want fallback 10", cfg.DBMaxConns)
	}
	if len(cfg.ValidAPIKeys) != 2 || cfg.ValidAPIKeys[1] != "b" {
		t.Errorf("ValidAPIKeys = %v", cfg.ValidAPIKeys)
	}
}

func TestParseVessels(t *testing.T) {
	input := `[
		{"mmsi": "230124000", "name": " Otso ", "stop_threshold": 0.5, "slowdown_threshold": 4, "normal_speed": 13, "check_interval": 60, "alert_cooldown": 600},
		{"mmsi": "230123000", "name": "Kontio", "stop_threshold": 1, "slowdown_threshold": 5}
	]`

	vessels, err := ParseVessels(strings.NewReader(input), testDefaults)
	if err != nil {
		t.Fatalf("ParseVessels() error = %v", err)
	}
	if len(vessels) != 2 {
		t.Fatalf("got %d vessels, want 2", len(vessels))
	}

	otso := vessels[0]
	if otso.Name != "Otso" || otso.CheckInterval != time.Minute || otso.AlertCooldown != 10*time.Minute {
		t.Errorf("unexpected otso config: %+v", otso)
	}
	kontio := vessels[1]
	if kontio.CheckInterval != testDefaults.CheckInterval || kontio.AlertCooldown != testDefaults.AlertCooldown {
		t.Errorf("defaults not applied: %+v", kontio)
	}
}

func TestParseVesselsRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{
			name:  "inverted thresholds",
			input: `[{"mmsi": "1", "stop_threshold": 6, "slowdown_threshold": 5}]`,
			want:  domain.ErrInvalidConfig,
		},
		{
			name:  "duplicate mmsi",
			input: `[{"mmsi": "1", "stop_threshold": 1, "slowdown_threshold": 5}, {"mmsi": "1", "stop_threshold": 1, "slowdown_threshold": 5}]`,
			want:  domain.ErrDuplicateVessel,
		},
		{
			name:  "missing mmsi",
			input: `[{"stop_threshold": 1, "slowdown_threshold": 5}]`,
			want:  domain.ErrInvalidConfig,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseVessels(strings.NewReader(tt.input), testDefaults)
			if !errors.Is(err, tt.want) {
				t.Fatalf("ParseVessels() = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := ParseVessels(strings.NewReader(`[{"mmsi": "1", "speed": 3}]`), testDefaults); err == nil {
		t.Error("unknown fields should be rejected")
	}
}

func TestLoadVessels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vessels.json")
	if err := os.WriteFile(path, []byte(`[{"mmsi": "230124000", "stop_threshold": 1, "slowdown_threshold": 5}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	vessels, err := LoadVessels(path, testDefaults)
	if err != nil || len(vessels) != 1 {
		t.Fatalf("LoadVessels() = %v, %v", vessels, err)
	}

	if _, err := LoadVessels(filepath.Join(t.TempDir(), "missing.json"), testDefaults); err == nil {
		t.Error("missing file should fail")
	}
}

func TestParseVesselsCooldown(t *testing.T) {
	input := `[
		{"mmsi": "1", "stop_threshold": 1, "slowdown_threshold": 5, "alert_cooldown": 0},
		{"mmsi": "2", "stop_threshold": 1, "slowdown_threshold": 5},
		{"mmsi": "3", "stop_threshold": 1, "slowdown_threshold": 5, "alert_cooldown": 90}
	]`
	vessels, err := ParseVessels(strings.NewReader(input), testDefaults)
	if err != nil {
		t.Fatalf("ParseVessels() error = %v", err)
	}

	want := []time.Duration{0, testDefaults.AlertCooldown, 90 * time.Second}
	for i, v := range vessels {
		if v.AlertCooldown != want[i] {
			t.Errorf("vessel %s: AlertCooldown = %v, want %v", v.ID, v.AlertCooldown, want[i])
		}
	}
}

func TestToConfigKeepsNameCase(t *testing.T) {
	cfg := VesselRecord{MMSI: " 230124000 ", Name: "  Otso  "}.ToConfig(testDefaults)
	if cfg.ID != "230124000" || cfg.Name != "Otso" {
		t.Errorf("ToConfig() = %q / %q, want trimmed id and name", cfg.ID, cfg.Name)
	}
}
