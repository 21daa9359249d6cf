package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, e := range os.Environ() {
		key, _, _ := strings.Cut(e, "=")
		if strings.HasPrefix(key, "SITEWATCH_") {
			t.Setenv(key, "") // restores on cleanup
			os.Unsetenv(key)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8089" {
		t.Errorf("Addr = %q, want :8089", cfg.Addr)
	}
	if cfg.ProximityMeters != 10.0 {
		t.Errorf("ProximityMeters = %v, want 10", cfg.ProximityMeters)
	}
	if cfg.HistoryMax != 20 {
		t.Errorf("HistoryMax = %d, want 20", cfg.HistoryMax)
	}
	if cfg.TwinNamespace != "site01" {
		t.Errorf("TwinNamespace = %q, want site01", cfg.TwinNamespace)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SITEWATCH_ADDR", ":9000")
	t.Setenv("SITEWATCH_PROXIMITY_METERS", "25.5")
	t.Setenv("SITEWATCH_HISTORY_MAX", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Errorf("Addr = %q, want :9000", cfg.Addr)
	}
	if cfg.ProximityMeters != 25.5 {
		t.Errorf("ProximityMeters = %v, want 25.5", cfg.ProximityMeters)
	}
	if cfg.HistoryMax != 5 {
		t.Errorf("HistoryMax = %d, want 5", cfg.HistoryMax)
	}
}

func TestLoad_FileThenEnvPrecedence(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "sitewatch.yaml")
	content := "addr: \":7000\"\nproximity_meters: 15\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("SITEWATCH_CONFIG", path)
	t.Setenv("SITEWATCH_ADDR", ":7001")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":7001" {
		t.Errorf("Addr = %q, want env to win over file", cfg.Addr)
	}
	if cfg.ProximityMeters != 15 {
		t.Errorf("ProximityMeters = %v, want 15 from file", cfg.ProximityMeters)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Addr = "" }},
		{"zero proximity", func(c *Config) { c.ProximityMeters = 0 }},
		{"negative proximity", func(c *Config) { c.ProximityMeters = -1 }},
		{"zero history", func(c *Config) { c.HistoryMax = 0 }},
		{"zero lock timeout", func(c *Config) { c.LockTimeoutMS = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
