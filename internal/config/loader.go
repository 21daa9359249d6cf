package config

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if SITEWATCH_CONFIG is set
//  3. env (prefix SITEWATCH_)
func Load() (*Config, error) {
	// A local .env file is optional; missing is not an error.
	_ = godotenv.Load()

	base := New()

	k := koanf.New(".")

	if path := os.Getenv("SITEWATCH_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// Environment variables: SITEWATCH_ADDR, SITEWATCH_PROXIMITY_METERS, ...
	// Keys map to the flat koanf tags on Config, underscores preserved.
	envProvider := env.Provider("SITEWATCH_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "sitewatch_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if c.ProximityMeters <= 0 {
		return errors.New("proximity_meters must be positive")
	}
	if c.HistoryMax < 1 {
		return errors.New("history_max must be at least 1")
	}
	if c.LockTimeoutMS <= 0 {
		return errors.New("lock_timeout_ms must be positive")
	}
	return nil
}
