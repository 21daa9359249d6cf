// Package config provides configuration management for sitewatch.
// Defaults are layered with an optional YAML file and SITEWATCH_-prefixed
// environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	// DBFilename is the SQLite database file inside the data directory.
	DBFilename = "sitewatch.db"

	uploadsDirName = "uploads"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8089".
	Addr string `koanf:"addr"`

	// DataDir holds the database and stored uploads.
	DataDir string `koanf:"data_dir"`

	// ProximityMeters is the radius within which two captures are
	// considered the same physical location.
	ProximityMeters float64 `koanf:"proximity_meters"`

	// HistoryMax caps the twin document capture history (oldest trimmed).
	HistoryMax int `koanf:"history_max"`

	// LockTimeoutMS bounds how long an upload waits for its camera's
	// exclusive section before failing as retryable.
	LockTimeoutMS int `koanf:"lock_timeout_ms"`

	// SendAlerts enables twin inbox messages and websocket broadcasts
	// when a major change is detected.
	SendAlerts bool `koanf:"send_alerts"`

	// Twin document store (Ditto-style REST API).
	TwinBaseURL   string `koanf:"twin_base_url"`
	TwinUsername  string `koanf:"twin_username"`
	TwinPassword  string `koanf:"twin_password"`
	TwinNamespace string `koanf:"twin_namespace"`
	TwinTimeoutMS int    `koanf:"twin_timeout_ms"`

	// Vision gateway (remote VLM classification API).
	VisionBaseURL       string `koanf:"vision_base_url"`
	VisionAPIKey        string `koanf:"vision_api_key"`
	VisionModel         string `koanf:"vision_model"`
	VisionTimeoutMS     int    `koanf:"vision_timeout_ms"`
	VisionMaxImageBytes int    `koanf:"vision_max_image_bytes"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":8089",
		DataDir:             defaultDataDir(),
		ProximityMeters:     10.0,
		HistoryMax:          20,
		LockTimeoutMS:       30_000,
		SendAlerts:          true,
		TwinBaseURL:         "http://localhost:8080",
		TwinUsername:        "ditto",
		TwinPassword:        "ditto",
		TwinNamespace:       "site01",
		TwinTimeoutMS:       15_000,
		VisionBaseURL:       "http://localhost:8090",
		VisionModel:         "gemini-2.5-flash",
		VisionTimeoutMS:     60_000,
		VisionMaxImageBytes: 6_000_000,
	}
}

// DBPath returns the full path to the SQLite database file.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, DBFilename)
}

// UploadDir returns the directory where uploaded images are stored.
func (c *Config) UploadDir() string {
	return filepath.Join(c.DataDir, uploadsDirName)
}

// LockTimeout returns the camera gate acquire timeout.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMS) * time.Millisecond
}

// TwinTimeout returns the twin store HTTP timeout.
func (c *Config) TwinTimeout() time.Duration {
	return time.Duration(c.TwinTimeoutMS) * time.Millisecond
}

// VisionTimeout returns the vision gateway HTTP timeout.
func (c *Config) VisionTimeout() time.Duration {
	return time.Duration(c.VisionTimeoutMS) * time.Millisecond
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sitewatch"
	}
	return filepath.Join(home, ".sitewatch")
}
