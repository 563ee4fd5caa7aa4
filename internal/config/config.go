// Package config loads the ambient settings (logging, pool sizing,
// webhook timeouts, the operations surface) that sit alongside the
// business-critical flags (listen address, queue URL, nat64 prefix, db
// URL), which are parsed directly as CLI flags in cmd/, not through
// this file. Follows a YAML-plus-defaults shape so an empty or missing
// config file is never a startup failure.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Logging configures the zerolog + lumberjack sink.
type Logging struct {
	Path       string `yaml:"path"`
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Database configures connection pool sizing.
type Database struct {
	MaxOpenConn int `yaml:"max_open_conn"`
	MaxIdleConn int `yaml:"max_idle_conn"`
}

// Webhook configures the shared outbound HTTP client.
type Webhook struct {
	Timeout        time.Duration `yaml:"timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	RetryBound     time.Duration `yaml:"retry_bound"`
}

// Ops configures the operations surface.
type Ops struct {
	ListenAddress     string        `yaml:"listen_address"`
	OperatorTokenHash string        `yaml:"operator_token_hash"`
	JWTSecret         string        `yaml:"jwt_secret"`
	TokenTTL          time.Duration `yaml:"token_ttl"`
}

// File is the complete YAML-loadable ambient configuration.
type File struct {
	Logging  Logging  `yaml:"logging"`
	Database Database `yaml:"database"`
	Webhook  Webhook  `yaml:"webhook"`
	Ops      Ops      `yaml:"ops"`
}

// Defaults returns the ambient configuration used when no --config file
// is given, or for any field a given file leaves zero-valued.
func Defaults() File {
	return File{
		Logging: Logging{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Database: Database{
			MaxOpenConn: 10,
			MaxIdleConn: 5,
		},
		Webhook: Webhook{
			Timeout:        30 * time.Second,
			ConnectTimeout: 10 * time.Second,
			RetryDelay:     60 * time.Second,
			RetryBound:     24 * time.Hour,
		},
		Ops: Ops{
			ListenAddress: ":9600",
			TokenTTL:      12 * time.Hour,
		},
	}
}

// Load reads a YAML file at path and overlays it onto Defaults(). An
// empty path returns Defaults() unchanged — missing ambient config is
// never a startup failure.
func Load(path string) (File, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return File{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}
