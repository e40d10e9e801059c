// Package config loads field agent configuration from an optional
// YAML file with command-line overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds the full agent configuration.
type Config struct {
	DataDir   string `yaml:"data_dir"`
	BundleDir string `yaml:"bundle_dir"`

	ServerBaseURL string `yaml:"server_base_url"`
	UploadURL     string `yaml:"upload_url"`

	TenantID       string `yaml:"tenant_id"`
	DeviceID       string `yaml:"device_id"`
	SubmitterEmail string `yaml:"submitter_email"`
	SigningKey     string `yaml:"signing_key"`

	ExportIntervalSeconds int `yaml:"export_interval_seconds"`
	SyncIntervalSeconds   int `yaml:"sync_interval_seconds"`
	BundleIntervalSeconds int `yaml:"bundle_interval_seconds"`
	SweepIntervalSeconds  int `yaml:"sweep_interval_seconds"`
	StaleThresholdSeconds int `yaml:"stale_threshold_seconds"`

	Debug bool `yaml:"debug"`
}

// Default returns a configuration with default intervals filled in.
func Default() Config {
	return Config{
		DataDir:               "flowdata",
		BundleDir:             "flowdata/inbox",
		ExportIntervalSeconds: 300,
		SyncIntervalSeconds:   900,
		BundleIntervalSeconds: 60,
		SweepIntervalSeconds:  600,
		StaleThresholdSeconds: 1800,
	}
}

// Load reads a YAML config file. A missing path yields defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// RegisterFlags binds command-line overrides onto cfg.
func (cfg *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "local data directory")
	fs.StringVar(&cfg.BundleDir, "bundle-dir", cfg.BundleDir, "bundle inbox directory")
	fs.StringVar(&cfg.ServerBaseURL, "server", cfg.ServerBaseURL, "server base URL")
	fs.StringVar(&cfg.UploadURL, "upload-url", cfg.UploadURL, "object storage upload URL")
	fs.StringVar(&cfg.TenantID, "tenant", cfg.TenantID, "tenant/application id of this device")
	fs.StringVar(&cfg.DeviceID, "device-id", cfg.DeviceID, "device identifier override")
	fs.StringVar(&cfg.SubmitterEmail, "submitter-email", cfg.SubmitterEmail, "email stamped onto exported records")
	fs.StringVar(&cfg.SigningKey, "signing-key", cfg.SigningKey, "export signing key (empty disables signing)")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "log at DEBUG level")
}

// ApplyFlags copies onto cfg the fields of o whose flags were
// explicitly set on the command line. Flag values are bound before a
// config file can be read, so file loading and explicit overrides
// compose in that order.
func (cfg *Config) ApplyFlags(fs *pflag.FlagSet, o Config) {
	apply := map[string]func(){
		"data-dir":        func() { cfg.DataDir = o.DataDir },
		"bundle-dir":      func() { cfg.BundleDir = o.BundleDir },
		"server":          func() { cfg.ServerBaseURL = o.ServerBaseURL },
		"upload-url":      func() { cfg.UploadURL = o.UploadURL },
		"tenant":          func() { cfg.TenantID = o.TenantID },
		"device-id":       func() { cfg.DeviceID = o.DeviceID },
		"submitter-email": func() { cfg.SubmitterEmail = o.SubmitterEmail },
		"signing-key":     func() { cfg.SigningKey = o.SigningKey },
		"debug":           func() { cfg.Debug = o.Debug },
	}
	fs.Visit(func(f *pflag.Flag) {
		if fn, ok := apply[f.Name]; ok {
			fn()
		}
	})
}

// Validate checks settings needed before the engine starts.
func (cfg Config) Validate() error {
	if cfg.DataDir == "" {
		return errors.New("missing data_dir")
	}
	if cfg.TenantID == "" {
		return errors.New("missing tenant_id")
	}
	// The workers feed these straight into tickers, which panic on a
	// non-positive period.
	intervals := []struct {
		name  string
		value int
	}{
		{"export_interval_seconds", cfg.ExportIntervalSeconds},
		{"sync_interval_seconds", cfg.SyncIntervalSeconds},
		{"bundle_interval_seconds", cfg.BundleIntervalSeconds},
		{"sweep_interval_seconds", cfg.SweepIntervalSeconds},
		{"stale_threshold_seconds", cfg.StaleThresholdSeconds},
	}
	for _, iv := range intervals {
		if iv.value <= 0 {
			return fmt.Errorf("%s must be positive", iv.name)
		}
	}
	return nil
}

// ExportInterval returns the export worker period.
func (cfg Config) ExportInterval() time.Duration {
	return time.Duration(cfg.ExportIntervalSeconds) * time.Second
}

// SyncInterval returns the pull-sync worker period.
func (cfg Config) SyncInterval() time.Duration {
	return time.Duration(cfg.SyncIntervalSeconds) * time.Second
}

// BundleInterval returns the bundle scan period.
func (cfg Config) BundleInterval() time.Duration {
	return time.Duration(cfg.BundleIntervalSeconds) * time.Second
}

// SweepInterval returns the stale-transmission sweep period.
func (cfg Config) SweepInterval() time.Duration {
	return time.Duration(cfg.SweepIntervalSeconds) * time.Second
}

// StaleThreshold returns how long a transmission may sit IN_PROGRESS
// before the sweep reclaims it.
func (cfg Config) StaleThreshold() time.Duration {
	return time.Duration(cfg.StaleThresholdSeconds) * time.Second
}
