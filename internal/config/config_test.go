package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DataDir != "flowdata" {
		t.Errorf("unexpected default data dir %q", cfg.DataDir)
	}
	if cfg.ExportInterval() != 5*time.Minute {
		t.Errorf("unexpected default export interval %s", cfg.ExportInterval())
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	content := `
data_dir: /var/lib/flow
tenant_id: tenant-a
submitter_email: worker@example.org
export_interval_seconds: 60
debug: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DataDir != "/var/lib/flow" || cfg.TenantID != "tenant-a" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.ExportInterval() != time.Minute {
		t.Errorf("unexpected export interval %s", cfg.ExportInterval())
	}
	if !cfg.Debug {
		t.Error("expected debug enabled")
	}
	if cfg.SubmitterEmail != "worker@example.org" {
		t.Errorf("submitter email not applied: %q", cfg.SubmitterEmail)
	}
	// untouched settings keep their defaults
	if cfg.SweepIntervalSeconds != 600 {
		t.Errorf("default sweep interval lost: %d", cfg.SweepIntervalSeconds)
	}
}

func TestApplyFlagsOnlyCopiesChangedFlags(t *testing.T) {
	overrides := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	overrides.RegisterFlags(fs)
	if err := fs.Parse([]string{"--tenant", "tenant-b", "--submitter-email", "cli@example.org"}); err != nil {
		t.Fatalf("flag parse failed: %v", err)
	}

	cfg := Default()
	cfg.TenantID = "tenant-from-file"
	cfg.DataDir = "/from/file"
	cfg.ApplyFlags(fs, overrides)

	if cfg.TenantID != "tenant-b" {
		t.Errorf("explicit flag must win, got %q", cfg.TenantID)
	}
	if cfg.SubmitterEmail != "cli@example.org" {
		t.Errorf("submitter email flag not applied, got %q", cfg.SubmitterEmail)
	}
	if cfg.DataDir != "/from/file" {
		t.Errorf("unset flag must not clobber the file value, got %q", cfg.DataDir)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("expected missing tenant to fail validation")
	}
	cfg.TenantID = "tenant-a"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsNonPositiveIntervals(t *testing.T) {
	for _, set := range []func(*Config){
		func(c *Config) { c.ExportIntervalSeconds = 0 },
		func(c *Config) { c.SyncIntervalSeconds = -1 },
		func(c *Config) { c.BundleIntervalSeconds = 0 },
		func(c *Config) { c.SweepIntervalSeconds = 0 },
		func(c *Config) { c.StaleThresholdSeconds = 0 },
	} {
		cfg := Default()
		cfg.TenantID = "tenant-a"
		set(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected interval validation to fail for %+v", cfg)
		}
	}
}

func TestEnsureDeviceIDIsStable(t *testing.T) {
	cfg := Default()
	cfg.DataDir = t.TempDir()

	first, err := EnsureDeviceID(&cfg)
	if err != nil {
		t.Fatalf("EnsureDeviceID failed: %v", err)
	}
	if first == "" {
		t.Fatal("expected a generated device id")
	}

	cfg.DeviceID = ""
	second, err := EnsureDeviceID(&cfg)
	if err != nil {
		t.Fatalf("EnsureDeviceID failed: %v", err)
	}
	if second != first {
		t.Errorf("device id changed across restarts: %q vs %q", first, second)
	}
}

func TestEnsureDeviceIDHonorsOverride(t *testing.T) {
	cfg := Default()
	cfg.DataDir = t.TempDir()
	cfg.DeviceID = "device-42"

	id, err := EnsureDeviceID(&cfg)
	if err != nil {
		t.Fatalf("EnsureDeviceID failed: %v", err)
	}
	if id != "device-42" {
		t.Errorf("override ignored, got %q", id)
	}
	if _, err := os.Stat(filepath.Join(cfg.DataDir, deviceIDFile)); !os.IsNotExist(err) {
		t.Error("an override must not be persisted")
	}
}
