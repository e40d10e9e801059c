package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/akvo/akvo-flow-mobile-sub002/internal/uuid"
)

const deviceIDFile = "device_id"

// EnsureDeviceID resolves the device identity. A configured override
// wins; otherwise a generated id is persisted under the data dir so
// the device keeps the same identity across restarts.
func EnsureDeviceID(cfg *Config) (string, error) {
	if cfg.DeviceID != "" {
		return cfg.DeviceID, nil
	}

	path := filepath.Join(cfg.DataDir, deviceIDFile)
	if data, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(data))
		if uuid.IsValid(id) {
			cfg.DeviceID = id
			return id, nil
		}
	}

	id := uuid.New()
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}
	cfg.DeviceID = id
	return id, nil
}
