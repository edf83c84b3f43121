package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of a trellis config file. It mirrors the
// keys the viper singleton resolves, so a file written here reads back
// identically through Initialize.
type FileConfig struct {
	Backend string `yaml:"backend,omitempty"`
	DB      string `yaml:"db,omitempty"`
	Socket  string `yaml:"socket,omitempty"`
	Actor   string `yaml:"actor,omitempty"`

	MySQL     *MySQLConfig     `yaml:"mysql,omitempty"`
	Dolt      *DoltConfig      `yaml:"dolt,omitempty"`
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// MySQLConfig holds connection settings for the mysql backend.
type MySQLConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Database string `yaml:"database,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// DoltConfig holds the commit identity recorded on dolt versioned writes.
type DoltConfig struct {
	CommitName  string `yaml:"commit-name,omitempty"`
	CommitEmail string `yaml:"commit-email,omitempty"`
}

// TelemetryConfig toggles OpenTelemetry export.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
	Stdout  bool `yaml:"stdout,omitempty"`
}

// LoadFileConfig reads a config file directly, bypassing the viper
// singleton. Useful before Initialize runs or when inspecting a file other
// than the one the process loaded. Returns an empty FileConfig (not nil)
// when the file is missing or unparsable.
func LoadFileConfig(path string) *FileConfig {
	data, err := os.ReadFile(path) // #nosec G304 - config file path from caller
	if err != nil {
		return &FileConfig{}
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return &FileConfig{}
	}

	return &cfg
}

// WriteFileConfig writes cfg to path, creating parent directories as needed.
func WriteFileConfig(path string, cfg *FileConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
