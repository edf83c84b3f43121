// Package config resolves trellis settings from config files, environment
// variables, and built-in defaults.
//
// Precedence, highest first: values set explicitly (command-line flags merged
// by the CLI), TRELLIS_* environment variables, the config file, defaults.
// The config file is the first of ./trellis.yaml and
// ~/.config/trellis/config.yaml that exists, unless an explicit path is given.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Keys recognized across the CLI and daemon. Nested keys map to TRELLIS_*
// environment variables with dots and dashes replaced by underscores, e.g.
// mysql.port becomes TRELLIS_MYSQL_PORT.
const (
	KeyBackend  = "backend"
	KeyDB       = "db"
	KeySocket   = "socket"
	KeyActor    = "actor"
	KeyJSON     = "json"
	KeyNoDaemon = "no-daemon"

	KeyMySQLHost     = "mysql.host"
	KeyMySQLPort     = "mysql.port"
	KeyMySQLDatabase = "mysql.database"
	KeyMySQLUser     = "mysql.user"
	KeyMySQLPassword = "mysql.password"

	KeyDoltCommitName  = "dolt.commit-name"
	KeyDoltCommitEmail = "dolt.commit-email"

	KeyTelemetryEnabled = "telemetry.enabled"
	KeyTelemetryStdout  = "telemetry.stdout"
)

// v is the process-wide viper instance. It is nil until Initialize runs;
// all getters tolerate that so early-boot code can call them safely.
var v *viper.Viper

// Initialize loads configuration into the package singleton. cfgFile, when
// non-empty, names the config file to read and a missing or unparsable file
// is an error. When empty the standard locations are searched and a missing
// file is fine: env vars and defaults still apply.
func Initialize(cfgFile string) error {
	nv := viper.New()
	nv.SetConfigType("yaml")
	registerDefaults(nv)

	nv.SetEnvPrefix("TRELLIS")
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	nv.AutomaticEnv()

	path := cfgFile
	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		nv.SetConfigFile(path)
		if err := nv.ReadInConfig(); err != nil {
			if cfgFile != "" || !os.IsNotExist(err) {
				return fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	v = nv
	return nil
}

// findConfigFile returns the first config file found in the standard
// locations, or "" when none exists.
func findConfigFile() string {
	if _, err := os.Stat("trellis.yaml"); err == nil {
		return "trellis.yaml"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(home, ".config", "trellis", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

func registerDefaults(nv *viper.Viper) {
	nv.SetDefault(KeyBackend, "sqlite")
	nv.SetDefault(KeyDB, "")
	nv.SetDefault(KeySocket, "")
	nv.SetDefault(KeyActor, "")
	nv.SetDefault(KeyJSON, false)
	nv.SetDefault(KeyNoDaemon, false)

	nv.SetDefault(KeyMySQLHost, "127.0.0.1")
	nv.SetDefault(KeyMySQLPort, 3306)
	nv.SetDefault(KeyMySQLDatabase, "trellis")
	nv.SetDefault(KeyMySQLUser, "root")
	nv.SetDefault(KeyMySQLPassword, "")

	nv.SetDefault(KeyDoltCommitName, "trellis")
	nv.SetDefault(KeyDoltCommitEmail, "trellis@localhost")

	nv.SetDefault(KeyTelemetryEnabled, false)
	nv.SetDefault(KeyTelemetryStdout, false)
}

// GetString returns the string value for key, or "" before Initialize.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool returns the boolean value for key, or false before Initialize.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt returns the integer value for key, or 0 before Initialize.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration returns the duration value for key, or 0 before Initialize.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set records an explicit value for key. Explicit values outrank the config
// file and environment, which is how flag overrides are applied. No-op
// before Initialize.
func Set(key string, value interface{}) {
	if v == nil {
		return
	}
	v.Set(key, value)
}

// AllSettings returns the merged view of every known key.
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}

// ConfigFileUsed reports the config file Initialize read, or "" when the
// process is running on env vars and defaults alone.
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// DefaultDataDir returns the directory trellis uses for its database, daemon
// socket, and lock files when no explicit paths are configured.
func DefaultDataDir() string {
	if dir := os.Getenv("TRELLIS_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".trellis"
	}
	return filepath.Join(home, ".trellis")
}

// DefaultDBPath returns the sqlite database path used when none is
// configured.
func DefaultDBPath() string {
	return filepath.Join(DefaultDataDir(), "trellis.db")
}

// SocketPath resolves the daemon socket path. An explicit socket setting
// wins; otherwise the socket sits next to the database so each data
// directory gets its own daemon. For non-file backends the socket falls
// back to the default data dir.
func SocketPath(dbPath string) string {
	if s := GetString(KeySocket); s != "" {
		return s
	}
	if dbPath != "" && dbPath != ":memory:" {
		return filepath.Join(filepath.Dir(dbPath), "trellis.sock")
	}
	return filepath.Join(DefaultDataDir(), "trellis.sock")
}
