package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/trellisml/trellis/internal/config"
	"github.com/trellisml/trellis/internal/debug"
	"github.com/trellisml/trellis/internal/lockfile"
	"github.com/trellisml/trellis/internal/store"
	"github.com/trellisml/trellis/internal/storage"
)

var (
	initUpgrade     bool
	initWriteConfig bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create or verify the metadata store",
	Long: `Create the metadata store schema and seed the built-in type catalog.

Safe to run against an existing store: the schema is verified rather
than recreated. An older schema is migrated forward only with
--upgrade; a store written by a newer trellis always fails.

Examples:
  trellis init                        # create or verify the default store
  trellis init --db ./pipelines.db    # explicit database path
  trellis init --upgrade              # migrate an older schema forward
  trellis init --write-config         # also write a starter trellis.yaml`,
	Run: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initUpgrade, "upgrade", false, "Migrate an older schema forward to the current version")
	initCmd.Flags().BoolVar(&initWriteConfig, "write-config", false, "Write a starter trellis.yaml in the working directory")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) {
	resolveDBPath()

	// An upgrade rewrites tables under the daemon's feet; refuse while one
	// holds the store.
	if initUpgrade {
		if running, pid := lockfile.TryDaemonLock(filepath.Dir(socketPath())); running {
			failf("a daemon (pid %d) is serving this database; stop it before upgrading", pid)
		}
	}

	s, err := store.Open(rootCtx, resolveStorageConfig(), nil)
	if err != nil {
		fail(err)
	}
	defer s.Close()

	if err := s.InitMetadataStoreIfNotExists(rootCtx, initUpgrade); err != nil {
		fail(err)
	}
	schemaVersion, err := s.GetSchemaVersion(rootCtx)
	if err != nil {
		fail(err)
	}

	if initWriteConfig {
		if err := writeStarterConfig(); err != nil {
			fail(err)
		}
	}

	if jsonOutput {
		outputJSON(map[string]interface{}{
			"database":       storeLocation(),
			"backend":        resolveStorageConfig().Backend,
			"schema_version": schemaVersion,
		})
		return
	}
	debug.PrintNormal("Initialized metadata store at %s (schema version %d)\n", storeLocation(), schemaVersion)
}

// storeLocation renders where the store lives, for messages.
func storeLocation() string {
	if backendName == storage.BackendMySQL {
		return fmt.Sprintf("mysql://%s:%d/%s",
			config.GetString(config.KeyMySQLHost),
			config.GetInt(config.KeyMySQLPort),
			config.GetString(config.KeyMySQLDatabase))
	}
	return dbPath
}

// writeStarterConfig writes ./trellis.yaml with the settings this run used.
// An existing file is never overwritten.
func writeStarterConfig() error {
	const path = "trellis.yaml"
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists; not overwriting", path)
	}
	fc := &config.FileConfig{
		Backend: resolveStorageConfig().Backend,
		DB:      dbPath,
	}
	if backendName == storage.BackendMySQL {
		fc.DB = ""
		fc.MySQL = &config.MySQLConfig{
			Host:     config.GetString(config.KeyMySQLHost),
			Port:     config.GetInt(config.KeyMySQLPort),
			Database: config.GetString(config.KeyMySQLDatabase),
			User:     config.GetString(config.KeyMySQLUser),
		}
	}
	if err := config.WriteFileConfig(path, fc); err != nil {
		return err
	}
	debug.PrintNormal("Wrote %s\n", path)
	return nil
}
