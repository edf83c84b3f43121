package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trellisml/trellis/internal/config"
	"github.com/trellisml/trellis/internal/debug"
	"github.com/trellisml/trellis/internal/rpc"
	"github.com/trellisml/trellis/internal/store"
	"github.com/trellisml/trellis/internal/storage"
)

// --------------------------------------------------------------------------
// Bootstrap pipeline for PersistentPreRun. Each function is one concern in
// the initialization sequence; main.go calls them in order.
// --------------------------------------------------------------------------

// initConfig loads the config file and environment bindings. A broken config
// file is fatal only when it was named explicitly with --config.
func initConfig() {
	if err := config.Initialize(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// applyConfigOverrides merges config values (file + env vars) into flags that
// weren't explicitly set on the command line.
// Priority: flags > env vars > config file > defaults.
func applyConfigOverrides(cmd *cobra.Command) {
	if !cmd.Flags().Changed("json") {
		jsonOutput = config.GetBool(config.KeyJSON)
	}
	if !cmd.Flags().Changed("no-daemon") {
		noDaemon = config.GetBool(config.KeyNoDaemon)
	}
	if !cmd.Flags().Changed("db") && dbPath == "" {
		dbPath = config.GetString(config.KeyDB)
	}
	if !cmd.Flags().Changed("backend") && backendName == "" {
		backendName = config.GetString(config.KeyBackend)
	}
	if !cmd.Flags().Changed("socket") && socketFlag == "" {
		socketFlag = config.GetString(config.KeySocket)
	}
	if !cmd.Flags().Changed("actor") && actor == "" {
		actor = config.GetString(config.KeyActor)
	}

	if verboseFlag && config.ConfigFileUsed() != "" {
		debug.SetVerbose(true)
		debug.Logf("config loaded from %s", config.ConfigFileUsed())
	}
}

// applyVerbosityFlags propagates --verbose and --quiet to the debug package
// so all subsequent output respects them.
func applyVerbosityFlags() {
	debug.SetVerbose(verboseFlag)
	debug.SetQuiet(quietFlag)
}

// setupSignalContext creates a context that cancels on SIGINT/SIGTERM for
// graceful shutdown of long-running operations.
func setupSignalContext() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// bridgeTelemetryEnv forwards the telemetry config keys to the environment
// variables the telemetry package reads. Explicit env vars win, so a config
// file cannot override an operator's TRELLIS_OTEL_ENABLED setting.
func bridgeTelemetryEnv() {
	if os.Getenv("TRELLIS_OTEL_ENABLED") == "" && config.GetBool(config.KeyTelemetryEnabled) {
		os.Setenv("TRELLIS_OTEL_ENABLED", "true")
	}
	if os.Getenv("TRELLIS_OTEL_STDOUT") == "" && config.GetBool(config.KeyTelemetryStdout) {
		os.Setenv("TRELLIS_OTEL_STDOUT", "true")
	}
}

// noStoreCommands lists commands that run without the shared store/daemon
// connection: either they need no database at all, or they manage their own
// store lifecycle (init, serve, migrate, daemon).
var noStoreCommands = []string{
	"__complete",
	"__completeNoDesc",
	"completion",
	"daemon",
	"help",
	"init",
	"migrate",
	"serve",
	"version",
}

// isNoStoreCommand reports whether the command (or its parent) runs without
// the shared store connection, or the root command was invoked bare.
func isNoStoreCommand(cmd *cobra.Command) bool {
	if cmd.Parent() != nil && slices.Contains(noStoreCommands, cmd.Parent().Name()) {
		return true
	}
	if slices.Contains(noStoreCommands, cmd.Name()) {
		return true
	}
	if cmd.Parent() == nil {
		return true
	}
	if v, _ := cmd.Flags().GetBool("version"); v {
		return true
	}
	return false
}

// setupActor resolves the actor identity recorded on daemon traces.
// Priority: --actor flag > config/env > $USER.
func setupActor() {
	if actor == "" {
		actor = os.Getenv("USER")
	}
}

// resolveDBPath fills in the default database path when neither the flag nor
// the config named one. MySQL needs no path.
func resolveDBPath() {
	if dbPath == "" && backendName != storage.BackendMySQL {
		dbPath = config.DefaultDBPath()
	}
}

// socketPath resolves the daemon socket: explicit flag or config, else
// derived from the database location.
func socketPath() string {
	if socketFlag != "" {
		return socketFlag
	}
	return config.SocketPath(dbPath)
}

// resolveStorageConfig builds the backend config from flags and config keys.
func resolveStorageConfig() storage.Config {
	cfg := storage.Config{Backend: backendName}
	switch backendName {
	case storage.BackendMySQL:
		cfg.Host = config.GetString(config.KeyMySQLHost)
		cfg.Port = config.GetInt(config.KeyMySQLPort)
		cfg.Database = config.GetString(config.KeyMySQLDatabase)
		cfg.User = config.GetString(config.KeyMySQLUser)
		cfg.Password = config.GetString(config.KeyMySQLPassword)
	case storage.BackendDolt:
		cfg.Path = dbPath
		cfg.CommitName = config.GetString(config.KeyDoltCommitName)
		cfg.CommitEmail = config.GetString(config.KeyDoltCommitEmail)
	default:
		cfg.Backend = storage.BackendSQLite
		cfg.Path = dbPath
	}
	return cfg
}

// connectStore picks the access path for store-backed commands: a running
// daemon when one answers on the socket, otherwise the database directly.
// Direct mode verifies the schema (creating it on first contact) so that
// every command sees an initialized store.
func connectStore() {
	resolveDBPath()

	if !noDaemon {
		client, err := rpc.TryConnect(socketPath())
		if err == nil && client != nil {
			client.SetActor(actor)
			daemonClient = client
			debug.Logf("using daemon at %s", socketPath())
			return
		}
	}

	s, err := store.Open(rootCtx, resolveStorageConfig(), nil)
	if err != nil {
		fail(err)
	}
	if err := s.InitMetadataStoreIfNotExists(rootCtx, false); err != nil {
		_ = s.Close()
		fail(err)
	}
	metaStore = s
	debug.Logf("direct mode: %s backend", backendName)
}
