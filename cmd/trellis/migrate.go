package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/trellisml/trellis/internal/debug"
	"github.com/trellisml/trellis/internal/lockfile"
	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/store"
	"github.com/trellisml/trellis/internal/ui"
)

var (
	migrateDowngradeTo int64
	migrateYes         bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Show or change the store's schema version",
	Long: `Report the schema version of the metadata store, or rewind it.

Forward migration happens through 'trellis init --upgrade'. Downgrading
with --downgrade-to drops the tables and columns added after the target
version, including the data they hold, and is meant for rolling back to
an older trellis release.

Examples:
  trellis migrate                      # show the current schema version
  trellis migrate --downgrade-to 7     # rewind the schema to version 7`,
	Run: runMigrate,
}

func init() {
	migrateCmd.Flags().Int64Var(&migrateDowngradeTo, "downgrade-to", -1, "Rewind the schema to this version (destructive)")
	migrateCmd.Flags().BoolVar(&migrateYes, "yes", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) {
	resolveDBPath()

	if running, pid := lockfile.TryDaemonLock(filepath.Dir(socketPath())); running {
		failf("a daemon (pid %d) is serving this database; stop it before migrating", pid)
	}

	if !cmd.Flags().Changed("downgrade-to") {
		showSchemaVersion()
		return
	}

	if migrateDowngradeTo < 0 {
		failf("--downgrade-to requires a schema version >= 0")
	}
	if !migrateYes && !confirmDowngrade(migrateDowngradeTo) {
		fmt.Fprintln(os.Stderr, "Aborted.")
		os.Exit(1)
	}

	// The store performs the downgrade during open, closes the backend, and
	// reports Cancelled: the downgraded schema needs an older trellis.
	opts := &store.MigrationOptions{DowngradeToSchemaVersion: &migrateDowngradeTo}
	_, err := store.Open(rootCtx, resolveStorageConfig(), opts)
	if err != nil && !status.IsCancelled(err) {
		fail(err)
	}

	if jsonOutput {
		outputJSON(map[string]interface{}{
			"schema_version": migrateDowngradeTo,
			"downgraded":     true,
		})
		return
	}
	debug.PrintNormal("Downgraded schema to version %d. Reconnect with a trellis release that speaks this version.\n", migrateDowngradeTo)
}

func showSchemaVersion() {
	s, err := store.Open(rootCtx, resolveStorageConfig(), nil)
	if err != nil {
		fail(err)
	}
	defer s.Close()

	v, err := s.GetSchemaVersion(rootCtx)
	if err != nil {
		fail(err)
	}
	if jsonOutput {
		outputJSON(map[string]int64{"schema_version": v})
		return
	}
	fmt.Printf("schema version %d\n", v)
}

func confirmDowngrade(to int64) bool {
	if !ui.IsTerminal() {
		failf("--downgrade-to is destructive; pass --yes to confirm")
	}

	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Downgrade schema to version %d?", to)).
			Description("Tables and columns added after that version are dropped, including their data.").
			Affirmative("Downgrade").
			Negative("Cancel").
			Value(&ok),
	))
	if err := form.Run(); err != nil {
		if err == huh.ErrUserAborted {
			return false
		}
		fail(err)
	}
	return ok
}
