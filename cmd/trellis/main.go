package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trellisml/trellis/internal/config"
	"github.com/trellisml/trellis/internal/rpc"
	"github.com/trellisml/trellis/internal/store"
)

var (
	cfgFile     string
	dbPath      string
	backendName string
	socketFlag  string
	actor       string
	jsonOutput  bool
	noDaemon    bool
	verboseFlag bool
	quietFlag   bool

	// Signal-aware context for graceful cancellation.
	rootCtx    context.Context
	rootCancel context.CancelFunc

	// Exactly one of these is live for store-backed commands: daemonClient
	// when a daemon answers on the socket, metaStore for direct access.
	daemonClient *rpc.Client
	metaStore    *store.Store
)

var rootCmd = &cobra.Command{
	Use:   "trellis",
	Short: "trellis - ML pipeline metadata store",
	Long: `Record and query the metadata of ML pipelines: typed artifacts,
executions, and contexts, the events linking them, and the lineage
graph they form.

Commands talk to a running trellis daemon when one is serving the
database, and fall back to opening the database directly otherwise.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("trellis version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initConfig()
		applyConfigOverrides(cmd)
		applyVerbosityFlags()
		setupSignalContext()
		bridgeTelemetryEnv()

		if isNoStoreCommand(cmd) {
			return
		}

		setupActor()
		connectStore()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if daemonClient != nil {
			_ = daemonClient.Close()
			daemonClient = nil
		}
		if metaStore != nil {
			_ = metaStore.Close()
			metaStore = nil
		}
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./trellis.yaml, then ~/.config/trellis/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: "+config.DefaultDBPath()+")")
	rootCmd.PersistentFlags().StringVar(&backendName, "backend", "", "Storage backend: sqlite, mysql, or dolt (default: sqlite)")
	rootCmd.PersistentFlags().StringVar(&socketFlag, "socket", "", "Daemon socket path (default: next to the database)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Actor name recorded on daemon traces (default: $TRELLIS_ACTOR, $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noDaemon, "no-daemon", false, "Skip the daemon and open the database directly")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
