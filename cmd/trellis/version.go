package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trellisml/trellis/internal/rpc"
)

// Version is the trellis version, overridden at build time with
// -ldflags "-X main.Version=x.y.z".
var Version = "0.3.0"

// Build is the build identifier (git SHA or "dev"), set via ldflags.
var Build = "dev"

var versionDaemon bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if jsonOutput {
			info := map[string]string{"version": Version, "build": Build}
			if versionDaemon {
				if st := daemonStatus(); st != nil {
					info["daemon_version"] = st.Version
				}
			}
			outputJSON(info)
			return
		}

		fmt.Printf("trellis version %s (%s)\n", Version, Build)
		if versionDaemon {
			if st := daemonStatus(); st != nil {
				fmt.Printf("daemon version %s (pid %d)\n", st.Version, st.PID)
			} else {
				fmt.Println("daemon not running")
			}
		}
	},
}

// daemonStatus probes the daemon without requiring one.
func daemonStatus() *rpc.StatusResult {
	resolveDBPath()
	client, err := rpc.TryConnect(socketPath())
	if err != nil || client == nil {
		return nil
	}
	defer client.Close()
	st, err := client.Status()
	if err != nil {
		return nil
	}
	return st
}

func init() {
	rpc.ClientVersion = Version

	versionCmd.Flags().BoolVar(&versionDaemon, "daemon", false, "Also report the running daemon's version")
	rootCmd.AddCommand(versionCmd)
}
