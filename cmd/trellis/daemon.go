package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trellisml/trellis/internal/rpc"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Inspect or stop the trellis daemon",
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether a daemon is serving the store",
	Run: func(cmd *cobra.Command, args []string) {
		st := daemonStatus()
		if st == nil {
			if jsonOutput {
				outputJSON(map[string]bool{"running": false})
			} else {
				fmt.Println("daemon not running")
			}
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"running": true,
				"status":  st,
			})
			return
		}
		fmt.Printf("daemon running (pid %d)\n", st.PID)
		fmt.Printf("  version:        %s\n", st.Version)
		fmt.Printf("  backend:        %s\n", st.Backend)
		fmt.Printf("  database:       %s\n", st.Database)
		fmt.Printf("  socket:         %s\n", st.SocketPath)
		fmt.Printf("  schema version: %d\n", st.SchemaVersion)
		fmt.Printf("  uptime:         %s\n", formatUptime(st.UptimeSeconds))
		fmt.Printf("  connections:    %d\n", st.ActiveConns)
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask the running daemon to shut down",
	Run: func(cmd *cobra.Command, args []string) {
		resolveDBPath()
		client, err := rpc.TryConnect(socketPath())
		if err != nil || client == nil {
			if jsonOutput {
				outputJSON(map[string]bool{"running": false})
			} else {
				fmt.Println("daemon not running")
			}
			return
		}
		defer client.Close()

		if err := client.Shutdown(); err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"status": "stopped"})
			return
		}
		fmt.Println("daemon stopped")
	},
}

func init() {
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	rootCmd.AddCommand(daemonCmd)
}

func formatUptime(seconds float64) string {
	if seconds < 60 {
		return fmt.Sprintf("%.1f seconds", seconds)
	}
	if seconds < 3600 {
		minutes := int(seconds / 60)
		secs := int(seconds) % 60
		return fmt.Sprintf("%dm %ds", minutes, secs)
	}
	if seconds < 86400 {
		hours := int(seconds / 3600)
		minutes := int(seconds/60) % 60
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	days := int(seconds / 86400)
	hours := int(seconds/3600) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
