package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/trellisml/trellis/internal/debug"
	"github.com/trellisml/trellis/internal/lockfile"
	"github.com/trellisml/trellis/internal/rpc"
	"github.com/trellisml/trellis/internal/store"
	"github.com/trellisml/trellis/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the trellis daemon",
	Long: `Serve the metadata store over the daemon socket.

The daemon owns the database for its lifetime; other trellis commands
find it through the socket and route operations to it instead of
opening the database themselves. Runs in the foreground until SIGINT,
SIGTERM, or a shutdown request; use your process manager to daemonize.

Examples:
  trellis serve                          # serve the default store
  trellis serve --db ./pipelines.db      # explicit database
  trellis serve --socket /tmp/t.sock     # explicit socket path`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	resolveDBPath()
	sock := socketPath()
	cfg := resolveStorageConfig()

	// One daemon per store. The lock lives next to the socket so client
	// probes and the daemon agree on its location.
	lock, err := lockfile.Acquire(filepath.Dir(sock), &lockfile.LockInfo{
		Database:   storeLocation(),
		Backend:    cfg.Backend,
		SocketPath: sock,
		Version:    Version,
	})
	if err != nil {
		fail(err)
	}
	defer lock.Release()

	if err := telemetry.Init(rootCtx, "trellis-daemon", Version); err != nil {
		debug.Logf("telemetry init failed: %v", err)
	}
	defer telemetry.Shutdown(context.Background())

	s, err := store.Open(rootCtx, cfg, nil)
	if err != nil {
		fail(err)
	}
	if err := s.InitMetadataStoreIfNotExists(rootCtx, false); err != nil {
		_ = s.Close()
		fail(err)
	}

	// The server owns the store from here; Stop closes it.
	server := rpc.NewServer(s, sock)
	server.SetInfo(Version, cfg.Backend, storeLocation())

	serveCtx, serveCancel := context.WithCancel(rootCtx)
	defer serveCancel()

	var g errgroup.Group
	g.Go(func() error {
		defer serveCancel()
		return server.Start(serveCtx)
	})
	g.Go(func() error {
		// Fires on SIGINT/SIGTERM, and after Start returns for any reason
		// (including a shutdown request over the socket).
		<-serveCtx.Done()
		return server.Stop()
	})

	select {
	case <-server.WaitReady():
		debug.PrintNormal("trellis daemon listening on %s (pid %d)\n", sock, os.Getpid())
	case <-serveCtx.Done():
	}

	if err := g.Wait(); err != nil {
		fail(err)
	}
	debug.PrintNormal("trellis daemon stopped\n")
}
