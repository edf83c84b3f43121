package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchStore re-runs display whenever the database file changes, debounced so
// a burst of writes repaints once. Blocks until interrupted. Only works for a
// file-backed store; the daemon and direct modes both write through the same
// file, so either is watchable.
func watchStore(display func() error) {
	if dbPath == "" || dbPath == ":memory:" {
		failf("--watch requires a file-backed database")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		failf("creating watcher: %v", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory, not the file: sqlite swaps WAL files around and
	// per-file watches break on rename.
	if err := watcher.Add(filepath.Dir(dbPath)); err != nil {
		failf("watching %s: %v", filepath.Dir(dbPath), err)
	}

	fmt.Fprintf(os.Stderr, "\nWatching for changes... (Press Ctrl+C to exit)\n")

	var debounceTimer *time.Timer
	debounceDelay := 500 * time.Millisecond
	base := filepath.Base(dbPath)

	for {
		select {
		case <-rootCtx.Done():
			fmt.Fprintf(os.Stderr, "\nStopped watching.\n")
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) {
				continue
			}
			// The database file itself, or its -wal/-shm companions.
			name := filepath.Base(event.Name)
			if name != base && !strings.HasPrefix(name, base+"-") {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, func() {
				if err := display(); err != nil {
					fmt.Fprintf(os.Stderr, "Error refreshing: %v\n", err)
					return
				}
				fmt.Fprintf(os.Stderr, "\nWatching for changes... (Press Ctrl+C to exit)\n")
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			fmt.Fprintf(os.Stderr, "Watcher error: %v\n", err)
		}
	}
}
