// Package sqlite opens SQLite-backed metadata stores.
//
// SQLite is the zero-setup backend: the database is a single file (or a
// process-private in-memory database for tests), and the driver is pure Go,
// compiled from WASM by wazero.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/storage/rdbms"
)

// setupWASMCache points go-sqlite3's wazero runtime at a persistent
// compilation cache so the embedded SQLite build is compiled once per
// machine instead of once per process (~200ms saved on every startup).
// Falls back to an in-memory cache when the cache directory cannot be
// created.
func setupWASMCache() string {
	cacheDir := ""
	if userCache, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(userCache, "trellis", "wasm")
	}

	var cache wazero.CompilationCache
	if cacheDir != "" {
		if c, err := wazero.NewCompilationCacheWithDir(cacheDir); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
		cacheDir = ""
	}

	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
	return cacheDir
}

func init() {
	_ = setupWASMCache()
}

// memDBSeq names in-memory databases uniquely so independent stores in one
// process (tests, mostly) never share state through the shared cache.
var memDBSeq atomic.Int64

// New opens the SQLite database at path. The path ":memory:" opens a fresh
// process-private database; a "file:" URI is passed through with the
// standard pragmas appended. New does not create the schema; callers run
// InitMetadataSource or InitMetadataSourceIfNotExists on the returned store.
func New(ctx context.Context, path string) (*rdbms.Store, error) {
	if path == "" {
		return nil, status.InvalidArgumentf("sqlite: database path is required")
	}

	var connStr string
	isInMemory := path == ":memory:" ||
		(strings.HasPrefix(path, "file:") && strings.Contains(path, "mode=memory"))
	switch {
	case path == ":memory:":
		// A named shared-cache database keeps the data alive across pool
		// connections; the sequence number isolates stores from each other.
		// WAL does not work in memory, so journal_mode stays DELETE.
		connStr = fmt.Sprintf(
			"file:memdb%d?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)",
			memDBSeq.Add(1))
	case strings.HasPrefix(path, "file:"):
		connStr = path
		if !strings.Contains(path, "_pragma=foreign_keys") {
			connStr += "&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)"
		}
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("sqlite: create database directory: %w", err)
		}
		connStr = "file:" + path + "?_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	if isInMemory {
		// In-memory databases vanish when their last connection closes.
		// Pin the pool to one connection so the data survives and every
		// caller sees the same database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		// WAL supports one writer and many readers. Cap the pool so write
		// contention queues in the driver instead of piling up goroutines.
		db.SetMaxOpenConns(runtime.NumCPU() + 1)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(0)
	}

	if !isInMemory {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL mode: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", path, err)
	}

	return rdbms.NewStore(db, rdbms.SQLiteDialect()), nil
}
