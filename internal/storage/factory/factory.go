// Package factory creates storage backends by name. Backends register
// themselves at init time, so importing this package is enough to make the
// built-in backends available.
package factory

import (
	"context"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/storage"
)

// BackendFactory is a function that opens a storage backend.
type BackendFactory func(ctx context.Context, cfg storage.Config) (storage.Storage, error)

// backendRegistry holds registered backend factories.
var backendRegistry = make(map[string]BackendFactory)

// RegisterBackend registers a storage backend factory.
func RegisterBackend(name string, factory BackendFactory) {
	backendRegistry[name] = factory
}

// Open creates a storage backend for the given configuration. An empty
// backend name selects sqlite.
func Open(ctx context.Context, cfg storage.Config) (storage.Storage, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = storage.BackendSQLite
	}
	if factory, ok := backendRegistry[backend]; ok {
		return factory(ctx, cfg)
	}
	return nil, status.InvalidArgumentf("unknown storage backend: %s (supported: sqlite, mysql, dolt)", backend)
}
