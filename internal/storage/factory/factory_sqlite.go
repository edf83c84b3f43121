package factory

import (
	"context"

	"github.com/trellisml/trellis/internal/storage"
	"github.com/trellisml/trellis/internal/storage/sqlite"
)

func init() {
	RegisterBackend(storage.BackendSQLite, func(ctx context.Context, cfg storage.Config) (storage.Storage, error) {
		return sqlite.New(ctx, cfg.Path)
	})
}
