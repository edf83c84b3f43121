package factory

import (
	"context"

	"github.com/trellisml/trellis/internal/storage"
	"github.com/trellisml/trellis/internal/storage/mysql"
)

func init() {
	RegisterBackend(storage.BackendMySQL, func(ctx context.Context, cfg storage.Config) (storage.Storage, error) {
		return mysql.New(ctx, cfg)
	})
}
