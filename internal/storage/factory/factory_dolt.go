package factory

import (
	"context"

	"github.com/trellisml/trellis/internal/storage"
	"github.com/trellisml/trellis/internal/storage/dolt"
)

func init() {
	RegisterBackend(storage.BackendDolt, func(ctx context.Context, cfg storage.Config) (storage.Storage, error) {
		return dolt.New(ctx, cfg)
	})
}
