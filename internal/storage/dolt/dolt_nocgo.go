//go:build !cgo

package dolt

import (
	"context"
	"fmt"

	"github.com/trellisml/trellis/internal/storage"
)

var errNoCGO = fmt.Errorf("dolt: this binary was built without CGO support; rebuild with CGO_ENABLED=1")

// New fails in non-CGO builds: the embedded Dolt engine needs cgo. To use
// Dolt without cgo, run a dolt sql-server and connect through the mysql
// backend.
func New(_ context.Context, _ storage.Config) (storage.Storage, error) {
	return nil, errNoCGO
}
