package ports

import (
	"context"

	"gospatial/domain/moments"
)

// SnapshotWriter writes the full output of one sweep to a single file
type SnapshotWriter interface {
	Write(ctx context.Context, snap *moments.Snapshot, path string) error
}
