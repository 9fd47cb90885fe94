package service

import (
	"context"

	"github.com/godilite/surveydash/internal/state"
)

// SnapshotSource provides the current loaded table, reloading it first when
// the export directory changed.
type SnapshotSource interface {
	Current(ctx context.Context) (*state.Snapshot, error)
}
