package ports

import (
	"context"

	"github.com/bnema/tabflow/internal/domain"
)

// SnapshotStore persists the registry image between runs. Load returns
// domain.ErrSnapshotNotFound when nothing usable is on disk and
// domain.ErrStaleSnapshot when the stored image is past the staleness bound.
type SnapshotStore interface {
	Save(ctx context.Context, snapshot domain.Snapshot) error
	Load(ctx context.Context) (domain.Snapshot, error)
}
