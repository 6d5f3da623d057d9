package domain

import (
	"fmt"
	"time"
)

// SnapshotMaxAge bounds how old a persisted snapshot may be before load
// discards it instead of trusting it.
const SnapshotMaxAge = 24 * time.Hour

const SnapshotSchemaVersion = 1

// Snapshot is the durable image of the window registry.
type Snapshot struct {
	Windows       []WindowSnapshot
	Timestamp     time.Time
	SchemaVersion int
}

type WindowSnapshot struct {
	WindowID WindowID
	Movable  bool
	Tabs     []TabSnapshot
}

type TabSnapshot struct {
	TabID TabID
	Order time.Time
}

// Validate rejects snapshots that violate the per-window uniqueness
// invariant.
func (s Snapshot) Validate() error {
	for _, w := range s.Windows {
		seen := make(map[TabID]struct{}, len(w.Tabs))
		for _, t := range w.Tabs {
			if _, ok := seen[t.TabID]; ok {
				return fmt.Errorf("window %d: duplicate tab id %d", w.WindowID, t.TabID)
			}
			seen[t.TabID] = struct{}{}
		}
	}
	return nil
}

// Stale reports whether the snapshot is too old to trust at the given time.
func (s Snapshot) Stale(now time.Time) bool {
	return now.Sub(s.Timestamp) > SnapshotMaxAge
}
