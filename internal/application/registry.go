package application

import (
	"sort"

	"github.com/bnema/tabflow/internal/domain"
	"github.com/bnema/tabflow/internal/ports"
)

// Registry owns every tracked window and its recency list. It carries no
// lock of its own: the tracker and the reconciler serialize access through
// the single shared mutation mutex, and nothing else holds a reference into
// a list beyond one handler turn.
type Registry struct {
	windows map[domain.WindowID]*domain.Window
	clock   ports.Clock
}

func NewRegistry(clock ports.Clock) *Registry {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &Registry{
		windows: map[domain.WindowID]*domain.Window{},
		clock:   clock,
	}
}

// Register builds a fresh window from a host report. Non-active tabs are
// head-inserted so the active tab ends up ranked most recent, matching what
// the user sees.
func (r *Registry) Register(id domain.WindowID, movable bool, tabs []domain.HostTab) *domain.Window {
	list := domain.NewRecencyList(r.clock.Now)
	for _, tab := range tabs {
		if tab.Active {
			continue
		}
		list.Insert(tab.ID, domain.PositionHead)
	}
	for _, tab := range tabs {
		if tab.Active {
			list.Insert(tab.ID, domain.PositionTail)
		}
	}

	win := &domain.Window{ID: id, Movable: movable, List: list}
	r.windows[id] = win
	return win
}

func (r *Registry) Get(id domain.WindowID) (*domain.Window, bool) {
	win, ok := r.windows[id]
	return win, ok
}

func (r *Registry) Unregister(id domain.WindowID) bool {
	if _, ok := r.windows[id]; !ok {
		return false
	}
	delete(r.windows, id)
	return true
}

// FindTab scans all windows for the tab. Linear, but windows hold at most
// tens of tabs.
func (r *Registry) FindTab(id domain.TabID) (*domain.Window, bool) {
	for _, win := range r.windows {
		if win.List.Contains(id) {
			return win, true
		}
	}
	return nil, false
}

// Windows returns tracked windows sorted by id.
func (r *Registry) Windows() []*domain.Window {
	wins := make([]*domain.Window, 0, len(r.windows))
	for _, win := range r.windows {
		wins = append(wins, win)
	}
	sort.Slice(wins, func(i, j int) bool { return wins[i].ID < wins[j].ID })
	return wins
}

func (r *Registry) Len() int {
	return len(r.windows)
}

func (r *Registry) Clear() {
	r.windows = map[domain.WindowID]*domain.Window{}
}

// Snapshot captures the registry for persistence, preserving physical
// entry order and order stamps.
func (r *Registry) Snapshot() domain.Snapshot {
	snap := domain.Snapshot{
		Timestamp:     r.clock.Now(),
		SchemaVersion: domain.SnapshotSchemaVersion,
	}

	for _, win := range r.Windows() {
		ws := domain.WindowSnapshot{WindowID: win.ID, Movable: win.Movable}
		for _, e := range win.List.Entries() {
			ws.Tabs = append(ws.Tabs, domain.TabSnapshot{TabID: e.TabID, Order: e.Order})
		}
		snap.Windows = append(snap.Windows, ws)
	}

	return snap
}

// RestoreFrom rebuilds the registry from a persisted snapshot, replacing
// whatever is currently tracked.
func (r *Registry) RestoreFrom(snap domain.Snapshot) {
	r.Clear()
	for _, ws := range snap.Windows {
		list := domain.NewRecencyList(r.clock.Now)
		entries := make([]domain.RecencyEntry, 0, len(ws.Tabs))
		for _, t := range ws.Tabs {
			entries = append(entries, domain.RecencyEntry{TabID: t.TabID, Order: t.Order})
		}
		list.Restore(entries)
		r.windows[ws.WindowID] = &domain.Window{ID: ws.WindowID, Movable: ws.Movable, List: list}
	}
}
