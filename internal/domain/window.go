package domain

type WindowID int64

// Window is one tracked browser window. The browser owns its lifecycle;
// the tracker only records membership and recency. Movable mirrors the
// host-reported window type: only normal windows accept corrective moves.
type Window struct {
	ID      WindowID
	Movable bool
	List    *RecencyList
}

// HostWindow is the browser's own view of a window, as returned by a host
// snapshot query.
type HostWindow struct {
	ID      WindowID
	Movable bool
	Tabs    []HostTab
}

// HostTab is one tab in host order. Active marks the tab the window
// currently shows.
type HostTab struct {
	ID     TabID
	Active bool
}

// TabIDs returns the window's tab ids in host order.
func (w HostWindow) TabIDs() []TabID {
	ids := make([]TabID, 0, len(w.Tabs))
	for _, t := range w.Tabs {
		ids = append(ids, t.ID)
	}
	return ids
}

// ActiveTab returns the active tab id, if the host reported one.
func (w HostWindow) ActiveTab() (TabID, bool) {
	for _, t := range w.Tabs {
		if t.Active {
			return t.ID, true
		}
	}
	return 0, false
}
