package domain

import (
	"sort"
	"time"
)

type TabID int64

// Position selects where an insert lands logically. Tail is most recent,
// head is least recent; a head insert still shows up first in physical
// order so freshly opened background tabs render on top.
type Position int

const (
	PositionHead Position = iota
	PositionTail
)

type RecencyEntry struct {
	TabID TabID
	Order time.Time
}

// RecencyList tracks the tabs of one window ordered by use. Rank is always
// derived from the Order stamp, never from slice position. Not safe for
// concurrent use; the owning registry serializes access.
type RecencyList struct {
	entries []RecencyEntry
	now     func() time.Time
	last    time.Time
}

func NewRecencyList(now func() time.Time) *RecencyList {
	if now == nil {
		now = time.Now
	}
	return &RecencyList{now: now}
}

// stamp returns a strictly increasing timestamp so two mutations within the
// clock's resolution still rank deterministically.
func (l *RecencyList) stamp() time.Time {
	t := l.now()
	if !t.After(l.last) {
		t = l.last.Add(time.Nanosecond)
	}
	l.last = t
	return t
}

// Insert adds a tab. Tail means logically most recent, head logically least
// recent. Inserting an id already present is a no-op.
func (l *RecencyList) Insert(id TabID, pos Position) {
	if l.Contains(id) {
		return
	}

	entry := RecencyEntry{TabID: id, Order: l.stamp()}
	switch pos {
	case PositionHead:
		// Oldest stamp in the list, but physically first for display.
		entry.Order = l.oldestBefore()
		l.entries = append([]RecencyEntry{entry}, l.entries...)
	default:
		l.entries = append(l.entries, entry)
	}
}

// oldestBefore produces a stamp ranking below every existing entry.
func (l *RecencyList) oldestBefore() time.Time {
	if len(l.entries) == 0 {
		return l.stamp()
	}

	oldest := l.entries[0].Order
	for _, e := range l.entries[1:] {
		if e.Order.Before(oldest) {
			oldest = e.Order
		}
	}
	return oldest.Add(-time.Nanosecond)
}

func (l *RecencyList) Remove(id TabID) bool {
	for i, e := range l.entries {
		if e.TabID == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Touch promotes a tab to most recent, leaving its physical position alone.
func (l *RecencyList) Touch(id TabID) bool {
	for i, e := range l.entries {
		if e.TabID == id {
			l.entries[i].Order = l.stamp()
			return true
		}
	}
	return false
}

// ReplaceID rewrites a tab id in place, preserving its order stamp.
func (l *RecencyList) ReplaceID(oldID, newID TabID) bool {
	for i, e := range l.entries {
		if e.TabID == oldID {
			l.entries[i].TabID = newID
			return true
		}
	}
	return false
}

// MostRecentExcluding returns the highest-ranked tab that is not the
// excluded id. The second result is false when nothing else is tracked.
func (l *RecencyList) MostRecentExcluding(exclude TabID) (TabID, bool) {
	found := false
	var best RecencyEntry
	for _, e := range l.entries {
		if e.TabID == exclude {
			continue
		}
		if !found || e.Order.After(best.Order) {
			best = e
			found = true
		}
	}
	return best.TabID, found
}

func (l *RecencyList) MostRecent() (TabID, bool) {
	found := false
	var best RecencyEntry
	for _, e := range l.entries {
		if !found || e.Order.After(best.Order) {
			best = e
			found = true
		}
	}
	return best.TabID, found
}

// SecondMostRecent returns the flip target: the tab ranked directly under
// the current most recent one.
func (l *RecencyList) SecondMostRecent() (TabID, bool) {
	if len(l.entries) < 2 {
		return 0, false
	}

	ranked := l.Ranked()
	return ranked[1].TabID, true
}

func (l *RecencyList) Contains(id TabID) bool {
	for _, e := range l.entries {
		if e.TabID == id {
			return true
		}
	}
	return false
}

func (l *RecencyList) Len() int {
	return len(l.entries)
}

// IDs returns tab ids in physical order.
func (l *RecencyList) IDs() []TabID {
	ids := make([]TabID, 0, len(l.entries))
	for _, e := range l.entries {
		ids = append(ids, e.TabID)
	}
	return ids
}

// Entries returns a copy of the entries in physical order.
func (l *RecencyList) Entries() []RecencyEntry {
	entries := make([]RecencyEntry, len(l.entries))
	copy(entries, l.entries)
	return entries
}

// Ranked returns entries sorted most recent first.
func (l *RecencyList) Ranked() []RecencyEntry {
	ranked := make([]RecencyEntry, len(l.entries))
	copy(ranked, l.entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Order.After(ranked[j].Order)
	})
	return ranked
}

// Restore seeds the list from persisted entries, dropping duplicates and
// keeping the stamp guard ahead of every restored order.
func (l *RecencyList) Restore(entries []RecencyEntry) {
	seen := make(map[TabID]struct{}, len(entries))
	l.entries = l.entries[:0]
	for _, e := range entries {
		if _, ok := seen[e.TabID]; ok {
			continue
		}
		seen[e.TabID] = struct{}{}
		l.entries = append(l.entries, e)
		if e.Order.After(l.last) {
			l.last = e.Order
		}
	}
}
