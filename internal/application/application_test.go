package application

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bnema/tabflow/internal/domain"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeHost scripts the browser boundary. Corrective calls are recorded so
// tests can assert what the tracker tried to do to the browser.
type fakeHost struct {
	mu      sync.Mutex
	windows map[domain.WindowID]domain.HostWindow

	activated   []domain.TabID
	moved       []moveCall
	activateErr []error // consumed per call, nil entries mean success
	windowsErr  error
}

type moveCall struct {
	tab   domain.TabID
	index int
}

func newFakeHost(windows ...domain.HostWindow) *fakeHost {
	h := &fakeHost{windows: map[domain.WindowID]domain.HostWindow{}}
	for _, w := range windows {
		h.windows[w.ID] = w
	}
	return h
}

func (h *fakeHost) Windows(_ context.Context) ([]domain.HostWindow, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.windowsErr != nil {
		return nil, h.windowsErr
	}

	out := make([]domain.HostWindow, 0, len(h.windows))
	for _, w := range h.windows {
		out = append(out, w)
	}
	return out, nil
}

func (h *fakeHost) Window(_ context.Context, id domain.WindowID) (domain.HostWindow, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	w, ok := h.windows[id]
	if !ok {
		return domain.HostWindow{}, domain.ErrWindowNotFound
	}
	return w, nil
}

func (h *fakeHost) Activate(_ context.Context, id domain.TabID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.activateErr) > 0 {
		err := h.activateErr[0]
		h.activateErr = h.activateErr[1:]
		if err != nil {
			return err
		}
	}

	h.activated = append(h.activated, id)
	return nil
}

func (h *fakeHost) Move(_ context.Context, id domain.TabID, index int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.moved = append(h.moved, moveCall{tab: id, index: index})
	return nil
}

func (h *fakeHost) setWindow(w domain.HostWindow) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.windows[w.ID] = w
}

func (h *fakeHost) removeWindow(id domain.WindowID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.windows, id)
}

func (h *fakeHost) activations() []domain.TabID {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.TabID, len(h.activated))
	copy(out, h.activated)
	return out
}

func (h *fakeHost) moves() []moveCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]moveCall, len(h.moved))
	copy(out, h.moved)
	return out
}

type fakeStore struct {
	mu       sync.Mutex
	saved    []domain.Snapshot
	loadSnap domain.Snapshot
	loadErr  error
	saveErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{loadErr: domain.ErrSnapshotNotFound}
}

func (s *fakeStore) Save(_ context.Context, snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, snap)
	return nil
}

func (s *fakeStore) Load(_ context.Context) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return domain.Snapshot{}, s.loadErr
	}
	return s.loadSnap, nil
}

func (s *fakeStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func (s *fakeStore) lastSaved() (domain.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return domain.Snapshot{}, false
	}
	return s.saved[len(s.saved)-1], true
}

type fakeSettings struct {
	mu  sync.Mutex
	cfg domain.Settings
}

func newFakeSettings(cfg domain.Settings) *fakeSettings {
	return &fakeSettings{cfg: cfg}
}

func (f *fakeSettings) Current(_ context.Context) (domain.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg, nil
}

func (f *fakeSettings) set(cfg domain.Settings) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
}

type trackerFixture struct {
	tracker    *Tracker
	registry   *Registry
	suppressor *Suppressor
	recon      *Reconciler
	host       *fakeHost
	store      *fakeStore
	settings   *fakeSettings
	clock      *fixedClock
}

func newTrackerFixture(cfg domain.Settings, windows ...domain.HostWindow) *trackerFixture {
	clock := newFixedClock()
	host := newFakeHost(windows...)
	store := newFakeStore()
	settings := newFakeSettings(cfg)
	registry := NewRegistry(clock)
	suppressor := NewSuppressor()
	mu := &sync.Mutex{}
	recon := NewReconciler(mu, registry, host, store, clock, DefaultDormancyGap, zap.NewNop())
	tracker := NewTracker(mu, registry, suppressor, host, store, settings, NewRetrier(zap.NewNop()), recon, zap.NewNop())

	return &trackerFixture{
		tracker:    tracker,
		registry:   registry,
		suppressor: suppressor,
		recon:      recon,
		host:       host,
		store:      store,
		settings:   settings,
		clock:      clock,
	}
}

func rankedOf(win *domain.Window) []domain.TabID {
	ranked := win.List.Ranked()
	ids := make([]domain.TabID, 0, len(ranked))
	for _, e := range ranked {
		ids = append(ids, e.TabID)
	}
	return ids
}
