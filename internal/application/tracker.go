package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/bnema/tabflow/internal/domain"
	"github.com/bnema/tabflow/internal/ports"
)

// Tracker is the event-handling state machine. Every host event passes
// through Dispatch, which serializes all registry mutation behind one
// process-wide lock and isolates handler failures so the next event is
// always processed.
type Tracker struct {
	mu         *sync.Mutex
	registry   *Registry
	suppressor *Suppressor
	host       ports.Host
	store      ports.SnapshotStore
	settings   ports.SettingsSource
	retrier    *Retrier
	recon      *Reconciler
	log        *zap.Logger
}

func NewTracker(mu *sync.Mutex, registry *Registry, suppressor *Suppressor, host ports.Host, store ports.SnapshotStore, settings ports.SettingsSource, retrier *Retrier, recon *Reconciler, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}

	return &Tracker{
		mu:         mu,
		registry:   registry,
		suppressor: suppressor,
		host:       host,
		store:      store,
		settings:   settings,
		retrier:    retrier,
		recon:      recon,
		log:        log,
	}
}

// Bootstrap seeds the registry at startup. A persisted snapshot is trusted
// only when its window and tab sets agree with the live host; anything else
// rebuilds fresh from the host's current truth.
func (t *Tracker) Bootstrap(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	hostWindows, err := t.host.Windows(ctx)
	if err != nil {
		return fmt.Errorf("query host windows: %w", err)
	}

	snap, err := t.store.Load(ctx)
	switch {
	case err == nil && snapshotMatchesHost(snap, hostWindows):
		t.registry.RestoreFrom(snap)
		t.log.Info("restored registry from snapshot",
			zap.Int("windows", t.registry.Len()))
	case err == nil:
		t.log.Info("snapshot disagrees with live host, rebuilding")
		t.registerAll(hostWindows)
	case errors.Is(err, domain.ErrSnapshotNotFound), errors.Is(err, domain.ErrStaleSnapshot):
		t.log.Info("no usable snapshot, building fresh state", zap.Error(err))
		t.registerAll(hostWindows)
	default:
		t.log.Warn("snapshot load failed, building fresh state", zap.Error(err))
		t.registerAll(hostWindows)
	}

	t.persist(ctx)
	return nil
}

func (t *Tracker) registerAll(hostWindows []domain.HostWindow) {
	t.registry.Clear()
	for _, hw := range hostWindows {
		t.registry.Register(hw.ID, hw.Movable, hw.Tabs)
	}
}

// snapshotMatchesHost compares window ids and per-window tab id sets. Any
// disagreement discards the snapshot wholesale; there is no partial trust.
func snapshotMatchesHost(snap domain.Snapshot, hostWindows []domain.HostWindow) bool {
	if snap.Validate() != nil {
		return false
	}
	if len(snap.Windows) != len(hostWindows) {
		return false
	}

	byID := make(map[domain.WindowID]domain.WindowSnapshot, len(snap.Windows))
	for _, ws := range snap.Windows {
		byID[ws.WindowID] = ws
	}

	for _, hw := range hostWindows {
		ws, ok := byID[hw.ID]
		if !ok || len(ws.Tabs) != len(hw.Tabs) {
			return false
		}
		tracked := make(map[domain.TabID]struct{}, len(ws.Tabs))
		for _, tab := range ws.Tabs {
			tracked[tab.TabID] = struct{}{}
		}
		for _, tab := range hw.Tabs {
			if _, ok := tracked[tab.ID]; !ok {
				return false
			}
		}
	}

	return true
}

// Dispatch routes one event to its handler under the mutation lock. Handler
// errors are logged, never propagated: a bad event must not stall the
// stream.
func (t *Tracker) Dispatch(ctx context.Context, ev domain.Event) {
	t.recon.NoteAlive()

	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	switch e := ev.(type) {
	case domain.WindowCreated:
		err = t.handleWindowCreated(ctx, e)
	case domain.WindowRemoved:
		err = t.handleWindowRemoved(ctx, e)
	case domain.TabCreated:
		err = t.handleTabCreated(ctx, e)
	case domain.TabRemoved:
		err = t.handleTabRemoved(ctx, e)
	case domain.TabActivated:
		err = t.handleTabActivated(ctx, e)
	case domain.TabAttached:
		err = t.handleTabAttached(ctx, e)
	case domain.TabDetached:
		err = t.handleTabDetached(ctx, e)
	case domain.TabReplaced:
		err = t.handleTabReplaced(ctx, e)
	case domain.FlipRequested:
		err = t.handleFlip(ctx, e)
	case domain.Resumed:
		err = t.handleResumed(ctx)
	default:
		t.log.Warn("unknown event kind dropped")
		return
	}

	if err != nil {
		t.log.Warn("event dropped", zap.Error(err))
	}
}

func (t *Tracker) handleWindowCreated(ctx context.Context, ev domain.WindowCreated) error {
	hw, err := t.host.Window(ctx, ev.WindowID)
	if err != nil {
		return fmt.Errorf("query created window %d: %w", ev.WindowID, err)
	}

	t.registry.Register(hw.ID, hw.Movable, hw.Tabs)
	t.persist(ctx)
	return nil
}

func (t *Tracker) handleWindowRemoved(ctx context.Context, ev domain.WindowRemoved) error {
	if !t.registry.Unregister(ev.WindowID) {
		return nil
	}
	t.persist(ctx)
	return nil
}

func (t *Tracker) handleTabCreated(ctx context.Context, ev domain.TabCreated) error {
	cfg := t.currentSettings(ctx)

	win, ok := t.windowWithResync(ctx, ev.WindowID)
	if !ok {
		return fmt.Errorf("tab %d created: %w", ev.TabID, domain.ErrWindowNotFound)
	}

	if cfg.NewTabSelect {
		win.List.Insert(ev.TabID, domain.PositionTail)
		t.activate(ctx, ev.TabID)
	} else {
		// Track it, but keep it logically least recent: the browser's own
		// default selection is untouched.
		win.List.Insert(ev.TabID, domain.PositionHead)
	}

	if cfg.Relocate && win.Movable {
		id := ev.TabID
		index := win.List.Len() - 1
		t.retrier.Do(ctx, "move", func(ctx context.Context) error {
			return t.host.Move(ctx, id, index)
		})
	}

	t.persist(ctx)
	return nil
}

func (t *Tracker) handleTabRemoved(ctx context.Context, ev domain.TabRemoved) error {
	cfg := t.currentSettings(ctx)

	win, ok := t.findTabWithRepair(ctx, ev.TabID)
	if !ok {
		return fmt.Errorf("tab %d removed: %w", ev.TabID, domain.ErrTabNotFound)
	}

	// Pick the replacement from the pre-removal list and pre-register the
	// expected id: the browser's own default selection races our corrective
	// activate, and the activation handler must be able to tell the two
	// apart.
	if cfg.Flip && win.List.Len() >= 2 {
		if target, found := win.List.MostRecentExcluding(ev.TabID); found {
			t.suppressor.Set(domain.SkipWithExpected(domain.SkipCloseTab, target))
			t.activate(ctx, target)
		}
	}

	win.List.Remove(ev.TabID)
	t.persist(ctx)
	return nil
}

func (t *Tracker) handleTabActivated(ctx context.Context, ev domain.TabActivated) error {
	if skip, pending := t.suppressor.Consume(); pending {
		if skip.Reason == domain.SkipCloseTab && skip.HasExpected {
			if ev.TabID != skip.Expected {
				// The browser's default pick landed before our correction.
				// Re-arm and correct again; the wrong tab is not committed.
				t.suppressor.Set(skip)
				t.activate(ctx, skip.Expected)
				return nil
			}
			// Our correction landed; fall through so the ordering update
			// happens exactly once.
		} else {
			// Echo of attach/detach/flip side effects: absorb.
			return nil
		}
	}

	win, ok := t.findTabWithRepair(ctx, ev.TabID)
	if !ok {
		return fmt.Errorf("tab %d activated: %w", ev.TabID, domain.ErrTabNotFound)
	}

	if top, found := win.List.MostRecent(); found && top == ev.TabID {
		return nil
	}

	win.List.Touch(ev.TabID)
	t.persist(ctx)
	return nil
}

func (t *Tracker) handleTabAttached(ctx context.Context, ev domain.TabAttached) error {
	win, ok := t.windowWithResync(ctx, ev.NewWindowID)
	if !ok {
		return fmt.Errorf("tab %d attached: %w", ev.TabID, domain.ErrWindowNotFound)
	}

	win.List.Insert(ev.TabID, domain.PositionTail)
	// Attaching makes the browser fire an activation for the moved tab.
	t.suppressor.Set(domain.SkipInfo{Reason: domain.SkipAttach})
	t.persist(ctx)
	return nil
}

func (t *Tracker) handleTabDetached(ctx context.Context, ev domain.TabDetached) error {
	win, ok := t.registry.Get(ev.OldWindowID)
	if !ok {
		return fmt.Errorf("tab %d detached: %w", ev.TabID, domain.ErrWindowNotFound)
	}

	win.List.Remove(ev.TabID)

	if top, found := win.List.MostRecent(); found {
		t.suppressor.Set(domain.SkipInfo{Reason: domain.SkipDetach})
		t.activate(ctx, top)
	}

	t.persist(ctx)
	return nil
}

func (t *Tracker) handleTabReplaced(ctx context.Context, ev domain.TabReplaced) error {
	win, ok := t.findTabWithRepair(ctx, ev.OldTabID)
	if !ok {
		return fmt.Errorf("tab %d replaced: %w", ev.OldTabID, domain.ErrTabNotFound)
	}

	win.List.ReplaceID(ev.OldTabID, ev.NewTabID)
	t.persist(ctx)
	return nil
}

func (t *Tracker) handleFlip(ctx context.Context, ev domain.FlipRequested) error {
	cfg := t.currentSettings(ctx)
	if !cfg.Flip {
		return nil
	}

	win, ok := t.flipTarget(ctx, ev.WindowID)
	if !ok {
		return fmt.Errorf("flip: %w", domain.ErrWindowNotFound)
	}
	if win.List.Len() < 2 {
		return nil
	}

	second, found := win.List.SecondMostRecent()
	if !found {
		return nil
	}

	win.List.Touch(second)
	t.suppressor.Set(domain.SkipInfo{Reason: domain.SkipFlip})
	t.activate(ctx, second)
	t.persist(ctx)
	return nil
}

// flipTarget resolves which window a flip acts on. A zero window id means
// "wherever the user last was": the window holding the globally most
// recent tab.
func (t *Tracker) flipTarget(ctx context.Context, id domain.WindowID) (*domain.Window, bool) {
	if id != 0 {
		return t.windowWithResync(ctx, id)
	}

	var best *domain.Window
	var bestOrder domain.RecencyEntry
	for _, win := range t.registry.Windows() {
		ranked := win.List.Ranked()
		if len(ranked) == 0 {
			continue
		}
		if best == nil || ranked[0].Order.After(bestOrder.Order) {
			best = win
			bestOrder = ranked[0]
		}
	}
	return best, best != nil
}

func (t *Tracker) handleResumed(ctx context.Context) error {
	if !t.recon.Dormant() {
		return nil
	}

	t.log.Info("dormancy gap exceeded, reconciling")
	if err := t.recon.Repair(ctx); err != nil {
		return fmt.Errorf("reconcile after dormancy: %w", err)
	}
	return nil
}

// windowWithResync looks up a window, falling back to a single-window host
// query when the registry has never seen it. A miss after resync means the
// window is truly gone and the caller aborts.
func (t *Tracker) windowWithResync(ctx context.Context, id domain.WindowID) (*domain.Window, bool) {
	if win, ok := t.registry.Get(id); ok {
		return win, true
	}

	hw, err := t.host.Window(ctx, id)
	if err != nil {
		t.log.Warn("single-window resync failed",
			zap.Int64("window", int64(id)),
			zap.Error(err))
		return nil, false
	}

	return t.registry.Register(hw.ID, hw.Movable, hw.Tabs), true
}

// findTabWithRepair locates a tab, running one reconcile pass before giving
// up on an unknown id.
func (t *Tracker) findTabWithRepair(ctx context.Context, id domain.TabID) (*domain.Window, bool) {
	if win, ok := t.registry.FindTab(id); ok {
		return win, true
	}

	if err := t.recon.Repair(ctx); err != nil {
		t.log.Warn("repair lookup failed", zap.Int64("tab", int64(id)), zap.Error(err))
		return nil, false
	}

	return t.registry.FindTab(id)
}

// activate issues a corrective activation through the retrier. Fire and
// forget: the suppressor is already armed before this is called.
func (t *Tracker) activate(ctx context.Context, id domain.TabID) {
	t.retrier.Do(ctx, "activate", func(ctx context.Context) error {
		return t.host.Activate(ctx, id)
	})
}

// currentSettings re-reads policy for this invocation. On failure the
// defaults apply; the event is still handled.
func (t *Tracker) currentSettings(ctx context.Context) domain.Settings {
	cfg, err := t.settings.Current(ctx)
	if err != nil {
		t.log.Warn("settings read failed, using defaults", zap.Error(err))
		return domain.DefaultSettings()
	}
	return cfg
}

func (t *Tracker) persist(ctx context.Context) {
	if err := t.store.Save(ctx, t.registry.Snapshot()); err != nil {
		// In-memory state stays authoritative for the session.
		t.log.Warn("snapshot save failed", zap.Error(err))
	}
}

// Shutdown clears the registry. A corrective retry already in flight will
// no-op against the empty registry.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.registry.Clear()
}
