package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bnema/tabflow/internal/domain"
	"github.com/bnema/tabflow/internal/ports"
)

// DefaultDormancyGap is how long the process may go without a confirmed-
// alive signal before a wake triggers a full reconcile. Tunable via the
// reconcile.dormancy_gap settings key.
const DefaultDormancyGap = 5 * time.Second

// DefaultReconcileInterval is the periodic repair cadence used when the
// configured reconcile.interval is absent or unusable.
const DefaultReconcileInterval = 30 * time.Second

// Reconciler resynchronizes the registry against a freshly queried host
// snapshot. It repairs membership only: windows and tabs it can match by id
// are never reordered.
type Reconciler struct {
	mu       *sync.Mutex
	registry *Registry
	host     ports.Host
	store    ports.SnapshotStore
	clock    ports.Clock
	log      *zap.Logger

	aliveMu     sync.Mutex
	lastAlive   time.Time
	dormancyGap time.Duration
}

func NewReconciler(mu *sync.Mutex, registry *Registry, host ports.Host, store ports.SnapshotStore, clock ports.Clock, dormancyGap time.Duration, log *zap.Logger) *Reconciler {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if dormancyGap <= 0 {
		dormancyGap = DefaultDormancyGap
	}

	return &Reconciler{
		mu:          mu,
		registry:    registry,
		host:        host,
		store:       store,
		clock:       clock,
		log:         log,
		lastAlive:   clock.Now(),
		dormancyGap: dormancyGap,
	}
}

// Reconcile acquires the mutation lock and repairs drift. Safe to call from
// the timer loop concurrently with event handling.
func (c *Reconciler) Reconcile(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.repair(ctx)
}

// Repair runs the same algorithm for callers that already hold the mutation
// lock (handlers recovering from a missing reference).
func (c *Reconciler) Repair(ctx context.Context) error {
	return c.repair(ctx)
}

func (c *Reconciler) repair(ctx context.Context) error {
	hostWindows, err := c.host.Windows(ctx)
	if err != nil {
		return fmt.Errorf("query host windows: %w", err)
	}

	changed := false
	hostByID := make(map[domain.WindowID]domain.HostWindow, len(hostWindows))
	for _, hw := range hostWindows {
		hostByID[hw.ID] = hw
	}

	// Windows the host no longer reports.
	for _, win := range c.registry.Windows() {
		if _, ok := hostByID[win.ID]; !ok {
			c.registry.Unregister(win.ID)
			changed = true
			c.log.Info("reconcile: dropped vanished window", zap.Int64("window", int64(win.ID)))
		}
	}

	for _, hw := range hostWindows {
		win, ok := c.registry.Get(hw.ID)
		if !ok {
			c.registry.Register(hw.ID, hw.Movable, hw.Tabs)
			changed = true
			c.log.Info("reconcile: registered new window",
				zap.Int64("window", int64(hw.ID)),
				zap.Int("tabs", len(hw.Tabs)))
			continue
		}

		if c.repairWindow(win, hw) {
			changed = true
		}
	}

	if !changed {
		return nil
	}

	if err := c.store.Save(ctx, c.registry.Snapshot()); err != nil {
		// In-memory state stays authoritative for the session.
		c.log.Warn("reconcile: persist failed", zap.Error(err))
	}

	return nil
}

// repairWindow applies the set difference between host and tracked tabs.
// Missing tabs are inserted the way creation would have: active at tail,
// the rest at head. Orphans are removed. Matched ids keep their rank.
func (c *Reconciler) repairWindow(win *domain.Window, hw domain.HostWindow) bool {
	changed := false

	hostSet := make(map[domain.TabID]struct{}, len(hw.Tabs))
	for _, t := range hw.Tabs {
		hostSet[t.ID] = struct{}{}
	}

	for _, id := range win.List.IDs() {
		if _, ok := hostSet[id]; !ok {
			win.List.Remove(id)
			changed = true
			c.log.Debug("reconcile: removed orphaned tab",
				zap.Int64("window", int64(win.ID)),
				zap.Int64("tab", int64(id)))
		}
	}

	for _, t := range hw.Tabs {
		if win.List.Contains(t.ID) {
			continue
		}
		pos := domain.PositionHead
		if t.Active {
			pos = domain.PositionTail
		}
		win.List.Insert(t.ID, pos)
		changed = true
		c.log.Debug("reconcile: inserted missing tab",
			zap.Int64("window", int64(win.ID)),
			zap.Int64("tab", int64(t.ID)),
			zap.Bool("active", t.Active))
	}

	return changed
}

// NoteAlive records that the process just handled activity.
func (c *Reconciler) NoteAlive() {
	c.aliveMu.Lock()
	defer c.aliveMu.Unlock()
	c.lastAlive = c.clock.Now()
}

// Dormant reports whether more than the dormancy gap elapsed since the
// process was last confirmed alive.
func (c *Reconciler) Dormant() bool {
	c.aliveMu.Lock()
	defer c.aliveMu.Unlock()
	return c.clock.Now().Sub(c.lastAlive) > c.dormancyGap
}

// Run reconciles on a fixed interval until the context is cancelled. A
// non-positive interval falls back to the default rather than panicking the
// ticker on a malformed config value.
func (c *Reconciler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		c.log.Warn("non-positive reconcile interval, using default",
			zap.Duration("interval", interval),
			zap.Duration("default", DefaultReconcileInterval))
		interval = DefaultReconcileInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Reconcile(ctx); err != nil {
				c.log.Warn("periodic reconcile failed", zap.Error(err))
			}
		case <-ctx.Done():
			return nil
		}
	}
}
