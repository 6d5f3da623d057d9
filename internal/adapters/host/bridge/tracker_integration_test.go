package bridge

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bnema/tabflow/internal/application"
	"github.com/bnema/tabflow/internal/domain"
	"github.com/bnema/tabflow/internal/ports"
)

type memorySnapshotStore struct {
	mu   sync.Mutex
	snap *domain.Snapshot
}

func (s *memorySnapshotStore) Save(_ context.Context, snapshot domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = &snapshot
	return nil
}

func (s *memorySnapshotStore) Load(context.Context) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return domain.Snapshot{}, domain.ErrSnapshotNotFound
	}
	return *s.snap, nil
}

type staticSettings struct {
	settings domain.Settings
}

func (s staticSettings) Current(context.Context) (domain.Settings, error) {
	return s.settings, nil
}

// The tracker wired to a live bridge, as in the daemon. Event handlers that
// query the host back over the same socket (window registration, resync,
// repair) must complete while their triggering event is being handled.
func TestBridgeDrivesTrackerThroughLiveSocket(t *testing.T) {
	t.Parallel()

	mu := &sync.Mutex{}
	registry := application.NewRegistry(ports.SystemClock{})
	store := &memorySnapshotStore{}

	var tracker *application.Tracker
	srv := NewServer(func(ctx context.Context, event domain.Event) {
		tracker.Dispatch(ctx, event)
	}, zap.NewNop())
	recon := application.NewReconciler(mu, registry, srv, store, ports.SystemClock{}, 0, zap.NewNop())
	tracker = application.NewTracker(mu, registry, application.NewSuppressor(), srv, store,
		staticSettings{settings: domain.DefaultSettings()}, application.NewRetrier(nil), recon, zap.NewNop())

	startDispatch(t, srv)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ext := dialExtension(t, ts.URL, func(req requestFrame) responseFrame {
		switch req.Method {
		case methodWindows:
			return responseFrame{Windows: []wireWindow{
				{ID: 1, Movable: true, Tabs: []wireTab{{ID: 1}, {ID: 2, Active: true}}},
			}}
		case methodWindow:
			return responseFrame{Window: &wireWindow{
				ID: req.WindowID, Movable: true, Tabs: []wireTab{{ID: 20, Active: true}},
			}}
		default:
			return responseFrame{}
		}
	})
	require.Eventually(t, srv.Connected, time.Second, 5*time.Millisecond)

	require.NoError(t, tracker.Bootstrap(context.Background()))
	mu.Lock()
	_, ok := registry.Get(1)
	mu.Unlock()
	require.True(t, ok, "bootstrap registered the host's window over the live socket")

	// Registration of a new window queries the host back mid-event.
	ext.send(t, `{"type":"event","event":"windowCreated","windowId":2}`)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		win, found := registry.Get(2)
		return found && win.List.Contains(20)
	}, 3*time.Second, 10*time.Millisecond, "window registration resolved its host query while the event was in flight")

	ext.send(t, `{"type":"event","event":"tabActivated","windowId":1,"tabId":1}`)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		win, found := registry.Get(1)
		if !found {
			return false
		}
		top, hasTop := win.List.MostRecent()
		return hasTop && top == domain.TabID(1)
	}, 3*time.Second, 10*time.Millisecond)
}
