package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bnema/tabflow/internal/domain"
)

// eventRecorder collects events the server decoded and pushed at the sink.
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *eventRecorder) sink(_ context.Context, event domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) snapshot() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// fakeExtension is the browser side of the bridge for tests: a websocket
// client that answers requests through a scripted handler.
type fakeExtension struct {
	conn   *websocket.Conn
	answer func(req requestFrame) responseFrame
}

func dialExtension(t *testing.T, httpURL string, answer func(req requestFrame) responseFrame) *fakeExtension {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	ext := &fakeExtension{conn: conn, answer: answer}
	if answer != nil {
		go ext.serve()
	}
	return ext
}

func (e *fakeExtension) serve() {
	for {
		var req requestFrame
		if err := e.conn.ReadJSON(&req); err != nil {
			return
		}
		resp := e.answer(req)
		resp.Type = frameResponse
		resp.ID = req.ID
		if err := e.conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

func (e *fakeExtension) send(t *testing.T, raw string) {
	t.Helper()
	require.NoError(t, e.conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

// startDispatch runs the server's event pump for the duration of the test.
func startDispatch(t *testing.T, srv *Server) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func newBridgeFixture(t *testing.T, answer func(req requestFrame) responseFrame) (*Server, *eventRecorder, *fakeExtension) {
	t.Helper()

	rec := &eventRecorder{}
	srv := NewServer(rec.sink, zap.NewNop())
	startDispatch(t, srv)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ext := dialExtension(t, ts.URL, answer)
	require.Eventually(t, srv.Connected, time.Second, 5*time.Millisecond)
	return srv, rec, ext
}

func TestBridgeDeliversDecodedEvents(t *testing.T) {
	t.Parallel()

	_, rec, ext := newBridgeFixture(t, nil)

	ext.send(t, `{"type":"event","event":"tabActivated","windowId":1,"tabId":3}`)
	ext.send(t, `{"type":"event","event":"tabCreated","windowId":1,"tabId":4,"active":true}`)
	ext.send(t, `{"type":"event","event":"resumed"}`)

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, time.Second, 5*time.Millisecond)

	events := rec.snapshot()
	assert.Equal(t, domain.TabActivated{WindowID: 1, TabID: 3}, events[0])
	assert.Equal(t, domain.TabCreated{WindowID: 1, TabID: 4, Active: true}, events[1])
	assert.Equal(t, domain.Resumed{}, events[2])
}

func TestBridgeDropsMalformedFrames(t *testing.T) {
	t.Parallel()

	_, rec, ext := newBridgeFixture(t, nil)

	ext.send(t, `{not json`)
	ext.send(t, `{"type":"event","event":"noSuchEvent"}`)
	ext.send(t, `{"event":"tabRemoved","tabId":1}`)
	ext.send(t, `{"type":"event","event":"tabRemoved","tabId":9}`)

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.TabRemoved{TabID: 9}, rec.snapshot()[0])
}

func TestBridgeWindowsRoundTrip(t *testing.T) {
	t.Parallel()

	srv, _, _ := newBridgeFixture(t, func(req requestFrame) responseFrame {
		if req.Method != methodWindows {
			return responseFrame{Error: &wireError{Code: "bad", Message: "unexpected method"}}
		}
		return responseFrame{Windows: []wireWindow{
			{ID: 1, Movable: true, Tabs: []wireTab{{ID: 10}, {ID: 11, Active: true}}},
			{ID: 2, Tabs: []wireTab{{ID: 20, Active: true}}},
		}}
	})

	windows, err := srv.Windows(context.Background())
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.True(t, windows[0].Movable)
	assert.Equal(t, []domain.TabID{10, 11}, windows[0].TabIDs())
	active, ok := windows[1].ActiveTab()
	require.True(t, ok)
	assert.Equal(t, domain.TabID(20), active)
}

func TestBridgeSingleWindowQuery(t *testing.T) {
	t.Parallel()

	srv, _, _ := newBridgeFixture(t, func(req requestFrame) responseFrame {
		if req.WindowID != 7 {
			return responseFrame{}
		}
		return responseFrame{Window: &wireWindow{ID: 7, Tabs: []wireTab{{ID: 70, Active: true}}}}
	})

	win, err := srv.Window(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, domain.WindowID(7), win.ID)

	_, err = srv.Window(context.Background(), 8)
	require.ErrorIs(t, err, domain.ErrWindowNotFound)
}

func TestBridgeBusyResponseMapsToHostBusy(t *testing.T) {
	t.Parallel()

	srv, _, _ := newBridgeFixture(t, func(requestFrame) responseFrame {
		return responseFrame{Error: &wireError{Code: errCodeBusy, Message: "user dragging a tab"}}
	})

	err := srv.Activate(context.Background(), 3)
	require.ErrorIs(t, err, domain.ErrHostBusy)
}

func TestBridgeMoveCarriesIndex(t *testing.T) {
	t.Parallel()

	var got requestFrame
	var mu sync.Mutex
	srv, _, _ := newBridgeFixture(t, func(req requestFrame) responseFrame {
		mu.Lock()
		got = req
		mu.Unlock()
		return responseFrame{}
	})

	require.NoError(t, srv.Move(context.Background(), 5, 2))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, methodMove, got.Method)
	assert.Equal(t, int64(5), got.TabID)
	assert.Equal(t, 2, got.Index)
}

func TestBridgeCallsFailWithoutExtension(t *testing.T) {
	t.Parallel()

	srv := NewServer(func(context.Context, domain.Event) {}, zap.NewNop())

	_, err := srv.Windows(context.Background())
	require.ErrorIs(t, err, ErrNotConnected)
	require.ErrorIs(t, srv.Activate(context.Background(), 1), ErrNotConnected)
}

func TestBridgeControlInjectsFlip(t *testing.T) {
	t.Parallel()

	rec := &eventRecorder{}
	srv := NewServer(rec.sink, zap.NewNop())
	startDispatch(t, srv)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	require.NoError(t, RequestFlip(context.Background(), ts.URL, 0))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.FlipRequested{WindowID: 0}, rec.snapshot()[0])
}

func TestBridgeControlRejectsUnknownCommand(t *testing.T) {
	t.Parallel()

	srv := NewServer(func(context.Context, domain.Event) {}, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	body, err := json.Marshal(controlCommand{Command: "reboot"})
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/control", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// A sink handler must be able to query the host back over the live socket:
// the read loop keeps draining response frames while the handler runs.
func TestBridgeSinkQueriesHostDuringEvent(t *testing.T) {
	t.Parallel()

	results := make(chan error, 1)
	var srv *Server
	srv = NewServer(func(ctx context.Context, event domain.Event) {
		if _, ok := event.(domain.WindowCreated); !ok {
			return
		}
		_, err := srv.Window(ctx, 7)
		results <- err
	}, zap.NewNop())
	startDispatch(t, srv)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ext := dialExtension(t, ts.URL, func(requestFrame) responseFrame {
		return responseFrame{Window: &wireWindow{ID: 7, Tabs: []wireTab{{ID: 70, Active: true}}}}
	})
	require.Eventually(t, srv.Connected, time.Second, 5*time.Millisecond)

	ext.send(t, `{"type":"event","event":"windowCreated","windowId":7}`)

	select {
	case err := <-results:
		require.NoError(t, err, "host query issued from inside the sink must receive its response")
	case <-time.After(3 * time.Second):
		t.Fatal("sink-issued host query never completed")
	}
}

func TestBridgeReconnectReplacesConnection(t *testing.T) {
	t.Parallel()

	rec := &eventRecorder{}
	srv := NewServer(rec.sink, zap.NewNop())
	startDispatch(t, srv)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	dialExtension(t, ts.URL, nil)
	require.Eventually(t, srv.Connected, time.Second, 5*time.Millisecond)

	second := dialExtension(t, ts.URL, nil)
	second.send(t, `{"type":"event","event":"tabRemoved","tabId":42}`)

	require.Eventually(t, func() bool {
		for _, ev := range rec.snapshot() {
			if ev == (domain.TabRemoved{TabID: 42}) {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "events flow over the newer connection")
}
