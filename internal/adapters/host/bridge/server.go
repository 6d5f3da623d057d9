// Package bridge exposes the tracker to a companion browser extension over a
// local websocket. The extension pushes tab lifecycle events and answers
// window queries and corrective actions; a small HTTP control endpoint lets
// the CLI inject a flip trigger.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/bnema/tabflow/internal/domain"
	"github.com/bnema/tabflow/internal/ports"
)

// ErrNotConnected is returned by host calls while no extension is attached.
var ErrNotConnected = errors.New("extension not connected")

const (
	defaultCallTimeout = 5 * time.Second
	writeTimeout       = 10 * time.Second
	maxFrameSize       = 1 << 20
	eventQueueSize     = 256
)

// EventSink receives decoded host events. The tracker's Dispatch satisfies it.
type EventSink func(ctx context.Context, event domain.Event)

// Server is the extension-facing side of the bridge. It holds at most one
// extension connection; a newer connection replaces the old one.
//
// Decoded events are queued, not handled inline: the read loop is the only
// reader of the socket, and a sink that queries the host back (resync,
// repair, window registration) needs response frames to keep flowing while
// it runs. Run drains the queue one event at a time.
type Server struct {
	upgrader websocket.Upgrader
	sink     EventSink
	log      *zap.Logger

	events chan domain.Event

	connMu sync.Mutex
	conn   *websocket.Conn

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[int64]chan responseFrame

	nextID atomic.Int64
}

var _ ports.Host = (*Server)(nil)

func NewServer(sink EventSink, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The extension connects from its own origin; the listener is
			// loopback-only, so origin checks add nothing here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sink:    sink,
		log:     log,
		events:  make(chan domain.Event, eventQueueSize),
		pending: map[int64]chan responseFrame{},
	}
}

// Run is the single consumer of the event queue. It must be running for
// events to reach the sink; it returns nil once ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-s.events:
			s.sink(ctx, event)
		}
	}
}

func (s *Server) enqueue(ctx context.Context, event domain.Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Handler returns the HTTP mux serving the extension websocket and the
// control endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/control", s.handleControl)
	return mux
}

// Connected reports whether an extension is currently attached.
func (s *Server) Connected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn != nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxFrameSize)

	s.attach(conn)
	s.readLoop(r.Context(), conn)
}

// attach installs conn as the live extension connection, displacing any
// previous one and failing its in-flight requests.
func (s *Server) attach(conn *websocket.Conn) {
	s.connMu.Lock()
	old := s.conn
	s.conn = conn
	s.connMu.Unlock()

	if old != nil {
		s.log.Info("extension reconnected, dropping previous connection")
		_ = old.Close()
	} else {
		s.log.Info("extension connected")
	}
	s.failPending()
}

func (s *Server) detach(conn *websocket.Conn) {
	s.connMu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.connMu.Unlock()

	_ = conn.Close()
	s.failPending()
	s.log.Info("extension disconnected")
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer s.detach(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("websocket read ended", zap.Error(err))
			}
			return
		}

		frame, err := parseInbound(data)
		if err != nil {
			s.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}

		switch frame.Type {
		case frameEvent:
			event, err := decodeEvent(frame)
			if err != nil {
				s.log.Warn("dropping unrecognized event", zap.Error(err))
				continue
			}
			s.enqueue(ctx, event)
		case frameResponse:
			s.deliver(responseFrame{
				Type:    frame.Type,
				ID:      frame.ID,
				Error:   frame.Error,
				Windows: frame.Windows,
				Window:  frame.Window,
			})
		default:
			s.log.Warn("dropping frame with unexpected type", zap.String("type", frame.Type))
		}
	}
}

func (s *Server) deliver(resp responseFrame) {
	s.pendingMu.Lock()
	ch, ok := s.pending[resp.ID]
	if ok {
		delete(s.pending, resp.ID)
	}
	s.pendingMu.Unlock()

	if !ok {
		s.log.Debug("response for unknown request", zap.Int64("id", resp.ID))
		return
	}
	// Deleting under the lock gave us exclusive ownership of ch: failPending
	// only closes channels still in the map, and the buffer of 1 means this
	// send cannot block even when the caller already timed out.
	ch <- resp
}

func (s *Server) failPending() {
	s.pendingMu.Lock()
	orphaned := s.pending
	s.pending = map[int64]chan responseFrame{}
	s.pendingMu.Unlock()

	// Everything swapped out of the map is exclusively ours; deliver and
	// timed-out callers remove entries under the same lock before touching
	// their channel, so close cannot race a send.
	for _, ch := range orphaned {
		close(ch)
	}
}

// call sends one request frame and waits for its correlated response.
func (s *Server) call(ctx context.Context, req requestFrame) (responseFrame, error) {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return responseFrame{}, ErrNotConnected
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultCallTimeout)
		defer cancel()
	}

	req.Type = frameRequest
	req.ID = s.nextID.Add(1)

	ch := make(chan responseFrame, 1)
	s.pendingMu.Lock()
	s.pending[req.ID] = ch
	s.pendingMu.Unlock()

	if err := s.writeFrame(conn, req); err != nil {
		s.pendingMu.Lock()
		delete(s.pending, req.ID)
		s.pendingMu.Unlock()
		return responseFrame{}, fmt.Errorf("send %s request: %w", req.Method, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return responseFrame{}, ErrNotConnected
		}
		if resp.Error != nil {
			if resp.Error.Code == errCodeBusy {
				return responseFrame{}, fmt.Errorf("%s: %w", req.Method, domain.ErrHostBusy)
			}
			return responseFrame{}, fmt.Errorf("%s failed: %s", req.Method, resp.Error.Message)
		}
		return resp, nil
	case <-ctx.Done():
		s.pendingMu.Lock()
		delete(s.pending, req.ID)
		s.pendingMu.Unlock()
		return responseFrame{}, fmt.Errorf("await %s response: %w", req.Method, ctx.Err())
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

func (s *Server) Windows(ctx context.Context) ([]domain.HostWindow, error) {
	resp, err := s.call(ctx, requestFrame{Method: methodWindows})
	if err != nil {
		return nil, err
	}

	windows := make([]domain.HostWindow, 0, len(resp.Windows))
	for _, w := range resp.Windows {
		windows = append(windows, fromWireWindow(w))
	}
	return windows, nil
}

func (s *Server) Window(ctx context.Context, id domain.WindowID) (domain.HostWindow, error) {
	resp, err := s.call(ctx, requestFrame{Method: methodWindow, WindowID: int64(id)})
	if err != nil {
		return domain.HostWindow{}, err
	}
	if resp.Window == nil {
		return domain.HostWindow{}, fmt.Errorf("window %d: %w", id, domain.ErrWindowNotFound)
	}
	return fromWireWindow(*resp.Window), nil
}

func (s *Server) Activate(ctx context.Context, id domain.TabID) error {
	_, err := s.call(ctx, requestFrame{Method: methodActivate, TabID: int64(id)})
	return err
}

func (s *Server) Move(ctx context.Context, id domain.TabID, index int) error {
	_, err := s.call(ctx, requestFrame{Method: methodMove, TabID: int64(id), Index: index})
	return err
}

// controlCommand is the body accepted by the control endpoint.
type controlCommand struct {
	Command  string `json:"command"`
	WindowID int64  `json:"windowId"`
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var cmd controlCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "invalid control body", http.StatusBadRequest)
		return
	}

	switch cmd.Command {
	case "flip":
		s.enqueue(r.Context(), domain.FlipRequested{WindowID: domain.WindowID(cmd.WindowID)})
		w.WriteHeader(http.StatusAccepted)
	default:
		http.Error(w, fmt.Sprintf("unknown command %q", cmd.Command), http.StatusBadRequest)
	}
}
