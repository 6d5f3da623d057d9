package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/bnema/tabflow/internal/domain"
)

// Frame types exchanged with the companion extension over the websocket.
const (
	frameEvent    = "event"
	frameRequest  = "request"
	frameResponse = "response"
)

// Request methods the extension answers.
const (
	methodWindows  = "windows"
	methodWindow   = "window"
	methodActivate = "activate"
	methodMove     = "move"
)

// errCodeBusy marks a corrective action the browser refused because the
// user was mid-interaction. It maps to domain.ErrHostBusy.
const errCodeBusy = "busy"

type requestFrame struct {
	Type     string `json:"type"`
	ID       int64  `json:"id"`
	Method   string `json:"method"`
	WindowID int64  `json:"windowId,omitempty"`
	TabID    int64  `json:"tabId,omitempty"`
	Index    int    `json:"index,omitempty"`
}

type responseFrame struct {
	Type    string       `json:"type"`
	ID      int64        `json:"id"`
	Error   *wireError   `json:"error,omitempty"`
	Windows []wireWindow `json:"windows,omitempty"`
	Window  *wireWindow  `json:"window,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wireWindow struct {
	ID      int64     `json:"id"`
	Movable bool      `json:"movable"`
	Tabs    []wireTab `json:"tabs"`
}

type wireTab struct {
	ID     int64 `json:"id"`
	Active bool  `json:"active"`
}

// inboundFrame is the superset of fields the extension may send. Type is
// inspected first; the rest is interpreted per frame kind.
type inboundFrame struct {
	Type string `json:"type"`

	// event frames
	Event       string `json:"event,omitempty"`
	WindowID    int64  `json:"windowId,omitempty"`
	TabID       int64  `json:"tabId,omitempty"`
	Active      bool   `json:"active,omitempty"`
	NewWindowID int64  `json:"newWindowId,omitempty"`
	OldWindowID int64  `json:"oldWindowId,omitempty"`
	OldTabID    int64  `json:"oldTabId,omitempty"`
	NewTabID    int64  `json:"newTabId,omitempty"`

	// response frames
	ID      int64        `json:"id,omitempty"`
	Error   *wireError   `json:"error,omitempty"`
	Windows []wireWindow `json:"windows,omitempty"`
	Window  *wireWindow  `json:"window,omitempty"`
}

// decodeEvent maps one wire event frame onto the closed domain event set.
// Unknown event names are an error; the caller drops the frame.
func decodeEvent(f inboundFrame) (domain.Event, error) {
	switch f.Event {
	case "windowCreated":
		return domain.WindowCreated{WindowID: domain.WindowID(f.WindowID)}, nil
	case "windowRemoved":
		return domain.WindowRemoved{WindowID: domain.WindowID(f.WindowID)}, nil
	case "tabCreated":
		return domain.TabCreated{
			WindowID: domain.WindowID(f.WindowID),
			TabID:    domain.TabID(f.TabID),
			Active:   f.Active,
		}, nil
	case "tabRemoved":
		return domain.TabRemoved{TabID: domain.TabID(f.TabID)}, nil
	case "tabActivated":
		return domain.TabActivated{
			WindowID: domain.WindowID(f.WindowID),
			TabID:    domain.TabID(f.TabID),
		}, nil
	case "tabAttached":
		return domain.TabAttached{
			TabID:       domain.TabID(f.TabID),
			NewWindowID: domain.WindowID(f.NewWindowID),
		}, nil
	case "tabDetached":
		return domain.TabDetached{
			TabID:       domain.TabID(f.TabID),
			OldWindowID: domain.WindowID(f.OldWindowID),
		}, nil
	case "tabReplaced":
		return domain.TabReplaced{
			OldTabID: domain.TabID(f.OldTabID),
			NewTabID: domain.TabID(f.NewTabID),
		}, nil
	case "flipRequested":
		return domain.FlipRequested{WindowID: domain.WindowID(f.WindowID)}, nil
	case "resumed":
		return domain.Resumed{}, nil
	default:
		return nil, fmt.Errorf("unknown event %q", f.Event)
	}
}

func parseInbound(data []byte) (inboundFrame, error) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return inboundFrame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return inboundFrame{}, fmt.Errorf("frame missing type")
	}
	return f, nil
}

func fromWireWindow(w wireWindow) domain.HostWindow {
	out := domain.HostWindow{ID: domain.WindowID(w.ID), Movable: w.Movable}
	for _, t := range w.Tabs {
		out.Tabs = append(out.Tabs, domain.HostTab{ID: domain.TabID(t.ID), Active: t.Active})
	}
	return out
}
