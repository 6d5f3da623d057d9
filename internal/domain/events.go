package domain

// Event is the closed set of host-reported happenings. Adapters decode the
// wire payload into exactly one of the concrete kinds below; handlers
// switch over them exhaustively.
type Event interface {
	eventKind() string
}

type WindowCreated struct {
	WindowID WindowID
}

type WindowRemoved struct {
	WindowID WindowID
}

type TabCreated struct {
	WindowID WindowID
	TabID    TabID
	Active   bool
}

type TabRemoved struct {
	TabID TabID
}

type TabActivated struct {
	WindowID WindowID
	TabID    TabID
}

type TabAttached struct {
	TabID       TabID
	NewWindowID WindowID
}

type TabDetached struct {
	TabID       TabID
	OldWindowID WindowID
}

type TabReplaced struct {
	OldTabID TabID
	NewTabID TabID
}

// FlipRequested is the explicit user trigger (toolbar icon or shortcut).
type FlipRequested struct {
	WindowID WindowID
}

// Resumed is the host lifecycle wake callback. The tracker compares elapsed
// time since it was last confirmed alive to detect dormancy.
type Resumed struct{}

func (WindowCreated) eventKind() string { return "windowCreated" }
func (WindowRemoved) eventKind() string { return "windowRemoved" }
func (TabCreated) eventKind() string    { return "tabCreated" }
func (TabRemoved) eventKind() string    { return "tabRemoved" }
func (TabActivated) eventKind() string  { return "tabActivated" }
func (TabAttached) eventKind() string   { return "tabAttached" }
func (TabDetached) eventKind() string   { return "tabDetached" }
func (TabReplaced) eventKind() string   { return "tabReplaced" }
func (FlipRequested) eventKind() string { return "flipRequested" }
func (Resumed) eventKind() string       { return "resumed" }
