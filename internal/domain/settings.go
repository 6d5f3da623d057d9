package domain

// Settings is the read-only policy snapshot consulted on every handler
// invocation. It is never cached beyond the instant of use.
type Settings struct {
	// Flip enables switch-to-previous on close and the flip trigger.
	Flip bool
	// NewTabSelect activates a freshly created tab instead of leaving the
	// browser's default selection alone.
	NewTabSelect bool
	// Relocate moves new tabs to the end of movable windows.
	Relocate bool
}

func DefaultSettings() Settings {
	return Settings{Flip: true}
}
