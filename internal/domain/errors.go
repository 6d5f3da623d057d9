package domain

import "errors"

var (
	ErrWindowNotFound = errors.New("window not found")
	ErrTabNotFound    = errors.New("tab not found")

	// ErrHostBusy is the recognized transient condition: the browser refused
	// a corrective action because the user is mid-interaction (typically
	// dragging a tab). Retriable.
	ErrHostBusy = errors.New("host busy with user interaction")

	ErrStaleSnapshot    = errors.New("snapshot older than staleness bound")
	ErrSnapshotNotFound = errors.New("snapshot not found")
)
