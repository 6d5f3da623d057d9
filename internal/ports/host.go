package ports

import (
	"context"

	"github.com/bnema/tabflow/internal/domain"
)

// Host is the browser boundary. Queries return the browser's current truth;
// Activate and Move are corrective actions that mutate host-visible state.
// Both may fail with domain.ErrHostBusy while the user is mid-interaction.
type Host interface {
	Windows(ctx context.Context) ([]domain.HostWindow, error)
	Window(ctx context.Context, id domain.WindowID) (domain.HostWindow, error)
	Activate(ctx context.Context, id domain.TabID) error
	Move(ctx context.Context, id domain.TabID, index int) error
}
