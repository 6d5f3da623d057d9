package ports

import (
	"context"

	"github.com/bnema/tabflow/internal/domain"
)

// SettingsSource yields the current policy snapshot. Handlers call Current
// on every invocation and never cache the result.
type SettingsSource interface {
	Current(ctx context.Context) (domain.Settings, error)
}
