package cmd

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/bnema/tabflow/internal/adapters/host/bridge"
	statusadapter "github.com/bnema/tabflow/internal/adapters/render/status"
	tomlrepo "github.com/bnema/tabflow/internal/adapters/repo/toml"
	filesettings "github.com/bnema/tabflow/internal/adapters/settings/file"
	"github.com/bnema/tabflow/internal/application"
	"github.com/bnema/tabflow/internal/domain"
	"github.com/bnema/tabflow/internal/ports"
)

type app struct {
	tracker        *application.Tracker
	recon          *application.Reconciler
	bridge         *bridge.Server
	store          ports.SnapshotStore
	settings       *filesettings.Source
	statusRenderer func(domain.Snapshot, statusadapter.RenderOptions) (string, error)
	log            *zap.Logger
	listenAddr     string
	now            func() time.Time
}

func wireApp() (*app, error) {
	log, err := newLogger()
	if err != nil {
		return nil, fmt.Errorf("wire logger: %w", err)
	}

	clock := ports.SystemClock{}

	store, err := tomlrepo.NewRepository(viper.New(), clock)
	if err != nil {
		return nil, fmt.Errorf("wire snapshot store: %w", err)
	}

	settings, err := filesettings.NewSource(viper.New())
	if err != nil {
		return nil, fmt.Errorf("wire settings source: %w", err)
	}

	mu := &sync.Mutex{}
	registry := application.NewRegistry(clock)
	suppressor := application.NewSuppressor()
	retrier := application.NewRetrier(log)

	// The bridge needs the tracker's Dispatch and the tracker needs the
	// bridge as its host; the closure breaks the cycle.
	var tracker *application.Tracker
	server := bridge.NewServer(func(ctx context.Context, event domain.Event) {
		tracker.Dispatch(ctx, event)
	}, log)

	recon := application.NewReconciler(mu, registry, server, store, clock, settings.DormancyGap(), log)
	tracker = application.NewTracker(mu, registry, suppressor, server, store, settings, retrier, recon, log)

	return &app{
		tracker:        tracker,
		recon:          recon,
		bridge:         server,
		store:          store,
		settings:       settings,
		statusRenderer: statusadapter.Render,
		log:            log,
		listenAddr:     envOrDefault("TABFLOW_LISTEN", "127.0.0.1:8766"),
		now:            time.Now,
	}, nil
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("TABFLOW_DEBUG") != "" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
