package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	bootstrapPollInterval = 250 * time.Millisecond
	shutdownGrace         = 5 * time.Second
)

func newRunCmd(app *app) *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the tracker daemon",
		Long:  "Starts the websocket bridge the companion extension connects to, bootstraps tracked state from the last snapshot, and keeps it reconciled until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if listenAddr == "" {
				listenAddr = app.listenAddr
			}

			httpServer := &http.Server{
				Addr:              listenAddr,
				Handler:           app.bridge.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			app.log.Info("tabflow daemon starting", zap.String("listen", listenAddr))

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serve bridge: %w", err)
				}
				return nil
			})

			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			})

			g.Go(func() error {
				return app.bridge.Run(gctx)
			})

			g.Go(func() error {
				if err := waitForExtension(gctx, app, cmd.ErrOrStderr()); err != nil {
					return err
				}
				return bootstrapWhenConnected(gctx, app)
			})

			g.Go(func() error {
				return app.recon.Run(gctx, app.settings.ReconcileInterval())
			})

			err := g.Wait()
			app.tracker.Shutdown()
			app.log.Info("tabflow daemon stopped")
			_ = app.log.Sync()
			return err
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "Bridge listen address (host:port)")

	return cmd
}

// waitForExtension blocks until the companion extension attaches. On an
// interactive terminal it shows a spinner; otherwise it polls quietly.
func waitForExtension(ctx context.Context, app *app, stderr io.Writer) error {
	wait := func(ctx context.Context) error {
		ticker := time.NewTicker(bootstrapPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if app.bridge.Connected() {
					return nil
				}
			}
		}
	}

	if isatty.IsTerminal(os.Stderr.Fd()) {
		return runConnectSpinner(ctx, stderr, wait)
	}
	return wait(ctx)
}

// bootstrapWhenConnected seeds tracked state once host queries can succeed.
// A failed attempt is retried: the extension may have dropped off again
// between attaching and answering the first windows query.
func bootstrapWhenConnected(ctx context.Context, app *app) error {
	ticker := time.NewTicker(bootstrapPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !app.bridge.Connected() {
				continue
			}
			if err := app.tracker.Bootstrap(ctx); err != nil {
				app.log.Warn("bootstrap attempt failed", zap.Error(err))
				continue
			}
			app.log.Info("tracker bootstrapped")
			return nil
		}
	}
}
