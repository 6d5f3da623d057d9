package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	statusadapter "github.com/bnema/tabflow/internal/adapters/render/status"
	"github.com/bnema/tabflow/internal/domain"
)

func newStatusCmd(app *app) *cobra.Command {
	var (
		asJSON     bool
		staleAfter time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last persisted recency state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			snapshot, err := app.store.Load(cmd.Context())
			switch {
			case errors.Is(err, domain.ErrSnapshotNotFound):
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "No snapshot recorded yet. Is the daemon running?")
				return err
			case errors.Is(err, domain.ErrStaleSnapshot):
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "Last snapshot is older than the trust bound; nothing current to show.")
				return err
			case err != nil:
				return fmt.Errorf("load snapshot: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snapshot)
			}

			rendered, err := app.statusRenderer(snapshot, statusadapter.RenderOptions{
				Now:        app.now(),
				StaleAfter: staleAfter,
			})
			if err != nil {
				return fmt.Errorf("render status: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().DurationVar(&staleAfter, "stale-after", domain.SnapshotMaxAge, "Age after which the snapshot is flagged stale")

	return cmd
}
