package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/tabflow/internal/adapters/host/bridge"
	"github.com/bnema/tabflow/internal/domain"
)

func newFlipCmd(app *app) *cobra.Command {
	var (
		windowID int64
		addr     string
	)

	cmd := &cobra.Command{
		Use:   "flip",
		Short: "Switch the previous tab back to front",
		Long:  "Asks the running daemon to activate the second most recent tab. Without --window the window holding the most recent tab is used.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = app.listenAddr
			}

			if err := bridge.RequestFlip(cmd.Context(), "http://"+addr, domain.WindowID(windowID)); err != nil {
				return err
			}

			_, err := fmt.Fprintln(cmd.OutOrStdout(), "flip requested")
			return err
		},
	}

	cmd.Flags().Int64Var(&windowID, "window", 0, "Window to flip (0 = window of the most recent tab)")
	cmd.Flags().StringVar(&addr, "addr", "", "Daemon bridge address (host:port)")

	return cmd
}
