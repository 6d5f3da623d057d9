package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tabflow",
		Short:         "tabflow: per-window tab recency tracking for your browser",
		Long:          "tabflow tracks most-recently-used tab order per browser window, keeps it correct across tab churn and suspend cycles, and drives switch-to-previous-tab behavior through a companion extension.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(app),
		newStatusCmd(app),
		newFlipCmd(app),
	)

	return rootCmd
}
