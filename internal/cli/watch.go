package cli

import (
	"github.com/spf13/cobra"

	"github.com/entrhq/harvest/pkg/executor/tui"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SessionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch -f job.yaml",
		Short: "Watch a job's containers live in the terminal",
		Long: `Open the job's page and show the container tree as it refreshes.

Keys:
  ↑/↓ or k/j   select a container
  r            refresh the selected container
  q            quit

Example:
  harvest watch -f hn.yaml --headless=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			session, err := openSession(opts, cmd.Flags().Changed("headless"))
			if err != nil {
				return err
			}
			defer session.close()

			return tui.NewExecutor(session.root, session.driver, session.job.Name).Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&opts.JobFile, "file", "f", "", "job file (required)")
	cmd.Flags().BoolVar(&opts.Headless, "headless", true, "run the browser without a window (default from settings)")
	cmd.Flags().BoolVar(&opts.Install, "install", false, "install the browser before running")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
