package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/harvest/pkg/executor/headless"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	SessionOptions

	Timeout     time.Duration
	Output      string
	NoArtifacts bool
	Verbosity   string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{SessionOptions: SessionOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "run -f job.yaml",
		Short: "Harvest a page until the job's task completes",
		Long: `Run a job without a UI.

The page is opened, the root container and its children are initialized,
and the run ends when the root's task completes, the root fails, the
timeout expires or the process is interrupted. A summary and the collected
items are written to the output directory.

Example:
  harvest run -f hn.yaml
  harvest run -f hn.yaml --timeout 10m --output ./out --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHeadless(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.JobFile, "file", "f", "", "job file (required)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "stop after this long (default: job timeout, then 5m)")
	cmd.Flags().BoolVar(&opts.Headless, "headless", true, "run the browser without a window (default from settings)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", ".harvest/artifacts", "directory for execution.json, items.json and summary.md")
	cmd.Flags().BoolVar(&opts.NoArtifacts, "no-artifacts", false, "do not write artifacts")
	cmd.Flags().StringVar(&opts.Verbosity, "verbosity", "normal", "console verbosity: quiet, normal, verbose or debug")
	cmd.Flags().BoolVar(&opts.Install, "install", false, "install the browser before running")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// executorConfig merges flags, job settings and defaults. Flags win.
func (o *RunOptions) executorConfig(jobName string, jobTimeout time.Duration, waitForChildren bool) *headless.Config {
	cfg := headless.DefaultConfig()
	cfg.Job = jobName
	cfg.WaitForChildren = waitForChildren

	switch {
	case o.Timeout > 0:
		cfg.Timeout = o.Timeout
	case jobTimeout > 0:
		cfg.Timeout = jobTimeout
	}

	cfg.Artifacts.Enabled = !o.NoArtifacts
	cfg.Artifacts.OutputDir = o.Output

	cfg.Logging.Verbosity = o.Verbosity
	if o.Verbose && o.Verbosity == "normal" {
		cfg.Logging.Verbosity = "verbose"
	}
	return cfg
}

func runHeadless(cmd *cobra.Command, opts *RunOptions) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	session, err := openSession(&opts.SessionOptions, cmd.Flags().Changed("headless"))
	if err != nil {
		return err
	}
	defer session.close()

	cfg := opts.executorConfig(session.job.Name, session.job.Timeout, session.job.WaitForChildren)
	exec, err := headless.NewExecutor(session.root, session.driver, cfg)
	if err != nil {
		return err
	}

	_, err = exec.Run(ctx)
	return err
}
