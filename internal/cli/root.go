// Package cli implements the harvest command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/harvest/pkg/config"
)

const version = "0.1.0"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the root command for the harvest CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "harvest",
		Short:   "Keep live page regions synchronized and harvest their content",
		Long:    "harvest binds self-refreshing containers to regions of a live web page and collects their items until a task completes.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Initialize(opts.ConfigPath); err != nil {
				return fmt.Errorf("failed to load settings: %w", err)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "settings file (default $HARVEST_CONFIG or ~/.harvest/config.json)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))

	return cmd
}
