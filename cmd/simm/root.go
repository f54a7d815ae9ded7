package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/simm/pkg/logger"
)

type rootOptions struct {
	logLevel   string
	paramsFile string
	log        zerolog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "simm",
		Short:         "ISDA SIMM initial margin calculator",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.log = logger.New(logger.Config{
				Level:  opts.logLevel,
				Pretty: true,
				Output: os.Stderr,
			})
		},
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.paramsFile, "params", "", "SIMM parameter table (YAML); defaults to the embedded table")

	root.AddCommand(marginCmd(opts))
	root.AddCommand(paramsCmd(opts))
	return root
}

// Execute runs the CLI with args.
func Execute(ctx context.Context, args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
