package main

import (
	"github.com/spf13/cobra"

	"buildd/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		logLevel    string
		development bool
		detach      bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the build daemon in the foreground until it expires or is signalled",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
				Detach:      detach,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log output")
	cmd.Flags().BoolVar(&detach, "detach", false, "Start a new session before serving")
	return cmd
}
