package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"buildd/internal/daemon"
	"buildd/internal/expiry"
	"buildd/internal/logging"
	"buildd/internal/memory"
)

func newMemoryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "memory",
		Short: "Show host memory and the configured low-memory threshold",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			host := memory.NewHost()
			reading, err := memory.Read(cmd.Context(), host)
			if err != nil {
				return err
			}

			rows := [][]string{
				{"Total", humanize.IBytes(reading.Total)},
				{"Free", humanize.IBytes(reading.Free)},
				{"Free ratio", fmt.Sprintf("%.1f%%", reading.FreeRatio()*100)},
			}

			checks, err := daemon.BuildChecks(cmd.Context(), cfg, host, logging.NewNop(), nil)
			if err != nil {
				return err
			}
			var lowMemory *expiry.LowMemoryCheck
			for _, check := range checks {
				if c, ok := check.(*expiry.LowMemoryCheck); ok {
					lowMemory = c
				}
			}
			if lowMemory == nil {
				rows = append(rows, []string{"Low-memory check", "disabled"})
			} else {
				rows = append(rows,
					[]string{"Threshold", humanize.IBytes(lowMemory.Threshold())},
					[]string{"Would expire", yesNo(reading.Free < lowMemory.Threshold())},
				)
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}
