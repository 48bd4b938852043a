package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"buildd/internal/journal"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent daemon stop events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			j, err := journal.Open(cmd.Context(), cfg.JournalPath())
			if err != nil {
				return err
			}
			defer j.Close()

			events, err := j.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, "No stop events recorded")
				return nil
			}

			rows := make([][]string, 0, len(events))
			for _, e := range events {
				rows = append(rows, []string{
					e.RecordedAt.Local().Format(time.DateTime),
					e.Status,
					e.Check,
					e.Reason,
					e.Uptime().Round(time.Second).String(),
					strconv.Itoa(e.FailedChecks),
					strconv.Itoa(e.PID),
				})
			}
			headers := []string{"Recorded", "Status", "Check", "Reason", "Uptime", "Failed", "PID"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight}
			fmt.Fprintln(out, renderTable(headers, rows, aligns))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of events to show")
	return cmd
}
