package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"buildd/internal/daemon"
	"buildd/internal/daemonctl"
	"buildd/internal/journal"
)

const statusRequestTimeout = 2 * time.Second

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a daemon is running and why the last one stopped",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			running, pid, checkErr := daemonctl.Running(cfg)

			fmt.Fprintln(out, "Daemon")
			switch {
			case checkErr != nil:
				fmt.Fprintln(out, renderStatusLine("Running", statusWarn, checkErr.Error(), colorize))
			case !running:
				fmt.Fprintln(out, renderStatusLine("Running", statusWarn, "no", colorize))
			case pid > 0:
				fmt.Fprintln(out, renderStatusLine("Running", statusOK, fmt.Sprintf("yes (pid %d)", pid), colorize))
			default:
				fmt.Fprintln(out, renderStatusLine("Running", statusOK, "yes", colorize))
			}

			if running && strings.TrimSpace(cfg.Metrics.Bind) != "" {
				payload, err := fetchStatus(cmd.Context(), cfg.Metrics.Bind)
				if err != nil {
					fmt.Fprintln(out, renderStatusLine("API", statusError, err.Error(), colorize))
				} else {
					renderLiveStatus(out, payload, colorize)
				}
			}

			fmt.Fprintln(out, "Last stop")
			j, err := journal.Open(cmd.Context(), cfg.JournalPath())
			if err != nil {
				return err
			}
			defer j.Close()
			events, err := j.Recent(cmd.Context(), 1)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Fprintln(out, renderStatusLine("Recorded", statusInfo, "none", colorize))
				return nil
			}
			last := events[0]
			fmt.Fprintln(out, renderStatusLine("Recorded", statusInfo, humanize.Time(last.RecordedAt), colorize))
			fmt.Fprintln(out, renderStatusLine("Status", stopKind(last.Status), last.Status, colorize))
			if last.Reason != "" {
				fmt.Fprintln(out, renderStatusLine("Reason", statusInfo, last.Reason, colorize))
			}
			return nil
		},
	}
}

func fetchStatus(ctx context.Context, bind string) (daemon.StatusPayload, error) {
	var payload daemon.StatusPayload
	reqCtx, cancel := context.WithTimeout(ctx, statusRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, "http://"+bind+"/api/status", nil)
	if err != nil {
		return payload, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return payload, fmt.Errorf("query daemon: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return payload, fmt.Errorf("query daemon: unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return payload, fmt.Errorf("decode daemon status: %w", err)
	}
	return payload, nil
}

func renderLiveStatus(out io.Writer, p daemon.StatusPayload, colorize bool) {
	stateKind := statusOK
	if p.State != "running" {
		stateKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("State", stateKind, p.State, colorize))
	fmt.Fprintln(out, renderStatusLine("Accepting work", statusInfo, yesNo(p.Accepting), colorize))
	fmt.Fprintln(out, renderStatusLine("In flight", statusInfo, fmt.Sprintf("%d", p.InFlight), colorize))
	if !p.StartedAt.IsZero() {
		fmt.Fprintln(out, renderStatusLine("Started", statusInfo, humanize.Time(p.StartedAt), colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Cache", statusInfo, p.Cache, colorize))
	if p.FailedChecks > 0 {
		fmt.Fprintln(out, renderStatusLine("Failed checks", statusWarn, fmt.Sprintf("%d", p.FailedChecks), colorize))
	}
}

func stopKind(status string) statusKind {
	switch status {
	case "immediate":
		return statusError
	case "graceful":
		return statusWarn
	default:
		return statusInfo
	}
}
