package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"postbox/internal/ipc"
	"postbox/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				if client != nil {
					resp, err := client.Status()
					if err != nil {
						return err
					}
					if jsonOutput {
						return writeJSON(cmd, resp)
					}
					printDaemonStatus(cmd, resp)
					return nil
				}

				// Daemon is down. Queue counts still come straight from
				// the store so the command works offline.
				stats, err := store.CountByStatus(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, map[string]any{
						"running": false,
						"queue":   stats,
					})
				}
				printOfflineStatus(cmd, stats)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")
	return cmd
}

func printDaemonStatus(cmd *cobra.Command, resp *ipc.StatusResponse) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", resp.PID), colorize))
	if resp.Online {
		fmt.Fprintln(out, renderStatusLine("Backend", statusOK, "reachable", colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Backend", statusWarn, "unreachable, submissions stay queued", colorize))
	}
	if resp.Draining {
		fmt.Fprintln(out, renderStatusLine("Sync", statusInfo, "drain in progress", colorize))
	} else if resp.LastDrain != nil {
		summary := fmt.Sprintf("last drain delivered %d of %d in %s",
			resp.LastDrain.Delivered, resp.LastDrain.Attempted, resp.LastDrain.Duration)
		fmt.Fprintln(out, renderStatusLine("Sync", statusInfo, summary, colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Sync", statusInfo, "no drain yet", colorize))
	}
	if resp.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusWarn, resp.LastError, colorize))
	}

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Queue", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderQueueCountsTable(resp.Queue.Queued, resp.Queue.Syncing, resp.Queue.Synced, resp.Queue.Flagged))
}

func printOfflineStatus(cmd *cobra.Command, stats queue.Stats) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "not running, start with `postbox daemon start`", colorize))

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Queue", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderQueueCountsTable(stats.Queued, stats.Syncing, stats.Synced, stats.Flagged))
}

func renderQueueCountsTable(queued, syncing, synced, flagged int) string {
	rows := [][]string{
		{string(queue.StatusQueued), fmt.Sprintf("%d", queued)},
		{string(queue.StatusSyncing), fmt.Sprintf("%d", syncing)},
		{string(queue.StatusSynced), fmt.Sprintf("%d", synced)},
		{string(queue.StatusFlagged), fmt.Sprintf("%d", flagged)},
		{"total", fmt.Sprintf("%d", queued+syncing+synced+flagged)},
	}
	return renderTable([]string{"STATUS", "COUNT"}, rows, []columnAlignment{alignLeft, alignRight})
}
