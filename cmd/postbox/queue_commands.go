package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"postbox/internal/api"
	"postbox/internal/ipc"
	"postbox/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the local submission queue",
	}

	cmd.AddCommand(newQueueListCommand(ctx))
	cmd.AddCommand(newQueueShowCommand(ctx))
	cmd.AddCommand(newQueueClearCommand(ctx))
	cmd.AddCommand(newQueuePruneCommand(ctx))
	cmd.AddCommand(newQueueRetryCommand(ctx))
	cmd.AddCommand(newQueueHealthCommand(ctx))

	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses   []string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				records, err := fetchRecords(cmd, client, store, statuses)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, records)
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderRecordTable(records))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (queued, syncing, synced, flagged)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output records as JSON")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a single submission in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				var record api.Record
				if client != nil {
					resp, err := client.QueueShow(args[0])
					if err != nil {
						return err
					}
					record = resp.Record
				} else {
					stored, err := store.GetByID(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					record = api.FromRecord(stored)
				}
				if jsonOutput {
					return writeJSON(cmd, record)
				}
				printRecordDetail(cmd, record)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the record as JSON")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove queue entries",
		Long:  "Remove queue entries. Without --status every record is removed, including undelivered ones.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				var removed int64
				if client != nil {
					resp, err := client.QueueClear(statuses)
					if err != nil {
						return err
					}
					removed = resp.Removed
				} else {
					parsed, err := parseStatuses(statuses)
					if err != nil {
						return err
					}
					removed, err = store.Clear(cmd.Context(), parsed...)
					if err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d record(s)\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only remove records with these statuses")
	return cmd
}

func newQueuePruneCommand(ctx *commandContext) *cobra.Command {
	var olderThanDays int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove delivered submissions older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				var pruned int64
				if client != nil {
					resp, err := client.QueuePrune(olderThanDays)
					if err != nil {
						return err
					}
					pruned = resp.Pruned
				} else {
					cutoff := pruneCutoff(olderThanDays)
					var err error
					pruned, err = store.PruneSynced(cmd.Context(), cutoff)
					if err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d delivered record(s)\n", pruned)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&olderThanDays, "older-than-days", 0, "Retention window in days (0 prunes all delivered records)")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry [id...]",
		Short: "Requeue flagged submissions",
		Long:  "Requeue flagged submissions for another delivery attempt. Without arguments every flagged record is retried.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				var updated int64
				if client != nil {
					resp, err := client.RetryFlagged(args)
					if err != nil {
						return err
					}
					updated = resp.Updated
				} else {
					var err error
					updated, err = store.RetryFlagged(cmd.Context(), args...)
					if err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d flagged record(s)\n", updated)
				return nil
			})
		},
	}

	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check queue database health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				var health queue.DatabaseHealth
				if client != nil {
					resp, err := client.DatabaseHealth()
					if err != nil {
						return err
					}
					health = queue.DatabaseHealth{
						DBPath:           resp.DBPath,
						DatabaseExists:   resp.DatabaseExists,
						DatabaseReadable: resp.DatabaseReadable,
						TableExists:      resp.TableExists,
						IntegrityCheck:   resp.IntegrityCheck,
						TotalRecords:     resp.TotalRecords,
						Error:            resp.Error,
					}
				} else {
					var err error
					health, err = store.CheckHealth(cmd.Context())
					if err != nil {
						return err
					}
				}
				if jsonOutput {
					return writeJSON(cmd, health)
				}
				printDatabaseHealth(cmd, health)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output health report as JSON")
	return cmd
}

func fetchRecords(cmd *cobra.Command, client *ipc.Client, store *queue.Store, statuses []string) ([]api.Record, error) {
	if client != nil {
		resp, err := client.QueueList(statuses)
		if err != nil {
			return nil, err
		}
		return resp.Records, nil
	}

	parsed, err := parseStatuses(statuses)
	if err != nil {
		return nil, err
	}
	stored, err := store.List(cmd.Context(), parsed...)
	if err != nil {
		return nil, err
	}
	records := make([]api.Record, 0, len(stored))
	for _, record := range stored {
		records = append(records, api.FromRecord(record))
	}
	return records, nil
}

func parseStatuses(raw []string) ([]queue.Status, error) {
	parsed := make([]queue.Status, 0, len(raw))
	for _, value := range raw {
		status, ok := queue.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		parsed = append(parsed, status)
	}
	return parsed, nil
}

func renderRecordTable(records []api.Record) string {
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, []string{
			record.ID,
			record.Status,
			record.Intent,
			truncateText(record.Text, 40),
			fmt.Sprintf("%d", record.Attempts),
			record.CreatedAt,
		})
	}
	headers := []string{"ID", "STATUS", "INTENT", "TEXT", "ATTEMPTS", "CREATED"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft}
	return renderTable(headers, rows, aligns)
}

func printRecordDetail(cmd *cobra.Command, record api.Record) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Submission "+record.ID, colorize) {
		fmt.Fprintln(out, line)
	}

	kind := statusInfo
	switch record.Status {
	case string(queue.StatusSynced):
		kind = statusOK
	case string(queue.StatusFlagged):
		kind = statusError
	}
	fmt.Fprintln(out, renderStatusLine("Status", kind, record.Status, colorize))
	fmt.Fprintln(out, renderStatusLine("Intent", statusInfo, record.Intent, colorize))
	fmt.Fprintln(out, renderStatusLine("Text", statusInfo, truncateText(record.Text, 120), colorize))
	if record.Latitude != nil && record.Longitude != nil {
		location := fmt.Sprintf("%.6f, %.6f", *record.Latitude, *record.Longitude)
		fmt.Fprintln(out, renderStatusLine("Location", statusInfo, location, colorize))
	}
	if record.PostalCode != "" {
		fmt.Fprintln(out, renderStatusLine("Postal code", statusInfo, record.PostalCode, colorize))
	}
	if record.Ward != "" {
		fmt.Fprintln(out, renderStatusLine("Ward", statusInfo, record.Ward, colorize))
	}
	if record.Attachment != nil {
		detail := record.Attachment.Name
		if record.Attachment.Uploaded {
			detail += " (uploaded)"
		} else {
			detail += " (pending upload)"
		}
		fmt.Fprintln(out, renderStatusLine("Attachment", statusInfo, detail, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Attempts", statusInfo, fmt.Sprintf("%d", record.Attempts), colorize))
	if record.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusWarn, record.LastError, colorize))
	}
	if record.RemoteID != "" {
		fmt.Fprintln(out, renderStatusLine("Receipt", statusOK, record.RemoteID, colorize))
	}
	if record.SyncedAt != "" {
		fmt.Fprintln(out, renderStatusLine("Delivered at", statusOK, record.SyncedAt, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Created at", statusInfo, record.CreatedAt, colorize))
}

func printDatabaseHealth(cmd *cobra.Command, health queue.DatabaseHealth) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Queue Database", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Path", statusInfo, health.DBPath, colorize))
	fmt.Fprintln(out, renderStatusLine("Exists", boolKind(health.DatabaseExists), yesNo(health.DatabaseExists), colorize))
	fmt.Fprintln(out, renderStatusLine("Readable", boolKind(health.DatabaseReadable), yesNo(health.DatabaseReadable), colorize))
	fmt.Fprintln(out, renderStatusLine("Schema", boolKind(health.TableExists), yesNo(health.TableExists), colorize))
	fmt.Fprintln(out, renderStatusLine("Integrity", boolKind(health.IntegrityCheck), yesNo(health.IntegrityCheck), colorize))
	fmt.Fprintln(out, renderStatusLine("Records", statusInfo, fmt.Sprintf("%d", health.TotalRecords), colorize))
	if health.Error != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, health.Error, colorize))
	}
}

func boolKind(ok bool) statusKind {
	if ok {
		return statusOK
	}
	return statusError
}

func truncateText(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 0 || len(value) <= limit {
		return value
	}
	if limit <= 3 {
		return value[:limit]
	}
	return value[:limit-3] + "..."
}
