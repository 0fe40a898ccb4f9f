package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"postbox/internal/ipc"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Ask the daemon to drain the queue now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SyncNow()
				if err != nil {
					return err
				}
				if !resp.Requested {
					return fmt.Errorf("daemon did not accept the sync request")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Sync requested")
				return nil
			})
		},
	}
}
