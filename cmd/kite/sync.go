package main

import (
	"fmt"
	"strconv"

	"github.com/chudeemeke/kite-pfm/internal/syncq"

	"github.com/spf13/cobra"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Inspect the offline sync queue",
	}

	cmd.AddCommand(syncStatusCmd())
	cmd.AddCommand(syncRetryCmd())
	cmd.AddCommand(syncCompactCmd())

	return cmd
}

func syncStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pending and failed queue items",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			queue := syncq.New(st)
			pending, err := queue.Pending(ctx)
			if err != nil {
				return err
			}
			failed, err := queue.Failed(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Pending: %d, failed: %d\n", len(pending), len(failed))
			for _, item := range pending {
				fmt.Printf("  #%d %s %s queued %s (attempts %d)\n",
					item.ID, item.Operation, item.Table,
					item.QueuedAt.Format("2006-01-02 15:04"), item.Attempts)
			}
			for _, item := range failed {
				fmt.Printf("  #%d %s %s FAILED: %s\n",
					item.ID, item.Operation, item.Table, item.LastError)
			}
			return nil
		},
	}
}

func syncRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Requeue a failed item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid queue id %q", args[0])
			}
			if err := syncq.New(st).Retry(ctx, id); err != nil {
				return err
			}
			fmt.Printf("Requeued item #%d\n", id)
			return nil
		},
	}
}

func syncCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Remove completed queue items",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			removed, err := syncq.New(st).Compact(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d completed items\n", removed)
			return nil
		},
	}
}
