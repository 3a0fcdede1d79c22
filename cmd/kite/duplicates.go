package main

import (
	"fmt"
	"time"

	"github.com/chudeemeke/kite-pfm/internal/repo"

	"github.com/spf13/cobra"
)

func duplicatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "Find and merge duplicate transactions",
	}

	cmd.AddCommand(duplicatesDetectCmd())
	cmd.AddCommand(duplicatesMergeCmd())

	return cmd
}

func duplicatesDetectCmd() *cobra.Command {
	var (
		window time.Duration
		fuzzy  bool
	)

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "List groups of likely duplicates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			groups, err := repos.Transactions.DetectDuplicates(ctx, repo.DuplicateOptions{
				Window:        window,
				FuzzyMerchant: fuzzy,
			})
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				fmt.Println("No duplicates found.")
				return nil
			}

			for i, group := range groups {
				fmt.Printf("Group %d:\n", i+1)
				for _, txn := range group.Transactions {
					fmt.Printf("  %s  %-20s %12s  %s\n",
						txn.Date.Format("2006-01-02 15:04"),
						truncate(txn.Merchant, 20),
						formatAmount(txn.Amount, txn.Currency),
						txn.ID)
				}
			}
			fmt.Printf("%d groups. Merge one with 'kite duplicates merge <id> <id> ...'\n", len(groups))
			return nil
		},
	}

	cmd.Flags().DurationVar(&window, "window", 5*time.Minute, "date window for candidates")
	cmd.Flags().BoolVar(&fuzzy, "fuzzy", false, "treat near-identical merchant names as the same")
	return cmd
}

func duplicatesMergeCmd() *cobra.Command {
	var keepLatest bool

	cmd := &cobra.Command{
		Use:   "merge <id> <id> [id...]",
		Short: "Merge duplicates into the oldest (or newest) transaction",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			merged, err := repos.Transactions.MergeDuplicates(ctx, args, !keepLatest, actor())
			if err != nil {
				return err
			}
			fmt.Printf("Merged %d transactions into %s (%s)\n", len(args), merged.Description, merged.ID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&keepLatest, "keep-latest", false, "keep the newest transaction instead of the oldest")
	return cmd
}
