package main

import (
	"fmt"
	"strings"

	"github.com/chudeemeke/kite-pfm/internal/repo"

	"github.com/spf13/cobra"
)

func categorizeCmd() *cobra.Command {
	var (
		filters  repo.SearchFilters
		ids      []string
		from, to string
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Run the categorization rules over uncategorized transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := applyDateFlags(&filters, from, to); err != nil {
				return err
			}

			if dryRun {
				preview, err := repos.Transactions.PreviewCategorize(ctx, ids, filters)
				if err != nil {
					return err
				}
				if len(preview) == 0 {
					fmt.Println("No transactions would change.")
					return nil
				}
				for id, outcome := range preview {
					var changes []string
					if outcome.CategoryAssigned {
						changes = append(changes, "category → "+outcome.CategoryID)
					}
					if outcome.Subscription != nil {
						changes = append(changes, fmt.Sprintf("subscription → %t", *outcome.Subscription))
					}
					if len(outcome.Notes) > 0 {
						changes = append(changes, "notes += "+strings.Join(outcome.Notes, "; "))
					}
					fmt.Printf("%s: %s\n", id, strings.Join(changes, ", "))
				}
				fmt.Printf("%d transactions would change.\n", len(preview))
				return nil
			}

			result, err := repos.Transactions.AutoCategorize(ctx, ids, filters, actor())
			if err != nil {
				return err
			}
			fmt.Printf("Scanned %d transactions, changed %d.\n", result.Scanned, result.Changed)
			return nil
		},
	}

	searchFlags(cmd, &filters, &from, &to)
	cmd.Flags().StringArrayVar(&ids, "id", nil, "categorize this transaction id even if already categorized (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would change without writing")
	return cmd
}
