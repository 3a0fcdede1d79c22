package main

import (
	"fmt"
	"time"

	"github.com/chudeemeke/kite-pfm/internal/model"

	"github.com/spf13/cobra"
)

func budgetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budgets",
		Short: "Manage monthly category budgets",
	}

	cmd.AddCommand(budgetsListCmd())
	cmd.AddCommand(budgetsSetCmd())
	cmd.AddCommand(budgetsLedgerCmd())

	return cmd
}

func budgetsListCmd() *cobra.Command {
	var month string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List budgets for a month",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if month == "" {
				month = time.Now().Format("2006-01")
			}
			budgets, err := repos.Budgets.ForMonth(ctx, month)
			if err != nil {
				return err
			}
			if len(budgets) == 0 {
				fmt.Printf("No budgets for %s.\n", month)
				return nil
			}
			for _, b := range budgets {
				fmt.Printf("%-36s %10.2f  carry=%s  %s\n", b.CategoryID, b.Amount, b.CarryStrategy, b.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&month, "month", "", "month (YYYY-MM, current month when omitted)")
	return cmd
}

func budgetsSetCmd() *cobra.Command {
	var carry string

	cmd := &cobra.Command{
		Use:   "set <category-id> <month> <amount>",
		Short: "Create or replace a category's budget for a month",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			var amount float64
			if _, err := fmt.Sscanf(args[2], "%f", &amount); err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[2], err)
			}

			// Replace an existing budget for the same pair in place.
			existing, err := repos.Budgets.ForCategory(ctx, args[0])
			if err != nil {
				return err
			}
			for _, b := range existing {
				if b.Month == args[1] {
					updated, err := repos.Budgets.Update(ctx, b.ID, func(cur *model.Budget) error {
						cur.Amount = amount
						cur.CarryStrategy = model.CarryStrategy(carry)
						return nil
					}, actor(), nil)
					if err != nil {
						return err
					}
					fmt.Printf("Updated budget %s: %.2f for %s\n", updated.ID, amount, args[1])
					return nil
				}
			}

			budget := &model.Budget{
				CategoryID:    args[0],
				Month:         args[1],
				Amount:        amount,
				CarryStrategy: model.CarryStrategy(carry),
			}
			if err := repos.Budgets.Create(ctx, budget, actor()); err != nil {
				return err
			}
			fmt.Printf("Budgeted %.2f for %s in %s\n", amount, args[0], args[1])
			return nil
		},
	}

	cmd.Flags().StringVar(&carry, "carry", string(model.CarryNone), "carry strategy (none, carry-unspent, carry-overspend)")
	return cmd
}

func budgetsLedgerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ledger <category-id> <from-month> <to-month>",
		Short: "Show a category's month-by-month budget ledger",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			lines, err := repos.BudgetLedger(ctx, args[0], args[1], args[2])
			if err != nil {
				return err
			}

			fmt.Printf("%-8s %12s %12s %12s %12s\n", "Month", "Budgeted", "Carried", "Spent", "Remaining")
			for _, line := range lines {
				fmt.Printf("%-8s %12s %12s %12s %12s\n",
					line.Month,
					line.Budgeted.StringFixed(2),
					line.CarriedIn.StringFixed(2),
					line.Spent.StringFixed(2),
					line.Remaining.StringFixed(2))
			}
			return nil
		},
	}
}
