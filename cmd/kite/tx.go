package main

import (
	"fmt"
	"time"

	"github.com/chudeemeke/kite-pfm/internal/model"
	"github.com/chudeemeke/kite-pfm/internal/repo"

	"github.com/spf13/cobra"
)

func txCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Manage transactions",
	}

	cmd.AddCommand(txListCmd())
	cmd.AddCommand(txAddCmd())
	cmd.AddCommand(txDeleteCmd())
	cmd.AddCommand(txRestoreCmd())
	cmd.AddCommand(txStatsCmd())
	cmd.AddCommand(txBalanceCmd())

	return cmd
}

func searchFlags(cmd *cobra.Command, filters *repo.SearchFilters, from, to *string) {
	cmd.Flags().StringVar(&filters.AccountID, "account", "", "filter by account id")
	cmd.Flags().StringVar(&filters.CategoryID, "category", "", "filter by category id")
	cmd.Flags().StringVar(&filters.Query, "query", "", "substring match on merchant, description, notes")
	cmd.Flags().BoolVar(&filters.Uncategorized, "uncategorized", false, "only uncategorized transactions")
	cmd.Flags().BoolVar(&filters.Subscriptions, "subscriptions", false, "only transactions marked as subscriptions")
	cmd.Flags().StringVar(&filters.Type, "type", "", "transaction type (income, expense, transfer)")
	cmd.Flags().StringSliceVar(&filters.Merchants, "merchant", nil, "match merchant exactly (repeatable)")
	cmd.Flags().StringSliceVar(&filters.Tags, "tag", nil, "require tag (repeatable)")
	cmd.Flags().StringVar(from, "from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(to, "to", "", "end date (YYYY-MM-DD)")
}

func applyDateFlags(filters *repo.SearchFilters, from, to string) error {
	if from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return fmt.Errorf("invalid --from date: %w", err)
		}
		filters.From = &t
	}
	if to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return fmt.Errorf("invalid --to date: %w", err)
		}
		end := t.Add(24*time.Hour - time.Nanosecond)
		filters.To = &end
	}
	return nil
}

func txListCmd() *cobra.Command {
	var (
		filters  repo.SearchFilters
		from, to string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Search transactions",
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
			filters.Limit = limit

			txns, err := repos.Transactions.Search(ctx, filters)
			if err != nil {
				return err
			}
			if len(txns) == 0 {
				fmt.Println("No matching transactions.")
				return nil
			}

			for _, txn := range txns {
				category := txn.CategoryID
				if category == "" {
					category = "-"
				}
				fmt.Printf("%s  %-25s %12s  %-12s %s\n",
					txn.Date.Format("2006-01-02"),
					truncate(txn.Description, 25),
					formatAmount(txn.Amount, txn.Currency),
					truncate(category, 12),
					txn.ID)
			}
			return nil
		},
	}

	searchFlags(cmd, &filters, &from, &to)
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func txAddCmd() *cobra.Command {
	var (
		accountID string
		category  string
		merchant  string
		date      string
		currency  string
		notes     string
		tags      []string
	)

	cmd := &cobra.Command{
		Use:   "add <description> <amount>",
		Short: "Record a transaction (negative amount for expenses)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			var amount float64
			if _, err := fmt.Sscanf(args[1], "%f", &amount); err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}

			when := time.Now()
			if date != "" {
				when, err = time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
			}

			if accountID == "" {
				def, err := repos.Accounts.Default(ctx)
				if err != nil {
					return fmt.Errorf("no --account given and no default account set")
				}
				accountID = def.ID
			}

			txn := &model.Transaction{
				Date:        when,
				AccountID:   accountID,
				CategoryID:  category,
				Currency:    currency,
				Description: args[0],
				Merchant:    merchant,
				Notes:       notes,
				Tags:        tags,
				Amount:      amount,
			}
			if err := repos.Transactions.Create(ctx, txn, actor()); err != nil {
				return err
			}

			fmt.Printf("Recorded %s %s (%s)\n", txn.Description, formatAmount(txn.Amount, txn.Currency), txn.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "account id (default account when omitted)")
	cmd.Flags().StringVar(&category, "category", "", "category id")
	cmd.Flags().StringVar(&merchant, "merchant", "", "merchant name")
	cmd.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD, today when omitted)")
	cmd.Flags().StringVar(&currency, "currency", "USD", "3-letter currency code")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag (repeatable)")
	return cmd
}

func txDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transaction (recoverable unless --force)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := repos.Transactions.Delete(ctx, args[0], actor(), force); err != nil {
				return err
			}
			fmt.Printf("Deleted transaction %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "remove permanently")
	return cmd
}

func txRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a deleted transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			txn, err := repos.Transactions.Restore(ctx, args[0], actor())
			if err != nil {
				return err
			}
			fmt.Printf("Restored %s %s\n", txn.Description, formatAmount(txn.Amount, txn.Currency))
			return nil
		},
	}
}

func txStatsCmd() *cobra.Command {
	var (
		filters  repo.SearchFilters
		from, to string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize matching transactions",
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

			stats, err := repos.Transactions.Statistics(ctx, filters)
			if err != nil {
				return err
			}

			fmt.Printf("Transactions: %d\n", stats.Count)
			fmt.Printf("Income:       %.2f\n", stats.Income)
			fmt.Printf("Expenses:     %.2f\n", stats.Expenses)
			fmt.Printf("Net:          %.2f\n", stats.Net)
			fmt.Printf("Average:      %.2f\n", stats.AvgAmount)
			if stats.LargestIncome > 0 {
				fmt.Printf("Largest income:  %.2f\n", stats.LargestIncome)
			}
			if stats.LargestExpense < 0 {
				fmt.Printf("Largest expense: %.2f\n", stats.LargestExpense)
			}
			if stats.TopMerchant != "" {
				fmt.Printf("Top merchant: %s\n", stats.TopMerchant)
			}
			if stats.TopCategory != "" {
				fmt.Printf("Top category: %s\n", stats.TopCategory)
			}
			if stats.Days > 0 {
				fmt.Printf("Net per day:  %.2f (over %d days)\n", stats.NetPerDay, stats.Days)
			}
			if len(stats.ByMonth) > 0 {
				fmt.Println("\nBy month:")
				for month, g := range stats.ByMonth {
					fmt.Printf("  %s  net %.2f over %d transactions\n", month, g.Sum, g.Count)
				}
			}
			return nil
		},
	}

	searchFlags(cmd, &filters, &from, &to)
	return cmd
}

func txBalanceCmd() *cobra.Command {
	var (
		opening  float64
		from, to string
	)

	cmd := &cobra.Command{
		Use:   "balance <account-id>",
		Short: "Replay an account's running balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			var window repo.SearchFilters
			if err := applyDateFlags(&window, from, to); err != nil {
				return err
			}

			points, err := repos.Transactions.RunningBalance(ctx, args[0], opening, window.From, window.To)
			if err != nil {
				return err
			}
			for _, point := range points {
				fmt.Printf("%s  %-25s %12s  balance %12s\n",
					point.Transaction.Date.Format("2006-01-02"),
					truncate(point.Transaction.Description, 25),
					formatAmount(point.Transaction.Amount, point.Transaction.Currency),
					formatAmount(point.Balance, point.Transaction.Currency))
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&opening, "opening", 0, "opening balance (ignored when --from is set)")
	cmd.Flags().StringVar(&from, "from", "", "start date (YYYY-MM-DD); seeds from the sum of earlier transactions")
	cmd.Flags().StringVar(&to, "to", "", "end date (YYYY-MM-DD)")
	return cmd
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
