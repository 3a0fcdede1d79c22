package main

import (
	"fmt"

	"github.com/chudeemeke/kite-pfm/internal/model"
	"github.com/chudeemeke/kite-pfm/internal/repo"

	"github.com/spf13/cobra"
)

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage accounts",
	}

	cmd.AddCommand(accountsListCmd())
	cmd.AddCommand(accountsAddCmd())
	cmd.AddCommand(accountsArchiveCmd())
	cmd.AddCommand(accountsSetDefaultCmd())
	cmd.AddCommand(accountsAdjustCmd())
	cmd.AddCommand(accountsDeleteCmd())

	return cmd
}

func accountsListCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			var accounts []model.Account
			if all {
				accounts, err = repos.Accounts.List(ctx, repo.ListOptions[model.Account]{})
			} else {
				accounts, err = repos.Accounts.ListActive(ctx)
			}
			if err != nil {
				return err
			}

			if len(accounts) == 0 {
				fmt.Println("No accounts yet. Create one with 'kite accounts add'.")
				return nil
			}
			for _, account := range accounts {
				marker := " "
				if account.IsDefault {
					marker = "*"
				}
				status := ""
				if account.Archived() {
					status = " (archived)"
				}
				fmt.Printf("%s %-20s %-10s %12s  %s%s\n",
					marker, account.Name, account.Type,
					formatAmount(account.Balance, account.Currency), account.ID, status)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include archived accounts")
	return cmd
}

func accountsAddCmd() *cobra.Command {
	var (
		accountType string
		currency    string
		balance     float64
		makeDefault bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			account := &model.Account{
				Name:     args[0],
				Type:     model.AccountType(accountType),
				Currency: currency,
				Balance:  balance,
			}
			if err := repos.Accounts.Create(ctx, account, actor()); err != nil {
				return err
			}
			if makeDefault {
				if err := repos.Accounts.SetDefault(ctx, account.ID, actor()); err != nil {
					return err
				}
			}

			fmt.Printf("Created account %s (%s)\n", account.Name, account.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountType, "type", string(model.AccountChecking), "account type (checking, savings, credit, cash, investment)")
	cmd.Flags().StringVar(&currency, "currency", "USD", "3-letter currency code")
	cmd.Flags().Float64Var(&balance, "balance", 0, "opening balance")
	cmd.Flags().BoolVar(&makeDefault, "default", false, "make this the default account")
	return cmd
}

func accountsArchiveCmd() *cobra.Command {
	var unarchive bool

	cmd := &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive or unarchive an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if unarchive {
				account, err := repos.Accounts.Unarchive(ctx, args[0], actor())
				if err != nil {
					return err
				}
				fmt.Printf("Unarchived account %s\n", account.Name)
				return nil
			}

			account, err := repos.Accounts.Archive(ctx, args[0], actor())
			if err != nil {
				return err
			}
			fmt.Printf("Archived account %s\n", account.Name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&unarchive, "undo", false, "unarchive instead")
	return cmd
}

func accountsSetDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-default <id>",
		Short: "Make an account the default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := repos.Accounts.SetDefault(ctx, args[0], actor()); err != nil {
				return err
			}
			fmt.Printf("Default account is now %s\n", args[0])
			return nil
		},
	}
}

func accountsAdjustCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "adjust <id> <delta>",
		Short: "Shift an account's opening balance by a signed amount",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			var delta float64
			if _, err := fmt.Sscanf(args[1], "%f", &delta); err != nil {
				return fmt.Errorf("invalid delta %q: %w", args[1], err)
			}

			account, err := repos.Accounts.AdjustBalance(ctx, args[0], delta, actor())
			if err != nil {
				return err
			}
			fmt.Printf("Balance of %s is now %s\n", account.Name, formatAmount(account.Balance, account.Currency))
			return nil
		},
	}
}

func accountsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an empty account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := repos.Accounts.Delete(ctx, args[0], actor(), false); err != nil {
				return err
			}
			fmt.Printf("Deleted account %s\n", args[0])
			return nil
		},
	}
}
