package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func subscriptionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscriptions",
		Short: "Track recurring payments",
	}

	cmd.AddCommand(subscriptionsListCmd())
	cmd.AddCommand(subscriptionsAdvanceCmd())

	return cmd
}

func subscriptionsListCmd() *cobra.Command {
	var horizon time.Duration

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List subscriptions due within the horizon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			subs, err := repos.Subscriptions.Upcoming(ctx, horizon)
			if err != nil {
				return err
			}
			if len(subs) == 0 {
				fmt.Println("Nothing due.")
				return nil
			}
			for _, sub := range subs {
				fmt.Printf("%s  %-25s %12s  every %s  %s\n",
					sub.NextDueDate.Format("2006-01-02"),
					truncate(sub.Name, 25),
					formatAmount(sub.Amount, sub.Currency),
					sub.Cadence, sub.ID)
			}

			monthly, err := repos.Subscriptions.MonthlyCost(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("\nApproximate monthly cost: %.2f\n", monthly)
			return nil
		},
	}

	cmd.Flags().DurationVar(&horizon, "horizon", 30*24*time.Hour, "how far ahead to look")
	return cmd
}

func subscriptionsAdvanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "advance <id>",
		Short: "Move a subscription's next due date forward one interval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			sub, err := repos.Subscriptions.Advance(ctx, args[0], actor())
			if err != nil {
				return err
			}
			fmt.Printf("%s is next due %s\n", sub.Name, sub.NextDueDate.Format("2006-01-02"))
			return nil
		},
	}
}
