package main

import (
	"fmt"

	"github.com/chudeemeke/kite-pfm/internal/model"

	"github.com/spf13/cobra"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage categorization rules",
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())
	cmd.AddCommand(rulesToggleCmd())
	cmd.AddCommand(rulesDeleteCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rules in evaluation order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			rules, err := repos.Rules.Ordered(ctx)
			if err != nil {
				return err
			}
			if len(rules) == 0 {
				fmt.Println("No rules yet. Create one with 'kite rules add'.")
				return nil
			}
			for _, rule := range rules {
				state := "enabled"
				if !rule.Enabled {
					state = "disabled"
				}
				stop := ""
				if rule.StopProcessing {
					stop = " [stop]"
				}
				fmt.Printf("%4d  %-30s %-8s %d conditions, %d actions%s  %s\n",
					rule.Priority, truncate(rule.Name, 30), state,
					len(rule.Conditions), len(rule.Actions), stop, rule.ID)
			}
			return nil
		},
	}
}

func rulesAddCmd() *cobra.Command {
	var (
		priority     int
		merchant     string
		description  string
		category     string
		note         string
		subscription bool
		stop         bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a simple contains-match rule",
		Long: `Creates a rule matching transactions whose merchant or description
contains the given text, applying the requested actions. Edit complex
rules (regex, amount ranges) through the data layer directly.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			rule := &model.Rule{
				Name:           args[0],
				Priority:       priority,
				Enabled:        true,
				StopProcessing: stop,
			}
			if merchant != "" {
				rule.Conditions = append(rule.Conditions,
					model.Condition{Field: model.FieldMerchant, Op: model.OpContains, Value: merchant})
			}
			if description != "" {
				rule.Conditions = append(rule.Conditions,
					model.Condition{Field: model.FieldDescription, Op: model.OpContains, Value: description})
			}
			if category != "" {
				rule.Actions = append(rule.Actions,
					model.Action{Type: model.ActionSetCategory, CategoryID: category})
			}
			if note != "" {
				rule.Actions = append(rule.Actions,
					model.Action{Type: model.ActionAppendNote, Note: note})
			}
			if subscription {
				rule.Actions = append(rule.Actions,
					model.Action{Type: model.ActionSetSubscription, Subscription: true})
			}

			if err := repos.Rules.Create(ctx, rule, actor()); err != nil {
				return err
			}
			fmt.Printf("Created rule %s (%s)\n", rule.Name, rule.ID)
			return nil
		},
	}

	cmd.Flags().IntVar(&priority, "priority", 100, "evaluation priority (lower runs first)")
	cmd.Flags().StringVar(&merchant, "merchant", "", "match when the merchant contains this text")
	cmd.Flags().StringVar(&description, "description", "", "match when the description contains this text")
	cmd.Flags().StringVar(&category, "set-category", "", "assign this category id on match")
	cmd.Flags().StringVar(&note, "append-note", "", "append this note on match")
	cmd.Flags().BoolVar(&subscription, "mark-subscription", false, "mark matches as subscriptions")
	cmd.Flags().BoolVar(&stop, "stop", false, "stop evaluating later rules on match")
	return cmd
}

func rulesToggleCmd() *cobra.Command {
	var disable bool

	cmd := &cobra.Command{
		Use:   "toggle <id>",
		Short: "Enable or disable a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			rule, err := repos.Rules.Update(ctx, args[0], func(cur *model.Rule) error {
				cur.Enabled = !disable
				return nil
			}, actor(), nil)
			if err != nil {
				return err
			}
			state := "enabled"
			if !rule.Enabled {
				state = "disabled"
			}
			fmt.Printf("Rule %s is now %s\n", rule.Name, state)
			return nil
		},
	}

	cmd.Flags().BoolVar(&disable, "disable", false, "disable instead of enable")
	return cmd
}

func rulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := repos.Rules.Delete(ctx, args[0], actor(), false); err != nil {
				return err
			}
			fmt.Printf("Deleted rule %s\n", args[0])
			return nil
		},
	}
}
