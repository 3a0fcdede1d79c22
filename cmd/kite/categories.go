package main

import (
	"fmt"

	"github.com/chudeemeke/kite-pfm/internal/model"

	"github.com/spf13/cobra"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage the category tree",
	}

	cmd.AddCommand(categoriesListCmd())
	cmd.AddCommand(categoriesAddCmd())
	cmd.AddCommand(categoriesMoveCmd())
	cmd.AddCommand(categoriesDeleteCmd())

	return cmd
}

func categoriesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the category tree",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			tree, err := repos.Categories.Tree(ctx)
			if err != nil {
				return err
			}
			if len(tree) == 0 {
				fmt.Println("No categories yet. Create one with 'kite categories add'.")
				return nil
			}

			var printBranch func(parentID, indent string)
			printBranch = func(parentID, indent string) {
				for _, cat := range tree[parentID] {
					fmt.Printf("%s%s  %s\n", indent, cat.Name, cat.ID)
					printBranch(cat.ID, indent+"  ")
				}
			}
			printBranch("", "")
			return nil
		},
	}
}

func categoriesAddCmd() *cobra.Command {
	var (
		parent string
		icon   string
		color  string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			category := &model.Category{
				Name:     args[0],
				ParentID: parent,
				Icon:     icon,
				Color:    color,
			}
			if err := repos.Categories.Create(ctx, category, actor()); err != nil {
				return err
			}
			fmt.Printf("Created category %s (%s)\n", category.Name, category.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&parent, "parent", "", "parent category id")
	cmd.Flags().StringVar(&icon, "icon", "", "display icon")
	cmd.Flags().StringVar(&color, "color", "", "display color")
	return cmd
}

func categoriesMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> [new-parent-id]",
		Short: "Move a category under a new parent (omit the parent to move to the root)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			parent := ""
			if len(args) == 2 {
				parent = args[1]
			}
			category, err := repos.Categories.Reparent(ctx, args[0], parent, actor())
			if err != nil {
				return err
			}
			fmt.Printf("Moved category %s\n", category.Name)
			return nil
		},
	}
}

func categoriesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an unused category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := repos.Categories.Delete(ctx, args[0], actor(), false); err != nil {
				return err
			}
			fmt.Printf("Deleted category %s\n", args[0])
			return nil
		},
	}
}
