package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/chudeemeke/kite-pfm/internal/backup"

	"github.com/spf13/cobra"
)

func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export and restore the full data set",
	}

	cmd.AddCommand(backupExportCmd())
	cmd.AddCommand(backupImportCmd())

	return cmd
}

func backupExportCmd() *cobra.Command {
	var compress bool

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export everything to a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			if strings.HasSuffix(args[0], ".gz") {
				compress = true
			}

			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", args[0], err)
			}
			defer func() { _ = f.Close() }()

			if err := backup.NewManager(st).Export(ctx, f, compress); err != nil {
				return err
			}
			fmt.Printf("Exported backup to %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&compress, "compress", false, "gzip the backup (implied by a .gz filename)")
	return cmd
}

func backupImportCmd() *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Restore a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer func() { _ = f.Close() }()

			mode := backup.ModeMerge
			if replace {
				mode = backup.ModeReplace
			}

			restored, err := backup.NewManager(st).Import(ctx, f, mode)
			if err != nil {
				return err
			}
			fmt.Printf("Restored %d records (%s mode)\n", restored, mode)
			return nil
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "clear existing data first instead of merging")
	return cmd
}
