package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chudeemeke/kite-pfm/internal/ingest"
	"github.com/chudeemeke/kite-pfm/internal/model"
	"github.com/chudeemeke/kite-pfm/internal/repo"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	var (
		accountID  string
		window     time.Duration
		categorize bool
		expect     float64
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import transactions from a CSV, OFX/QFX, or JSON file",
		Long: `Import parses the file by extension (.csv, .ofx, .qfx, or a JSON
transaction array) and inserts the rows in atomic batches. Rows that
duplicate stored transactions (same account, amount within one cent, date
within the duplicate window) are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repos, cleanup, err := initRepos(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			incoming, err := readImportFile(args[0])
			if err != nil {
				return err
			}

			if accountID == "" {
				def, err := repos.Accounts.Default(ctx)
				if err != nil {
					return fmt.Errorf("no --account given and no default account set")
				}
				accountID = def.ID
			}
			for i := range incoming {
				incoming[i].AccountID = accountID
			}

			bar := progressbar.NewOptions(len(incoming),
				progressbar.OptionSetDescription("Importing"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)

			opts := repo.ImportOptions{
				DuplicateWindow: window,
				Categorize:      categorize,
				OnProgress: func(done, _ int) {
					_ = bar.Set(done)
				},
			}
			if cmd.Flags().Changed("expect-balance") {
				opts.ExpectedBalances = map[string]float64{accountID: expect}
			}

			result, err := repos.Transactions.Import(ctx, incoming, actor(), opts)
			if err != nil {
				return err
			}
			_ = bar.Finish()

			fmt.Printf("Imported %d, skipped %d duplicates", result.Imported, result.Skipped)
			if result.Errors > 0 {
				fmt.Printf(", rejected %d invalid rows", result.Errors)
			}
			if categorize {
				fmt.Printf(", categorized %d", result.Categorized)
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "account id to import into (default account when omitted)")
	cmd.Flags().DurationVar(&window, "duplicate-window", time.Minute, "date window for the duplicate pre-check")
	cmd.Flags().BoolVar(&categorize, "categorize", false, "run categorization rules after the import")
	cmd.Flags().Float64Var(&expect, "expect-balance", 0, "statement closing balance; drift is logged after the import")
	return cmd
}

// readImportFile parses the file according to its extension.
func readImportFile(path string) ([]model.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ingest.ParseCSV(f)
	case ".ofx", ".qfx":
		return ingest.ParseOFX(f)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		var incoming []model.Transaction
		if err := json.Unmarshal(data, &incoming); err != nil {
			return nil, fmt.Errorf("%s is not a JSON transaction array: %w", path, err)
		}
		return incoming, nil
	}
}
