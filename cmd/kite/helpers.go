package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/chudeemeke/kite-pfm/internal/repo"
	"github.com/chudeemeke/kite-pfm/internal/store"
	"github.com/chudeemeke/kite-pfm/internal/syncq"

	"github.com/Rhymond/go-money"
	"github.com/spf13/viper"
)

// initStore opens and migrates the configured database.
func initStore(ctx context.Context) (*store.Store, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/kite/kite.db"
	}
	dbPath = expandPath(dbPath)

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	st, err := store.New(dbPath, store.Options{})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return st, nil
}

// initRepos opens the store and builds the repository bundle. When sync
// journaling is enabled every mutation is also recorded in the offline
// queue. The returned cleanup closes the store.
func initRepos(ctx context.Context) (*repo.Repos, func(), error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	repos := repo.NewRepos(st)
	if viper.GetBool("sync.journal") {
		repos.JournalTo(syncq.New(st))
	}
	return repos, func() { _ = st.Close() }, nil
}

// expandPath resolves ~ and environment variables in a config path.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

func actor() string {
	return viper.GetString("actor")
}

// formatAmount renders a signed amount in its currency for display.
func formatAmount(amount float64, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	minor := int64(math.Round(amount * 100))
	return money.New(minor, currency).Display()
}
