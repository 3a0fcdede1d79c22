// Package backup exports the full data set to a portable JSON document and
// restores it, for device migration and offline safekeeping.
package backup

import (
	"bufio"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/chudeemeke/kite-pfm/internal/common"
	"github.com/chudeemeke/kite-pfm/internal/store"

	"golang.org/x/sync/errgroup"
)

// Envelope is the backup file format: a schema version, a timestamp, and
// the raw documents of every record table. The documents carry their own
// envelopes, so a restore preserves ids, versions, and audit stamps.
type Envelope struct {
	Data      map[string][]json.RawMessage `json:"data"`
	Timestamp time.Time                    `json:"timestamp"`
	Version   int64                        `json:"version"`
}

// ImportMode selects how a restore treats existing data.
type ImportMode string

// Import modes. Replace clears each table first; Merge upserts over what is
// already there, incoming rows winning on id collisions.
const (
	ModeReplace ImportMode = "replace"
	ModeMerge   ImportMode = "merge"
)

// Manager runs backup exports and imports over one store.
type Manager struct {
	store *store.Store
}

// NewManager creates a backup manager.
func NewManager(st *store.Store) *Manager {
	return &Manager{store: st}
}

// Export writes the full data set to w as JSON, gzip-compressed when
// compress is set. Soft-deleted rows are included so a restore is lossless.
func (m *Manager) Export(ctx context.Context, w io.Writer, compress bool) error {
	env := Envelope{
		Version:   store.ExpectedSchemaVersion,
		Timestamp: time.Now(),
		Data:      make(map[string][]json.RawMessage),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, table := range store.RecordTables() {
		table := table
		g.Go(func() error {
			records, err := m.store.ScanTable(gctx, m.store.DB(), table, true)
			if err != nil {
				return fmt.Errorf("failed to export %s: %w", table, err)
			}
			docs := make([]json.RawMessage, 0, len(records))
			for _, rec := range records {
				docs = append(docs, json.RawMessage(rec.Data))
			}
			mu.Lock()
			env.Data[table] = docs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out := w
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(w)
		out = gz
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to finish compressed backup: %w", err)
		}
	}

	total := 0
	for _, docs := range env.Data {
		total += len(docs)
	}
	slog.Info("backup exported", "tables", len(env.Data), "records", total)
	return nil
}

// Import restores a backup from r, transparently detecting gzip. The whole
// restore is one transaction: a malformed document or mid-restore failure
// leaves the store untouched.
func (m *Manager) Import(ctx context.Context, r io.Reader, mode ImportMode) (int, error) {
	env, err := decode(r)
	if err != nil {
		return 0, err
	}
	if err := validate(env); err != nil {
		return 0, err
	}

	restored := 0
	err = m.store.Atomic(ctx, func(ctx context.Context, tx *sql.Tx) error {
		// Stable table order keeps restores deterministic.
		tables := make([]string, 0, len(env.Data))
		for table := range env.Data {
			tables = append(tables, table)
		}
		sort.Strings(tables)

		for _, table := range tables {
			if mode == ModeReplace {
				if err := m.store.ClearTable(ctx, tx, table); err != nil {
					return err
				}
			}
			n, err := m.restoreTable(ctx, tx, table, env.Data[table])
			if err != nil {
				return err
			}
			restored += n
		}

		return m.store.AppendMetadata(ctx, tx, "import",
			fmt.Sprintf("restored %d records, mode %s", restored, mode))
	})
	if err != nil {
		return 0, err
	}

	slog.Info("backup imported", "records", restored, "mode", mode)
	return restored, nil
}

func (m *Manager) restoreTable(ctx context.Context, tx *sql.Tx, table string, docs []json.RawMessage) (int, error) {
	for i, doc := range docs {
		var head struct {
			ID        string    `json:"id"`
			CreatedAt time.Time `json:"createdAt"`
			UpdatedAt time.Time `json:"updatedAt"`
			Version   int64     `json:"version"`
			IsDeleted bool      `json:"isDeleted"`
		}
		if err := json.Unmarshal(doc, &head); err != nil || head.ID == "" {
			return 0, &common.ImportFormatError{
				Reason: fmt.Sprintf("%s document %d has no usable id", table, i),
			}
		}
		if head.Version <= 0 {
			head.Version = 1
		}

		rec := store.Record{
			ID:        head.ID,
			Data:      []byte(doc),
			Version:   head.Version,
			IsDeleted: head.IsDeleted,
		}
		createdAt := head.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		updatedAt := head.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = createdAt
		}
		if err := m.store.PutRecord(ctx, tx, table, rec, createdAt, updatedAt); err != nil {
			return 0, err
		}
	}
	return len(docs), nil
}

// decode reads an envelope from plain or gzipped JSON.
func decode(r io.Reader) (*Envelope, error) {
	buffered := bufio.NewReader(r)
	magic, err := buffered.Peek(2)
	if err != nil {
		return nil, &common.ImportFormatError{Reason: "backup is empty or unreadable"}
	}

	src := io.Reader(buffered)
	if magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			return nil, &common.ImportFormatError{Reason: "backup compression is corrupt"}
		}
		defer func() { _ = gz.Close() }()
		src = gz
	}

	var env Envelope
	if err := json.NewDecoder(src).Decode(&env); err != nil {
		return nil, &common.ImportFormatError{Reason: fmt.Sprintf("backup is not valid JSON: %v", err)}
	}
	return &env, nil
}

func validate(env *Envelope) error {
	if env.Version == 0 {
		return &common.ImportFormatError{Reason: "backup has no version"}
	}
	if env.Version > store.ExpectedSchemaVersion {
		return &common.ImportFormatError{
			Reason: fmt.Sprintf("backup version %d is newer than supported version %d",
				env.Version, store.ExpectedSchemaVersion),
		}
	}
	if env.Data == nil {
		return &common.ImportFormatError{Reason: "backup has no data section"}
	}
	for table := range env.Data {
		if !knownTable(table) {
			return &common.ImportFormatError{Reason: fmt.Sprintf("backup contains unknown table %q", table)}
		}
	}
	return nil
}

func knownTable(table string) bool {
	for _, known := range store.RecordTables() {
		if table == known {
			return true
		}
	}
	return false
}
