// Package store snapshots the whole index into PostgreSQL and restores it.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/term"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/textfile"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/tracing"
)

const schema = `CREATE TABLE IF NOT EXISTS term_index_snapshot (
    name       TEXT PRIMARY KEY,
    pages      BIGINT[] NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Source supplies the terms to snapshot.
type Source interface {
	All() []*term.Term
}

// Store keeps the latest index snapshot in the term_index_snapshot table.
// Each Save replaces the table content, so the table always mirrors one
// consistent listing.
type Store struct {
	db     *postgres.Client
	retry  resilience.RetryConfig
	onSave func(error)
	logger *slog.Logger
}

func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		retry:  resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond},
		logger: slog.Default().With("component", "snapshot-store"),
	}
}

// OnSave registers a callback run after every periodic or final save.
func (s *Store) OnSave(fn func(error)) {
	s.onSave = fn
}

// EnsureSchema creates the snapshot table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating snapshot table: %w", err)
	}
	return nil
}

// Save replaces the stored snapshot with terms in one transaction.
func (s *Store) Save(ctx context.Context, terms []*term.Term) error {
	ctx, span := tracing.StartChild(ctx, "snapshot_save")
	defer span.End()
	span.SetAttr("terms", len(terms))

	now := time.Now().UTC()
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM term_index_snapshot`); err != nil {
			return fmt.Errorf("clearing snapshot: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO term_index_snapshot (name, pages, updated_at) VALUES ($1, $2, $3)`)
		if err != nil {
			return fmt.Errorf("preparing snapshot insert: %w", err)
		}
		defer stmt.Close()
		for _, t := range terms {
			if _, err := stmt.ExecContext(ctx, t.Name(), pq.Array(toInt64(t.Pages())), now); err != nil {
				return fmt.Errorf("inserting term %q: %w", t.Name(), err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	s.logger.Info("snapshot saved", "terms", len(terms))
	return nil
}

// Load feeds every stored term to sink in name order and returns how many
// were read. Rows with no valid page are skipped.
func (s *Store) Load(ctx context.Context, sink textfile.Sink) (int, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT name, pages FROM term_index_snapshot ORDER BY name`)
	if err != nil {
		return 0, fmt.Errorf("querying snapshot: %w", err)
	}
	defer rows.Close()

	loaded := 0
	for rows.Next() {
		var name string
		var raw pq.Int64Array
		if err := rows.Scan(&name, &raw); err != nil {
			return loaded, fmt.Errorf("scanning snapshot row: %w", err)
		}
		pages := fromInt64(raw)
		if len(pages) == 0 {
			s.logger.Warn("skipping snapshot row without pages", "term", name)
			continue
		}
		sink.AddTermPages(name, pages)
		loaded++
	}
	if err := rows.Err(); err != nil {
		return loaded, fmt.Errorf("reading snapshot rows: %w", err)
	}
	s.logger.Info("snapshot loaded", "terms", loaded)
	return loaded, nil
}

// StartPeriodicSave snapshots src every interval until ctx is done, then
// takes a final snapshot. The returned channel closes once that final
// snapshot has been attempted.
func (s *Store) StartPeriodicSave(ctx context.Context, src Source, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				err := resilience.Retry(ctx, "snapshot-save", s.retry, func() error {
					return s.Save(ctx, src.All())
				})
				if err != nil {
					s.logger.Error("periodic snapshot failed", "error", err)
				}
				s.saved(err)
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				err := s.Save(shutdownCtx, src.All())
				cancel()
				if err != nil {
					s.logger.Error("final snapshot failed", "error", err)
				}
				s.saved(err)
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval)
	return done
}

func (s *Store) saved(err error) {
	if s.onSave != nil {
		s.onSave(err)
	}
}

func toInt64(pages []uint32) []int64 {
	out := make([]int64, len(pages))
	for i, p := range pages {
		out[i] = int64(p)
	}
	return out
}

func fromInt64(raw []int64) []uint32 {
	out := make([]uint32, 0, len(raw))
	for _, p := range raw {
		if p > 0 && p <= int64(^uint32(0)) {
			out = append(out, uint32(p))
		}
	}
	return out
}
