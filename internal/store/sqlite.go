package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure Go driver, no CGO

	enginerrors "github.com/mediaengine/engine/internal/errors"
)

// Store is the engine's relational-state owner: a WAL-mode SQLite
// database. The full-text index (TranscriptIndex) and vector shards
// (ShardStore) are separate types that the Store does not hold.
type Store struct {
	db        *sql.DB
	path      string
	retryCfg  enginerrors.RetryConfig
	mu        sync.Mutex // serializes schema migrations only
}

// Open opens (creating if needed) the database at path, applies
// migrations, and creates indexes. WAL mode and a busy timeout of 30s
// keep the single writer from tripping over SQLite's own lock queue.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(30000)&_pragma=foreign_keys(1)"
	if path != ":memory:" {
		dsn = path + "?_pragma=busy_timeout(30000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer-friendly: serialize all access ourselves

	s := &Store{db: db, path: path, retryCfg: enginerrors.DefaultRetryConfig()}

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for components (e.g. consistency
// repair) that need raw queries not covered by a repository method.
func (s *Store) DB() *sql.DB { return s.db }

// withRetry wraps a write in the Store's retry-with-backoff policy:
// on exhaustion it returns a LOCK_CONTENTION error that the Pipeline
// interprets as "requeue this item".
func (s *Store) withRetry(ctx context.Context, fn func() error) error {
	return enginerrors.Retry(ctx, s.retryCfg, fn)
}

// withTx runs fn inside a single transaction, retried as a whole unit
// on lock contention. All multi-row writes go through this so they
// commit atomically.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// migrate applies additive schema changes idempotently, then creates
// indexes in a second pass so newly added columns can be indexed in the
// same boot.
func (s *Store) migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d failed: %w", i, err)
		}
	}
	for i, stmt := range indexStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("index statement %d failed: %w", i, err)
		}
	}

	slog.Debug("store migration complete", slog.Int("schema_statements", len(schemaStatements)))
	return nil
}
