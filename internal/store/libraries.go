package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by single-row lookups that find nothing.
var ErrNotFound = errors.New("not found")

// CreateLibrary registers a new root folder.
func (s *Store) CreateLibrary(ctx context.Context, path, name string, recursive bool) (*Library, error) {
	lib := &Library{
		ID:        uuid.NewString(),
		Path:      path,
		Name:      name,
		Recursive: recursive,
		CreatedAt: time.Now().UTC(),
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO libraries (id, path, name, recursive, created_at) VALUES (?, ?, ?, ?, ?)`,
			lib.ID, lib.Path, lib.Name, lib.Recursive, lib.CreatedAt.Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create library: %w", err)
	}
	return lib, nil
}

// GetLibrary fetches a library by ID.
func (s *Store) GetLibrary(ctx context.Context, id string) (*Library, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, path, name, recursive, created_at FROM libraries WHERE id = ?`, id)
	return scanLibrary(row)
}

// ListLibraries returns every registered library.
func (s *Store) ListLibraries(ctx context.Context) ([]*Library, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, path, name, recursive, created_at FROM libraries ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	defer rows.Close()

	var out []*Library
	for rows.Next() {
		lib, err := scanLibraryRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lib)
	}
	return out, rows.Err()
}

// RenameLibrary updates a library's display name.
func (s *Store) RenameLibrary(ctx context.Context, id, name string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE libraries SET name = ? WHERE id = ?`, name, id)
		return err
	})
}

// DeleteLibrary removes a library and, via ON DELETE CASCADE, every
// item and derived record under it.
func (s *Store) DeleteLibrary(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM libraries WHERE id = ?`, id)
		return err
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLibrary(row *sql.Row) (*Library, error) {
	lib, err := scanLibraryRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return lib, err
}

func scanLibraryRow(s rowScanner) (*Library, error) {
	var lib Library
	var createdAt string
	if err := s.Scan(&lib.ID, &lib.Path, &lib.Name, &lib.Recursive, &createdAt); err != nil {
		return nil, err
	}
	lib.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &lib, nil
}

func scanLibraryRows(rows *sql.Rows) (*Library, error) {
	return scanLibraryRow(rows)
}
