package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SetFavorite marks or unmarks an item or person as a favorite.
func (s *Store) SetFavorite(ctx context.Context, kind FavoriteKind, targetID string, favorite bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if favorite {
			_, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO favorites (kind, target_id) VALUES (?,?)`, string(kind), targetID)
		} else {
			_, err = tx.ExecContext(ctx, `DELETE FROM favorites WHERE kind = ? AND target_id = ?`, string(kind), targetID)
		}
		return err
	})
}

// ListFavorites returns every favorited target ID of a given kind.
func (s *Store) ListFavorites(ctx context.Context, kind FavoriteKind) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT target_id FROM favorites WHERE kind = ?`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// AddTag attaches a user tag to an item.
func (s *Store) AddTag(ctx context.Context, itemID, tag string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO tags (item_id, tag) VALUES (?,?)`, itemID, tag)
		return err
	})
}

// RemoveTag detaches a user tag from an item.
func (s *Store) RemoveTag(ctx context.Context, itemID, tag string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE item_id = ? AND tag = ?`, itemID, tag)
		return err
	})
}

// ListTags returns every tag attached to an item.
func (s *Store) ListTags(ctx context.Context, itemID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tag FROM tags WHERE item_id = ?`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ItemsWithTag returns items carrying a given tag.
func (s *Store) ItemsWithTag(ctx context.Context, tag string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT item_id FROM tags WHERE tag = ?`, tag)
	if err != nil {
		return nil, fmt.Errorf("items with tag: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
