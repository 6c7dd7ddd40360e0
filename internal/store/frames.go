package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// InsertFrames adds a batch of sampled frames for an item, assigning
// IDs where absent. Called by the frame-extraction stage.
func (s *Store) InsertFrames(ctx context.Context, itemID string, frames []Frame) ([]Frame, error) {
	for i := range frames {
		if frames[i].ID == "" {
			frames[i].ID = uuid.NewString()
		}
		frames[i].ItemID = itemID
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, f := range frames {
			colors, err := json.Marshal(f.Colors)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO frames (id, item_id, idx, timestamp_ms, thumbnail_path, colors) VALUES (?,?,?,?,?,?)`,
				f.ID, f.ItemID, f.Index, f.TimestampMs, f.ThumbnailPath, string(colors)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("insert frames: %w", err)
	}
	return frames, nil
}

// ListFrames returns every sampled frame for an item, ordered by index.
func (s *Store) ListFrames(ctx context.Context, itemID string) ([]Frame, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_id, idx, timestamp_ms, thumbnail_path, colors FROM frames WHERE item_id = ? ORDER BY idx ASC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	defer rows.Close()

	var out []Frame
	for rows.Next() {
		f, err := scanFrame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetFrame fetches a single frame by ID.
func (s *Store) GetFrame(ctx context.Context, id string) (*Frame, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, item_id, idx, timestamp_ms, thumbnail_path, colors FROM frames WHERE id = ?`, id)
	f, err := scanFrame(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// ClearFrameThumbnail blanks a frame's thumbnail_path, used by the
// pipeline's post-indexing retention trim to drop thumbnail storage
// for sampled frames beyond the retained cap while keeping the Frame
// row itself (and anything referencing it) intact.
func (s *Store) ClearFrameThumbnail(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE frames SET thumbnail_path = '' WHERE id = ?`, id)
		return err
	})
}

func scanFrame(s rowScanner) (Frame, error) {
	var f Frame
	var colors string
	if err := s.Scan(&f.ID, &f.ItemID, &f.Index, &f.TimestampMs, &f.ThumbnailPath, &colors); err != nil {
		return Frame{}, err
	}
	_ = json.Unmarshal([]byte(colors), &f.Colors)
	return f, nil
}
