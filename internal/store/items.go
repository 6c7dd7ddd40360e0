package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ItemFilter narrows ListItems. Zero values are "don't filter".
type ItemFilter struct {
	LibraryID string
	Status    ItemStatus
	MediaType MediaType
}

// UpsertItem inserts a new item, or updates the mutable file-identity
// columns of an existing one matched by (library_id, path). The
// scanner calls this for both NEW and CHANGED items; a CHANGED item
// additionally gets its status reset by the caller via SetItemStatus.
func (s *Store) UpsertItem(ctx context.Context, it *Item) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO items (
				id, library_id, path, filename, size, mtime, fingerprint,
				media_type, status, last_completed_stage, progress,
				error_code, error_message, duration, width, height, fps,
				codecs, container, creation_time, camera_make, camera_model,
				gps, is_live_component, live_pair_id, indexed_at, created_at, transcript
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT (library_id, path) DO UPDATE SET
				size = excluded.size,
				mtime = excluded.mtime,
				fingerprint = excluded.fingerprint,
				filename = excluded.filename
		`,
			it.ID, it.LibraryID, it.Path, it.Filename, it.Size, fmtTime(it.MTime), it.Fingerprint,
			it.MediaType, it.Status, it.LastCompletedStage, it.Progress,
			it.ErrorCode, it.ErrorMessage, it.Duration, it.Width, it.Height, it.FPS,
			it.Codecs, it.Container, fmtTimePtr(it.CreationTime), it.CameraMake, it.CameraModel,
			it.GPS, it.IsLiveComponent, it.LivePairID, fmtTimePtr(it.IndexedAt), fmtTime(it.CreatedAt), it.Transcript,
		)
		return err
	})
}

// GetItem fetches one item by ID.
func (s *Store) GetItem(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, itemSelectColumns+` FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return it, err
}

// FindItemByPath looks an item up by its (library_id, path) key, used
// by the scanner to classify UNCHANGED/CHANGED/RENAMED files.
func (s *Store) FindItemByPath(ctx context.Context, libraryID, path string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, itemSelectColumns+` FROM items WHERE library_id = ? AND path = ?`, libraryID, path)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return it, err
}

// FindItemsByFingerprint returns items sharing a fingerprint, used to
// detect a RENAMED file: same library, same fingerprint, different path.
func (s *Store) FindItemsByFingerprint(ctx context.Context, libraryID, fingerprint string) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, itemSelectColumns+` FROM items WHERE library_id = ? AND fingerprint = ?`, libraryID, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("find items by fingerprint: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// UpdateItemPath rewrites an item's path in place, used when a RENAMED
// file is reconciled without re-running the pipeline.
func (s *Store) UpdateItemPath(ctx context.Context, id, newPath, newFilename string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE items SET path = ?, filename = ? WHERE id = ?`, newPath, newFilename, id)
		return err
	})
}

// SetItemStatus transitions an item's status and records the stage it
// last completed. Progress and error fields are left as they are.
func (s *Store) SetItemStatus(ctx context.Context, id string, status ItemStatus, lastCompletedStage string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE items SET status = ?, last_completed_stage = ? WHERE id = ?`,
			status, lastCompletedStage, id)
		return err
	})
}

// SetItemProgress records fractional stage progress for the live
// event stream.
func (s *Store) SetItemProgress(ctx context.Context, id string, progress float64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE items SET progress = ? WHERE id = ?`, progress, id)
		return err
	})
}

// SetItemError records a terminal FAILED status with its error kind
// and message.
func (s *Store) SetItemError(ctx context.Context, id string, errorCode, errorMessage string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE items SET status = ?, error_code = ?, error_message = ? WHERE id = ?`,
			StatusFailed, errorCode, errorMessage, id)
		return err
	})
}

// SetItemMetadataFields writes the container/EXIF-derived columns
// extracted by the scanner's MetadataProber.
func (s *Store) SetItemMetadataFields(ctx context.Context, id string, m ItemMetadataFields) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE items SET
				duration = ?, width = ?, height = ?, fps = ?,
				codecs = ?, container = ?, creation_time = ?,
				camera_make = ?, camera_model = ?, gps = ?
			WHERE id = ?`,
			m.Duration, m.Width, m.Height, m.FPS,
			m.Codecs, m.Container, fmtTimePtr(m.CreationTime),
			m.CameraMake, m.CameraModel, m.GPS, id)
		return err
	})
}

// ItemMetadataFields is the subset of Item the scanner populates from
// a MetadataProber before the pipeline runs.
type ItemMetadataFields struct {
	Duration     float64
	Width        int
	Height       int
	FPS          float64
	Codecs       string
	Container    string
	CreationTime *time.Time
	CameraMake   string
	CameraModel  string
	GPS          string
}

// MarkLivePair links two items as a live-photo still/video pair. Both
// carry live_pair_id; only the video is flagged is_live_component, so
// the still stays visible in listings.
func (s *Store) MarkLivePair(ctx context.Context, stillID, videoID, pairID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range []string{stillID, videoID} {
			if _, err := tx.ExecContext(ctx,
				`UPDATE items SET is_live_component = ?, live_pair_id = ? WHERE id = ?`, id == videoID, pairID, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// IndexDone marks an item DONE and stamps indexed_at.
func (s *Store) IndexDone(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE items SET status = ?, last_completed_stage = 'DONE', progress = 1, indexed_at = ? WHERE id = ?`,
			StatusDone, fmtTime(time.Now().UTC()), id)
		return err
	})
}

// SetItemTranscript stores the flattened transcript text alongside the
// per-segment rows.
func (s *Store) SetItemTranscript(ctx context.Context, id, transcript string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE items SET transcript = ? WHERE id = ?`, transcript, id)
		return err
	})
}

// SetItemMetadata upserts one arbitrary key-value pair on an item
// (the open-ended ItemMetadata entity, e.g. container-specific tags
// the scanner's MetadataProber doesn't promote to a dedicated column).
func (s *Store) SetItemMetadata(ctx context.Context, itemID, key, value string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO item_metadata (item_id, key, value) VALUES (?,?,?)
			 ON CONFLICT (item_id, key) DO UPDATE SET value = excluded.value`,
			itemID, key, value)
		return err
	})
}

// ListItemMetadata returns every key-value pair attached to an item.
func (s *Store) ListItemMetadata(ctx context.Context, itemID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM item_metadata WHERE item_id = ?`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list item metadata: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// ListItems returns a page of items matching filter, newest mtime
// first when prioritizeRecent is set.
func (s *Store) ListItems(ctx context.Context, filter ItemFilter, prioritizeRecent bool, page Pagination) ([]*Item, string, error) {
	var where []string
	var args []any

	if filter.LibraryID != "" {
		where = append(where, "library_id = ?")
		args = append(args, filter.LibraryID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.MediaType != "" {
		where = append(where, "media_type = ?")
		args = append(args, filter.MediaType)
	}

	order := "created_at ASC, id ASC"
	if prioritizeRecent {
		order = "mtime DESC, id ASC"
	}

	if page.Cursor != "" {
		cursorOrder, cursorVal, cursorID, err := decodeCursor(page.Cursor)
		if err != nil {
			return nil, "", err
		}
		op := ">"
		col := "created_at"
		if prioritizeRecent {
			op = "<"
			col = "mtime"
		}
		_ = cursorOrder
		where = append(where, fmt.Sprintf("(%s, id) %s (?, ?)", col, op))
		args = append(args, cursorVal, cursorID)
	}

	limit := page.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := itemSelectColumns + ` FROM items`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY %s LIMIT %d", order, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items, err := scanItems(rows)
	if err != nil {
		return nil, "", err
	}

	var next string
	if len(items) > limit {
		last := items[limit-1]
		items = items[:limit]
		cursorVal := fmtTime(last.CreatedAt)
		if prioritizeRecent {
			cursorVal = fmtTime(last.MTime)
		}
		next = encodeCursor(cursorVal, last.ID)
	}
	return items, next, nil
}

// DeleteItem removes an item and its cascaded rows (transcript
// segments, frames, detections, faces).
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
		return err
	})
}

func encodeCursor(val, id string) string {
	return val + "|" + id
}

func decodeCursor(cursor string) (order, val, id string, err error) {
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 {
		return "", "", "", fmt.Errorf("invalid cursor %q", cursor)
	}
	return "", parts[0], parts[1], nil
}

const itemSelectColumns = `SELECT
	id, library_id, path, filename, size, mtime, fingerprint,
	media_type, status, last_completed_stage, progress,
	error_code, error_message, duration, width, height, fps,
	codecs, container, creation_time, camera_make, camera_model,
	gps, is_live_component, live_pair_id, indexed_at, created_at, transcript`

func scanItem(row *sql.Row) (*Item, error) {
	return scanItemRow(row)
}

func scanItems(rows *sql.Rows) ([]*Item, error) {
	var out []*Item
	for rows.Next() {
		it, err := scanItemRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func scanItemRow(s rowScanner) (*Item, error) {
	var it Item
	var mtime, createdAt string
	var creationTime, indexedAt sql.NullString

	err := s.Scan(
		&it.ID, &it.LibraryID, &it.Path, &it.Filename, &it.Size, &mtime, &it.Fingerprint,
		&it.MediaType, &it.Status, &it.LastCompletedStage, &it.Progress,
		&it.ErrorCode, &it.ErrorMessage, &it.Duration, &it.Width, &it.Height, &it.FPS,
		&it.Codecs, &it.Container, &creationTime, &it.CameraMake, &it.CameraModel,
		&it.GPS, &it.IsLiveComponent, &it.LivePairID, &indexedAt, &createdAt, &it.Transcript,
	)
	if err != nil {
		return nil, err
	}
	it.MTime, _ = time.Parse(time.RFC3339Nano, mtime)
	it.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if creationTime.Valid {
		t, _ := time.Parse(time.RFC3339Nano, creationTime.String)
		it.CreationTime = &t
	}
	if indexedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, indexedAt.String)
		it.IndexedAt = &t
	}
	return &it, nil
}

func fmtTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}
