package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// InsertDetections records object-detector output for a batch of frames.
func (s *Store) InsertDetections(ctx context.Context, itemID string, dets []Detection) ([]Detection, error) {
	for i := range dets {
		if dets[i].ID == "" {
			dets[i].ID = uuid.NewString()
		}
		dets[i].ItemID = itemID
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, d := range dets {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO detections (id, item_id, frame_id, timestamp_ms, label, confidence, bbox)
				 VALUES (?,?,?,?,?,?,?)`,
				d.ID, d.ItemID, d.FrameID, d.TimestampMs, d.Label, d.Confidence, encodeBBox(d.BBox)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("insert detections: %w", err)
	}
	return dets, nil
}

// ListDetections returns every detection for an item.
func (s *Store) ListDetections(ctx context.Context, itemID string) ([]Detection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_id, frame_id, timestamp_ms, label, confidence, bbox FROM detections WHERE item_id = ? ORDER BY timestamp_ms ASC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list detections: %w", err)
	}
	defer rows.Close()

	var out []Detection
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DistinctDetectionLabels returns every label observed across all
// items, used by the search query preprocessor to recognize
// object-label tokens in free text.
func (s *Store) DistinctDetectionLabels(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT label FROM detections`)
	if err != nil {
		return nil, fmt.Errorf("distinct detection labels: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ItemsWithLabel returns items that have at least one detection with
// the given label, used by the label-only search path.
func (s *Store) ItemsWithLabel(ctx context.Context, label string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT item_id FROM detections WHERE label = ? LIMIT ?`, label, limit)
	if err != nil {
		return nil, fmt.Errorf("items with label: %w", err)
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

func scanDetection(s rowScanner) (Detection, error) {
	var d Detection
	var bbox string
	if err := s.Scan(&d.ID, &d.ItemID, &d.FrameID, &d.TimestampMs, &d.Label, &d.Confidence, &bbox); err != nil {
		return Detection{}, err
	}
	d.BBox = decodeBBox(bbox)
	return d, nil
}

func encodeBBox(b BBox) string {
	return fmt.Sprintf("%g,%g,%g,%g", b.X, b.Y, b.W, b.H)
}

func decodeBBox(s string) BBox {
	var b BBox
	fmt.Sscanf(s, "%g,%g,%g,%g", &b.X, &b.Y, &b.W, &b.H)
	return b
}
