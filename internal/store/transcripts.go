package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ReplaceTranscriptSegments deletes any existing segments for itemID
// and inserts segs as a single transaction, keeping the relational
// rows and the transcript full-text index in lockstep with the
// transcription stage's output.
func (s *Store) ReplaceTranscriptSegments(ctx context.Context, itemID string, segs []TranscriptSegment) ([]TranscriptSegment, error) {
	for i := range segs {
		if segs[i].ID == "" {
			segs[i].ID = uuid.NewString()
		}
		segs[i].ItemID = itemID
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transcript_segments WHERE item_id = ?`, itemID); err != nil {
			return err
		}
		for _, seg := range segs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO transcript_segments (id, item_id, start_ms, end_ms, text, confidence) VALUES (?,?,?,?,?,?)`,
				seg.ID, seg.ItemID, seg.StartMs, seg.EndMs, seg.Text, seg.Confidence); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replace transcript segments: %w", err)
	}
	return segs, nil
}

// ListTranscriptSegments returns every segment for an item, ordered by start time.
func (s *Store) ListTranscriptSegments(ctx context.Context, itemID string) ([]TranscriptSegment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_id, start_ms, end_ms, text, confidence FROM transcript_segments WHERE item_id = ? ORDER BY start_ms ASC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list transcript segments: %w", err)
	}
	defer rows.Close()

	var out []TranscriptSegment
	for rows.Next() {
		var seg TranscriptSegment
		if err := rows.Scan(&seg.ID, &seg.ItemID, &seg.StartMs, &seg.EndMs, &seg.Text, &seg.Confidence); err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

// GetTranscriptSegments fetches specific segments by ID, used to
// resolve full-text search hits back into their (item, time) context.
func (s *Store) GetTranscriptSegments(ctx context.Context, ids []string) (map[string]TranscriptSegment, error) {
	if len(ids) == 0 {
		return map[string]TranscriptSegment{}, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT id, item_id, start_ms, end_ms, text, confidence FROM transcript_segments WHERE id IN (%s)`, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get transcript segments: %w", err)
	}
	defer rows.Close()

	out := make(map[string]TranscriptSegment, len(ids))
	for rows.Next() {
		var seg TranscriptSegment
		if err := rows.Scan(&seg.ID, &seg.ItemID, &seg.StartMs, &seg.EndMs, &seg.Text, &seg.Confidence); err != nil {
			return nil, err
		}
		out[seg.ID] = seg
	}
	return out, rows.Err()
}
