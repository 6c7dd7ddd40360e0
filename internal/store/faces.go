package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// InsertFaces records face-detector output for an item. Embeddings are
// stored as-is; assignment fields start empty pending the faces
// package's auto-recognition pass.
func (s *Store) InsertFaces(ctx context.Context, itemID string, faces []Face) ([]Face, error) {
	for i := range faces {
		if faces[i].ID == "" {
			faces[i].ID = uuid.NewString()
		}
		faces[i].ItemID = itemID
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, f := range faces {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO faces (
					id, item_id, frame_id, timestamp_ms, bbox, confidence,
					crop_path, embedding, person_id, cluster_id,
					assignment_source, assignment_confidence, assigned_at
				) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
				f.ID, f.ItemID, f.FrameID, f.TimestampMs, encodeBBox(f.BBox), f.Confidence,
				f.CropPath, encodeEmbedding(f.Embedding), f.PersonID, f.ClusterID,
				string(f.AssignmentSource), f.AssignmentConfidence, fmtTimePtr(f.AssignedAt)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("insert faces: %w", err)
	}
	return faces, nil
}

// GetFace fetches a single face by ID.
func (s *Store) GetFace(ctx context.Context, id string) (*Face, error) {
	row := s.db.QueryRowContext(ctx, faceSelectColumns+` FROM faces WHERE id = ?`, id)
	f, err := scanFace(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// ListFacesByItem returns every detected face for an item.
func (s *Store) ListFacesByItem(ctx context.Context, itemID string) ([]Face, error) {
	rows, err := s.db.QueryContext(ctx, faceSelectColumns+` FROM faces WHERE item_id = ? ORDER BY timestamp_ms ASC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list faces by item: %w", err)
	}
	defer rows.Close()
	return scanFaces(rows)
}

// ListUnassignedFaces returns faces with no person_id, the candidate
// pool for auto-recognition and clustering.
func (s *Store) ListUnassignedFaces(ctx context.Context, limit int) ([]Face, error) {
	rows, err := s.db.QueryContext(ctx, faceSelectColumns+` FROM faces WHERE person_id = '' LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unassigned faces: %w", err)
	}
	defer rows.Close()
	return scanFaces(rows)
}

// ListFacesByPerson returns every face currently assigned to a person.
func (s *Store) ListFacesByPerson(ctx context.Context, personID string) ([]Face, error) {
	rows, err := s.db.QueryContext(ctx, faceSelectColumns+` FROM faces WHERE person_id = ?`, personID)
	if err != nil {
		return nil, fmt.Errorf("list faces by person: %w", err)
	}
	defer rows.Close()
	return scanFaces(rows)
}

// ListFacesByCluster returns every face in a transient cluster (faces
// not yet promoted to a named person).
func (s *Store) ListFacesByCluster(ctx context.Context, clusterID string) ([]Face, error) {
	rows, err := s.db.QueryContext(ctx, faceSelectColumns+` FROM faces WHERE cluster_id = ?`, clusterID)
	if err != nil {
		return nil, fmt.Errorf("list faces by cluster: %w", err)
	}
	defer rows.Close()
	return scanFaces(rows)
}

// AssignFace sets a face's person_id and assignment bookkeeping —
// used by both auto-recognition and user corrections.
func (s *Store) AssignFace(ctx context.Context, faceID, personID string, source AssignmentSource, confidence float64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE faces SET person_id = ?, assignment_source = ?, assignment_confidence = ?, assigned_at = ?
			WHERE id = ?`,
			personID, string(source), confidence, fmtTime(time.Now().UTC()), faceID)
		return err
	})
}

// UnassignFace clears a face's person_id (used when a correction
// removes a wrong auto-assignment).
func (s *Store) UnassignFace(ctx context.Context, faceID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE faces SET person_id = '', assignment_source = '', assignment_confidence = 0, assigned_at = NULL WHERE id = ?`, faceID)
		return err
	})
}

// SetFaceCluster assigns a transient cluster ID to a batch of faces
// (the clustering pass's output, before any are promoted to a person).
func (s *Store) SetFaceCluster(ctx context.Context, faceIDs []string, clusterID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range faceIDs {
			if _, err := tx.ExecContext(ctx, `UPDATE faces SET cluster_id = ? WHERE id = ?`, clusterID, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddFaceExample records a reference (positive anchor) or negative
// example for a person.
func (s *Store) AddFaceExample(ctx context.Context, faceID, personID string, kind FaceExampleKind) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO face_examples (face_id, person_id, kind) VALUES (?,?,?)`,
			faceID, personID, string(kind))
		return err
	})
}

// ListFaceExamples returns every reference/negative example recorded
// for a person.
func (s *Store) ListFaceExamples(ctx context.Context, personID string) ([]FaceExample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT face_id, person_id, kind FROM face_examples WHERE person_id = ?`, personID)
	if err != nil {
		return nil, fmt.Errorf("list face examples: %w", err)
	}
	defer rows.Close()

	var out []FaceExample
	for rows.Next() {
		var ex FaceExample
		var kind string
		if err := rows.Scan(&ex.FaceID, &ex.PersonID, &kind); err != nil {
			return nil, err
		}
		ex.Kind = FaceExampleKind(kind)
		out = append(out, ex)
	}
	return out, rows.Err()
}

// PairThreshold returns the auto-assignment similarity floor between
// two persons, defaulting to DefaultPairThreshold if never recorded.
// PersonA/PersonB must be passed already ordered (a < b).
func (s *Store) PairThreshold(ctx context.Context, a, b string) (float64, error) {
	var threshold float64
	err := s.db.QueryRowContext(ctx,
		`SELECT threshold FROM pair_thresholds WHERE person_a = ? AND person_b = ?`, a, b).Scan(&threshold)
	if err == sql.ErrNoRows {
		return DefaultPairThreshold, nil
	}
	if err != nil {
		return 0, fmt.Errorf("pair threshold: %w", err)
	}
	return threshold, nil
}

// RaisePairThreshold increments the pair threshold by
// PairThresholdIncrement, capped at MaxPairThreshold, recording a
// cross-correction between two frequently confused persons.
func (s *Store) RaisePairThreshold(ctx context.Context, a, b string) (float64, error) {
	var next float64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var current float64
		err := tx.QueryRowContext(ctx, `SELECT threshold FROM pair_thresholds WHERE person_a = ? AND person_b = ?`, a, b).Scan(&current)
		if err == sql.ErrNoRows {
			current = DefaultPairThreshold
		} else if err != nil {
			return err
		}
		next = math.Min(current+PairThresholdIncrement, MaxPairThreshold)
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pair_thresholds (person_a, person_b, threshold) VALUES (?,?,?)
			 ON CONFLICT (person_a, person_b) DO UPDATE SET threshold = excluded.threshold`,
			a, b, next)
		return err
	})
	return next, err
}

// ListPairThresholds returns every pair threshold raised above the
// default, most-raised first, for the /faces/confusing-pairs view —
// pairs never cross-corrected are never written to this table at all.
func (s *Store) ListPairThresholds(ctx context.Context) ([]PairThreshold, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT person_a, person_b, threshold FROM pair_thresholds ORDER BY threshold DESC`)
	if err != nil {
		return nil, fmt.Errorf("list pair thresholds: %w", err)
	}
	defer rows.Close()

	var out []PairThreshold
	for rows.Next() {
		var pt PairThreshold
		if err := rows.Scan(&pt.PersonA, &pt.PersonB, &pt.Threshold); err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

const faceSelectColumns = `SELECT
	id, item_id, frame_id, timestamp_ms, bbox, confidence,
	crop_path, embedding, person_id, cluster_id,
	assignment_source, assignment_confidence, assigned_at`

func scanFace(s rowScanner) (Face, error) {
	var f Face
	var bbox, assignSrc string
	var embedding []byte
	var assignedAt sql.NullString
	err := s.Scan(&f.ID, &f.ItemID, &f.FrameID, &f.TimestampMs, &bbox, &f.Confidence,
		&f.CropPath, &embedding, &f.PersonID, &f.ClusterID,
		&assignSrc, &f.AssignmentConfidence, &assignedAt)
	if err != nil {
		return Face{}, err
	}
	f.BBox = decodeBBox(bbox)
	f.Embedding = decodeEmbedding(embedding)
	f.AssignmentSource = AssignmentSource(assignSrc)
	if assignedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, assignedAt.String)
		f.AssignedAt = &t
	}
	return f, nil
}

func scanFaces(rows *sql.Rows) ([]Face, error) {
	var out []Face
	for rows.Next() {
		f, err := scanFace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// encodeEmbedding/decodeEmbedding store a []float32 as a flat
// little-endian byte blob rather than JSON, keeping rows compact
// since embeddings are the bulkiest per-face data.
func encodeEmbedding(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}
