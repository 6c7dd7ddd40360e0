package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreatePerson creates a new named identity.
func (s *Store) CreatePerson(ctx context.Context, name string, mode RecognitionMode) (*Person, error) {
	now := time.Now().UTC()
	p := &Person{
		ID:              uuid.NewString(),
		Name:            name,
		RecognitionMode: mode,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO persons (id, name, face_count, thumbnail_face_id, recognition_mode, created_at, updated_at)
			 VALUES (?,?,0,'',?,?,?)`,
			p.ID, p.Name, string(p.RecognitionMode), fmtTime(now), fmtTime(now))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create person: %w", err)
	}
	return p, nil
}

// GetPerson fetches a person by ID.
func (s *Store) GetPerson(ctx context.Context, id string) (*Person, error) {
	row := s.db.QueryRowContext(ctx, personSelectColumns+` FROM persons WHERE id = ?`, id)
	p, err := scanPerson(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListPersons returns every person, most recently updated first.
func (s *Store) ListPersons(ctx context.Context) ([]Person, error) {
	rows, err := s.db.QueryContext(ctx, personSelectColumns+` FROM persons ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var out []Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RenamePerson updates a person's display name.
func (s *Store) RenamePerson(ctx context.Context, id, name string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE persons SET name = ?, updated_at = ? WHERE id = ?`, name, fmtTime(time.Now().UTC()), id)
		return err
	})
}

// SetPersonRecognitionMode changes how a person's centroid similarity
// is computed.
func (s *Store) SetPersonRecognitionMode(ctx context.Context, id string, mode RecognitionMode) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE persons SET recognition_mode = ?, updated_at = ? WHERE id = ?`, string(mode), fmtTime(time.Now().UTC()), id)
		return err
	})
}

// RefreshPersonStats recomputes face_count from the faces table,
// called after any assignment change.
func (s *Store) RefreshPersonStats(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM faces WHERE person_id = ?`, id).Scan(&count); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE persons SET face_count = ?, updated_at = ? WHERE id = ?`, count, fmtTime(time.Now().UTC()), id)
		return err
	})
}

// SetPersonThumbnail records the face chosen to represent a person in
// listings (the faces package's weighted-centroid recompute).
func (s *Store) SetPersonThumbnail(ctx context.Context, id, faceID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE persons SET thumbnail_face_id = ?, updated_at = ? WHERE id = ?`, faceID, fmtTime(time.Now().UTC()), id)
		return err
	})
}

// MergePersons reassigns every face and example from src into dst,
// then deletes src. Used when the user merges two identities that
// turned out to be the same person.
func (s *Store) MergePersons(ctx context.Context, dst, src string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE faces SET person_id = ? WHERE person_id = ?`, dst, src); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE face_examples SET person_id = ? WHERE person_id = ?`, dst, src); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM pair_thresholds WHERE person_a = ? OR person_b = ?`, src, src); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM persons WHERE id = ?`, src)
		return err
	})
}

// DeletePerson removes a person record, unassigning (not deleting)
// every face that pointed to it.
func (s *Store) DeletePerson(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE faces SET person_id = '', assignment_source = '' WHERE person_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM face_examples WHERE person_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM pair_thresholds WHERE person_a = ? OR person_b = ?`, id, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM persons WHERE id = ?`, id)
		return err
	})
}

const personSelectColumns = `SELECT id, name, face_count, thumbnail_face_id, recognition_mode, created_at, updated_at`

func scanPerson(s rowScanner) (Person, error) {
	var p Person
	var mode, createdAt, updatedAt string
	if err := s.Scan(&p.ID, &p.Name, &p.FaceCount, &p.ThumbnailFaceID, &mode, &createdAt, &updatedAt); err != nil {
		return Person{}, err
	}
	p.RecognitionMode = RecognitionMode(mode)
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return p, nil
}
