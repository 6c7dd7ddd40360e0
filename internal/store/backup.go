package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Backup is a metadata-only snapshot of the Store: libraries, persons
// and their face examples/pair thresholds, and user metadata
// (favorites, tags). Derived indexing output (transcripts, frames,
// detections, faces, vector shards) is deliberately excluded — it is
// reproducible by rescanning and reindexing, and is the expensive part
// to keep byte-identical across a schema migration.
type Backup struct {
	SchemaVersion  int                 `json:"schema_version"`
	Libraries      []Library           `json:"libraries"`
	Persons        []Person            `json:"persons"`
	FaceExamples   []backupFaceExample `json:"face_examples"`
	PairThresholds []PairThreshold     `json:"pair_thresholds"`
	Favorites      []Favorite          `json:"favorites"`
	Tags           []Tag               `json:"tags"`
	SettingsJSON   string              `json:"settings_json,omitempty"`
}

type backupFaceExample struct {
	PersonID string          `json:"person_id"`
	Kind     FaceExampleKind `json:"kind"`
	// FaceID is intentionally omitted: a restored backup predates any
	// rescan, so the face rows it once referenced no longer exist.
	// Restore reattaches examples to faces during re-recognition
	// instead of pinning a stale face_id.
}

// ExportBackup snapshots every non-derived entity in the Store.
func (s *Store) ExportBackup(ctx context.Context) (Backup, error) {
	b := Backup{SchemaVersion: SchemaVersion}

	libs, err := s.ListLibraries(ctx)
	if err != nil {
		return Backup{}, fmt.Errorf("export libraries: %w", err)
	}
	for _, l := range libs {
		b.Libraries = append(b.Libraries, *l)
	}

	persons, err := s.ListPersons(ctx)
	if err != nil {
		return Backup{}, fmt.Errorf("export persons: %w", err)
	}
	b.Persons = persons

	for _, p := range persons {
		examples, err := s.ListFaceExamples(ctx, p.ID)
		if err != nil {
			return Backup{}, fmt.Errorf("export face examples: %w", err)
		}
		for _, ex := range examples {
			b.FaceExamples = append(b.FaceExamples, backupFaceExample{PersonID: ex.PersonID, Kind: ex.Kind})
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT person_a, person_b, threshold FROM pair_thresholds`)
	if err != nil {
		return Backup{}, fmt.Errorf("export pair thresholds: %w", err)
	}
	for rows.Next() {
		var pt PairThreshold
		if err := rows.Scan(&pt.PersonA, &pt.PersonB, &pt.Threshold); err != nil {
			rows.Close()
			return Backup{}, err
		}
		b.PairThresholds = append(b.PairThresholds, pt)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Backup{}, err
	}

	for _, kind := range []FavoriteKind{FavoriteItem, FavoritePerson} {
		ids, err := s.ListFavorites(ctx, kind)
		if err != nil {
			return Backup{}, fmt.Errorf("export favorites: %w", err)
		}
		for _, id := range ids {
			b.Favorites = append(b.Favorites, Favorite{Kind: kind, TargetID: id})
		}
	}

	tagRows, err := s.db.QueryContext(ctx, `SELECT item_id, tag FROM tags`)
	if err != nil {
		return Backup{}, fmt.Errorf("export tags: %w", err)
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var t Tag
		if err := tagRows.Scan(&t.ItemID, &t.Tag); err != nil {
			return Backup{}, err
		}
		b.Tags = append(b.Tags, t)
	}
	if err := tagRows.Err(); err != nil {
		return Backup{}, err
	}

	settingsJSON, err := s.LoadSettingsJSON(ctx)
	if err != nil && err != ErrNotFound {
		return Backup{}, fmt.Errorf("export settings: %w", err)
	}
	b.SettingsJSON = settingsJSON

	return b, nil
}

// RestoreBackup overwrites every table a Backup covers with its
// contents, inside one transaction. Item/library identity is
// preserved by ID so a subsequent rescan recognizes unchanged files
// under their original library rather than re-creating libraries.
func (s *Store) RestoreBackup(ctx context.Context, b Backup) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"tags", "favorites", "pair_thresholds", "face_examples", "persons", "libraries"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}

		for _, l := range b.Libraries {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO libraries (id, path, name, recursive, created_at) VALUES (?,?,?,?,?)`,
				l.ID, l.Path, l.Name, l.Recursive, fmtTime(l.CreatedAt)); err != nil {
				return fmt.Errorf("restore library: %w", err)
			}
		}

		for _, p := range b.Persons {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO persons (id, name, face_count, thumbnail_face_id, recognition_mode, created_at, updated_at)
				VALUES (?,?,0,'',?,?,?)`,
				p.ID, p.Name, string(p.RecognitionMode), fmtTime(p.CreatedAt), fmtTime(p.UpdatedAt)); err != nil {
				return fmt.Errorf("restore person: %w", err)
			}
		}

		for _, ex := range b.FaceExamples {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO face_examples (face_id, person_id, kind) VALUES ('', ?, ?)`,
				ex.PersonID, string(ex.Kind)); err != nil {
				return fmt.Errorf("restore face example: %w", err)
			}
		}

		for _, pt := range b.PairThresholds {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO pair_thresholds (person_a, person_b, threshold) VALUES (?,?,?)`,
				pt.PersonA, pt.PersonB, pt.Threshold); err != nil {
				return fmt.Errorf("restore pair threshold: %w", err)
			}
		}

		for _, f := range b.Favorites {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO favorites (kind, target_id) VALUES (?,?)`,
				string(f.Kind), f.TargetID); err != nil {
				return fmt.Errorf("restore favorite: %w", err)
			}
		}

		for _, t := range b.Tags {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO tags (item_id, tag) VALUES (?,?)`,
				t.ItemID, t.Tag); err != nil {
				return fmt.Errorf("restore tag: %w", err)
			}
		}

		if b.SettingsJSON != "" {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
				settingsRowKey, b.SettingsJSON); err != nil {
				return fmt.Errorf("restore settings: %w", err)
			}
		}

		return nil
	})
}

// WipeDerived deletes every row of indexing output (transcripts,
// frames, detections, faces) and resets every item back to QUEUED, for
// the /maintenance/wipe-derived operation. Vector shards and thumbnail/
// face-crop files are the API handler's responsibility to remove
// alongside this call (they are files, not rows).
func (s *Store) WipeDerived(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"detections", "faces", "transcript_segments", "frames"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("wipe %s: %w", table, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE items SET status = ?, last_completed_stage = '', progress = 0, transcript = '', indexed_at = NULL`,
			StatusQueued); err != nil {
			return fmt.Errorf("requeue items: %w", err)
		}
		return nil
	})
}

// WipeFaces deletes every face, person, face example, and pair
// threshold, for the /maintenance/wipe-faces operation. Frames,
// transcripts, and detections are untouched.
func (s *Store) WipeFaces(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"face_examples", "pair_thresholds", "faces", "persons"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("wipe %s: %w", table, err)
			}
		}
		return nil
	})
}
