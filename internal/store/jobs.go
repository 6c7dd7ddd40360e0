package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateJob starts a live record for one item's indexing run.
func (s *Store) CreateJob(ctx context.Context, itemID string) (*Job, error) {
	now := time.Now().UTC()
	j := &Job{ID: uuid.NewString(), ItemID: itemID, Status: JobRunning, CreatedAt: now, UpdatedAt: now}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (id, item_id, status, current_stage, progress, message, error_code, error_message, created_at, updated_at)
			 VALUES (?,?,?,?,?,?,?,?,?,?)`,
			j.ID, j.ItemID, string(j.Status), "", 0, "", "", "", fmtTime(now), fmtTime(now))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return j, nil
}

// UpdateJobProgress records a stage transition and progress fraction,
// the source of the job.progress events pushed over the event stream.
func (s *Store) UpdateJobProgress(ctx context.Context, id, stage string, progress float64, message string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE jobs SET current_stage = ?, progress = ?, message = ?, updated_at = ? WHERE id = ?`,
			stage, progress, message, fmtTime(time.Now().UTC()), id)
		return err
	})
}

// FinishJob marks a job terminal.
func (s *Store) FinishJob(ctx context.Context, id string, status JobStatus, errorCode, errorMessage string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, error_code = ?, error_message = ?, updated_at = ? WHERE id = ?`,
			string(status), errorCode, errorMessage, fmtTime(time.Now().UTC()), id)
		return err
	})
}

// GetJob fetches a single job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, jobSelectColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// ListJobs returns every job, most recently updated first, for the
// /jobs status view.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, jobSelectColumns+` FROM jobs ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ListRunningJobs returns every job still marked RUNNING, used by
// consistency repair to detect jobs orphaned by an unclean shutdown.
func (s *Store) ListRunningJobs(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, jobSelectColumns+` FROM jobs WHERE status = ?`, string(JobRunning))
	if err != nil {
		return nil, fmt.Errorf("list running jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// MarkJobsLost transitions a batch of RUNNING jobs to LOST, used by
// consistency repair on startup after a crash.
func (s *Store) MarkJobsLost(ctx context.Context, ids []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`, string(JobLost), fmtTime(time.Now().UTC()), id); err != nil {
				return err
			}
		}
		return nil
	})
}

const jobSelectColumns = `SELECT id, item_id, status, current_stage, progress, message, error_code, error_message, created_at, updated_at`

func scanJob(s rowScanner) (Job, error) {
	var j Job
	var status, createdAt, updatedAt string
	if err := s.Scan(&j.ID, &j.ItemID, &status, &j.CurrentStage, &j.Progress, &j.Message, &j.ErrorCode, &j.ErrorMessage, &createdAt, &updatedAt); err != nil {
		return Job{}, err
	}
	j.Status = JobStatus(status)
	j.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return j, nil
}
