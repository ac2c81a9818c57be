package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"storyboard/internal/domain"
)

const jobColumns = `id, subject_id, kind, status, config,
	total_chunks, processed_chunks, failed_chunks,
	error, run_after, claimed_by, created_at, updated_at, completed_at`

const itemColumns = `job_id, position, chunk_id, status, error, attempts,
	next_attempt_at, processed_at,
	image_url, secondary_image_url, scene_description, symbol_description`

// JobStore implements domain.JobRepository.
type JobStore struct {
	*DB
	now func() time.Time
}

func NewJobStore(db *DB) *JobStore {
	return &JobStore{DB: db, now: time.Now}
}

func (s *JobStore) CreateJob(ctx context.Context, job *domain.Job) (*domain.Job, bool, error) {
	if job == nil || job.ID == "" {
		return nil, false, errors.New("job id is required")
	}
	cfg, err := json.Marshal(job.Config)
	if err != nil {
		return nil, false, fmt.Errorf("encode job config: %w", err)
	}
	created := formatTime(job.CreatedAt)
	err = s.withTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO batch_jobs (id, subject_id, kind, status, config, total_chunks, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			job.ID, job.SubjectID, string(job.Kind), string(domain.JobStatusPending), string(cfg), len(job.Items), created, created,
		); err != nil {
			return err
		}
		for _, item := range job.Items {
			if _, err := q.ExecContext(ctx,
				`INSERT INTO batch_job_items (job_id, position, chunk_id, status) VALUES (?, ?, ?, ?)`,
				job.ID, item.Position, item.ChunkID, string(domain.ItemStatusPending),
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			existing, lookupErr := s.ActiveJobForSubject(ctx, job.SubjectID)
			if lookupErr != nil {
				return nil, false, fmt.Errorf("load active job after conflict: %w", lookupErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("insert job: %w", err)
	}
	stored, err := s.GetJob(ctx, job.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

func (s *JobStore) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.loadJob(ctx, s.db, `SELECT `+jobColumns+` FROM batch_jobs WHERE id = ?`, jobID)
}

func (s *JobStore) ActiveJobForSubject(ctx context.Context, subjectID string) (*domain.Job, error) {
	return s.loadJob(ctx, s.db,
		`SELECT `+jobColumns+` FROM batch_jobs
		 WHERE subject_id = ? AND kind = ? AND status IN ('pending', 'processing')
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		subjectID, string(domain.JobKindBatchImageGeneration))
}

func (s *JobStore) LatestJobForSubject(ctx context.Context, subjectID string) (*domain.Job, error) {
	return s.loadJob(ctx, s.db,
		`SELECT `+jobColumns+` FROM batch_jobs WHERE subject_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		subjectID)
}

func (s *JobStore) ListJobsForSubject(ctx context.Context, subjectID string) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM batch_jobs WHERE subject_id = ? ORDER BY created_at DESC, rowid DESC`,
		subjectID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// The pool holds a single connection; release it before loading items.
	rows.Close()
	for i := range jobs {
		if err := s.loadItems(ctx, s.db, &jobs[i]); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

func (s *JobStore) ClaimNextJob(ctx context.Context, workerID string) (*domain.Job, error) {
	now := formatTime(s.now())
	var jobID string
	err := s.withTx(ctx, func(q querier) error {
		err := q.QueryRowContext(ctx,
			`SELECT id FROM batch_jobs
			 WHERE status = 'pending' AND (run_after IS NULL OR run_after <= ?)
			 ORDER BY created_at ASC, rowid ASC LIMIT 1`, now).Scan(&jobID)
		if err != nil {
			return err
		}
		res, err := q.ExecContext(ctx,
			`UPDATE batch_jobs SET status = 'processing', claimed_by = ?, updated_at = ?
			 WHERE id = ? AND status = 'pending'`, workerID, now, jobID)
		if err != nil {
			return err
		}
		if rowsAffected(res) == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return s.GetJob(ctx, jobID)
}

func (s *JobStore) JobStatus(ctx context.Context, jobID string) (domain.JobStatus, error) {
	var status string
	if err := s.db.QueryRowContext(ctx, `SELECT status FROM batch_jobs WHERE id = ?`, jobID).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return domain.JobStatus(status), nil
}

func (s *JobStore) UpdateItem(ctx context.Context, item *domain.JobItem) (domain.Progress, error) {
	var progress domain.Progress
	now := formatTime(s.now())
	err := s.withTx(ctx, func(q querier) error {
		res, err := q.ExecContext(ctx,
			`UPDATE batch_job_items
			 SET status = ?, error = ?, attempts = ?, next_attempt_at = ?, processed_at = ?,
			     image_url = ?, secondary_image_url = ?, scene_description = ?, symbol_description = ?
			 WHERE job_id = ? AND position = ?`,
			string(item.Status), item.Error, item.Attempts, nullableTime(item.NextAttemptAt), nullableTime(item.ProcessedAt),
			item.Result.ImageURL, item.Result.SecondaryImageURL, item.Result.SceneDescription, item.Result.SymbolDescription,
			item.JobID, item.Position,
		)
		if err != nil {
			return err
		}
		if rowsAffected(res) == 0 {
			return domain.ErrNotFound
		}
		if _, err := q.ExecContext(ctx,
			`UPDATE batch_jobs SET
			   processed_chunks = (SELECT COUNT(*) FROM batch_job_items WHERE job_id = batch_jobs.id AND status = 'completed'),
			   failed_chunks = (SELECT COUNT(*) FROM batch_job_items WHERE job_id = batch_jobs.id AND status = 'failed'),
			   updated_at = ?
			 WHERE id = ?`, now, item.JobID); err != nil {
			return err
		}
		return q.QueryRowContext(ctx,
			`SELECT total_chunks, processed_chunks, failed_chunks FROM batch_jobs WHERE id = ?`, item.JobID,
		).Scan(&progress.Total, &progress.Processed, &progress.Failed)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, sql.ErrNoRows) {
			return domain.Progress{}, domain.ErrNotFound
		}
		return domain.Progress{}, fmt.Errorf("update item: %w", err)
	}
	return progress, nil
}

func (s *JobStore) TransitionJob(ctx context.Context, t domain.JobTransition) (bool, error) {
	if len(t.From) == 0 {
		return false, errors.New("transition needs at least one source status")
	}
	placeholders := make([]string, len(t.From))
	args := []any{
		string(t.To), t.Error, nullableTime(t.RunAfter), nullableTime(t.CompletedAt),
		string(t.To), formatTime(s.now()), t.JobID,
	}
	for i, from := range t.From {
		placeholders[i] = "?"
		args = append(args, string(from))
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE batch_jobs
		 SET status = ?, error = ?, run_after = ?, completed_at = ?,
		     claimed_by = CASE WHEN ? = 'processing' THEN claimed_by ELSE '' END,
		     updated_at = ?
		 WHERE id = ? AND status IN (`+strings.Join(placeholders, ", ")+`)`,
		args...)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("another job is active for the subject: %w", domain.ErrDuplicateOperation)
		}
		return false, fmt.Errorf("transition job: %w", err)
	}
	return rowsAffected(res) > 0, nil
}

func (s *JobStore) RequeueJob(ctx context.Context, jobID string) error {
	now := formatTime(s.now())
	return s.withTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx,
			`UPDATE batch_job_items SET status = 'pending' WHERE job_id = ? AND status = 'processing'`, jobID); err != nil {
			return err
		}
		_, err := q.ExecContext(ctx,
			`UPDATE batch_jobs SET status = 'pending', claimed_by = '', updated_at = ?
			 WHERE id = ? AND status = 'processing'`, now, jobID)
		return err
	})
}

func (s *JobStore) Reconcile(ctx context.Context) (int64, int64, error) {
	var jobs, items int64
	now := formatTime(s.now())
	err := s.withTx(ctx, func(q querier) error {
		res, err := q.ExecContext(ctx, `UPDATE batch_job_items SET status = 'pending' WHERE status = 'processing'`)
		if err != nil {
			return err
		}
		items = rowsAffected(res)
		res, err = q.ExecContext(ctx,
			`UPDATE batch_jobs SET status = 'pending', claimed_by = '', updated_at = ? WHERE status = 'processing'`, now)
		if err != nil {
			return err
		}
		jobs = rowsAffected(res)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("reconcile jobs: %w", err)
	}
	return jobs, items, nil
}

func (s *JobStore) DeleteJobsForSubject(ctx context.Context, subjectID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM batch_jobs WHERE subject_id = ?`, subjectID)
	if err != nil {
		return 0, fmt.Errorf("delete jobs: %w", err)
	}
	return rowsAffected(res), nil
}

func (s *JobStore) loadJob(ctx context.Context, q querier, query string, args ...any) (*domain.Job, error) {
	job, err := scanJob(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	if err := s.loadItems(ctx, q, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *JobStore) loadItems(ctx context.Context, q querier, job *domain.Job) error {
	rows, err := q.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM batch_job_items WHERE job_id = ? ORDER BY position ASC`, job.ID)
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return err
		}
		job.Items = append(job.Items, *item)
	}
	return rows.Err()
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job                   domain.Job
		kind, status, cfg     string
		created, updated      string
		runAfter, completedAt sql.NullString
	)
	if err := row.Scan(
		&job.ID, &job.SubjectID, &kind, &status, &cfg,
		&job.Progress.Total, &job.Progress.Processed, &job.Progress.Failed,
		&job.Error, &runAfter, &job.ClaimedBy, &created, &updated, &completedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	if cfg != "" {
		if err := json.Unmarshal([]byte(cfg), &job.Config); err != nil {
			return nil, fmt.Errorf("decode job config: %w", err)
		}
	}
	var err error
	if job.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if job.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if job.RunAfter, err = parseNullTime(runAfter); err != nil {
		return nil, fmt.Errorf("parse run_after: %w", err)
	}
	if job.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}
	return &job, nil
}

func scanItem(row rowScanner) (*domain.JobItem, error) {
	var (
		item                   domain.JobItem
		status                 string
		nextAttempt, processed sql.NullString
	)
	if err := row.Scan(
		&item.JobID, &item.Position, &item.ChunkID, &status, &item.Error, &item.Attempts,
		&nextAttempt, &processed,
		&item.Result.ImageURL, &item.Result.SecondaryImageURL, &item.Result.SceneDescription, &item.Result.SymbolDescription,
	); err != nil {
		return nil, err
	}
	item.Status = domain.ItemStatus(status)
	var err error
	if item.NextAttemptAt, err = parseNullTime(nextAttempt); err != nil {
		return nil, fmt.Errorf("parse next_attempt_at: %w", err)
	}
	if item.ProcessedAt, err = parseNullTime(processed); err != nil {
		return nil, fmt.Errorf("parse processed_at: %w", err)
	}
	return &item, nil
}

var _ domain.JobRepository = (*JobStore)(nil)
