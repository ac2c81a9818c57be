package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"storyboard/internal/domain"
	"storyboard/internal/infra"
	"storyboard/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL.
type JobRepositoryPG struct {
	sql infra.TxRunner
}

// NewJobRepository creates a job repository backed by the marker-logging SQL runner.
func NewJobRepository(sql infra.TxRunner) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

func (r *JobRepositoryPG) CreateJob(ctx context.Context, job *domain.Job) (*domain.Job, bool, error) {
	cfg, err := json.Marshal(job.Config)
	if err != nil {
		return nil, false, fmt.Errorf("encode job config: %w", err)
	}
	err = r.sql.InTx(ctx, func(tx infra.SQLExecutor) error {
		if _, err := tx.Exec(ctx, sqlinline.QInsertBatchJob,
			job.ID,
			job.SubjectID,
			string(job.Kind),
			string(domain.JobStatusPending),
			cfg,
			len(job.Items),
			job.CreatedAt,
		); err != nil {
			return err
		}
		for _, item := range job.Items {
			if _, err := tx.Exec(ctx, sqlinline.QInsertBatchJobItem, job.ID, item.Position, item.ChunkID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if infra.IsUniqueViolation(err) {
			existing, lookupErr := r.ActiveJobForSubject(ctx, job.SubjectID)
			if lookupErr != nil {
				return nil, false, fmt.Errorf("load active job after conflict: %w", lookupErr)
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	stored, err := r.GetJob(ctx, job.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

func (r *JobRepositoryPG) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectBatchJob, jobID))
	if err != nil {
		return nil, err
	}
	return r.withItems(ctx, job)
}

func (r *JobRepositoryPG) ActiveJobForSubject(ctx context.Context, subjectID string) (*domain.Job, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectActiveBatchJobForSubject, subjectID, string(domain.JobKindBatchImageGeneration)))
	if err != nil {
		return nil, err
	}
	return r.withItems(ctx, job)
}

func (r *JobRepositoryPG) LatestJobForSubject(ctx context.Context, subjectID string) (*domain.Job, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectLatestBatchJobForSubject, subjectID))
	if err != nil {
		return nil, err
	}
	return r.withItems(ctx, job)
}

func (r *JobRepositoryPG) ListJobsForSubject(ctx context.Context, subjectID string) ([]domain.Job, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListBatchJobsForSubject, subjectID)
	if err != nil {
		return nil, err
	}
	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		jobs = append(jobs, job)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.Job, 0, len(jobs))
	for _, job := range jobs {
		loaded, err := r.withItems(ctx, job)
		if err != nil {
			return nil, err
		}
		out = append(out, *loaded)
	}
	return out, nil
}

func (r *JobRepositoryPG) ClaimNextJob(ctx context.Context, workerID string) (*domain.Job, error) {
	var jobID string
	if err := r.sql.QueryRow(ctx, sqlinline.QClaimNextBatchJob, workerID).Scan(&jobID); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return r.GetJob(ctx, jobID)
}

func (r *JobRepositoryPG) JobStatus(ctx context.Context, jobID string) (domain.JobStatus, error) {
	var status string
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectBatchJobStatus, jobID).Scan(&status); err != nil {
		if infra.IsNoRows(err) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return domain.JobStatus(status), nil
}

func (r *JobRepositoryPG) UpdateItem(ctx context.Context, item *domain.JobItem) (domain.Progress, error) {
	var progress domain.Progress
	err := r.sql.InTx(ctx, func(tx infra.SQLExecutor) error {
		tag, err := tx.Exec(ctx, sqlinline.QUpdateBatchJobItem,
			item.JobID,
			item.Position,
			string(item.Status),
			item.Error,
			item.Attempts,
			item.NextAttemptAt,
			item.ProcessedAt,
			item.Result.ImageURL,
			item.Result.SecondaryImageURL,
			item.Result.SceneDescription,
			item.Result.SymbolDescription,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return tx.QueryRow(ctx, sqlinline.QRefreshBatchJobProgress, item.JobID).
			Scan(&progress.Total, &progress.Processed, &progress.Failed)
	})
	if err != nil {
		if infra.IsNoRows(err) {
			return domain.Progress{}, domain.ErrNotFound
		}
		return domain.Progress{}, err
	}
	return progress, nil
}

func (r *JobRepositoryPG) TransitionJob(ctx context.Context, t domain.JobTransition) (bool, error) {
	from := make([]string, 0, len(t.From))
	for _, s := range t.From {
		from = append(from, string(s))
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QTransitionBatchJob,
		t.JobID,
		string(t.To),
		t.Error,
		t.RunAfter,
		t.CompletedAt,
		from,
	)
	if err != nil {
		if infra.IsUniqueViolation(err) {
			return false, fmt.Errorf("another job is active for the subject: %w", domain.ErrDuplicateOperation)
		}
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *JobRepositoryPG) RequeueJob(ctx context.Context, jobID string) error {
	return r.sql.InTx(ctx, func(tx infra.SQLExecutor) error {
		if _, err := tx.Exec(ctx, sqlinline.QRequeueBatchJobItems, jobID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, sqlinline.QRequeueBatchJob, jobID)
		return err
	})
}

func (r *JobRepositoryPG) Reconcile(ctx context.Context) (int64, int64, error) {
	var jobs, items int64
	err := r.sql.InTx(ctx, func(tx infra.SQLExecutor) error {
		tag, err := tx.Exec(ctx, sqlinline.QReconcileBatchJobItems)
		if err != nil {
			return err
		}
		items = tag.RowsAffected()
		tag, err = tx.Exec(ctx, sqlinline.QReconcileBatchJobs)
		if err != nil {
			return err
		}
		jobs = tag.RowsAffected()
		return nil
	})
	return jobs, items, err
}

func (r *JobRepositoryPG) DeleteJobsForSubject(ctx context.Context, subjectID string) (int64, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteBatchJobsForSubject, subjectID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *JobRepositoryPG) withItems(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectBatchJobItems, job.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			item   domain.JobItem
			status string
		)
		if err := rows.Scan(
			&item.JobID,
			&item.Position,
			&item.ChunkID,
			&status,
			&item.Error,
			&item.Attempts,
			&item.NextAttemptAt,
			&item.ProcessedAt,
			&item.Result.ImageURL,
			&item.Result.SecondaryImageURL,
			&item.Result.SceneDescription,
			&item.Result.SymbolDescription,
		); err != nil {
			return nil, err
		}
		item.Status = domain.ItemStatus(status)
		job.Items = append(job.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return job, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job          domain.Job
		kind, status string
		cfg          []byte
		runAfter     *time.Time
		completedAt  *time.Time
	)
	if err := row.Scan(
		&job.ID,
		&job.SubjectID,
		&kind,
		&status,
		&cfg,
		&job.Progress.Total,
		&job.Progress.Processed,
		&job.Progress.Failed,
		&job.Error,
		&runAfter,
		&job.ClaimedBy,
		&job.CreatedAt,
		&job.UpdatedAt,
		&completedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	job.RunAfter = runAfter
	job.CompletedAt = completedAt
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &job.Config); err != nil {
			return nil, fmt.Errorf("decode job config: %w", err)
		}
	}
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
