package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storyboard/internal/domain"
	"storyboard/internal/illustration"
	"storyboard/internal/infra"
)

// Reconcile demotes work left in processing by a previous run.
func (m *Manager) Reconcile(ctx context.Context) error {
	jobs, items, err := m.jobs.Reconcile(ctx)
	if err != nil {
		return persistenceError("reconcile", err)
	}
	if jobs > 0 || items > 0 {
		m.logger.Warn().Int64("jobs", jobs).Int64("items", items).Msg("batch: demoted interrupted work to pending")
	}
	return nil
}

// Run reconciles interrupted work and then processes jobs until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Reconcile(ctx); err != nil {
		return err
	}
	m.logger.Info().Str("worker_id", m.opts.WorkerID).Msg("batch: worker started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		worked, err := m.RunOnce(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			m.logger.Error().Err(err).Dur("backoff", m.opts.PersistBackoff).Msg("batch: loop error")
			if err := m.sleep(ctx, m.opts.PersistBackoff); err != nil {
				return err
			}
		case !worked:
			if err := m.idle(ctx); err != nil {
				return err
			}
		}
	}
}

// RunOnce claims the oldest runnable job and makes one pass over it.
// It reports false when no job was available.
func (m *Manager) RunOnce(ctx context.Context) (bool, error) {
	job, err := m.jobs.ClaimNextJob(ctx, m.opts.WorkerID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, persistenceError("claim job", err)
	}
	if err := m.processJob(ctx, job); err != nil {
		if ctx.Err() == nil {
			if rqErr := m.jobs.RequeueJob(ctx, job.ID); rqErr != nil {
				m.logger.Error().Err(rqErr).Str("job_id", job.ID).Msg("batch: requeue after failure failed")
			}
		}
		return true, err
	}
	return true, nil
}

func (m *Manager) idle(ctx context.Context) error {
	timer := time.NewTimer(m.opts.IdleInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.wake:
		return nil
	case <-timer.C:
		return nil
	}
}

func (m *Manager) processJob(ctx context.Context, job *domain.Job) error {
	started := m.now()
	log := m.logger.With().Str("job_id", job.ID).Str("subject_id", job.SubjectID).Str("provider", job.Config.Provider).Logger()
	log.Info().Int("total", job.Progress.Total).Int("processed", job.Progress.Processed).Msg("batch: picked job")

	worked := false
	for idx := range job.Items {
		item := &job.Items[idx]
		if !item.Due(m.now(), m.opts.MaxAttempts) {
			continue
		}

		status, err := m.jobs.JobStatus(ctx, job.ID)
		if errors.Is(err, domain.ErrNotFound) {
			log.Info().Msg("batch: job removed, stopping")
			return nil
		}
		if err != nil {
			return persistenceError("check job status", err)
		}
		if status != domain.JobStatusProcessing {
			log.Info().Str("status", string(status)).Msg("batch: job no longer processing, stopping")
			return nil
		}

		if worked && m.opts.ItemDelay > 0 {
			if err := m.sleep(ctx, m.opts.ItemDelay); err != nil {
				return err
			}
		}
		if err := m.processItem(ctx, job, item); err != nil {
			if errors.Is(err, errJobRemoved) {
				log.Info().Str("chunk_id", item.ChunkID).Msg("batch: job removed during item, stopping")
				return nil
			}
			return err
		}
		worked = true
	}
	return m.finishPass(ctx, job.ID, started)
}

func (m *Manager) processItem(ctx context.Context, job *domain.Job, item *domain.JobItem) error {
	log := m.logger.With().
		Str("job_id", job.ID).
		Str("chunk_id", item.ChunkID).
		Str("provider", job.Config.Provider).
		Logger()
	started := m.now()

	chunk, err := m.scripts.GetChunk(ctx, job.SubjectID, item.ChunkID)
	if errors.Is(err, domain.ErrNotFound) {
		item.Attempts = max(item.Attempts, m.opts.MaxAttempts)
		return m.failItem(ctx, log, job, item, domain.ErrChunkMissing, started)
	}
	if err != nil {
		return persistenceError("load chunk", err)
	}
	if chunk.HasAsset() {
		log.Info().Msg("batch: chunk already illustrated, skipping")
		return m.completeItem(ctx, log, job, item, chunk.Asset, "skipped", started)
	}

	item.Status = domain.ItemStatusProcessing
	item.Attempts++
	item.Error = ""
	item.NextAttemptAt = nil
	if _, err := m.saveItem(ctx, item, "mark item processing"); err != nil {
		return err
	}

	itemCtx, cancel := context.WithTimeout(ctx, m.opts.ItemTimeout)
	asset, err := m.illustrator.Illustrate(itemCtx, illustration.Request{
		RequestID: fmt.Sprintf("%s:%d", job.ID, item.Position),
		ScriptID:  job.SubjectID,
		ChunkID:   item.ChunkID,
		Content:   chunk.Content,
		Config:    job.Config,
	})
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return m.failItem(ctx, log, job, item, itemError(itemCtx, job.Config.Provider, err), started)
	}

	// A direct generation may have written the chunk while the provider ran.
	current, err := m.scripts.GetChunk(ctx, job.SubjectID, item.ChunkID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		item.Attempts = max(item.Attempts, m.opts.MaxAttempts)
		return m.failItem(ctx, log, job, item, domain.ErrChunkMissing, started)
	case err != nil:
		return persistenceError("reload chunk", err)
	case current.HasAsset():
		log.Info().Msg("batch: chunk illustrated concurrently, keeping existing asset")
		return m.completeItem(ctx, log, job, item, current.Asset, "skipped", started)
	}

	if err := m.scripts.UpdateChunkAsset(ctx, job.SubjectID, item.ChunkID, asset); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			item.Attempts = max(item.Attempts, m.opts.MaxAttempts)
			return m.failItem(ctx, log, job, item, domain.ErrChunkMissing, started)
		}
		return persistenceError("write chunk asset", err)
	}
	return m.completeItem(ctx, log, job, item, asset, "completed", started)
}

func (m *Manager) completeItem(ctx context.Context, log infra.Logger, job *domain.Job, item *domain.JobItem, asset domain.ChunkAsset, outcome string, started time.Time) error {
	now := m.now()
	item.Status = domain.ItemStatusCompleted
	item.Error = ""
	item.NextAttemptAt = nil
	item.ProcessedAt = &now
	item.Result = domain.ResultFromAsset(asset)
	progress, err := m.saveItem(ctx, item, "mark item completed")
	if err != nil {
		return err
	}
	job.Progress = progress
	m.metrics.ItemProcessed(ctx, job.Config.Provider, outcome, now.Sub(started))
	log.Info().
		Int("attempt", item.Attempts).
		Int("processed", progress.Processed).
		Int("total", progress.Total).
		Msg("batch: item completed")
	return nil
}

func (m *Manager) failItem(ctx context.Context, log infra.Logger, job *domain.Job, item *domain.JobItem, cause error, started time.Time) error {
	now := m.now()
	item.Status = domain.ItemStatusFailed
	item.Error = cause.Error()
	item.ProcessedAt = &now
	item.NextAttemptAt = nil
	if item.Retryable(m.opts.MaxAttempts) {
		next := now.Add(retryDelay(m.opts.RetryBaseDelay, item.Attempts))
		item.NextAttemptAt = &next
	}
	progress, err := m.saveItem(ctx, item, "mark item failed")
	if err != nil {
		return err
	}
	job.Progress = progress
	m.metrics.ItemProcessed(ctx, job.Config.Provider, "failed", now.Sub(started))
	event := log.Warn().Err(cause).Int("attempt", item.Attempts).Int("failed", progress.Failed)
	if item.NextAttemptAt != nil {
		event = event.Time("next_attempt_at", *item.NextAttemptAt)
	}
	event.Msg("batch: item failed")
	return nil
}

// errJobRemoved reports that the job's rows were deleted while an item ran.
var errJobRemoved = errors.New("batch: job removed")

// saveItem persists item state. A missing row means the job was cleared.
func (m *Manager) saveItem(ctx context.Context, item *domain.JobItem, op string) (domain.Progress, error) {
	progress, err := m.jobs.UpdateItem(ctx, item)
	if errors.Is(err, domain.ErrNotFound) {
		return progress, errJobRemoved
	}
	if err != nil {
		return progress, persistenceError(op, err)
	}
	return progress, nil
}

// finishPass settles the job after every due item was visited.
func (m *Manager) finishPass(ctx context.Context, jobID string, started time.Time) error {
	job, err := m.jobs.GetJob(ctx, jobID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return persistenceError("reload job", err)
	}

	now := m.now()
	t := domain.JobTransition{JobID: jobID, From: []domain.JobStatus{domain.JobStatusProcessing}}
	progress := domain.CountItems(job.Items)
	switch {
	case progress.Processed == progress.Total:
		t.To = domain.JobStatusCompleted
		t.CompletedAt = &now
	default:
		if retryAt, ok := m.nextRetry(job.Items, now); ok {
			t.To = domain.JobStatusPending
			t.RunAfter = &retryAt
		} else {
			t.To = domain.JobStatusFailed
			t.Error = failureSummary(job.Items, progress)
			t.CompletedAt = &now
		}
	}

	ok, err := m.jobs.TransitionJob(ctx, t)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return persistenceError("finish job", err)
	}
	log := m.logger.With().Str("job_id", jobID).Str("subject_id", job.SubjectID).Logger()
	if !ok {
		log.Info().Msg("batch: job changed during pass, leaving as is")
		return nil
	}
	m.metrics.JobFinished(ctx, string(t.To), now.Sub(started))
	event := log.Info().
		Str("status", string(t.To)).
		Int("processed", progress.Processed).
		Int("failed", progress.Failed).
		Int("total", progress.Total)
	if t.RunAfter != nil {
		event = event.Time("run_after", *t.RunAfter)
	}
	event.Msg("batch: pass finished")
	return nil
}

// nextRetry returns the earliest time a remaining item becomes due.
func (m *Manager) nextRetry(items []domain.JobItem, now time.Time) (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, item := range items {
		var due time.Time
		switch {
		case item.Status == domain.ItemStatusPending || item.Status == domain.ItemStatusProcessing:
			due = now
		case item.Retryable(m.opts.MaxAttempts):
			due = now
			if item.NextAttemptAt != nil && item.NextAttemptAt.After(now) {
				due = *item.NextAttemptAt
			}
		default:
			continue
		}
		if !found || due.Before(earliest) {
			earliest = due
			found = true
		}
	}
	return earliest, found
}

func failureSummary(items []domain.JobItem, progress domain.Progress) string {
	first := ""
	for _, item := range items {
		if item.Status == domain.ItemStatusFailed && item.Error != "" {
			first = item.Error
			break
		}
	}
	return fmt.Sprintf("%d of %d chunks failed: %s", progress.Failed, progress.Total, first)
}

const maxRetryDelay = 10 * time.Minute

// retryDelay is base * 2^(attempts-1), capped at maxRetryDelay.
func retryDelay(base time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return min(delay, maxRetryDelay)
}

func itemError(itemCtx context.Context, provider string, err error) error {
	if errors.Is(itemCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrProviderTimeout) {
		return domain.NewProviderError(domain.ErrProviderTimeout, provider, err)
	}
	if errors.Is(err, domain.ErrInvalidInput) {
		return err
	}
	return domain.ClassifyProviderError(provider, err)
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrPersistenceFailure, op, err)
}
