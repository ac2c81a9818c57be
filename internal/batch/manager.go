// Package batch runs batch illustration jobs for scripts.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"storyboard/internal/domain"
	"storyboard/internal/illustration"
	"storyboard/internal/infra"
)

// Illustrator renders the asset for one chunk.
type Illustrator interface {
	Illustrate(ctx context.Context, req illustration.Request) (domain.ChunkAsset, error)
	ProviderAvailable(provider string) error
}

// Notifier announces newly created jobs to other processes.
type Notifier interface {
	JobCreated(ctx context.Context, job *domain.Job) error
}

// Options tunes the processing loop.
type Options struct {
	WorkerID        string
	DefaultProvider string
	IdleInterval    time.Duration
	ItemDelay       time.Duration
	ItemTimeout     time.Duration
	MaxAttempts     int
	RetryBaseDelay  time.Duration
	PersistBackoff  time.Duration
}

// OptionsFromConfig maps the environment configuration onto loop options.
func OptionsFromConfig(cfg infra.BatchConfig, defaultProvider string) Options {
	return Options{
		WorkerID:        cfg.WorkerID,
		DefaultProvider: defaultProvider,
		IdleInterval:    cfg.IdleInterval,
		ItemDelay:       cfg.ItemDelay,
		ItemTimeout:     cfg.ItemTimeout,
		MaxAttempts:     cfg.MaxAttempts,
		RetryBaseDelay:  cfg.RetryBaseDelay,
		PersistBackoff:  cfg.PersistBackoff,
	}
}

func (o Options) withDefaults() Options {
	if o.WorkerID == "" {
		o.WorkerID = "worker-" + uuid.NewString()[:8]
	}
	if o.IdleInterval <= 0 {
		o.IdleInterval = 5 * time.Second
	}
	if o.ItemDelay < 0 {
		o.ItemDelay = 0
	}
	if o.ItemTimeout <= 0 {
		o.ItemTimeout = 5 * time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = 30 * time.Second
	}
	if o.PersistBackoff <= 0 {
		o.PersistBackoff = 10 * time.Second
	}
	return o
}

// Deps are the collaborators of a Manager.
type Deps struct {
	Jobs        domain.JobRepository
	Scripts     domain.ScriptRepository
	Illustrator Illustrator
	Notifier    Notifier
	Metrics     *Metrics
	Logger      infra.Logger
}

// Manager is the long-lived batch service. One Manager runs the loop per process.
type Manager struct {
	jobs        domain.JobRepository
	scripts     domain.ScriptRepository
	illustrator Illustrator
	notifier    Notifier
	metrics     *Metrics
	logger      infra.Logger
	opts        Options

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
	wake  chan struct{}
}

func NewManager(deps Deps, opts Options) *Manager {
	return &Manager{
		jobs:        deps.Jobs,
		scripts:     deps.Scripts,
		illustrator: deps.Illustrator,
		notifier:    deps.Notifier,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		opts:        opts.withDefaults(),
		now:         func() time.Time { return time.Now().UTC() },
		sleep:       infra.SleepContext,
		wake:        make(chan struct{}, 1),
	}
}

// WorkerID identifies this manager in claimed jobs.
func (m *Manager) WorkerID() string { return m.opts.WorkerID }

// Wake cuts the current idle wait short.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// CreateBatchJob starts illustrating every chunk of subjectID that has no asset yet.
// When a job is already pending or processing for the subject it is returned with
// created=false.
func (m *Manager) CreateBatchJob(ctx context.Context, subjectID string, cfg domain.JobConfig) (*domain.Job, bool, error) {
	exists, err := m.scripts.ScriptExists(ctx, subjectID)
	if err != nil {
		return nil, false, persistenceError("check subject", err)
	}
	if !exists {
		return nil, false, fmt.Errorf("%w: %s", domain.ErrSubjectNotFound, subjectID)
	}
	cfg, err = illustration.ValidateConfig(cfg, m.opts.DefaultProvider)
	if err != nil {
		return nil, false, err
	}

	active, err := m.jobs.ActiveJobForSubject(ctx, subjectID)
	switch {
	case err == nil:
		return active, false, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, false, persistenceError("load active job", err)
	}

	if err := m.illustrator.ProviderAvailable(cfg.Provider); err != nil {
		return nil, false, err
	}

	chunks, err := m.scripts.FindChunksMissingAsset(ctx, subjectID)
	if err != nil {
		return nil, false, persistenceError("find chunks", err)
	}
	if len(chunks) == 0 {
		return nil, false, domain.ErrNoWorkRemaining
	}
	chunkIDs := make([]string, 0, len(chunks))
	for _, c := range chunks {
		chunkIDs = append(chunkIDs, c.ID)
	}

	job := domain.NewBatchJob(uuid.NewString(), subjectID, cfg, chunkIDs, m.now())
	stored, created, err := m.jobs.CreateJob(ctx, job)
	if err != nil {
		return nil, false, persistenceError("create job", err)
	}
	if !created {
		return stored, false, nil
	}

	m.logger.Info().
		Str("job_id", stored.ID).
		Str("subject_id", subjectID).
		Str("provider", cfg.Provider).
		Int("total", stored.Progress.Total).
		Msg("batch: job created")
	m.metrics.JobCreated(ctx, cfg.Provider)
	if m.notifier != nil {
		if err := m.notifier.JobCreated(ctx, stored); err != nil {
			m.logger.Warn().Err(err).Str("job_id", stored.ID).Msg("batch: notify job created failed")
		}
	}
	m.Wake()
	return stored, true, nil
}

// CancelBatch pauses the active job of subjectID. The item in flight finishes;
// the loop stops before the next one.
func (m *Manager) CancelBatch(ctx context.Context, subjectID string) (bool, error) {
	active, err := m.jobs.ActiveJobForSubject(ctx, subjectID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, persistenceError("load active job", err)
	}
	ok, err := m.jobs.TransitionJob(ctx, domain.JobTransition{
		JobID: active.ID,
		From:  []domain.JobStatus{domain.JobStatusPending, domain.JobStatusProcessing},
		To:    domain.JobStatusPaused,
	})
	if err != nil {
		return false, persistenceError("pause job", err)
	}
	if ok {
		m.logger.Info().Str("job_id", active.ID).Str("subject_id", subjectID).Msg("batch: job paused")
	}
	return ok, nil
}

// ResumeBatch puts the most recent paused job of subjectID back in the queue.
func (m *Manager) ResumeBatch(ctx context.Context, subjectID string) (*domain.Job, error) {
	latest, err := m.jobs.LatestJobForSubject(ctx, subjectID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: no job for %s", domain.ErrNotFound, subjectID)
	}
	if err != nil {
		return nil, persistenceError("load latest job", err)
	}
	if latest.Status != domain.JobStatusPaused {
		return nil, fmt.Errorf("%w: latest job is %s, not paused", domain.ErrInvalidInput, latest.Status)
	}
	ok, err := m.jobs.TransitionJob(ctx, domain.JobTransition{
		JobID: latest.ID,
		From:  []domain.JobStatus{domain.JobStatusPaused},
		To:    domain.JobStatusPending,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateOperation) {
			return nil, err
		}
		return nil, persistenceError("resume job", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: job %s changed concurrently", domain.ErrInvalidInput, latest.ID)
	}
	m.logger.Info().Str("job_id", latest.ID).Str("subject_id", subjectID).Msg("batch: job resumed")
	m.Wake()
	return m.jobs.GetJob(ctx, latest.ID)
}

// ClearJobs deletes every job recorded for subjectID.
func (m *Manager) ClearJobs(ctx context.Context, subjectID string) (int64, error) {
	n, err := m.jobs.DeleteJobsForSubject(ctx, subjectID)
	if err != nil {
		return 0, persistenceError("delete jobs", err)
	}
	m.logger.Info().Str("subject_id", subjectID).Int64("deleted", n).Msg("batch: jobs cleared")
	return n, nil
}

// ListJobs returns the job history of subjectID, newest first.
func (m *Manager) ListJobs(ctx context.Context, subjectID string) ([]domain.Job, error) {
	jobs, err := m.jobs.ListJobsForSubject(ctx, subjectID)
	if err != nil {
		return nil, persistenceError("list jobs", err)
	}
	return jobs, nil
}

// GetJob loads one job with its items.
func (m *Manager) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return m.jobs.GetJob(ctx, jobID)
}

// GenerateChunk illustrates a single chunk immediately, outside any batch job.
// An existing asset is replaced.
func (m *Manager) GenerateChunk(ctx context.Context, subjectID, chunkID string, cfg domain.JobConfig) (*domain.Chunk, error) {
	cfg, err := illustration.ValidateConfig(cfg, m.opts.DefaultProvider)
	if err != nil {
		return nil, err
	}
	if err := m.illustrator.ProviderAvailable(cfg.Provider); err != nil {
		return nil, err
	}
	chunk, err := m.scripts.GetChunk(ctx, subjectID, chunkID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrChunkMissing, chunkID)
	}
	if err != nil {
		return nil, persistenceError("load chunk", err)
	}

	itemCtx, cancel := context.WithTimeout(ctx, m.opts.ItemTimeout)
	asset, err := m.illustrator.Illustrate(itemCtx, illustration.Request{
		RequestID: uuid.NewString(),
		ScriptID:  subjectID,
		ChunkID:   chunkID,
		Content:   chunk.Content,
		Config:    cfg,
	})
	cancel()
	if err != nil {
		return nil, itemError(itemCtx, cfg.Provider, err)
	}
	if err := m.scripts.UpdateChunkAsset(ctx, subjectID, chunkID, asset); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrChunkMissing, chunkID)
		}
		return nil, persistenceError("write chunk asset", err)
	}
	chunk.Asset = asset
	m.logger.Info().
		Str("subject_id", subjectID).
		Str("chunk_id", chunkID).
		Str("provider", cfg.Provider).
		Msg("batch: chunk generated directly")
	return chunk, nil
}
