package domain

import "context"

// JobRepository persists batch jobs and their items.
// Lookups that find nothing return ErrNotFound.
type JobRepository interface {
	// CreateJob inserts a pending job with its items. When another active job
	// already exists for the subject it returns that job and created=false.
	CreateJob(ctx context.Context, job *Job) (stored *Job, created bool, err error)
	GetJob(ctx context.Context, jobID string) (*Job, error)
	ActiveJobForSubject(ctx context.Context, subjectID string) (*Job, error)
	LatestJobForSubject(ctx context.Context, subjectID string) (*Job, error)
	ListJobsForSubject(ctx context.Context, subjectID string) ([]Job, error)
	// ClaimNextJob moves the oldest runnable pending job to processing.
	ClaimNextJob(ctx context.Context, workerID string) (*Job, error)
	JobStatus(ctx context.Context, jobID string) (JobStatus, error)
	// UpdateItem stores the item and recomputes the job counters in one transaction.
	UpdateItem(ctx context.Context, item *JobItem) (Progress, error)
	TransitionJob(ctx context.Context, t JobTransition) (bool, error)
	// RequeueJob returns a processing job and its processing items to pending.
	RequeueJob(ctx context.Context, jobID string) error
	// Reconcile demotes every processing job and item to pending.
	Reconcile(ctx context.Context) (jobs int64, items int64, err error)
	DeleteJobsForSubject(ctx context.Context, subjectID string) (int64, error)
}

// ScriptRepository persists scripts and the asset references of their chunks.
type ScriptRepository interface {
	CreateScript(ctx context.Context, script *Script) error
	GetScript(ctx context.Context, scriptID string) (*Script, error)
	ScriptExists(ctx context.Context, scriptID string) (bool, error)
	GetChunk(ctx context.Context, scriptID, chunkID string) (*Chunk, error)
	FindChunksMissingAsset(ctx context.Context, scriptID string) ([]Chunk, error)
	UpdateChunkAsset(ctx context.Context, scriptID, chunkID string, asset ChunkAsset) error
}
