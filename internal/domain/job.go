package domain

import (
	"math"
	"strings"
	"time"
)

// JobKind enumerates the kinds of background batch jobs.
type JobKind string

const (
	JobKindBatchImageGeneration JobKind = "batch_image_generation"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusPaused     JobStatus = "paused"
)

// Active reports whether the status blocks creation of another job for the same subject.
func (s JobStatus) Active() bool {
	return s == JobStatusPending || s == JobStatusProcessing
}

// ItemStatus enumerates per-chunk states inside a job.
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
)

// Illustration styles. StyleIllustration renders one image from the scene
// description; the symbolic styles add a second image from a symbol description.
const (
	StyleIllustration = "illustration"
	StyleSymbolic     = "symbolic"
	StyleDual         = "dual"
)

// JobConfig is fixed when the job is created.
type JobConfig struct {
	Provider    string            `json:"provider"`
	Style       string            `json:"style"`
	Color       string            `json:"color,omitempty"`
	Quality     string            `json:"quality,omitempty"`
	AspectRatio string            `json:"aspect_ratio,omitempty"`
	Options     map[string]string `json:"options,omitempty"`
}

// Normalize trims and lowercases the selector fields and fills defaults.
func (c JobConfig) Normalize(defaultProvider string) JobConfig {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = strings.ToLower(strings.TrimSpace(defaultProvider))
	}
	c.Style = strings.ToLower(strings.TrimSpace(c.Style))
	if c.Style == "" {
		c.Style = StyleIllustration
	}
	c.Color = strings.TrimSpace(c.Color)
	c.Quality = strings.ToLower(strings.TrimSpace(c.Quality))
	if c.Quality == "" {
		c.Quality = "standard"
	}
	c.AspectRatio = strings.TrimSpace(c.AspectRatio)
	if c.AspectRatio == "" {
		c.AspectRatio = "16:9"
	}
	return c
}

// TwoStage reports whether the style needs both a scene and a symbol image.
func (c JobConfig) TwoStage() bool {
	return c.Style == StyleSymbolic || c.Style == StyleDual
}

// Progress mirrors the item counters stored on the job row.
type Progress struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Percentage returns round(processed/total*100), or 100 for an empty job.
func (p Progress) Percentage() int {
	if p.Total <= 0 {
		return 100
	}
	return int(math.Round(float64(p.Processed) / float64(p.Total) * 100))
}

// Job is a durable batch of per-chunk image generations for one subject.
type Job struct {
	ID          string
	SubjectID   string
	Kind        JobKind
	Status      JobStatus
	Config      JobConfig
	Items       []JobItem
	Progress    Progress
	Error       string
	RunAfter    *time.Time
	ClaimedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// IsComplete reports whether every item of the job has been illustrated.
func (j *Job) IsComplete() bool {
	return j.Progress.Processed >= j.Progress.Total
}

// JobItem tracks one chunk inside a job.
type JobItem struct {
	JobID         string
	Position      int
	ChunkID       string
	Status        ItemStatus
	Error         string
	Attempts      int
	NextAttemptAt *time.Time
	ProcessedAt   *time.Time
	Result        ItemResult
}

// ItemResult holds the asset references written for a completed item.
type ItemResult struct {
	ImageURL          string `json:"image_url,omitempty"`
	SecondaryImageURL string `json:"secondary_image_url,omitempty"`
	SceneDescription  string `json:"scene_description,omitempty"`
	SymbolDescription string `json:"symbol_description,omitempty"`
}

// ResultFromAsset copies the reference fields of a chunk asset.
func ResultFromAsset(a ChunkAsset) ItemResult {
	return ItemResult{
		ImageURL:          a.ImageURL,
		SecondaryImageURL: a.SecondaryImageURL,
		SceneDescription:  a.SceneDescription,
		SymbolDescription: a.SymbolDescription,
	}
}

// Retryable reports whether a failed item may be attempted again.
func (i JobItem) Retryable(maxAttempts int) bool {
	return i.Status == ItemStatusFailed && i.Attempts < maxAttempts
}

// Due reports whether the item should be worked on in a pass starting at now.
func (i JobItem) Due(now time.Time, maxAttempts int) bool {
	switch i.Status {
	case ItemStatusPending:
		return true
	case ItemStatusFailed:
		if !i.Retryable(maxAttempts) {
			return false
		}
		return i.NextAttemptAt == nil || !i.NextAttemptAt.After(now)
	default:
		return false
	}
}

// CountItems recomputes progress from item states.
func CountItems(items []JobItem) Progress {
	p := Progress{Total: len(items)}
	for _, item := range items {
		switch item.Status {
		case ItemStatusCompleted:
			p.Processed++
		case ItemStatusFailed:
			p.Failed++
		}
	}
	return p
}

// NewBatchJob builds a pending job whose items are the given chunks in order.
func NewBatchJob(id, subjectID string, cfg JobConfig, chunkIDs []string, now time.Time) *Job {
	items := make([]JobItem, 0, len(chunkIDs))
	for i, chunkID := range chunkIDs {
		items = append(items, JobItem{
			JobID:    id,
			Position: i,
			ChunkID:  chunkID,
			Status:   ItemStatusPending,
		})
	}
	return &Job{
		ID:        id,
		SubjectID: subjectID,
		Kind:      JobKindBatchImageGeneration,
		Status:    JobStatusPending,
		Config:    cfg,
		Items:     items,
		Progress:  Progress{Total: len(items)},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobTransition is a conditional status change applied by the job store.
// The update only happens while the job is in one of From.
type JobTransition struct {
	JobID       string
	From        []JobStatus
	To          JobStatus
	Error       string
	RunAfter    *time.Time
	CompletedAt *time.Time
}
