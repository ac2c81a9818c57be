package batch

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names.
const (
	JobsCreatedCounterName    = "batch_jobs_created_total"
	JobsFinishedCounterName   = "batch_jobs_finished_total"
	ItemsCounterName          = "batch_items_total"
	ItemDurationHistogramName = "batch_item_duration_seconds"
	JobDurationHistogramName  = "batch_job_pass_duration_seconds"
)

// Attribute keys.
const (
	AttrProvider = "provider"
	AttrOutcome  = "outcome" // completed, failed, skipped
	AttrStatus   = "status"
	AttrWorkerID = "worker_id"
)

// Metrics records batch engine activity through OpenTelemetry instruments.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	jobsCreated  metric.Int64Counter
	jobsFinished metric.Int64Counter
	items        metric.Int64Counter
	itemDuration metric.Float64Histogram
	jobDuration  metric.Float64Histogram
	workerID     string
}

// NewMetrics creates the batch instruments on meter.
func NewMetrics(meter metric.Meter, workerID string) (*Metrics, error) {
	// Provider calls range from sub-second local renders to multi-minute polls.
	itemBuckets := []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

	jobsCreated, err := meter.Int64Counter(JobsCreatedCounterName,
		metric.WithDescription("Batch jobs created"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}
	jobsFinished, err := meter.Int64Counter(JobsFinishedCounterName,
		metric.WithDescription("Batch job passes finished, by resulting status"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}
	items, err := meter.Int64Counter(ItemsCounterName,
		metric.WithDescription("Batch items processed, by outcome"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}
	itemDuration, err := meter.Float64Histogram(ItemDurationHistogramName,
		metric.WithDescription("Duration of one item illustration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(itemBuckets...))
	if err != nil {
		return nil, err
	}
	jobDuration, err := meter.Float64Histogram(JobDurationHistogramName,
		metric.WithDescription("Duration of one pass over a job in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Metrics{
		jobsCreated:  jobsCreated,
		jobsFinished: jobsFinished,
		items:        items,
		itemDuration: itemDuration,
		jobDuration:  jobDuration,
		workerID:     workerID,
	}, nil
}

func (m *Metrics) JobCreated(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	m.jobsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrProvider, provider)))
}

func (m *Metrics) JobFinished(ctx context.Context, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrStatus, status),
		attribute.String(AttrWorkerID, m.workerID),
	)
	m.jobsFinished.Add(ctx, 1, attrs)
	m.jobDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func (m *Metrics) ItemProcessed(ctx context.Context, provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrProvider, provider),
		attribute.String(AttrOutcome, outcome),
	)
	m.items.Add(ctx, 1, attrs)
	if outcome != "skipped" {
		m.itemDuration.Record(ctx, elapsed.Seconds(), attrs)
	}
}
