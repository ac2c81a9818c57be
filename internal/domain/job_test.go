package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestProgressPercentage(t *testing.T) {
	tests := []struct {
		name string
		p    Progress
		want int
	}{
		{name: "empty job", p: Progress{}, want: 100},
		{name: "none processed", p: Progress{Total: 3}, want: 0},
		{name: "rounds down", p: Progress{Total: 3, Processed: 1}, want: 33},
		{name: "rounds up", p: Progress{Total: 3, Processed: 2}, want: 67},
		{name: "done", p: Progress{Total: 2, Processed: 2}, want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Percentage(); got != tt.want {
				t.Fatalf("Percentage() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestJobItemDue(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Minute)
	earlier := now.Add(-time.Minute)

	tests := []struct {
		name string
		item JobItem
		want bool
	}{
		{name: "pending", item: JobItem{Status: ItemStatusPending}, want: true},
		{name: "completed", item: JobItem{Status: ItemStatusCompleted}, want: false},
		{name: "processing", item: JobItem{Status: ItemStatusProcessing}, want: false},
		{name: "failed retryable", item: JobItem{Status: ItemStatusFailed, Attempts: 1, NextAttemptAt: &earlier}, want: true},
		{name: "failed backing off", item: JobItem{Status: ItemStatusFailed, Attempts: 1, NextAttemptAt: &later}, want: false},
		{name: "failed exhausted", item: JobItem{Status: ItemStatusFailed, Attempts: 3}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.Due(now, 3); got != tt.want {
				t.Fatalf("Due() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewBatchJobCountsItems(t *testing.T) {
	now := time.Now()
	job := NewBatchJob("job-1", "script-1", JobConfig{Provider: "synthetic"}, []string{"a", "b", "c"}, now)
	if job.Status != JobStatusPending {
		t.Fatalf("status = %s, want pending", job.Status)
	}
	if job.Progress != CountItems(job.Items) {
		t.Fatalf("progress %+v does not match items %+v", job.Progress, CountItems(job.Items))
	}
	for i, item := range job.Items {
		if item.Position != i || item.Status != ItemStatusPending || item.JobID != "job-1" {
			t.Fatalf("unexpected item %d: %+v", i, item)
		}
	}
}

func TestJobConfigNormalize(t *testing.T) {
	cfg := JobConfig{Provider: " Qwen ", Style: "DUAL"}.Normalize("synthetic")
	if cfg.Provider != "qwen" || cfg.Style != StyleDual || cfg.Quality != "standard" || cfg.AspectRatio != "16:9" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if !cfg.TwoStage() {
		t.Fatalf("dual style should be two-stage")
	}
	if got := (JobConfig{}).Normalize("synthetic").Provider; got != "synthetic" {
		t.Fatalf("default provider = %q", got)
	}
}

func TestClassifyProviderError(t *testing.T) {
	err := ClassifyProviderError("wanx", fmt.Errorf("poll: %w", context.DeadlineExceeded))
	if !errors.Is(err, ErrProviderTimeout) {
		t.Fatalf("expected timeout classification, got %v", err)
	}
	err = ClassifyProviderError("qwen", errors.New("status 500"))
	if !errors.Is(err, ErrProviderFailure) {
		t.Fatalf("expected failure classification, got %v", err)
	}
	classified := NewProviderError(ErrProviderUnavailable, "qwen", nil)
	if ClassifyProviderError("qwen", classified) != error(classified) {
		t.Fatalf("classified errors must pass through")
	}
}
