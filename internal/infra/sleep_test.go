package infra

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSleepContextWaits(t *testing.T) {
	start := time.Now()
	if err := SleepContext(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("returned after %s", elapsed)
	}
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := SleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if err := SleepContext(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("zero wait err = %v, want context.Canceled", err)
	}
	if err := SleepContext(context.Background(), -time.Second); err != nil {
		t.Fatalf("negative wait err = %v", err)
	}
}
