package image

import (
	"context"
	"errors"
	"testing"
	"time"

	"storyboard/internal/domain"
	"storyboard/internal/providers/dashscope"
)

type stubTaskClient struct {
	submitErr  error
	statuses   []*dashscope.Task
	polls      int
	downloaded string
}

func (s *stubTaskClient) SubmitImageTask(ctx context.Context, req dashscope.TaskRequest) (string, error) {
	if s.submitErr != nil {
		return "", s.submitErr
	}
	return "task-1", nil
}

func (s *stubTaskClient) GetTask(ctx context.Context, id string) (*dashscope.Task, error) {
	idx := s.polls
	s.polls++
	if idx >= len(s.statuses) {
		return &dashscope.Task{ID: id, Status: dashscope.TaskRunning}, nil
	}
	return s.statuses[idx], nil
}

func (s *stubTaskClient) Download(ctx context.Context, url string) ([]byte, string, error) {
	s.downloaded = url
	return []byte("jpeg-bytes"), "image/jpeg", nil
}

func (s *stubTaskClient) HasCredentials() bool { return true }

func (s *stubTaskClient) TaskModel() string { return "wanx2.1-t2i-turbo" }

func newTestWanx(client *stubTaskClient, maxPolls int) *WanxGenerator {
	gen := NewWanxGenerator(client, time.Millisecond, maxPolls)
	gen.wait = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return gen
}

func TestWanxGeneratorPollsUntilSuccess(t *testing.T) {
	client := &stubTaskClient{statuses: []*dashscope.Task{
		{ID: "task-1", Status: dashscope.TaskPending},
		{ID: "task-1", Status: dashscope.TaskRunning},
		{ID: "task-1", Status: dashscope.TaskSucceeded, ResultURLs: []string{"https://oss/result.jpg"}},
	}}
	asset, err := newTestWanx(client, 5).Generate(context.Background(), GenerateRequest{Description: "a forest", AspectRatio: "16:9"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.polls != 3 {
		t.Fatalf("expected 3 polls, got %d", client.polls)
	}
	if client.downloaded != "https://oss/result.jpg" {
		t.Fatalf("unexpected download url %q", client.downloaded)
	}
	if asset.Format != "image/jpeg" || asset.Width != 1280 || asset.Height != 720 {
		t.Fatalf("unexpected asset: %+v", asset)
	}
	if asset.Metadata["task_id"] != "task-1" {
		t.Fatalf("expected task id metadata, got %v", asset.Metadata)
	}
}

func TestWanxGeneratorTimesOutAfterMaxPolls(t *testing.T) {
	client := &stubTaskClient{}
	_, err := newTestWanx(client, 3).Generate(context.Background(), GenerateRequest{Description: "a forest"})
	if !errors.Is(err, domain.ErrProviderTimeout) {
		t.Fatalf("expected ErrProviderTimeout, got %v", err)
	}
	if client.polls != 3 {
		t.Fatalf("expected 3 polls, got %d", client.polls)
	}
}

func TestWanxGeneratorReportsTaskFailure(t *testing.T) {
	client := &stubTaskClient{statuses: []*dashscope.Task{
		{ID: "task-1", Status: dashscope.TaskFailed, Code: "InvalidParameter", Message: "bad prompt"},
	}}
	_, err := newTestWanx(client, 3).Generate(context.Background(), GenerateRequest{Description: "a forest"})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected ErrProviderFailure, got %v", err)
	}
}

func TestWanxGeneratorSucceededWithoutResults(t *testing.T) {
	client := &stubTaskClient{statuses: []*dashscope.Task{{ID: "task-1", Status: dashscope.TaskSucceeded}}}
	_, err := newTestWanx(client, 3).Generate(context.Background(), GenerateRequest{Description: "a forest"})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected ErrProviderFailure, got %v", err)
	}
}

func TestWanxGeneratorSubmitUnauthorized(t *testing.T) {
	client := &stubTaskClient{submitErr: &dashscope.APIError{StatusCode: 401, Code: "InvalidApiKey"}}
	_, err := newTestWanx(client, 3).Generate(context.Background(), GenerateRequest{Description: "a forest"})
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}
