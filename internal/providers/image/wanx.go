package image

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storyboard/internal/domain"
	"storyboard/internal/infra"
	"storyboard/internal/providers/dashscope"
)

type taskImageClient interface {
	SubmitImageTask(context.Context, dashscope.TaskRequest) (string, error)
	GetTask(context.Context, string) (*dashscope.Task, error)
	Download(context.Context, string) ([]byte, string, error)
	HasCredentials() bool
	TaskModel() string
}

// WanxGenerator submits asynchronous wanx tasks and polls until they settle.
type WanxGenerator struct {
	client       taskImageClient
	pollInterval time.Duration
	maxPolls     int
	wait         func(context.Context, time.Duration) error
}

// NewWanxGenerator wires a task client with its polling limits.
func NewWanxGenerator(client taskImageClient, pollInterval time.Duration, maxPolls int) *WanxGenerator {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	if maxPolls <= 0 {
		maxPolls = 60
	}
	return &WanxGenerator{client: client, pollInterval: pollInterval, maxPolls: maxPolls, wait: infra.SleepContext}
}

func (g *WanxGenerator) ID() ProviderID { return ProviderWanx }

func (g *WanxGenerator) Available() bool {
	return g != nil && g.client != nil && g.client.HasCredentials()
}

// Generate fulfils the Generator interface.
func (g *WanxGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	if !g.Available() {
		return nil, domain.NewProviderError(domain.ErrProviderUnavailable, string(ProviderWanx), dashscope.ErrMissingAPIKey)
	}
	prompt := BuildIllustrationPrompt(req)
	taskReq := dashscope.TaskRequest{
		Prompt:         prompt,
		NegativePrompt: DefaultNegativePrompt,
		Size:           TaskSize(req.AspectRatio),
		Seed:           deterministicSeed(req.RequestID, req.Role, prompt),
	}
	taskID, err := g.client.SubmitImageTask(ctx, taskReq)
	if err != nil {
		return nil, classifyDashScopeError(ProviderWanx, fmt.Errorf("submit task: %w", err))
	}

	task, err := g.poll(ctx, taskID)
	if err != nil {
		return nil, err
	}

	resultURL := strings.TrimSpace(task.ResultURLs[0])
	data, format, err := g.client.Download(ctx, resultURL)
	if err != nil {
		return nil, classifyDashScopeError(ProviderWanx, fmt.Errorf("download result: %w", err))
	}
	width, height := parseSize(taskReq.Size)
	return &Asset{
		URL:    resultURL,
		Format: normalizeFormat(format),
		Width:  width,
		Height: height,
		Data:   data,
		Metadata: map[string]any{
			"model":   g.client.TaskModel(),
			"task_id": taskID,
			"size":    taskReq.Size,
			"seed":    taskReq.Seed,
		},
	}, nil
}

func (g *WanxGenerator) poll(ctx context.Context, taskID string) (*dashscope.Task, error) {
	for attempt := 1; attempt <= g.maxPolls; attempt++ {
		if err := g.wait(ctx, g.pollInterval); err != nil {
			return nil, domain.ClassifyProviderError(string(ProviderWanx), err)
		}
		task, err := g.client.GetTask(ctx, taskID)
		if err != nil {
			if dashscope.IsTransient(err) && ctx.Err() == nil {
				continue
			}
			return nil, classifyDashScopeError(ProviderWanx, fmt.Errorf("poll task %s: %w", taskID, err))
		}
		switch task.Status {
		case dashscope.TaskSucceeded:
			if len(task.ResultURLs) == 0 || strings.TrimSpace(task.ResultURLs[0]) == "" {
				return nil, domain.NewProviderError(domain.ErrProviderFailure, string(ProviderWanx), fmt.Errorf("task %s returned no images", taskID))
			}
			return task, nil
		case dashscope.TaskFailed, dashscope.TaskCanceled, dashscope.TaskUnknown:
			return nil, domain.NewProviderError(domain.ErrProviderFailure, string(ProviderWanx), taskFailure(task))
		}
	}
	return nil, domain.NewProviderError(domain.ErrProviderTimeout, string(ProviderWanx),
		fmt.Errorf("task %s not finished after %d polls", taskID, g.maxPolls))
}

var _ Generator = (*WanxGenerator)(nil)

func taskFailure(task *dashscope.Task) error {
	msg := strings.TrimSpace(task.Message)
	if msg == "" {
		msg = "no message"
	}
	if task.Code != "" {
		return fmt.Errorf("task %s %s: %s: %s", task.ID, strings.ToLower(string(task.Status)), task.Code, msg)
	}
	return fmt.Errorf("task %s %s: %s", task.ID, strings.ToLower(string(task.Status)), msg)
}

func parseSize(size string) (int, int) {
	var w, h int
	if _, err := fmt.Sscanf(size, "%d*%d", &w, &h); err != nil {
		return 0, 0
	}
	return w, h
}
