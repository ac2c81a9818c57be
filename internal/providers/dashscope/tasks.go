package dashscope

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// TaskStatus is the lifecycle state reported by the DashScope task API.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskRunning   TaskStatus = "RUNNING"
	TaskSucceeded TaskStatus = "SUCCEEDED"
	TaskFailed    TaskStatus = "FAILED"
	TaskCanceled  TaskStatus = "CANCELED"
	TaskUnknown   TaskStatus = "UNKNOWN"
)

// Terminal reports whether polling can stop.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskSucceeded, TaskFailed, TaskCanceled, TaskUnknown:
		return true
	default:
		return false
	}
}

// TaskRequest describes an asynchronous text-to-image job.
type TaskRequest struct {
	Prompt         string
	NegativePrompt string
	Size           string
	Seed           int
}

// Task is a snapshot of an asynchronous job.
type Task struct {
	ID         string
	Status     TaskStatus
	ResultURLs []string
	Code       string
	Message    string
}

type taskSubmitRequest struct {
	Model string `json:"model"`
	Input struct {
		Prompt         string `json:"prompt"`
		NegativePrompt string `json:"negative_prompt,omitempty"`
	} `json:"input"`
	Parameters struct {
		Size string `json:"size,omitempty"`
		N    int    `json:"n"`
		Seed *int   `json:"seed,omitempty"`
	} `json:"parameters"`
}

type taskResponse struct {
	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		Results    []struct {
			URL     string `json:"url"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"results"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"output"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// SubmitImageTask enqueues an asynchronous generation and returns its task id.
func (c *Client) SubmitImageTask(ctx context.Context, req TaskRequest) (string, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", errors.New("dashscope: prompt is required")
	}
	var payload taskSubmitRequest
	payload.Model = c.taskModel
	payload.Input.Prompt = prompt
	payload.Input.NegativePrompt = strings.TrimSpace(req.NegativePrompt)
	payload.Parameters.Size = strings.TrimSpace(req.Size)
	payload.Parameters.N = 1
	if req.Seed > 0 {
		seed := req.Seed
		payload.Parameters.Seed = &seed
	}

	var decoded taskResponse
	headers := map[string]string{"X-DashScope-Async": "enable"}
	if err := c.do(ctx, http.MethodPost, "/services/aigc/text2image/image-synthesis", payload, headers, &decoded); err != nil {
		return "", err
	}
	if decoded.Code != "" {
		return "", &APIError{StatusCode: http.StatusOK, Code: decoded.Code, Message: decoded.Message}
	}
	if decoded.Output.TaskID == "" {
		return "", errors.New("dashscope: task id missing from response")
	}
	c.logger.Debug().
		Str("model", c.taskModel).
		Str("task_id", decoded.Output.TaskID).
		Msg("dashscope: task submitted")
	return decoded.Output.TaskID, nil
}

// GetTask fetches the current state of an asynchronous task.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, errors.New("dashscope: task id is required")
	}
	var decoded taskResponse
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID), nil, nil, &decoded); err != nil {
		return nil, err
	}
	task := &Task{
		ID:      decoded.Output.TaskID,
		Status:  TaskStatus(strings.ToUpper(decoded.Output.TaskStatus)),
		Code:    decoded.Output.Code,
		Message: decoded.Output.Message,
	}
	if task.ID == "" {
		task.ID = taskID
	}
	if task.Status == "" {
		task.Status = TaskUnknown
	}
	for _, result := range decoded.Output.Results {
		if u := strings.TrimSpace(result.URL); u != "" {
			task.ResultURLs = append(task.ResultURLs, u)
		} else if task.Code == "" && result.Code != "" {
			task.Code, task.Message = result.Code, result.Message
		}
	}
	return task, nil
}
