package dashscope

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type recordedRequest struct {
	method string
	path   string
	header http.Header
	body   []byte
}

type fakeDashScope struct {
	mu       sync.Mutex
	requests []recordedRequest
	handlers map[string]http.HandlerFunc
}

func newFakeDashScope(t *testing.T) (*fakeDashScope, *httptest.Server) {
	t.Helper()
	fake := &fakeDashScope{handlers: map[string]http.HandlerFunc{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fake.mu.Lock()
		fake.requests = append(fake.requests, recordedRequest{method: r.Method, path: r.URL.Path, header: r.Header.Clone(), body: body})
		handler, ok := fake.handlers[r.Method+" "+r.URL.Path]
		fake.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return fake, srv
}

func (f *fakeDashScope) handle(method, path string, h http.HandlerFunc) {
	f.handlers[method+" "+path] = h
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestGenerateImageDownloadsResult(t *testing.T) {
	fake, srv := newFakeDashScope(t)
	fake.handle(http.MethodPost, "/api/v1/services/aigc/multimodal-generation/generation", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"output": map[string]any{
				"choices": []any{map[string]any{
					"message": map[string]any{"content": []any{map[string]any{"image": srv.URL + "/files/out.png"}}},
				}},
			},
			"usage":      map[string]any{"width": 1024, "height": 576},
			"request_id": "req-1",
		})
	})
	fake.handle(http.MethodGet, "/files/out.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})

	client := NewClient(Options{APIKey: "sk-test", BaseURL: srv.URL + "/api/v1", Watermark: true})
	asset, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "a harbor at night", Size: "1664*928", Seed: 42})
	if err != nil {
		t.Fatalf("GenerateImage error: %v", err)
	}
	if asset.Width != 1024 || asset.Height != 576 || asset.Format != "image/png" || len(asset.Data) != 4 {
		t.Fatalf("unexpected asset: %+v", asset)
	}

	first := fake.requests[0]
	if got := first.header.Get("Authorization"); got != "Bearer sk-test" {
		t.Fatalf("authorization header = %q", got)
	}
	var payload map[string]any
	if err := json.Unmarshal(first.body, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["model"] != "qwen-image-plus" {
		t.Fatalf("model = %v", payload["model"])
	}
	params := payload["parameters"].(map[string]any)
	if params["size"] != "1664*928" || params["seed"] != float64(42) || params["watermark"] != true {
		t.Fatalf("unexpected parameters: %#v", params)
	}
	if _, ok := params["prompt_extend"]; ok {
		t.Fatalf("prompt_extend should be omitted when disabled")
	}
}

func TestGenerateImageRequiresCredentials(t *testing.T) {
	client := NewClient(Options{})
	if _, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "x"}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestAPIErrorClassification(t *testing.T) {
	fake, srv := newFakeDashScope(t)
	fake.handle(http.MethodPost, "/services/aigc/multimodal-generation/generation", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"code": "InternalError", "message": "busy"})
	})
	client := NewClient(Options{APIKey: "k", BaseURL: srv.URL})
	_, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != "InternalError" || !IsTransient(err) {
		t.Fatalf("unexpected classification: %+v", apiErr)
	}
	if (&APIError{StatusCode: http.StatusBadRequest, Code: "InvalidParameter"}).Transient() {
		t.Fatalf("bad request must not be transient")
	}
}

func TestSubmitImageTaskUsesAsyncHeader(t *testing.T) {
	fake, srv := newFakeDashScope(t)
	fake.handle(http.MethodPost, "/services/aigc/text2image/image-synthesis", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"output":     map[string]any{"task_id": "task-9", "task_status": "PENDING"},
			"request_id": "req-2",
		})
	})
	client := NewClient(Options{APIKey: "k", BaseURL: srv.URL, TaskModel: "wanx-v1"})
	id, err := client.SubmitImageTask(context.Background(), TaskRequest{Prompt: "a fox", Size: "1024*1024"})
	if err != nil {
		t.Fatalf("SubmitImageTask error: %v", err)
	}
	if id != "task-9" {
		t.Fatalf("task id = %q", id)
	}
	req := fake.requests[0]
	if req.header.Get("X-DashScope-Async") != "enable" {
		t.Fatalf("async header missing")
	}
	var payload map[string]any
	_ = json.Unmarshal(req.body, &payload)
	if payload["model"] != "wanx-v1" {
		t.Fatalf("model = %v", payload["model"])
	}
	if payload["input"].(map[string]any)["prompt"] != "a fox" {
		t.Fatalf("prompt = %v", payload["input"])
	}
}

func TestGetTask(t *testing.T) {
	fake, srv := newFakeDashScope(t)
	fake.handle(http.MethodGet, "/tasks/task-9", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"output": map[string]any{
				"task_id":     "task-9",
				"task_status": "SUCCEEDED",
				"results":     []any{map[string]any{"url": "https://cdn.example.com/a.png"}},
			},
		})
	})
	fake.handle(http.MethodGet, "/tasks/task-bad", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"output": map[string]any{
				"task_id":     "task-bad",
				"task_status": "FAILED",
				"code":        "DataInspectionFailed",
				"message":     "prompt rejected",
			},
		})
	})
	client := NewClient(Options{APIKey: "k", BaseURL: srv.URL})

	task, err := client.GetTask(context.Background(), "task-9")
	if err != nil {
		t.Fatalf("GetTask error: %v", err)
	}
	if task.Status != TaskSucceeded || !task.Status.Terminal() || len(task.ResultURLs) != 1 {
		t.Fatalf("unexpected task: %+v", task)
	}

	task, err = client.GetTask(context.Background(), "task-bad")
	if err != nil {
		t.Fatalf("GetTask error: %v", err)
	}
	if task.Status != TaskFailed || task.Code != "DataInspectionFailed" {
		t.Fatalf("unexpected task: %+v", task)
	}
	if TaskRunning.Terminal() {
		t.Fatalf("running must not be terminal")
	}
}
