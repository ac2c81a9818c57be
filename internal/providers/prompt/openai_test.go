package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func chatResponse(content string) *http.Response {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"content": content}}},
	})
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(string(body))),
	}
}

func TestOpenAIAnalyzerDescribeScene(t *testing.T) {
	var captured openAIChatRequest
	analyzer, err := NewOpenAIAnalyzer(OpenAIOptions{
		APIKey: "dummy",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if got := r.Header.Get("Authorization"); got != "Bearer dummy" {
				t.Errorf("authorization = %q", got)
			}
			_ = json.NewDecoder(r.Body).Decode(&captured)
			return chatResponse("```json\n{\"description\":\"A keeper climbs the lighthouse stairs at dusk.\"}\n```"), nil
		})},
	})
	if err != nil {
		t.Fatalf("NewOpenAIAnalyzer returned error: %v", err)
	}
	res, err := analyzer.DescribeScene(context.Background(), SceneRequest{Content: "The keeper climbs.", Style: "dual"})
	if err != nil {
		t.Fatalf("DescribeScene returned error: %v", err)
	}
	if res.Text != "A keeper climbs the lighthouse stairs at dusk." {
		t.Fatalf("Text = %q", res.Text)
	}
	if res.Provider != openAIProviderName {
		t.Fatalf("Provider = %q", res.Provider)
	}
	if captured.Model != defaultOpenAIModel || captured.ResponseFormat == nil || captured.ResponseFormat.Type != "json_object" {
		t.Fatalf("unexpected request: %+v", captured)
	}
}

func TestOpenAIAnalyzerFallbackMetadata(t *testing.T) {
	var capturedReason string
	analyzer, err := NewOpenAIAnalyzer(OpenAIOptions{
		APIKey: "dummy",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return nil, errors.New("boom")
		})},
		OnFallback: func(reason string, err error) {
			capturedReason = reason
		},
	})
	if err != nil {
		t.Fatalf("NewOpenAIAnalyzer returned error: %v", err)
	}
	res, err := analyzer.DescribeSymbol(context.Background(), SymbolRequest{Content: "The harbour sleeps under falling snow."})
	if err != nil {
		t.Fatalf("DescribeSymbol returned error: %v", err)
	}
	if res.Provider != staticProviderName {
		t.Fatalf("Provider = %q, want %q", res.Provider, staticProviderName)
	}
	if res.Metadata["fallback_reason"] != "http_request" {
		t.Fatalf("fallback_reason = %q, want %q", res.Metadata["fallback_reason"], "http_request")
	}
	if capturedReason != "http_request" {
		t.Fatalf("captured reason = %q, want %q", capturedReason, "http_request")
	}
}

func TestOpenAIAnalyzerSplit(t *testing.T) {
	analyzer, err := NewOpenAIAnalyzer(OpenAIOptions{
		APIKey: "dummy",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return chatResponse(`{"chunks":[{"content":"First beat.","start_time":0,"end_time":2},{"content":"Second beat.","start_time":2,"end_time":4.5}]}`), nil
		})},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	drafts, err := analyzer.Split(context.Background(), "First beat. Second beat.")
	if err != nil {
		t.Fatalf("Split returned error: %v", err)
	}
	if len(drafts) != 2 || drafts[1].EndTime != 4.5 {
		t.Fatalf("unexpected drafts: %+v", drafts)
	}
}

func TestOpenAIAnalyzerSplitFallsBackOnBadStatus(t *testing.T) {
	var capturedReason string
	analyzer, err := NewOpenAIAnalyzer(OpenAIOptions{
		APIKey: "dummy",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusTooManyRequests, Body: io.NopCloser(strings.NewReader("{}"))}, nil
		})},
		OnFallback: func(reason string, err error) { capturedReason = reason },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	drafts, err := analyzer.Split(context.Background(), "One.\n\nTwo.")
	if err != nil {
		t.Fatalf("Split returned error: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("expected static split into 2 chunks, got %d", len(drafts))
	}
	if capturedReason != "http_429" {
		t.Fatalf("captured reason = %q", capturedReason)
	}
}

func TestNormalizeOpenAIModel(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		input  string
		model  string
		reason string
	}{
		{name: "exact_default", input: "gpt-4o-mini", model: "gpt-4o-mini", reason: ""},
		{name: "exact_other", input: "gpt-4o", model: "gpt-4o", reason: ""},
		{name: "alias_short", input: "gpt-3.5", model: "gpt-3.5-turbo", reason: "alias"},
		{name: "alias_spaces", input: "GPT4o Mini", model: "gpt-4o-mini", reason: "alias"},
		{name: "unsupported", input: "gpt-4.1", model: "gpt-4o-mini", reason: "defaulted"},
		{name: "empty", input: "", model: "gpt-4o-mini", reason: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			gotModel, gotReason := normalizeOpenAIModel(tc.input)
			if gotModel != tc.model {
				t.Fatalf("model = %q, want %q", gotModel, tc.model)
			}
			if gotReason != tc.reason {
				t.Fatalf("reason = %q, want %q", gotReason, tc.reason)
			}
		})
	}
}

func TestNewOpenAIAnalyzerRequiresKey(t *testing.T) {
	if _, err := NewOpenAIAnalyzer(OpenAIOptions{APIKey: "  "}); err == nil {
		t.Fatal("expected error for empty api key")
	}
}
