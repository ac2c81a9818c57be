package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storyboard/internal/domain"
)

type OpenAIOptions struct {
	APIKey       string
	Model        string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
	Fallback     *StaticAnalyzer
	OnFallback   func(reason string, err error)
	OnWarning    func(reason, detail string)
}

// OpenAIAnalyzer uses chat completions for scene, symbol and chunk analysis and
// falls back to the static analyzer whenever the remote call cannot be used.
type OpenAIAnalyzer struct {
	apiKey       string
	model        string
	baseURL      string
	organization string
	client       *http.Client
	fallback     *StaticAnalyzer
	onFallback   func(reason string, err error)
}

const openAIDefaultTimeout = 30 * time.Second

const defaultOpenAIModel = "gpt-4o-mini"

var openAIModelCanonical = map[string]string{
	"gpt-3.5-turbo": "gpt-3.5-turbo",
	"gpt-4o-mini":   "gpt-4o-mini",
	"gpt-4o":        "gpt-4o",
}

var openAIModelAliases = map[string]string{
	"gpt-3.5":                "gpt-3.5-turbo",
	"gpt3.5":                 "gpt-3.5-turbo",
	"gpt-35-turbo":           "gpt-3.5-turbo",
	"gpt4o-mini":             "gpt-4o-mini",
	"gpt4omini":              "gpt-4o-mini",
	"gpt-4o-mini-2024-07-18": "gpt-4o-mini",
	"gpt4o":                  "gpt-4o",
}

type openAIChatRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *openAIFormat   `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// fallbackError carries the reason label reported to OnFallback.
type fallbackError struct {
	reason string
	err    error
}

func (e *fallbackError) Error() string { return e.reason + ": " + e.err.Error() }
func (e *fallbackError) Unwrap() error { return e.err }

func NewOpenAIAnalyzer(opts OpenAIOptions) (*OpenAIAnalyzer, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	modelInput := strings.TrimSpace(opts.Model)
	normalizedModel, normalizationReason := normalizeOpenAIModel(modelInput)
	if normalizationReason != "" && opts.OnWarning != nil {
		detail := fmt.Sprintf("requested=%s resolved=%s", coalesce(modelInput, defaultOpenAIModel), normalizedModel)
		opts.OnWarning("model_"+normalizationReason, detail)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}
	fallback := opts.Fallback
	if fallback == nil {
		fallback = NewStaticAnalyzer()
	}
	return &OpenAIAnalyzer{
		apiKey:       strings.TrimSpace(opts.APIKey),
		model:        normalizedModel,
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		client:       client,
		fallback:     fallback,
		onFallback:   opts.OnFallback,
	}, nil
}

func (o *OpenAIAnalyzer) DescribeScene(ctx context.Context, req SceneRequest) (*Description, error) {
	if collapseSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: chunk content is empty", domain.ErrInvalidInput)
	}
	text, err := o.describe(ctx, buildScenePayload(req), 0.6)
	if err != nil {
		res, ferr := o.fallback.DescribeScene(ctx, req)
		return o.markFallback(res, ferr, err)
	}
	return &Description{Text: text, Provider: openAIProviderName, Metadata: map[string]string{"model": o.model}}, nil
}

func (o *OpenAIAnalyzer) DescribeSymbol(ctx context.Context, req SymbolRequest) (*Description, error) {
	if collapseSpace(coalesce(req.Content, req.Scene)) == "" {
		return nil, fmt.Errorf("%w: chunk content is empty", domain.ErrInvalidInput)
	}
	text, err := o.describe(ctx, buildSymbolPayload(req), 0.8)
	if err != nil {
		res, ferr := o.fallback.DescribeSymbol(ctx, req)
		return o.markFallback(res, ferr, err)
	}
	return &Description{Text: text, Provider: openAIProviderName, Metadata: map[string]string{"model": o.model}}, nil
}

func (o *OpenAIAnalyzer) Split(ctx context.Context, text string) ([]domain.ChunkDraft, error) {
	if collapseSpace(text) == "" {
		return nil, fmt.Errorf("%w: script text is empty", domain.ErrInvalidInput)
	}
	raw, err := o.chat(ctx, buildChunkPayload(text), 0.2)
	if err == nil {
		var parsed modelChunksPayload
		parsed, err = parseModelPayload[modelChunksPayload](raw)
		if err != nil {
			err = &fallbackError{reason: "parse_payload", err: err}
		} else if drafts := draftsFromPayload(parsed); len(drafts) > 0 {
			return drafts, nil
		} else {
			err = &fallbackError{reason: "empty_chunks", err: errors.New("no chunks")}
		}
	}
	o.emitFallback(err)
	return o.fallback.Split(ctx, text)
}

func (o *OpenAIAnalyzer) describe(ctx context.Context, userPrompt string, temperature float64) (string, error) {
	raw, err := o.chat(ctx, userPrompt, temperature)
	if err != nil {
		return "", err
	}
	parsed, err := parseModelPayload[modelDescriptionPayload](raw)
	if err != nil {
		return "", &fallbackError{reason: "parse_payload", err: err}
	}
	text := collapseSpace(parsed.Description)
	if text == "" {
		return "", &fallbackError{reason: "empty_description", err: errors.New("empty description")}
	}
	return text, nil
}

func (o *OpenAIAnalyzer) chat(ctx context.Context, userPrompt string, temperature float64) (string, error) {
	payload := openAIChatRequest{
		Model:       o.model,
		Temperature: temperature,
		ResponseFormat: &openAIFormat{
			Type: "json_object",
		},
		Messages: []openAIMessage{
			{Role: "system", Content: "You are a storyboard assistant that only responds with valid JSON."},
			{Role: "user", Content: userPrompt},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", &fallbackError{reason: "encode_request", err: err}
	}
	endpoint := fmt.Sprintf("%s/chat/completions", o.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", &fallbackError{reason: "build_request", err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	if o.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", o.organization)
	}
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", &fallbackError{reason: "http_request", err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return "", &fallbackError{reason: fmt.Sprintf("http_%d", resp.StatusCode), err: fmt.Errorf("openai status %d", resp.StatusCode)}
	}
	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &fallbackError{reason: "decode_response", err: err}
	}
	if len(out.Choices) == 0 {
		return "", &fallbackError{reason: "empty_choices", err: errors.New("no choices")}
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", &fallbackError{reason: "empty_response", err: errors.New("empty response")}
	}
	return text, nil
}

func (o *OpenAIAnalyzer) markFallback(res *Description, fallbackErr error, cause error) (*Description, error) {
	reason := o.emitFallback(cause)
	if res != nil {
		res.Provider = staticProviderName
		if res.Metadata == nil {
			res.Metadata = map[string]string{}
		}
		res.Metadata["fallback_reason"] = reason
	}
	return res, fallbackErr
}

func (o *OpenAIAnalyzer) emitFallback(err error) string {
	reason := "unknown"
	var fe *fallbackError
	if errors.As(err, &fe) {
		reason = fe.reason
	}
	if o.onFallback != nil {
		o.onFallback(reason, err)
	}
	return reason
}

var (
	_ Analyzer = (*OpenAIAnalyzer)(nil)
	_ Chunker  = (*OpenAIAnalyzer)(nil)
)

func draftsFromPayload(p modelChunksPayload) []domain.ChunkDraft {
	var pieces []string
	var drafts []domain.ChunkDraft
	timed := true
	var last float64
	for _, c := range p.Chunks {
		content := collapseSpace(c.Content)
		if content == "" {
			continue
		}
		pieces = append(pieces, content)
		if c.EndTime <= c.StartTime || c.StartTime < last {
			timed = false
		}
		last = c.EndTime
		drafts = append(drafts, domain.ChunkDraft{Content: content, StartTime: c.StartTime, EndTime: c.EndTime})
	}
	if !timed {
		return timeDrafts(pieces)
	}
	return drafts
}

func normalizeOpenAIModel(name string) (string, string) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return defaultOpenAIModel, ""
	}
	normalized := strings.ToLower(trimmed)
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	if canonical, ok := openAIModelCanonical[normalized]; ok {
		return canonical, ""
	}
	if alias, ok := openAIModelAliases[normalized]; ok {
		return alias, "alias"
	}
	return defaultOpenAIModel, "defaulted"
}
