package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	staticProviderName = "static"
	openAIProviderName = "openai"
)

type modelDescriptionPayload struct {
	Description string `json:"description"`
}

type modelChunksPayload struct {
	Chunks []struct {
		Content   string  `json:"content"`
		StartTime float64 `json:"start_time"`
		EndTime   float64 `json:"end_time"`
	} `json:"chunks"`
}

func buildScenePayload(req SceneRequest) string {
	sb := &strings.Builder{}
	sb.WriteString("You describe storyboard frames for an illustrator. Respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"description":string}`)
	fmt.Fprintf(sb, ". Describe one concrete visual scene (setting, characters, action, lighting) in at most 60 words for the narration below. Style hint=%q, colour hint=%q. Never mention text or captions.\nNarration: %q", req.Style, req.Color, collapseSpace(req.Content))
	return sb.String()
}

func buildSymbolPayload(req SymbolRequest) string {
	sb := &strings.Builder{}
	sb.WriteString("You design symbolic imagery for storyboards. Respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"description":string}`)
	fmt.Fprintf(sb, ". Describe a single symbolic object or emblem (at most 40 words) that captures the meaning of the narration without depicting the literal scene.\nNarration: %q\nLiteral scene: %q", collapseSpace(req.Content), collapseSpace(req.Scene))
	return sb.String()
}

func buildChunkPayload(text string) string {
	sb := &strings.Builder{}
	sb.WriteString("You split narration scripts into storyboard chunks. Respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"chunks":[{"content":string,"start_time":number,"end_time":number}]}`)
	fmt.Fprintf(sb, ". Keep the original wording, one visual beat per chunk, at most %d characters each. Times are seconds assuming %.1f spoken words per second.\nScript: %q", maxChunkChars, wordsPerSecond, text)
	return sb.String()
}

func coalesce(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	cut := string(runes[:limit])
	if i := strings.LastIndex(cut, " "); i > limit/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:") + "..."
}

func ensurePeriod(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?") || strings.HasSuffix(s, "...") {
		return s
	}
	return s + "."
}

func parseModelPayload[T any](raw string) (T, error) {
	var zero T
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return zero, errors.New("empty payload")
	}
	var decoded T
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return zero, err
	}
	return decoded, nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
