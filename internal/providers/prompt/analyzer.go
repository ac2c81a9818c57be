package prompt

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"storyboard/internal/domain"
)

// Analyzer turns chunk text into image descriptions.
type Analyzer interface {
	DescribeScene(ctx context.Context, req SceneRequest) (*Description, error)
	DescribeSymbol(ctx context.Context, req SymbolRequest) (*Description, error)
}

// Chunker splits a script into timed chunks.
type Chunker interface {
	Split(ctx context.Context, text string) ([]domain.ChunkDraft, error)
}

// SceneRequest carries the chunk text to describe.
type SceneRequest struct {
	Content string
	Style   string
	Color   string
}

// SymbolRequest asks for a symbolic counterpart of an already described scene.
type SymbolRequest struct {
	Content string
	Scene   string
}

// Description is the analyzer output handed to an image provider.
type Description struct {
	Text     string
	Provider string
	Metadata map[string]string
}

const (
	wordsPerSecond = 2.5
	maxChunkChars  = 400
)

// StaticAnalyzer derives descriptions and chunks from the text itself.
// It is used when no language model is configured and as the fallback on errors.
type StaticAnalyzer struct{}

func NewStaticAnalyzer() *StaticAnalyzer {
	return &StaticAnalyzer{}
}

func (s *StaticAnalyzer) DescribeScene(ctx context.Context, req SceneRequest) (*Description, error) {
	content := collapseSpace(req.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: chunk content is empty", domain.ErrInvalidInput)
	}
	text := truncate(content, 320)
	if kws := keywords(content, 3); len(kws) > 0 {
		text = fmt.Sprintf("%s Key elements: %s.", ensurePeriod(text), strings.Join(kws, ", "))
	}
	return &Description{Text: text, Provider: staticProviderName, Metadata: map[string]string{}}, nil
}

func (s *StaticAnalyzer) DescribeSymbol(ctx context.Context, req SymbolRequest) (*Description, error) {
	source := coalesce(req.Content, req.Scene)
	if collapseSpace(source) == "" {
		return nil, fmt.Errorf("%w: chunk content is empty", domain.ErrInvalidInput)
	}
	subject := "The Story"
	if kws := keywords(source, 1); len(kws) > 0 {
		subject = kws[0]
	}
	text := fmt.Sprintf("A single minimalist emblem representing %s, centred on a plain background.", subject)
	return &Description{Text: text, Provider: staticProviderName, Metadata: map[string]string{}}, nil
}

// Split groups paragraphs into chunks of at most maxChunkChars, breaking long
// paragraphs on sentence boundaries. Times assume a steady narration pace.
func (s *StaticAnalyzer) Split(ctx context.Context, text string) ([]domain.ChunkDraft, error) {
	var pieces []string
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para = collapseSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= maxChunkChars {
			pieces = append(pieces, para)
			continue
		}
		var current strings.Builder
		for _, sentence := range sentences(para) {
			if current.Len() > 0 && current.Len()+1+len(sentence) > maxChunkChars {
				pieces = append(pieces, current.String())
				current.Reset()
			}
			if current.Len() > 0 {
				current.WriteByte(' ')
			}
			current.WriteString(sentence)
		}
		if current.Len() > 0 {
			pieces = append(pieces, current.String())
		}
	}
	if len(pieces) == 0 {
		return nil, fmt.Errorf("%w: script text is empty", domain.ErrInvalidInput)
	}
	return timeDrafts(pieces), nil
}

var (
	_ Analyzer = (*StaticAnalyzer)(nil)
	_ Chunker  = (*StaticAnalyzer)(nil)
)

func timeDrafts(pieces []string) []domain.ChunkDraft {
	drafts := make([]domain.ChunkDraft, 0, len(pieces))
	var clock float64
	for _, piece := range pieces {
		words := len(strings.Fields(piece))
		duration := float64(words) / wordsPerSecond
		if duration < 1 {
			duration = 1
		}
		drafts = append(drafts, domain.ChunkDraft{
			Content:   piece,
			StartTime: roundTenth(clock),
			EndTime:   roundTenth(clock + duration),
		})
		clock += duration
	}
	return drafts
}

func roundTenth(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

func sentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next := i + 1
		if next < len(text) && text[next] != ' ' {
			continue
		}
		if s := strings.TrimSpace(text[start:next]); s != "" {
			out = append(out, s)
		}
		start = next
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

var stopwords = map[string]struct{}{
	"about": {}, "after": {}, "again": {}, "their": {}, "there": {}, "these": {}, "those": {},
	"where": {}, "which": {}, "while": {}, "would": {}, "could": {}, "should": {}, "because": {},
	"before": {}, "being": {}, "every": {}, "other": {}, "through": {}, "under": {}, "until": {},
}

// keywords returns the longest distinct words of text, title-cased, in order of appearance.
func keywords(text string, n int) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	type candidate struct {
		word  string
		index int
	}
	seen := map[string]struct{}{}
	var candidates []candidate
	for i, f := range fields {
		lower := strings.ToLower(strings.Trim(f, "'"))
		if len([]rune(lower)) < 5 {
			continue
		}
		if _, stop := stopwords[lower]; stop {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		candidates = append(candidates, candidate{word: lower, index: i})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i].word) > len(candidates[j].word)
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].index < candidates[j].index })

	caser := cases.Title(language.Und)
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, caser.String(c.word))
	}
	return out
}
