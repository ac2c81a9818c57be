package domain

import (
	"strings"
	"time"
)

// Script is the document whose chunks get illustrated.
type Script struct {
	ID        string
	Title     string
	Content   string
	Chunks    []Chunk
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk is a timed slice of a script.
type Chunk struct {
	ID        string
	ScriptID  string
	Position  int
	Content   string
	StartTime float64
	EndTime   float64
	Asset     ChunkAsset
}

// HasAsset reports whether a primary image was already written for the chunk.
func (c Chunk) HasAsset() bool {
	return strings.TrimSpace(c.Asset.ImageURL) != ""
}

// ChunkAsset holds the generated image references of a chunk.
type ChunkAsset struct {
	ImageURL          string
	SecondaryImageURL string
	SceneDescription  string
	SymbolDescription string
	Provider          string
	Metadata          map[string]any
	GeneratedAt       *time.Time
}

// ChunkDraft is a chunk proposed by the chunker before it is stored.
type ChunkDraft struct {
	Content   string  `json:"content"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}
