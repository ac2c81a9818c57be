package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storyboard/internal/domain"
)

const chunkColumns = `id, script_id, position, content, start_time, end_time,
	image_url, secondary_image_url, scene_description, symbol_description,
	image_provider, image_metadata, image_generated_at`

// ScriptStore implements domain.ScriptRepository.
type ScriptStore struct {
	*DB
	now func() time.Time
}

func NewScriptStore(db *DB) *ScriptStore {
	return &ScriptStore{DB: db, now: time.Now}
}

func (s *ScriptStore) CreateScript(ctx context.Context, script *domain.Script) error {
	if script == nil || script.ID == "" {
		return errors.New("script id is required")
	}
	if script.CreatedAt.IsZero() {
		script.CreatedAt = s.now().UTC()
	}
	created := formatTime(script.CreatedAt)
	return s.withTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO scripts (id, title, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			script.ID, script.Title, script.Content, created, created,
		); err != nil {
			return fmt.Errorf("insert script: %w", err)
		}
		for _, chunk := range script.Chunks {
			if _, err := q.ExecContext(ctx,
				`INSERT INTO script_chunks (id, script_id, position, content, start_time, end_time, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				chunk.ID, script.ID, chunk.Position, chunk.Content, chunk.StartTime, chunk.EndTime, created,
			); err != nil {
				return fmt.Errorf("insert chunk %d: %w", chunk.Position, err)
			}
		}
		return nil
	})
}

func (s *ScriptStore) GetScript(ctx context.Context, scriptID string) (*domain.Script, error) {
	var (
		script           domain.Script
		created, updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, content, created_at, updated_at FROM scripts WHERE id = ?`, scriptID,
	).Scan(&script.ID, &script.Title, &script.Content, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if script.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if script.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	chunks, err := s.queryChunks(ctx,
		`SELECT `+chunkColumns+` FROM script_chunks WHERE script_id = ? ORDER BY position ASC`, scriptID)
	if err != nil {
		return nil, err
	}
	script.Chunks = chunks
	return &script, nil
}

func (s *ScriptStore) ScriptExists(ctx context.Context, scriptID string) (bool, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM scripts WHERE id = ?)`, scriptID).Scan(&exists); err != nil {
		return false, err
	}
	return exists == 1, nil
}

func (s *ScriptStore) GetChunk(ctx context.Context, scriptID, chunkID string) (*domain.Chunk, error) {
	chunk, err := scanChunk(s.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM script_chunks WHERE script_id = ? AND id = ?`, scriptID, chunkID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return chunk, nil
}

func (s *ScriptStore) FindChunksMissingAsset(ctx context.Context, scriptID string) ([]domain.Chunk, error) {
	return s.queryChunks(ctx,
		`SELECT `+chunkColumns+` FROM script_chunks
		 WHERE script_id = ? AND image_url = ''
		 ORDER BY position ASC`, scriptID)
}

func (s *ScriptStore) UpdateChunkAsset(ctx context.Context, scriptID, chunkID string, asset domain.ChunkAsset) error {
	meta := asset.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode asset metadata: %w", err)
	}
	now := s.now()
	generatedAt := asset.GeneratedAt
	if generatedAt == nil {
		generatedAt = &now
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE script_chunks
		 SET image_url = ?, secondary_image_url = ?, scene_description = ?, symbol_description = ?,
		     image_provider = ?, image_metadata = ?, image_generated_at = ?, updated_at = ?
		 WHERE script_id = ? AND id = ?`,
		asset.ImageURL, asset.SecondaryImageURL, asset.SceneDescription, asset.SymbolDescription,
		asset.Provider, string(rawMeta), formatTime(*generatedAt), formatTime(now),
		scriptID, chunkID,
	)
	if err != nil {
		return fmt.Errorf("update chunk asset: %w", err)
	}
	if rowsAffected(res) == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *ScriptStore) queryChunks(ctx context.Context, query string, args ...any) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()
	var chunks []domain.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}
	return chunks, rows.Err()
}

func scanChunk(row rowScanner) (*domain.Chunk, error) {
	var (
		chunk       domain.Chunk
		meta        string
		generatedAt sql.NullString
	)
	if err := row.Scan(
		&chunk.ID, &chunk.ScriptID, &chunk.Position, &chunk.Content, &chunk.StartTime, &chunk.EndTime,
		&chunk.Asset.ImageURL, &chunk.Asset.SecondaryImageURL, &chunk.Asset.SceneDescription, &chunk.Asset.SymbolDescription,
		&chunk.Asset.Provider, &meta, &generatedAt,
	); err != nil {
		return nil, err
	}
	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &chunk.Asset.Metadata); err != nil {
			return nil, fmt.Errorf("decode asset metadata: %w", err)
		}
	}
	ts, err := parseNullTime(generatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse image_generated_at: %w", err)
	}
	chunk.Asset.GeneratedAt = ts
	return &chunk, nil
}

var _ domain.ScriptRepository = (*ScriptStore)(nil)
