package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"storyboard/internal/domain"
	"storyboard/internal/infra"
	"storyboard/internal/sqlinline"
)

// ScriptRepositoryPG implements domain.ScriptRepository on PostgreSQL.
type ScriptRepositoryPG struct {
	sql infra.TxRunner
}

func NewScriptRepository(sql infra.TxRunner) *ScriptRepositoryPG {
	return &ScriptRepositoryPG{sql: sql}
}

func (r *ScriptRepositoryPG) CreateScript(ctx context.Context, script *domain.Script) error {
	return r.sql.InTx(ctx, func(tx infra.SQLExecutor) error {
		if _, err := tx.Exec(ctx, sqlinline.QInsertScript, script.ID, script.Title, script.Content, script.CreatedAt); err != nil {
			return err
		}
		for _, chunk := range script.Chunks {
			if _, err := tx.Exec(ctx, sqlinline.QInsertScriptChunk,
				chunk.ID,
				script.ID,
				chunk.Position,
				chunk.Content,
				chunk.StartTime,
				chunk.EndTime,
				script.CreatedAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ScriptRepositoryPG) GetScript(ctx context.Context, scriptID string) (*domain.Script, error) {
	var script domain.Script
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectScript, scriptID).Scan(
		&script.ID,
		&script.Title,
		&script.Content,
		&script.CreatedAt,
		&script.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	chunks, err := r.queryChunks(ctx, sqlinline.QSelectScriptChunks, scriptID)
	if err != nil {
		return nil, err
	}
	script.Chunks = chunks
	return &script, nil
}

func (r *ScriptRepositoryPG) ScriptExists(ctx context.Context, scriptID string) (bool, error) {
	var exists bool
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectScriptExists, scriptID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *ScriptRepositoryPG) GetChunk(ctx context.Context, scriptID, chunkID string) (*domain.Chunk, error) {
	chunk, err := scanChunk(r.sql.QueryRow(ctx, sqlinline.QSelectScriptChunk, scriptID, chunkID))
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

func (r *ScriptRepositoryPG) FindChunksMissingAsset(ctx context.Context, scriptID string) ([]domain.Chunk, error) {
	return r.queryChunks(ctx, sqlinline.QSelectChunksMissingAsset, scriptID)
}

func (r *ScriptRepositoryPG) UpdateChunkAsset(ctx context.Context, scriptID, chunkID string, asset domain.ChunkAsset) error {
	meta, err := json.Marshal(metadataOrEmpty(asset.Metadata))
	if err != nil {
		return fmt.Errorf("encode asset metadata: %w", err)
	}
	generatedAt := asset.GeneratedAt
	if generatedAt == nil {
		now := time.Now().UTC()
		generatedAt = &now
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateChunkAsset,
		scriptID,
		chunkID,
		asset.ImageURL,
		asset.SecondaryImageURL,
		asset.SceneDescription,
		asset.SymbolDescription,
		asset.Provider,
		meta,
		generatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ScriptRepositoryPG) queryChunks(ctx context.Context, query, scriptID string) ([]domain.Chunk, error) {
	rows, err := r.sql.Query(ctx, query, scriptID)
	if err != nil {
		return nil, err
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

func scanChunk(row pgx.Row) (*domain.Chunk, error) {
	var (
		chunk domain.Chunk
		meta  []byte
	)
	if err := row.Scan(
		&chunk.ID,
		&chunk.ScriptID,
		&chunk.Position,
		&chunk.Content,
		&chunk.StartTime,
		&chunk.EndTime,
		&chunk.Asset.ImageURL,
		&chunk.Asset.SecondaryImageURL,
		&chunk.Asset.SceneDescription,
		&chunk.Asset.SymbolDescription,
		&chunk.Asset.Provider,
		&meta,
		&chunk.Asset.GeneratedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &chunk.Asset.Metadata); err != nil {
			return nil, fmt.Errorf("decode asset metadata: %w", err)
		}
	}
	return &chunk, nil
}

func metadataOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

var _ domain.ScriptRepository = (*ScriptRepositoryPG)(nil)
