package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/openlegis/legisrag/internal/model"
)

// ChunkRepo stores corpus chunks with their embedding vectors. The
// serving process reads the whole table once at startup to build the
// in-memory index; online traffic never writes here.
type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

func (r *ChunkRepo) SaveBatch(ctx context.Context, chunks []model.Chunk, embeddings []model.ChunkEmbedding) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("chunk/embedding count mismatch: %d != %d", len(chunks), len(embeddings))
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	const query = `
		INSERT INTO chunks (id, document_id, theme, content, token_count, position, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			theme = EXCLUDED.theme,
			content = EXCLUDED.content,
			token_count = EXCLUDED.token_count,
			position = EXCLUDED.position,
			embedding = EXCLUDED.embedding
	`
	for i, chunk := range chunks {
		if _, err := tx.ExecContext(ctx, query,
			chunk.ID,
			chunk.DocumentID,
			chunk.Theme,
			chunk.Text,
			chunk.TokenCount,
			chunk.Position,
			pgvector.NewVector(embeddings[i].Embedding),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadAll streams every chunk with its vector, ordered by id for a
// stable bulk load.
func (r *ChunkRepo) LoadAll(ctx context.Context) ([]model.Chunk, []model.ChunkEmbedding, error) {
	const query = `
		SELECT id, document_id, theme, content, token_count, position, embedding
		FROM chunks
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var chunks []model.Chunk
	var embeddings []model.ChunkEmbedding
	for rows.Next() {
		var chunk model.Chunk
		var vec pgvector.Vector
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Theme, &chunk.Text, &chunk.TokenCount, &chunk.Position, &vec); err != nil {
			return nil, nil, err
		}
		chunks = append(chunks, chunk)
		embeddings = append(embeddings, model.ChunkEmbedding{ChunkID: chunk.ID, Embedding: vec.Slice()})
	}
	return chunks, embeddings, rows.Err()
}

func (r *ChunkRepo) Count(ctx context.Context) (int, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteAll clears the table ahead of a full rebuild.
func (r *ChunkRepo) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chunks`)
	return err
}
