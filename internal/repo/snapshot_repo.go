package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/openlegis/legisrag/internal/model"
	"github.com/openlegis/legisrag/internal/pkg/dbutil"
)

// SnapshotRepo records which corpus content hash and encoder model the
// stored chunks were built from, so a stale index is detected instead
// of silently reused.
type SnapshotRepo struct {
	db *sql.DB
}

func NewSnapshotRepo(db *sql.DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

func (r *SnapshotRepo) Save(ctx context.Context, snap *model.IndexSnapshot) error {
	const query = `
		INSERT INTO index_snapshots (corpus_hash, model_name, dimension, chunk_count, ctime)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (corpus_hash, model_name) DO UPDATE SET
			dimension = EXCLUDED.dimension,
			chunk_count = EXCLUDED.chunk_count,
			ctime = EXCLUDED.ctime
	`
	_, err := r.db.ExecContext(ctx, query,
		snap.CorpusHash,
		snap.ModelName,
		snap.Dimension,
		snap.ChunkCount,
		snap.Ctime,
	)
	return err
}

func (r *SnapshotRepo) Get(ctx context.Context, corpusHash, modelName string) (*model.IndexSnapshot, bool, error) {
	where := map[string]interface{}{
		"corpus_hash": corpusHash,
		"model_name":  modelName,
	}
	sqlStr, args, err := builder.BuildSelect("index_snapshots", where,
		[]string{"corpus_hash", "model_name", "dimension", "chunk_count", "ctime"})
	if err != nil {
		return nil, false, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var snap model.IndexSnapshot
	if err := row.Scan(&snap.CorpusHash, &snap.ModelName, &snap.Dimension, &snap.ChunkCount, &snap.Ctime); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &snap, true, nil
}

// Latest returns the most recently recorded snapshot regardless of
// hash, used by the freshness job to report drift.
func (r *SnapshotRepo) Latest(ctx context.Context) (*model.IndexSnapshot, bool, error) {
	const query = `
		SELECT corpus_hash, model_name, dimension, chunk_count, ctime
		FROM index_snapshots
		ORDER BY ctime DESC
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, query)
	var snap model.IndexSnapshot
	if err := row.Scan(&snap.CorpusHash, &snap.ModelName, &snap.Dimension, &snap.ChunkCount, &snap.Ctime); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &snap, true, nil
}

func (r *SnapshotRepo) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM index_snapshots`)
	return err
}
