package embedcache

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/openlegis/legisrag/internal/ai"
	"github.com/openlegis/legisrag/internal/model"
	"github.com/openlegis/legisrag/internal/repo"
)

// WrapDBCacheToEmbedder persists embeddings across process restarts,
// keyed by model + task type + content hash. Sits under the LRU layer.
func WrapDBCacheToEmbedder(e ai.IEmbedder, cacheRepo *repo.EmbeddingCacheRepo) ai.IEmbedder {
	if e == nil || cacheRepo == nil {
		return e
	}
	return &dbEmbedder{next: e, repo: cacheRepo}
}

type dbEmbedder struct {
	next ai.IEmbedder
	repo *repo.EmbeddingCacheRepo
}

func (d *dbEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		_, contentHash, modelName := buildCacheKey(d.next.ModelName(), taskType, text)
		values, ok, err := d.repo.Get(ctx, modelName, taskType, contentHash)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = values
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		logutil.GetLogger(ctx).Debug("embedding cache hit (db)", zap.Int("count", len(texts)))
		return out, nil
	}
	fetched, err := d.next.Embed(ctx, missing, taskType)
	if err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	for j, vec := range fetched {
		i := missingIdx[j]
		out[i] = vec
		_, contentHash, modelName := buildCacheKey(d.next.ModelName(), taskType, texts[i])
		if err := d.repo.Save(ctx, &model.EmbeddingCache{
			ModelName:   modelName,
			TaskType:    taskType,
			ContentHash: contentHash,
			Embedding:   vec,
			Ctime:       now,
		}); err != nil {
			logutil.GetLogger(ctx).Warn("failed to cache embedding", zap.Error(err))
		}
	}
	return out, nil
}

func (d *dbEmbedder) ModelName() string {
	if d == nil || d.next == nil {
		return ""
	}
	return d.next.ModelName()
}
