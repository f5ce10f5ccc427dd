// Package retrieval turns a natural-language query into a ranked,
// deduplicated evidence set drawn from the vector index.
package retrieval

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/openlegis/legisrag/internal/encoder"
	"github.com/openlegis/legisrag/internal/index"
	"github.com/openlegis/legisrag/internal/model"
)

type Options struct {
	K           int
	ThemeFilter string
	// MaxPerDocument caps how many chunks of one source document may
	// appear in a result. Zero disables the cap.
	MaxPerDocument int
}

type Engine struct {
	encoder *encoder.Encoder
	index   *index.Index
}

func NewEngine(enc *encoder.Encoder, idx *index.Index) *Engine {
	return &Engine{encoder: enc, index: idx}
}

// Retrieve embeds the query and returns up to opts.K evidence chunks,
// strictly descending by score, rank starting at 1, no duplicate chunk
// ids. A theme filter that eliminates every candidate yields an empty
// result, not an error.
func (e *Engine) Retrieve(ctx context.Context, query string, opts Options) (model.RetrievalResult, error) {
	normalized := strings.Join(strings.Fields(query), " ")
	result := model.RetrievalResult{Query: normalized}
	if normalized == "" || opts.K <= 0 {
		return result, nil
	}

	vec, err := e.encoder.EncodeQuery(ctx, normalized)
	if err != nil {
		return result, err
	}

	// Over-fetch so post-filters still leave k candidates.
	fetchK := opts.K * 4
	if fetchK < opts.K+16 {
		fetchK = opts.K + 16
	}
	hits, err := e.index.Search(vec, fetchK)
	if err != nil {
		return result, err
	}

	seen := make(map[string]bool, len(hits))
	perDoc := make(map[string]int, len(hits))
	for _, hit := range hits {
		if opts.ThemeFilter != "" && hit.Chunk.Theme != opts.ThemeFilter {
			continue
		}
		if seen[hit.Chunk.ID] {
			continue
		}
		if opts.MaxPerDocument > 0 && perDoc[hit.Chunk.DocumentID] >= opts.MaxPerDocument {
			continue
		}
		seen[hit.Chunk.ID] = true
		perDoc[hit.Chunk.DocumentID]++
		result.Chunks = append(result.Chunks, model.ScoredChunk{
			Chunk: hit.Chunk,
			Score: hit.Score,
			Rank:  len(result.Chunks) + 1,
		})
		if len(result.Chunks) >= opts.K {
			break
		}
	}

	logutil.GetLogger(ctx).Debug("retrieval done",
		zap.String("theme_filter", opts.ThemeFilter),
		zap.Int("k", opts.K),
		zap.Int("candidates", len(hits)),
		zap.Int("results", len(result.Chunks)),
	)
	return result, nil
}
