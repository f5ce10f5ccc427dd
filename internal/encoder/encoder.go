// Package encoder wraps an embedding provider with dimension checks,
// batching and L2 normalization so downstream cosine scoring is a plain
// dot product.
package encoder

import (
	"context"
	"fmt"
	"math"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/openlegis/legisrag/internal/ai"
	apperrors "github.com/openlegis/legisrag/internal/pkg/errors"
)

// Task types understood by the embedding providers.
const (
	TaskDocument = "RETRIEVAL_DOCUMENT"
	TaskQuery    = "RETRIEVAL_QUERY"
)

type Encoder struct {
	embedder      ai.IEmbedder
	dimension     int
	maxInputChars int
	batchSize     int
}

func New(embedder ai.IEmbedder, dimension, maxInputChars, batchSize int) *Encoder {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Encoder{
		embedder:      embedder,
		dimension:     dimension,
		maxInputChars: maxInputChars,
		batchSize:     batchSize,
	}
}

func (e *Encoder) Dimension() int {
	return e.dimension
}

func (e *Encoder) ModelName() string {
	return e.embedder.ModelName()
}

// EncodeQuery embeds one query text with the retrieval-query task type.
func (e *Encoder) EncodeQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.encode(ctx, []string{text}, TaskQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EncodeDocuments embeds chunk texts with the retrieval-document task
// type, batching provider calls for throughput. Output order matches
// input order.
func (e *Encoder) EncodeDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.encode(ctx, texts[start:end], TaskDocument)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
		logutil.GetLogger(ctx).Debug("encoded batch",
			zap.Int("from", start),
			zap.Int("to", end),
			zap.Int("total", len(texts)),
		)
	}
	return out, nil
}

func (e *Encoder) encode(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	for _, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("%w: empty input", apperrors.ErrEncoding)
		}
		if e.maxInputChars > 0 && len(text) > e.maxInputChars {
			// Callers must re-chunk smaller; truncating here would
			// silently change what gets indexed.
			return nil, fmt.Errorf("%w: input of %d chars exceeds limit %d", apperrors.ErrEncoding, len(text), e.maxInputChars)
		}
	}
	vecs, err := e.embedder.Embed(ctx, texts, taskType)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", apperrors.ErrEncoding, len(vecs), len(texts))
	}
	for i, vec := range vecs {
		if e.dimension > 0 && len(vec) != e.dimension {
			return nil, fmt.Errorf("%w: vector dimension %d, expected %d", apperrors.ErrEncoding, len(vec), e.dimension)
		}
		normalized, ok := normalize(vec)
		if !ok {
			return nil, fmt.Errorf("%w: zero-norm vector", apperrors.ErrEncoding)
		}
		vecs[i] = normalized
	}
	return vecs, nil
}

func normalize(vec []float32) ([]float32, bool) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return nil, false
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out, true
}
