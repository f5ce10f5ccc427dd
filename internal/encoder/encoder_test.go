package encoder

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/openlegis/legisrag/internal/pkg/errors"
)

// fakeEmbedder derives a deterministic pseudo-vector from each text.
type fakeEmbedder struct {
	dimension int
	calls     int
	batches   []int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string, _ string) ([][]float32, error) {
	f.calls++
	f.batches = append(f.batches, len(texts))
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec := make([]float32, f.dimension)
		for i := range vec {
			vec[i] = float32((len(text)+i)%7) + 1
		}
		out = append(out, vec)
	}
	return out, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake-embed-001" }

type zeroEmbedder struct{}

func (zeroEmbedder) Embed(_ context.Context, texts []string, _ string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, 8)
	}
	return out, nil
}

func (zeroEmbedder) ModelName() string { return "zero" }

func TestEncodeQueryNormalizes(t *testing.T) {
	e := New(&fakeEmbedder{dimension: 8}, 8, 1024, 4)
	vec, err := e.EncodeQuery(context.Background(), "quais propostas afetam consumidores?")
	require.NoError(t, err)
	require.Len(t, vec, 8)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	require.InDelta(t, 1.0, sum, 1e-5)
}

func TestEncodeQueryIsStable(t *testing.T) {
	e := New(&fakeEmbedder{dimension: 8}, 8, 1024, 4)
	a, err := e.EncodeQuery(context.Background(), "reforma tributária")
	require.NoError(t, err)
	b, err := e.EncodeQuery(context.Background(), "reforma tributária")
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestEncodeDocumentsBatches(t *testing.T) {
	fake := &fakeEmbedder{dimension: 8}
	e := New(fake, 8, 1024, 4)

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("proposição %d", i)
	}
	vecs, err := e.EncodeDocuments(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 10)
	require.Equal(t, 3, fake.calls)
	require.Equal(t, []int{4, 4, 2}, fake.batches)
}

func TestEncodeRejectsOversizedInput(t *testing.T) {
	e := New(&fakeEmbedder{dimension: 8}, 8, 32, 4)
	_, err := e.EncodeQuery(context.Background(), strings.Repeat("x", 64))
	require.ErrorIs(t, err, apperrors.ErrEncoding)
}

func TestEncodeRejectsEmptyInput(t *testing.T) {
	e := New(&fakeEmbedder{dimension: 8}, 8, 32, 4)
	_, err := e.EncodeQuery(context.Background(), "")
	require.ErrorIs(t, err, apperrors.ErrEncoding)
}

func TestEncodeRejectsDimensionMismatch(t *testing.T) {
	e := New(&fakeEmbedder{dimension: 8}, 16, 1024, 4)
	_, err := e.EncodeQuery(context.Background(), "qualquer texto")
	require.ErrorIs(t, err, apperrors.ErrEncoding)
}

func TestEncodeRejectsZeroNormVector(t *testing.T) {
	e := New(zeroEmbedder{}, 8, 1024, 4)
	_, err := e.EncodeQuery(context.Background(), "qualquer texto")
	require.ErrorIs(t, err, apperrors.ErrEncoding)
}

func TestNormalize(t *testing.T) {
	vec, ok := normalize([]float32{3, 4})
	require.True(t, ok)
	require.InDelta(t, 0.6, float64(vec[0]), 1e-6)
	require.InDelta(t, 0.8, float64(vec[1]), 1e-6)

	_, ok = normalize([]float32{0, 0})
	require.False(t, ok)

	_, ok = normalize(nil)
	require.False(t, ok)
	require.False(t, math.IsNaN(float64(vec[0])))
}
