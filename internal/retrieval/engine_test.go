package retrieval

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openlegis/legisrag/internal/encoder"
	"github.com/openlegis/legisrag/internal/index"
	"github.com/openlegis/legisrag/internal/model"
	apperrors "github.com/openlegis/legisrag/internal/pkg/errors"
)

const dim = 16

// hashEmbedder maps each text deterministically onto the unit circle, so
// identical texts are identical vectors and different texts diverge.
type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, texts []string, _ string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		h := fnv.New32a()
		_, _ = h.Write([]byte(text))
		angle := float64(h.Sum32()) / float64(math.MaxUint32) * math.Pi
		vec := make([]float32, dim)
		vec[0] = float32(math.Cos(angle))
		vec[1] = float32(math.Sin(angle))
		out = append(out, vec)
	}
	return out, nil
}

func (hashEmbedder) ModelName() string { return "hash-embed" }

func newFixture(t *testing.T, chunks []model.Chunk) *Engine {
	t.Helper()
	enc := encoder.New(hashEmbedder{}, dim, 0, 8)
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	vecs, err := enc.EncodeDocuments(context.Background(), texts)
	require.NoError(t, err)
	idx := index.New(dim)
	require.NoError(t, idx.BulkLoad(chunks, vecs, model.IndexSnapshot{CorpusHash: "test", ModelName: "hash-embed", Dimension: dim}))
	return NewEngine(enc, idx)
}

func economiaCorpus() []model.Chunk {
	chunks := make([]model.Chunk, 0, 30)
	for i := 0; i < 30; i++ {
		chunks = append(chunks, model.Chunk{
			ID:         fmt.Sprintf("econ-%d:0", i),
			DocumentID: fmt.Sprintf("econ-%d", i),
			Theme:      "Economia",
			Text:       fmt.Sprintf("Proposição %d sobre defesa do consumidor e tributos.", i),
		})
	}
	return chunks
}

func TestRetrieveEconomiaScenario(t *testing.T) {
	eng := newFixture(t, economiaCorpus())

	res, err := eng.Retrieve(context.Background(), "quais propostas afetam consumidores?", Options{K: 5, ThemeFilter: "Economia"})
	require.NoError(t, err)
	require.Len(t, res.Chunks, 5)
	for i, sc := range res.Chunks {
		require.Equal(t, "Economia", sc.Chunk.Theme)
		require.Equal(t, i+1, sc.Rank)
		if i > 0 {
			require.GreaterOrEqual(t, res.Chunks[i-1].Score, sc.Score)
		}
	}
}

func TestRetrieveNoDuplicateChunkIDs(t *testing.T) {
	eng := newFixture(t, economiaCorpus())
	res, err := eng.Retrieve(context.Background(), "tributos", Options{K: 20})
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, sc := range res.Chunks {
		require.False(t, seen[sc.Chunk.ID], "duplicate chunk %s", sc.Chunk.ID)
		seen[sc.Chunk.ID] = true
	}
}

func TestRetrieveSelfRetrievalRankOne(t *testing.T) {
	chunks := economiaCorpus()
	eng := newFixture(t, chunks)

	res, err := eng.Retrieve(context.Background(), chunks[7].Text, Options{K: 3})
	require.NoError(t, err)
	require.NotEmpty(t, res.Chunks)
	require.Equal(t, chunks[7].ID, res.Chunks[0].Chunk.ID)
	require.Equal(t, 1, res.Chunks[0].Rank)
	require.InDelta(t, 1.0, float64(res.Chunks[0].Score), 1e-4)
}

func TestRetrieveThemeFilterPurity(t *testing.T) {
	chunks := economiaCorpus()
	for i := 0; i < 10; i++ {
		chunks = append(chunks, model.Chunk{
			ID:         fmt.Sprintf("saude-%d:0", i),
			DocumentID: fmt.Sprintf("saude-%d", i),
			Theme:      "Saúde",
			Text:       fmt.Sprintf("Proposição %d sobre atendimento hospitalar.", i),
		})
	}
	eng := newFixture(t, chunks)

	res, err := eng.Retrieve(context.Background(), "atendimento hospitalar", Options{K: 8, ThemeFilter: "Saúde"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Chunks)
	for _, sc := range res.Chunks {
		require.Equal(t, "Saúde", sc.Chunk.Theme)
	}
}

func TestRetrieveUnknownThemeReturnsEmpty(t *testing.T) {
	eng := newFixture(t, economiaCorpus())
	res, err := eng.Retrieve(context.Background(), "qualquer coisa", Options{K: 5, ThemeFilter: "Inexistente"})
	require.NoError(t, err)
	require.True(t, res.Empty())
}

func TestRetrieveMaxPerDocumentCap(t *testing.T) {
	var chunks []model.Chunk
	for doc := 0; doc < 3; doc++ {
		for pos := 0; pos < 10; pos++ {
			chunks = append(chunks, model.Chunk{
				ID:         fmt.Sprintf("doc-%d:%d", doc, pos),
				DocumentID: fmt.Sprintf("doc-%d", doc),
				Theme:      "Economia",
				Text:       fmt.Sprintf("Documento %d parte %d sobre orçamento.", doc, pos),
			})
		}
	}
	eng := newFixture(t, chunks)

	res, err := eng.Retrieve(context.Background(), "orçamento", Options{K: 9, MaxPerDocument: 2})
	require.NoError(t, err)
	perDoc := map[string]int{}
	for _, sc := range res.Chunks {
		perDoc[sc.Chunk.DocumentID]++
		require.LessOrEqual(t, perDoc[sc.Chunk.DocumentID], 2)
	}
}

func TestRetrieveEmptyQuery(t *testing.T) {
	eng := newFixture(t, economiaCorpus())
	res, err := eng.Retrieve(context.Background(), "   ", Options{K: 5})
	require.NoError(t, err)
	require.True(t, res.Empty())
}

func TestRetrieveUnbuiltIndex(t *testing.T) {
	enc := encoder.New(hashEmbedder{}, dim, 0, 8)
	eng := NewEngine(enc, index.New(dim))
	_, err := eng.Retrieve(context.Background(), "consulta", Options{K: 5})
	require.ErrorIs(t, err, apperrors.ErrIndexUnavailable)
}
