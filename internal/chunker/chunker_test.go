package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openlegis/legisrag/internal/model"
)

func sampleRecord() model.CorpusRecord {
	var sb strings.Builder
	sb.WriteString("# Propostas sobre tributação\n\n")
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&sb, "A proposição PL %d/2024 altera a legislação tributária federal. ", 1000+i)
		fmt.Fprintf(&sb, "O texto prevê mudanças no regime de impostos sobre consumo. ")
	}
	return model.CorpusRecord{
		DocumentID: "prop-2024-08",
		Theme:      "Economia",
		RawText:    sb.String(),
	}
}

func TestChunkDeterminism(t *testing.T) {
	c := New(128, 16)
	rec := sampleRecord()

	first := c.Chunk(rec)
	second := c.Chunk(rec)

	require.NotEmpty(t, first)
	require.Equal(t, first, second)
}

func TestChunkRespectsTokenBudget(t *testing.T) {
	c := New(128, 16)
	chunks := c.Chunk(sampleRecord())

	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		require.LessOrEqual(t, chunk.TokenCount, 128+16, "chunk %s over budget", chunk.ID)
		require.Equal(t, "prop-2024-08", chunk.DocumentID)
		require.Equal(t, "Economia", chunk.Theme)
	}
}

func TestChunkIDsAndPositionsAreSequential(t *testing.T) {
	c := New(128, 16)
	chunks := c.Chunk(sampleRecord())

	for i, chunk := range chunks {
		require.Equal(t, i, chunk.Position)
		require.Equal(t, fmt.Sprintf("prop-2024-08:%d", i), chunk.ID)
	}
}

func TestChunkOverlapCarriesContext(t *testing.T) {
	c := New(64, 16)
	chunks := c.Chunk(sampleRecord())
	require.Greater(t, len(chunks), 2)

	// The tail of one chunk must reappear at the head of the next.
	for i := 1; i < len(chunks); i++ {
		prevSentences := splitSentences(chunks[i-1].Text)
		last := prevSentences[len(prevSentences)-1]
		require.Contains(t, chunks[i].Text, last)
	}
}

func TestChunkStripsMarkdown(t *testing.T) {
	c := New(512, 32)
	chunks := c.Chunk(model.CorpusRecord{
		DocumentID: "doc-1",
		Theme:      "Saúde",
		RawText:    "## Resumo\n\nA proposta **amplia** o acesso a medicamentos.\n",
	})
	require.Len(t, chunks, 1)
	require.NotContains(t, chunks[0].Text, "#")
	require.NotContains(t, chunks[0].Text, "**")
	require.Contains(t, chunks[0].Text, "amplia")
}

func TestChunkEmptyInput(t *testing.T) {
	c := New(512, 32)
	chunks := c.Chunk(model.CorpusRecord{DocumentID: "empty", RawText: "   \n  "})
	require.Empty(t, chunks)
}

func TestChunkOversizedSentenceIsHardCut(t *testing.T) {
	words := make([]string, 600)
	for i := range words {
		words[i] = fmt.Sprintf("palavra%d", i)
	}
	c := New(128, 16)
	chunks := c.Chunk(model.CorpusRecord{
		DocumentID: "long",
		RawText:    strings.Join(words, " "),
	})
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		require.LessOrEqual(t, chunk.TokenCount, 128)
	}
}

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 0, EstimateTokens(""))
	require.Equal(t, 2, EstimateTokens("duas palavras"))
	require.Greater(t, EstimateTokens("ação"), 1)
}
