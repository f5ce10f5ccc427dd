package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type memStore struct {
	content string
	err     error
}

func (m *memStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if m.err != nil {
		return nil, m.err
	}
	return io.NopCloser(strings.NewReader(m.content)), nil
}

const sampleSnapshot = `{"source_document_id":"pl-100","theme":"Economia","raw_text":"Projeto de lei sobre defesa do consumidor."}
{"source_document_id":"pl-101","theme":"Saúde","raw_text":"Projeto de lei sobre atenção básica."}

{"source_document_id":"pl-102","theme":"Economia","raw_text":"Projeto de lei sobre tributação."}
`

func TestLoadCorpus(t *testing.T) {
	svc := NewIngestService(&memStore{content: sampleSnapshot}, "corpus.jsonl", nil, nil, nil, nil, nil, nil)
	records, hash, err := svc.LoadCorpus(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "pl-100", records[0].DocumentID)
	require.Equal(t, "Saúde", records[1].Theme)
	require.Len(t, hash, 64)

	// Same snapshot, same hash.
	records2, hash2, err := svc.LoadCorpus(context.Background())
	require.NoError(t, err)
	require.Equal(t, records, records2)
	require.Equal(t, hash, hash2)
}

func TestLoadCorpusHashChangesWithContent(t *testing.T) {
	svc1 := NewIngestService(&memStore{content: sampleSnapshot}, "corpus.jsonl", nil, nil, nil, nil, nil, nil)
	_, hash1, err := svc1.LoadCorpus(context.Background())
	require.NoError(t, err)

	changed := strings.Replace(sampleSnapshot, "tributação", "orçamento", 1)
	svc2 := NewIngestService(&memStore{content: changed}, "corpus.jsonl", nil, nil, nil, nil, nil, nil)
	_, hash2, err := svc2.LoadCorpus(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, hash1, hash2)
}

func TestLoadCorpusRejectsBadRecords(t *testing.T) {
	cases := map[string]string{
		"invalid json": `{"source_document_id":`,
		"missing id":   `{"theme":"Economia","raw_text":"texto"}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			svc := NewIngestService(&memStore{content: content}, "corpus.jsonl", nil, nil, nil, nil, nil, nil)
			_, _, err := svc.LoadCorpus(context.Background())
			require.Error(t, err)
		})
	}
}

func TestLoadCorpusOpenError(t *testing.T) {
	svc := NewIngestService(&memStore{err: fmt.Errorf("no such key")}, "corpus.jsonl", nil, nil, nil, nil, nil, nil)
	_, _, err := svc.LoadCorpus(context.Background())
	require.Error(t, err)
}

func TestParseSummaryJSON(t *testing.T) {
	raw := "```json\n{\"resumo\": \"Visão geral.\", \"temas\": [\"tributos\"], \"destaques\": [{\"id\": \"pl-1\", \"resumo\": \"Ponto chave.\"}]}\n```"
	summary, err := parseSummaryJSON(raw)
	require.NoError(t, err)
	require.Equal(t, "Visão geral.", summary.Resumo)
	require.Equal(t, []string{"tributos"}, summary.Temas)
	require.Len(t, summary.Destaques, 1)
	require.Equal(t, "pl-1", summary.Destaques[0].ID)
}

func TestParseSummaryJSONRejectsEmptyResumo(t *testing.T) {
	_, err := parseSummaryJSON(`{"temas": []}`)
	require.Error(t, err)
	_, err = parseSummaryJSON("not json at all")
	require.Error(t, err)
}

func TestRenderSummaryIncludesHighlights(t *testing.T) {
	s, err := parseSummaryJSON(`{"resumo": "Resumo geral.", "destaques": [{"id": "pl-9", "resumo": "Detalhe."}]}`)
	require.NoError(t, err)
	text := renderSummary(s)
	require.Contains(t, text, "Resumo geral.")
	require.Contains(t, text, "pl-9: Detalhe.")
}
