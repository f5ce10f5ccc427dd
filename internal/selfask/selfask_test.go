package selfask

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openlegis/legisrag/internal/gateway"
	"github.com/openlegis/legisrag/internal/model"
	"github.com/openlegis/legisrag/internal/retrieval"
)

const (
	kindDecompose = "decompose"
	kindFollowup  = "followup"
	kindSynthesis = "synthesis"
	kindFinal     = "final"
)

func classify(prompt string) string {
	switch {
	case strings.Contains(prompt, "síntese final"):
		return kindFinal
	case strings.Contains(prompt, "perguntas de aprofundamento"):
		return kindFollowup
	case strings.Contains(prompt, "Decomponha"):
		return kindDecompose
	default:
		return kindSynthesis
	}
}

type fakeLLM struct {
	mu      sync.Mutex
	kinds   []string
	handler func(kind, prompt string) (string, error)
}

func (f *fakeLLM) Complete(ctx context.Context, req gateway.Request) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	kind := classify(req.Prompt)
	f.mu.Lock()
	f.kinds = append(f.kinds, kind)
	f.mu.Unlock()
	return f.handler(kind, req.Prompt)
}

func (f *fakeLLM) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, k := range f.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

type fakeRetriever struct {
	mu    sync.Mutex
	calls []retrieval.Options
	empty bool
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, opts retrieval.Options) (model.RetrievalResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	f.mu.Unlock()
	if f.empty {
		return model.RetrievalResult{Query: query}, nil
	}
	theme := opts.ThemeFilter
	if theme == "" {
		theme = "Economia"
	}
	res := model.RetrievalResult{Query: query}
	for i := 0; i < 3; i++ {
		res.Chunks = append(res.Chunks, model.ScoredChunk{
			Chunk: model.Chunk{
				ID:         fmt.Sprintf("doc-%d:%d", i, i),
				DocumentID: fmt.Sprintf("doc-%d", i),
				Theme:      theme,
				Text:       "texto da proposição",
			},
			Score: 0.9 - float32(i)*0.1,
			Rank:  i + 1,
		})
	}
	return res, nil
}

func happyHandler(kind, prompt string) (string, error) {
	switch kind {
	case kindDecompose:
		return "Quais temas econômicos estão em pauta?\nQuais proposições afetam consumidores?", nil
	case kindFollowup:
		return "Qual o detalhamento da proposição citada?", nil
	case kindFinal:
		return "Síntese final com impactos e recomendações.", nil
	default:
		return "Análise fundamentada em [doc-0:0].", nil
	}
}

func testConfig() Config {
	return Config{
		Level1K:        5,
		Level2K:        8,
		MaxSubLevel1:   3,
		MaxSubLevel2:   2,
		MaxInFlight:    4,
		SessionTimeout: 30 * time.Second,
	}
}

func TestRunComplete(t *testing.T) {
	llm := &fakeLLM{handler: happyHandler}
	ret := &fakeRetriever{}
	o := New(ret, llm, testConfig())

	session, err := o.Run(context.Background(), "quais propostas afetam consumidores?")
	require.NoError(t, err)
	require.Equal(t, model.StateComplete, session.State)
	require.NotEmpty(t, session.ID)

	level1 := session.NodesAtLevel(1)
	level2 := session.NodesAtLevel(2)
	level3 := session.NodesAtLevel(3)
	require.Len(t, level1, 2)
	require.Len(t, level2, 2)
	require.Len(t, level3, 1)

	for i, n := range session.Nodes {
		require.Equal(t, i, n.ID)
	}
	for _, n := range level1 {
		require.Equal(t, -1, n.Question.ParentID)
		require.True(t, n.Succeeded())
		require.False(t, n.Evidence.Empty())
	}
	parentIDs := map[int]bool{level1[0].ID: true, level1[1].ID: true}
	for _, n := range level2 {
		require.True(t, parentIDs[n.Question.ParentID])
	}
	require.Equal(t, -1, level3[0].Question.ParentID)
	require.Equal(t, "Síntese final com impactos e recomendações.", level3[0].Synthesis)
}

func TestRunFailedWhenAllLLMCallsFail(t *testing.T) {
	llm := &fakeLLM{handler: func(kind, prompt string) (string, error) {
		return "", fmt.Errorf("upstream broken")
	}}
	o := New(&fakeRetriever{}, llm, testConfig())

	session, err := o.Run(context.Background(), "quais partidos gastam mais?")
	require.NoError(t, err)
	require.Equal(t, model.StateFailed, session.State)
	require.Empty(t, session.Nodes)
	require.NotEmpty(t, session.FailureReason)

	// Level 2 and 3 never run after a fully failed level 1.
	require.Zero(t, llm.count(kindFollowup))
	require.Zero(t, llm.count(kindFinal))
}

func TestDecompositionKeywordFallback(t *testing.T) {
	llm := &fakeLLM{handler: func(kind, prompt string) (string, error) {
		if kind == kindDecompose {
			return "", fmt.Errorf("decomposition unavailable")
		}
		return happyHandler(kind, prompt)
	}}
	o := New(&fakeRetriever{}, llm, testConfig())

	session, err := o.Run(context.Background(), "como está a distribuição por partido?")
	require.NoError(t, err)
	require.Equal(t, model.StateComplete, session.State)

	level1 := session.NodesAtLevel(1)
	require.Len(t, level1, 2)
	require.Equal(t, "Quais são todos os partidos representados?", level1[0].Question.Text)
	require.Equal(t, "Qual é o número de deputados por partido?", level1[1].Question.Text)
}

func TestCancellationMidLevel2DiscardsPartials(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	llm := &fakeLLM{handler: func(kind, prompt string) (string, error) {
		if kind == kindFollowup {
			cancel()
			return "", context.Canceled
		}
		return happyHandler(kind, prompt)
	}}
	o := New(&fakeRetriever{}, llm, testConfig())

	session, err := o.Run(ctx, "quais proposições tramitam?")
	require.NoError(t, err)
	require.Equal(t, model.StateCancelled, session.State)
	require.Empty(t, session.Nodes)
	require.NotEmpty(t, session.FailureReason)
	require.Zero(t, llm.count(kindFinal))
}

func TestNoFollowupsBecomesGapNote(t *testing.T) {
	llm := &fakeLLM{handler: func(kind, prompt string) (string, error) {
		if kind == kindFollowup {
			return "NENHUMA", nil
		}
		return happyHandler(kind, prompt)
	}}
	o := New(&fakeRetriever{}, llm, testConfig())

	session, err := o.Run(context.Background(), "qual o panorama geral?")
	require.NoError(t, err)
	require.Equal(t, model.StateComplete, session.State)
	require.Empty(t, session.NodesAtLevel(2))
	for _, n := range session.NodesAtLevel(1) {
		require.NotEmpty(t, n.GapNote)
		require.True(t, n.Succeeded())
	}
	require.Equal(t, 1, llm.count(kindFinal))
}

func TestLevel2RetrievalScopedToParentTheme(t *testing.T) {
	llm := &fakeLLM{handler: happyHandler}
	ret := &fakeRetriever{}
	o := New(ret, llm, testConfig())

	session, err := o.Run(context.Background(), "quais proposições afetam a economia?")
	require.NoError(t, err)
	require.Equal(t, model.StateComplete, session.State)
	require.NotEmpty(t, session.NodesAtLevel(2))

	var level1Calls, level2Calls int
	for _, opts := range ret.calls {
		if opts.ThemeFilter == "" {
			level1Calls++
		} else {
			require.Equal(t, "Economia", opts.ThemeFilter)
			level2Calls++
		}
	}
	require.Equal(t, 2, level1Calls)
	require.Equal(t, 2, level2Calls)
}

func TestNoEvidenceFailsLevel1(t *testing.T) {
	llm := &fakeLLM{handler: happyHandler}
	o := New(&fakeRetriever{empty: true}, llm, testConfig())

	session, err := o.Run(context.Background(), "quais despesas cresceram?")
	require.NoError(t, err)
	require.Equal(t, model.StateFailed, session.State)
	require.Empty(t, session.Nodes)
	require.NotEmpty(t, session.FailureReason)
	require.Zero(t, llm.count(kindSynthesis))
}
