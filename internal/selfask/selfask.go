// Package selfask runs the three-level Self-Ask pipeline: overview
// decomposition, per-node detail follow-ups, and a final synthesis,
// each grounded in retrieved evidence.
package selfask

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openlegis/legisrag/internal/gateway"
	"github.com/openlegis/legisrag/internal/model"
	"github.com/openlegis/legisrag/internal/retrieval"
)

// Retriever is the slice of the retrieval engine the orchestrator
// needs; tests substitute fixtures.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts retrieval.Options) (model.RetrievalResult, error)
}

type Config struct {
	Level1K        int
	Level2K        int
	MaxSubLevel1   int
	MaxSubLevel2   int
	MaxInFlight    int
	MaxPerDocument int
	SessionTimeout time.Duration
}

type Orchestrator struct {
	retriever Retriever
	llm       gateway.Completer
	cfg       Config
}

func New(retriever Retriever, llm gateway.Completer, cfg Config) *Orchestrator {
	if cfg.Level1K <= 0 {
		cfg.Level1K = 5
	}
	if cfg.Level2K <= 0 {
		cfg.Level2K = 8
	}
	if cfg.MaxSubLevel1 <= 0 {
		cfg.MaxSubLevel1 = 3
	}
	if cfg.MaxSubLevel2 <= 0 {
		cfg.MaxSubLevel2 = 2
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 4
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 5 * time.Minute
	}
	return &Orchestrator{retriever: retriever, llm: llm, cfg: cfg}
}

type nodeResult struct {
	node model.AnswerNode
	err  error
}

// Run drives one session to a terminal state. The returned session is
// always non-nil; callers inspect State and FailureReason instead of
// the error, which is reserved for infrastructure faults.
func (o *Orchestrator) Run(ctx context.Context, query string) (*model.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.SessionTimeout)
	defer cancel()

	session := &model.Session{
		ID:    uuid.NewString(),
		Query: query,
		State: model.StateRunning,
	}
	logger := logutil.GetLogger(ctx).With(zap.String("session_id", session.ID))

	// Level 1: thematic overview.
	questions := o.decompose(ctx, query)
	if cancelled(ctx, session) {
		return session, nil
	}
	results := o.answerAll(ctx, questions, o.cfg.Level1K, "")
	if cancelled(ctx, session) {
		return session, nil
	}
	var firstErr error
	for _, r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		r.node.ID = len(session.Nodes)
		session.Nodes = append(session.Nodes, r.node)
	}
	if len(session.Nodes) == 0 {
		session.State = model.StateFailed
		session.FailureReason = "nenhuma sub-pergunta de visão geral pôde ser respondida"
		if firstErr != nil {
			session.FailureReason = fmt.Sprintf("%s: %v", session.FailureReason, firstErr)
		}
		logger.Warn("session failed at level 1", zap.String("reason", session.FailureReason))
		return session, nil
	}
	level1 := session.NodesAtLevel(1)

	// Level 2: follow-ups per successful overview node, retrieval
	// scoped to the parent's dominant theme.
	followups := o.followups(ctx, session, level1)
	if cancelled(ctx, session) {
		return session, nil
	}
	results = o.answerFollowups(ctx, session, followups)
	if cancelled(ctx, session) {
		return session, nil
	}
	for _, r := range results {
		if r.err != nil {
			// Detail failures are gaps, not session failures.
			r.node.GapNote = "a pergunta de aprofundamento não pôde ser respondida"
		}
		r.node.ID = len(session.Nodes)
		session.Nodes = append(session.Nodes, r.node)
	}

	// Level 3: one final synthesis over everything gathered so far.
	final := model.AnswerNode{
		ID: len(session.Nodes),
		Question: model.SubQuestion{
			Level:    3,
			Text:     query,
			ParentID: -1,
		},
	}
	text, err := o.llm.Complete(ctx, gateway.Request{Prompt: finalPrompt(query, session.Nodes)})
	if cancelled(ctx, session) {
		return session, nil
	}
	if err != nil {
		final.GapNote = "a síntese final não pôde ser gerada"
		logger.Warn("final synthesis failed", zap.Error(err))
	} else {
		final.Synthesis = text
	}
	session.Nodes = append(session.Nodes, final)
	session.State = model.StateComplete
	logger.Info("session complete", zap.Int("nodes", len(session.Nodes)))
	return session, nil
}

// decompose asks the LLM for overview sub-questions, falling back to
// the keyword table when it yields nothing usable.
func (o *Orchestrator) decompose(ctx context.Context, query string) []model.SubQuestion {
	var texts []string
	resp, err := o.llm.Complete(ctx, gateway.Request{Prompt: decomposePrompt(query, o.cfg.MaxSubLevel1)})
	if err == nil {
		texts = parseQuestionList(resp, o.cfg.MaxSubLevel1)
	}
	if len(texts) == 0 {
		logutil.GetLogger(ctx).Debug("decomposition empty, using keyword fallback")
		texts = fallbackQuestions(query)
		if len(texts) > o.cfg.MaxSubLevel1 {
			texts = texts[:o.cfg.MaxSubLevel1]
		}
	}
	out := make([]model.SubQuestion, 0, len(texts))
	for _, t := range texts {
		out = append(out, model.SubQuestion{Level: 1, Text: t, ParentID: -1})
	}
	return out
}

// followups generates the level-2 question list per parent. A parent
// with no follow-ups is soft-skipped with a gap note.
func (o *Orchestrator) followups(ctx context.Context, session *model.Session, parents []model.AnswerNode) []model.SubQuestion {
	var out []model.SubQuestion
	for _, parent := range parents {
		if ctx.Err() != nil {
			return out
		}
		resp, err := o.llm.Complete(ctx, gateway.Request{Prompt: followupPrompt(parent, o.cfg.MaxSubLevel2)})
		var texts []string
		if err == nil {
			texts = parseQuestionList(resp, o.cfg.MaxSubLevel2)
		}
		if len(texts) == 0 {
			session.Nodes[parent.ID].GapNote = "sem aprofundamento disponível para esta sub-pergunta"
			continue
		}
		for _, t := range texts {
			out = append(out, model.SubQuestion{Level: 2, Text: t, ParentID: parent.ID})
		}
	}
	return out
}

// answerAll resolves a batch of same-level sub-questions with bounded
// concurrency, returning results in generation order.
func (o *Orchestrator) answerAll(ctx context.Context, questions []model.SubQuestion, k int, theme string) []nodeResult {
	results := make([]nodeResult, len(questions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxInFlight)
	for i, q := range questions {
		i, q := i, q
		g.Go(func() error {
			node, err := o.answer(gctx, q, k, theme)
			results[i] = nodeResult{node: node, err: err}
			// Sibling failures are soft; the level reassembles whatever
			// succeeded.
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) answerFollowups(ctx context.Context, session *model.Session, questions []model.SubQuestion) []nodeResult {
	results := make([]nodeResult, len(questions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxInFlight)
	for i, q := range questions {
		i, q := i, q
		theme := dominantTheme(session.Nodes[q.ParentID].Evidence)
		g.Go(func() error {
			node, err := o.answer(gctx, q, o.cfg.Level2K, theme)
			results[i] = nodeResult{node: node, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// answer retrieves evidence for one sub-question and synthesizes it. A
// question without evidence yields a node with a gap note and no
// synthesis; LLM failures surface as errors and drop the node.
func (o *Orchestrator) answer(ctx context.Context, sq model.SubQuestion, k int, theme string) (model.AnswerNode, error) {
	node := model.AnswerNode{Question: sq}
	evidence, err := o.retriever.Retrieve(ctx, sq.Text, retrieval.Options{
		K:              k,
		ThemeFilter:    theme,
		MaxPerDocument: o.cfg.MaxPerDocument,
	})
	if err != nil {
		return node, err
	}
	node.Evidence = evidence
	if evidence.Empty() {
		return node, fmt.Errorf("sem evidência para a sub-pergunta")
	}
	text, err := o.llm.Complete(ctx, gateway.Request{Prompt: synthesisPrompt(sq.Text, evidence)})
	if err != nil {
		return node, err
	}
	node.Synthesis = text
	return node, nil
}

// cancelled flips the session to the cancelled state and discards
// partial nodes when the context is done.
func cancelled(ctx context.Context, session *model.Session) bool {
	if ctx.Err() == nil {
		return false
	}
	session.State = model.StateCancelled
	session.FailureReason = "sessão cancelada"
	session.Nodes = nil
	return true
}
