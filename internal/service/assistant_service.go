package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/openlegis/legisrag/internal/index"
	"github.com/openlegis/legisrag/internal/model"
	apperrors "github.com/openlegis/legisrag/internal/pkg/errors"
	"github.com/openlegis/legisrag/internal/retrieval"
	"github.com/openlegis/legisrag/internal/selfask"
)

const maxQueryLength = 2000

// AssistantService fronts the Self-Ask pipeline for the HTTP layer.
type AssistantService struct {
	orchestrator *selfask.Orchestrator
	engine       *retrieval.Engine
	index        *index.Index
	summaries    SummaryLister
	defaultK     int
}

// SummaryLister is the slice of repo.SummaryRepo the service reads.
type SummaryLister interface {
	List(ctx context.Context) ([]model.ThemeSummary, error)
}

func NewAssistantService(orchestrator *selfask.Orchestrator, engine *retrieval.Engine, idx *index.Index, summaries SummaryLister, defaultK int) *AssistantService {
	if defaultK <= 0 {
		defaultK = 5
	}
	return &AssistantService{
		orchestrator: orchestrator,
		engine:       engine,
		index:        idx,
		summaries:    summaries,
		defaultK:     defaultK,
	}
}

func (s *AssistantService) Ask(ctx context.Context, query string) (*model.Session, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", apperrors.ErrInvalid)
	}
	if len(query) > maxQueryLength {
		return nil, fmt.Errorf("%w: query exceeds %d characters", apperrors.ErrInvalid, maxQueryLength)
	}
	if !s.index.Ready() {
		return nil, apperrors.ErrIndexUnavailable
	}
	session, err := s.orchestrator.Run(ctx, query)
	if err != nil {
		logutil.GetLogger(ctx).Error("session run failed", zap.Error(err))
		return nil, err
	}
	return session, nil
}

// Themes lists the distinct corpus themes available for filtering.
func (s *AssistantService) Themes(ctx context.Context) ([]string, error) {
	if !s.index.Ready() {
		return nil, apperrors.ErrIndexUnavailable
	}
	return s.index.Themes(), nil
}

// Summaries returns the stored per-theme digests.
func (s *AssistantService) Summaries(ctx context.Context) ([]model.ThemeSummary, error) {
	return s.summaries.List(ctx)
}

// Search runs a plain evidence lookup without the reasoning pipeline.
// An empty result is a valid no-evidence answer.
func (s *AssistantService) Search(ctx context.Context, query, theme string, k int) (model.RetrievalResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return model.RetrievalResult{}, fmt.Errorf("%w: query is required", apperrors.ErrInvalid)
	}
	if k <= 0 {
		k = s.defaultK
	}
	return s.engine.Retrieve(ctx, query, retrieval.Options{K: k, ThemeFilter: theme})
}
