// Package gateway is the single path to the external LLM: it owns the
// per-call timeout, retry with backoff, a circuit breaker, and the
// global concurrency and rate budgets shared by every session.
package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/openlegis/legisrag/internal/ai"
	apperrors "github.com/openlegis/legisrag/internal/pkg/errors"
)

type Request struct {
	Prompt      string
	MaxTokens   int32
	Temperature float32
}

// Completer is what the orchestrator and the summarization pipeline
// depend on; tests substitute counting fakes.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type Config struct {
	Timeout         time.Duration
	MaxRetries      int
	MaxConcurrency  int64
	RatePerSecond   float64
	BreakerStreak   int
	BreakerCooldown time.Duration
}

type Gateway struct {
	gen     ai.IGenerator
	cfg     Config
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	breaker *breaker
}

func New(gen ai.IGenerator, cfg Config) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 8
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 2
	}
	if cfg.BreakerStreak <= 0 {
		cfg.BreakerStreak = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	return &Gateway{
		gen:     gen,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrency),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		breaker: newBreaker(cfg.BreakerStreak, cfg.BreakerCooldown),
	}
}

// Complete issues one LLM call with bounded retries. Transient failures
// back off exponentially; an open circuit breaker or exhausted retries
// surface as ErrLLMUnavailable. Responses are not idempotent across
// retries.
func (g *Gateway) Complete(ctx context.Context, req Request) (string, error) {
	if g.breaker.Open() {
		return "", fmt.Errorf("%w: circuit breaker open", apperrors.ErrLLMUnavailable)
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer g.sem.Release(1)

	logger := logutil.GetLogger(ctx).With(
		// Prompts can contain user queries and retrieved document text;
		// log a fingerprint, never the content.
		zap.String("prompt_sha", fingerprint(req.Prompt)),
		zap.Int("prompt_len", len(req.Prompt)),
	)

	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			logger.Info("retrying llm call", zap.Int("attempt", attempt), zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return "", err
		}

		text, err := g.generateOnce(ctx, req)
		if err == nil {
			g.breaker.Success()
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			// Session cancelled or out of budget; do not count against
			// the breaker.
			return "", ctx.Err()
		}
		if g.breaker.Failure() {
			logger.Warn("circuit breaker opened", zap.Error(err))
			return "", fmt.Errorf("%w: failure streak reached", apperrors.ErrLLMUnavailable)
		}
		if !transient(err) {
			return "", err
		}
		logger.Warn("llm call failed", zap.Int("attempt", attempt), zap.Error(err))
	}
	return "", fmt.Errorf("%w: retries exhausted: %v", apperrors.ErrLLMUnavailable, lastErr)
}

func (g *Gateway) generateOnce(ctx context.Context, req Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	var opts *ai.GenOptions
	if req.MaxTokens > 0 || req.Temperature > 0 {
		temp := req.Temperature
		opts = &ai.GenOptions{MaxOutputTokens: req.MaxTokens, Temperature: &temp}
	}
	text, err := g.gen.Generate(callCtx, req.Prompt, opts)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errEmptyResponse
	}
	return text, nil
}

var errEmptyResponse = errors.New("empty llm response")

// transient reports whether an error is worth retrying: rate limits,
// upstream 5xx and per-call deadline hits.
func transient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errEmptyResponse) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "rate", "quota", "timeout", "unavailable", "500", "502", "503", "504", "overloaded"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func backoffDelay(attempt int) time.Duration {
	base := 500 * time.Millisecond << (attempt - 1)
	if base > 8*time.Second {
		base = 8 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	return base + jitter
}

func fingerprint(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:4])
}
