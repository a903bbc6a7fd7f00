// Package extractor resolves a source URL through an ordered chain of extraction
// strategies, pausing a random backoff between attempts.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-media-ingest/internal/ingest"
	"github.com/JakeFAU/realtime-media-ingest/internal/metrics"
)

// Pacer waits for permission to hit the URL's domain.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithSleep replaces the context-aware sleep used for backoff.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(e *Extractor) { e.sleep = sleep }
}

// WithJitter replaces the backoff draw. It receives the configured bounds.
func WithJitter(jitter func(lo, hi time.Duration) time.Duration) Option {
	return func(e *Extractor) { e.jitter = jitter }
}

// WithPacer throttles every attempt through p.
func WithPacer(p Pacer) Option {
	return func(e *Extractor) { e.pacer = p }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Extractor) { e.logger = logger }
}

// Extractor runs strategies against an engine until one succeeds.
type Extractor struct {
	engine ingest.Engine
	cfg    Config
	sleep  func(context.Context, time.Duration) error
	jitter func(lo, hi time.Duration) time.Duration
	pacer  Pacer
	logger *zap.Logger
}

// New builds an Extractor. An empty strategy list falls back to DefaultStrategies.
func New(engine ingest.Engine, cfg Config, opts ...Option) (*Extractor, error) {
	if engine == nil {
		return nil, errors.New("extraction engine is required")
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = DefaultStrategies()
	}
	if cfg.BackoffMin < 0 || cfg.BackoffMax < cfg.BackoffMin {
		return nil, fmt.Errorf("invalid backoff bounds [%s, %s]", cfg.BackoffMin, cfg.BackoffMax)
	}
	for i, s := range cfg.Strategies {
		if strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("strategy %d has no name", i)
		}
	}
	e := &Extractor{
		engine: engine,
		cfg:    cfg,
		sleep:  sleepContext,
		jitter: uniform,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// StrategiesFor returns the chain applied to sourceURL. Protected domains get every
// regular strategy, other hosts only the first; last-resort strategies follow in
// both cases.
func (e *Extractor) StrategiesFor(sourceURL string) []ingest.Strategy {
	var regular, lastResort []ingest.Strategy
	for _, s := range e.cfg.Strategies {
		if s.LastResort {
			lastResort = append(lastResort, s)
		} else {
			regular = append(regular, s)
		}
	}
	if len(regular) > 1 && !ingest.HostMatches(sourceURL, e.cfg.ProtectedDomains) {
		regular = regular[:1]
	}
	return append(regular, lastResort...)
}

// Extract returns the first successful engine result. When every strategy fails it
// returns an *ExhaustedError.
func (e *Extractor) Extract(ctx context.Context, sourceURL string) (ingest.RawInfo, error) {
	strategies := e.StrategiesFor(sourceURL)
	exhausted := &ExhaustedError{URL: sourceURL}

	for i, strategy := range strategies {
		logger := e.logger.With(
			zap.String("url", sourceURL),
			zap.String("strategy", strategy.Name),
			zap.Int("attempt", i+1),
			zap.Int("of", len(strategies)),
		)
		if i > 0 {
			delay := e.jitter(e.cfg.BackoffMin, e.cfg.BackoffMax)
			logger.Info("backing off before next strategy", zap.Duration("delay", delay))
			metrics.ObserveBackoff(delay)
			if err := e.sleep(ctx, delay); err != nil {
				exhausted.add(strategy.Name, fmt.Errorf("backoff interrupted: %w", err))
				return ingest.RawInfo{}, exhausted
			}
		}
		if e.pacer != nil {
			if err := e.pacer.Wait(ctx, sourceURL); err != nil {
				exhausted.add(strategy.Name, err)
				return ingest.RawInfo{}, exhausted
			}
		}

		logger.Info("attempting extraction")
		raw, err := e.engine.Extract(ctx, sourceURL, strategy)
		if err == nil {
			metrics.ObserveExtractionAttempt(strategy.Name, "success")
			logger.Info("extraction succeeded")
			return raw, nil
		}
		metrics.ObserveExtractionAttempt(strategy.Name, "failure")
		logger.Warn("extraction strategy failed", zap.Error(err))
		exhausted.add(strategy.Name, err)
		if ctx.Err() != nil {
			return ingest.RawInfo{}, exhausted
		}
	}
	return ingest.RawInfo{}, exhausted
}

// AttemptError is one failed strategy.
type AttemptError struct {
	Strategy string
	Err      error
}

func (a AttemptError) Error() string {
	return fmt.Sprintf("%s: %v", a.Strategy, a.Err)
}

func (a AttemptError) Unwrap() error { return a.Err }

// ExhaustedError reports that no strategy produced a result.
type ExhaustedError struct {
	URL      string
	Attempts []AttemptError
}

func (e *ExhaustedError) add(strategy string, err error) {
	e.Attempts = append(e.Attempts, AttemptError{Strategy: strategy, Err: err})
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Error())
	}
	return fmt.Sprintf("all %d extraction strategies failed for %s: %s",
		len(e.Attempts), e.URL, strings.Join(parts, "; "))
}

// Unwrap exposes every attempt's cause to errors.Is and errors.As.
func (e *ExhaustedError) Unwrap() []error {
	out := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		out = append(out, a.Err)
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}
