// Package orchestrator owns the job lifecycle: it accepts submissions, runs queued
// jobs through the cache and the fallback extractor, and records every transition in
// the job store.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-media-ingest/internal/extractor"
	"github.com/JakeFAU/realtime-media-ingest/internal/ingest"
	"github.com/JakeFAU/realtime-media-ingest/internal/metrics"
)

// Default timeouts.
const (
	DefaultEnqueueTimeout = 5 * time.Second
	DefaultPersistTimeout = 10 * time.Second
)

// Extractor resolves a source URL into engine output.
type Extractor interface {
	Extract(ctx context.Context, sourceURL string) (ingest.RawInfo, error)
}

// Deps are the collaborators the orchestrator requires.
type Deps struct {
	Jobs      ingest.JobStore
	Cache     ingest.ResultCache
	Queue     ingest.Queue
	Extractor Extractor
	IDs       ingest.IDGenerator
	Clock     ingest.Clock
	Hasher    ingest.Hasher
}

// Config tunes timeouts.
type Config struct {
	EnqueueTimeout time.Duration
	PersistTimeout time.Duration
}

// Orchestrator implements ingest.Processor.
type Orchestrator struct {
	deps   Deps
	sinks  Sinks
	cfg    Config
	logger *zap.Logger
}

// New validates deps and builds an Orchestrator.
func New(deps Deps, sinks Sinks, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	switch {
	case deps.Jobs == nil:
		return nil, errors.New("job store is required")
	case deps.Cache == nil:
		return nil, errors.New("result cache is required")
	case deps.Queue == nil:
		return nil, errors.New("queue is required")
	case deps.Extractor == nil:
		return nil, errors.New("extractor is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	case deps.Hasher == nil:
		return nil, errors.New("hasher is required")
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = DefaultEnqueueTimeout
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{deps: deps, sinks: sinks, cfg: cfg, logger: logger}, nil
}

// Submit records a queued job and schedules it. It never waits for extraction.
func (o *Orchestrator) Submit(ctx context.Context, rawURL string) (ingest.Job, error) {
	if _, err := ingest.ValidateSourceURL(rawURL); err != nil {
		return ingest.Job{}, err
	}
	id, err := o.deps.IDs.NewID()
	if err != nil {
		return ingest.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	job := ingest.Job{
		ID:        id,
		SourceURL: strings.TrimSpace(rawURL),
		Status:    ingest.JobStatusQueued,
		Progress:  ingest.ProgressQueued,
		CreatedAt: o.deps.Clock.Now(),
	}
	if err := o.deps.Jobs.Put(ctx, job); err != nil {
		return ingest.Job{}, fmt.Errorf("persist job: %w", err)
	}

	enqueueCtx, cancel := context.WithTimeout(ctx, o.cfg.EnqueueTimeout)
	defer cancel()
	item := ingest.QueueItem{JobID: job.ID, SourceURL: job.SourceURL, Submitted: job.CreatedAt.Unix()}
	if err := o.deps.Queue.Enqueue(enqueueCtx, item); err != nil {
		o.logger.Error("enqueue job failed", zap.String("job_id", job.ID), zap.Error(err))
		failed := o.fail(ctx, job, fmt.Sprintf("could not schedule job: %v", err))
		return failed, fmt.Errorf("%w: %v", ingest.ErrQueueUnavailable, err)
	}
	metrics.ObserveJob(string(ingest.JobStatusQueued))
	o.logger.Info("job queued", zap.String("job_id", job.ID), zap.String("url", job.SourceURL))
	return job, nil
}

// Status returns the current job snapshot.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (ingest.Job, error) {
	job, err := o.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		return ingest.Job{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

// Process runs one queued job to a terminal state. Errors returned here are
// infrastructure failures; extraction failures are recorded on the job instead.
func (o *Orchestrator) Process(ctx context.Context, item ingest.QueueItem) (err error) {
	logger := o.logger.With(zap.String("job_id", item.JobID))

	job, err := o.deps.Jobs.Get(ctx, item.JobID)
	if errors.Is(err, ingest.ErrJobNotFound) {
		logger.Warn("job expired or unknown; dropping queue item")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status.Terminal() {
		logger.Debug("job already terminal; skipping", zap.String("status", string(job.Status)))
		return nil
	}

	// terminal is set once a completed or failed state has been saved; a later panic
	// must not rewrite it.
	terminal := false
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job processing panicked", zap.Any("panic", r))
			if !terminal {
				o.fail(ctx, job, fmt.Sprintf("internal error: %v", r))
			}
			err = nil
		}
	}()

	if ctxErr := ctx.Err(); ctxErr != nil {
		o.fail(ctx, job, fmt.Sprintf("service shutting down: %v", ctxErr))
		return nil
	}

	job.Status = ingest.JobStatusProcessing
	job.Progress = ingest.ProgressStarted
	if err := o.deps.Jobs.Put(ctx, job); err != nil {
		o.fail(ctx, job, fmt.Sprintf("persist progress: %v", err))
		return nil
	}

	if result, ok := o.lookup(ctx, job.SourceURL, logger); ok {
		terminal = true
		o.complete(ctx, job, result, true)
		return nil
	}

	job.Progress = ingest.ProgressExtract
	if err := o.deps.Jobs.Put(ctx, job); err != nil {
		o.fail(ctx, job, fmt.Sprintf("persist progress: %v", err))
		return nil
	}

	raw, err := o.deps.Extractor.Extract(ctx, job.SourceURL)
	if err != nil {
		o.fail(ctx, job, err.Error())
		return nil
	}
	result := extractor.BuildResult(raw)

	if err := o.deps.Cache.Put(ctx, job.SourceURL, result); err != nil {
		logger.Warn("cache write failed", zap.Error(err))
	}

	job.Progress = ingest.ProgressAssembled
	if err := o.deps.Jobs.Put(ctx, job); err != nil {
		o.fail(ctx, job, fmt.Sprintf("persist progress: %v", err))
		return nil
	}

	terminal = true
	o.complete(ctx, job, result, false)
	return nil
}

func (o *Orchestrator) lookup(ctx context.Context, sourceURL string, logger *zap.Logger) (ingest.ExtractionResult, bool) {
	result, err := o.deps.Cache.Get(ctx, sourceURL)
	switch {
	case err == nil:
		metrics.ObserveCacheLookup("hit")
		logger.Info("cache hit")
		return result, true
	case errors.Is(err, ingest.ErrCacheMiss):
		metrics.ObserveCacheLookup("miss")
	default:
		metrics.ObserveCacheLookup("error")
		logger.Warn("cache lookup failed; extracting", zap.Error(err))
	}
	return ingest.ExtractionResult{}, false
}

func (o *Orchestrator) complete(ctx context.Context, job ingest.Job, result ingest.ExtractionResult, cacheHit bool) {
	done := job
	now := o.deps.Clock.Now()
	done.Status = ingest.JobStatusCompleted
	done.Progress = ingest.ProgressDone
	done.CompletedAt = &now
	done.Error = ""
	done.Result = &result

	pctx, cancel := o.persistContext(ctx)
	defer cancel()
	err := o.deps.Jobs.Put(pctx, done)
	if err != nil {
		o.logger.Warn("persist completed job failed; retrying", zap.String("job_id", job.ID), zap.Error(err))
		err = o.deps.Jobs.Put(pctx, done)
	}
	if err != nil {
		o.logger.Error("persist completed job failed", zap.String("job_id", job.ID), zap.Error(err))
		o.fail(ctx, job, fmt.Sprintf("persist result: %v", err))
		return
	}
	metrics.ObserveJob(string(ingest.JobStatusCompleted))
	o.logger.Info("job completed",
		zap.String("job_id", done.ID),
		zap.Bool("cache_hit", cacheHit),
		zap.String("media_url", result.MediaURL),
	)
	o.emit(pctx, done, cacheHit)
}

// fail records a terminal failure. Progress stays where it stopped.
func (o *Orchestrator) fail(ctx context.Context, job ingest.Job, reason string) ingest.Job {
	if strings.TrimSpace(reason) == "" {
		reason = "extraction failed"
	}
	now := o.deps.Clock.Now()
	job.Status = ingest.JobStatusFailed
	job.CompletedAt = &now
	job.Error = reason
	job.Result = nil

	pctx, cancel := o.persistContext(ctx)
	defer cancel()
	if err := o.deps.Jobs.Put(pctx, job); err != nil {
		o.logger.Error("persist failed job failed", zap.String("job_id", job.ID), zap.Error(err))
		return job
	}
	metrics.ObserveJob(string(ingest.JobStatusFailed))
	o.logger.Warn("job failed", zap.String("job_id", job.ID), zap.String("error", reason))
	o.emit(pctx, job, false)
	return job
}

// persistContext detaches from cancellation so terminal states are recorded during
// shutdown.
func (o *Orchestrator) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.cfg.PersistTimeout)
}
