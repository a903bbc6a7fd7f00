// Package dispatcher manages worker fan-out over the job queue and its shutdown.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-media-ingest/internal/ingest"
	"github.com/JakeFAU/realtime-media-ingest/internal/worker"
)

// DefaultDrainTimeout bounds how long in-flight jobs may run after shutdown starts.
const DefaultDrainTimeout = 30 * time.Second

// Queue is the queue surface the dispatcher needs: consumption plus Close.
type Queue interface {
	ingest.Queue
	Close() error
}

// Config controls the worker pool.
type Config struct {
	Concurrency  int
	DrainTimeout time.Duration
}

// Dispatcher runs a pool of workers over one queue.
type Dispatcher struct {
	queue     Queue
	processor ingest.Processor
	cfg       Config
	logger    *zap.Logger
}

// New creates a Dispatcher.
func New(queue Queue, processor ingest.Processor, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{queue: queue, processor: processor, cfg: cfg, logger: logger}
}

// Run starts the workers and blocks until ctx is done and they have stopped.
// Workers keep running on a detached context after ctx ends: the queue is closed so
// they drain what is buffered, and after DrainTimeout the detached context is
// canceled so remaining jobs fail fast and are recorded as failed.
func (d *Dispatcher) Run(ctx context.Context) {
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	var wg sync.WaitGroup
	for i := range d.cfg.Concurrency {
		w := worker.New(i, d.queue, d.processor, d.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(workCtx)
		}()
	}
	d.logger.Info("workers started", zap.Int("concurrency", d.cfg.Concurrency))

	<-ctx.Done()
	d.logger.Info("draining workers", zap.Duration("drain_timeout", d.cfg.DrainTimeout))
	if err := d.queue.Close(); err != nil {
		d.logger.Warn("close queue failed", zap.Error(err))
	}
	timer := time.AfterFunc(d.cfg.DrainTimeout, func() {
		d.logger.Warn("drain timeout reached; canceling in-flight jobs")
		cancelWork()
	})
	defer timer.Stop()

	wg.Wait()
	d.logger.Info("workers stopped")
}
