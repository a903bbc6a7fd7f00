// Package worker runs the background extraction loop over the job queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-media-ingest/internal/ingest"
	"github.com/JakeFAU/realtime-media-ingest/internal/metrics"
)

const dequeueErrorPause = 100 * time.Millisecond

// Worker consumes queue items and hands each to the processor.
type Worker struct {
	id        int
	queue     ingest.Queue
	processor ingest.Processor
	logger    *zap.Logger
}

// New constructs a Worker.
func New(id int, queue ingest.Queue, processor ingest.Processor, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:        id,
		queue:     queue,
		processor: processor,
		logger:    logger.With(zap.Int("worker", id)),
	}
}

// Run blocks until the queue is closed and drained or ctx is done.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Debug("worker started")
	defer w.logger.Debug("worker stopped")
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ingest.ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueErrorPause):
			}
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item ingest.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("processor panicked", zap.String("job_id", item.JobID), zap.Any("panic", r))
		}
	}()
	if err := w.processor.Process(ctx, item); err != nil {
		w.logger.Error("process job failed", zap.String("job_id", item.JobID), zap.Error(fmt.Errorf("process: %w", err)))
	}
}
