// Package memory provides a bounded in-process job queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/realtime-media-ingest/internal/ingest"
)

// Queue is a bounded channel with context-aware operations. Items buffered before
// Close are still handed out; Dequeue reports ingest.ErrQueueClosed once they are gone.
type Queue struct {
	ch     chan ingest.QueueItem
	mu     sync.RWMutex
	closed bool
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{ch: make(chan ingest.QueueItem, capacity)}
}

// Enqueue pushes an item, blocking while the buffer is full.
func (q *Queue) Enqueue(ctx context.Context, item ingest.QueueItem) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ingest.ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next item.
func (q *Queue) Dequeue(ctx context.Context) (ingest.QueueItem, error) {
	select {
	case item, ok := <-q.ch:
		if !ok {
			return ingest.QueueItem{}, ingest.ErrQueueClosed
		}
		return item, nil
	default:
	}
	select {
	case <-ctx.Done():
		return ingest.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return ingest.QueueItem{}, ingest.ErrQueueClosed
		}
		return item, nil
	}
}

// Len reports the number of buffered items.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting new items. It waits for in-flight Enqueue calls, so callers
// must not close while producers are blocked on a full buffer with no consumer.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.ch)
	return nil
}
