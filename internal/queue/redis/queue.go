// Package redis provides a job queue on a Redis list so API and worker processes can
// run separately.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/realtime-media-ingest/internal/ingest"
)

const (
	// DefaultKey is the list the queue pushes to.
	DefaultKey = "ingest:queue"

	defaultPollTimeout = time.Second
)

// Queue pushes with RPUSH and pops with BLPOP.
type Queue struct {
	client      goredis.UniversalClient
	key         string
	pollTimeout time.Duration
	closed      atomic.Bool
}

// Option customizes a Queue.
type Option func(*Queue)

// WithPollTimeout bounds each BLPOP so Close is observed promptly.
func WithPollTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.pollTimeout = d
		}
	}
}

// New builds a queue on key. The caller owns client.
func New(client goredis.UniversalClient, key string, opts ...Option) *Queue {
	if key == "" {
		key = DefaultKey
	}
	q := &Queue{client: client, key: key, pollTimeout: defaultPollTimeout}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends the item to the list.
func (q *Queue) Enqueue(ctx context.Context, item ingest.QueueItem) error {
	if q.closed.Load() {
		return ingest.ErrQueueClosed
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", item.JobID, err)
	}
	return nil
}

// Dequeue blocks until an item is available. After Close it returns
// ingest.ErrQueueClosed; items left in Redis are picked up by the next process.
func (q *Queue) Dequeue(ctx context.Context) (ingest.QueueItem, error) {
	for {
		if q.closed.Load() {
			return ingest.QueueItem{}, ingest.ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return ingest.QueueItem{}, fmt.Errorf("dequeue canceled: %w", err)
		}
		res, err := q.client.BLPop(ctx, q.pollTimeout, q.key).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ingest.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctxErr)
			}
			return ingest.QueueItem{}, fmt.Errorf("dequeue: %w", err)
		}
		// BLPOP returns [key, value].
		if len(res) != 2 {
			return ingest.QueueItem{}, fmt.Errorf("dequeue: unexpected reply %v", res)
		}
		var item ingest.QueueItem
		if err := json.Unmarshal([]byte(res[1]), &item); err != nil {
			return ingest.QueueItem{}, fmt.Errorf("decode queue item: %w", err)
		}
		return item, nil
	}
}

// Len returns the list length.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}

// Close stops handing out items. It does not close the client.
func (q *Queue) Close() error {
	q.closed.Store(true)
	return nil
}
