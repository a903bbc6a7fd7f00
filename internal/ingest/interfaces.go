package ingest

import (
	"context"
	"io"
	"time"
)

// JobStore persists job records with a retention window.
type JobStore interface {
	Put(ctx context.Context, job Job) error
	Get(ctx context.Context, jobID string) (Job, error)
}

// ResultCache maps a source URL to a previously computed result.
type ResultCache interface {
	Get(ctx context.Context, sourceURL string) (ExtractionResult, error)
	Put(ctx context.Context, sourceURL string, result ExtractionResult) error
}

// Pinger reports whether a backing connection is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Engine resolves a URL into raw metadata using one strategy.
type Engine interface {
	Extract(ctx context.Context, sourceURL string, strategy Strategy) (RawInfo, error)
}

// Updater is implemented by engines that can refresh themselves in place.
type Updater interface {
	Update(ctx context.Context) (string, error)
}

// Queue provides enqueue/dequeue semantics for extraction jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Processor runs the background task for one queue item.
type Processor interface {
	Process(ctx context.Context, item QueueItem) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Archive keeps a durable record of completed extractions.
type Archive interface {
	StoreExtraction(ctx context.Context, record ArchiveRecord) error
}

// Hasher computes digests for cache keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
