package ingest

import "errors"

var (
	// ErrInvalidURL is returned when a submitted URL is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid url")
	// ErrJobNotFound covers both unknown and expired job ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrCacheMiss is returned by a ResultCache with no entry for the URL.
	ErrCacheMiss = errors.New("cache miss")
	// ErrQueueClosed is returned by Dequeue once a closed queue has no more items.
	ErrQueueClosed = errors.New("queue closed")
	// ErrQueueUnavailable is returned by Submit when the job could not be scheduled.
	ErrQueueUnavailable = errors.New("queue unavailable")
	// ErrEngineNotInstalled is returned when an engine's executable is missing.
	ErrEngineNotInstalled = errors.New("extraction engine not installed")
)
