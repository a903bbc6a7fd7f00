package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/realtime-media-ingest/internal/ingest"
)

// JobStore persists jobs as JSON under job:<id>, renewing the TTL on every write.
type JobStore struct {
	provider Provider
	ttl      time.Duration
}

// NewJobStore wraps provider. A non-positive ttl falls back to DefaultJobTTL.
func NewJobStore(provider Provider, ttl time.Duration) *JobStore {
	if ttl <= 0 {
		ttl = DefaultJobTTL
	}
	return &JobStore{provider: provider, ttl: ttl}
}

// Put persists or overwrites a job record.
func (s *JobStore) Put(ctx context.Context, job ingest.Job) error {
	if job.ID == "" {
		return errors.New("job id is required")
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := s.provider.Set(ctx, ingest.JobKey(job.ID), data, s.ttl); err != nil {
		return fmt.Errorf("store job: %w", err)
	}
	return nil
}

// Get returns the job or ingest.ErrJobNotFound when it is unknown or expired.
func (s *JobStore) Get(ctx context.Context, jobID string) (ingest.Job, error) {
	if jobID == "" {
		return ingest.Job{}, ingest.ErrJobNotFound
	}
	data, err := s.provider.Get(ctx, ingest.JobKey(jobID))
	if errors.Is(err, ErrNotFound) {
		return ingest.Job{}, ingest.ErrJobNotFound
	}
	if err != nil {
		return ingest.Job{}, fmt.Errorf("load job: %w", err)
	}
	var job ingest.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return ingest.Job{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}

// Ping proxies to the provider for health checks.
func (s *JobStore) Ping(ctx context.Context) error {
	if err := s.provider.Ping(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}
	return nil
}
