package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/realtime-media-ingest/internal/ingest"
)

// ResultCache stores extraction results under video:<fingerprint>.
type ResultCache struct {
	provider Provider
	hasher   ingest.Hasher
	ttl      time.Duration
}

// NewResultCache wraps provider. A non-positive ttl falls back to DefaultCacheTTL.
func NewResultCache(provider Provider, hasher ingest.Hasher, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ResultCache{provider: provider, hasher: hasher, ttl: ttl}
}

// Key returns the store key used for sourceURL.
func (c *ResultCache) Key(sourceURL string) (string, error) {
	fp, err := ingest.Fingerprint(c.hasher, sourceURL)
	if err != nil {
		return "", fmt.Errorf("fingerprint url: %w", err)
	}
	return ingest.CacheKey(fp), nil
}

// Get returns the cached result or ingest.ErrCacheMiss.
func (c *ResultCache) Get(ctx context.Context, sourceURL string) (ingest.ExtractionResult, error) {
	key, err := c.Key(sourceURL)
	if err != nil {
		return ingest.ExtractionResult{}, err
	}
	data, err := c.provider.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return ingest.ExtractionResult{}, ingest.ErrCacheMiss
	}
	if err != nil {
		return ingest.ExtractionResult{}, fmt.Errorf("load cached result: %w", err)
	}
	var result ingest.ExtractionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return ingest.ExtractionResult{}, fmt.Errorf("decode cached result: %w", err)
	}
	return result, nil
}

// Put writes result for sourceURL. Concurrent writers for the same URL race and the
// last one wins.
func (c *ResultCache) Put(ctx context.Context, sourceURL string, result ingest.ExtractionResult) error {
	key, err := c.Key(sourceURL)
	if err != nil {
		return err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := c.provider.Set(ctx, key, data, c.ttl); err != nil {
		return fmt.Errorf("store cached result: %w", err)
	}
	return nil
}
