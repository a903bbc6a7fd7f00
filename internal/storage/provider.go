// Package storage defines the key-value provider contract and the typed job and result
// stores layered on top of it. Providers (Redis, Badger, memory) only move bytes with
// a TTL; encoding, key layout, and retention live here so every backend behaves the
// same way.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a Provider for absent or expired keys.
var ErrNotFound = errors.New("key not found")

// Provider is a TTL-capable key-value store.
type Provider interface {
	// Set stores value under key, replacing any previous value and resetting its TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the value or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Ping verifies the backing connection is reachable.
	Ping(ctx context.Context) error
	// Close releases the underlying connection.
	Close() error
}

// Default retention windows.
const (
	DefaultJobTTL   = time.Hour
	DefaultCacheTTL = 24 * time.Hour
)
