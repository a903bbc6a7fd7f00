// Package redis implements storage.Provider on a Redis server so job records and
// cached results are visible to every API and worker process.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/realtime-media-ingest/internal/storage"
)

// Provider wraps a go-redis client.
type Provider struct {
	client goredis.UniversalClient
}

// New dials the server described by url (redis://[user:pass@]host:port/db).
func New(ctx context.Context, url string) (*Provider, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			return nil, fmt.Errorf("ping redis: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Provider{client: client}, nil
}

// NewFromClient wraps an existing client. The provider takes ownership of it.
func NewFromClient(client goredis.UniversalClient) *Provider {
	return &Provider{client: client}
}

// Client exposes the underlying client so other components can share the connection.
func (p *Provider) Client() goredis.UniversalClient {
	return p.client
}

// Set writes value with SET key value EX ttl.
func (p *Provider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := p.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Get returns storage.ErrNotFound on redis.Nil.
func (p *Provider) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := p.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Ping issues PING.
func (p *Provider) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close closes the client.
func (p *Provider) Close() error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
