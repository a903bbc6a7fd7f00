package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/realtime-media-ingest/internal/ingest"
	"github.com/JakeFAU/realtime-media-ingest/internal/storage"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Provider is an in-process storage.Provider for development and tests. Expiry is
// evaluated lazily against the injected clock.
type Provider struct {
	mu    sync.RWMutex
	clock ingest.Clock
	data  map[string]entry
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewProvider constructs a Provider. A nil clock uses wall time.
func NewProvider(clock ingest.Clock) *Provider {
	if clock == nil {
		clock = systemClock{}
	}
	return &Provider{
		clock: clock,
		data:  make(map[string]entry),
	}
}

// Set stores a copy of value. A non-positive ttl never expires.
func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = p.clock.Now().Add(ttl)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[key] = e
	return nil
}

// Get returns a copy of the stored value or storage.ErrNotFound.
func (p *Provider) Get(_ context.Context, key string) ([]byte, error) {
	now := p.clock.Now()
	p.mu.RLock()
	e, ok := p.data[key]
	p.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
		p.mu.Lock()
		if cur, still := p.data[key]; still && cur.expiresAt.Equal(e.expiresAt) {
			delete(p.data, key)
		}
		p.mu.Unlock()
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

// Ping always succeeds.
func (p *Provider) Ping(context.Context) error { return nil }

// Close drops all entries.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data = make(map[string]entry)
	return nil
}

// Len reports the number of stored keys, including ones that have expired but not
// yet been read.
func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.data)
}
