// Package engine routes each strategy to the extraction engine it names.
package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/JakeFAU/realtime-media-ingest/internal/ingest"
)

// DefaultName is used for strategies that do not name an engine.
const DefaultName = "ytdlp"

// Registry implements ingest.Engine by dispatching on Strategy.Engine.
type Registry struct {
	engines  map[string]ingest.Engine
	fallback string
}

// NewRegistry builds an empty Registry. An empty fallback uses DefaultName.
func NewRegistry(fallback string) *Registry {
	if fallback == "" {
		fallback = DefaultName
	}
	return &Registry{engines: make(map[string]ingest.Engine), fallback: fallback}
}

// Register adds or replaces an engine.
func (r *Registry) Register(name string, e ingest.Engine) {
	r.engines[name] = e
}

// Names lists registered engines in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.engines))
	for n := range r.engines {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Extract runs the strategy on its engine.
func (r *Registry) Extract(ctx context.Context, sourceURL string, strategy ingest.Strategy) (ingest.RawInfo, error) {
	name := strategy.Engine
	if name == "" {
		name = r.fallback
	}
	e, ok := r.engines[name]
	if !ok {
		return ingest.RawInfo{}, fmt.Errorf("unknown extraction engine %q", name)
	}
	return e.Extract(ctx, sourceURL, strategy)
}

// Update delegates to the default engine when it supports self-update.
func (r *Registry) Update(ctx context.Context) (string, error) {
	u, ok := r.engines[r.fallback].(ingest.Updater)
	if !ok {
		return "", fmt.Errorf("engine %q cannot update itself", r.fallback)
	}
	return u.Update(ctx)
}

// Updater returns the default engine's Updater, or nil.
func (r *Registry) Updater() ingest.Updater {
	if _, ok := r.engines[r.fallback].(ingest.Updater); ok {
		return r
	}
	return nil
}
