// Package ratelimit paces extraction attempts per source domain with token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/realtime-media-ingest/internal/metrics"
)

// OtherDomain labels hosts that are neither overridden nor tracked.
const OtherDomain = "other"

// DefaultMaxBuckets bounds the per-host buckets kept for untracked hosts.
const DefaultMaxBuckets = 1024

// Limiter manages per-domain rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
	maxBuckets   int
	// known holds overridden and tracked domains, longest first.
	known     []string
	overrides map[string]rate.Limit
}

// Config holds rate limiter configuration. Overrides maps a domain (and its
// subdomains) to its own requests-per-second budget. Tracked domains share one
// bucket across their subdomains and get their own metric label; every other
// host is reported as "other".
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	Overrides    map[string]float64
	Tracked      []string
	MaxBuckets   int
}

// New creates a Limiter. A non-positive rate disables limiting for that domain.
func New(cfg Config) *Limiter {
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	maxBuckets := cfg.MaxBuckets
	if maxBuckets <= 0 {
		maxBuckets = DefaultMaxBuckets
	}
	overrides := make(map[string]rate.Limit, len(cfg.Overrides))
	seen := make(map[string]bool)
	var known []string
	add := func(domain string) string {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain != "" && !seen[domain] {
			seen[domain] = true
			known = append(known, domain)
		}
		return domain
	}
	for domain, rps := range cfg.Overrides {
		overrides[add(domain)] = toLimit(rps)
	}
	for _, domain := range cfg.Tracked {
		add(domain)
	}
	sort.Slice(known, func(i, j int) bool {
		if len(known[i]) != len(known[j]) {
			return len(known[i]) > len(known[j])
		}
		return known[i] < known[j]
	})
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  toLimit(cfg.DefaultRPS),
		defaultBurst: burst,
		maxBuckets:   maxBuckets,
		known:        known,
		overrides:    overrides,
	}
}

func toLimit(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

// Wait blocks until a token is available for the URL's domain.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := metrics.SanitizeSite(rawURL)
	domain, known := l.match(host)
	key, label := host, OtherDomain
	if known {
		key, label = domain, domain
	}
	limit := l.rateFor(host)
	if limit == rate.Inf {
		return ctx.Err()
	}
	limiter := l.limiterFor(key, limit)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(label, waited)
	}
	return nil
}

func (l *Limiter) limiterFor(key string, limit rate.Limit) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= l.maxBuckets {
			l.pruneIdle()
		}
		limiter = rate.NewLimiter(limit, l.defaultBurst)
		l.limiters[key] = limiter
	}
	return limiter
}

// pruneIdle drops buckets that have refilled completely; a fresh bucket would
// behave the same. Caller holds l.mu.
func (l *Limiter) pruneIdle() {
	for key, limiter := range l.limiters {
		if limiter.Tokens() >= float64(l.defaultBurst) {
			delete(l.limiters, key)
		}
	}
}

// match returns the longest overridden or tracked domain covering host.
func (l *Limiter) match(host string) (string, bool) {
	for _, d := range l.known {
		if host == d || strings.HasSuffix(host, "."+d) {
			return d, true
		}
	}
	return "", false
}

// rateFor returns the rate of the longest matching override, else the default.
func (l *Limiter) rateFor(host string) rate.Limit {
	for _, d := range l.known {
		r, ok := l.overrides[d]
		if ok && (host == d || strings.HasSuffix(host, "."+d)) {
			return r
		}
	}
	return l.defaultRate
}
