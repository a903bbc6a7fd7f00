package extractor

import (
	"time"

	"github.com/JakeFAU/realtime-media-ingest/internal/ingest"
)

// Default backoff bounds between strategy attempts.
const (
	DefaultBackoffMin = 2 * time.Second
	DefaultBackoffMax = 5 * time.Second
)

// DefaultProtectedDomains get the full strategy chain.
var DefaultProtectedDomains = []string{"youtube.com", "youtu.be"}

// Config is the explicit strategy and pacing configuration.
type Config struct {
	Strategies       []ingest.Strategy
	BackoffMin       time.Duration
	BackoffMax       time.Duration
	ProtectedDomains []string
}

// DefaultConfig returns the three-strategy chain with default pacing.
func DefaultConfig() Config {
	return Config{
		Strategies:       DefaultStrategies(),
		BackoffMin:       DefaultBackoffMin,
		BackoffMax:       DefaultBackoffMax,
		ProtectedDomains: append([]string(nil), DefaultProtectedDomains...),
	}
}

// BrowserHeaders mimic a desktop Chrome request.
func BrowserHeaders() map[string]string {
	return map[string]string{
		"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language":           "en-us,en;q=0.5",
		"Accept-Encoding":           "gzip,deflate",
		"Accept-Charset":            "ISO-8859-1,utf-8;q=0.7,*;q=0.7",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
	}
}

// DefaultStrategies returns primary, fallback, and minimal in that order.
func DefaultStrategies() []ingest.Strategy {
	return []ingest.Strategy{
		{
			Name:            "primary",
			Format:          "bestaudio/best",
			SocketTimeout:   30 * time.Second,
			Retries:         5,
			FragmentRetries: 3,
			WriteSubtitles:  true,
			WriteAutoSubs:   true,
			SubtitleLangs:   []string{"en"},
			Headers:         BrowserHeaders(),
		},
		{
			Name:          "fallback",
			Format:        "bestaudio/best",
			SocketTimeout: 15 * time.Second,
			Retries:       2,
			ExtractorArgs: []string{"youtube:skip=hls,dash,translated_subs"},
		},
		{
			Name:          "minimal",
			Format:        "worst",
			SocketTimeout: 10 * time.Second,
			Retries:       1,
		},
	}
}

// OpenGraphStrategy is the last-resort page-metadata strategy, tried for every URL
// once the command-line engine has given up.
func OpenGraphStrategy() ingest.Strategy {
	return ingest.Strategy{
		Name:          "opengraph",
		Engine:        "opengraph",
		LastResort:    true,
		SocketTimeout: 10 * time.Second,
		Headers:       BrowserHeaders(),
	}
}
