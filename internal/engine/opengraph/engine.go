// Package opengraph extracts media links from a page's OpenGraph meta tags. It serves
// as a last resort for pages the command-line extractor does not support.
package opengraph

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/realtime-media-ingest/internal/ingest"
)

const defaultTimeout = 15 * time.Second

// ErrNoMedia is returned when the page declares neither og:video nor og:audio.
var ErrNoMedia = errors.New("page declares no og:video or og:audio")

// Engine implements ingest.Engine with a colly collector.
type Engine struct {
	base *colly.Collector
}

// New builds an Engine with a pooled transport.
func New() *Engine {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	return &Engine{base: c}
}

type tags struct {
	mu     sync.Mutex
	values map[string]string
}

func (t *tags) set(property, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, seen := t.values[property]; !seen {
		t.values[property] = content
	}
}

// Extract fetches sourceURL and maps og:* properties onto RawInfo.
func (e *Engine) Extract(ctx context.Context, sourceURL string, strategy ingest.Strategy) (ingest.RawInfo, error) {
	collector := e.base.Clone()
	timeout := strategy.SocketTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)
	if ua := strategy.Headers["User-Agent"]; ua != "" {
		collector.UserAgent = ua
	}

	found := &tags{values: make(map[string]string)}
	var fetchErr error
	collector.OnRequest(func(r *colly.Request) {
		for k, v := range strategy.Headers {
			if k != "User-Agent" {
				r.Headers.Set(k, v)
			}
		}
	})
	collector.OnHTML(`meta[property^="og:"]`, func(el *colly.HTMLElement) {
		found.set(strings.ToLower(el.Attr("property")), strings.TrimSpace(el.Attr("content")))
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(sourceURL)
	}()
	select {
	case <-ctx.Done():
		return ingest.RawInfo{}, fmt.Errorf("opengraph fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return ingest.RawInfo{}, fmt.Errorf("opengraph visit: %w", err)
		}
		if fetchErr != nil {
			return ingest.RawInfo{}, fmt.Errorf("opengraph response: %w", fetchErr)
		}
	}
	return toRawInfo(found.values)
}

func toRawInfo(og map[string]string) (ingest.RawInfo, error) {
	raw := ingest.RawInfo{
		Title:       og["og:title"],
		Description: og["og:description"],
		Thumbnail:   first(og, "og:image:secure_url", "og:image"),
		Uploader:    og["og:site_name"],
	}
	if video := first(og, "og:video:secure_url", "og:video:url", "og:video"); video != "" {
		raw.URL = video
		raw.Formats = []ingest.RawFormat{{
			FormatID: "og-video",
			URL:      video,
			Ext:      extFromType(og["og:video:type"]),
			VCodec:   "unknown",
			Width:    atoi(og["og:video:width"]),
			Height:   atoi(og["og:video:height"]),
		}}
	}
	if audio := first(og, "og:audio:secure_url", "og:audio:url", "og:audio"); audio != "" {
		if raw.URL == "" {
			raw.URL = audio
		}
		raw.Formats = append(raw.Formats, ingest.RawFormat{
			FormatID: "og-audio",
			URL:      audio,
			Ext:      extFromType(og["og:audio:type"]),
			VCodec:   "none",
			ACodec:   "unknown",
		})
	}
	if raw.URL == "" {
		return ingest.RawInfo{}, ErrNoMedia
	}
	return raw, nil
}

func first(og map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := og[k]; v != "" {
			return v
		}
	}
	return ""
}

func extFromType(mime string) string {
	if _, sub, ok := strings.Cut(mime, "/"); ok {
		return sub
	}
	return ""
}

func atoi(s string) *int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
