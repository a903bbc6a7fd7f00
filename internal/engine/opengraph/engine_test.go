package opengraph

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-media-ingest/internal/ingest"
)

const videoPage = `<!doctype html><html><head>
<meta property="og:title" content="Launch recap">
<meta property="og:description" content="Highlights">
<meta property="og:site_name" content="Example News">
<meta property="og:image" content="https://cdn.example/thumb.jpg">
<meta property="og:video" content="http://cdn.example/clip.mp4">
<meta property="og:video:secure_url" content="https://cdn.example/clip.mp4">
<meta property="og:video:type" content="video/mp4">
<meta property="og:video:width" content="1280">
<meta property="og:video:height" content="720">
</head><body></body></html>`

type headerLog struct {
	mu   sync.Mutex
	last http.Header
}

func (h *headerLog) Get(key string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last.Get(key)
}

func serve(t *testing.T, body string, status int) (*httptest.Server, *headerLog) {
	t.Helper()
	seen := &headerLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.mu.Lock()
		seen.last = r.Header.Clone()
		seen.mu.Unlock()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestExtractReadsOpenGraphVideo(t *testing.T) {
	t.Parallel()

	srv, seen := serve(t, videoPage, http.StatusOK)
	e := New()
	strategy := ingest.Strategy{
		Name:          "opengraph",
		SocketTimeout: 5 * time.Second,
		Headers:       map[string]string{"User-Agent": "test-agent", "Accept-Language": "en"},
	}

	raw, err := e.Extract(context.Background(), srv.URL+"/watch", strategy)
	require.NoError(t, err)
	require.Equal(t, "Launch recap", raw.Title)
	require.Equal(t, "Highlights", raw.Description)
	require.Equal(t, "Example News", raw.Uploader)
	require.Equal(t, "https://cdn.example/thumb.jpg", raw.Thumbnail)
	require.Equal(t, "https://cdn.example/clip.mp4", raw.URL)
	require.Len(t, raw.Formats, 1)
	require.Equal(t, "mp4", raw.Formats[0].Ext)
	require.Equal(t, 1280, *raw.Formats[0].Width)
	require.Equal(t, "test-agent", seen.Get("User-Agent"))
	require.Equal(t, "en", seen.Get("Accept-Language"))

	// Revisiting the same page is allowed.
	_, err = e.Extract(context.Background(), srv.URL+"/watch", strategy)
	require.NoError(t, err)
}

func TestExtractWithoutMedia(t *testing.T) {
	t.Parallel()

	srv, _ := serve(t, `<html><head><meta property="og:title" content="Text only"></head></html>`, http.StatusOK)
	_, err := New().Extract(context.Background(), srv.URL, ingest.Strategy{Name: "opengraph"})
	require.ErrorIs(t, err, ErrNoMedia)
}

func TestExtractHTTPError(t *testing.T) {
	t.Parallel()

	srv, _ := serve(t, "gone", http.StatusNotFound)
	_, err := New().Extract(context.Background(), srv.URL, ingest.Strategy{Name: "opengraph"})
	require.Error(t, err)
}

func TestToRawInfoAudioOnly(t *testing.T) {
	t.Parallel()

	raw, err := toRawInfo(map[string]string{
		"og:audio":      "https://cdn.example/ep.mp3",
		"og:audio:type": "audio/mpeg",
	})
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example/ep.mp3", raw.URL)
	require.Len(t, raw.Formats, 1)
	require.Equal(t, "none", raw.Formats[0].VCodec)
	require.Equal(t, "mpeg", raw.Formats[0].Ext)
	require.Nil(t, atoi("wide"))
}
