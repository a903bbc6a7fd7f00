package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-media-ingest/internal/config"
	"github.com/JakeFAU/realtime-media-ingest/internal/extractor"
)

func baseConfig() config.Config {
	return config.Config{
		Server:  config.ServerConfig{Port: 8000, ShutdownTimeout: time.Second},
		Logging: config.LoggingConfig{Level: "error"},
		Store:   config.StoreConfig{Backend: config.BackendMemory},
		Queue:   config.QueueConfig{Backend: config.BackendMemory, Depth: 4, RedisKey: "ingest:queue"},
		Worker:  config.WorkerConfig{Concurrency: 1, DrainTimeout: time.Second},
		Extractor: config.ExtractorConfig{
			Binary:           "yt-dlp",
			Strategies:       extractor.DefaultStrategies(),
			BackoffMin:       extractor.DefaultBackoffMin,
			BackoffMax:       extractor.DefaultBackoffMax,
			ProtectedDomains: extractor.DefaultProtectedDomains,
		},
	}
}

func TestBuildInMemory(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Snapshot = config.SnapshotConfig{Backend: config.BackendMemory, Prefix: "results"}
	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewBufferString(`{"url":"https://youtu.be/dQw4w9WgXcQ"}`))
	app.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/"+accepted.JobID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"queued"`)
}

func TestBuildSharesRedisClientBetweenStoreAndQueue(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	cfg := baseConfig()
	cfg.Store = config.StoreConfig{Backend: config.BackendRedis, RedisURL: "redis://" + mr.Addr() + "/0"}
	cfg.Queue.Backend = config.BackendRedis

	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	require.Same(t, app.redis, app.provider)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewBufferString(`{"url":"https://vimeo.com/1"}`))
	app.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	items, err := mr.List("ingest:queue")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Len(t, mr.Keys(), 2)

	app.Close()
}

func TestBuildRedisQueueWithMemoryStore(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	cfg := baseConfig()
	cfg.Store.RedisURL = "redis://" + mr.Addr() + "/0"
	cfg.Queue.Backend = config.BackendRedis

	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, app.redis)
	app.Close()
}

func TestBuildFailsWhenRedisUnreachable(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Store = config.StoreConfig{Backend: config.BackendRedis, RedisURL: "redis://127.0.0.1:1/0"}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Build(ctx, cfg)
	require.ErrorContains(t, err, "redis init failed")
}

func TestBuildRejectsBadLogLevel(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Logging.Level = "loud"
	_, err := Build(context.Background(), cfg)
	require.ErrorContains(t, err, "logger init failed")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Server.Port = freePort(t)
	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(cfg.Server.Port) + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
