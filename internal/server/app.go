// Package server assembles the ingest service from configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-media-ingest/internal/api"
	"github.com/JakeFAU/realtime-media-ingest/internal/clock/system"
	"github.com/JakeFAU/realtime-media-ingest/internal/config"
	"github.com/JakeFAU/realtime-media-ingest/internal/dispatcher"
	"github.com/JakeFAU/realtime-media-ingest/internal/engine"
	"github.com/JakeFAU/realtime-media-ingest/internal/engine/opengraph"
	"github.com/JakeFAU/realtime-media-ingest/internal/engine/ytdlp"
	"github.com/JakeFAU/realtime-media-ingest/internal/extractor"
	"github.com/JakeFAU/realtime-media-ingest/internal/hash/sha256"
	"github.com/JakeFAU/realtime-media-ingest/internal/id/uuid"
	"github.com/JakeFAU/realtime-media-ingest/internal/ingest"
	"github.com/JakeFAU/realtime-media-ingest/internal/logging"
	"github.com/JakeFAU/realtime-media-ingest/internal/orchestrator"
	"github.com/JakeFAU/realtime-media-ingest/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/realtime-media-ingest/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/realtime-media-ingest/internal/queue/memory"
	queueRedis "github.com/JakeFAU/realtime-media-ingest/internal/queue/redis"
	"github.com/JakeFAU/realtime-media-ingest/internal/storage"
	badgerstore "github.com/JakeFAU/realtime-media-ingest/internal/storage/badger"
	gcsstorage "github.com/JakeFAU/realtime-media-ingest/internal/storage/gcs"
	localstorage "github.com/JakeFAU/realtime-media-ingest/internal/storage/local"
	memoryStorage "github.com/JakeFAU/realtime-media-ingest/internal/storage/memory"
	pgstore "github.com/JakeFAU/realtime-media-ingest/internal/storage/postgres"
	redisstore "github.com/JakeFAU/realtime-media-ingest/internal/storage/redis"
)

// ServiceName tags every log line.
const ServiceName = "media-ingest"

// App contains the application's dependencies.
type App struct {
	cfg             config.Config
	logger          *zap.Logger
	apiServer       *api.Server
	orchestrator    *orchestrator.Orchestrator
	dispatch        *dispatcher.Dispatcher
	queue           dispatcher.Queue
	provider        storage.Provider
	redis           *redisstore.Provider
	archive         *pgstore.ArchiveStore
	gcs             *gcs.Client
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
}

// Build creates the application's dependencies. On error everything opened so far
// is closed again.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
		Service:     ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app := &App{cfg: cfg, logger: logger}
	built := false
	defer func() {
		if !built {
			app.closeInfrastructure()
		}
	}()
	app.logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Backend),
		zap.String("queue", cfg.Queue.Backend),
	)

	if err := app.setupStore(ctx); err != nil {
		return nil, err
	}
	if err := app.setupQueue(ctx); err != nil {
		return nil, err
	}
	registry := app.setupEngines()
	ext, err := app.setupExtractor(registry)
	if err != nil {
		return nil, err
	}
	sinks, err := app.setupSinks(ctx)
	if err != nil {
		return nil, err
	}

	hasher := sha256.New()
	jobs := storage.NewJobStore(app.provider, cfg.Store.JobTTL)
	app.orchestrator, err = orchestrator.New(orchestrator.Deps{
		Jobs:      jobs,
		Cache:     storage.NewResultCache(app.provider, hasher, cfg.Store.CacheTTL),
		Queue:     app.queue,
		Extractor: ext,
		IDs:       uuid.New(),
		Clock:     system.New(),
		Hasher:    hasher,
	}, sinks, orchestrator.Config{}, logger.Named("orchestrator"))
	if err != nil {
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}

	app.dispatch = dispatcher.New(app.queue, app.orchestrator, dispatcher.Config{
		Concurrency:  cfg.Worker.Concurrency,
		DrainTimeout: cfg.Worker.DrainTimeout,
	}, logger.Named("dispatcher"))

	app.apiServer = api.NewServer(app.orchestrator, jobs, registry.Updater(), cfg, logger)
	built = true
	return app, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the dispatcher and the HTTP server and blocks until ctx is canceled or a
// termination signal arrives. Workers drain before infrastructure is closed.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("concurrency", a.cfg.Worker.Concurrency))
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	<-dispatchDone

	a.Close()
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases every client the App opened.
func (a *App) Close() {
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}

func (a *App) closeInfrastructure() {
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			a.logger.Warn("queue close failed", zap.Error(err))
		}
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.archive != nil {
		a.archive.Close()
	}
	if a.provider != nil {
		if err := a.provider.Close(); err != nil {
			a.logger.Warn("store close failed", zap.Error(err))
		}
	}
	if a.redis != nil && storage.Provider(a.redis) != a.provider {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
}

func (a *App) redisProvider(ctx context.Context) (*redisstore.Provider, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	p, err := redisstore.New(ctx, a.cfg.Store.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis init failed: %w", err)
	}
	a.redis = p
	return p, nil
}

func (a *App) setupStore(ctx context.Context) error {
	switch a.cfg.Store.Backend {
	case config.BackendRedis:
		p, err := a.redisProvider(ctx)
		if err != nil {
			return err
		}
		a.provider = p
		a.logger.Info("using redis store")
	case config.BackendBadger:
		p, err := badgerstore.Open(badgerstore.Config{Path: a.cfg.Store.BadgerPath})
		if err != nil {
			return fmt.Errorf("badger store init failed: %w", err)
		}
		a.provider = p
		a.logger.Info("using badger store", zap.String("path", a.cfg.Store.BadgerPath))
	default:
		a.provider = memoryStorage.NewProvider(nil)
		a.logger.Warn("using in-memory store; jobs are lost on restart")
	}
	return nil
}

func (a *App) setupQueue(ctx context.Context) error {
	switch a.cfg.Queue.Backend {
	case config.BackendRedis:
		p, err := a.redisProvider(ctx)
		if err != nil {
			return err
		}
		a.queue = queueRedis.New(p.Client(), a.cfg.Queue.RedisKey)
		a.logger.Info("using redis queue", zap.String("key", a.cfg.Queue.RedisKey))
	default:
		a.queue = queueMemory.NewQueue(a.cfg.Queue.Depth)
		a.logger.Info("using in-memory queue", zap.Int("depth", a.cfg.Queue.Depth))
	}
	return nil
}

func (a *App) setupEngines() *engine.Registry {
	registry := engine.NewRegistry(engine.DefaultName)
	registry.Register(engine.DefaultName, ytdlp.New(ytdlp.Config{
		Binary:         a.cfg.Extractor.Binary,
		AttemptTimeout: a.cfg.Extractor.AttemptTimeout,
	}, nil, a.logger.Named("ytdlp")))
	if a.cfg.Extractor.OpenGraphFallback {
		registry.Register(extractor.OpenGraphStrategy().Engine, opengraph.New())
	}
	a.logger.Info("extraction engines registered", zap.Strings("engines", registry.Names()))
	return registry
}

func (a *App) setupExtractor(eng ingest.Engine) (*extractor.Extractor, error) {
	rl := a.cfg.RateLimitSettings()
	ext, err := extractor.New(eng, a.cfg.ExtractorSettings(),
		extractor.WithPacer(ratelimit.New(rl)),
		extractor.WithLogger(a.logger.Named("extractor")),
	)
	if err != nil {
		return nil, fmt.Errorf("extractor init failed: %w", err)
	}
	a.logger.Info("rate limiter configured",
		zap.Float64("default_rps", rl.DefaultRPS),
		zap.Int("default_burst", rl.DefaultBurst),
		zap.Int("overrides", len(rl.Overrides)),
	)
	return ext, nil
}

func (a *App) setupSinks(ctx context.Context) (orchestrator.Sinks, error) {
	sinks := orchestrator.Sinks{SnapshotPrefix: a.cfg.Snapshot.Prefix}

	if a.cfg.Archive.DSN != "" {
		archive, err := pgstore.NewArchiveStore(ctx, pgstore.ArchiveStoreConfig{
			DSN:             a.cfg.Archive.DSN,
			Table:           a.cfg.Archive.Table,
			MaxConns:        a.cfg.Archive.MaxConns,
			MinConns:        a.cfg.Archive.MinConns,
			MaxConnLifetime: a.cfg.Archive.MaxConnLifetime,
		})
		if err != nil {
			return sinks, fmt.Errorf("archive store init failed: %w", err)
		}
		a.archive = archive
		sinks.Archive = archive
		a.logger.Info("extraction archive enabled", zap.String("table", a.cfg.Archive.Table))
	}

	switch a.cfg.Snapshot.Backend {
	case config.BackendGCS:
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return sinks, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcs = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Snapshot.Bucket})
		if err != nil {
			return sinks, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		sinks.Snapshots = blobs
		a.logger.Info("using GCS snapshots", zap.String("bucket", a.cfg.Snapshot.Bucket))
	case config.BackendLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Snapshot.Dir})
		if err != nil {
			return sinks, fmt.Errorf("local blob store init failed: %w", err)
		}
		sinks.Snapshots = blobs
		a.logger.Info("using local snapshots", zap.String("path", a.cfg.Snapshot.Dir))
	case config.BackendMemory:
		sinks.Snapshots = memoryStorage.NewBlobStore()
		a.logger.Info("using in-memory snapshots")
	default:
		a.logger.Info("result snapshots disabled")
	}

	if a.cfg.PubSub.Topic != "" {
		client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return sinks, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		a.pubsubPublisher = gcppublisher.New(client)
		sinks.Publisher = a.pubsubPublisher
		sinks.Topic = a.cfg.PubSub.Topic
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", a.cfg.PubSub.Topic),
		)
	} else {
		a.logger.Info("no Pub/Sub topic configured; completion events disabled")
	}
	return sinks, nil
}
