// Package app initializes and holds long-lived application services, acting
// as the dependency injection container for the CLI and the API server.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/moltpulse/moltpulse/internal/cache"
	"github.com/moltpulse/moltpulse/internal/clock/system"
	"github.com/moltpulse/moltpulse/internal/collectors/financial"
	"github.com/moltpulse/moltpulse/internal/collectors/news"
	"github.com/moltpulse/moltpulse/internal/collectors/rss"
	"github.com/moltpulse/moltpulse/internal/collectors/scraper"
	"github.com/moltpulse/moltpulse/internal/collectors/social"
	"github.com/moltpulse/moltpulse/internal/config"
	"github.com/moltpulse/moltpulse/internal/coordinator"
	"github.com/moltpulse/moltpulse/internal/httpx"
	"github.com/moltpulse/moltpulse/internal/id/uuid"
	"github.com/moltpulse/moltpulse/internal/logging"
	"github.com/moltpulse/moltpulse/internal/orchestrator"
	"github.com/moltpulse/moltpulse/internal/pipeline"
	"github.com/moltpulse/moltpulse/internal/publisher"
	"github.com/moltpulse/moltpulse/internal/pulse"
	"github.com/moltpulse/moltpulse/internal/ratelimit"
	"github.com/moltpulse/moltpulse/internal/storage"
)

// App holds all the shared, long-lived services. It is initialized once at
// startup and passed to the commands and the API server.
type App struct {
	cfg          *config.Config
	logger       *zap.Logger
	orchestrator *orchestrator.Orchestrator
	traces       storage.TraceStore

	pool         *pgxpool.Pool
	gcsClient    *gcs.Client
	pubsubClient *pubsub.Client
	pub          *publisher.PubSub
}

// Config returns the loaded configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Orchestrator returns the run orchestrator.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orchestrator }

// Traces returns the trace store backing run history lookups.
func (a *App) Traces() storage.TraceStore { return a.traces }

// New builds the service graph from configuration. It fails fast when any
// critical service cannot be initialized.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	a := &App{cfg: cfg, logger: logger}

	cacheOpts := []cache.Option{cache.WithLogger(logger)}
	if cfg.Cache.Dir != "" {
		cacheOpts = append(cacheOpts, cache.WithDir(cfg.Cache.Dir))
	}
	responseCache, err := cache.New(cfg.Cache.TTL, cacheOpts...)
	if err != nil {
		return nil, fmt.Errorf("initializing cache: %w", err)
	}

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, nil)
	client := httpx.New(cfg.HTTP.Timeout,
		httpx.WithCache(responseCache),
		httpx.WithLimiter(limiter),
		httpx.WithLogger(logger),
		httpx.WithUserAgent(cfg.HTTP.UserAgent),
	)

	clk := system.New()
	collectors := []pulse.Collector{
		news.New(client, news.LookupFunc(config.Credential), clk, logger),
		financial.New(client, financial.LookupFunc(config.Credential), clk, logger),
		social.New(client, social.LookupFunc(config.Credential), clk, logger),
		rss.New(client, clk, logger),
	}
	if cfg.Runs.Scraping {
		collectors = append(collectors, scraper.New(clk, logger, cfg.HTTP.UserAgent, cfg.HTTP.Timeout))
	}

	traces, err := a.buildTraceStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	blobs, err := a.buildBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pub, err := a.buildPublisher(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a.traces = traces
	a.orchestrator = orchestrator.New(orchestrator.Deps{
		DomainsDir:  cfg.Domains.Dir,
		Collectors:  collectors,
		Coordinator: coordinator.New(collectors, clk, logger),
		Pipeline: pipeline.New(pipeline.Options{
			RecencyFloor:      cfg.Scoring.RecencyFloor,
			NeutralEngagement: cfg.Scoring.NeutralEngagement,
			HalfLifeDays:      cfg.Scoring.HalfLifeDays,
		}, logger),
		Traces:          traces,
		Blobs:           blobs,
		Publisher:       pub,
		Topic:           cfg.Publisher.Topic,
		Lookup:          config.Credential,
		Clock:           clk,
		IDs:             uuid.NewGenerator(),
		Logger:          logger,
		DefaultDays:     cfg.Runs.DaysBack,
		DefaultRetries:  cfg.Runs.Retries,
		DefaultDeadline: cfg.Runs.Deadline,
	})

	logger.Info("application services initialized",
		zap.String("storage", cfg.Storage.Provider),
		zap.String("database", cfg.Database.Provider),
		zap.String("publisher", cfg.Publisher.Provider),
		zap.Int("collectors", len(collectors)),
	)
	return a, nil
}

func (a *App) buildTraceStore(ctx context.Context, cfg *config.Config) (storage.TraceStore, error) {
	switch cfg.Database.Provider {
	case "memory":
		return storage.NewMemoryTraceStore(), nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("pinging postgres: %w", err)
		}
		a.pool = pool
		return storage.NewPostgresTraceStore(pool), nil
	default:
		return nil, fmt.Errorf("unknown database provider: %s", cfg.Database.Provider)
	}
}

func (a *App) buildBlobStore(ctx context.Context, cfg *config.Config) (pulse.BlobStore, error) {
	switch cfg.Storage.Provider {
	case "local":
		store, err := storage.NewLocalBlobStore(cfg.Storage.Dir)
		if err != nil {
			return nil, fmt.Errorf("initializing local archive: %w", err)
		}
		return store, nil
	case "memory":
		return storage.NewMemoryBlobStore(), nil
	case "gcs":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("initializing gcs client: %w", err)
		}
		a.gcsClient = client
		return storage.NewGCSBlobStore(client, cfg.Storage.Bucket), nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Storage.Provider)
	}
}

func (a *App) buildPublisher(ctx context.Context, cfg *config.Config) (pulse.Publisher, error) {
	switch cfg.Publisher.Provider {
	case "noop":
		return publisher.NewNoop(), nil
	case "memory":
		return publisher.NewMemory(), nil
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.Publisher.Project)
		if err != nil {
			return nil, fmt.Errorf("initializing pubsub client: %w", err)
		}
		a.pubsubClient = client
		a.pub = publisher.NewPubSub(client)
		return a.pub, nil
	default:
		return nil, fmt.Errorf("unknown publisher provider: %s", cfg.Publisher.Provider)
	}
}

// Close shuts down all services. Called by a Cobra hook after the command
// finishes.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	if a.pub != nil {
		a.pub.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("closing pubsub client", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("closing gcs client", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.logger.Sync()
}
