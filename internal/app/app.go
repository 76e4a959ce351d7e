// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/replyrank/crawler/internal/archive"
	"github.com/replyrank/crawler/internal/clock/system"
	"github.com/replyrank/crawler/internal/config"
	"github.com/replyrank/crawler/internal/crawl"
	"github.com/replyrank/crawler/internal/events"
	"github.com/replyrank/crawler/internal/metrics"
	"github.com/replyrank/crawler/internal/storage/memory"
	"github.com/replyrank/crawler/internal/storage/postgres"
	"github.com/replyrank/crawler/internal/twitter"
)

// App holds the shared, long-lived services for the application. It is built
// once at startup and passed to the components that need it, failing fast if
// any critical service cannot be initialized.
type App struct {
	logger      *zap.Logger
	cfg         config.Config
	coordinator *crawl.Coordinator
	checkpoints crawl.CheckpointStore
	lists       crawl.ListStore
	tweets      crawl.TweetStore
	closers     []func() error
}

// NewApp wires stores, the API client and the crawl engine from config.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()

	a := &App{logger: logger, cfg: cfg}

	genesis, err := cfg.Crawl.GenesisTime()
	if err != nil {
		return nil, err
	}

	// 1. Stores: checkpoint progress, tweets and the list snapshot.
	switch cfg.DB.Provider {
	case "postgres":
		logger.Info("connecting to PostgreSQL")
		pool, err := pgxpool.New(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, fmt.Errorf("create postgres pool: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		a.checkpoints = postgres.NewCheckpointStoreWithPool(pool)
		a.tweets = postgres.NewTweetStoreWithPool(pool)
		a.lists = postgres.NewListStoreWithPool(pool)
	case "memory":
		logger.Info("using in-memory stores; state is lost on exit")
		a.checkpoints = memory.NewCheckpointStore()
		a.tweets = memory.NewTweetStore()
		a.lists = memory.NewListStore()
	default:
		return nil, fmt.Errorf("unknown db provider: %s", cfg.DB.Provider)
	}

	// 2. Twitter API client.
	client, err := twitter.NewClient(twitter.Config{
		BearerToken:       cfg.Twitter.BearerToken,
		BaseURL:           cfg.Twitter.BaseURL,
		RequestsPerSecond: cfg.Twitter.RequestsPerSecond,
		Burst:             cfg.Twitter.Burst,
		Timeout:           cfg.Twitter.ClientTimeout(),
		MaxRetries:        cfg.Twitter.MaxRetries,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize twitter client: %w", err)
	}

	// 3. Raw page archival.
	var archiver crawl.Archiver
	switch cfg.Archive.Provider {
	case "gcs":
		logger.Info("using GCS archive provider", zap.String("bucket", cfg.Archive.GCSBucket))
		gcs, err := archive.NewGCSProvider(
			ctx,
			cfg.Archive.GCSBucket,
			cfg.Archive.Prefix,
			archive.DefaultGCSClientFactory{},
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("initialize archive: %w", err)
		}
		a.closers = append(a.closers, gcs.Close)
		archiver = gcs
	case "noop":
		logger.Info("raw page archival disabled")
		archiver = archive.NoOpProvider{}
	default:
		return nil, fmt.Errorf("unknown archive provider: %s", cfg.Archive.Provider)
	}

	// 4. Cycle completion events.
	var publisher crawl.Publisher
	switch cfg.Events.Provider {
	case "pubsub":
		logger.Info("connecting to GCP Pub/Sub", zap.String("topic", cfg.Events.TopicID))
		ps, err := events.NewPubSubPublisher(ctx, cfg.Events.ProjectID, cfg.Events.TopicID, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize publisher: %w", err)
		}
		a.closers = append(a.closers, ps.Close)
		publisher = ps
	case "noop":
		publisher = events.NoOpPublisher{}
	default:
		return nil, fmt.Errorf("unknown events provider: %s", cfg.Events.Provider)
	}

	// 5. Crawl engine.
	fetcher := crawl.NewFetcher(client, archiver, crawl.FetcherConfig{
		PageSize:     cfg.Crawl.PageSize,
		MaxPages:     cfg.Crawl.MaxPages,
		StopAtCursor: cfg.Crawl.StopAtCursor,
	}, logger)
	persister := crawl.NewPersister(a.tweets, cfg.Crawl.ChunkSize)
	listCrawler := crawl.NewListCrawler(
		fetcher,
		persister,
		a.checkpoints,
		genesis,
		cfg.Crawl.BatchSize,
		logger,
	)
	a.coordinator = crawl.NewCoordinator(
		a.checkpoints,
		a.lists,
		listCrawler,
		publisher,
		system.New(),
		genesis,
		logger,
	)

	logger.Info("application services initialized")
	return a, nil
}

// Coordinator returns the crawl coordinator.
func (a *App) Coordinator() *crawl.Coordinator { return a.coordinator }

// Checkpoints returns the checkpoint store.
func (a *App) Checkpoints() crawl.CheckpointStore { return a.checkpoints }

// Lists returns the list store.
func (a *App) Lists() crawl.ListStore { return a.lists }

// Tweets returns the tweet store.
func (a *App) Tweets() crawl.TweetStore { return a.tweets }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Close shuts down all services in reverse initialization order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		// Best effort; stderr sync failures are expected on some platforms.
		_ = err
	}
}
