// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/hr-contact-discovery/internal/api"
	"github.com/JakeFAU/hr-contact-discovery/internal/clock"
	"github.com/JakeFAU/hr-contact-discovery/internal/config"
	"github.com/JakeFAU/hr-contact-discovery/internal/discovery"
	"github.com/JakeFAU/hr-contact-discovery/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/hr-contact-discovery/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/hr-contact-discovery/internal/fetcher/headless"
	"github.com/JakeFAU/hr-contact-discovery/internal/hash/sha256"
	"github.com/JakeFAU/hr-contact-discovery/internal/headless/detector"
	"github.com/JakeFAU/hr-contact-discovery/internal/id/uuid"
	"github.com/JakeFAU/hr-contact-discovery/internal/logging"
	"github.com/JakeFAU/hr-contact-discovery/internal/metrics"
	"github.com/JakeFAU/hr-contact-discovery/internal/namesearch"
	"github.com/JakeFAU/hr-contact-discovery/internal/pattern"
	"github.com/JakeFAU/hr-contact-discovery/internal/policy/ratelimit"
	"github.com/JakeFAU/hr-contact-discovery/internal/progress"
	progresssinks "github.com/JakeFAU/hr-contact-discovery/internal/progress/sinks"
	"github.com/JakeFAU/hr-contact-discovery/internal/publisher"
	memorypublisher "github.com/JakeFAU/hr-contact-discovery/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/hr-contact-discovery/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/hr-contact-discovery/internal/queue/memory"
	"github.com/JakeFAU/hr-contact-discovery/internal/resolver"
	"github.com/JakeFAU/hr-contact-discovery/internal/search"
	"github.com/JakeFAU/hr-contact-discovery/internal/sitecrawl"
	"github.com/JakeFAU/hr-contact-discovery/internal/storage"
	gcsstorage "github.com/JakeFAU/hr-contact-discovery/internal/storage/gcs"
	localstorage "github.com/JakeFAU/hr-contact-discovery/internal/storage/local"
	memoryStorage "github.com/JakeFAU/hr-contact-discovery/internal/storage/memory"
	"github.com/JakeFAU/hr-contact-discovery/internal/store"
	memorystore "github.com/JakeFAU/hr-contact-discovery/internal/store/memory"
	pgstore "github.com/JakeFAU/hr-contact-discovery/internal/store/postgres"
	"github.com/JakeFAU/hr-contact-discovery/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg         *config.Config
	logger      *zap.Logger
	apiServer   *api.Server
	engine      *discovery.Engine
	runner      *worker.Worker
	dispatch    *dispatcher.Dispatcher
	queue       *queueMemory.Queue
	runs        store.RunStore
	progressHub *progress.Hub
	pgRuns      *pgstore.RunStore
	gcsBlobs    *gcsstorage.BlobStore
	pubsub      *gcppublisher.Publisher
	closeOnce   sync.Once
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("runs_backend", cfg.Runs.Backend),
		zap.String("archive_backend", cfg.Archive.Backend),
		zap.String("pubsub_backend", cfg.PubSub.Backend),
	)

	// Everything opened before a failure is released on the way out.
	ok := false
	defer func() {
		if !ok {
			app.closeInfrastructure(context.Background())
		}
	}()

	if err := app.setupRuns(ctx); err != nil {
		return nil, err
	}
	archive, err := app.setupArchive(ctx)
	if err != nil {
		return nil, err
	}
	pub, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	emitter, err := app.setupProgress()
	if err != nil {
		return nil, err
	}
	if err := app.setupEngine(emitter); err != nil {
		return nil, err
	}
	if err := app.setupWorkers(archive, pub); err != nil {
		return nil, err
	}

	app.apiServer = api.NewServer(
		app.runner,
		app.runs,
		app.dispatch,
		uuid.New(),
		*cfg,
		logger.Named("api"),
	)
	ok = true
	return app, nil
}

// Run starts the HTTP server and the queue workers and blocks until the
// context is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Runs.Workers))
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not drain before shutdown deadline")
	}

	return a.Close(shutdownCtx)
}

// Discover runs one discovery in the calling goroutine and records it like
// an API request would. It backs the one-shot CLI command.
func (a *App) Discover(ctx context.Context, req discovery.Request) (store.Run, error) {
	run, err := a.runner.Register(ctx, req)
	if err != nil {
		return store.Run{}, fmt.Errorf("register run: %w", err)
	}
	return a.runner.Execute(ctx, run)
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Close gracefully shuts down the application. Calls after the first are
// no-ops.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		if a.queue != nil {
			a.queue.Close()
		}
		a.closeInfrastructure(ctx)
		a.logger.Info("shutdown complete")
		// Sync on a console sink reports EINVAL/ENOTTY; nothing to do about it.
		_ = a.logger.Sync()
	})
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsBlobs != nil {
		if err := a.gcsBlobs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgRuns != nil {
		a.pgRuns.Close()
	}
}

func (a *App) setupRuns(ctx context.Context) error {
	switch a.cfg.Runs.Backend {
	case config.BackendPostgres:
		pg, err := pgstore.NewRunStore(ctx, pgstore.Config{
			DSN:      a.cfg.DB.DSN,
			MaxConns: int32(a.cfg.DB.MaxOpenConns), //nolint:gosec // bounded by config validation
		})
		if err != nil {
			return fmt.Errorf("run store init failed: %w", err)
		}
		a.pgRuns = pg
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("run store schema failed: %w", err)
		}
		a.runs = pg
		a.logger.Info("using postgres run store", zap.String("table", pgstore.DefaultTable))
	default:
		a.runs = memorystore.NewRunStore()
		a.logger.Info("using in-memory run store")
	}
	return nil
}

func (a *App) setupArchive(ctx context.Context) (worker.Archiver, error) {
	var blobs storage.BlobStore
	switch a.cfg.Archive.Backend {
	case config.BackendGCS:
		gcs, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Archive.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.gcsBlobs = gcs
		blobs = gcs
		a.logger.Info("using GCS report archive", zap.String("bucket", a.cfg.Archive.GCSBucket))
	case config.BackendLocal:
		local, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.Dir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		blobs = local
		a.logger.Info("using local report archive", zap.String("path", a.cfg.Archive.Dir))
	case config.BackendMemory:
		blobs = memoryStorage.NewBlobStore()
		a.logger.Info("using in-memory report archive")
	default:
		a.logger.Info("report archive disabled")
		return nil, nil
	}
	return storage.NewArchive(blobs, a.cfg.Archive.Prefix, a.cfg.Archive.ContentType), nil
}

func (a *App) setupPublisher(ctx context.Context) (publisher.Publisher, error) {
	switch a.cfg.PubSub.Backend {
	case config.BackendPubSub:
		pub, err := gcppublisher.Open(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.pubsub = pub
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", a.cfg.PubSub.TopicName),
		)
		return pub, nil
	case config.BackendMemory:
		a.logger.Info("using in-memory publisher", zap.String("topic", a.cfg.PubSub.TopicName))
		return memorypublisher.New(), nil
	default:
		a.logger.Info("completion notifications disabled")
		return nil, nil
	}
}

func (a *App) setupProgress() (progress.Emitter, error) {
	if !a.cfg.Progress.Enabled {
		a.logger.Info("progress tracking disabled")
		return progress.Nop{}, nil
	}
	promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("progress prometheus sink init failed: %w", err)
	}
	hubCfg := progress.Config{
		BufferSize:  a.cfg.Progress.BufferSize,
		BatchEvents: a.cfg.Progress.BatchEvents,
		BatchWait:   time.Duration(a.cfg.Progress.BatchMillis) * time.Millisecond,
		Logger:      a.logger.Named("progress_hub"),
	}
	a.progressHub = progress.NewHub(hubCfg,
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
		promSink,
	)
	a.logger.Info("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("batch_events", hubCfg.BatchEvents),
		zap.Duration("batch_wait", hubCfg.BatchWait),
	)
	return a.progressHub, nil
}

func (a *App) setupEngine(emitter progress.Emitter) error {
	cfg := a.cfg
	pageFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawl.UserAgent,
		RespectRobots: !cfg.Crawl.IgnoreRobots,
		Timeout:       cfg.FetchTimeout(),
		MaxBodySize:   cfg.Crawl.MaxBodyBytes,
	})
	a.logger.Info("using colly page fetcher", zap.String("user_agent", cfg.Crawl.UserAgent))

	var launcher interface {
		discovery.Launcher
		discovery.Fetcher
	} = headlessfetcher.NewNoop()
	if cfg.Headless.Enabled {
		browser, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawl.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			SettleDelay:       time.Duration(cfg.Headless.SettleMillis) * time.Millisecond,
			ExecPath:          cfg.Headless.ExecPath,
			NoSandbox:         cfg.Headless.NoSandbox,
		})
		if err != nil {
			a.logger.Warn("headless browser init failed, searches will use fallbacks", zap.Error(err))
		} else {
			launcher = browser
			a.logger.Info("using headless browser", zap.Int("max_parallel", cfg.Headless.MaxParallel))
		}
	} else {
		a.logger.Info("headless browser disabled, searches will use fallbacks")
	}

	searchClient := search.New(launcher, search.Config{
		BaseURL:        cfg.Search.BaseURL,
		ResultSelector: cfg.Search.ResultSelector,
	}, a.logger.Named("search"))

	crawlDeps := sitecrawl.Deps{
		Fetcher:  pageFetcher,
		Progress: emitter,
		Logger:   a.logger.Named("sitecrawl"),
	}
	if cfg.Headless.Enabled && cfg.Headless.CrawlFallback {
		crawlDeps.Renderer = launcher
		crawlDeps.Detector = detector.NewHeuristic(cfg.Headless.PromotionThreshold)
		a.logger.Info("headless crawl fallback enabled", zap.Int("promotion_threshold", cfg.Headless.PromotionThreshold))
	}
	if cfg.RateLimit.Enabled {
		crawlDeps.Limiter = ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.RateLimit.RPS,
			DefaultBurst: cfg.RateLimit.Burst,
		})
		a.logger.Info("rate limiter enabled",
			zap.Float64("rps", cfg.RateLimit.RPS),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
	}
	crawler, err := sitecrawl.New(sitecrawl.Config{
		MaxPages:      cfg.Crawl.MaxPages,
		Concurrency:   cfg.Crawl.Concurrency,
		Delay:         cfg.CrawlDelay(),
		RespectRobots: !cfg.Crawl.IgnoreRobots,
		MaxRefusals:   cfg.Crawl.MaxRefusals,
	}, crawlDeps)
	if err != nil {
		return fmt.Errorf("site crawler init failed: %w", err)
	}

	a.engine, err = discovery.NewEngine(discovery.EngineDeps{
		Resolver: resolver.New(searchClient, a.logger.Named("resolver")),
		Patterns: pattern.New(),
		Crawler:  crawler,
		Names:    namesearch.New(searchClient, a.logger.Named("namesearch")),
		Clock:    clock.New(),
		IDs:      uuid.New(),
		Progress: emitter,
		Logger:   a.logger.Named("engine"),
	})
	if err != nil {
		return fmt.Errorf("engine init failed: %w", err)
	}
	return nil
}

func (a *App) setupWorkers(archive worker.Archiver, pub publisher.Publisher) error {
	a.queue = queueMemory.NewQueue(a.cfg.Runs.QueueDepth)
	workerCfg := worker.Config{Topic: a.cfg.PubSub.TopicName}
	deps := worker.Deps{
		Engine:    a.engine,
		Runs:      a.runs,
		Archive:   archive,
		Publisher: pub,
		Hasher:    sha256.New(),
		IDs:       uuid.New(),
		Clock:     clock.New(),
	}

	// The runner serves inline requests; it never reads the queue.
	runnerDeps := deps
	runnerDeps.Logger = a.logger.Named("runner")
	runner, err := worker.New(runnerDeps, workerCfg)
	if err != nil {
		return fmt.Errorf("runner init failed: %w", err)
	}
	a.runner = runner

	workers := make([]*worker.Worker, 0, a.cfg.Runs.Workers)
	for i := 0; i < a.cfg.Runs.Workers; i++ {
		wd := deps
		wd.Queue = a.queue
		wd.Logger = a.logger.Named("worker").With(zap.Int("index", i))
		w, err := worker.New(wd, workerCfg)
		if err != nil {
			return fmt.Errorf("worker init failed: %w", err)
		}
		workers = append(workers, w)
	}
	a.dispatch = dispatcher.New(a.queue, workers)
	a.logger.Info("worker pool ready",
		zap.Int("workers", a.cfg.Runs.Workers),
		zap.Int("queue_depth", a.cfg.Runs.QueueDepth),
		zap.String("topic", workerCfg.Topic),
	)
	return nil
}
