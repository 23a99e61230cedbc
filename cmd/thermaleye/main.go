package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/thermaleye/backoffice/pkg/access"
	"github.com/thermaleye/backoffice/pkg/api"
	"github.com/thermaleye/backoffice/pkg/audit"
	"github.com/thermaleye/backoffice/pkg/config"
	"github.com/thermaleye/backoffice/pkg/fkcache"
	"github.com/thermaleye/backoffice/pkg/middleware"
	"github.com/thermaleye/backoffice/pkg/observability"
	"github.com/thermaleye/backoffice/pkg/registry"
	"github.com/thermaleye/backoffice/pkg/scope"
	"github.com/thermaleye/backoffice/pkg/search"
	"github.com/thermaleye/backoffice/pkg/state"
	"github.com/thermaleye/backoffice/pkg/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("configuration error: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("starting thermaleye back office")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing.
	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Warn("tracing disabled")
	}
	if otelProviders != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelProviders.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("tracer shutdown failed")
			}
		}()
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
	}

	// Database.
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.WithError(err).Error("database open failed")
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)
	if err := db.PingContext(ctx); err != nil {
		logger.WithError(err).Error("database unreachable")
		os.Exit(1)
	}

	// Redis. Loss of redis degrades caching and rate limiting, it does not
	// stop the service.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	redisHealthy := true
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("redis unreachable, running with in-process cache only")
		redisHealthy = false
	}

	// Views matrix.
	var reg *registry.Registry
	if cfg.Registry.ViewsMatrixPath != "" {
		reg, err = registry.LoadFile(logger, cfg.Registry.ViewsMatrixPath)
		if err != nil {
			logger.WithError(err).WithField("path", cfg.Registry.ViewsMatrixPath).Error("views matrix load failed")
			os.Exit(1)
		}
		logger.WithField("path", cfg.Registry.ViewsMatrixPath).Info("views matrix loaded")
	} else {
		reg = registry.Default(logger)
		logger.Info("using built-in views matrix")
	}

	// Core services.
	entityStore := store.New(db)
	scoper := scope.NewEngine(entityStore)

	auditSink, err := audit.NewDBSink(db, logger)
	if err != nil {
		logger.WithError(err).Error("audit sink init failed")
		os.Exit(1)
	}
	accessService := access.NewService(reg.Kinds(),
		access.WithOverrides(access.DefaultOverrides),
		access.WithAuditSink(audit.NewMultiSink(access.LogSink{Logger: logger}, auditSink)),
	)

	cacheRedis := redisClient
	if !redisHealthy {
		cacheRedis = nil
	}
	cache, err := fkcache.New(reg, entityStore, scoper, cacheRedis, logger, metrics)
	if err != nil {
		logger.WithError(err).Error("fk cache init failed")
		os.Exit(1)
	}

	// Search.
	breaker := search.NewBreaker(logger, metrics)
	var engine search.Engine
	var indexer *search.Indexer
	if cfg.Search.Enabled {
		engine = search.NewHTTPEngine(cfg.Search.URL, cfg.Search.IndexPrefix, cfg.Search.Timeout)
		indexer = search.NewIndexer(engine, breaker, entityStore, reg, logger, metrics)
	} else {
		logger.Info("external search disabled, all queries take the database path")
	}
	searchService := search.NewService(engine, breaker, entityStore, reg, scoper, logger, metrics)

	// Middleware.
	auth := middleware.NewTokenAuth(entityStore, logger)
	var rateLimit *middleware.RateLimitMiddleware
	if redisHealthy {
		rateLimit = middleware.NewRateLimitMiddleware(redisClient, logger)
	}

	server := api.NewServer(api.Deps{
		Registry:  reg,
		Access:    accessService,
		Scoper:    scoper,
		Store:     entityStore,
		Cache:     cache,
		Search:    searchService,
		Indexer:   indexer,
		State:     state.NewStore(db),
		Audit:     audit.NewHandlers(auditSink),
		Auth:      auth,
		RateLimit: rateLimit,
		Logger:    logger,
		Metrics:   metrics,
	})

	// Scheduled global FK option refresh.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Cache.RefreshCron, func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := cache.RebuildScope(refreshCtx, nil); err != nil {
			logger.WithError(err).Warn("scheduled FK option refresh failed")
		}
	}); err != nil {
		logger.WithError(err).WithField("schedule", cfg.Cache.RefreshCron).Error("invalid refresh schedule")
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Watch the views matrix file. The registry is immutable once loaded,
	// so a change only logs that a restart is needed.
	if cfg.Registry.ViewsMatrixPath != "" && cfg.Registry.WatchEnabled {
		go watchViewsMatrix(ctx, cfg.Registry.ViewsMatrixPath, logger)
	}

	// Health and metrics server on its own port.
	healthChecker := observability.NewHealthChecker(db, redisClient, searchService)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", healthChecker.Liveness)
	healthMux.HandleFunc("/readyz", healthChecker.Readiness)
	if metrics != nil {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}
	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		logger.WithField("addr", apiServer.Addr).Info("api server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("api server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("api server shutdown failed")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("health server shutdown failed")
	}
}

// watchViewsMatrix logs when the views matrix file changes on disk.
func watchViewsMatrix(ctx context.Context, path string, logger *observability.Logger) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.WithError(err).Warn("views matrix watcher unavailable")
		return
	}
	defer watcher.Close()

	// Watch the directory: editors replace files instead of writing in
	// place, which would orphan a file-level watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.WithError(err).Warn("views matrix watch failed")
		return
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				logger.WithField("path", path).Warn("views matrix changed on disk, restart to apply")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.WithError(err).Warn("views matrix watcher error")
		}
	}
}
