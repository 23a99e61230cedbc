package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/thermaleye/backoffice/pkg/observability"
	"github.com/thermaleye/backoffice/pkg/registry"
	"github.com/thermaleye/backoffice/pkg/search"
	"github.com/thermaleye/backoffice/pkg/store"
)

// Config holds the reindexer configuration
type Config struct {
	DBConnectionString string
	SearchURL          string
	IndexPrefix        string
	SearchTimeout      time.Duration
	ViewsMatrixPath    string
	Kinds              string
	MaxConcurrent      int
	LogLevel           string
}

// Reindexer rebuilds the search indexes from primary storage, one index per
// entity kind.
func main() {
	cfg := parseFlags()
	logger := setupLogger(cfg.LogLevel)

	if cfg.SearchURL == "" {
		logger.Warn("no search URL configured, nothing to reindex")
		return
	}

	db, err := connectDatabase(cfg.DBConnectionString)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// The service packages log through the structured logger; the CLI's
	// own progress goes through logrus.
	svcLogger := observability.NewLogger(observability.InfoLevel, os.Stdout)

	var reg *registry.Registry
	if cfg.ViewsMatrixPath != "" {
		reg, err = registry.LoadFile(svcLogger, cfg.ViewsMatrixPath)
		if err != nil {
			logger.Fatalf("Failed to load views matrix: %v", err)
		}
	} else {
		reg = registry.Default(svcLogger)
	}

	kinds := reg.Kinds()
	if cfg.Kinds != "" {
		kinds = nil
		for _, kind := range strings.Split(cfg.Kinds, ",") {
			kind = strings.TrimSpace(kind)
			if kind == "" {
				continue
			}
			if reg.Get(kind) == nil {
				logger.Fatalf("Unknown entity kind %q", kind)
			}
			kinds = append(kinds, kind)
		}
	}

	engine := search.NewHTTPEngine(cfg.SearchURL, cfg.IndexPrefix, cfg.SearchTimeout)
	ctx := context.Background()
	if err := engine.Ping(ctx); err != nil {
		logger.Fatalf("Search engine unreachable at %s: %v", cfg.SearchURL, err)
	}

	breaker := search.NewBreaker(svcLogger, nil)
	indexer := search.NewIndexer(engine, breaker, store.New(db), reg, svcLogger, nil)

	logger.Infof("Reindexing %d kinds with %d workers", len(kinds), cfg.MaxConcurrent)
	start := time.Now()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(cfg.MaxConcurrent)
	for _, kind := range kinds {
		kind := kind
		eg.Go(func() error {
			indexed, err := indexer.ReindexKind(egCtx, kind)
			if err != nil {
				logger.Errorf("Reindex of %s failed: %v", kind, err)
				return err
			}
			logger.Infof("Reindexed %s: %d documents", kind, indexed)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		logger.Fatalf("Reindex incomplete: %v", err)
	}

	logger.Infof("Reindex completed in %s", time.Since(start).Round(time.Millisecond))
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.DBConnectionString, "db", getEnv("THERMALEYE_POSTGRES_URL", "postgres://localhost/thermaleye?sslmode=disable"), "Database connection string")
	flag.StringVar(&cfg.SearchURL, "search-url", getEnv("THERMALEYE_SEARCH_URL", ""), "Search engine base URL")
	flag.StringVar(&cfg.IndexPrefix, "index-prefix", getEnv("THERMALEYE_SEARCH_INDEX_PREFIX", "thermaleye"), "Index name prefix")
	flag.DurationVar(&cfg.SearchTimeout, "search-timeout", 30*time.Second, "Per-request search engine timeout")
	flag.StringVar(&cfg.ViewsMatrixPath, "views-matrix", getEnv("THERMALEYE_VIEWS_MATRIX", ""), "Views matrix YAML path (empty uses built-in defaults)")
	flag.StringVar(&cfg.Kinds, "kinds", "", "Comma-separated entity kinds (empty reindexes all)")
	flag.IntVar(&cfg.MaxConcurrent, "max-concurrent", 2, "Maximum concurrent kind reindexes")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	flag.Parse()

	return cfg
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func connectDatabase(connectionString string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
