// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	THERMALEYE_HOST="0.0.0.0"
//	THERMALEYE_PORT="8080"
//	THERMALEYE_HEALTH_PORT="9090"
//	THERMALEYE_READ_TIMEOUT="15s"
//	THERMALEYE_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	THERMALEYE_POSTGRES_URL="postgres://localhost/thermaleye"
//	THERMALEYE_POSTGRES_MAX_CONNS="20"
//
// Redis settings (FK options cache L2 + rate limiting):
//
//	THERMALEYE_REDIS_ADDR="localhost:6379"
//	THERMALEYE_REDIS_DB="0"
//
// Search settings:
//
//	THERMALEYE_SEARCH_ENABLED="true"
//	THERMALEYE_SEARCH_URL="http://localhost:9200"
//	THERMALEYE_SEARCH_INDEX_PREFIX="thermaleye"
//
// Views matrix:
//
//	THERMALEYE_VIEWS_MATRIX="/etc/thermaleye/views.yaml"  # empty uses built-in defaults
//	THERMALEYE_VIEWS_MATRIX_WATCH="true"
//
// FK options cache:
//
//	THERMALEYE_FK_CACHE_TTL="1h"
//	THERMALEYE_FK_CACHE_L1_SIZE="256"
//	THERMALEYE_FK_CACHE_REFRESH_CRON="@hourly"
//
// Observability settings:
//
//	THERMALEYE_LOG_LEVEL="info"  # debug, info, warn, error
//	THERMALEYE_METRICS_ENABLED="true"
//	THERMALEYE_OTEL_ENABLED="true"
//	THERMALEYE_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/registry: Consumes the views matrix path
//   - pkg/observability: Uses observability configuration
package config
