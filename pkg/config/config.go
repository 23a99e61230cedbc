package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/thermaleye/backoffice/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Search engine configuration
	Search SearchConfig

	// Entity configuration registry
	Registry RegistryConfig

	// FK options cache
	Cache CacheConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// RedisConfig holds Redis settings for the FK options cache and the
// distributed rate limiter
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SearchConfig holds external search engine settings. Disabled means every
// search takes the database path.
type SearchConfig struct {
	Enabled     bool
	URL         string
	IndexPrefix string
	Timeout     time.Duration
}

// RegistryConfig holds the views matrix source. An empty path uses the
// built-in defaults.
type RegistryConfig struct {
	ViewsMatrixPath string
	WatchEnabled    bool
}

// CacheConfig holds FK options cache settings
type CacheConfig struct {
	TTL         time.Duration
	L1Size      int
	RefreshCron string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Search:        loadSearchConfig(),
		Registry:      loadRegistryConfig(),
		Cache:         loadCacheConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("THERMALEYE_HOST", "0.0.0.0"),
		Port:            getEnv("THERMALEYE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("THERMALEYE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("THERMALEYE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("THERMALEYE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("THERMALEYE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("THERMALEYE_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:          getEnv("THERMALEYE_POSTGRES_URL", "postgres://localhost/thermaleye?sslmode=disable"),
		MaxOpenConns: getEnvInt("THERMALEYE_POSTGRES_MAX_CONNS", 20),
		MaxIdleConns: getEnvInt("THERMALEYE_POSTGRES_IDLE_CONNS", 5),
		ConnLifetime: getEnvDuration("THERMALEYE_POSTGRES_CONN_LIFETIME", 30*time.Minute),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     getEnv("THERMALEYE_REDIS_ADDR", "localhost:6379"),
		Password: getEnv("THERMALEYE_REDIS_PASSWORD", ""),
		DB:       getEnvInt("THERMALEYE_REDIS_DB", 0),
	}
}

func loadSearchConfig() SearchConfig {
	return SearchConfig{
		Enabled:     getEnvBool("THERMALEYE_SEARCH_ENABLED", false),
		URL:         getEnv("THERMALEYE_SEARCH_URL", "http://localhost:9200"),
		IndexPrefix: getEnv("THERMALEYE_SEARCH_INDEX_PREFIX", "thermaleye"),
		Timeout:     getEnvDuration("THERMALEYE_SEARCH_TIMEOUT", 5*time.Second),
	}
}

func loadRegistryConfig() RegistryConfig {
	return RegistryConfig{
		ViewsMatrixPath: getEnv("THERMALEYE_VIEWS_MATRIX", ""),
		WatchEnabled:    getEnvBool("THERMALEYE_VIEWS_MATRIX_WATCH", true),
	}
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:         getEnvDuration("THERMALEYE_FK_CACHE_TTL", time.Hour),
		L1Size:      getEnvInt("THERMALEYE_FK_CACHE_L1_SIZE", 256),
		RefreshCron: getEnv("THERMALEYE_FK_CACHE_REFRESH_CRON", "@hourly"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("THERMALEYE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("THERMALEYE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("THERMALEYE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("THERMALEYE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("THERMALEYE_OTEL_SERVICE_NAME", "thermaleye-backoffice"),
		OTelServiceVersion: getEnv("THERMALEYE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("THERMALEYE_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Search.Enabled && c.Search.URL == "" {
		return fmt.Errorf("search URL is required when search is enabled")
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("FK cache TTL must be positive")
	}
	if c.Cache.L1Size <= 0 {
		return fmt.Errorf("FK cache L1 size must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
