package config

import (
	"os"
	"testing"
	"time"

	"github.com/thermaleye/backoffice/pkg/observability"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{name: "true string", key: "TEST_BOOL", defaultValue: false, envValue: "true", want: true},
		{name: "one string", key: "TEST_BOOL", defaultValue: false, envValue: "1", want: true},
		{name: "false string", key: "TEST_BOOL", defaultValue: true, envValue: "false", want: false},
		{name: "unset uses default", key: "TEST_BOOL_NOT_SET", defaultValue: true, envValue: "", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnvBool(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvDuration tests the getEnvDuration helper function
func TestGetEnvDuration(t *testing.T) {
	os.Setenv("TEST_DURATION", "90s")
	defer os.Unsetenv("TEST_DURATION")

	if got := getEnvDuration("TEST_DURATION", time.Minute); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v, want 90s", got)
	}
	if got := getEnvDuration("TEST_DURATION_NOT_SET", time.Minute); got != time.Minute {
		t.Errorf("getEnvDuration() default = %v, want 1m", got)
	}

	os.Setenv("TEST_DURATION_BAD", "not-a-duration")
	defer os.Unsetenv("TEST_DURATION_BAD")
	if got := getEnvDuration("TEST_DURATION_BAD", time.Minute); got != time.Minute {
		t.Errorf("getEnvDuration() on malformed value = %v, want default", got)
	}
}

// TestLoadConfigDefaults verifies defaults with a clean environment
func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Server.HealthPort != "9090" {
		t.Errorf("Server.HealthPort = %q, want 9090", cfg.Server.HealthPort)
	}
	if cfg.Search.Enabled {
		t.Error("Search.Enabled should default to false")
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("Cache.TTL = %v, want 1h", cfg.Cache.TTL)
	}
	if cfg.Cache.L1Size != 256 {
		t.Errorf("Cache.L1Size = %d, want 256", cfg.Cache.L1Size)
	}
	if cfg.Observability.LogLevel != observability.InfoLevel {
		t.Errorf("LogLevel = %v, want info", cfg.Observability.LogLevel)
	}
}

// TestLoadConfigFromEnv verifies environment overrides
func TestLoadConfigFromEnv(t *testing.T) {
	env := map[string]string{
		"THERMALEYE_PORT":           "8888",
		"THERMALEYE_SEARCH_ENABLED": "true",
		"THERMALEYE_SEARCH_URL":     "http://search:9200",
		"THERMALEYE_LOG_LEVEL":      "debug",
		"THERMALEYE_FK_CACHE_TTL":   "30m",
	}
	for k, v := range env {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range env {
			os.Unsetenv(k)
		}
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "8888" {
		t.Errorf("Server.Port = %q, want 8888", cfg.Server.Port)
	}
	if !cfg.Search.Enabled {
		t.Error("Search.Enabled = false, want true")
	}
	if cfg.Search.URL != "http://search:9200" {
		t.Errorf("Search.URL = %q", cfg.Search.URL)
	}
	if cfg.Observability.LogLevel != observability.DebugLevel {
		t.Errorf("LogLevel = %v, want debug", cfg.Observability.LogLevel)
	}
	if cfg.Cache.TTL != 30*time.Minute {
		t.Errorf("Cache.TTL = %v, want 30m", cfg.Cache.TTL)
	}
}

// TestValidate covers the failure cases
func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing port", mutate: func(c *Config) { c.Server.Port = "" }},
		{name: "missing health port", mutate: func(c *Config) { c.Server.HealthPort = "" }},
		{name: "port collision", mutate: func(c *Config) { c.Server.HealthPort = c.Server.Port }},
		{name: "missing postgres URL", mutate: func(c *Config) { c.Database.URL = "" }},
		{name: "search enabled without URL", mutate: func(c *Config) {
			c.Search.Enabled = true
			c.Search.URL = ""
		}},
		{name: "zero cache TTL", mutate: func(c *Config) { c.Cache.TTL = 0 }},
		{name: "otel enabled without endpoint", mutate: func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig()
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

// TestParseLogLevel tests log level parsing
func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  observability.LogLevel
	}{
		{"debug", observability.DebugLevel},
		{"info", observability.InfoLevel},
		{"warn", observability.WarnLevel},
		{"warning", observability.WarnLevel},
		{"error", observability.ErrorLevel},
		{"INFO", observability.InfoLevel},
		{"bogus", observability.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLogLevel(tt.input); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
