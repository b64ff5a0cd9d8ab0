// Package common provides shared utilities for goshin
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for goshin.
type Config struct {
	Environment string           `toml:"environment"`
	Storage     StorageConfig    `toml:"storage"`
	Engine      EngineConfig     `toml:"engine"`
	Listing     ListingConfig    `toml:"listing"`
	Dispatcher  DispatcherConfig `toml:"dispatcher"`
	Poller      PollerConfig     `toml:"poller"`
	Logging     LoggingConfig    `toml:"logging"`
}

// StorageConfig holds SurrealDB connection configuration.
type StorageConfig struct {
	Address   string `toml:"address"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
}

// EngineConfig holds the external Go-analysis engine's connection details.
type EngineConfig struct {
	BaseURL     string `toml:"base_url"`
	AnalyzePath string `toml:"analyze_path"`
	HealthPath  string `toml:"health_path"`
}

// ListingConfig holds the external match-listing API's connection details.
type ListingConfig struct {
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"`
}

// DispatcherConfig holds the C4 analysis dispatcher's tunables (spec §4.4/§6).
type DispatcherConfig struct {
	WindowSize        int    `toml:"window_size"`
	RequestTimeout    string `toml:"request_timeout"`
	MaxVisits         int    `toml:"max_visits"`
	PreemptThreshold  int    `toml:"preempt_threshold"`
}

// GetRequestTimeout parses and returns the per-task engine request timeout.
func (c *DispatcherConfig) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// PollerConfig holds the C3 move poller's tunables.
type PollerConfig struct {
	Interval string `toml:"interval"`
	Enabled  bool   `toml:"enabled"`
}

// GetInterval parses and returns the poll interval.
func (c *PollerConfig) GetInterval() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `toml:"level" mapstructure:"level"`
}

// NewDefaultConfig returns a Config with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Address:   "ws://127.0.0.1:8000/rpc",
			Username:  "root",
			Password:  "root",
			Namespace: "goshin",
			Database:  "goshin",
		},
		Engine: EngineConfig{
			BaseURL:     "http://127.0.0.1:8600",
			AnalyzePath: "/analyze",
			HealthPath:  "/health",
		},
		Listing: ListingConfig{
			RateLimit: 5,
		},
		Dispatcher: DispatcherConfig{
			WindowSize:       16,
			RequestTimeout:   "60s",
			MaxVisits:        500,
			PreemptThreshold: 500,
		},
		Poller: PollerConfig{
			Interval: "3s",
			Enabled:  true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies GOSHIN_* environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("GOSHIN_ENV"); env != "" {
		config.Environment = env
	}

	if v := os.Getenv("GOSHIN_STORAGE_ADDRESS"); v != "" {
		config.Storage.Address = v
	}
	if v := os.Getenv("GOSHIN_STORAGE_USERNAME"); v != "" {
		config.Storage.Username = v
	}
	if v := os.Getenv("GOSHIN_STORAGE_PASSWORD"); v != "" {
		config.Storage.Password = v
	}
	if v := os.Getenv("GOSHIN_STORAGE_NAMESPACE"); v != "" {
		config.Storage.Namespace = v
	}
	if v := os.Getenv("GOSHIN_STORAGE_DATABASE"); v != "" {
		config.Storage.Database = v
	}

	if v := os.Getenv("GOSHIN_ENGINE_BASE_URL"); v != "" {
		config.Engine.BaseURL = v
	}
	if v := os.Getenv("GOSHIN_ENGINE_ANALYZE_PATH"); v != "" {
		config.Engine.AnalyzePath = v
	}
	if v := os.Getenv("GOSHIN_ENGINE_HEALTH_PATH"); v != "" {
		config.Engine.HealthPath = v
	}

	if v := os.Getenv("GOSHIN_LISTING_BASE_URL"); v != "" {
		config.Listing.BaseURL = v
	}
	if v := os.Getenv("GOSHIN_LISTING_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Listing.RateLimit = n
		}
	}

	if v := os.Getenv("GOSHIN_DISPATCHER_WINDOW_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Dispatcher.WindowSize = n
		}
	}
	if v := os.Getenv("GOSHIN_DISPATCHER_REQUEST_TIMEOUT"); v != "" {
		config.Dispatcher.RequestTimeout = v
	}
	if v := os.Getenv("GOSHIN_DISPATCHER_MAX_VISITS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Dispatcher.MaxVisits = n
		}
	}
	if v := os.Getenv("GOSHIN_DISPATCHER_PREEMPT_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Dispatcher.PreemptThreshold = n
		}
	}

	if v := os.Getenv("GOSHIN_POLLER_INTERVAL"); v != "" {
		config.Poller.Interval = v
	}
	if v := os.Getenv("GOSHIN_POLLER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Poller.Enabled = b
		}
	}

	if v := os.Getenv("GOSHIN_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ValidateRequired returns the names of required fields that are unset.
func (c *Config) ValidateRequired() []string {
	var missing []string
	if c.Listing.BaseURL == "" {
		missing = append(missing, "listing.base_url")
	}
	if c.Storage.Address == "" {
		missing = append(missing, "storage.address")
	}
	if c.Engine.BaseURL == "" {
		missing = append(missing, "engine.base_url")
	}
	return missing
}
