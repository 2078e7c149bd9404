package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Ratewatch RatewatchConfig `yaml:"ratewatch"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Poller    PollerConfig    `yaml:"poller"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type RatewatchConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type UpstreamConfig struct {
	FeedsURL       string          `yaml:"feeds_url"`
	InstrumentsURL string          `yaml:"instruments_url"`
	TimeoutMs      int             `yaml:"timeout_ms"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type PollerConfig struct {
	IntervalMs    int  `yaml:"interval_ms"`
	HistoryLimit  int  `yaml:"history_limit"`
	ClearOnDetail bool `yaml:"clear_on_detail"`
}

type DashboardConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Address           string `yaml:"address"`
	RefreshIntervalMs int    `yaml:"refresh_interval_ms"`
	LogHistory        int    `yaml:"log_history"`
	MetricsHistory    int    `yaml:"metrics_history"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Poller: PollerConfig{
			IntervalMs:   1000,
			HistoryLimit: 100,
		},
		Upstream: UpstreamConfig{
			TimeoutMs: 10000,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override upstream endpoints from environment variables if available
	if v := os.Getenv("FEEDS_URL"); v != "" {
		config.Upstream.FeedsURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("INSTRUMENTS_URL"); v != "" {
		config.Upstream.InstrumentsURL = strings.TrimSpace(v)
	}

	config.Upstream.FeedsURL = strings.TrimSpace(config.Upstream.FeedsURL)
	config.Upstream.InstrumentsURL = strings.TrimSpace(config.Upstream.InstrumentsURL)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Ratewatch.Name == "" {
		return fmt.Errorf("ratewatch.name is required")
	}

	if cfg.Ratewatch.Version == "" {
		return fmt.Errorf("ratewatch.version is required")
	}

	if cfg.Upstream.FeedsURL == "" {
		return fmt.Errorf("upstream.feeds_url is required")
	}
	if cfg.Upstream.InstrumentsURL == "" {
		return fmt.Errorf("upstream.instruments_url is required")
	}
	if !isValidEndpoint(cfg.Upstream.FeedsURL) {
		return fmt.Errorf("upstream.feeds_url '%s' is invalid", cfg.Upstream.FeedsURL)
	}
	if !isValidEndpoint(cfg.Upstream.InstrumentsURL) {
		return fmt.Errorf("upstream.instruments_url '%s' is invalid", cfg.Upstream.InstrumentsURL)
	}

	if cfg.Upstream.TimeoutMs <= 0 {
		return fmt.Errorf("upstream.timeout_ms must be greater than 0")
	}

	if cfg.Poller.IntervalMs <= 0 {
		return fmt.Errorf("poller.interval_ms must be greater than 0")
	}
	if cfg.Poller.HistoryLimit <= 0 {
		return fmt.Errorf("poller.history_limit must be greater than 0")
	}

	return nil
}

func isValidEndpoint(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}
