package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidEncoderProviders lists the known encoder backend names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidEncoderProviders = []string{"bertd", "openai"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Parsing.CacheSize <= 0 {
		cfg.Parsing.CacheSize = 1000
	}
	if cfg.Parsing.CacheTTL <= 0 {
		cfg.Parsing.CacheTTL = Duration(time.Hour)
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "bertd"
	}
	if cfg.Embedding.MaxLength <= 0 {
		cfg.Embedding.MaxLength = 512
	}
	if cfg.Embedding.BatchSize <= 0 {
		cfg.Embedding.BatchSize = 32
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = 768
	}
	if cfg.Embedding.PoolingStrategy == "" {
		cfg.Embedding.PoolingStrategy = PoolingMean
	}
	if cfg.Embedding.CacheSize <= 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Embedding.CacheTTL <= 0 {
		cfg.Embedding.CacheTTL = Duration(time.Hour)
	}

	if cfg.Monitor.Interval <= 0 {
		cfg.Monitor.Interval = Duration(60 * time.Second)
	}
	if cfg.Monitor.FailureThreshold <= 0 {
		cfg.Monitor.FailureThreshold = 3
	}
	if cfg.Monitor.MaxErrorCount <= 0 {
		cfg.Monitor.MaxErrorCount = 10
	}
	if cfg.Monitor.MinCacheHitRate <= 0 {
		cfg.Monitor.MinCacheHitRate = 0.5
	}
	if cfg.Monitor.MaxAvgProcessingTime <= 0 {
		cfg.Monitor.MaxAvgProcessingTime = Duration(5 * time.Second)
	}
	if cfg.Monitor.HistorySize <= 0 {
		cfg.Monitor.HistorySize = 1000
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Embedding
	if cfg.Embedding.Dimension < 0 {
		errs = append(errs, fmt.Errorf("embedding.dimension %d must be positive", cfg.Embedding.Dimension))
	}
	if !cfg.Embedding.PoolingStrategy.IsValid() {
		errs = append(errs, fmt.Errorf("embedding.pooling_strategy %q is invalid; valid values: mean, cls, max", cfg.Embedding.PoolingStrategy))
	}
	if cfg.Embedding.Provider != "" && !slices.Contains(ValidEncoderProviders, cfg.Embedding.Provider) {
		slog.Warn("unknown encoder provider — may be a typo",
			"provider", cfg.Embedding.Provider,
			"known", ValidEncoderProviders,
		)
	}
	if cfg.Embedding.Provider == "openai" && cfg.Embedding.APIKey == "" {
		errs = append(errs, errors.New("embedding.api_key is required when embedding.provider is openai"))
	}

	// Availability warnings: an unreachable backend is not a configuration
	// error because fallback mode covers it, but a silent typo would be.
	if cfg.Parsing.BaseURL == "" && !cfg.Parsing.FallbackEnabled() {
		errs = append(errs, errors.New("parsing.base_url is empty and parsing.enable_fallback is false; the parsing service would have no working path"))
	}
	if cfg.Embedding.Provider == "bertd" && cfg.Embedding.BaseURL == "" && !cfg.Embedding.FallbackEnabled() {
		errs = append(errs, errors.New("embedding.base_url is empty and embedding.enable_fallback is false; the embedding service would have no working path"))
	}

	// Monitor
	if cfg.Monitor.MinCacheHitRate > 1 {
		errs = append(errs, fmt.Errorf("monitor.min_cache_hit_rate %.2f is out of range [0, 1]", cfg.Monitor.MinCacheHitRate))
	}

	if cfg.MemoryIndex.PostgresDSN == "" {
		slog.Debug("memory_index.postgres_dsn is empty; semantic index operations are disabled")
	}

	return errors.Join(errs...)
}
