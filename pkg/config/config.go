package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/StrathCole/quote-consensus/pkg/server/aggregator"
	"github.com/StrathCole/quote-consensus/pkg/server/engine"
	"github.com/StrathCole/quote-consensus/pkg/server/market"
	"github.com/StrathCole/quote-consensus/pkg/server/sources"
)

// Reliability backends
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"

	// DefaultCacheTTL is how long the API keeps a symbol's result.
	DefaultCacheTTL = 5 * time.Second
)

// Load loads configuration from YAML file and environment variables.
// A .env file next to the config is loaded first; variables already set win.
func Load(path string) (*Config, error) {
	// Validate and sanitize path
	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	envPath := filepath.Join(filepath.Dir(absPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
	}

	// Read config file
	data, err := os.ReadFile(absPath) // #nosec G304 -- Path sanitized with filepath.Clean and filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse expands environment variables in data and decodes it.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	// Durations where zero disables a feature are seeded before decoding,
	// so an explicit 0 in the file is kept.
	cfg := Config{
		Engine: EngineConfig{MaxQuoteAge: Duration(sources.DefaultMaxQuoteAge)},
		Server: ServerConfig{CacheTTL: Duration(DefaultCacheTTL)},
	}
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	// Engine defaults
	if cfg.Engine.PerSourceTimeout == 0 {
		cfg.Engine.PerSourceTimeout = Duration(engine.DefaultPerSourceTimeout)
	}
	if cfg.Engine.OutlierTolerance == 0 {
		cfg.Engine.OutlierTolerance = aggregator.DefaultOutlierTolerance
	}
	if cfg.Engine.MinQuorum == 0 {
		cfg.Engine.MinQuorum = engine.DefaultMinQuorum
	}
	if cfg.Engine.SpreadCap == 0 {
		cfg.Engine.SpreadCap = aggregator.DefaultSpreadCap
	}

	// Market defaults
	if cfg.Market.Timezone == "" {
		cfg.Market.Timezone = market.DefaultTimezone
	}
	if cfg.Market.Open == "" {
		cfg.Market.Open = market.DefaultOpen
	}
	if cfg.Market.Close == "" {
		cfg.Market.Close = market.DefaultClose
	}

	// Reliability defaults
	if cfg.Reliability.Backend == "" {
		cfg.Reliability.Backend = BackendMemory
	}

	// Server defaults
	if cfg.Server.HTTP.Addr == "" {
		cfg.Server.HTTP.Addr = ":8080"
	}
	if cfg.Server.HTTP.ReadTimeout == 0 {
		cfg.Server.HTTP.ReadTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.HTTP.WriteTimeout == 0 {
		cfg.Server.HTTP.WriteTimeout = Duration(30 * time.Second)
	}

	// Metrics defaults
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9091"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// EnabledSources returns the enabled sources in configured order.
func (c *Config) EnabledSources() []SourceConfig {
	var enabled []SourceConfig
	for _, s := range c.Sources {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	return enabled
}

// EngineOptions maps the engine section onto request options. A source's own
// max_quote_age overrides the engine value for that source.
func (c *Config) EngineOptions() engine.Options {
	var names []string
	var ages map[string]time.Duration
	for _, s := range c.EnabledSources() {
		names = append(names, s.Name)
		if _, ok := s.Config["max_quote_age"]; !ok {
			continue
		}
		if age, err := sources.GetDuration(s.Config, "max_quote_age", 0); err == nil {
			if ages == nil {
				ages = make(map[string]time.Duration)
			}
			ages[s.Name] = age
		}
	}
	return engine.Options{
		Sources:              names,
		PerSourceTimeout:     c.Engine.PerSourceTimeout.ToDuration(),
		OutlierTolerance:     c.Engine.OutlierTolerance,
		MinQuorum:            c.Engine.MinQuorum,
		SpreadCap:            c.Engine.SpreadCap,
		MaxQuoteAge:          c.Engine.MaxQuoteAge.ToDuration(),
		SourceMaxQuoteAge:    ages,
		Retries:              c.Engine.Retries,
		ReliabilityWeighting: c.Reliability.Weighting,
	}
}

// Schedule builds the configured market schedule.
func (c *Config) Schedule() (*market.Schedule, error) {
	return market.NewSchedule(c.Market.Timezone, c.Market.Open, c.Market.Close)
}

// Key returns the registry key of the source, e.g. "equity.yahoo".
func (sc *SourceConfig) Key() string {
	return strings.ToLower(sc.Type) + "." + sc.Name
}
