package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/StrathCole/quote-consensus/pkg/server/sources"
)

// Validate checks configuration for errors
func Validate(cfg *Config) error {
	if err := validateSources(cfg.Sources); err != nil {
		return err
	}

	if err := validateEngineConfig(&cfg.Engine, len(cfg.EnabledSources())); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if _, err := cfg.Schedule(); err != nil {
		return fmt.Errorf("market config: %w: %w", ErrInvalidMarket, err)
	}

	if err := validateReliabilityConfig(&cfg.Reliability); err != nil {
		return fmt.Errorf("reliability config: %w", err)
	}

	if cfg.Server.CacheTTL < 0 {
		return fmt.Errorf("server config: %w", ErrInvalidCacheTTL)
	}

	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func validateSources(list []SourceConfig) error {
	if len(list) == 0 {
		return ErrNoSourcesConfigured
	}

	seen := make(map[string]bool)
	for i, source := range list {
		if err := validateSourceConfig(&source); err != nil {
			return fmt.Errorf("source %d (%s.%s): %w", i, source.Type, source.Name, err)
		}
		if !source.Enabled {
			continue
		}
		if seen[source.Name] {
			return fmt.Errorf("source %d: %w: %s", i, ErrDuplicateSource, source.Name)
		}
		seen[source.Name] = true
	}
	if len(seen) == 0 {
		return ErrNoSourcesEnabled
	}
	return nil
}

func validateSourceConfig(cfg *SourceConfig) error {
	if cfg.Type == "" {
		return ErrSourceTypeRequired
	}
	if strings.ToLower(cfg.Type) != string(sources.SourceTypeEquity) {
		return fmt.Errorf("%w: %s (must be %q)", ErrInvalidSourceType, cfg.Type, sources.SourceTypeEquity)
	}
	if cfg.Name == "" {
		return ErrSourceNameRequired
	}
	age, err := sources.GetDuration(cfg.Config, "max_quote_age", 0)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSourceConfig, err)
	}
	if age < 0 {
		return fmt.Errorf("%w: max_quote_age must be >= 0", ErrInvalidSourceConfig)
	}
	return nil
}

func validateEngineConfig(cfg *EngineConfig, enabled int) error {
	if cfg.PerSourceTimeout <= 0 {
		return fmt.Errorf("%w: per_source_timeout must be positive", ErrInvalidEngine)
	}
	if !(cfg.OutlierTolerance > 0 && cfg.OutlierTolerance < 1) {
		return fmt.Errorf("%w: outlier_tolerance must be in (0,1), got %v", ErrInvalidEngine, cfg.OutlierTolerance)
	}
	if cfg.MinQuorum < 1 {
		return fmt.Errorf("%w: min_quorum must be >= 1, got %d", ErrInvalidEngine, cfg.MinQuorum)
	}
	if cfg.MinQuorum > enabled {
		return fmt.Errorf("%w: %d > %d", ErrQuorumUnreachable, cfg.MinQuorum, enabled)
	}
	if cfg.SpreadCap <= 0 {
		return fmt.Errorf("%w: spread_cap must be positive, got %v", ErrInvalidEngine, cfg.SpreadCap)
	}
	if cfg.MaxQuoteAge < 0 {
		return fmt.Errorf("%w: max_quote_age must be >= 0", ErrInvalidEngine)
	}
	if cfg.Retries < 0 {
		return fmt.Errorf("%w: retries must be >= 0, got %d", ErrInvalidEngine, cfg.Retries)
	}
	return nil
}

func validateReliabilityConfig(cfg *ReliabilityConfig) error {
	backend := strings.ToLower(cfg.Backend)
	if !slices.Contains([]string{BackendNone, BackendMemory, BackendRedis}, backend) {
		return fmt.Errorf("%w: %s (must be 'none', 'memory', or 'redis')", ErrInvalidReliabilityBackend, cfg.Backend)
	}
	if backend == BackendRedis && cfg.Redis.Addr == "" {
		return ErrRedisAddrRequired
	}
	return nil
}

func validateLoggingConfig(cfg *LoggingConfig) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, strings.ToLower(cfg.Level)) {
		return fmt.Errorf("%w: %s (must be one of: %s)", ErrInvalidLogLevel, cfg.Level, strings.Join(validLevels, ", "))
	}

	format := strings.ToLower(cfg.Format)
	if format != "json" && format != "text" {
		return fmt.Errorf("%w: %s (must be 'json' or 'text')", ErrInvalidLogFormat, cfg.Format)
	}

	return nil
}
