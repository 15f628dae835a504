package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure
type Config struct {
	Engine      EngineConfig      `yaml:"engine"`
	Market      MarketConfig      `yaml:"market"`
	Sources     []SourceConfig    `yaml:"sources"`
	Reliability ReliabilityConfig `yaml:"reliability"`
	Server      ServerConfig      `yaml:"server"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// EngineConfig holds the default options of every consensus request
type EngineConfig struct {
	PerSourceTimeout Duration `yaml:"per_source_timeout"`
	OutlierTolerance float64  `yaml:"outlier_tolerance"`
	MinQuorum        int      `yaml:"min_quorum"`
	SpreadCap        float64  `yaml:"spread_cap"`
	MaxQuoteAge      Duration `yaml:"max_quote_age"`
	Retries          int      `yaml:"retries"`
}

// MarketConfig describes the trading session used when providers report no state
type MarketConfig struct {
	Timezone string `yaml:"timezone"`
	Open     string `yaml:"open"`
	Close    string `yaml:"close"`
}

// SourceConfig configures a price source
type SourceConfig struct {
	Type    string                 `yaml:"type"`
	Name    string                 `yaml:"name"`
	Enabled bool                   `yaml:"enabled"`
	Config  map[string]interface{} `yaml:"config"`
}

// ReliabilityConfig selects where source history is kept
type ReliabilityConfig struct {
	// Backend is one of none, memory or redis.
	Backend   string      `yaml:"backend"`
	Weighting bool        `yaml:"weighting"`
	Redis     RedisConfig `yaml:"redis"`
}

// RedisConfig configures the redis reliability backend
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	HTTP     HTTPConfig `yaml:"http"`
	CacheTTL Duration   `yaml:"cache_ttl"`
}

// HTTPConfig configures the HTTP server
type HTTPConfig struct {
	Addr         string   `yaml:"addr"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Duration is a wrapper around time.Duration for YAML parsing
type Duration time.Duration

// UnmarshalYAML accepts Go duration strings ("5s") or integer milliseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar, got %q", value.Value)
	}
	switch value.Tag {
	case "!!null":
		return nil
	case "!!int":
		var ms int64
		if err := value.Decode(&ms); err != nil {
			return err
		}
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	td, err := time.ParseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = Duration(td)
	return nil
}

// MarshalYAML renders the duration in Go notation.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ToDuration converts Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}
