// Package config provides configuration loading and validation for quote-consensus.
package config

import "errors"

var (
	// ErrNoSourcesConfigured indicates that no price sources are configured.
	ErrNoSourcesConfigured = errors.New("at least one price source must be configured")
	// ErrNoSourcesEnabled indicates that no sources are enabled.
	ErrNoSourcesEnabled = errors.New("no sources enabled")
	// ErrSourceTypeRequired indicates that source type is required.
	ErrSourceTypeRequired = errors.New("source type is required")
	// ErrSourceNameRequired indicates that source name is required.
	ErrSourceNameRequired = errors.New("source name is required")
	// ErrInvalidSourceType indicates that the source type is invalid.
	ErrInvalidSourceType = errors.New("invalid source type")
	// ErrInvalidSourceConfig indicates an unusable key in a source's config map.
	ErrInvalidSourceConfig = errors.New("invalid source config")
	// ErrDuplicateSource indicates two enabled sources sharing a name.
	ErrDuplicateSource = errors.New("duplicate source name")
	// ErrInvalidEngine indicates out-of-range engine options.
	ErrInvalidEngine = errors.New("invalid engine options")
	// ErrQuorumUnreachable indicates a min_quorum larger than the enabled source count.
	ErrQuorumUnreachable = errors.New("min_quorum exceeds enabled sources")
	// ErrInvalidMarket indicates an unusable market schedule.
	ErrInvalidMarket = errors.New("invalid market schedule")
	// ErrInvalidReliabilityBackend indicates an unknown reliability backend.
	ErrInvalidReliabilityBackend = errors.New("invalid reliability backend")
	// ErrRedisAddrRequired indicates the redis backend without an address.
	ErrRedisAddrRequired = errors.New("reliability.redis.addr must be specified")
	// ErrInvalidCacheTTL indicates a negative cache TTL.
	ErrInvalidCacheTTL = errors.New("cache_ttl must be >= 0")
	// ErrInvalidLogLevel indicates that the log level is invalid.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat indicates that the log format is invalid.
	ErrInvalidLogFormat = errors.New("invalid log format")
)
