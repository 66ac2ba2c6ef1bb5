package cache

import "fmt"

// StoreKind selects the backing store built by the composition root
type StoreKind string

const (
	StoreMemory StoreKind = "memory"
	StoreTTL    StoreKind = "ttl"
	StoreRedis  StoreKind = "redis"
)

// Config holds query cache configuration
type Config struct {
	Enabled bool          `json:"enabled" yaml:"enabled" koanf:"enabled"`
	Store   StoreKind     `json:"store" yaml:"store" koanf:"store"`
	TTL     TTLConfig     `json:"ttl_store" yaml:"ttl_store" koanf:"ttl_store"`
	Logging LoggingConfig `json:"logging" yaml:"logging" koanf:"logging"`
}

// LoggingConfig controls cache logging behavior
type LoggingConfig struct {
	LogCacheHits     bool `json:"log_cache_hits" yaml:"log_cache_hits" koanf:"log_cache_hits"`
	LogCacheMisses   bool `json:"log_cache_misses" yaml:"log_cache_misses" koanf:"log_cache_misses"`
	LogInvalidations bool `json:"log_invalidations" yaml:"log_invalidations" koanf:"log_invalidations"`
}

// DefaultConfig returns an enabled in-memory cache configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Store:   StoreMemory,
		TTL:     DefaultTTLConfig(),
		Logging: LoggingConfig{
			LogCacheMisses:   false,
			LogInvalidations: true,
		},
	}
}

// Validate checks the cache configuration
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.Store {
	case StoreMemory, StoreRedis:
		return nil
	case StoreTTL:
		return c.TTL.Validate()
	default:
		return &ConfigError{Field: "store", Message: fmt.Sprintf("unknown store %q, expected memory, ttl or redis", c.Store)}
	}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "cache config error in field " + e.Field + ": " + e.Message
}
