// Package config loads orm4go configuration.
//
// Sources are merged in increasing precedence: built-in defaults, a YAML file, ORM4GO_
// environment variables and explicitly set command line flags. Nested keys in environment
// variables are separated by a double underscore, e.g. ORM4GO_DATABASE__MAX_OPEN_CONNS sets
// database.max_open_conns.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/ammar0144/orm4go/pkg/cache"
	"github.com/ammar0144/orm4go/pkg/db"
	"github.com/ammar0144/orm4go/pkg/meta"
	"github.com/ammar0144/orm4go/pkg/redis"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "ORM4GO_"

// Config is the complete orm4go configuration
type Config struct {
	Database db.Config      `koanf:"database"`
	Cache    cache.Config   `koanf:"cache"`
	Redis    redis.Config   `koanf:"redis"`
	Log      LogConfig      `koanf:"log"`
	Discover DiscoverConfig `koanf:"discover"`

	// Tables are registered before discovery runs, so declared associations win.
	Tables []TableConfig `koanf:"tables"`
}

// LogConfig selects the application logger
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text or json
}

// DiscoverConfig controls schema discovery at startup
type DiscoverConfig struct {
	Enabled       bool     `koanf:"enabled"`
	Tables        []string `koanf:"tables"`
	VersionColumn string   `koanf:"version_column"`
	Cacheable     bool     `koanf:"cacheable"`
	KeyStrategy   string   `koanf:"key_strategy"`
}

// Options converts the discovery settings.
func (d DiscoverConfig) Options() meta.DiscoverOptions {
	return meta.DiscoverOptions{
		Tables:        d.Tables,
		VersionColumn: d.VersionColumn,
		Cacheable:     d.Cacheable,
		KeyStrategy:   meta.KeyStrategy(d.KeyStrategy),
	}
}

// Default returns the configuration used when no source sets a value
func Default() *Config {
	cfg := &Config{
		Database: *db.DefaultConfig(),
		Cache:    *cache.DefaultConfig(),
		Redis:    *redis.DefaultConfig(),
	}
	cfg.Redis.Enabled = false
	return cfg
}

// flagKeys maps the flags registered by RegisterFlags to configuration keys
var flagKeys = map[string]string{
	"driver":      "database.driver",
	"database":    "database.database",
	"host":        "database.host",
	"port":        "database.port",
	"user":        "database.username",
	"password":    "database.password",
	"cache":       "cache.enabled",
	"cache-store": "cache.store",
	"redis-host":  "redis.host",
	"redis-port":  "redis.port",
	"discover":    "discover.enabled",
	"log-level":   "log.level",
	"log-format":  "log.format",
}

// RegisterFlags defines the flags Load understands on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("driver", "", "database driver: mysql, postgres or sqlite")
	fs.String("database", "", "database name, or file path for sqlite")
	fs.String("host", "", "database host")
	fs.Int("port", 0, "database port")
	fs.String("user", "", "database user")
	fs.String("password", "", "database password")
	fs.Bool("cache", true, "enable the query cache")
	fs.String("cache-store", "", "query cache store: memory, ttl or redis")
	fs.String("redis-host", "", "redis host for the redis cache store")
	fs.Int("redis-port", 0, "redis port for the redis cache store")
	fs.Bool("discover", false, "discover table metadata from the database schema")
	fs.String("log-level", "", "log level: debug, info, warn or error")
	fs.String("log-format", "", "log format: text or json")
}

// Load reads the configuration. path may be empty to skip the file, flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults not carried by the package default configs
	if err := k.Load(confmap.Provider(map[string]any{
		"log.level":               "info",
		"log.format":              "text",
		"discover.version_column": meta.DefaultVersionColumn,
		"discover.key_strategy":   string(meta.KeyAuto),
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// 3. Environment: ORM4GO_CACHE__STORE -> cache.store
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags that were explicitly set
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section the configuration will use.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if c.Cache.Enabled && c.Cache.Store == cache.StoreRedis {
		c.Redis.Enabled = true
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log: unknown format %q, expected text or json", c.Log.Format)
	}
	for _, t := range c.Tables {
		if _, err := t.Spec(); err != nil {
			return err
		}
	}
	return nil
}

// Specs converts the declared tables.
func (c *Config) Specs() ([]meta.TableSpec, error) {
	specs := make([]meta.TableSpec, 0, len(c.Tables))
	for _, t := range c.Tables {
		spec, err := t.Spec()
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// NewLogger builds the application logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log: unknown level %q", s)
	}
	return level, nil
}
