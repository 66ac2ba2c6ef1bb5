// Package orm4go is an ActiveRecord style persistence layer: table metadata, association
// resolution, a group invalidated query cache and record lifecycle with optimistic locking.
//
// App is the composition root. It owns the connection pool, the metadata registry, the
// query cache and the validators, and hands out repository Sessions over them.
package orm4go

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ammar0144/orm4go/pkg/cache"
	"github.com/ammar0144/orm4go/pkg/config"
	"github.com/ammar0144/orm4go/pkg/db"
	"github.com/ammar0144/orm4go/pkg/meta"
	"github.com/ammar0144/orm4go/pkg/redis"
	"github.com/ammar0144/orm4go/pkg/repository"
	"github.com/ammar0144/orm4go/pkg/validation"
)

// Config represents the complete configuration
type Config = config.Config

// Session is a unit of work over the application database
type Session = repository.Session

// App holds the shared state every Session uses. It is safe for concurrent use.
type App struct {
	config     *Config
	logger     *slog.Logger
	db         *db.Manager
	ownsDB     bool
	registry   *meta.Registry
	resolver   *meta.Resolver
	cache      *cache.QueryCache
	redis      *redis.Manager
	validators *validation.Set
}

type options struct {
	logger     *slog.Logger
	specs      []meta.TableSpec
	store      cache.Store
	validators *validation.Set
}

// Option configures Open and New
type Option func(*options)

// WithLogger sets the logger of every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTables registers specs in addition to the configured tables.
func WithTables(specs ...meta.TableSpec) Option {
	return func(o *options) { o.specs = append(o.specs, specs...) }
}

// WithStore replaces the configured cache store.
func WithStore(s cache.Store) Option {
	return func(o *options) { o.store = s }
}

// WithValidators adds validators to the configured ones.
func WithValidators(v *validation.Set) Option {
	return func(o *options) { o.validators = v }
}

// Open connects to the configured database and builds the App. Close releases the pool.
func Open(ctx context.Context, cfg *Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	o := collect(opts)

	mgr, err := db.NewManager(&cfg.Database, db.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	app, err := build(ctx, mgr, cfg, o)
	if err != nil {
		_ = mgr.Close()
		return nil, err
	}
	app.ownsDB = true
	return app, nil
}

// New builds the App over an existing manager, which the caller keeps ownership of.
func New(ctx context.Context, mgr *db.Manager, cfg *Config, opts ...Option) (*App, error) {
	if mgr == nil {
		return nil, fmt.Errorf("database manager cannot be nil")
	}
	if cfg == nil {
		cfg = config.Default()
		cfg.Database = *mgr.Config()
	}
	return build(ctx, mgr, cfg, collect(opts))
}

func collect(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}

func build(ctx context.Context, mgr *db.Manager, cfg *Config, o *options) (*App, error) {
	app := &App{config: cfg, logger: o.logger, db: mgr}

	app.registry = meta.NewRegistry(meta.WithLogger(o.logger))
	specs, err := cfg.Specs()
	if err != nil {
		return nil, err
	}
	if err := app.registry.RegisterAll(append(specs, o.specs...)); err != nil {
		return nil, err
	}
	if cfg.Discover.Enabled {
		discovered, err := meta.Discover(ctx, mgr.Conn(), mgr.Dialect(), cfg.Discover.Options())
		if err != nil {
			return nil, fmt.Errorf("schema discovery failed: %w", err)
		}
		// declared tables were registered first and keep their metadata
		if err := app.registry.RegisterAll(discovered); err != nil {
			return nil, err
		}
		o.logger.Info("schema discovered", "tables", len(discovered))
	}
	app.resolver = meta.NewResolver(app.registry)

	app.validators, err = cfg.Validators()
	if err != nil {
		return nil, err
	}
	if o.validators != nil {
		for _, t := range app.registry.Tables() {
			app.validators.Add(t.Name(), o.validators.For(t.Name())...)
		}
	}

	if cfg.Cache.Enabled {
		store := o.store
		if store == nil {
			if store, err = app.newStore(ctx); err != nil {
				return nil, err
			}
		}
		app.cache = cache.New(store,
			cache.WithDependencies(app.registry),
			cache.WithLogger(o.logger, cfg.Cache.Logging))
	}

	o.logger.Info("orm4go ready",
		"driver", mgr.Dialect(),
		"tables", len(app.registry.Tables()),
		"cache", cfg.Cache.Enabled)
	return app, nil
}

func (a *App) newStore(ctx context.Context) (cache.Store, error) {
	switch a.config.Cache.Store {
	case cache.StoreTTL:
		return cache.NewTTLStore(a.config.Cache.TTL)
	case cache.StoreRedis:
		m, err := redis.NewManager(&a.config.Redis)
		if err != nil {
			return nil, err
		}
		if err := m.Ping(ctx); err != nil {
			_ = m.Close()
			return nil, err
		}
		a.redis = m
		return m, nil
	default:
		return cache.NewMemoryStore(), nil
	}
}

// Session returns a new session over the pool. opts are applied after the App's defaults.
func (a *App) Session(opts ...repository.Option) *Session {
	base := []repository.Option{
		repository.WithTransactor(a.db),
		repository.WithValidators(a.validators),
		repository.WithLogger(a.logger),
	}
	if a.cache != nil {
		base = append(base, repository.WithCache(a.cache))
	}
	return repository.NewSession(a.db.Conn(), a.resolver, append(base, opts...)...)
}

// Config returns the configuration the App was built with.
func (a *App) Config() *Config { return a.config }

// DB returns the connection manager.
func (a *App) DB() *db.Manager { return a.db }

// Registry returns the table metadata registry.
func (a *App) Registry() *meta.Registry { return a.registry }

// Resolver returns the association resolver.
func (a *App) Resolver() *meta.Resolver { return a.resolver }

// Cache returns the query cache, nil when caching is disabled.
func (a *App) Cache() *cache.QueryCache { return a.cache }

// Validators returns the validator set used by SaveIt.
func (a *App) Validators() *validation.Set { return a.validators }

// Close releases the Redis client and, when Open created it, the database pool.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.ownsDB {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
