package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithLogger sets the logger handed to every Conn.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager opens a connection pool for config.
//
// MySQL connections are opened through GORM so transactions run on its ConnPool; Postgres
// uses the pgx stdlib driver and SQLite the pure Go modernc driver.
func NewManager(config *Config, opts ...ManagerOption) (*Manager, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	m := &Manager{config: config, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(m)
	}

	dsn, err := config.GetDSN()
	if err != nil {
		return nil, err
	}

	switch config.Driver {
	case DialectMySQL:
		gormConfig := &gorm.Config{
			SkipDefaultTransaction: config.SkipDefaultTransaction,
			PrepareStmt:            config.PrepareStmt,
			Logger:                 logger.Default.LogMode(getLogLevel(config.Logging.Level)),
		}
		gdb, err := gorm.Open(gormmysql.Open(dsn), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
		}
		m.gorm, m.sqlDB = gdb, sqlDB
	case DialectPostgres:
		m.sqlDB, err = sql.Open("pgx", dsn)
	case DialectSQLite:
		m.sqlDB, err = sql.Open("sqlite", dsn)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", config.Driver, err)
	}

	maxOpen := config.MaxOpenConns
	if config.Driver == DialectSQLite && strings.Contains(config.Database, ":memory:") {
		// every connection to :memory: is a separate database
		maxOpen = 1
	}
	m.sqlDB.SetMaxOpenConns(maxOpen)
	m.sqlDB.SetMaxIdleConns(min(config.MaxIdleConns, maxOpen))
	m.sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	m.sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	m.logger.Info("database opened", "driver", config.Driver, "database", config.Database)
	return m, nil
}

// NewManagerFromDB wraps an already opened *sql.DB, e.g. a sqlmock or in-memory database.
func NewManagerFromDB(sqlDB *sql.DB, config *Config, opts ...ManagerOption) *Manager {
	if config == nil {
		config = &Config{Driver: DialectSQLite}
	}
	m := &Manager{config: config, sqlDB: sqlDB, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dialect returns the configured dialect.
func (m *Manager) Dialect() Dialect {
	if m.config.Driver == "" {
		return DialectMySQL
	}
	return m.config.Driver
}

// Conn returns an Executor over the pool.
func (m *Manager) Conn() *Conn {
	return m.newConn(m.sqlDB)
}

func (m *Manager) newConn(eq ExecQuerier) *Conn {
	return NewConn(eq, m.Dialect(),
		WithConnLogger(m.logger, m.config.Logging),
		WithQueryTimeout(m.config.QueryTimeout))
}

// Transaction runs fn on a single transaction. fn's error, or a panic, rolls back.
func (m *Manager) Transaction(ctx context.Context, fn func(*Conn) error) error {
	if m.gorm != nil {
		return m.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(m.newConn(tx.Statement.ConnPool))
		})
	}

	tx, err := m.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				m.logger.Error("rollback failed", "error", rbErr)
			}
		}
	}()

	if err := fn(m.newConn(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// GORM returns the GORM handle for MySQL managers, nil otherwise.
func (m *Manager) GORM() *gorm.DB {
	return m.gorm
}

// SqlDB returns the underlying sql.DB instance
func (m *Manager) SqlDB() *sql.DB {
	return m.sqlDB
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.sqlDB != nil {
		return m.sqlDB.Close()
	}
	return nil
}

// Config returns the manager's configuration
func (m *Manager) Config() *Config {
	return m.config
}

// Ping tests the database connection
func (m *Manager) Ping(ctx context.Context) error {
	return m.sqlDB.PingContext(ctx)
}

// Stats returns database connection statistics
func (m *Manager) Stats() sql.DBStats {
	return m.sqlDB.Stats()
}

func getLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "info":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Error // Default to error
	}
}
