package db

import (
	"database/sql"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// Dialect names a supported database
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Row is one result row keyed by lowercase column name
type Row = map[string]any

// Config holds database connection configuration
type Config struct {
	// Driver selects the dialect. Default: mysql
	Driver Dialect `json:"driver" yaml:"driver" koanf:"driver"`

	// Connection Settings
	Host     string `json:"host" yaml:"host" koanf:"host"`
	Port     int    `json:"port" yaml:"port" koanf:"port"`
	Database string `json:"database" yaml:"database" koanf:"database"` // file path or ":memory:" for sqlite
	Username string `json:"username" yaml:"username" koanf:"username"`
	Password string `json:"password" yaml:"password" koanf:"password"`

	// Connection Pool Settings
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns" koanf:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns" koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time" koanf:"conn_max_idle_time"`

	// MySQL Specific Settings
	Charset   string `json:"charset" yaml:"charset" koanf:"charset"`       // Default: utf8mb4
	Collation string `json:"collation" yaml:"collation" koanf:"collation"` // Default: utf8mb4_unicode_ci
	TimeZone  string `json:"timezone" yaml:"timezone" koanf:"timezone"`    // Default: UTC

	// GORM Settings (mysql)
	SkipDefaultTransaction bool `json:"skip_default_transaction" yaml:"skip_default_transaction" koanf:"skip_default_transaction"`
	PrepareStmt            bool `json:"prepare_stmt" yaml:"prepare_stmt" koanf:"prepare_stmt"`

	// QueryTimeout bounds every statement run through a Conn. Zero disables it.
	QueryTimeout time.Duration `json:"query_timeout" yaml:"query_timeout" koanf:"query_timeout"`

	// SSL Configuration
	SSL SSLConfig `json:"ssl" yaml:"ssl" koanf:"ssl"`

	// Logging Configuration
	Logging LoggingConfig `json:"logging" yaml:"logging" koanf:"logging"`
}

// SSLConfig holds SSL/TLS configuration
type SSLConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled" koanf:"enabled"`
	CertFile   string `json:"cert_file" yaml:"cert_file" koanf:"cert_file"`
	KeyFile    string `json:"key_file" yaml:"key_file" koanf:"key_file"`
	CAFile     string `json:"ca_file" yaml:"ca_file" koanf:"ca_file"`
	SkipVerify bool   `json:"skip_verify" yaml:"skip_verify" koanf:"skip_verify"` // Skip certificate verification (not recommended for production)
	ServerName string `json:"server_name" yaml:"server_name" koanf:"server_name"`
}

// LoggingConfig controls database logging behavior
type LoggingConfig struct {
	Level string `json:"level" yaml:"level" koanf:"level"` // gorm level: info, warn, error, silent

	LogQueries         bool          `json:"log_queries" yaml:"log_queries" koanf:"log_queries"`
	LogSlowQueries     bool          `json:"log_slow_queries" yaml:"log_slow_queries" koanf:"log_slow_queries"`
	SlowQueryThreshold time.Duration `json:"slow_query_threshold" yaml:"slow_query_threshold" koanf:"slow_query_threshold"`
	LogQueryParameters bool          `json:"log_query_parameters" yaml:"log_query_parameters" koanf:"log_query_parameters"`
}

// Manager owns the connection pool for one database
type Manager struct {
	config *Config
	gorm   *gorm.DB // set for mysql only
	sqlDB  *sql.DB
	logger *slog.Logger
}
