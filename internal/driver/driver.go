// Package driver provides the pluggable database capabilities the migration
// engine reads from and writes to. Each database (PostgreSQL, MySQL, SQLite,
// SQL Server, libSQL) implements the Driver interface in its own package and
// registers itself on import.
package driver

import (
	"context"
)

// Row maps column name to a scalar value as returned by a query.
// Values are normalized by NormalizeValue before they reach the engine.
type Row map[string]any

// Config describes one database connection.
type Config struct {
	Adapter  string
	Host     string
	Port     int
	User     string
	Password string
	Database string

	// SSLMode is used by PostgreSQL-style connections ("disable", "prefer", "require").
	SSLMode string

	// MaxConns caps the connection pool (0 means driver default).
	MaxConns int

	// QueryLog logs every statement through zerolog (database/sql drivers only).
	QueryLog bool

	// Params are appended to the DSN as driver-specific options.
	Params map[string]string
}

// DriverDefaults contains default values for a database driver.
// Used by config.applyDefaults() to fill in omitted connection settings.
type DriverDefaults struct {
	// Port is the default port (e.g., 5432 for PostgreSQL, 3306 for MySQL).
	// Zero for file-based databases.
	Port int

	// SSLMode is the default SSL mode for PostgreSQL-style connections.
	SSLMode string

	// FileBased is true when Database is a file path and host/port/user are unused.
	FileBased bool

	// TokenAuth is true when Host is a URL, Password carries an access token
	// and Port/User/Database are unused.
	TokenAuth bool
}

// DB is the capability the engine needs from a source or target database.
// Statements run in autocommit mode; no explicit transactions are opened.
type DB interface {
	// Query runs a statement and returns every row.
	Query(ctx context.Context, query string, args ...any) ([]Row, error)

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, query string, args ...any) error

	// Dialect returns the SQL dialect of this database.
	Dialect() Dialect

	// Close releases the connection pool.
	Close() error
}

// Driver represents a pluggable database driver.
//
// To add a new database:
// 1. Create a package under internal/driver/<dbname>/
// 2. Implement the Driver interface
// 3. Register via init(): driver.Register(&MyDriver{})
type Driver interface {
	// Name returns the primary driver name (e.g., "postgres", "mysql").
	Name() string

	// Aliases returns alternative names for this driver.
	// For example, mysql has the alias "mariadb".
	Aliases() []string

	// Defaults returns the default configuration values for this driver.
	Defaults() DriverDefaults

	// Dialect returns the SQL dialect for this database.
	Dialect() Dialect

	// Open connects to the database described by cfg.
	Open(ctx context.Context, cfg Config) (DB, error)
}
