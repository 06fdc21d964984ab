// Package sqlite provides the SQLite (modernc, pure Go) and libSQL/Turso
// drivers. Both register themselves with the driver registry on import.
package sqlite

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"

	"github.com/johndauphine/rowmigrate/internal/driver"
	"github.com/johndauphine/rowmigrate/internal/logging"
)

func init() {
	driver.Register(&Driver{})
	driver.Register(&LibSQLDriver{})
}

// Dialect implements driver.Dialect for SQLite and libSQL.
type Dialect struct {
	dbType string
}

func (d *Dialect) DBType() string { return d.dbType }

func (d *Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *Dialect) ParameterPlaceholder(int) string {
	return "?"
}

// BuildDSN returns a file DSN for SQLite or a libsql:// URL for libSQL.
func (d *Dialect) BuildDSN(cfg driver.Config) string {
	if d.dbType == "libsql" {
		return libsqlURL(cfg)
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	for k, v := range cfg.Params {
		q.Add(k, v)
	}
	return cfg.Database + "?" + q.Encode()
}

func libsqlURL(cfg driver.Config) string {
	host := cfg.Host
	if !strings.Contains(host, "://") {
		host = "libsql://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return host
	}
	if cfg.Port > 0 && u.Port() == "" {
		u.Host = fmt.Sprintf("%s:%d", u.Host, cfg.Port)
	}
	q := u.Query()
	if cfg.Password != "" {
		q.Set("authToken", cfg.Password)
	}
	for k, v := range cfg.Params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Driver implements driver.Driver for local SQLite files.
type Driver struct{}

// Name returns the primary driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Aliases returns alternative names for this driver.
func (d *Driver) Aliases() []string {
	return []string{"sqlite3"}
}

// Defaults returns the default configuration values for SQLite.
func (d *Driver) Defaults() driver.DriverDefaults {
	return driver.DriverDefaults{FileBased: true}
}

// Dialect returns the SQLite dialect.
func (d *Driver) Dialect() driver.Dialect {
	return &Dialect{dbType: "sqlite"}
}

// Open opens the database file named by cfg.Database.
func (d *Driver) Open(ctx context.Context, cfg driver.Config) (driver.DB, error) {
	dialect := &Dialect{dbType: "sqlite"}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 1
	}
	db, err := driver.OpenSQL("sqlite", dialect.BuildDSN(cfg), cfg, dialect)
	if err != nil {
		return nil, err
	}
	logging.Debug("Opened SQLite database: %s", cfg.Database)
	return db, nil
}

// LibSQLDriver implements driver.Driver for libSQL / Turso servers.
type LibSQLDriver struct{}

// Name returns the primary driver name.
func (d *LibSQLDriver) Name() string {
	return "libsql"
}

// Aliases returns alternative names for this driver.
func (d *LibSQLDriver) Aliases() []string {
	return []string{"turso"}
}

// Defaults returns the default configuration values for libSQL.
func (d *LibSQLDriver) Defaults() driver.DriverDefaults {
	return driver.DriverDefaults{TokenAuth: true}
}

// Dialect returns the libSQL dialect.
func (d *LibSQLDriver) Dialect() driver.Dialect {
	return &Dialect{dbType: "libsql"}
}

// Open connects to the libSQL server at cfg.Host; cfg.Password carries the auth token.
func (d *LibSQLDriver) Open(ctx context.Context, cfg driver.Config) (driver.DB, error) {
	dialect := &Dialect{dbType: "libsql"}
	db, err := driver.OpenSQL("libsql", dialect.BuildDSN(cfg), cfg, dialect)
	if err != nil {
		return nil, err
	}
	logging.Debug("Opened libSQL connection: %s", cfg.Host)
	return db, nil
}
