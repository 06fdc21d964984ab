// Package mysql provides the MySQL and MariaDB driver implementation.
// It registers itself with the driver registry on import.
package mysql

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/johndauphine/rowmigrate/internal/driver"
	"github.com/johndauphine/rowmigrate/internal/logging"
)

func init() {
	driver.Register(&Driver{})
}

// Driver implements driver.Driver for MySQL and MariaDB.
type Driver struct{}

// Name returns the primary driver name.
func (d *Driver) Name() string {
	return "mysql"
}

// Aliases returns alternative names for this driver.
func (d *Driver) Aliases() []string {
	return []string{"mariadb"}
}

// Defaults returns the default configuration values for MySQL.
func (d *Driver) Defaults() driver.DriverDefaults {
	return driver.DriverDefaults{Port: 3306}
}

// Dialect returns the MySQL dialect.
func (d *Driver) Dialect() driver.Dialect {
	return &Dialect{}
}

// Open connects through go-sql-driver/mysql.
func (d *Driver) Open(ctx context.Context, cfg driver.Config) (driver.DB, error) {
	dialect := &Dialect{}
	db, err := driver.OpenSQL("mysql", dialect.BuildDSN(cfg), cfg, dialect)
	if err != nil {
		return nil, err
	}
	logging.Debug("Opened MySQL pool: %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
	return db.WithTypedValues(convertValue), nil
}

// Dialect implements driver.Dialect for MySQL.
type Dialect struct{}

func (d *Dialect) DBType() string { return "mysql" }

func (d *Dialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d *Dialect) ParameterPlaceholder(int) string {
	return "?"
}

func (d *Dialect) BuildDSN(cfg driver.Config) string {
	mc := gomysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.InterpolateParams = true
	mc.Loc = time.UTC
	if cfg.SSLMode == "require" {
		mc.TLSConfig = "true"
	}
	if len(cfg.Params) > 0 {
		mc.Params = make(map[string]string, len(cfg.Params))
		for k, v := range cfg.Params {
			mc.Params[k] = v
		}
	}
	return mc.FormatDSN()
}

// convertValue parses the text-protocol bytes MySQL returns for numeric
// columns so integer comparisons behave the same as with other databases.
func convertValue(v any, dbType string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	s := string(b)
	switch strings.ToUpper(dbType) {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "YEAR":
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case "UNSIGNED TINYINT", "UNSIGNED SMALLINT", "UNSIGNED MEDIUMINT", "UNSIGNED INT", "UNSIGNED BIGINT":
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return n
		}
	case "FLOAT", "DOUBLE":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case "BIT":
		var n uint64
		for _, c := range b {
			n = n<<8 | uint64(c)
		}
		return n
	}
	return s
}
