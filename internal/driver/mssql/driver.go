// Package mssql registers the "mssql" adapter (aliases sqlserver, sql-server),
// backed by go-mssqldb.
package mssql

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/johndauphine/rowmigrate/internal/driver"
	"github.com/johndauphine/rowmigrate/internal/logging"
)

func init() {
	driver.Register(&Driver{})
}

// Driver opens SQL Server pools.
type Driver struct{}

func (d *Driver) Name() string {
	return "mssql"
}

func (d *Driver) Aliases() []string {
	return []string{"sqlserver", "sql-server"}
}

// Defaults sets the standard SQL Server port.
func (d *Driver) Defaults() driver.DriverDefaults {
	return driver.DriverDefaults{Port: 1433}
}

func (d *Driver) Dialect() driver.Dialect {
	return &Dialect{}
}

// Open connects through go-mssqldb.
func (d *Driver) Open(ctx context.Context, cfg driver.Config) (driver.DB, error) {
	dl := &Dialect{}
	db, err := driver.OpenSQL("sqlserver", dl.BuildDSN(cfg), cfg, dl)
	if err != nil {
		return nil, fmt.Errorf("opening sql server: %w", err)
	}
	logging.Debug("Opened SQL Server pool: %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
	return db.WithTypedValues(convertValue), nil
}

// convertValue turns GUID bytes into canonical UUID strings.
func convertValue(v any, dbType string) any {
	if b, ok := v.([]byte); ok && strings.EqualFold(dbType, "UNIQUEIDENTIFIER") {
		return formatUUID(b)
	}
	return v
}

// formatUUID renders a 16-byte GUID, whose first three groups are
// little-endian on the wire. Other lengths are hex encoded.
func formatUUID(b []byte) string {
	if len(b) != 16 {
		return hex.EncodeToString(b)
	}
	return fmt.Sprintf("%02x%02x%02x%02x-%02x%02x-%02x%02x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		b[3], b[2], b[1], b[0],
		b[5], b[4],
		b[7], b[6],
		b[8], b[9],
		b[10], b[11], b[12], b[13], b[14], b[15])
}
