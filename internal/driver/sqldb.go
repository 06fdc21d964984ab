package driver

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/simukti/sqldb-logger/logadapter/zerologadapter"
)

// SQLDB implements DB on top of database/sql. The MySQL, SQLite, libSQL and
// SQL Server drivers all share it.
type SQLDB struct {
	db      *sql.DB
	dialect Dialect

	// typed, when set, converts a raw scanned value using its database type
	// name before NormalizeValue runs.
	typed func(value any, dbType string) any
}

// OpenSQL opens driverName with dsn, optionally wrapping it with statement
// logging, and applies the pool settings from cfg.
func OpenSQL(driverName, dsn string, cfg Config, dialect Dialect) (*SQLDB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", driverName, err)
	}
	if cfg.QueryLog {
		db = withQueryLog(db, dsn, driverName)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	return NewSQLDB(db, dialect), nil
}

// NewSQLDB wraps an open handle.
func NewSQLDB(db *sql.DB, dialect Dialect) *SQLDB {
	return &SQLDB{db: db, dialect: dialect}
}

// WithTypedValues installs a conversion applied to raw values by column type.
func (s *SQLDB) WithTypedValues(fn func(value any, dbType string) any) *SQLDB {
	s.typed = fn
	return s
}

// withQueryLog re-opens the handle's driver through sqldb-logger so every
// statement is logged with its duration.
func withQueryLog(db *sql.DB, dsn, driverName string) *sql.DB {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}).
		With().Timestamp().Str("driver", driverName).Logger()
	return sqldblogger.OpenDriver(dsn, db.Driver(), zerologadapter.New(zl),
		sqldblogger.WithWrapResult(false),
		sqldblogger.WithDurationFieldname("dur_ms"),
		sqldblogger.WithDurationUnit(sqldblogger.DurationMillisecond),
		sqldblogger.WithSQLQueryAsMessage(true),
		sqldblogger.WithSQLQueryFieldname("sql_query"),
	)
}

// Query runs query and materializes every row.
func (s *SQLDB) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	var dbTypes []string
	if s.typed != nil {
		colTypes, err := rows.ColumnTypes()
		if err != nil {
			return nil, fmt.Errorf("reading column types: %w", err)
		}
		dbTypes = make([]string, len(colTypes))
		for i, ct := range colTypes {
			dbTypes[i] = ct.DatabaseTypeName()
		}
	}

	var result []Row
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			v := values[i]
			if dbTypes != nil {
				v = s.typed(v, dbTypes[i])
			}
			row[col] = NormalizeValue(v)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// Exec runs a statement that returns no rows.
func (s *SQLDB) Exec(ctx context.Context, query string, args ...any) error {
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// Dialect returns the SQL dialect.
func (s *SQLDB) Dialect() Dialect {
	return s.dialect
}

// Close closes the pool.
func (s *SQLDB) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle.
func (s *SQLDB) DB() *sql.DB {
	return s.db
}

// PoolStats reports database/sql pool usage.
func (s *SQLDB) PoolStats() PoolStats {
	st := s.db.Stats()
	return PoolStats{
		DBType:      s.dialect.DBType(),
		MaxConns:    st.MaxOpenConnections,
		ActiveConns: st.InUse,
		IdleConns:   st.Idle,
		WaitCount:   st.WaitCount,
		WaitTimeMs:  st.WaitDuration.Milliseconds(),
	}
}
