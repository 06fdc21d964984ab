// Package postgres provides the PostgreSQL driver implementation.
// It registers itself with the driver registry on import.
package postgres

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/johndauphine/rowmigrate/internal/driver"
	"github.com/johndauphine/rowmigrate/internal/logging"
)

func init() {
	driver.Register(&Driver{})
}

// Driver implements driver.Driver for PostgreSQL databases.
type Driver struct{}

// Name returns the primary driver name.
func (d *Driver) Name() string {
	return "postgres"
}

// Aliases returns alternative names for this driver.
func (d *Driver) Aliases() []string {
	return []string{"postgresql", "pg"}
}

// Defaults returns the default configuration values for PostgreSQL.
func (d *Driver) Defaults() driver.DriverDefaults {
	return driver.DriverDefaults{
		Port:    5432,
		SSLMode: "prefer",
	}
}

// Dialect returns the PostgreSQL dialect.
func (d *Driver) Dialect() driver.Dialect {
	return &Dialect{}
}

// Open creates a pgx pool for cfg.
func (d *Driver) Open(ctx context.Context, cfg driver.Config) (driver.DB, error) {
	dialect := &Dialect{}
	poolConfig, err := pgxpool.ParseConfig(dialect.BuildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	poolConfig.MaxConnLifetime = 30 * time.Minute
	if cfg.QueryLog {
		poolConfig.ConnConfig.Tracer = newQueryTracer()
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	logging.Debug("Opened PostgreSQL pool: %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
	return &DB{pool: pool, dialect: dialect}, nil
}

// DB implements driver.DB over a pgx pool.
type DB struct {
	pool    *pgxpool.Pool
	dialect *Dialect
}

// Query runs query and materializes every row.
func (db *DB) Query(ctx context.Context, query string, args ...any) ([]driver.Row, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var result []driver.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		row := make(driver.Row, len(fields))
		for i, f := range fields {
			row[f.Name] = driver.NormalizeValue(values[i])
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// Exec runs a statement that returns no rows.
func (db *DB) Exec(ctx context.Context, query string, args ...any) error {
	_, err := db.pool.Exec(ctx, query, args...)
	return err
}

// Dialect returns the PostgreSQL dialect.
func (db *DB) Dialect() driver.Dialect {
	return db.dialect
}

// Close closes the pool.
func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

// PoolStats reports pgxpool usage.
func (db *DB) PoolStats() driver.PoolStats {
	st := db.pool.Stat()
	return driver.PoolStats{
		DBType:      "postgres",
		MaxConns:    int(st.MaxConns()),
		ActiveConns: int(st.AcquiredConns()),
		IdleConns:   int(st.IdleConns()),
		WaitCount:   st.EmptyAcquireCount(),
		WaitTimeMs:  st.AcquireDuration().Milliseconds(),
	}
}

// queryTracer logs statements through zerolog, like the database/sql drivers do.
type queryTracer struct {
	log zerolog.Logger
}

type traceStartKey struct{}

type traceStart struct {
	sql   string
	start time.Time
}

func newQueryTracer() *queryTracer {
	return &queryTracer{
		log: zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}).
			With().Timestamp().Str("driver", "postgres").Logger(),
	}
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceStartKey{}, traceStart{sql: data.SQL, start: time.Now()})
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	st, _ := ctx.Value(traceStartKey{}).(traceStart)
	ev := t.log.Info()
	if data.Err != nil {
		ev = t.log.Error().Err(data.Err)
	}
	ev.Float64("dur_ms", float64(time.Since(st.start).Microseconds())/1000).
		Str("tag", data.CommandTag.String()).
		Msg(st.sql)
}
