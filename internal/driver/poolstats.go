package driver

import "fmt"

// PoolStats is a driver-neutral snapshot of a connection pool.
type PoolStats struct {
	DBType      string
	MaxConns    int
	ActiveConns int
	IdleConns   int
	WaitCount   int64
	WaitTimeMs  int64
}

// String returns a formatted string for logging pool stats.
func (s PoolStats) String() string {
	return fmt.Sprintf("%s: %d/%d active, %d idle, %d waits (%.1fms avg)",
		s.DBType, s.ActiveConns, s.MaxConns, s.IdleConns,
		s.WaitCount, float64(s.WaitTimeMs)/float64(max(s.WaitCount, 1)))
}

// PoolStatser is implemented by DBs that can report pool usage.
type PoolStatser interface {
	PoolStats() PoolStats
}
