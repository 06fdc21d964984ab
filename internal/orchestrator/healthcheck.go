package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/johndauphine/rowmigrate/internal/driver"
	"github.com/johndauphine/rowmigrate/internal/logging"
)

// checkTimeout bounds each connection test.
const checkTimeout = 10 * time.Second

// HealthCheckResult is the outcome of a connection test.
type HealthCheckResult struct {
	Timestamp       string `json:"timestamp"`
	SourceDBType    string `json:"source_db_type"`
	TargetDBType    string `json:"target_db_type"`
	SourceConnected bool   `json:"source_connected"`
	TargetConnected bool   `json:"target_connected"`
	SourceLatencyMs int64  `json:"source_latency_ms"`
	TargetLatencyMs int64  `json:"target_latency_ms"`
	SourceError     string `json:"source_error,omitempty"`
	TargetError     string `json:"target_error,omitempty"`
	Healthy         bool   `json:"healthy"`
}

// Err describes every failed side, or returns nil when healthy.
func (r *HealthCheckResult) Err() error {
	var result *multierror.Error
	if !r.SourceConnected {
		result = multierror.Append(result, fmt.Errorf("source connection failed: %s", r.SourceError))
	}
	if !r.TargetConnected {
		result = multierror.Append(result, fmt.Errorf("target connection failed: %s", r.TargetError))
	}
	if result == nil {
		return nil
	}
	result.ErrorFormat = func(errs []error) string {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return strings.Join(msgs, "; ")
	}
	return result
}

// HealthCheck runs SELECT 1 against source and target in parallel, each with
// its own timeout so a slow side cannot starve the other.
func (o *Orchestrator) HealthCheck(ctx context.Context) *HealthCheckResult {
	result := &HealthCheckResult{
		Timestamp:    time.Now().Format(time.RFC3339),
		SourceDBType: o.source.Dialect().DBType(),
		TargetDBType: o.target.Dialect().DBType(),
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		latency, err := ping(ctx, o.source)
		result.SourceLatencyMs = latency
		if err != nil {
			result.SourceError = err.Error()
		} else {
			result.SourceConnected = true
		}
	}()
	go func() {
		defer wg.Done()
		latency, err := ping(ctx, o.target)
		result.TargetLatencyMs = latency
		if err != nil {
			result.TargetError = err.Error()
		} else {
			result.TargetConnected = true
		}
	}()
	wg.Wait()

	result.Healthy = result.SourceConnected && result.TargetConnected
	if result.Healthy {
		logging.Info("Database connections OK (source %s %dms, target %s %dms)",
			result.SourceDBType, result.SourceLatencyMs, result.TargetDBType, result.TargetLatencyMs)
	}
	return result
}

func ping(ctx context.Context, db driver.DB) (int64, error) {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	_, err := db.Query(checkCtx, "SELECT 1")
	return time.Since(start).Milliseconds(), err
}
