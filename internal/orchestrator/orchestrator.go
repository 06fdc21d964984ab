package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/johndauphine/rowmigrate/internal/checkpoint"
	"github.com/johndauphine/rowmigrate/internal/config"
	"github.com/johndauphine/rowmigrate/internal/driver"
	"github.com/johndauphine/rowmigrate/internal/errclass"
	"github.com/johndauphine/rowmigrate/internal/exitcodes"
	"github.com/johndauphine/rowmigrate/internal/logging"
	"github.com/johndauphine/rowmigrate/internal/notify"
	"github.com/johndauphine/rowmigrate/internal/progress"
	"github.com/johndauphine/rowmigrate/internal/report"
	"github.com/johndauphine/rowmigrate/internal/transfer"
)

// Options configures one run.
type Options struct {
	DryRun bool

	// Workers overrides performance.workers when positive.
	Workers int

	// Progress is a progress mode (auto, bar, text, json, none).
	Progress string

	// ProgressWriter receives progress output (stdout when nil).
	ProgressWriter io.Writer

	// SummaryWriter receives the end-of-run summary box (stdout when nil).
	SummaryWriter io.Writer

	// FailOnCritical turns recorded configuration and database errors into
	// a failed run.
	FailOnCritical bool
}

// uploader ships a finished report somewhere durable.
type uploader interface {
	Upload(ctx context.Context, r *report.Result) (string, error)
}

// Orchestrator owns the connections, checkpoint store and notifier for a run.
type Orchestrator struct {
	config   *config.Config
	source   driver.DB
	target   driver.DB
	store    checkpoint.Store
	notifier notify.Provider
	uploader uploader
	out      io.Writer
}

// New connects to the source and target and opens the checkpoint store.
func New(ctx context.Context, cfg *config.Config) (*Orchestrator, error) {
	source, err := driver.Open(ctx, cfg.SourceDriverConfig())
	if err != nil {
		return nil, fmt.Errorf("creating source connection: %w", err)
	}

	target, err := driver.Open(ctx, cfg.TargetDriverConfig())
	if err != nil {
		source.Close()
		return nil, fmt.Errorf("creating target connection: %w", err)
	}

	store, err := checkpoint.Open(cfg.CheckpointOptions())
	if err != nil {
		source.Close()
		target.Close()
		return nil, fmt.Errorf("opening checkpoint: %w", err)
	}

	o := NewWithDeps(cfg, source, target, store)
	o.notifier = notify.New(&cfg.Slack)

	if cfg.Report.S3Bucket != "" {
		u, err := report.NewS3Uploader(cfg.Report.S3Region, cfg.Report.S3Bucket, cfg.Report.S3Prefix)
		if err != nil {
			logging.Warn("Report upload disabled: %v", err)
		} else {
			o.uploader = u
		}
	}

	return o, nil
}

// NewWithDeps assembles an orchestrator from already-open collaborators.
// Notifications and report uploads are off.
func NewWithDeps(cfg *config.Config, source, target driver.DB, store checkpoint.Store) *Orchestrator {
	return &Orchestrator{
		config:   cfg,
		source:   source,
		target:   target,
		store:    store,
		notifier: notify.Nop{},
		out:      os.Stdout,
	}
}

// Close releases all resources
func (o *Orchestrator) Close() {
	if err := o.store.Close(); err != nil {
		logging.Warn("Closing checkpoint: %v", err)
	}
	o.source.Close()
	o.target.Close()
}

// Run tests both connections, then runs every configured migration in order.
// The returned result is never nil. The error is non-nil when the run could
// not start, was cancelled, or recorded critical errors with FailOnCritical.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*report.Result, error) {
	runID := uuid.New().String()[:8]
	startTime := time.Now()
	specs := o.config.Specs()

	result := report.New(runID, o.config.Database.Source.Adapter, o.config.Database.Target.Adapter, startTime)
	result.DryRun = opts.DryRun

	logging.Info("Starting migration run: %s (%d migrations)", runID, len(specs))

	health := o.HealthCheck(ctx)
	if !health.Healthy {
		err := health.Err()
		logging.Error("Connection test failed: %v", err)
		result.Complete(nil, nil, err, false)
		o.notifyFailure(runID, err, time.Since(startTime))
		return result, exitcodes.NewExitError(err, exitcodes.ConnectionError)
	}

	reporter, err := progress.New(opts.Progress, opts.ProgressWriter)
	if err != nil {
		result.Complete(nil, nil, err, false)
		return result, exitcodes.NewExitError(err, exitcodes.ConfigError)
	}
	defer reporter.Close()

	store := o.store
	if !o.config.AutoSave() || opts.DryRun {
		logging.Info("Checkpoint saving disabled; inserted ids will not be recorded")
		store = readOnlyStore{store}
	}

	history, _ := o.store.(*checkpoint.SQLiteStore)
	if history != nil && !opts.DryRun {
		if err := history.CreateRun(ctx, runID); err != nil {
			logging.Warn("Recording run %s: %v", runID, err)
			history = nil
		}
	}

	if err := o.notifier.RunStarted(runID, result.Source, result.Target, len(specs)); err != nil {
		logging.Warn("Slack notification failed: %v", err)
	}

	workers := o.config.Performance.Workers
	if opts.Workers > 0 {
		workers = opts.Workers
	}

	runner := transfer.NewRunner(transfer.Env{
		Source:     o.source,
		Target:     o.target,
		Checkpoint: store,
		Reporter:   reporter,
		Options: transfer.Options{
			Workers:    workers,
			QueueSize:  o.config.Performance.BatchSize,
			MaxRetries: o.config.Performance.MaxRetries,
			RetryDelay: o.config.RetryDelay(),
			DryRun:     opts.DryRun,
		},
	})

	stats, runErr := runner.RunAll(ctx, specs)
	cancelled := runErr != nil && (errors.Is(runErr, context.Canceled) || ctx.Err() != nil)
	classifier := runner.Errors()
	summary := classifier.Summary()

	result.Complete(stats, summary, runErr, cancelled)

	if history != nil {
		if err := history.CompleteRun(ctx, runID, result.Status, result.Inserted, result.Errors, errclass.FormatSummary(summary)); err != nil {
			logging.Warn("Recording run %s: %v", runID, err)
		}
	}

	o.logPoolStats()
	o.notifyResult(result, summary, runErr)
	summaryOut := opts.SummaryWriter
	if summaryOut == nil {
		summaryOut = o.out
	}
	printSummary(summaryOut, result, summary)
	o.writeReport(ctx, result)

	if cancelled {
		return result, exitcodes.NewExitError(fmt.Errorf("migration cancelled: %w", runErr), exitcodes.Cancelled)
	}
	if opts.FailOnCritical && classifier.HasCriticalErrors() {
		return result, exitcodes.NewExitError(fmt.Errorf("critical errors recorded: %w", classifier.Err()), exitcodes.CriticalError)
	}
	return result, nil
}

func (o *Orchestrator) notifyResult(result *report.Result, summary map[errclass.Kind]int, runErr error) {
	duration := time.Duration(result.DurationSeconds * float64(time.Second))

	var err error
	switch result.Status {
	case report.StatusFailed, report.StatusCancelled:
		err = o.notifier.RunFailed(result.RunID, runErr, duration)
	case report.StatusCompletedWithErrors:
		for _, s := range result.Migrations {
			if s.Abandoned {
				if nerr := o.notifier.MigrationAbandoned(result.RunID, s.Name, errors.New(s.Reason)); nerr != nil {
					logging.Warn("Slack notification failed: %v", nerr)
				}
			}
		}
		err = o.notifier.RunCompletedWithErrors(o.runSummary(result, summary, duration))
	default:
		err = o.notifier.RunCompleted(o.runSummary(result, summary, duration))
	}
	if err != nil {
		logging.Warn("Slack notification failed: %v", err)
	}
}

func (o *Orchestrator) runSummary(result *report.Result, summary map[errclass.Kind]int, duration time.Duration) notify.RunSummary {
	return notify.RunSummary{
		RunID:        result.RunID,
		StartTime:    result.StartedAt,
		Duration:     duration,
		Migrations:   len(result.Migrations),
		Inserted:     result.Inserted,
		Errors:       result.Errors,
		Throughput:   result.RowsPerSecond,
		Abandoned:    result.Abandoned(),
		ErrorSummary: errclass.FormatSummary(summary),
	}
}

// notifyFailure sends a failure notification
func (o *Orchestrator) notifyFailure(runID string, err error, duration time.Duration) {
	if nerr := o.notifier.RunFailed(runID, err, duration); nerr != nil {
		logging.Warn("Slack notification failed: %v", nerr)
	}
}

// writeReport stores the result where report.* asks. Failures are logged only.
func (o *Orchestrator) writeReport(ctx context.Context, result *report.Result) {
	if path := o.config.Report.File; path != "" {
		if err := result.WriteFile(path); err != nil {
			logging.Warn("Writing report: %v", err)
		} else {
			logging.Info("Report written to %s", path)
		}
	}
	if o.uploader != nil {
		key, err := o.uploader.Upload(context.WithoutCancel(ctx), result)
		if err != nil {
			logging.Warn("Uploading report: %v", err)
		} else {
			logging.Info("Report uploaded to s3://%s/%s", o.config.Report.S3Bucket, key)
		}
	}
}

// logPoolStats logs connection pool statistics.
func (o *Orchestrator) logPoolStats() {
	if !logging.IsDebug() {
		return
	}
	logging.Debug("Connection Pool Usage:")
	if ps, ok := o.source.(driver.PoolStatser); ok {
		logging.Debug("  Source %s", ps.PoolStats())
	}
	if ps, ok := o.target.(driver.PoolStatser); ok {
		logging.Debug("  Target %s", ps.PoolStats())
	}
}

// readOnlyStore loads checkpoints but drops appends.
type readOnlyStore struct {
	checkpoint.Store
}

func (readOnlyStore) Append(context.Context, string, any) error { return nil }
