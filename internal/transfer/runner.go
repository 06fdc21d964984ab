package transfer

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"golang.org/x/sync/errgroup"

	"github.com/johndauphine/rowmigrate/internal/checkpoint"
	dbdriver "github.com/johndauphine/rowmigrate/internal/driver"
	"github.com/johndauphine/rowmigrate/internal/errclass"
	"github.com/johndauphine/rowmigrate/internal/logging"
)

// Source is the capability the runner extracts rows from.
type Source interface {
	Query(ctx context.Context, query string, args ...any) ([]dbdriver.Row, error)
	Dialect() dbdriver.Dialect
}

// Target is the capability the runner loads rows into.
type Target interface {
	Exec(ctx context.Context, query string, args ...any) error
	Dialect() dbdriver.Dialect
}

// Reporter receives progress for the migration being loaded.
// Calls come from a single goroutine.
type Reporter interface {
	Start(stats MigrationStats)
	Update(stats MigrationStats, avgRowMs float64)
	Finish(stats MigrationStats)
}

// Options tune the loading phase.
type Options struct {
	// Workers is the number of concurrent inserts. 1 loads rows strictly in order.
	Workers int

	// QueueSize bounds the rows buffered between extraction and the workers.
	QueueSize int

	// MaxRetries is the number of extra attempts for an insert that failed
	// with a transient (connection-level) error.
	MaxRetries int

	// RetryDelay separates retry attempts.
	RetryDelay time.Duration

	// DryRun logs each INSERT instead of executing it and records no checkpoints.
	DryRun bool
}

// Env carries every collaborator a Runner needs. Nothing is global.
type Env struct {
	Source     Source
	Target     Target
	Checkpoint checkpoint.Store
	Errors     *errclass.Classifier
	Reporter   Reporter
	Options    Options
}

// Runner executes migrations one at a time.
type Runner struct {
	env Env
}

// NewRunner returns a runner for env, filling in defaults for optional fields.
func NewRunner(env Env) *Runner {
	if env.Errors == nil {
		env.Errors = errclass.NewClassifier()
	}
	if env.Reporter == nil {
		env.Reporter = nopReporter{}
	}
	if env.Options.Workers < 1 {
		env.Options.Workers = 1
	}
	if env.Options.QueueSize < env.Options.Workers {
		env.Options.QueueSize = env.Options.Workers * 2
	}
	return &Runner{env: env}
}

// Errors returns the classifier the runner records into.
func (r *Runner) Errors() *errclass.Classifier {
	return r.env.Errors
}

// RunAll runs specs in order. A failed migration never stops the list;
// only cancellation does, in which case the stats gathered so far are
// returned with ctx.Err().
func (r *Runner) RunAll(ctx context.Context, specs []MigrationSpec) ([]MigrationStats, error) {
	results := make([]MigrationStats, 0, len(specs))
	for _, spec := range specs {
		stats, err := r.Run(ctx, spec)
		results = append(results, stats)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// rowResult is what a worker reports for one row.
type rowResult struct {
	id      any
	row     Row
	err     error
	elapsed time.Duration
}

// Run executes one migration to completion. Row failures and extraction
// failures are recorded in the classifier, never returned; the only error
// returned is the context's when the run is cancelled.
func (r *Runner) Run(ctx context.Context, spec MigrationSpec) (MigrationStats, error) {
	stats := MigrationStats{Name: spec.Name, Phase: PhaseIdle}
	logging.Info("Processing migration: %s", spec.Name)

	primary, err := spec.PrimaryColumn()
	if err != nil {
		r.env.Errors.HandleConfiguration(err, map[string]any{"migration": spec.Name})
		return r.abandon(stats, err), nil
	}

	// Extracting
	stats.Phase = PhaseExtracting
	query := ExtractionStatement(spec, r.env.Source.Dialect())
	logging.Debug("Executing extraction query: %s", query)
	rows, err := r.env.Source.Query(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return r.abandon(stats, ctx.Err()), ctx.Err()
		}
		r.env.Errors.HandleDatabase(err, query, map[string]any{"migration": spec.Name})
		return r.abandon(stats, err), nil
	}
	logging.Info("Query executed successfully, returned %d rows", len(rows))

	// Filtering
	stats.Phase = PhaseFiltering
	done, err := r.env.Checkpoint.Load(ctx, spec.Name)
	if err != nil {
		if ctx.Err() != nil {
			return r.abandon(stats, ctx.Err()), ctx.Err()
		}
		r.env.Errors.Handle(err, map[string]any{"migration": spec.Name})
		return r.abandon(stats, err), nil
	}
	pending := rows[:0:0]
	for _, row := range rows {
		if !done.Contains(row[primary.Column]) {
			pending = append(pending, row)
		}
	}
	stats.Skipped = len(rows) - len(pending)
	stats.Total = len(pending)
	logging.Info("After filtering: %d rows to load, %d already checkpointed", stats.Total, stats.Skipped)

	// Loading
	stats.Phase = PhaseLoading
	err = r.load(ctx, spec, primary, pending, &stats)

	stats.Phase = PhaseCompleted
	r.env.Reporter.Finish(stats)
	logging.Info("Migration completed: %s (inserted=%d, errors=%d, total=%d, duration=%dms)",
		spec.Name, stats.Inserted, stats.Error, stats.Total, stats.Time)
	return stats, err
}

func (r *Runner) abandon(stats MigrationStats, err error) MigrationStats {
	stats.Abandoned = true
	stats.Reason = err.Error()
	stats.Phase = PhaseCompleted
	logging.Error("Migration %s skipped: %v", stats.Name, err)
	return stats
}

// load fans rows out to the workers and folds their results in this
// goroutine, which is the only one that appends to the checkpoint.
func (r *Runner) load(ctx context.Context, spec MigrationSpec, primary ColumnSpec, rows []Row, stats *MigrationStats) error {
	opts := r.env.Options
	start := time.Now()
	var timer RowTimer

	r.env.Reporter.Start(*stats)

	tasks := make(chan Row, opts.QueueSize)
	results := make(chan rowResult, opts.QueueSize)

	go func() {
		defer close(tasks)
		for _, row := range rows {
			select {
			case <-ctx.Done():
				return
			case tasks <- row:
			}
		}
	}()

	// Workers stop taking rows once ctx is done; a row already taken is
	// always finished.
	var workers errgroup.Group
	for i := 0; i < opts.Workers; i++ {
		workers.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case row, ok := <-tasks:
					if !ok {
						return nil
					}
					results <- r.insertRow(ctx, spec, primary, row)
				}
			}
		})
	}
	var stopErr error
	go func() {
		stopErr = workers.Wait()
		close(results)
	}()

	for res := range results {
		timer.Observe(res.elapsed)
		if res.err != nil {
			stats.Error++
			stats.ErrorIDs = append(stats.ErrorIDs, res.id)
			r.env.Errors.HandleMigration(res.err, spec.Name, map[string]any{"id": res.id})
			if logging.IsDebug() {
				logging.Debug("Failed row in %s:\n%s", spec.Name, spew.Sdump(res.row))
			}
		} else if opts.DryRun {
			stats.Planned++
		} else {
			stats.Inserted++
			stats.Success++
			if err := r.env.Checkpoint.Append(ctx, spec.Name, res.id); err != nil {
				r.env.Errors.HandleFile(err, "checkpoint:"+spec.Name, "append")
			}
		}
		stats.Time = time.Since(start).Milliseconds()
		r.env.Reporter.Update(*stats, timer.MeanMillis())
	}

	err := stopErr
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		logging.Warn("Migration %s interrupted after %d of %d rows", spec.Name, stats.Processed(), stats.Total)
		return err
	}
	return nil
}

// insertRow converts and inserts one row. The insert itself ignores
// cancellation so a row that was handed to a worker is always finished
// and checkpointed.
func (r *Runner) insertRow(ctx context.Context, spec MigrationSpec, primary ColumnSpec, row Row) rowResult {
	start := time.Now()
	res := rowResult{id: row[primary.Column], row: row}

	converted := Convert(row, spec)
	if r.env.Options.DryRun {
		logging.Info("%s", InsertQuery(converted, spec))
		res.elapsed = time.Since(start)
		return res
	}

	stmt, args := InsertStatement(converted, spec, r.env.Target.Dialect())
	res.err = r.execWithRetry(ctx, stmt, args)
	res.elapsed = time.Since(start)
	return res
}

func (r *Runner) execWithRetry(ctx context.Context, stmt string, args []any) error {
	opts := r.env.Options
	execCtx := context.WithoutCancel(ctx)
	for attempt := 0; ; attempt++ {
		err := r.env.Target.Exec(execCtx, stmt, args...)
		if err == nil || attempt >= opts.MaxRetries || !IsTransient(err) {
			return err
		}
		logging.Debug("Insert attempt %d failed, retrying in %v: %v", attempt+1, opts.RetryDelay, err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(opts.RetryDelay):
		}
	}
}

// IsTransient reports whether err looks like a connection-level failure
// that may succeed on retry, as opposed to a rejected row.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection reset", "connection refused", "broken pipe", "bad connection", "i/o timeout", "deadlock"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

type nopReporter struct{}

func (nopReporter) Start(MigrationStats)           {}
func (nopReporter) Update(MigrationStats, float64) {}
func (nopReporter) Finish(MigrationStats)          {}
