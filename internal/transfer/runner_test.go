package transfer

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/johndauphine/rowmigrate/internal/checkpoint"
	dbdriver "github.com/johndauphine/rowmigrate/internal/driver"
	"github.com/johndauphine/rowmigrate/internal/errclass"
)

type fakeSource struct {
	rows    []Row
	err     error
	queries []string
}

func (s *fakeSource) Query(ctx context.Context, query string, args ...any) ([]dbdriver.Row, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return s.rows, nil
}

func (s *fakeSource) Dialect() dbdriver.Dialect { return testDialect{} }

// fakeTarget records inserted rows by their first argument and fails the
// ids listed in failIDs.
type fakeTarget struct {
	mu       sync.Mutex
	inserted []any
	calls    int
	failIDs  map[any]error
	flaky    int // number of leading calls that fail with a transient error
	onExec   func()
}

func (t *fakeTarget) Exec(ctx context.Context, query string, args ...any) error {
	if t.onExec != nil {
		t.onExec()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if t.flaky > 0 {
		t.flaky--
		return driver.ErrBadConn
	}
	if err, ok := t.failIDs[args[0]]; ok {
		return err
	}
	t.inserted = append(t.inserted, args[0])
	return nil
}

func (t *fakeTarget) Dialect() dbdriver.Dialect { return testDialect{} }

type recordingReporter struct {
	starts  int
	updates []MigrationStats
	final   MigrationStats
}

func (r *recordingReporter) Start(MigrationStats) { r.starts++ }
func (r *recordingReporter) Update(s MigrationStats, avg float64) {
	r.updates = append(r.updates, s)
}
func (r *recordingReporter) Finish(s MigrationStats) { r.final = s }

func makeRows(n int) []Row {
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{"id": int64(i + 1), "name": fmt.Sprintf("user%d", i+1), "active": int64(i % 2)}
	}
	return rows
}

func newTestEnv(src Source, tgt Target) (Env, *checkpoint.FileStore) {
	store := checkpoint.NewFileStore(afero.NewMemMapFs(), "checkpoint.json", checkpoint.ScopeMigration)
	return Env{
		Source:     src,
		Target:     tgt,
		Checkpoint: store,
		Errors:     errclass.NewClassifier(),
	}, store
}

func sortedInt64s(ids []any) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.(int64))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestRunInsertsAllRows(t *testing.T) {
	src := &fakeSource{rows: makeRows(5)}
	tgt := &fakeTarget{}
	env, store := newTestEnv(src, tgt)
	rep := &recordingReporter{}
	env.Reporter = rep

	stats, err := NewRunner(env).Run(context.Background(), usersSpec())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Total != 5 || stats.Inserted != 5 || stats.Error != 0 {
		t.Errorf("stats = %+v, want total=5 inserted=5 error=0", stats)
	}
	if stats.Phase != PhaseCompleted {
		t.Errorf("phase = %v, want completed", stats.Phase)
	}
	if got := src.queries[0]; got != `SELECT "id", "name", "active" FROM "old_users"` {
		t.Errorf("extraction query = %q", got)
	}
	if len(tgt.inserted) != 5 {
		t.Errorf("inserted %d rows, want 5", len(tgt.inserted))
	}

	set, err := store.Load(context.Background(), "users")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if set.Len() != 5 {
		t.Errorf("checkpoint has %d ids, want 5", set.Len())
	}

	if rep.starts != 1 || len(rep.updates) != 5 {
		t.Errorf("reporter starts=%d updates=%d, want 1 and 5", rep.starts, len(rep.updates))
	}
	if rep.final.Inserted != 5 {
		t.Errorf("final report inserted = %d, want 5", rep.final.Inserted)
	}
}

func TestRunSingleWorkerPreservesOrder(t *testing.T) {
	src := &fakeSource{rows: makeRows(20)}
	tgt := &fakeTarget{}
	env, _ := newTestEnv(src, tgt)
	env.Options.Workers = 1

	if _, err := NewRunner(env).Run(context.Background(), usersSpec()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for i, id := range tgt.inserted {
		if id.(int64) != int64(i+1) {
			t.Fatalf("row %d inserted out of order: %v", i, tgt.inserted)
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	src := &fakeSource{rows: makeRows(4)}
	tgt := &fakeTarget{}
	env, _ := newTestEnv(src, tgt)
	runner := NewRunner(env)

	if _, err := runner.Run(context.Background(), usersSpec()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	stats, err := runner.Run(context.Background(), usersSpec())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if stats.Total != 0 || stats.Inserted != 0 || stats.Skipped != 4 {
		t.Errorf("second run stats = %+v, want total=0 inserted=0 skipped=4", stats)
	}
	if len(tgt.inserted) != 4 {
		t.Errorf("target saw %d inserts, want 4", len(tgt.inserted))
	}
}

func TestRunResumesAfterPartialCheckpoint(t *testing.T) {
	src := &fakeSource{rows: makeRows(5)}
	tgt := &fakeTarget{}
	env, store := newTestEnv(src, tgt)
	ctx := context.Background()
	for _, id := range []any{int64(1), int64(3)} {
		if err := store.Append(ctx, "users", id); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	stats, err := NewRunner(env).Run(ctx, usersSpec())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Total != 3 || stats.Skipped != 2 {
		t.Errorf("stats = %+v, want total=3 skipped=2", stats)
	}
	got := sortedInt64s(tgt.inserted)
	want := []int64{2, 4, 5}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("inserted = %v, want %v", got, want)
	}
}

func TestRunIsolatesRowFailures(t *testing.T) {
	src := &fakeSource{rows: makeRows(5)}
	tgt := &fakeTarget{failIDs: map[any]error{
		int64(2): errors.New("duplicate key value violates unique constraint"),
		int64(4): errors.New("value too long for type character varying(3)"),
	}}
	env, store := newTestEnv(src, tgt)
	env.Options.Workers = 3

	stats, err := NewRunner(env).Run(context.Background(), usersSpec())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Inserted != 3 || stats.Error != 2 {
		t.Errorf("stats = %+v, want inserted=3 error=2", stats)
	}
	if stats.Inserted+stats.Error != stats.Total {
		t.Errorf("inserted+error = %d, total = %d", stats.Inserted+stats.Error, stats.Total)
	}
	if got := sortedInt64s(stats.ErrorIDs); fmt.Sprint(got) != "[2 4]" {
		t.Errorf("ErrorIDs = %v, want [2 4]", got)
	}
	if n := env.Errors.Count(errclass.Migration); n != 2 {
		t.Errorf("migration errors = %d, want 2", n)
	}

	set, _ := store.Load(context.Background(), "users")
	if set.Contains(int64(2)) || set.Contains(int64(4)) {
		t.Error("failed rows must not be checkpointed")
	}
	if set.Len() != 3 {
		t.Errorf("checkpoint has %d ids, want 3", set.Len())
	}
}

func TestRunExtractionFailure(t *testing.T) {
	src := &fakeSource{err: errors.New(`relation "old_users" does not exist`)}
	tgt := &fakeTarget{}
	env, _ := newTestEnv(src, tgt)

	runner := NewRunner(env)
	results, err := runner.RunAll(context.Background(), []MigrationSpec{usersSpec(), {
		Name:    "orders",
		Table:   TableSpec{Source: "old_orders", Target: "new_orders"},
		Columns: []ColumnSpec{{Column: "id", Primary: true}},
	}})
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, stats := range results {
		if !stats.Abandoned {
			t.Errorf("%s: expected abandoned", stats.Name)
		}
		if stats.Total != 0 || stats.Inserted != 0 {
			t.Errorf("%s: stats = %+v", stats.Name, stats)
		}
	}
	if n := env.Errors.Count(errclass.Database); n != 2 {
		t.Errorf("database errors = %d, want 2", n)
	}
	if tgt.calls != 0 {
		t.Errorf("target called %d times, want 0", tgt.calls)
	}
}

func TestRunMissingPrimaryColumn(t *testing.T) {
	src := &fakeSource{rows: makeRows(2)}
	env, _ := newTestEnv(src, &fakeTarget{})
	spec := usersSpec()
	spec.Columns[0].Primary = false

	stats, err := NewRunner(env).Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !stats.Abandoned {
		t.Error("expected abandoned migration")
	}
	if n := env.Errors.Count(errclass.Configuration); n != 1 {
		t.Errorf("configuration errors = %d, want 1", n)
	}
	if len(src.queries) != 0 {
		t.Error("source must not be queried without a primary column")
	}
}

func TestRunDryRun(t *testing.T) {
	src := &fakeSource{rows: makeRows(3)}
	tgt := &fakeTarget{}
	env, store := newTestEnv(src, tgt)
	env.Options.DryRun = true

	stats, err := NewRunner(env).Run(context.Background(), usersSpec())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Planned != 3 || stats.Inserted != 0 || stats.Success != 0 {
		t.Errorf("planned/inserted/success = %d/%d/%d, want 3/0/0", stats.Planned, stats.Inserted, stats.Success)
	}
	if stats.Processed() != stats.Total {
		t.Errorf("processed = %d, want %d", stats.Processed(), stats.Total)
	}
	if tgt.calls != 0 {
		t.Errorf("target called %d times in dry run", tgt.calls)
	}
	set, _ := store.Load(context.Background(), "users")
	if set.Len() != 0 {
		t.Errorf("dry run wrote %d checkpoint ids", set.Len())
	}
}

func TestRunRetriesTransientErrors(t *testing.T) {
	src := &fakeSource{rows: makeRows(1)}
	tgt := &fakeTarget{flaky: 2}
	env, _ := newTestEnv(src, tgt)
	env.Options.MaxRetries = 3
	env.Options.RetryDelay = time.Millisecond

	stats, err := NewRunner(env).Run(context.Background(), usersSpec())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Inserted != 1 || stats.Error != 0 {
		t.Errorf("stats = %+v, want inserted=1", stats)
	}
	if tgt.calls != 3 {
		t.Errorf("target calls = %d, want 3", tgt.calls)
	}
}

func TestRunGivesUpAfterMaxRetries(t *testing.T) {
	src := &fakeSource{rows: makeRows(1)}
	tgt := &fakeTarget{flaky: 10}
	env, _ := newTestEnv(src, tgt)
	env.Options.MaxRetries = 2
	env.Options.RetryDelay = time.Millisecond

	stats, _ := NewRunner(env).Run(context.Background(), usersSpec())
	if stats.Error != 1 {
		t.Errorf("errors = %d, want 1", stats.Error)
	}
	if tgt.calls != 3 {
		t.Errorf("target calls = %d, want 3", tgt.calls)
	}
}

func TestRunDoesNotRetryRowErrors(t *testing.T) {
	src := &fakeSource{rows: makeRows(1)}
	tgt := &fakeTarget{failIDs: map[any]error{int64(1): errors.New("null value in column violates not-null constraint")}}
	env, _ := newTestEnv(src, tgt)
	env.Options.MaxRetries = 5

	NewRunner(env).Run(context.Background(), usersSpec())
	if tgt.calls != 1 {
		t.Errorf("target calls = %d, want 1", tgt.calls)
	}
}

func TestRunCancelled(t *testing.T) {
	src := &fakeSource{rows: makeRows(50)}
	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	tgt := &fakeTarget{onExec: func() { once.Do(cancel) }}
	env, store := newTestEnv(src, tgt)
	env.Options.Workers = 1
	env.Options.QueueSize = 1

	stats, err := NewRunner(env).Run(ctx, usersSpec())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if stats.Inserted == 0 || stats.Inserted >= 50 {
		t.Errorf("inserted = %d, want a partial load", stats.Inserted)
	}
	if tgt.calls != stats.Inserted {
		t.Errorf("target calls = %d, inserted = %d: a row taken by a worker must finish", tgt.calls, stats.Inserted)
	}

	set, _ := store.Load(context.Background(), "users")
	if set.Len() != stats.Inserted {
		t.Errorf("checkpoint has %d ids, inserted %d", set.Len(), stats.Inserted)
	}
}

func TestRunAllStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	env, _ := newTestEnv(&fakeSource{rows: makeRows(2)}, &fakeTarget{})

	results, err := NewRunner(env).RunAll(ctx, []MigrationSpec{usersSpec(), usersSpec()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunAll() error = %v, want context.Canceled", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}

func TestRunConcurrentWorkersCheckpointEveryRow(t *testing.T) {
	src := &fakeSource{rows: makeRows(200)}
	tgt := &fakeTarget{}
	env, store := newTestEnv(src, tgt)
	env.Options.Workers = 8

	stats, err := NewRunner(env).Run(context.Background(), usersSpec())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Inserted != 200 {
		t.Errorf("inserted = %d, want 200", stats.Inserted)
	}
	set, _ := store.Load(context.Background(), "users")
	if set.Len() != 200 || len(set.IDs()) != 200 {
		t.Errorf("checkpoint distinct=%d entries=%d, want 200", set.Len(), len(set.IDs()))
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{driver.ErrBadConn, true},
		{fmt.Errorf("exec: %w", driver.ErrBadConn), true},
		{errors.New("read tcp 10.0.0.1:5432: connection reset by peer"), true},
		{errors.New("write: broken pipe"), true},
		{errors.New("duplicate key value violates unique constraint"), false},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRowTimer(t *testing.T) {
	var timer RowTimer
	if got := timer.MeanMillis(); got != 0 {
		t.Errorf("empty mean = %v, want 0", got)
	}
	timer.Observe(10 * time.Millisecond)
	timer.Observe(20 * time.Millisecond)
	if got := timer.MeanMillis(); got != 15 {
		t.Errorf("mean = %v, want 15", got)
	}

	for i := 0; i < RowTimerWindow; i++ {
		timer.Observe(2 * time.Millisecond)
	}
	if got := timer.MeanMillis(); got != 2 {
		t.Errorf("mean after window = %v, want 2", got)
	}
}

func TestPhaseString(t *testing.T) {
	if PhaseLoading.String() != "loading" || PhaseCompleted.String() != "completed" {
		t.Error("unexpected phase names")
	}
}
