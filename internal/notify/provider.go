package notify

import "time"

// RunSummary describes a finished run for notifications.
type RunSummary struct {
	RunID      string
	StartTime  time.Time
	Duration   time.Duration
	Migrations int
	Inserted   int64
	Errors     int64
	Throughput float64 // rows per second

	// Abandoned lists migrations that loaded nothing because setup or extraction failed.
	Abandoned []string

	// ErrorSummary is the classifier's per-kind counts, formatted.
	ErrorSummary string
}

// Provider defines the notification contract for run events.
// This interface allows for different notification backends
// and enables easier testing through mock implementations.
type Provider interface {
	// RunStarted sends notification when a run starts.
	RunStarted(runID, source, target string, migrations int) error

	// RunCompleted sends notification when every row of every migration loaded.
	RunCompleted(s RunSummary) error

	// RunCompletedWithErrors sends notification when a run finished with row
	// errors or abandoned migrations.
	RunCompletedWithErrors(s RunSummary) error

	// RunFailed sends notification when a run could not start or was cancelled.
	RunFailed(runID string, err error, duration time.Duration) error

	// MigrationAbandoned sends notification for one abandoned migration.
	MigrationAbandoned(runID, migration string, err error) error
}

// Ensure Notifier implements Provider
var _ Provider = (*Notifier)(nil)

// Nop discards every notification.
type Nop struct{}

func (Nop) RunStarted(string, string, string, int) error   { return nil }
func (Nop) RunCompleted(RunSummary) error                  { return nil }
func (Nop) RunCompletedWithErrors(RunSummary) error        { return nil }
func (Nop) RunFailed(string, error, time.Duration) error   { return nil }
func (Nop) MigrationAbandoned(string, string, error) error { return nil }
