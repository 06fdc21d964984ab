package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/johndauphine/rowmigrate/internal/logging"
	"github.com/johndauphine/rowmigrate/internal/transfer"
)

// BarReporter draws a progress bar per migration.
type BarReporter struct {
	writer io.Writer
	bar    *progressbar.ProgressBar
}

// NewBarReporter creates a bar reporter writing to w (stdout when nil).
func NewBarReporter(w io.Writer) *BarReporter {
	if w == nil {
		w = os.Stdout
	}
	return &BarReporter{writer: w}
}

// Start creates the bar sized to the rows left to load.
func (r *BarReporter) Start(stats transfer.MigrationStats) {
	r.bar = progressbar.NewOptions64(
		int64(stats.Total),
		progressbar.OptionSetWriter(r.writer),
		progressbar.OptionSetDescription(fmt.Sprintf("Migrating %s", stats.Name)),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("rows"),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Update moves the bar to the processed count and notes errors in the description.
func (r *BarReporter) Update(stats transfer.MigrationStats, avgRowMs float64) {
	if r.bar == nil {
		return
	}
	if stats.Error > 0 {
		r.bar.Describe(fmt.Sprintf("Migrating %s (%d errors)", stats.Name, stats.Error))
	}
	r.bar.Set64(int64(stats.Processed()))
}

// Finish completes the bar and logs the throughput.
func (r *BarReporter) Finish(stats transfer.MigrationStats) {
	if r.bar != nil {
		r.bar.Finish()
		r.bar = nil
		fmt.Fprintln(r.writer)
	}
	if stats.Abandoned {
		return
	}

	elapsed := time.Duration(stats.Time) * time.Millisecond
	var rowsPerSec float64
	if elapsed > 0 {
		rowsPerSec = float64(stats.Inserted) / elapsed.Seconds()
	}
	logging.Info("Migration %s complete: %d rows in %s (%.0f rows/sec)",
		stats.Name, stats.Inserted, elapsed.Round(time.Millisecond), rowsPerSec)
}

// Close does nothing; each migration's bar is finished in Finish.
func (r *BarReporter) Close() {}
