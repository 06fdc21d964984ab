package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/johndauphine/rowmigrate/internal/logging"
	"github.com/johndauphine/rowmigrate/internal/transfer"
)

// Modes accepted by New.
const (
	ModeAuto = "auto"
	ModeBar  = "bar"
	ModeText = "text"
	ModeJSON = "json"
	ModeNone = "none"
)

// Reporter is implemented by every display. The runner calls it from a
// single goroutine.
type Reporter interface {
	transfer.Reporter
	Close()
}

// New returns the reporter for mode. ModeAuto picks a progress bar when
// stdout is a terminal and nothing otherwise.
func New(mode string, w io.Writer) (Reporter, error) {
	switch strings.ToLower(mode) {
	case "", ModeAuto:
		if isTerminal(os.Stdout) {
			return NewBarReporter(w), nil
		}
		return &NullReporter{}, nil
	case ModeBar:
		return NewBarReporter(w), nil
	case ModeText:
		return NewTextReporter(w), nil
	case ModeJSON:
		return NewJSONReporter(w, time.Second), nil
	case ModeNone:
		return &NullReporter{}, nil
	default:
		return nil, fmt.Errorf("unknown progress mode: %s (valid: auto, bar, text, json, none)", mode)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// TextReporter clears the terminal and redraws Format on every update.
type TextReporter struct {
	writer io.Writer
}

// NewTextReporter creates a text reporter writing to w (stdout when nil).
func NewTextReporter(w io.Writer) *TextReporter {
	if w == nil {
		w = os.Stdout
	}
	return &TextReporter{writer: w}
}

// Start draws the initial block.
func (r *TextReporter) Start(stats transfer.MigrationStats) {
	r.Update(stats, 0)
}

// Update redraws the block.
func (r *TextReporter) Update(stats transfer.MigrationStats, avgRowMs float64) {
	fmt.Fprint(r.writer, ClearScreen+Format(stats, avgRowMs))
}

// Finish leaves the last block on screen.
func (r *TextReporter) Finish(stats transfer.MigrationStats) {
	fmt.Fprintln(r.writer)
}

// Close does nothing.
func (r *TextReporter) Close() {}

// Update is one JSON progress line, for automation.
type Update struct {
	Timestamp     string   `json:"timestamp"`
	Migration     string   `json:"migration"`
	Phase         string   `json:"phase"`
	Inserted      int      `json:"inserted"`
	Errors        int      `json:"errors"`
	Total         int      `json:"total"`
	Skipped       int      `json:"skipped"`
	ProgressPct   *float64 `json:"progress_pct,omitempty"`
	ElapsedMs     int64    `json:"elapsed_ms"`
	AvgRowMs      float64  `json:"avg_row_ms"`
	EstimatedSecs float64  `json:"estimated_secs"`
}

// JSONReporter writes JSON progress lines (typically to stderr).
type JSONReporter struct {
	writer     io.Writer
	mu         sync.Mutex
	interval   time.Duration
	lastReport time.Time
	closed     bool
}

// NewJSONReporter creates a new JSON progress reporter.
// interval specifies the minimum time between updates.
func NewJSONReporter(writer io.Writer, interval time.Duration) *JSONReporter {
	if writer == nil {
		writer = os.Stderr
	}
	return &JSONReporter{
		writer:   writer,
		interval: interval,
	}
}

// Start emits an update immediately.
func (r *JSONReporter) Start(stats transfer.MigrationStats) {
	r.emit(stats, 0, true)
}

// Update emits an update unless one was written within the interval.
func (r *JSONReporter) Update(stats transfer.MigrationStats, avgRowMs float64) {
	r.emit(stats, avgRowMs, false)
}

// Finish emits the final update immediately.
func (r *JSONReporter) Finish(stats transfer.MigrationStats) {
	r.emit(stats, 0, true)
}

// Close stops further output.
func (r *JSONReporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *JSONReporter) emit(stats transfer.MigrationStats, avgRowMs float64, immediate bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	now := time.Now()
	if !immediate && r.interval > 0 && now.Sub(r.lastReport) < r.interval {
		return
	}
	r.lastReport = now

	update := Update{
		Timestamp:     now.Format(time.RFC3339),
		Migration:     stats.Name,
		Phase:         stats.Phase.String(),
		Inserted:      stats.Inserted,
		Errors:        stats.Error,
		Total:         stats.Total,
		Skipped:       stats.Skipped,
		ElapsedMs:     stats.Time,
		AvgRowMs:      avgRowMs,
		EstimatedSecs: EstimatedSeconds(stats, avgRowMs),
	}
	// NaN is not valid JSON
	if pct := Percentage(stats); !math.IsNaN(pct) {
		update.ProgressPct = &pct
	}

	data, err := json.Marshal(update)
	if err != nil {
		logging.Warn("Failed to marshal progress update: %v", err)
		return
	}
	fmt.Fprintln(r.writer, string(data))
}

// NullReporter is a no-op reporter for when progress reporting is disabled.
type NullReporter struct{}

func (r *NullReporter) Start(transfer.MigrationStats)           {}
func (r *NullReporter) Update(transfer.MigrationStats, float64) {}
func (r *NullReporter) Finish(transfer.MigrationStats)          {}
func (r *NullReporter) Close()                                  {}
