package transfer

import "time"

// Phase is the state of one migration.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseExtracting
	PhaseFiltering
	PhaseLoading
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseExtracting:
		return "extracting"
	case PhaseFiltering:
		return "filtering"
	case PhaseLoading:
		return "loading"
	case PhaseCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// MigrationStats are the per-migration counters. For a migration whose
// extraction succeeded and that was not cancelled,
// Inserted+Planned+Error == Total.
type MigrationStats struct {
	Name     string `json:"name"`
	Phase    Phase  `json:"-"`
	Total    int    `json:"total"`
	Inserted int    `json:"inserted"`
	Success  int    `json:"success"`
	Error    int    `json:"error"`
	ErrorIDs []any  `json:"error_ids,omitempty"`

	// Planned counts rows a dry run converted but did not write.
	Planned int `json:"planned,omitempty"`

	// Skipped counts rows dropped because their key was already checkpointed.
	Skipped int `json:"skipped"`

	// Time is the elapsed loading time in milliseconds.
	Time int64 `json:"time_ms"`

	// Abandoned is set when extraction or setup failed and no row was loaded.
	Abandoned bool   `json:"abandoned,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Processed returns the number of rows that finished loading either way.
func (s MigrationStats) Processed() int {
	return s.Inserted + s.Planned + s.Error
}

// RowTimerWindow is the number of recent row durations averaged for estimates.
const RowTimerWindow = 100

// RowTimer keeps the most recent RowTimerWindow per-row durations.
// Not safe for concurrent use.
type RowTimer struct {
	samples [RowTimerWindow]time.Duration
	next    int
	count   int
	sum     time.Duration
}

// Observe records one row duration, evicting the oldest past the window.
func (t *RowTimer) Observe(d time.Duration) {
	if t.count == RowTimerWindow {
		t.sum -= t.samples[t.next]
	} else {
		t.count++
	}
	t.samples[t.next] = d
	t.sum += d
	t.next = (t.next + 1) % RowTimerWindow
}

// MeanMillis returns the mean of the recorded durations in milliseconds,
// or 0 when nothing was recorded.
func (t *RowTimer) MeanMillis() float64 {
	if t.count == 0 {
		return 0
	}
	return float64(t.sum) / float64(t.count) / float64(time.Millisecond)
}
