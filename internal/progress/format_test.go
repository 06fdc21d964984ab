package progress

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/johndauphine/rowmigrate/internal/transfer"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		stats    transfer.MigrationStats
		avgRowMs float64
		want     []string
	}{
		{
			name:     "basic",
			stats:    transfer.MigrationStats{Name: "test_migration", Inserted: 100, Total: 1000, Time: 5000, Error: 10},
			avgRowMs: 50,
			want: []string{
				"Migration: test_migration", "Inserted: 100", "Total: 1000", "Percentage: 11%",
				"TimeTaken: 5s", "Estimated Time: 50s", "Error: 10",
			},
		},
		{
			name:     "zero values",
			stats:    transfer.MigrationStats{Name: "empty_migration"},
			avgRowMs: 0,
			want: []string{
				"Migration: empty_migration", "Inserted: 0", "Total: 0", "Percentage: NaN%",
				"TimeTaken: 0s", "Estimated Time: 0s", "Error: 0",
			},
		},
		{
			name:     "large values",
			stats:    transfer.MigrationStats{Name: "large_migration", Inserted: 50000, Total: 100000, Time: 300000, Error: 1000},
			avgRowMs: 300,
			want:     []string{"Percentage: 51%", "TimeTaken: 300s", "Estimated Time: 30000s", "Error: 1000"},
		},
		{
			name:     "partial",
			stats:    transfer.MigrationStats{Name: "partial", Inserted: 250, Total: 1000, Time: 12500, Error: 50},
			avgRowMs: 50,
			want:     []string{"Percentage: 30%", "TimeTaken: 12.5s", "Estimated Time: 50s"},
		},
		{
			name:     "fractional average",
			stats:    transfer.MigrationStats{Name: "decimal", Inserted: 100, Total: 1000, Time: 1234},
			avgRowMs: 12.34,
			want:     []string{"Percentage: 10%", "TimeTaken: 1.234s", "Estimated Time: 12.34s"},
		},
		{
			name:     "sub-millisecond rows",
			stats:    transfer.MigrationStats{Name: "fast", Inserted: 10, Total: 100, Time: 50},
			avgRowMs: 0.5,
			want:     []string{"Percentage: 10%", "TimeTaken: 0.05s", "Estimated Time: 0.05s"},
		},
		{
			name:  "one third",
			stats: transfer.MigrationStats{Name: "third", Inserted: 1, Total: 3},
			want:  []string{"Percentage: 33.33333333333333%"},
		},
		{
			name:  "errors count as processed",
			stats: transfer.MigrationStats{Name: "seven", Inserted: 5, Error: 2, Total: 100},
			want:  []string{"Percentage: 7.000000000000001%"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Format(tt.stats, tt.avgRowMs)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("Format() missing %q in:\n%s", w, got)
				}
			}
		})
	}
}

func TestFormatLineOrder(t *testing.T) {
	got := Format(transfer.MigrationStats{Name: "m", Total: 1}, 0)
	order := []string{"Migration:", "Inserted:", "Total:", "Percentage:", "TimeTaken:", "Estimated Time:", "Error:"}
	last := -1
	for _, label := range order {
		i := strings.Index(got, label)
		if i <= last {
			t.Fatalf("%q out of order in:\n%s", label, got)
		}
		last = i
	}
}

func TestTextReporterClearsScreen(t *testing.T) {
	var buf bytes.Buffer
	r := NewTextReporter(&buf)
	r.Update(transfer.MigrationStats{Name: "users", Inserted: 1, Total: 2}, 3)

	out := buf.String()
	if !strings.HasPrefix(out, ClearScreen) {
		t.Errorf("output does not start with clear sequence: %q", out)
	}
	if !strings.Contains(out, "Percentage: 50%") {
		t.Errorf("output missing percentage: %q", out)
	}
}

func TestJSONReporterThrottles(t *testing.T) {
	var buf bytes.Buffer
	r := NewJSONReporter(&buf, time.Hour)
	stats := transfer.MigrationStats{Name: "users", Total: 4}

	r.Start(stats)
	for i := 1; i <= 3; i++ {
		stats.Inserted = i
		r.Update(stats, 1)
	}
	stats.Inserted = 4
	stats.Phase = transfer.PhaseCompleted
	r.Finish(stats)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2 (start and finish):\n%s", len(lines), buf.String())
	}

	var last Update
	if err := json.Unmarshal([]byte(lines[1]), &last); err != nil {
		t.Fatalf("invalid JSON line: %v", err)
	}
	if last.Migration != "users" || last.Inserted != 4 || last.Phase != "completed" {
		t.Errorf("last update = %+v", last)
	}
	if last.ProgressPct == nil || *last.ProgressPct != 100 {
		t.Errorf("progress_pct = %v, want 100", last.ProgressPct)
	}
}

func TestJSONReporterOmitsNaN(t *testing.T) {
	var buf bytes.Buffer
	r := NewJSONReporter(&buf, 0)
	r.Start(transfer.MigrationStats{Name: "empty"})

	if strings.Contains(buf.String(), "progress_pct") {
		t.Errorf("expected no progress_pct for empty migration: %s", buf.String())
	}

	r.Close()
	r.Finish(transfer.MigrationStats{Name: "empty"})
	if n := strings.Count(buf.String(), "\n"); n != 1 {
		t.Errorf("wrote %d lines, want 1 after Close", n)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		mode    string
		want    string
		wantErr bool
	}{
		{ModeBar, "*progress.BarReporter", false},
		{ModeText, "*progress.TextReporter", false},
		{ModeJSON, "*progress.JSONReporter", false},
		{ModeNone, "*progress.NullReporter", false},
		{"spinner", "", true},
	}
	for _, tt := range tests {
		r, err := New(tt.mode, &bytes.Buffer{})
		if tt.wantErr {
			if err == nil {
				t.Errorf("New(%q) expected error", tt.mode)
			}
			continue
		}
		if err != nil {
			t.Fatalf("New(%q) error = %v", tt.mode, err)
		}
		if got := typeName(r); got != tt.want {
			t.Errorf("New(%q) = %s, want %s", tt.mode, got, tt.want)
		}
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *BarReporter:
		return "*progress.BarReporter"
	case *TextReporter:
		return "*progress.TextReporter"
	case *JSONReporter:
		return "*progress.JSONReporter"
	case *NullReporter:
		return "*progress.NullReporter"
	}
	return "unknown"
}

func TestBarReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewBarReporter(&buf)
	stats := transfer.MigrationStats{Name: "users", Total: 3}
	r.Start(stats)
	stats.Inserted = 2
	stats.Error = 1
	r.Update(stats, 1)
	stats.Time = 10
	r.Finish(stats)

	if !strings.Contains(buf.String(), "Migrating users") {
		t.Errorf("bar output missing description: %q", buf.String())
	}
}
