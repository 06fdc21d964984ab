package orchestrator

import (
	"context"
	"fmt"
	"io"

	"github.com/johndauphine/rowmigrate/internal/checkpoint"
)

// MigrationStatus is the checkpoint state of one configured migration.
type MigrationStatus struct {
	Name     string `json:"name"`
	Recorded int    `json:"recorded"`
}

// Status reports how many primary keys each migration has recorded.
// It never creates checkpoint files.
func Status(ctx context.Context, store checkpoint.Store, names []string) ([]MigrationStatus, error) {
	load := store.Load
	if p, ok := store.(checkpoint.Peeker); ok {
		load = p.Peek
	}

	statuses := make([]MigrationStatus, 0, len(names))
	for _, name := range names {
		done, err := load(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("loading checkpoint for %s: %w", name, err)
		}
		statuses = append(statuses, MigrationStatus{Name: name, Recorded: done.Len()})
	}
	return statuses, nil
}

// ShowStatus prints Status as a table.
func ShowStatus(ctx context.Context, w io.Writer, store checkpoint.Store, names []string) error {
	statuses, err := Status(ctx, store, names)
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		fmt.Fprintln(w, "No migrations configured")
		return nil
	}

	fmt.Fprintf(w, "%-30s %s\n", "Migration", "Recorded")
	fmt.Fprintln(w, "---------------------------------------")
	for _, s := range statuses {
		fmt.Fprintf(w, "%-30s %d\n", s.Name, s.Recorded)
	}
	return nil
}

// ShowHistory prints the recorded runs. Only the SQLite backend keeps history.
func ShowHistory(ctx context.Context, w io.Writer, store checkpoint.Store, limit int) error {
	history, ok := store.(*checkpoint.SQLiteStore)
	if !ok {
		return fmt.Errorf("run history requires checkpoint.backend: sqlite")
	}

	runs, err := history.Runs(ctx, limit)
	if err != nil {
		return fmt.Errorf("reading run history: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No migration history")
		return nil
	}

	fmt.Fprintf(w, "%-10s %-20s %-20s %-22s %10s %8s\n", "ID", "Started", "Completed", "Status", "Inserted", "Errors")
	fmt.Fprintln(w, "--------------------------------------------------------------------------------------------")
	for _, r := range runs {
		completed := "-"
		if r.CompletedAt != nil {
			completed = r.CompletedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%-10s %-20s %-20s %-22s %10d %8d\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), completed, r.Status, r.Inserted, r.Errors)
		if r.Summary != "" && r.Summary != "none" {
			fmt.Fprintf(w, "           Errors: %s\n", r.Summary)
		}
	}
	return nil
}
