package orchestrator

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/johndauphine/rowmigrate/internal/errclass"
	"github.com/johndauphine/rowmigrate/internal/report"
)

var (
	// Colors
	colorPurple = lipgloss.Color("#7D56F4")
	colorGreen  = lipgloss.Color("#04B575")
	colorYellow = lipgloss.Color("#FFC107")
	colorRed    = lipgloss.Color("#FF4141")
	colorGray   = lipgloss.Color("#626262")

	styleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPurple).
			Padding(0, 1)

	styleTitle = lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true)

	styleSuccess = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	styleWarning = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)

	styleError = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	styleMuted = lipgloss.NewStyle().
			Foreground(colorGray)
)

// printSummary writes the end-of-run box: a headline, one line per
// migration and the error counts by kind.
func printSummary(w io.Writer, result *report.Result, summary map[errclass.Kind]int) {
	var b strings.Builder

	switch result.Status {
	case report.StatusCancelled:
		b.WriteString(styleError.Render("Migration cancelled"))
	case report.StatusFailed:
		b.WriteString(styleError.Render("Migration failed"))
	default:
		b.WriteString(styleTitle.Render("All migrations completed"))
	}
	b.WriteString("\n")

	for _, s := range result.Migrations {
		if s.Abandoned {
			fmt.Fprintf(&b, "\n%-24s %s", s.Name, styleError.Render("abandoned: "+s.Reason))
			continue
		}
		line := fmt.Sprintf("inserted %d/%d", s.Inserted, s.Total)
		if s.Planned > 0 {
			line = fmt.Sprintf("would insert %d/%d", s.Planned, s.Total)
		}
		if s.Skipped > 0 {
			line += fmt.Sprintf(", skipped %d", s.Skipped)
		}
		if s.Error > 0 {
			fmt.Fprintf(&b, "\n%-24s %s %s", s.Name, line, styleWarning.Render(fmt.Sprintf("errors %d", s.Error)))
		} else {
			fmt.Fprintf(&b, "\n%-24s %s", s.Name, styleSuccess.Render(line))
		}
	}

	fmt.Fprintf(&b, "\n\n%s %s", styleMuted.Render("Errors:"), errclass.FormatSummary(summary))
	fmt.Fprintf(&b, "\n%s %.1fs, %.0f rows/sec", styleMuted.Render("Duration:"), result.DurationSeconds, result.RowsPerSecond)
	if result.DryRun {
		fmt.Fprintf(&b, "\n%s", styleWarning.Render("Dry run: nothing was written"))
	}

	fmt.Fprintln(w, styleBox.Render(b.String()))

	if result.Status == report.StatusCompletedWithErrors {
		fmt.Fprintln(w, styleWarning.Render("Migration completed with errors. Check the log for details."))
	}
}
