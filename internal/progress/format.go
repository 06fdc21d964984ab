// Package progress renders per-migration statistics for operators.
package progress

import (
	"fmt"
	"math"

	"github.com/johndauphine/rowmigrate/internal/transfer"
)

// ClearScreen moves the cursor home and clears an ANSI terminal.
const ClearScreen = "\033[H\033[2J"

// Format renders stats as the multi-line progress block. avgRowMs is the mean
// per-row duration in milliseconds. Percentage is (inserted+error)/total*100
// and is NaN when total is 0.
func Format(stats transfer.MigrationStats, avgRowMs float64) string {
	return fmt.Sprintf(`
        Migration: %s
        Inserted: %d
        Total: %d
        Percentage: %s%%
        TimeTaken: %ss
        Estimated Time: %ss
        Error: %d
    `,
		stats.Name,
		stats.Inserted,
		stats.Total,
		transfer.FormatNumber(Percentage(stats)),
		transfer.FormatNumber(float64(stats.Time)/1000),
		transfer.FormatNumber(EstimatedSeconds(stats, avgRowMs)),
		stats.Error,
	)
}

// Percentage returns the share of rows processed, in percent.
func Percentage(stats transfer.MigrationStats) float64 {
	if stats.Total == 0 {
		return math.NaN()
	}
	return float64(stats.Processed()) / float64(stats.Total) * 100
}

// EstimatedSeconds projects the total loading time from the mean row duration.
func EstimatedSeconds(stats transfer.MigrationStats, avgRowMs float64) float64 {
	return avgRowMs * float64(stats.Total) / 1000
}
