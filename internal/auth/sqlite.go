package auth

import (
	"fmt"
	"strings"
	"time"
)

// Timestamps are stored as UTC RFC3339 text so that string comparison in SQL
// matches chronological order.
const timeFormat = time.RFC3339

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// normaliseTime truncates t to the stored precision so callers see the same
// value they would read back.
func normaliseTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// isUniqueViolation checks if an error is a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}
