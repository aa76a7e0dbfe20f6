package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - Reporting windows for earnings
// =============================================================================

// Period is a reporting window ending now.
type Period string

const (
	Period7Days  Period = "7d"
	Period30Days Period = "30d"
	Period90Days Period = "90d"
	Period1Year  Period = "1y"

	DefaultPeriod = Period30Days
)

// ParsePeriod accepts "7d", "30d", "90d" and "1y". An empty string yields
// the default of 30 days.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case "":
		return DefaultPeriod, nil
	case Period7Days, Period30Days, Period90Days, Period1Year:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q (use 7d, 30d, 90d or 1y)", ErrInvalidPeriod, s)
}

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// WindowAt returns the window of the period that ends at now.
func (p Period) WindowAt(now time.Time) Window {
	now = now.UTC()
	var start time.Time
	switch p {
	case Period7Days:
		start = now.AddDate(0, 0, -7)
	case Period90Days:
		start = now.AddDate(0, 0, -90)
	case Period1Year:
		start = now.AddDate(-1, 0, 0)
	default:
		start = now.AddDate(0, 0, -30)
	}
	return Window{Start: start, End: now.Add(time.Nanosecond)}
}

// MonthStart returns midnight UTC on the first day of t's month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthWindow is the calendar month containing t.
func MonthWindow(t time.Time) Window {
	start := MonthStart(t)
	return Window{Start: start, End: start.AddDate(0, 1, 0)}
}

// TrailingMonths returns n calendar months ending with the month of now,
// oldest first.
func TrailingMonths(now time.Time, n int) []Window {
	current := MonthStart(now)
	months := make([]Window, n)
	for i := 0; i < n; i++ {
		start := current.AddDate(0, -(n - 1 - i), 0)
		months[i] = Window{Start: start, End: start.AddDate(0, 1, 0)}
	}
	return months
}
