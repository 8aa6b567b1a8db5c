// Package calendar does date-only arithmetic for ledger dates. All values are
// normalized to midnight UTC.
package calendar

import (
	"fmt"
	"time"
)

const Layout = "2006-01-02"

// Date truncates t to its calendar day at midnight UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func Parse(s string) (time.Time, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return t, nil
}

// AddMonths adds n months to t, clamping the day to the last day of the target
// month (Jan 31 + 1 month = Feb 28 or 29).
func AddMonths(t time.Time, n int) time.Time {
	t = Date(t)
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	day := t.Day()
	if last := DaysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func AddYears(t time.Time, n int) time.Time {
	return AddMonths(t, 12*n)
}

func AddDays(t time.Time, n int) time.Time {
	return Date(t).AddDate(0, 0, n)
}

func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// IsFuture reports whether the calendar day of t is strictly after today.
func IsFuture(t, today time.Time) bool {
	return Date(t).After(Date(today))
}
