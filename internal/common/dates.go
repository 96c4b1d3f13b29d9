package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical calendar-day key: ISO, zero-padded.
const DateLayout = "2006-01-02"

// LocalDay returns the calendar day of ts in local time. History rows
// are keyed by the local day, not UTC, so a bar stamped 23:30-05:00
// does not land on the following date.
func LocalDay(ts time.Time) string {
	return ts.Local().Format(DateLayout)
}

// Today returns today's canonical date key in local time.
func Today(now time.Time) string {
	return now.Local().Format(DateLayout)
}

// NormalizeDate coerces loosely formatted date strings ("2024-1-5",
// "2024-01-05T00:00:00") to the canonical zero-padded form. Returns ""
// when the input cannot be interpreted as a calendar date.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, 'T'); idx > 0 {
		s = s[:idx]
	}
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return ""
	}
	y, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	d, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return ""
	}
	if y < 1900 || m < 1 || m > 12 || d < 1 || d > 31 {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}

// IsWeekend reports whether the canonical date string falls on a
// Saturday or Sunday. Malformed dates are treated as weekends so they
// never enter a series.
func IsWeekend(date string) bool {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return true
	}
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// ShortDate renders a canonical date as "Jan 2" for chart axis labels.
func ShortDate(date string) string {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return date
	}
	return t.Format("Jan 2")
}
