package domain

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for dates in queue messages.
const DateLayout = "2006-01-02"

// DayBounds computes the UTC day window [00:00:00.000, 23:59:59.999] for a
// YYYY-MM-DD date string. The boundary is anchored to UTC so it is stable
// regardless of the host timezone.
func DayBounds(date string) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	start := day
	end := day.Add(24*time.Hour - time.Millisecond)
	return start, end, nil
}

// TruncateToDay drops the time-of-day component in UTC.
func TruncateToDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// ToMillis converts a time to Unix milliseconds.
func ToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts Unix milliseconds back to a UTC time. It is the exact
// inverse of ToMillis for all representable millisecond timestamps.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// ISOWeekKey returns the archive key for the ISO year-week containing t,
// e.g. "2025-W23".
func ISOWeekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// WeekStart computes the start of the seven-day window ending at weekEnd.
func WeekStart(weekEnd time.Time) time.Time {
	return TruncateToDay(weekEnd).AddDate(0, 0, -6)
}
