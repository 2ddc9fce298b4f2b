package core

import (
	"fmt"
	"strings"
	"time"
)

// DayLayout is the wire and bucket format of a calendar day.
const DayLayout = "2006-01-02"

// Month is a calendar month, independent of any location.
type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses YYYY-MM.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return Month{}, fmt.Errorf("parse month %q: %w", s, ErrInvalidInput)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// MonthOf returns the month containing t as seen from loc.
func MonthOf(t time.Time, loc *time.Location) Month {
	t = t.In(loc)
	return Month{Year: t.Year(), Month: t.Month()}
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Start is midnight of the first day of the month in loc.
func (m Month) Start(loc *time.Location) time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, loc)
}

// End is the last instant of the month in loc, so [Start, End] covers it.
func (m Month) End(loc *time.Location) time.Time {
	return m.Start(loc).AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// Days returns the number of calendar days in the month.
func (m Month) Days() int {
	return time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// StartOfDay truncates t to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DayKey returns the YYYY-MM-DD bucket of t in loc.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DayLayout)
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	DayLayout,
}

// Stored instants are kept within four-digit UTC years.
var (
	MinOccurredAt = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	MaxOccurredAt = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)
)

// ParseOccurredAt accepts RFC 3339 timestamps and offset-less date or
// datetime forms. Offset-less values are read as wall time in loc. The
// instant must fall between MinOccurredAt and MaxOccurredAt.
func ParseOccurredAt(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, Invalid("occurred_at is required (ISO date or datetime).")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return checkRange(t)
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return checkRange(t)
		}
	}
	return time.Time{}, Invalid("occurred_at is required (ISO date or datetime).")
}

func checkRange(t time.Time) (time.Time, error) {
	if t.Before(MinOccurredAt) || t.After(MaxOccurredAt) {
		return time.Time{}, Invalid("occurred_at is out of range (years 0001-9999 UTC).")
	}
	return t, nil
}
