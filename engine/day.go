package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// DAY - Calendar-day value type (the engine never works at finer granularity)
// =============================================================================

// Day is a single calendar date, normalized to start-of-day UTC.
// All window arithmetic, allotment lookups, and booking keys use Day so that
// a wall-clock timestamp can never leak into a capacity decision.
type Day struct {
	t time.Time
}

// NewDay builds a Day from its components.
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf truncates a timestamp to its calendar day.
// The timestamp's own location decides which day it falls on.
func DayOf(t time.Time) Day {
	return NewDay(t.Year(), t.Month(), t.Day())
}

// Today returns the current calendar day.
// Callers that evaluate several rules in one logical operation must capture
// this ONCE and pass it down, so a midnight rollover cannot split the
// evaluation across two different days.
func Today() Day {
	return DayOf(time.Now())
}

// ParseDay parses "2006-01-02".
func ParseDay(s string) (Day, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DayOf(t), nil
}

// Comparison
func (d Day) Before(other Day) bool        { return d.t.Before(other.t) }
func (d Day) After(other Day) bool         { return d.t.After(other.t) }
func (d Day) Equal(other Day) bool         { return d.t.Equal(other.t) }
func (d Day) BeforeOrEqual(other Day) bool { return !d.After(other) }
func (d Day) AfterOrEqual(other Day) bool  { return !d.Before(other) }

// Properties
func (d Day) Year() int         { return d.t.Year() }
func (d Day) Month() time.Month { return d.t.Month() }
func (d Day) DayOfMonth() int   { return d.t.Day() }
func (d Day) IsZero() bool      { return d.t.IsZero() }
func (d Day) Time() time.Time   { return d.t }

// Arithmetic
func (d Day) AddDays(n int) Day { return Day{t: d.t.AddDate(0, 0, n)} }

// AddMonthsClamped adds n calendar months keeping the day-of-month, clamping
// to the last day of the target month when the origin day does not exist
// there. Aug 31 + 6 months is Feb 28 (29 in leap years), never Mar 2/3 as
// naive AddDate normalization would produce.
func (d Day) AddMonthsClamped(n int) Day {
	year, month := d.Year(), int(d.Month())+n
	year += (month - 1) / 12
	month = (month-1)%12 + 1
	if month < 1 {
		month += 12
		year--
	}
	day := d.DayOfMonth()
	if last := DaysInMonth(year, time.Month(month)); day > last {
		day = last
	}
	return NewDay(year, time.Month(month), day)
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// IsMonthEnd reports whether d is the last day of its month.
func (d Day) IsMonthEnd() bool {
	return d.DayOfMonth() == DaysInMonth(d.Year(), d.Month())
}

// SameMonth reports whether two days fall in the same month of the same year.
func (d Day) SameMonth(other Day) bool {
	return d.Year() == other.Year() && d.Month() == other.Month()
}

func (d Day) String() string { return d.t.Format("2006-01-02") }

func (d Day) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Day) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid date %s", s)
	}
	parsed, err := ParseDay(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// StartOfYear and EndOfYear bound a calendar year for range queries.
func StartOfYear(year int) Day { return NewDay(year, time.January, 1) }
func EndOfYear(year int) Day   { return NewDay(year, time.December, 31) }
