// Package calendar implements date-only arithmetic over ISO "YYYY-MM-DD" keys.
//
// A DateKey never carries a time of day or a zone. All arithmetic is done on
// the date's own calendar fields (in UTC internally) so a DST change or a
// device offset can never move a date across midnight.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

// Layout is the canonical DateKey format.
const Layout = "2006-01-02"

var (
	ErrInvalidRange = errors.New("end date is before start date")
	ErrInvalidDate  = errors.New("invalid date; expected YYYY-MM-DD")
)

// DateKey is a calendar date in canonical YYYY-MM-DD form.
type DateKey string

// ParseDateKey validates s and returns it as a DateKey.
// Non-canonical spellings such as "2024-3-1" are rejected.
func ParseDateKey(s string) (DateKey, error) {
	t, err := time.Parse(Layout, s)
	if err != nil || t.Format(Layout) != s {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateKey(s), nil
}

// MustParse is ParseDateKey for constants and tests.
func MustParse(s string) DateKey {
	d, err := ParseDateKey(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FromTime takes the calendar fields of t in t's own location.
func FromTime(t time.Time) DateKey {
	return DateKey(t.Format(Layout))
}

// Date builds a DateKey, normalizing overflowing fields like time.Date does.
func Date(year int, month time.Month, day int) DateKey {
	return FromTime(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// Valid reports whether d is a canonical date.
func (d DateKey) Valid() bool {
	_, err := ParseDateKey(string(d))
	return err == nil
}

// Time returns midnight UTC of d. Invalid keys yield the zero time.
func (d DateKey) Time() time.Time {
	t, err := time.Parse(Layout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (d DateKey) String() string { return string(d) }

// Canonical keys sort lexicographically in chronological order.
func (d DateKey) Before(other DateKey) bool { return d < other }
func (d DateKey) After(other DateKey) bool  { return d > other }

// Year and Month of the date.
func (d DateKey) Year() int { return d.Time().Year() }

func (d DateKey) Month() time.Month { return d.Time().Month() }

// AddDays shifts d by n calendar days (n may be negative).
func AddDays(d DateKey, n int) DateKey {
	return FromTime(d.Time().AddDate(0, 0, n))
}

// DaysBetweenInclusive lists every date from start to end, ascending.
func DaysBetweenInclusive(start, end DateKey) ([]DateKey, error) {
	if !start.Valid() {
		return nil, fmt.Errorf("start: %w: %q", ErrInvalidDate, start)
	}
	if !end.Valid() {
		return nil, fmt.Errorf("end: %w: %q", ErrInvalidDate, end)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange, start, end)
	}

	first, last := start.Time(), end.Time()
	days := make([]DateKey, 0, int(last.Sub(first).Hours()/24)+1)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		days = append(days, FromTime(d))
	}
	return days, nil
}

// CountDaysInclusive returns len(DaysBetweenInclusive(start, end)) without
// building the slice.
func CountDaysInclusive(start, end DateKey) (int, error) {
	if !start.Valid() || !end.Valid() {
		return 0, ErrInvalidDate
	}
	if end.Before(start) {
		return 0, fmt.Errorf("%w: %s > %s", ErrInvalidRange, start, end)
	}
	// Both are UTC midnights, so the difference is an exact multiple of 24h.
	return int(end.Time().Sub(start.Time()).Hours()/24) + 1, nil
}

// DaysIn returns the number of days in month m of year.
func DaysIn(m time.Month, year int) int {
	switch m {
	case time.February:
		if (year%4 == 0 && year%100 != 0) || year%400 == 0 {
			return 29
		}
		return 28
	case time.April, time.June, time.September, time.November:
		return 30
	default:
		return 31
	}
}

// Clock abstracts the wall clock so Today stays testable.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

// Today is the current date in loc. A nil loc means UTC.
func Today(c Clock, loc *time.Location) DateKey {
	if c == nil {
		c = SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return FromTime(c.Now().In(loc))
}
