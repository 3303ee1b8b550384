package availability

import (
	"errors"
	"fmt"
	"time"

	"rentcal/internal/calendar"
)

const (
	// DefaultHorizonMonths covers the current month and the two after it.
	DefaultHorizonMonths = 3
	// DefaultMaxLookaheadDays bounds FindNextAvailableDate.
	DefaultMaxLookaheadDays = 365
)

var ErrInvalidHorizon = errors.New("horizon must be at least one month")

// Expand marks every day of horizonMonths calendar months, starting at the
// anchor's month, as blocked when its weekday is in unavailable. Days before
// the anchor are not emitted.
func Expand(unavailable calendar.WeekdaySet, horizonMonths int, anchor calendar.DateKey) (BlockedDateMap, error) {
	if horizonMonths <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidHorizon, horizonMonths)
	}
	if !anchor.Valid() {
		return nil, fmt.Errorf("anchor: %w: %q", calendar.ErrInvalidDate, anchor)
	}

	year, month := anchor.Year(), anchor.Month()
	out := make(BlockedDateMap, horizonMonths*31)

	for i := 0; i < horizonMonths; i++ {
		// time.Date normalizes month 13 into January of the next year.
		first := time.Date(year, month+time.Month(i), 1, 0, 0, 0, 0, time.UTC)
		daysInMonth := calendar.DaysIn(first.Month(), first.Year())

		for day := 1; day <= daysInMonth; day++ {
			d := calendar.Date(first.Year(), first.Month(), day)
			if d.Before(anchor) {
				continue
			}
			if unavailable.Has(calendar.WeekdayOf(d)) {
				out[d] = DayMark{Blocked: true, Reason: ReasonWeekday}
				continue
			}
			out[d] = DayMark{}
		}
	}

	return out, nil
}

// HorizonEnd returns the last day covered by Expand for the same inputs.
func HorizonEnd(anchor calendar.DateKey, horizonMonths int) calendar.DateKey {
	if horizonMonths <= 0 {
		return anchor
	}
	// Day 0 of the month after the horizon is the horizon's last day.
	last := time.Date(anchor.Year(), anchor.Month()+time.Month(horizonMonths), 0, 0, 0, 0, 0, time.UTC)
	return calendar.FromTime(last)
}
