package availability

import (
	"fmt"

	"rentcal/internal/calendar"
	"rentcal/internal/models"
)

// BuildBlockedMap expands the weekly rules and then unions in every active
// reservation of resourceID. Reservation boundaries are tagged so a calendar
// can draw them distinctly. Reservations outside the horizon are still marked.
func BuildBlockedMap(
	resourceID string,
	unavailable calendar.WeekdaySet,
	reservations []models.Reservation,
	horizonMonths int,
	anchor calendar.DateKey,
) (BlockedDateMap, error) {
	blocked, err := Expand(unavailable, horizonMonths, anchor)
	if err != nil {
		return nil, err
	}

	for i := range reservations {
		r := &reservations[i]
		if r.ResourceID != resourceID || !r.IsActive() {
			continue
		}
		if err := MarkReservation(blocked, r.StartDate, r.EndDate); err != nil {
			return nil, fmt.Errorf("reservation %s: %w", r.ID, err)
		}
	}

	return blocked, nil
}

// MarkReservation blocks start..end and tags both boundaries.
func MarkReservation(m BlockedDateMap, start, end calendar.DateKey) error {
	days, err := calendar.DaysBetweenInclusive(start, end)
	if err != nil {
		return err
	}
	for _, d := range days {
		m.Block(d, ReasonBooked)
	}

	first := m[start]
	first.IsRangeStart = true
	m[start] = first

	last := m[end]
	last.IsRangeEnd = true
	m[end] = last
	return nil
}

// FindNextAvailableDate scans forward starting the day after from. It returns
// false when every day within maxLookaheadDays is blocked; that is a normal
// "fully booked" outcome, not an error.
func FindNextAvailableDate(from calendar.DateKey, blocked BlockedDateMap, maxLookaheadDays int) (calendar.DateKey, bool) {
	if maxLookaheadDays <= 0 {
		maxLookaheadDays = DefaultMaxLookaheadDays
	}
	for i := 1; i <= maxLookaheadDays; i++ {
		d := calendar.AddDays(from, i)
		if !blocked.IsBlocked(d) {
			return d, true
		}
	}
	return "", false
}

// RangeConflicts lists the days of start..end blocked by the weekly rules, a
// blackout date or an active reservation. It is the check a store runs inside
// its write transaction before creating a reservation.
func RangeConflicts(
	unavailable calendar.WeekdaySet,
	reservations []models.Reservation,
	blackout []calendar.DateKey,
	start, end calendar.DateKey,
) ([]calendar.DateKey, error) {
	days, err := calendar.DaysBetweenInclusive(start, end)
	if err != nil {
		return nil, err
	}

	closed := make(map[calendar.DateKey]struct{}, len(blackout))
	for _, d := range blackout {
		closed[d] = struct{}{}
	}

	var conflicts []calendar.DateKey
	for _, d := range days {
		if unavailable.Has(calendar.WeekdayOf(d)) {
			conflicts = append(conflicts, d)
			continue
		}
		if _, ok := closed[d]; ok {
			conflicts = append(conflicts, d)
			continue
		}
		for i := range reservations {
			if reservations[i].IsActive() && reservations[i].ContainsDate(d) {
				conflicts = append(conflicts, d)
				break
			}
		}
	}

	return conflicts, nil
}
