// Package availability turns weekly rules, blackout days and reservations
// into a per-date blocked map for a resource.
package availability

import (
	"sort"

	"rentcal/internal/calendar"
)

// BlockReason explains why a date is blocked.
type BlockReason string

const (
	ReasonWeekday  BlockReason = "weekday"
	ReasonBlackout BlockReason = "blackout"
	ReasonBooked   BlockReason = "booked"
)

// reasonRank decides which reason wins when several sources block a date.
var reasonRank = map[BlockReason]int{
	"":             0,
	ReasonWeekday:  1,
	ReasonBlackout: 2,
	ReasonBooked:   3,
}

// DayMark is the per-date marker. Selected is only set by the range selector.
type DayMark struct {
	Blocked      bool        `json:"blocked"`
	Selected     bool        `json:"selected,omitempty"`
	IsRangeStart bool        `json:"is_range_start,omitempty"`
	IsRangeEnd   bool        `json:"is_range_end,omitempty"`
	Reason       BlockReason `json:"reason,omitempty"`
}

// BlockedDateMap maps each date of the horizon to its marker. A date missing
// from the map is treated as open.
type BlockedDateMap map[calendar.DateKey]DayMark

// IsBlocked reports whether d is blocked. Absent dates are open.
func (m BlockedDateMap) IsBlocked(d calendar.DateKey) bool {
	return m[d].Blocked
}

// Block marks d blocked. Blocking never clears an existing block.
func (m BlockedDateMap) Block(d calendar.DateKey, reason BlockReason) {
	mark := m[d]
	mark.Blocked = true
	if reasonRank[reason] > reasonRank[mark.Reason] {
		mark.Reason = reason
	}
	m[d] = mark
}

// Clone returns an independent copy.
func (m BlockedDateMap) Clone() BlockedDateMap {
	out := make(BlockedDateMap, len(m))
	for d, mark := range m {
		out[d] = mark
	}
	return out
}

// Window returns the days of m within start..end inclusive.
func (m BlockedDateMap) Window(start, end calendar.DateKey) BlockedDateMap {
	out := make(BlockedDateMap, len(m))
	for d, mark := range m {
		if d.Before(start) || d.After(end) {
			continue
		}
		out[d] = mark
	}
	return out
}

// Dates returns all keys in ascending order.
func (m BlockedDateMap) Dates() []calendar.DateKey {
	out := make([]calendar.DateKey, 0, len(m))
	for d := range m {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BlockedDates returns the blocked keys in ascending order.
func (m BlockedDateMap) BlockedDates() []calendar.DateKey {
	out := make([]calendar.DateKey, 0)
	for d, mark := range m {
		if mark.Blocked {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BlockDates unions extra dates into m.
func BlockDates(m BlockedDateMap, dates []calendar.DateKey, reason BlockReason) {
	for _, d := range dates {
		m.Block(d, reason)
	}
}
