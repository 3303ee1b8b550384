// Package selection implements the two-tap date range picker used when a user
// books a resource.
package selection

import (
	"errors"

	"rentcal/internal/availability"
	"rentcal/internal/calendar"
)

// State of a PendingRange.
type State string

const (
	StateEmpty        State = "empty"
	StatePartialStart State = "partial_start"
	StateComplete     State = "complete"
)

// Reason explains why a tap or a commit was rejected.
type Reason string

const (
	ReasonNone                      Reason = ""
	ReasonInvalidDate               Reason = "invalid_date"
	ReasonDateBlocked               Reason = "date_blocked"
	ReasonRangeContainsBlockedDates Reason = "range_contains_blocked_dates"
	ReasonDoubleBooked              Reason = "double_booked"
	ReasonOutOfHorizon              Reason = "out_of_horizon"
)

var (
	ErrDateBlocked               = errors.New("this date is not available")
	ErrRangeContainsBlockedDates = errors.New("the selected range contains unavailable dates")
	ErrDoubleBooked              = errors.New("dates just got booked, please reselect")
	ErrIncompleteRange           = errors.New("date range is not complete")
	ErrOutOfHorizon              = errors.New("this date is outside the bookable window")
)

// Err maps a reason to its user-facing error. ReasonNone yields nil.
func (r Reason) Err() error {
	switch r {
	case ReasonNone:
		return nil
	case ReasonInvalidDate:
		return calendar.ErrInvalidDate
	case ReasonDateBlocked:
		return ErrDateBlocked
	case ReasonRangeContainsBlockedDates:
		return ErrRangeContainsBlockedDates
	case ReasonDoubleBooked:
		return ErrDoubleBooked
	case ReasonOutOfHorizon:
		return ErrOutOfHorizon
	default:
		return errors.New(string(r))
	}
}

// PendingRange is the in-progress selection. Empty keys mean "not set".
type PendingRange struct {
	Start calendar.DateKey `json:"start,omitempty"`
	End   calendar.DateKey `json:"end,omitempty"`
}

// State derives the selector state from which ends are set.
func (p PendingRange) State() State {
	switch {
	case p.Start == "":
		return StateEmpty
	case p.End == "":
		return StatePartialStart
	default:
		return StateComplete
	}
}

// Days lists the dates of a complete range.
func (p PendingRange) Days() ([]calendar.DateKey, error) {
	if p.State() != StateComplete {
		return nil, ErrIncompleteRange
	}
	return calendar.DaysBetweenInclusive(p.Start, p.End)
}

// TapResult is the outcome of OnDateTap.
type TapResult struct {
	State     PendingRange       `json:"state"`
	Accepted  bool               `json:"accepted"`
	Reason    Reason             `json:"reason,omitempty"`
	Conflicts []calendar.DateKey `json:"conflicts,omitempty"`
}

// OnDateTap advances the selection by one tap.
//
// A blocked tap is rejected and leaves the state untouched. From Empty or
// Complete a tap starts a new range. From PartialStart it closes the range,
// swapping the ends if needed; a range that covers any blocked date is
// rejected and the selection falls back to Empty.
func OnDateTap(tapped calendar.DateKey, state PendingRange, blocked availability.BlockedDateMap) TapResult {
	if !tapped.Valid() {
		return TapResult{State: state, Reason: ReasonInvalidDate}
	}
	if blocked.IsBlocked(tapped) {
		return TapResult{State: state, Reason: ReasonDateBlocked}
	}

	if state.State() != StatePartialStart {
		return TapResult{State: PendingRange{Start: tapped}, Accepted: true}
	}

	start, end := state.Start, tapped
	if end.Before(start) {
		start, end = end, start
	}

	days, err := calendar.DaysBetweenInclusive(start, end)
	if err != nil {
		// Only reachable with a corrupted start key.
		return TapResult{State: PendingRange{}, Reason: ReasonInvalidDate}
	}

	var conflicts []calendar.DateKey
	for _, d := range days {
		if blocked.IsBlocked(d) {
			conflicts = append(conflicts, d)
		}
	}
	if len(conflicts) > 0 {
		return TapResult{
			State:     PendingRange{},
			Reason:    ReasonRangeContainsBlockedDates,
			Conflicts: conflicts,
		}
	}

	return TapResult{State: PendingRange{Start: start, End: end}, Accepted: true}
}

// HighlightedDates layers the selection over a copy of the blocked map.
// Blocked dates keep their marker. A complete range tags its first and last
// day; a partial one tags only its start.
func HighlightedDates(state PendingRange, blocked availability.BlockedDateMap) availability.BlockedDateMap {
	out := blocked.Clone()

	switch state.State() {
	case StatePartialStart:
		mark := out[state.Start]
		mark.Selected = true
		mark.IsRangeStart = true
		out[state.Start] = mark

	case StateComplete:
		days, err := calendar.DaysBetweenInclusive(state.Start, state.End)
		if err != nil {
			return out
		}
		for _, d := range days {
			mark := out[d]
			mark.Selected = true
			out[d] = mark
		}

		first := out[state.Start]
		first.IsRangeStart = true
		out[state.Start] = first

		last := out[state.End]
		last.IsRangeEnd = true
		out[state.End] = last
	}

	return out
}

// Completion is what the selector hands to the persistence side once a range
// is complete.
type Completion struct {
	ResourceID string           `json:"resource_id"`
	StartDate  calendar.DateKey `json:"start_date"`
	EndDate    calendar.DateKey `json:"end_date"`
	DayCount   int              `json:"day_count"`
}

// Complete builds the Completion for resourceID.
func (p PendingRange) Complete(resourceID string) (Completion, error) {
	if p.State() != StateComplete {
		return Completion{}, ErrIncompleteRange
	}
	n, err := calendar.CountDaysInclusive(p.Start, p.End)
	if err != nil {
		return Completion{}, err
	}
	return Completion{
		ResourceID: resourceID,
		StartDate:  p.Start,
		EndDate:    p.End,
		DayCount:   n,
	}, nil
}
