package models

import (
	"errors"
	"fmt"
	"time"

	"rentcal/internal/calendar"
)

// Reservation statuses.
const (
	StatusConfirmed = "confirmed"
	StatusCanceled  = "canceled"
)

var (
	ErrMissingResourceID = errors.New("resource id is required")
	ErrReversedRange     = errors.New("start date must be before or equal to end date")
)

// Reservation is a confirmed date-range commitment against a resource.
type Reservation struct {
	ID         string           `json:"id"`
	ResourceID string           `json:"resource_id"`
	UserID     int64            `json:"user_id"`
	StartDate  calendar.DateKey `json:"start_date"`
	EndDate    calendar.DateKey `json:"end_date"`
	DayCount   int              `json:"day_count"`
	TotalCents int64            `json:"total_cents"`
	Status     string           `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	Version    int64            `json:"version"`
}

// NewReservation validates the range and fills DayCount.
func NewReservation(resourceID string, start, end calendar.DateKey) (*Reservation, error) {
	if resourceID == "" {
		return nil, ErrMissingResourceID
	}
	if !start.Valid() {
		return nil, fmt.Errorf("start_date: %w", calendar.ErrInvalidDate)
	}
	if !end.Valid() {
		return nil, fmt.Errorf("end_date: %w", calendar.ErrInvalidDate)
	}
	if end.Before(start) {
		return nil, ErrReversedRange
	}
	days, err := calendar.CountDaysInclusive(start, end)
	if err != nil {
		return nil, err
	}
	return &Reservation{
		ResourceID: resourceID,
		StartDate:  start,
		EndDate:    end,
		DayCount:   days,
		Status:     StatusConfirmed,
		Version:    1,
	}, nil
}

// IsActive reports whether the reservation still blocks its dates.
func (r *Reservation) IsActive() bool {
	return r.Status != StatusCanceled
}

// ContainsDate checks if the reservation covers d.
func (r *Reservation) ContainsDate(d calendar.DateKey) bool {
	return !d.Before(r.StartDate) && !d.After(r.EndDate)
}

// OverlapsRange uses inclusive boundaries on both sides.
func (r *Reservation) OverlapsRange(start, end calendar.DateKey) bool {
	return !r.EndDate.Before(start) && !end.Before(r.StartDate)
}

// OverlapsWith checks if two reservations share at least one date.
func (r *Reservation) OverlapsWith(other *Reservation) bool {
	return r.OverlapsRange(other.StartDate, other.EndDate)
}
