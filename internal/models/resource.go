// Package models holds the typed records shared by storage, service and API.
package models

import (
	"fmt"
	"time"

	"rentcal/internal/calendar"
)

// ResourceKind distinguishes lendable items from bookable services.
type ResourceKind string

const (
	KindItem    ResourceKind = "item"
	KindService ResourceKind = "service"
)

// Resource is a bookable entity with recurring weekly unavailability.
type Resource struct {
	ID                  string              `json:"id"`
	Name                string              `json:"name"`
	Kind                ResourceKind        `json:"kind"`
	RatePerDayCents     int64               `json:"rate_per_day_cents"`
	DepositCents        int64               `json:"deposit_cents"`
	PlatformFeeCents    int64               `json:"platform_fee_cents"`
	Timezone            string              `json:"timezone"`
	UnavailableWeekdays calendar.WeekdaySet `json:"-"`
	IsActive            bool                `json:"is_active"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// NewResource validates every field. Missing values are errors, not defaults.
func NewResource(
	id, name string,
	kind ResourceKind,
	ratePerDay, deposit, platformFee int64,
	timezone string,
	unavailable calendar.WeekdaySet,
) (*Resource, error) {
	r := &Resource{
		ID:                  id,
		Name:                name,
		Kind:                kind,
		RatePerDayCents:     ratePerDay,
		DepositCents:        deposit,
		PlatformFeeCents:    platformFee,
		Timezone:            timezone,
		UnavailableWeekdays: unavailable,
		IsActive:            true,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the record invariants.
func (r *Resource) Validate() error {
	if r.ID == "" {
		return ErrMissingResourceID
	}
	if r.Name == "" {
		return fmt.Errorf("resource %s: name is required", r.ID)
	}
	switch r.Kind {
	case KindItem, KindService:
	default:
		return fmt.Errorf("resource %s: unknown kind %q", r.ID, r.Kind)
	}
	if r.RatePerDayCents < 0 || r.DepositCents < 0 || r.PlatformFeeCents < 0 {
		return fmt.Errorf("resource %s: amounts cannot be negative", r.ID)
	}
	if r.Timezone == "" {
		return fmt.Errorf("resource %s: timezone is required", r.ID)
	}
	if _, err := time.LoadLocation(r.Timezone); err != nil {
		return fmt.Errorf("resource %s: invalid timezone %q: %w", r.ID, r.Timezone, err)
	}
	return nil
}

// Location returns the resource's timezone, UTC if it cannot be loaded.
func (r *Resource) Location() *time.Location {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// BlackoutDate is a single day on which a resource is closed.
type BlackoutDate struct {
	ResourceID string           `json:"resource_id"`
	Date       calendar.DateKey `json:"date"`
	Reason     string           `json:"reason,omitempty"`
}
