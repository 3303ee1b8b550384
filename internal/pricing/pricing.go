// Package pricing computes the cost breakdown for a selected date range.
// Amounts are integer cents.
package pricing

import (
	"errors"
	"fmt"

	"rentcal/internal/calendar"
	"rentcal/internal/selection"
)

var (
	ErrIncompleteRange = selection.ErrIncompleteRange
	ErrNegativeAmount  = errors.New("amount must not be negative")
)

// PriceQuote is the cost breakdown of a complete range.
type PriceQuote struct {
	Days             int   `json:"days"`
	RatePerDayCents  int64 `json:"rate_per_day_cents"`
	SubtotalCents    int64 `json:"subtotal_cents"`
	DepositCents     int64 `json:"deposit_cents"`
	PlatformFeeCents int64 `json:"platform_fee_cents"`
	TotalCents       int64 `json:"total_cents"`
}

// Quote prices r. Days counts both ends.
func Quote(r selection.PendingRange, ratePerDay, deposit, platformFee int64) (PriceQuote, error) {
	if r.State() != selection.StateComplete {
		return PriceQuote{}, ErrIncompleteRange
	}
	if ratePerDay < 0 || deposit < 0 || platformFee < 0 {
		return PriceQuote{}, ErrNegativeAmount
	}

	days, err := calendar.CountDaysInclusive(r.Start, r.End)
	if err != nil {
		return PriceQuote{}, fmt.Errorf("count days: %w", err)
	}

	subtotal := int64(days) * ratePerDay
	return PriceQuote{
		Days:             days,
		RatePerDayCents:  ratePerDay,
		SubtotalCents:    subtotal,
		DepositCents:     deposit,
		PlatformFeeCents: platformFee,
		TotalCents:       subtotal + deposit + platformFee,
	}, nil
}

// FormatCents renders cents as "123.45".
func FormatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}
