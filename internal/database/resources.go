package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"rentcal/internal/calendar"
	"rentcal/internal/models"
)

type rowScanner interface {
	Scan(dest ...any) error
}

const resourceColumns = `id, name, kind, rate_per_day_cents, deposit_cents, platform_fee_cents,
	timezone, unavailable_weekdays, is_active, created_at, updated_at`

func scanResource(row rowScanner) (*models.Resource, error) {
	var (
		r        models.Resource
		kind     string
		weekdays string
	)
	if err := row.Scan(
		&r.ID, &r.Name, &kind, &r.RatePerDayCents, &r.DepositCents, &r.PlatformFeeCents,
		&r.Timezone, &weekdays, &r.IsActive, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	r.Kind = models.ResourceKind(kind)

	set, err := decodeWeekdays(weekdays)
	if err != nil {
		return nil, fmt.Errorf("resource %s: %w", r.ID, err)
	}
	r.UnavailableWeekdays = set
	return &r, nil
}

func encodeWeekdays(s calendar.WeekdaySet) string {
	return strings.Join(s.Strings(), ",")
}

func decodeWeekdays(s string) (calendar.WeekdaySet, error) {
	if s == "" {
		return calendar.NewWeekdaySet(), nil
	}
	return calendar.ParseWeekdaySet(strings.Split(s, ","))
}

// UpsertResource inserts or updates a resource, keeping created_at.
func (db *DB) UpsertResource(ctx context.Context, r *models.Resource) error {
	if err := r.Validate(); err != nil {
		return err
	}
	now := time.Now()

	_, err := db.ExecContext(ctx, `
		INSERT INTO resources (
			id, name, kind, rate_per_day_cents, deposit_cents, platform_fee_cents,
			timezone, unavailable_weekdays, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE((SELECT created_at FROM resources WHERE id = ?), ?), ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			rate_per_day_cents = excluded.rate_per_day_cents,
			deposit_cents = excluded.deposit_cents,
			platform_fee_cents = excluded.platform_fee_cents,
			timezone = excluded.timezone,
			unavailable_weekdays = excluded.unavailable_weekdays,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		r.ID, r.Name, string(r.Kind), r.RatePerDayCents, r.DepositCents, r.PlatformFeeCents,
		r.Timezone, encodeWeekdays(r.UnavailableWeekdays), r.IsActive, r.ID, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert resource %s: %w", r.ID, err)
	}
	return nil
}

// GetResource returns a resource by id, active or not.
func (db *DB) GetResource(ctx context.Context, id string) (*models.Resource, error) {
	return getResource(ctx, db.DB, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func getResource(ctx context.Context, q querier, id string) (*models.Resource, error) {
	r, err := scanResource(q.QueryRowContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrResourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get resource %s: %w", id, err)
	}
	return r, nil
}

// ListActiveResources returns active resources ordered by id.
func (db *DB) ListActiveResources(ctx context.Context) ([]models.Resource, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// SetBlackoutDate closes one date for a resource.
func (db *DB) SetBlackoutDate(ctx context.Context, b models.BlackoutDate) error {
	return db.setBlackoutDate(ctx, b, "manual")
}

func (db *DB) setBlackoutDate(ctx context.Context, b models.BlackoutDate, source string) error {
	if !b.Date.Valid() {
		return fmt.Errorf("blackout date %q: %w", b.Date, calendar.ErrInvalidDate)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO blackout_dates (resource_id, date, reason, source, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(resource_id, date) DO UPDATE SET
			reason = excluded.reason,
			source = excluded.source`,
		b.ResourceID, string(b.Date), b.Reason, source, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("set blackout %s/%s: %w", b.ResourceID, b.Date, err)
	}
	return nil
}

// DeleteBlackoutDate reopens a date.
func (db *DB) DeleteBlackoutDate(ctx context.Context, resourceID string, date calendar.DateKey) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM blackout_dates WHERE resource_id = ? AND date = ?`, resourceID, string(date))
	return err
}

// ListBlackoutDates returns blackout dates of a resource within [from, to].
// Empty bounds are open.
func (db *DB) ListBlackoutDates(ctx context.Context, resourceID string, from, to calendar.DateKey) ([]models.BlackoutDate, error) {
	return listBlackoutDates(ctx, db.DB, resourceID, from, to)
}

func listBlackoutDates(ctx context.Context, q querier, resourceID string, from, to calendar.DateKey) ([]models.BlackoutDate, error) {
	query := `SELECT resource_id, date, COALESCE(reason, '') FROM blackout_dates WHERE resource_id = ?`
	args := []any{resourceID}
	if from != "" {
		query += ` AND date >= ?`
		args = append(args, string(from))
	}
	if to != "" {
		query += ` AND date <= ?`
		args = append(args, string(to))
	}
	query += ` ORDER BY date`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.BlackoutDate
	for rows.Next() {
		var (
			b    models.BlackoutDate
			date string
		)
		if err := rows.Scan(&b.ResourceID, &date, &b.Reason); err != nil {
			return nil, err
		}
		b.Date = calendar.DateKey(date)
		out = append(out, b)
	}
	return out, rows.Err()
}

func blackoutKeys(in []models.BlackoutDate) []calendar.DateKey {
	out := make([]calendar.DateKey, len(in))
	for i, b := range in {
		out[i] = b.Date
	}
	return out
}
