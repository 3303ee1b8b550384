package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rentcal/internal/availability"
	"rentcal/internal/calendar"
	"rentcal/internal/models"
)

const reservationColumns = `id, resource_id, user_id, start_date, end_date, day_count,
	total_cents, status, created_at, updated_at, version`

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var (
		r          models.Reservation
		start, end string
	)
	if err := row.Scan(
		&r.ID, &r.ResourceID, &r.UserID, &start, &end, &r.DayCount,
		&r.TotalCents, &r.Status, &r.CreatedAt, &r.UpdatedAt, &r.Version,
	); err != nil {
		return nil, err
	}
	r.StartDate = calendar.DateKey(start)
	r.EndDate = calendar.DateKey(end)
	return &r, nil
}

// GetReservation returns a reservation by id.
func (db *DB) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	r, err := scanReservation(db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation %s: %w", id, err)
	}
	return r, nil
}

// ListReservations returns the reservations of a resource that overlap
// [from, to], canceled ones included. Empty bounds are open.
func (db *DB) ListReservations(ctx context.Context, resourceID string, from, to calendar.DateKey) ([]models.Reservation, error) {
	return listReservations(ctx, db.DB, resourceID, from, to, false)
}

// ListActiveReservations is ListReservations without canceled rows.
func (db *DB) ListActiveReservations(ctx context.Context, resourceID string, from, to calendar.DateKey) ([]models.Reservation, error) {
	return listReservations(ctx, db.DB, resourceID, from, to, true)
}

func listReservations(
	ctx context.Context,
	q querier,
	resourceID string,
	from, to calendar.DateKey,
	activeOnly bool,
) ([]models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE resource_id = ?`
	args := []any{resourceID}
	if activeOnly {
		query += ` AND status != ?`
		args = append(args, models.StatusCanceled)
	}
	if from != "" {
		query += ` AND end_date >= ?`
		args = append(args, string(from))
	}
	if to != "" {
		query += ` AND start_date <= ?`
		args = append(args, string(to))
	}
	query += ` ORDER BY start_date, id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// CreateReservation re-validates the range against the stored weekday rules,
// blackout dates and active reservations inside one write-locking
// transaction, then inserts. A conflict returns *ConflictError. An empty
// r.ID is filled with a new UUID.
func (db *DB) CreateReservation(ctx context.Context, r *models.Reservation) error {
	if r.ResourceID == "" {
		return models.ErrMissingResourceID
	}
	days, err := calendar.CountDaysInclusive(r.StartDate, r.EndDate)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := getResource(ctx, tx, r.ResourceID)
	if err != nil {
		return err
	}
	if !res.IsActive {
		return ErrResourceInactive
	}

	blackouts, err := listBlackoutDates(ctx, tx, r.ResourceID, r.StartDate, r.EndDate)
	if err != nil {
		return fmt.Errorf("load blackouts: %w", err)
	}
	existing, err := listReservations(ctx, tx, r.ResourceID, r.StartDate, r.EndDate, true)
	if err != nil {
		return fmt.Errorf("load reservations: %w", err)
	}

	conflicts, err := availability.RangeConflicts(
		res.UnavailableWeekdays, existing, blackoutKeys(blackouts), r.StartDate, r.EndDate)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		kind := ErrNotAvailable
		if len(existing) > 0 {
			kind = ErrDoubleBooked
		}
		return &ConflictError{ResourceID: r.ResourceID, Kind: kind, Dates: conflicts}
	}

	now := time.Now()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = models.StatusConfirmed
	}
	r.DayCount = days
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Version = 1

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reservations (
			id, resource_id, user_id, start_date, end_date, day_count,
			total_cents, status, created_at, updated_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ResourceID, r.UserID, string(r.StartDate), string(r.EndDate), r.DayCount,
		r.TotalCents, r.Status, r.CreatedAt, r.UpdatedAt, r.Version,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	db.logger.Debug().
		Str("reservation_id", r.ID).
		Str("resource_id", r.ResourceID).
		Str("start", string(r.StartDate)).
		Str("end", string(r.EndDate)).
		Msg("reservation created")
	return nil
}

// CancelReservation marks a reservation canceled and returns the updated row.
func (db *DB) CancelReservation(ctx context.Context, id string) (*models.Reservation, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	r, err := scanReservation(tx.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation %s: %w", id, err)
	}
	if r.Status == models.StatusCanceled {
		return nil, ErrAlreadyCanceled
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		UPDATE reservations
		SET status = ?, updated_at = ?, version = version + 1
		WHERE id = ?`,
		models.StatusCanceled, now, id,
	); err != nil {
		return nil, fmt.Errorf("cancel reservation %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	r.Status = models.StatusCanceled
	r.UpdatedAt = now
	r.Version++
	return r, nil
}

// PurgeCanceledReservations deletes canceled reservations that ended before cutoff.
func (db *DB) PurgeCanceledReservations(ctx context.Context, cutoff calendar.DateKey) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM reservations WHERE status = ? AND end_date < ?`,
		models.StatusCanceled, string(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge canceled reservations: %w", err)
	}
	return res.RowsAffected()
}
