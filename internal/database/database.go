package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"

	"rentcal/internal/calendar"
)

// DB wraps the SQLite connection.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

var (
	ErrResourceNotFound    = errors.New("resource not found")
	ErrResourceInactive    = errors.New("resource is not active")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrAlreadyCanceled     = errors.New("reservation already canceled")
	ErrDoubleBooked        = errors.New("dates already booked")
	ErrNotAvailable        = errors.New("dates not available")
)

// ConflictError carries the dates that made a reservation commit fail.
// It unwraps to ErrDoubleBooked when an existing reservation overlaps and to
// ErrNotAvailable when only closed days (weekday rules or blackouts) do.
type ConflictError struct {
	ResourceID string
	Kind       error
	Dates      []calendar.DateKey
}

func (e *ConflictError) Error() string {
	dates := make([]string, len(e.Dates))
	for i, d := range e.Dates {
		dates[i] = string(d)
	}
	return fmt.Sprintf("resource %s: %v: %s", e.ResourceID, e.Kind, strings.Join(dates, ", "))
}

func (e *ConflictError) Unwrap() error { return e.Kind }

// NewDB opens the database at path and creates the schema.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL, busy timeout, and write-locking transactions so the re-check in
	// CreateReservation cannot interleave with another writer.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: db, path: path, logger: logger}
	if err := instance.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

// Path returns the database file location.
func (db *DB) Path() string { return db.path }

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS resources (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'item',
			rate_per_day_cents INTEGER NOT NULL DEFAULT 0,
			deposit_cents INTEGER NOT NULL DEFAULT 0,
			platform_fee_cents INTEGER NOT NULL DEFAULT 0,
			timezone TEXT NOT NULL DEFAULT 'UTC',
			unavailable_weekdays TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS blackout_dates (
			resource_id TEXT NOT NULL,
			date TEXT NOT NULL,
			reason TEXT,
			source TEXT NOT NULL DEFAULT 'manual',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (resource_id, date),
			FOREIGN KEY (resource_id) REFERENCES resources(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS reservations (
			id TEXT PRIMARY KEY,
			resource_id TEXT NOT NULL,
			user_id INTEGER NOT NULL DEFAULT 0,
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			day_count INTEGER NOT NULL,
			total_cents INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'confirmed',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			version INTEGER NOT NULL DEFAULT 1,
			CHECK (start_date <= end_date),
			FOREIGN KEY (resource_id) REFERENCES resources(id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_resources_active ON resources(is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_resource_range ON reservations(resource_id, status, start_date, end_date)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_user ON reservations(user_id)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("query %q: %w", firstLine(q), err)
		}
	}
	return nil
}

func firstLine(q string) string {
	if i := strings.IndexByte(q, '\n'); i >= 0 {
		return strings.TrimSpace(q[:i])
	}
	return q
}
