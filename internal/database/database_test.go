package database

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentcal/internal/calendar"
	"rentcal/internal/config"
	"rentcal/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "rentcal.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedResource(t *testing.T, db *DB, id string, closed ...calendar.Weekday) *models.Resource {
	t.Helper()
	r, err := models.NewResource(id, "Resource "+id, models.KindItem, 1000, 1500, 500, "UTC", calendar.NewWeekdaySet(closed...))
	require.NoError(t, err)
	require.NoError(t, db.UpsertResource(context.Background(), r))
	return r
}

func newReservation(t *testing.T, resourceID string, start, end calendar.DateKey) *models.Reservation {
	t.Helper()
	r, err := models.NewReservation(resourceID, start, end)
	require.NoError(t, err)
	r.UserID = 42
	return r
}

func TestResources(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedResource(t, db, "drill", calendar.Sun, calendar.Sat)
	seedResource(t, db, "ladder")

	got, err := db.GetResource(ctx, "drill")
	require.NoError(t, err)
	assert.Equal(t, "Resource drill", got.Name)
	assert.Equal(t, []calendar.Weekday{calendar.Sat, calendar.Sun}, got.UnavailableWeekdays.Slice())
	assert.Equal(t, int64(1500), got.DepositCents)
	assert.True(t, got.IsActive)

	_, err = db.GetResource(ctx, "boat")
	assert.ErrorIs(t, err, ErrResourceNotFound)

	got.IsActive = false
	require.NoError(t, db.UpsertResource(ctx, got))

	active, err := db.ListActiveResources(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "ladder", active[0].ID)
}

func TestBlackoutDates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedResource(t, db, "drill")

	require.NoError(t, db.SetBlackoutDate(ctx, models.BlackoutDate{ResourceID: "drill", Date: "2024-03-12", Reason: "repair"}))
	require.NoError(t, db.SetBlackoutDate(ctx, models.BlackoutDate{ResourceID: "drill", Date: "2024-04-01"}))
	assert.Error(t, db.SetBlackoutDate(ctx, models.BlackoutDate{ResourceID: "drill", Date: "2024-02-30"}))

	all, err := db.ListBlackoutDates(ctx, "drill", "", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "repair", all[0].Reason)

	march, err := db.ListBlackoutDates(ctx, "drill", "2024-03-01", "2024-03-31")
	require.NoError(t, err)
	require.Len(t, march, 1)
	assert.Equal(t, calendar.DateKey("2024-03-12"), march[0].Date)

	require.NoError(t, db.DeleteBlackoutDate(ctx, "drill", "2024-03-12"))
	all, err = db.ListBlackoutDates(ctx, "drill", "", "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreateReservation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedResource(t, db, "drill", calendar.Sun)

	first := newReservation(t, "drill", "2024-03-05", "2024-03-07")
	first.TotalCents = 5000
	require.NoError(t, db.CreateReservation(ctx, first))
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, 3, first.DayCount)

	stored, err := db.GetReservation(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, calendar.DateKey("2024-03-05"), stored.StartDate)
	assert.Equal(t, int64(5000), stored.TotalCents)
	assert.Equal(t, int64(42), stored.UserID)

	t.Run("overlap is double booked", func(t *testing.T) {
		err := db.CreateReservation(ctx, newReservation(t, "drill", "2024-03-07", "2024-03-08"))
		require.ErrorIs(t, err, ErrDoubleBooked)

		var conflict *ConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, []calendar.DateKey{"2024-03-07"}, conflict.Dates)
	})

	t.Run("closed weekday is not available", func(t *testing.T) {
		// 2024-03-10 is a Sunday.
		err := db.CreateReservation(ctx, newReservation(t, "drill", "2024-03-09", "2024-03-11"))
		require.ErrorIs(t, err, ErrNotAvailable)
		assert.NotErrorIs(t, err, ErrDoubleBooked)
	})

	t.Run("blackout is not available", func(t *testing.T) {
		require.NoError(t, db.SetBlackoutDate(ctx, models.BlackoutDate{ResourceID: "drill", Date: "2024-03-13"}))
		err := db.CreateReservation(ctx, newReservation(t, "drill", "2024-03-12", "2024-03-14"))
		require.ErrorIs(t, err, ErrNotAvailable)
	})

	t.Run("adjacent range is fine", func(t *testing.T) {
		require.NoError(t, db.CreateReservation(ctx, newReservation(t, "drill", "2024-03-08", "2024-03-09")))
	})

	t.Run("unknown resource", func(t *testing.T) {
		err := db.CreateReservation(ctx, newReservation(t, "boat", "2024-03-08", "2024-03-09"))
		assert.ErrorIs(t, err, ErrResourceNotFound)
	})

	t.Run("reversed range", func(t *testing.T) {
		err := db.CreateReservation(ctx, &models.Reservation{ResourceID: "drill", StartDate: "2024-03-20", EndDate: "2024-03-18"})
		assert.ErrorIs(t, err, calendar.ErrInvalidRange)
	})
}

func TestCreateReservation_InactiveResource(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	r := seedResource(t, db, "drill")
	r.IsActive = false
	require.NoError(t, db.UpsertResource(ctx, r))

	err := db.CreateReservation(ctx, newReservation(t, "drill", "2024-03-05", "2024-03-06"))
	assert.ErrorIs(t, err, ErrResourceInactive)
}

func TestCreateReservation_ConcurrentCommitsAdmitOne(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedResource(t, db, "drill")

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		doubled int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.CreateReservation(ctx, newReservation(t, "drill", "2024-06-10", "2024-06-12"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrDoubleBooked):
				doubled++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, doubled)

	active, err := db.ListActiveReservations(ctx, "drill", "", "")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestCancelReservation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedResource(t, db, "drill")

	r := newReservation(t, "drill", "2024-03-05", "2024-03-07")
	require.NoError(t, db.CreateReservation(ctx, r))

	canceled, err := db.CancelReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, canceled.Status)
	assert.Equal(t, int64(2), canceled.Version)

	_, err = db.CancelReservation(ctx, r.ID)
	assert.ErrorIs(t, err, ErrAlreadyCanceled)

	_, err = db.CancelReservation(ctx, "missing")
	assert.ErrorIs(t, err, ErrReservationNotFound)

	// The dates are free again.
	require.NoError(t, db.CreateReservation(ctx, newReservation(t, "drill", "2024-03-06", "2024-03-06")))

	all, err := db.ListReservations(ctx, "drill", "2024-03-01", "2024-03-31")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	active, err := db.ListActiveReservations(ctx, "drill", "2024-03-01", "2024-03-31")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestPurgeCanceledReservations(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedResource(t, db, "drill")

	old := newReservation(t, "drill", "2024-01-10", "2024-01-12")
	recent := newReservation(t, "drill", "2024-03-10", "2024-03-12")
	kept := newReservation(t, "drill", "2024-01-20", "2024-01-21")
	for _, r := range []*models.Reservation{old, recent, kept} {
		require.NoError(t, db.CreateReservation(ctx, r))
	}
	for _, r := range []*models.Reservation{old, recent} {
		_, err := db.CancelReservation(ctx, r.ID)
		require.NoError(t, err)
	}

	n, err := db.PurgeCanceledReservations(ctx, "2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = db.GetReservation(ctx, old.ID)
	assert.ErrorIs(t, err, ErrReservationNotFound)
	_, err = db.GetReservation(ctx, recent.ID)
	assert.NoError(t, err)
	_, err = db.GetReservation(ctx, kept.ID)
	assert.NoError(t, err)
}

func TestListReservations_Window(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedResource(t, db, "drill")

	for _, rng := range [][2]calendar.DateKey{
		{"2024-02-27", "2024-03-02"},
		{"2024-03-15", "2024-03-16"},
		{"2024-04-01", "2024-04-03"},
	} {
		require.NoError(t, db.CreateReservation(ctx, newReservation(t, "drill", rng[0], rng[1])))
	}

	march, err := db.ListReservations(ctx, "drill", "2024-03-01", "2024-03-31")
	require.NoError(t, err)
	require.Len(t, march, 2)
	assert.Equal(t, calendar.DateKey("2024-02-27"), march[0].StartDate)
	assert.Equal(t, calendar.DateKey("2024-03-15"), march[1].StartDate)
}

func TestSyncResourcesFromConfig(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedResource(t, db, "legacy")
	require.NoError(t, db.SetBlackoutDate(ctx, models.BlackoutDate{ResourceID: "legacy", Date: "2026-02-02"}))

	deposit := int64(2000)
	cfg := &config.ResourcesConfig{
		Resources: []config.ResourceConfig{
			{ID: "drill", Name: "Drill", Kind: "item", RatePerDayCents: 1000, DepositCents: &deposit, Timezone: "UTC", UnavailableWeekdays: []string{"sun"}, IsActive: true},
			{ID: "studio", Name: "Studio", Kind: "service", RatePerDayCents: 9000, Timezone: "Asia/Tokyo", IsActive: true},
		},
		Blackouts: []config.BlackoutConfig{
			{Date: "2026-01-01", Name: "New Year"},
			{Date: "2026-05-01", Name: "Inventory", Resources: []string{"drill"}},
		},
	}
	require.NoError(t, db.SyncResourcesFromConfig(ctx, cfg))

	active, err := db.ListActiveResources(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "drill", active[0].ID)
	assert.Equal(t, int64(2000), active[0].DepositCents)
	assert.True(t, active[0].UnavailableWeekdays.Has(calendar.Sun))

	legacy, err := db.GetResource(ctx, "legacy")
	require.NoError(t, err)
	assert.False(t, legacy.IsActive)

	drillBlackouts, err := db.ListBlackoutDates(ctx, "drill", "", "")
	require.NoError(t, err)
	assert.Len(t, drillBlackouts, 2)

	// A manual blackout survives a re-sync, a removed config blackout does not.
	require.NoError(t, db.SetBlackoutDate(ctx, models.BlackoutDate{ResourceID: "drill", Date: "2026-07-07", Reason: "manual"}))
	cfg.Blackouts = cfg.Blackouts[:1]
	require.NoError(t, db.SyncResourcesFromConfig(ctx, cfg))

	drillBlackouts, err = db.ListBlackoutDates(ctx, "drill", "", "")
	require.NoError(t, err)
	require.Len(t, drillBlackouts, 2)
	assert.Equal(t, calendar.DateKey("2026-01-01"), drillBlackouts[0].Date)
	assert.Equal(t, calendar.DateKey("2026-07-07"), drillBlackouts[1].Date)

	assert.Error(t, db.SyncResourcesFromConfig(ctx, nil))
}

func TestBackupService(t *testing.T) {
	db := newTestDB(t)
	seedResource(t, db, "drill")
	logger := zerolog.New(io.Discard)

	dir := filepath.Join(t.TempDir(), "backups")
	svc := NewBackupService(db, config.BackupConfig{Enabled: true, StoragePath: dir, RetentionDays: 7}, &logger)

	path, err := svc.PerformBackup(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, path)

	copyDB, err := NewDB(path, &logger)
	require.NoError(t, err)
	defer copyDB.Close()
	r, err := copyDB.GetResource(context.Background(), "drill")
	require.NoError(t, err)
	assert.Equal(t, "drill", r.ID)

	old := filepath.Join(dir, "backup_old.db")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, past, past))

	assert.Equal(t, 1, svc.CleanupOldBackups())
	assert.NoFileExists(t, old)
	assert.FileExists(t, path)
}
