package audit

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"rentcal/internal/calendar"
	"rentcal/internal/config"
	"rentcal/internal/database"
	"rentcal/internal/models"
)

func setup(t *testing.T) (*database.DB, *Service, string) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "audit.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, id := range []string{"drill", "ladder"} {
		r, err := models.NewResource(id, "Resource "+id, models.KindItem, 1000, 0, 0, "UTC", calendar.NewWeekdaySet())
		require.NoError(t, err)
		require.NoError(t, db.UpsertResource(ctx, r))
	}

	dir := filepath.Join(t.TempDir(), "reports")
	clock := calendar.FixedClock(time.Date(2024, 4, 1, 0, 1, 0, 0, time.UTC))
	svc := NewService(config.AuditConfig{Enabled: true, StoragePath: dir, RetentionDays: 30}, db, clock, &logger)
	return db, svc, dir
}

func reserve(t *testing.T, db *database.DB, resourceID string, start, end calendar.DateKey) *models.Reservation {
	t.Helper()
	r, err := models.NewReservation(resourceID, start, end)
	require.NoError(t, err)
	r.UserID = 7
	r.TotalCents = int64(r.DayCount) * 1000
	require.NoError(t, db.CreateReservation(context.Background(), r))
	return r
}

func TestExportMonth(t *testing.T) {
	db, svc, dir := setup(t)
	ctx := context.Background()

	reserve(t, db, "drill", "2024-03-05", "2024-03-07")
	canceled := reserve(t, db, "drill", "2024-03-20", "2024-03-21")
	_, err := db.CancelReservation(ctx, canceled.ID)
	require.NoError(t, err)
	reserve(t, db, "ladder", "2024-02-28", "2024-03-01")
	reserve(t, db, "ladder", "2024-04-02", "2024-04-03")

	path, err := svc.ExportMonth(ctx, 2024, time.March)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "reservations_2024-03.xlsx"), path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Summary", "drill", "ladder"}, f.GetSheetList())

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	require.Len(t, summary, 3)
	assert.Equal(t, []string{"drill", "Resource drill", "2", "1", "3", "30.00"}, summary[1])
	assert.Equal(t, []string{"ladder", "Resource ladder", "1", "0", "3", "30.00"}, summary[2])

	drill, err := f.GetRows("drill")
	require.NoError(t, err)
	assert.Len(t, drill, 3)
}

func TestCleanup(t *testing.T) {
	db, svc, _ := setup(t)
	ctx := context.Background()

	old := reserve(t, db, "drill", "2024-01-10", "2024-01-12")
	_, err := db.CancelReservation(ctx, old.ID)
	require.NoError(t, err)
	recent := reserve(t, db, "drill", "2024-03-25", "2024-03-26")
	_, err = db.CancelReservation(ctx, recent.ID)
	require.NoError(t, err)

	// Cutoff is 2024-03-02.
	n, err := svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = db.GetReservation(ctx, recent.ID)
	assert.NoError(t, err)
}

func TestRunExportAndCleanup_PreviousMonth(t *testing.T) {
	db, svc, dir := setup(t)
	reserve(t, db, "drill", "2024-03-05", "2024-03-07")

	svc.RunExportAndCleanup(context.Background())
	assert.FileExists(t, filepath.Join(dir, ArchiveName(2024, time.March)))
}

func TestNextFirstOfMonth(t *testing.T) {
	got := nextFirstOfMonth(time.Date(2024, 12, 15, 10, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 1, 0, 0, time.UTC), got)
}

func TestStart_Disabled(t *testing.T) {
	logger := zerolog.New(io.Discard)
	svc := NewService(config.AuditConfig{}, nil, nil, &logger)

	done := make(chan struct{})
	go func() {
		svc.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled service should return immediately")
	}
}
