// Package audit archives each month's reservations to xlsx and purges old
// canceled reservations.
package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"rentcal/internal/calendar"
	"rentcal/internal/config"
	"rentcal/internal/models"
	"rentcal/internal/pricing"
	"rentcal/internal/report"
)

// Store is the data the archive reads and prunes.
type Store interface {
	ListActiveResources(ctx context.Context) ([]models.Resource, error)
	ListReservations(ctx context.Context, resourceID string, from, to calendar.DateKey) ([]models.Reservation, error)
	PurgeCanceledReservations(ctx context.Context, cutoff calendar.DateKey) (int64, error)
}

// Service runs the export on the first of every month, then the cleanup.
type Service struct {
	config config.AuditConfig
	store  Store
	clock  calendar.Clock
	logger zerolog.Logger
}

func NewService(cfg config.AuditConfig, store Store, clock calendar.Clock, logger *zerolog.Logger) *Service {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 365
	}
	if cfg.StoragePath == "" {
		cfg.StoragePath = "data/reports"
	}
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	return &Service{
		config: cfg,
		store:  store,
		clock:  clock,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Start blocks until ctx is done.
func (s *Service) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("Audit service is disabled")
		return
	}

	if s.config.ExportOnStart {
		s.RunExportAndCleanup(ctx)
	}

	nextRun := nextFirstOfMonth(s.clock.Now())
	timer := time.NewTimer(time.Until(nextRun))
	defer timer.Stop()
	s.logger.Info().Time("next_run", nextRun).Int("retention_days", s.config.RetentionDays).Msg("Audit service started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.RunExportAndCleanup(ctx)

			nextRun = nextFirstOfMonth(s.clock.Now())
			timer.Reset(time.Until(nextRun))
			s.logger.Info().Time("next_run", nextRun).Msg("Next audit scheduled")
		}
	}
}

// nextFirstOfMonth returns 00:01 on the first day of the month after now.
func nextFirstOfMonth(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month()+1, 1, 0, 1, 0, 0, now.Location())
}

// RunExportAndCleanup archives the previous month, then purges.
func (s *Service) RunExportAndCleanup(ctx context.Context) {
	now := s.clock.Now()
	prev := now.AddDate(0, 0, -now.Day())
	if _, err := s.ExportMonth(ctx, prev.Year(), prev.Month()); err != nil {
		s.logger.Error().Err(err).Msg("Failed to export audit data")
	}
	if _, err := s.Cleanup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to cleanup old data")
	}
}

// ArchiveName is the file name of a month's archive.
func ArchiveName(year int, month time.Month) string {
	return fmt.Sprintf("reservations_%04d-%02d.xlsx", year, month)
}

// ExportMonth writes one sheet per active resource with the reservations
// overlapping the month, canceled ones included.
func (s *Service) ExportMonth(ctx context.Context, year int, month time.Month) (string, error) {
	resources, err := s.store.ListActiveResources(ctx)
	if err != nil {
		return "", fmt.Errorf("list resources: %w", err)
	}

	from := calendar.Date(year, month, 1)
	to := calendar.Date(year, month, calendar.DaysIn(month, year))

	wb := report.NewWorkbook()
	defer wb.Close()

	if err := wb.AddSheet("Summary"); err != nil {
		return "", err
	}
	if err := wb.WriteHeader([]string{"Resource", "Name", "Reservations", "Canceled", "Booked days", "Revenue"}); err != nil {
		return "", err
	}

	perResource := make(map[string][]models.Reservation, len(resources))
	for _, res := range resources {
		list, err := s.store.ListReservations(ctx, res.ID, from, to)
		if err != nil {
			return "", fmt.Errorf("list reservations %s: %w", res.ID, err)
		}
		perResource[res.ID] = list

		var canceled, days int
		var revenue int64
		for _, r := range list {
			if !r.IsActive() {
				canceled++
				continue
			}
			days += r.DayCount
			revenue += r.TotalCents
		}
		if err := wb.WriteRow([]any{res.ID, res.Name, len(list), canceled, days, pricing.FormatCents(revenue)}); err != nil {
			return "", err
		}
	}

	for _, res := range resources {
		if err := wb.AddSheet(res.ID); err != nil {
			s.logger.Error().Err(err).Str("resource_id", res.ID).Msg("Failed to add sheet")
			continue
		}
		if err := wb.WriteHeader(report.ReservationColumns); err != nil {
			return "", err
		}
		for _, r := range perResource[res.ID] {
			if err := wb.WriteRow(report.ReservationRow(r)); err != nil {
				s.logger.Error().Err(err).Str("reservation_id", r.ID).Msg("Failed to write row")
			}
		}
	}

	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(s.config.StoragePath, ArchiveName(year, month))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()
	if err := wb.Save(f); err != nil {
		return "", fmt.Errorf("save archive: %w", err)
	}

	s.logger.Info().Str("path", path).Int("resources", len(resources)).Msg("Audit archive written")
	return path, nil
}

// Cleanup purges canceled reservations that ended more than RetentionDays ago.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	cutoff := calendar.AddDays(calendar.FromTime(s.clock.Now()), -s.config.RetentionDays)
	deleted, err := s.store.PurgeCanceledReservations(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.logger.Info().
		Int64("deleted_count", deleted).
		Int("retention_days", s.config.RetentionDays).
		Msg("Cleaned up old data")
	return deleted, nil
}
