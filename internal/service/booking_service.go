package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"rentcal/internal/availability"
	"rentcal/internal/cache"
	"rentcal/internal/calendar"
	"rentcal/internal/database"
	"rentcal/internal/events"
	"rentcal/internal/metrics"
	"rentcal/internal/models"
	"rentcal/internal/pricing"
	"rentcal/internal/selection"
)

var (
	ErrNoSession = errors.New("no active selection, start one first")
	ErrPastDate  = errors.New("cannot book in the past")
)

// Store is the persistence the service needs.
type Store interface {
	GetResource(ctx context.Context, id string) (*models.Resource, error)
	ListActiveResources(ctx context.Context) ([]models.Resource, error)
	ListReservations(ctx context.Context, resourceID string, from, to calendar.DateKey) ([]models.Reservation, error)
	ListActiveReservations(ctx context.Context, resourceID string, from, to calendar.DateKey) ([]models.Reservation, error)
	ListBlackoutDates(ctx context.Context, resourceID string, from, to calendar.DateKey) ([]models.BlackoutDate, error)
	CreateReservation(ctx context.Context, r *models.Reservation) error
	CancelReservation(ctx context.Context, id string) (*models.Reservation, error)
	SetBlackoutDate(ctx context.Context, b models.BlackoutDate) error
	DeleteBlackoutDate(ctx context.Context, resourceID string, date calendar.DateKey) error
}

// MapCache caches blocked maps per resource and horizon.
type MapCache interface {
	Get(ctx context.Context, resourceID string, anchor calendar.DateKey, months int) (availability.BlockedDateMap, int64, bool)
	Set(ctx context.Context, resourceID string, anchor calendar.DateKey, months int, gen int64, m availability.BlockedDateMap)
	Invalidate(ctx context.Context, resourceID string) error
}

// Locker serializes commits per resource.
type Locker interface {
	Acquire(ctx context.Context, resourceID string) (*cache.Lock, error)
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	PublishJSON(eventType, key string, payload any) error
}

// Options tunes the service. Zero values fall back to the package defaults.
type Options struct {
	HorizonMonths    int
	MaxLookaheadDays int
	Clock            calendar.Clock
}

// BookingService ties availability, selection, pricing and persistence together.
type BookingService struct {
	store    Store
	cache    MapCache
	locker   Locker
	events   EventPublisher
	sessions *selection.SessionStore
	opts     Options
	logger   zerolog.Logger
}

func NewBookingService(
	store Store,
	mapCache MapCache,
	locker Locker,
	publisher EventPublisher,
	sessions *selection.SessionStore,
	opts Options,
	logger *zerolog.Logger,
) *BookingService {
	if opts.HorizonMonths <= 0 {
		opts.HorizonMonths = availability.DefaultHorizonMonths
	}
	if opts.MaxLookaheadDays <= 0 {
		opts.MaxLookaheadDays = availability.DefaultMaxLookaheadDays
	}
	if opts.Clock == nil {
		opts.Clock = calendar.SystemClock{}
	}
	if sessions == nil {
		sessions = selection.NewSessionStore(0)
	}
	return &BookingService{
		store:    store,
		cache:    mapCache,
		locker:   locker,
		events:   publisher,
		sessions: sessions,
		opts:     opts,
		logger:   logger.With().Str("component", "booking_service").Logger(),
	}
}

// Sessions exposes the session store, for cleanup loops.
func (s *BookingService) Sessions() *selection.SessionStore { return s.sessions }

// HorizonMonths is the configured default horizon.
func (s *BookingService) HorizonMonths() int { return s.opts.HorizonMonths }

// Resource returns an active resource.
func (s *BookingService) Resource(ctx context.Context, resourceID string) (*models.Resource, error) {
	res, err := s.store.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if !res.IsActive {
		return nil, database.ErrResourceInactive
	}
	return res, nil
}

// Resources lists active resources.
func (s *BookingService) Resources(ctx context.Context) ([]models.Resource, error) {
	return s.store.ListActiveResources(ctx)
}

// Today is the current date in the resource's timezone.
func (s *BookingService) Today(res *models.Resource) calendar.DateKey {
	return calendar.Today(s.opts.Clock, res.Location())
}

// BlockedMap builds the map for the default horizon starting today.
func (s *BookingService) BlockedMap(ctx context.Context, resourceID string) (availability.BlockedDateMap, error) {
	res, err := s.Resource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	return s.blockedMap(ctx, res, s.Today(res), s.opts.HorizonMonths)
}

// BlockedMapFrom builds the map for months starting at from. An empty from
// means today; from cannot lie in the past.
func (s *BookingService) BlockedMapFrom(
	ctx context.Context,
	resourceID string,
	from calendar.DateKey,
	months int,
) (availability.BlockedDateMap, error) {
	res, err := s.Resource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	today := s.Today(res)
	if from == "" || from.Before(today) {
		from = today
	}
	if months <= 0 {
		months = s.opts.HorizonMonths
	}
	return s.blockedMap(ctx, res, from, months)
}

func (s *BookingService) blockedMap(
	ctx context.Context,
	res *models.Resource,
	anchor calendar.DateKey,
	months int,
) (availability.BlockedDateMap, error) {
	m, gen, ok := s.cache.Get(ctx, res.ID, anchor, months)
	if ok {
		metrics.IncCacheHit()
		return m, nil
	}
	metrics.IncCacheMiss()

	started := time.Now()
	end := availability.HorizonEnd(anchor, months)

	reservations, err := s.store.ListActiveReservations(ctx, res.ID, anchor, end)
	if err != nil {
		return nil, fmt.Errorf("load reservations: %w", err)
	}
	blackouts, err := s.store.ListBlackoutDates(ctx, res.ID, anchor, end)
	if err != nil {
		return nil, fmt.Errorf("load blackouts: %w", err)
	}

	m, err = availability.BuildBlockedMap(res.ID, res.UnavailableWeekdays, reservations, months, anchor)
	if err != nil {
		return nil, err
	}
	for _, b := range blackouts {
		m.Block(b.Date, availability.ReasonBlackout)
	}
	// Reservations straddling the window edges are cut to it.
	m = m.Window(anchor, end)

	metrics.ObserveBlockedMapBuild(time.Since(started).Seconds())
	s.cache.Set(ctx, res.ID, anchor, months, gen, m)
	return m, nil
}

// NextAvailable returns the first open date after from. An empty from means today.
func (s *BookingService) NextAvailable(ctx context.Context, resourceID string, from calendar.DateKey) (calendar.DateKey, bool, error) {
	res, err := s.Resource(ctx, resourceID)
	if err != nil {
		return "", false, err
	}
	if from == "" {
		from = s.Today(res)
	}
	if !from.Valid() {
		return "", false, fmt.Errorf("from: %w", calendar.ErrInvalidDate)
	}

	// Cover the whole lookahead window so absent dates never read as open.
	months := s.opts.MaxLookaheadDays/28 + 2
	m, err := s.blockedMap(ctx, res, from, months)
	if err != nil {
		return "", false, err
	}
	d, ok := availability.FindNextAvailableDate(from, m, s.opts.MaxLookaheadDays)
	return d, ok, nil
}

// Quote prices start..end for a resource.
func (s *BookingService) Quote(ctx context.Context, resourceID string, start, end calendar.DateKey) (pricing.PriceQuote, error) {
	res, err := s.Resource(ctx, resourceID)
	if err != nil {
		return pricing.PriceQuote{}, err
	}
	return quoteFor(res, start, end)
}

func quoteFor(res *models.Resource, start, end calendar.DateKey) (pricing.PriceQuote, error) {
	return pricing.Quote(
		selection.PendingRange{Start: start, End: end},
		res.RatePerDayCents, res.DepositCents, res.PlatformFeeCents,
	)
}

// Reserve commits start..end for userID. The in-memory check gives a fast
// answer; the store's transactional re-check is what prevents double booking.
func (s *BookingService) Reserve(
	ctx context.Context,
	userID int64,
	resourceID string,
	start, end calendar.DateKey,
) (*models.Reservation, error) {
	res, err := s.Resource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	r, err := models.NewReservation(resourceID, start, end)
	if err != nil {
		return nil, err
	}
	r.UserID = userID

	today := s.Today(res)
	if start.Before(today) {
		return nil, ErrPastDate
	}

	m, err := s.blockedMap(ctx, res, today, s.opts.HorizonMonths)
	if err != nil {
		return nil, err
	}
	if cerr := localConflicts(res.ID, m, start, end); cerr != nil {
		s.reject(userID, r, cerr)
		return nil, cerr
	}

	quote, err := quoteFor(res, start, end)
	if err != nil {
		return nil, err
	}
	r.TotalCents = quote.TotalCents

	lock, err := s.locker.Acquire(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("lock resource %s: %w", resourceID, err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Str("resource_id", resourceID).Msg("lock release failed")
		}
	}()

	if err := s.store.CreateReservation(ctx, r); err != nil {
		var conflict *database.ConflictError
		if errors.As(err, &conflict) {
			// The cached map missed a commit; drop it.
			s.invalidate(ctx, resourceID)
			s.reject(userID, r, conflict)
		}
		return nil, err
	}

	s.invalidate(ctx, resourceID)
	metrics.IncReservationCreated(resourceID)
	s.publish(events.ReservationCreated, resourceID, reservationPayload(r))

	s.logger.Info().
		Str("reservation_id", r.ID).
		Str("resource_id", resourceID).
		Int64("user_id", userID).
		Str("start", string(start)).
		Str("end", string(end)).
		Int64("total_cents", r.TotalCents).
		Msg("reservation created")
	return r, nil
}

func localConflicts(resourceID string, m availability.BlockedDateMap, start, end calendar.DateKey) *database.ConflictError {
	days, err := calendar.DaysBetweenInclusive(start, end)
	if err != nil {
		return nil
	}
	var (
		dates  []calendar.DateKey
		booked bool
	)
	for _, d := range days {
		if m.IsBlocked(d) {
			dates = append(dates, d)
			if m[d].Reason == availability.ReasonBooked {
				booked = true
			}
		}
	}
	if len(dates) == 0 {
		return nil
	}
	kind := database.ErrNotAvailable
	if booked {
		kind = database.ErrDoubleBooked
	}
	return &database.ConflictError{ResourceID: resourceID, Kind: kind, Dates: dates}
}

func (s *BookingService) reject(userID int64, r *models.Reservation, conflict *database.ConflictError) {
	reason := "not_available"
	if errors.Is(conflict, database.ErrDoubleBooked) {
		reason = string(selection.ReasonDoubleBooked)
	}
	metrics.IncReservationRejected(reason)
	s.publish(events.ReservationConflict, r.ResourceID, events.ConflictPayload{
		ResourceID: r.ResourceID,
		UserID:     userID,
		StartDate:  r.StartDate,
		EndDate:    r.EndDate,
		Dates:      conflict.Dates,
	})
	s.logger.Info().
		Str("resource_id", r.ResourceID).
		Int64("user_id", userID).
		Str("reason", reason).
		Int("conflicts", len(conflict.Dates)).
		Msg("reservation rejected")
}

// Cancel cancels a reservation and frees its dates.
func (s *BookingService) Cancel(ctx context.Context, reservationID string) (*models.Reservation, error) {
	r, err := s.store.CancelReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, r.ResourceID)
	metrics.IncReservationCanceled()
	s.publish(events.ReservationCanceled, r.ResourceID, reservationPayload(r))
	s.logger.Info().Str("reservation_id", r.ID).Str("resource_id", r.ResourceID).Msg("reservation canceled")
	return r, nil
}

// Reservations lists a resource's reservations overlapping from..to.
func (s *BookingService) Reservations(ctx context.Context, resourceID string, from, to calendar.DateKey) ([]models.Reservation, error) {
	return s.store.ListReservations(ctx, resourceID, from, to)
}

// StartSelection opens a fresh selection for userID over the resource's
// current blocked map, replacing any previous one.
func (s *BookingService) StartSelection(ctx context.Context, userID int64, resourceID string) (*selection.Session, error) {
	m, err := s.BlockedMap(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	sess := s.sessions.Start(userID, resourceID, m)
	metrics.SetActiveSessions(s.sessions.Len())
	return sess, nil
}

// Selection returns the user's live session.
func (s *BookingService) Selection(userID int64) (*selection.Session, error) {
	sess := s.sessions.Get(userID)
	if sess == nil {
		return nil, ErrNoSession
	}
	return sess, nil
}

// CloseDate blacks out one date of a resource. Dates closed here are kept
// across catalogue reloads.
func (s *BookingService) CloseDate(ctx context.Context, resourceID string, date calendar.DateKey, reason string) (models.BlackoutDate, error) {
	if !date.Valid() {
		return models.BlackoutDate{}, fmt.Errorf("date: %w", calendar.ErrInvalidDate)
	}
	if _, err := s.Resource(ctx, resourceID); err != nil {
		return models.BlackoutDate{}, err
	}
	b := models.BlackoutDate{ResourceID: resourceID, Date: date, Reason: reason}
	if err := s.store.SetBlackoutDate(ctx, b); err != nil {
		return models.BlackoutDate{}, err
	}
	s.invalidate(ctx, resourceID)
	s.logger.Info().Str("resource_id", resourceID).Str("date", string(date)).Msg("date closed")
	return b, nil
}

// ReopenDate removes a blackout date.
func (s *BookingService) ReopenDate(ctx context.Context, resourceID string, date calendar.DateKey) error {
	if !date.Valid() {
		return fmt.Errorf("date: %w", calendar.ErrInvalidDate)
	}
	if _, err := s.Resource(ctx, resourceID); err != nil {
		return err
	}
	if err := s.store.DeleteBlackoutDate(ctx, resourceID, date); err != nil {
		return err
	}
	s.invalidate(ctx, resourceID)
	s.logger.Info().Str("resource_id", resourceID).Str("date", string(date)).Msg("date reopened")
	return nil
}

// Blackouts lists the blackout dates of a resource within [from, to].
func (s *BookingService) Blackouts(ctx context.Context, resourceID string, from, to calendar.DateKey) ([]models.BlackoutDate, error) {
	if _, err := s.Resource(ctx, resourceID); err != nil {
		return nil, err
	}
	return s.store.ListBlackoutDates(ctx, resourceID, from, to)
}

// Tap applies one calendar tap to the user's session.
func (s *BookingService) Tap(userID int64, d calendar.DateKey) (*selection.Session, selection.TapResult, error) {
	sess, err := s.Selection(userID)
	if err != nil {
		return nil, selection.TapResult{}, err
	}
	res := sess.Tap(d)
	metrics.IncTap(string(res.Reason))
	return sess, res, nil
}

// Confirm commits the session's complete range. When the store rejects it
// the session restarts from an empty selection over a fresh map. The error
// wraps selection.ErrDoubleBooked when another reservation took the dates and
// selection.ErrRangeContainsBlockedDates when weekday rules or blackouts did.
func (s *BookingService) Confirm(ctx context.Context, userID int64) (*models.Reservation, error) {
	sess, err := s.Selection(userID)
	if err != nil {
		return nil, err
	}
	c, err := sess.Completion()
	if err != nil {
		return nil, err
	}

	r, err := s.Reserve(ctx, userID, c.ResourceID, c.StartDate, c.EndDate)
	if err != nil {
		var conflict *database.ConflictError
		if !errors.As(err, &conflict) {
			return nil, err
		}
		reason := ConflictReason(conflict)
		sess.ReportConflict(reason, conflict.Dates)
		if fresh, ferr := s.BlockedMap(ctx, c.ResourceID); ferr == nil {
			sess.Refresh(fresh)
		} else {
			s.logger.Warn().Err(ferr).Str("resource_id", c.ResourceID).Msg("refresh after conflict failed")
		}
		return nil, fmt.Errorf("%w: %w", reason.Err(), err)
	}

	s.sessions.Delete(userID)
	metrics.SetActiveSessions(s.sessions.Len())
	return r, nil
}

// ConflictReason maps a store conflict onto the selection reason shown to the user.
func ConflictReason(conflict *database.ConflictError) selection.Reason {
	if errors.Is(conflict, database.ErrDoubleBooked) {
		return selection.ReasonDoubleBooked
	}
	return selection.ReasonRangeContainsBlockedDates
}

// CleanupSessions drops idle sessions every interval until ctx is done.
func (s *BookingService) CleanupSessions(ctx context.Context, interval time.Duration) {
	s.sessions.RunCleanup(ctx, interval, func(n int) {
		metrics.SetActiveSessions(s.sessions.Len())
		s.logger.Debug().Int("removed", n).Msg("expired selection sessions removed")
	})
}

func (s *BookingService) invalidate(ctx context.Context, resourceID string) {
	if err := s.cache.Invalidate(ctx, resourceID); err != nil {
		s.logger.Warn().Err(err).Str("resource_id", resourceID).Msg("cache invalidation failed")
	}
}

func (s *BookingService) publish(eventType, key string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishJSON(eventType, key, payload); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("event publish failed")
	}
}

func reservationPayload(r *models.Reservation) events.ReservationPayload {
	return events.ReservationPayload{
		ReservationID: r.ID,
		ResourceID:    r.ResourceID,
		UserID:        r.UserID,
		StartDate:     r.StartDate,
		EndDate:       r.EndDate,
		DayCount:      r.DayCount,
		TotalCents:    r.TotalCents,
	}
}
