// Package api exposes the booking service over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"rentcal/internal/cache"
	"rentcal/internal/calendar"
	"rentcal/internal/database"
	"rentcal/internal/metrics"
	"rentcal/internal/models"
	"rentcal/internal/pricing"
	"rentcal/internal/selection"
	"rentcal/internal/service"
)

const (
	headerAPIKey = "X-API-Key"
	headerUserID = "X-User-ID"
)

// Options configures the HTTP server.
type Options struct {
	Port      int
	APIKey    string
	RateLimit float64
	RateBurst int
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error     string             `json:"error"`
	Code      string             `json:"code"`
	Conflicts []calendar.DateKey `json:"conflicts,omitempty"`
}

// HTTPServer serves the availability, reservation and selection endpoints.
type HTTPServer struct {
	server  *http.Server
	svc     *service.BookingService
	apiKey  string
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func NewHTTPServer(opts Options, svc *service.BookingService, logger *zerolog.Logger) *HTTPServer {
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.RateBurst
	if burst <= 0 {
		burst = 1
	}

	s := &HTTPServer{
		svc:     svc,
		apiKey:  opts.APIKey,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With().Str("component", "api").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/resources", s.handleResources)
	mux.HandleFunc("GET /api/resources/picker", s.handleResourcePicker)
	mux.HandleFunc("GET /api/resources/{id}/availability", s.handleAvailability)
	mux.HandleFunc("GET /api/resources/{id}/next-available", s.handleNextAvailable)
	mux.HandleFunc("POST /api/resources/{id}/quote", s.handleQuote)
	mux.HandleFunc("POST /api/resources/{id}/reservations", s.handleCreateReservation)
	mux.HandleFunc("GET /api/resources/{id}/reservations/export", s.handleExportReservations)
	mux.HandleFunc("GET /api/resources/{id}/blackouts", s.handleListBlackouts)
	mux.HandleFunc("PUT /api/resources/{id}/blackouts/{date}", s.handleCloseDate)
	mux.HandleFunc("DELETE /api/resources/{id}/blackouts/{date}", s.handleReopenDate)
	mux.HandleFunc("DELETE /api/reservations/{rid}", s.handleCancelReservation)
	mux.HandleFunc("POST /api/selection/start", s.handleSelectionStart)
	mux.HandleFunc("POST /api/selection/tap", s.handleSelectionTap)
	mux.HandleFunc("GET /api/selection", s.handleSelectionGet)
	mux.HandleFunc("GET /api/selection/keyboard", s.handleSelectionKeyboard)
	mux.HandleFunc("DELETE /api/selection", s.handleSelectionReset)
	mux.HandleFunc("POST /api/selection/confirm", s.handleSelectionConfirm)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.instrument(s.rateLimit(s.auth(mux))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start blocks serving requests until Shutdown.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("api server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get(headerAPIKey)
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *HTTPServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.IncHTTPRequest(route, strconv.Itoa(rec.status))
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(started)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// writeServiceError maps service and storage errors onto HTTP statuses.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	var conflict *database.ConflictError
	switch {
	case errors.As(err, &conflict):
		code := "not_available"
		if errors.Is(err, database.ErrDoubleBooked) {
			code = "double_booked"
		}
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: code, Conflicts: conflict.Dates})
	case errors.Is(err, database.ErrResourceNotFound),
		errors.Is(err, database.ErrResourceInactive),
		errors.Is(err, database.ErrReservationNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrNoSession):
		writeError(w, http.StatusNotFound, "no_session", err.Error())
	case errors.Is(err, database.ErrAlreadyCanceled):
		writeError(w, http.StatusConflict, "already_canceled", err.Error())
	case errors.Is(err, calendar.ErrInvalidDate),
		errors.Is(err, calendar.ErrInvalidRange),
		errors.Is(err, models.ErrReversedRange),
		errors.Is(err, models.ErrMissingResourceID),
		errors.Is(err, service.ErrPastDate),
		errors.Is(err, pricing.ErrNegativeAmount),
		errors.Is(err, selection.ErrIncompleteRange):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, cache.ErrLockNotAcquired):
		writeError(w, http.StatusServiceUnavailable, "busy", "resource is busy, retry shortly")
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// decodeOptionalJSON is decodeJSON that accepts an empty body.
func decodeOptionalJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func parseDateParam(name, value string) (calendar.DateKey, error) {
	if value == "" {
		return "", nil
	}
	d, err := calendar.ParseDateKey(value)
	if err != nil {
		return "", fmt.Errorf("invalid %s format; expected YYYY-MM-DD", name)
	}
	return d, nil
}

func userIDFrom(r *http.Request) (int64, error) {
	raw := r.Header.Get(headerUserID)
	if raw == "" {
		return 0, fmt.Errorf("%s header is required", headerUserID)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s header", headerUserID)
	}
	return id, nil
}
