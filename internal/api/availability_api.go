package api

import (
	"errors"
	"net/http"
	"strconv"

	"rentcal/internal/availability"
	"rentcal/internal/calendar"
	"rentcal/internal/models"
)

// MaxAvailabilityMonths caps the months query parameter.
const MaxAvailabilityMonths = 12

var errRangeRequired = errors.New("start_date and end_date are required")

// DateAvailability is one day of an availability answer.
type DateAvailability struct {
	Date         calendar.DateKey         `json:"date"`
	Available    bool                     `json:"available"`
	Reason       availability.BlockReason `json:"reason,omitempty"`
	IsRangeStart bool                     `json:"is_range_start,omitempty"`
	Selected     bool                     `json:"selected,omitempty"`
	IsRangeEnd   bool                     `json:"is_range_end,omitempty"`
}

// AvailabilityResponse is the body of GET /api/resources/{id}/availability.
type AvailabilityResponse struct {
	ResourceID string             `json:"resource_id"`
	Timezone   string             `json:"timezone"`
	Dates      []DateAvailability `json:"dates"`
	Period     struct {
		Start calendar.DateKey `json:"start"`
		End   calendar.DateKey `json:"end"`
	} `json:"period"`
}

// NextAvailableResponse is the body of GET /api/resources/{id}/next-available.
type NextAvailableResponse struct {
	ResourceID string           `json:"resource_id"`
	From       calendar.DateKey `json:"from,omitempty"`
	Date       calendar.DateKey `json:"date,omitempty"`
	Found      bool             `json:"found"`
}

// QuoteRequest is the body of POST /api/resources/{id}/quote.
type QuoteRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func toDates(m availability.BlockedDateMap) []DateAvailability {
	out := make([]DateAvailability, 0, len(m))
	for _, d := range m.Dates() {
		mark := m[d]
		out = append(out, DateAvailability{
			Date:         d,
			Available:    !mark.Blocked,
			Reason:       mark.Reason,
			IsRangeStart: mark.IsRangeStart,
			Selected:     mark.Selected,
			IsRangeEnd:   mark.IsRangeEnd,
		})
	}
	return out
}

// handleResources lists active resources.
// GET /api/resources
func (s *HTTPServer) handleResources(w http.ResponseWriter, r *http.Request) {
	resources, err := s.svc.Resources(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if resources == nil {
		resources = []models.Resource{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": resources})
}

// handleAvailability returns the blocked map of a resource.
// GET /api/resources/{id}/availability?from=YYYY-MM-DD&months=N
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q := r.URL.Query()

	from, err := parseDateParam("from", q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	months := 0
	if raw := q.Get("months"); raw != "" {
		months, err = strconv.Atoi(raw)
		if err != nil || months < 1 || months > MaxAvailabilityMonths {
			writeError(w, http.StatusBadRequest, "bad_request", "months must be between 1 and 12")
			return
		}
	}

	res, err := s.svc.Resource(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	m, err := s.svc.BlockedMapFrom(r.Context(), id, from, months)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := AvailabilityResponse{
		ResourceID: id,
		Timezone:   res.Timezone,
		Dates:      toDates(m),
	}
	if len(resp.Dates) > 0 {
		resp.Period.Start = resp.Dates[0].Date
		resp.Period.End = resp.Dates[len(resp.Dates)-1].Date
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleNextAvailable finds the first open date after from.
// GET /api/resources/{id}/next-available?from=YYYY-MM-DD
func (s *HTTPServer) handleNextAvailable(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	from, err := parseDateParam("from", r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	d, ok, err := s.svc.NextAvailable(r.Context(), id, from)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NextAvailableResponse{ResourceID: id, From: from, Date: d, Found: ok})
}

// handleQuote prices a date range without booking it.
// POST /api/resources/{id}/quote
func (s *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	start, end, err := validateRange(req.StartDate, req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	quote, err := s.svc.Quote(r.Context(), r.PathValue("id"), start, end)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func validateRange(rawStart, rawEnd string) (calendar.DateKey, calendar.DateKey, error) {
	if rawStart == "" || rawEnd == "" {
		return "", "", errRangeRequired
	}
	start, err := parseDateParam("start_date", rawStart)
	if err != nil {
		return "", "", err
	}
	end, err := parseDateParam("end_date", rawEnd)
	if err != nil {
		return "", "", err
	}
	if end.Before(start) {
		return "", "", models.ErrReversedRange
	}
	return start, end, nil
}
