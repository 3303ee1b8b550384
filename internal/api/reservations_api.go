package api

import (
	"bytes"
	"fmt"
	"net/http"

	"rentcal/internal/availability"
	"rentcal/internal/report"
)

// CreateReservationRequest is the body of POST /api/resources/{id}/reservations.
type CreateReservationRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	UserID    int64  `json:"user_id"`
}

// handleCreateReservation commits a range directly, without a selection session.
// POST /api/resources/{id}/reservations
func (s *HTTPServer) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "user_id is required")
		return
	}
	start, end, err := validateRange(req.StartDate, req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	res, err := s.svc.Reserve(r.Context(), req.UserID, r.PathValue("id"), start, end)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleCancelReservation cancels a reservation.
// DELETE /api/reservations/{rid}
func (s *HTTPServer) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Cancel(r.Context(), r.PathValue("rid"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleExportReservations streams an xlsx workbook with the reservations
// overlapping from..to and the resource's current availability.
// GET /api/resources/{id}/reservations/export?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *HTTPServer) handleExportReservations(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q := r.URL.Query()

	res, err := s.svc.Resource(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	from, err := parseDateParam("from", q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	to, err := parseDateParam("to", q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if from == "" {
		from = s.svc.Today(res)
	}
	if to == "" {
		to = availability.HorizonEnd(from, s.svc.HorizonMonths())
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "bad_request", "to must not be before from")
		return
	}

	reservations, err := s.svc.Reservations(r.Context(), id, from, to)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	blocked, err := s.svc.BlockedMap(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteReservations(&buf, res, reservations, blocked); err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="reservations_%s_%s_%s.xlsx"`, id, from, to))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
