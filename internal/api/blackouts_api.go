package api

import (
	"net/http"

	"rentcal/internal/models"
)

// CloseDateRequest is the optional body of PUT /api/resources/{id}/blackouts/{date}.
type CloseDateRequest struct {
	Reason string `json:"reason"`
}

// handleListBlackouts lists closed dates of a resource.
// GET /api/resources/{id}/blackouts?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *HTTPServer) handleListBlackouts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
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

	list, err := s.svc.Blackouts(r.Context(), r.PathValue("id"), from, to)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []models.BlackoutDate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"blackouts": list})
}

// handleCloseDate closes one date for bookings.
// PUT /api/resources/{id}/blackouts/{date}
func (s *HTTPServer) handleCloseDate(w http.ResponseWriter, r *http.Request) {
	date, err := parseDateParam("date", r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	var req CloseDateRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	b, err := s.svc.CloseDate(r.Context(), r.PathValue("id"), date, req.Reason)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleReopenDate removes a blackout date.
// DELETE /api/resources/{id}/blackouts/{date}
func (s *HTTPServer) handleReopenDate(w http.ResponseWriter, r *http.Request) {
	date, err := parseDateParam("date", r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := s.svc.ReopenDate(r.Context(), r.PathValue("id"), date); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
