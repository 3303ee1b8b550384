package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"rentcal/internal/calendar"
	"rentcal/internal/database"
	"rentcal/internal/models"
	"rentcal/internal/pricing"
	"rentcal/internal/selection"
	"rentcal/internal/service"
	"rentcal/internal/telegram"
)

// SelectionStartRequest is the body of POST /api/selection/start.
type SelectionStartRequest struct {
	ResourceID string `json:"resource_id"`
}

// SelectionTapRequest is the body of POST /api/selection/tap.
type SelectionTapRequest struct {
	Date string `json:"date"`
}

// SelectionResponse describes a user's selection session.
type SelectionResponse struct {
	ResourceID string              `json:"resource_id"`
	State      selection.State     `json:"state"`
	Start      calendar.DateKey    `json:"start,omitempty"`
	End        calendar.DateKey    `json:"end,omitempty"`
	Accepted   *bool               `json:"accepted,omitempty"`
	Reason     selection.Reason    `json:"reason,omitempty"`
	Message    string              `json:"message,omitempty"`
	Conflicts  []calendar.DateKey  `json:"conflicts,omitempty"`
	Quote      *pricing.PriceQuote `json:"quote,omitempty"`
	Dates      []DateAvailability  `json:"dates,omitempty"`
}

// ConfirmResponse is the body of a failed or successful confirm.
type ConfirmResponse struct {
	Reservation *models.Reservation `json:"reservation,omitempty"`
	Selection   *SelectionResponse  `json:"selection,omitempty"`
	Error       string              `json:"error,omitempty"`
	Code        string              `json:"code,omitempty"`
}

func (s *HTTPServer) selectionView(r *http.Request, sess *selection.Session, withDates bool) *SelectionResponse {
	pending := sess.Range()
	reason := sess.LastReason()
	view := &SelectionResponse{
		ResourceID: sess.ResourceID,
		State:      pending.State(),
		Start:      pending.Start,
		End:        pending.End,
		Reason:     reason,
		Conflicts:  sess.Conflicts(),
	}
	if err := reason.Err(); err != nil {
		view.Message = err.Error()
	}
	if pending.State() == selection.StateComplete {
		if q, err := s.svc.Quote(r.Context(), sess.ResourceID, pending.Start, pending.End); err == nil {
			view.Quote = &q
		}
	}
	if withDates {
		view.Dates = toDates(sess.Highlighted())
	}
	return view
}

// handleSelectionStart opens a selection over a resource's calendar.
// POST /api/selection/start
func (s *HTTPServer) handleSelectionStart(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	var req SelectionStartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.ResourceID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "resource_id is required")
		return
	}

	sess, err := s.svc.StartSelection(r.Context(), userID, req.ResourceID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.selectionView(r, sess, true))
}

// handleSelectionTap applies one date tap.
// POST /api/selection/tap
func (s *HTTPServer) handleSelectionTap(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	var req SelectionTapRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	// Malformed dates go through the selector so they show up as a rejected tap.
	sess, res, err := s.svc.Tap(userID, calendar.DateKey(req.Date))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	view := s.selectionView(r, sess, false)
	view.Accepted = &res.Accepted
	view.Reason = res.Reason
	view.Message = ""
	if err := res.Reason.Err(); err != nil {
		view.Message = err.Error()
	}
	if len(res.Conflicts) > 0 {
		view.Conflicts = res.Conflicts
	}
	writeJSON(w, http.StatusOK, view)
}

// handleSelectionGet returns the live session with highlighted dates.
// GET /api/selection
func (s *HTTPServer) handleSelectionGet(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	sess, err := s.svc.Selection(userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.selectionView(r, sess, true))
}

// handleSelectionReset clears the pending range but keeps the session.
// DELETE /api/selection
func (s *HTTPServer) handleSelectionReset(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	sess, err := s.svc.Selection(userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	sess.Reset()
	writeJSON(w, http.StatusOK, s.selectionView(r, sess, false))
}

// handleSelectionConfirm commits the complete range. A conflict answers 409
// with the reset session so the client can redraw and reselect.
// POST /api/selection/confirm
func (s *HTTPServer) handleSelectionConfirm(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	res, err := s.svc.Confirm(r.Context(), userID)
	if err == nil {
		writeJSON(w, http.StatusCreated, ConfirmResponse{Reservation: res})
		return
	}
	var conflict *database.ConflictError
	if !errors.As(err, &conflict) {
		s.writeServiceError(w, err)
		return
	}

	reason := service.ConflictReason(conflict)
	resp := ConfirmResponse{Error: reason.Err().Error(), Code: string(reason)}
	if sess, serr := s.svc.Selection(userID); serr == nil {
		resp.Selection = s.selectionView(r, sess, true)
	}
	writeJSON(w, http.StatusConflict, resp)
}

// KeyboardResponse carries a ready-to-send Telegram inline keyboard.
type KeyboardResponse struct {
	Text     string                        `json:"text,omitempty"`
	Month    string                        `json:"month,omitempty"`
	Keyboard tgbotapi.InlineKeyboardMarkup `json:"reply_markup"`
}

// handleSelectionKeyboard renders the session's calendar for a month as a
// Telegram inline keyboard. The month defaults to the pending start or the
// first date of the session's map.
// GET /api/selection/keyboard?month=YYYY-MM
func (s *HTTPServer) handleSelectionKeyboard(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	sess, err := s.svc.Selection(userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	highlighted := sess.Highlighted()

	var (
		year  int
		month time.Month
	)
	if raw := r.URL.Query().Get("month"); raw != "" {
		var ok bool
		year, month, ok = telegram.ParseMonthCallback(telegram.CallbackMonth + raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid month format; expected YYYY-MM")
			return
		}
	} else {
		anchor := sess.Range().Start
		if anchor == "" {
			if dates := highlighted.Dates(); len(dates) > 0 {
				anchor = dates[0]
			}
		}
		if anchor == "" {
			now := time.Now()
			year, month = now.Year(), now.Month()
		} else {
			year, month = anchor.Year(), anchor.Month()
		}
	}

	writeJSON(w, http.StatusOK, KeyboardResponse{
		Month:    fmt.Sprintf("%04d-%02d", year, month),
		Keyboard: telegram.CalendarKeyboard(year, month, highlighted),
	})
}

// handleResourcePicker renders a page of active resources as a Telegram keyboard.
// GET /api/resources/picker?page=N
func (s *HTTPServer) handleResourcePicker(w http.ResponseWriter, r *http.Request) {
	page := 0
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "page must be a non-negative integer")
			return
		}
		page = n
	}
	resources, err := s.svc.Resources(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	p := telegram.ResourcePicker("Choose what to rent", resources, page, "")
	writeJSON(w, http.StatusOK, KeyboardResponse{Text: p.Text, Keyboard: p.Keyboard})
}
