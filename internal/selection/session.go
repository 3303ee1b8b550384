package selection

import (
	"context"
	"sync"
	"time"

	"rentcal/internal/availability"
	"rentcal/internal/calendar"
)

// Session holds one user's selection against one resource's blocked map.
type Session struct {
	UserID     int64
	ResourceID string
	StartedAt  time.Time
	UpdatedAt  time.Time

	mu        sync.Mutex
	pending   PendingRange
	blocked   availability.BlockedDateMap
	reason    Reason
	conflicts []calendar.DateKey
}

// NewSession starts an empty selection.
func NewSession(userID int64, resourceID string, blocked availability.BlockedDateMap) *Session {
	now := time.Now()
	if blocked == nil {
		blocked = availability.BlockedDateMap{}
	}
	return &Session{
		UserID:     userID,
		ResourceID: resourceID,
		StartedAt:  now,
		UpdatedAt:  now,
		blocked:    blocked,
	}
}

// Tap applies one tap and records the outcome. When the session holds a
// non-empty map, dates outside it are rejected with ReasonOutOfHorizon.
func (s *Session) Tap(d calendar.DateKey) TapResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res TapResult
	if _, ok := s.blocked[d]; !ok && len(s.blocked) > 0 && d.Valid() {
		res = TapResult{State: s.pending, Reason: ReasonOutOfHorizon}
	} else {
		res = OnDateTap(d, s.pending, s.blocked)
	}
	s.pending = res.State
	s.reason = res.Reason
	s.conflicts = res.Conflicts
	s.UpdatedAt = time.Now()
	return res
}

// Range returns the current selection.
func (s *Session) Range() PendingRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// LastReason returns the reason of the last rejection, if the last action was one.
func (s *Session) LastReason() Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Conflicts returns the dates that caused the last range rejection.
func (s *Session) Conflicts() []calendar.DateKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]calendar.DateKey(nil), s.conflicts...)
}

// Highlighted returns the render map for the current selection.
func (s *Session) Highlighted() availability.BlockedDateMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return HighlightedDates(s.pending, s.blocked)
}

// Completion returns the completed range for the session's resource.
func (s *Session) Completion() (Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Complete(s.ResourceID)
}

// Refresh swaps in a newly built blocked map. A selection that the new map
// invalidates is dropped so a Complete range never covers a blocked date.
func (s *Session) Refresh(blocked availability.BlockedDateMap) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if blocked == nil {
		blocked = availability.BlockedDateMap{}
	}
	s.blocked = blocked
	s.UpdatedAt = time.Now()

	switch s.pending.State() {
	case StatePartialStart:
		if blocked.IsBlocked(s.pending.Start) {
			s.conflicts = []calendar.DateKey{s.pending.Start}
			s.reason = ReasonDateBlocked
			s.pending = PendingRange{}
		}
	case StateComplete:
		days, err := s.pending.Days()
		if err != nil {
			s.pending = PendingRange{}
			return
		}
		var conflicts []calendar.DateKey
		for _, d := range days {
			if blocked.IsBlocked(d) {
				conflicts = append(conflicts, d)
			}
		}
		if len(conflicts) > 0 {
			s.pending = PendingRange{}
			s.reason = ReasonRangeContainsBlockedDates
			s.conflicts = conflicts
		}
	}
}

// ReportConflict lets the persistence side report a rejected commit, for
// example ReasonDoubleBooked. The selection restarts from Empty.
func (s *Session) ReportConflict(reason Reason, dates []calendar.DateKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = PendingRange{}
	s.reason = reason
	s.conflicts = append([]calendar.DateKey(nil), dates...)
	s.UpdatedAt = time.Now()
}

// Reset clears the selection.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = PendingRange{}
	s.reason = ReasonNone
	s.conflicts = nil
	s.UpdatedAt = time.Now()
}

// IsExpired checks if the session has been idle longer than timeout.
func (s *Session) IsExpired(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.UpdatedAt) > timeout
}

// SessionStore keeps one selection session per user.
type SessionStore struct {
	sessions map[int64]*Session
	mu       sync.RWMutex
	timeout  time.Duration
}

// NewSessionStore creates a store. A non-positive timeout means 30 minutes.
func NewSessionStore(timeout time.Duration) *SessionStore {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &SessionStore{
		sessions: make(map[int64]*Session),
		timeout:  timeout,
	}
}

// Get returns the user's live session or nil.
func (ss *SessionStore) Get(userID int64) *Session {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	s := ss.sessions[userID]
	if s == nil || s.IsExpired(ss.timeout) {
		return nil
	}
	return s
}

// Start replaces any existing session of the user with a fresh one.
func (ss *SessionStore) Start(userID int64, resourceID string, blocked availability.BlockedDateMap) *Session {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	s := NewSession(userID, resourceID, blocked)
	ss.sessions[userID] = s
	return s
}

// Delete removes a session.
func (ss *SessionStore) Delete(userID int64) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.sessions, userID)
}

// Len returns the number of stored sessions, expired ones included.
func (ss *SessionStore) Len() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.sessions)
}

// Cleanup removes expired sessions.
func (ss *SessionStore) Cleanup() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	removed := 0
	for userID, s := range ss.sessions {
		if s.IsExpired(ss.timeout) {
			delete(ss.sessions, userID)
			removed++
		}
	}
	return removed
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (ss *SessionStore) RunCleanup(ctx context.Context, interval time.Duration, onRemoved func(int)) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := ss.Cleanup(); n > 0 && onRemoved != nil {
				onRemoved(n)
			}
		}
	}
}
