package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"rentcal/internal/calendar"
)

// Event types.
const (
	ReservationCreated  = "reservation.created"
	ReservationCanceled = "reservation.canceled"
	ReservationConflict = "reservation.conflict"
)

// Event represents a lightweight domain event.
type Event struct {
	ID        string
	Type      string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// ReservationPayload is the body of reservation.created and reservation.canceled.
type ReservationPayload struct {
	ReservationID string           `json:"reservation_id"`
	ResourceID    string           `json:"resource_id"`
	UserID        int64            `json:"user_id"`
	StartDate     calendar.DateKey `json:"start_date"`
	EndDate       calendar.DateKey `json:"end_date"`
	DayCount      int              `json:"day_count"`
	TotalCents    int64            `json:"total_cents"`
}

// ConflictPayload is the body of reservation.conflict.
type ConflictPayload struct {
	ResourceID string             `json:"resource_id"`
	UserID     int64              `json:"user_id"`
	StartDate  calendar.DateKey   `json:"start_date"`
	EndDate    calendar.DateKey   `json:"end_date"`
	Dates      []calendar.DateKey `json:"dates"`
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type and returns the first
// handler error. Every handler runs regardless.
func (b *EventBus) Publish(event Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var first error
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PublishJSON marshals payload and publishes it under eventType.
func (b *EventBus) PublishJSON(eventType, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return b.Publish(Event{Type: eventType, Key: key, Payload: data})
}
