// Package queue carries domain events from the API to the event worker
// over RabbitMQ.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// EventType is also the routing key on the events exchange.
type EventType string

const (
	EventEnrollmentBooked    EventType = "enrollment.booked"
	EventEnrollmentCancelled EventType = "enrollment.cancelled"
	EventEnrollmentPromoted  EventType = "enrollment.promoted"
	EventEnrollmentPaid      EventType = "enrollment.paid"
	EventDebtClosed          EventType = "debt.closed"
	EventBanApplied          EventType = "ban.applied"
	EventBanLifted           EventType = "ban.lifted"
	EventAutobanCompleted    EventType = "autoban.completed"
)

// Event is published after a core operation succeeds.  It carries enough
// context for the worker to write an audit row and, when the event
// concerns a participant, a notification, without querying the booking
// tables.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	ActorID    uint64         `json:"actor_id,omitempty"` // who triggered it; 0 for the system
	UserID     uint64         `json:"user_id,omitempty"`  // participant affected
	Entity     string         `json:"entity"`
	EntityID   uint64         `json:"entity_id"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewEvent stamps a fresh id and the current time.
func NewEvent(typ EventType, actorID, userID uint64, entity string, entityID uint64, data map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		ActorID:    actorID,
		UserID:     userID,
		Entity:     entity,
		EntityID:   entityID,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
}
