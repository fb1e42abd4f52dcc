package model

import "time"

// AuditLog is one recorded domain event.  Rows are written by the event
// worker, never by the request path.
type AuditLog struct {
	ID        uint64    `json:"id"`         // audit_logs.id
	EventID   string    `json:"event_id"`   // audit_logs.event_id
	ActorID   *uint64   `json:"actor_id"`   // audit_logs.actor_id (nullable)
	Action    string    `json:"action"`     // audit_logs.action
	Entity    string    `json:"entity"`     // audit_logs.entity
	EntityID  uint64    `json:"entity_id"`  // audit_logs.entity_id
	Data      string    `json:"data"`       // audit_logs.data (JSON text)
	CreatedAt time.Time `json:"created_at"` // audit_logs.created_at
}

// Notification is a message addressed to a participant, for example when
// they are promoted from the waitlist or suspended for unpaid debt.
type Notification struct {
	ID        uint64    `json:"id"`         // notifications.id
	UserID    uint64    `json:"user_id"`    // notifications.user_id
	Type      string    `json:"type"`       // notifications.type
	Title     string    `json:"title"`      // notifications.title
	Body      string    `json:"body"`       // notifications.body
	IsRead    bool      `json:"is_read"`    // notifications.is_read
	CreatedAt time.Time `json:"created_at"` // notifications.created_at
}
