package model

import "time"

// Training is a scheduled session from the catalog.  The booking core
// only reads trainings; creating and editing them belongs to the catalog.
//
// Fields:
//  ID              – primary key identifier.
//  Title           – human readable name of the session.
//  StartAt         – when the session starts (UTC).
//  CapacityMain    – size of the primary list.
//  CapacityReserve – size of the waitlist.
//  PriceCents      – price charged to a participant, in cents.
//  IsCancelled     – set when the session was called off.
//  CreatedAt       – creation timestamp.
type Training struct {
	ID              uint64    `json:"id"`               // trainings.id
	Title           string    `json:"title"`            // trainings.title
	StartAt         time.Time `json:"start_at"`         // trainings.start_at
	CapacityMain    int       `json:"capacity_main"`    // trainings.capacity_main
	CapacityReserve int       `json:"capacity_reserve"` // trainings.capacity_reserve
	PriceCents      int64     `json:"price_cents"`      // trainings.price_cents
	IsCancelled     bool      `json:"is_cancelled"`     // trainings.is_cancelled
	CreatedAt       time.Time `json:"created_at"`       // trainings.created_at
}
