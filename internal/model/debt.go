package model

import "time"

// DebtStatus is either OPEN or CLOSED.
type DebtStatus string

const (
	DebtOpen   DebtStatus = "OPEN"
	DebtClosed DebtStatus = "CLOSED"
)

// Debt is an amount owed by a participant for a specific training.  The
// (user, training) pair is unique, so a pair can only ever hold one debt.
//
// Fields:
//  ID          – primary key identifier.
//  UserID      – participant who owes the amount.
//  TrainingID  – training the debt was raised for.
//  AmountCents – training price captured when the debt was opened.
//  Status      – OPEN or CLOSED.
//  CreatedAt   – when the debt was opened.
//  ClosedAt    – when the debt was closed (nil while open).
type Debt struct {
	ID          uint64     `json:"id"`                  // debts.id
	UserID      uint64     `json:"user_id"`             // debts.user_id
	TrainingID  uint64     `json:"training_id"`         // debts.training_id
	AmountCents int64      `json:"amount_cents"`        // debts.amount_cents
	Status      DebtStatus `json:"status"`              // debts.status
	CreatedAt   time.Time  `json:"created_at"`          // debts.created_at
	ClosedAt    *time.Time `json:"closed_at,omitempty"` // debts.closed_at (nullable)
}
