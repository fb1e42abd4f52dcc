package model

import "time"

// EnrollmentStatus is the lifecycle state of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "ACTIVE"
	EnrollmentCancelled EnrollmentStatus = "CANCELLED"
	EnrollmentNoShow    EnrollmentStatus = "NO_SHOW"
)

// Enrollment records one participant's place on one training.  There is
// at most one enrollment per (user, training) pair; a cancelled row is
// reactivated in place when the participant books again.
//
// Fields:
//  ID           – primary key identifier.
//  UserID       – participant who booked.
//  TrainingID   – training being booked.
//  Status       – ACTIVE, CANCELLED or NO_SHOW.
//  IsWaitlisted – true while the participant sits on the reserve list.
//  IsPaid       – set by an administrator once the session is paid for.
//  CreatedAt    – booking time, also the waitlist ordering key.
type Enrollment struct {
	ID           uint64           `json:"id"`            // enrollments.id
	UserID       uint64           `json:"user_id"`       // enrollments.user_id
	TrainingID   uint64           `json:"training_id"`   // enrollments.training_id
	Status       EnrollmentStatus `json:"status"`        // enrollments.status
	IsWaitlisted bool             `json:"is_waitlisted"` // enrollments.is_waitlisted
	IsPaid       bool             `json:"is_paid"`       // enrollments.is_paid
	CreatedAt    time.Time        `json:"created_at"`    // enrollments.created_at
}
