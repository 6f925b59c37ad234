package models

import (
	"time"

	"github.com/google/uuid"
)

// Attendance statuses. Rejected and cancelled are terminal.
const (
	AttendanceStatusPending   = "pending"
	AttendanceStatusApproved  = "approved"
	AttendanceStatusRejected  = "rejected"
	AttendanceStatusCancelled = "cancelled"
)

// Attendance is a marshal's self-initiated registration for an event.
// The table carries no uniqueness constraint on (user_id, event_id):
// multiple historical rows may exist per pair, ordered by registered_at,
// and only the most recent non-terminal row is operative.
type Attendance struct {
	ID                 uuid.UUID  `json:"id"`
	UserID             uuid.UUID  `json:"user_id"`
	EventID            uuid.UUID  `json:"event_id"`
	Status             string     `json:"status"`
	RegisteredAt       time.Time  `json:"registered_at"`
	CheckedInAt        *time.Time `json:"checked_in_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
}

// IsTerminal reports whether the attendance can no longer change state.
func (a *Attendance) IsTerminal() bool {
	return a.Status == AttendanceStatusRejected || a.Status == AttendanceStatusCancelled
}
