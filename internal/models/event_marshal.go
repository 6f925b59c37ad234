package models

import (
	"time"

	"github.com/google/uuid"
)

// EventMarshal statuses. Declined is terminal.
const (
	EventMarshalStatusInvited  = "invited"
	EventMarshalStatusAccepted = "accepted"
	EventMarshalStatusDeclined = "declined"
	EventMarshalStatusApproved = "approved"
)

// EventMarshal is an admin-initiated invitation or assignment. Unlike
// Attendance this ledger carries a unique constraint on
// (event_id, marshal_id), so it holds at most one row per pair.
type EventMarshal struct {
	ID          uuid.UUID  `json:"id"`
	EventID     uuid.UUID  `json:"event_id"`
	MarshalID   uuid.UUID  `json:"marshal_id"`
	Status      string     `json:"status"`
	InvitedAt   time.Time  `json:"invited_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

// IsCommitted reports whether this row counts toward event capacity.
func (em *EventMarshal) IsCommitted() bool {
	return em.Status == EventMarshalStatusAccepted || em.Status == EventMarshalStatusApproved
}
