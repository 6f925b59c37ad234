package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification kinds.
const (
	NotificationKindInvitation = "invitation"
	NotificationKindApproval   = "approval"
	NotificationKindRemoval    = "removal"
	NotificationKindReminder   = "reminder"
)

// Notification channels.
const (
	NotificationChannelPush  = "push"
	NotificationChannelEmail = "email"
)

// Notification delivery statuses.
const (
	NotificationStatusPending = "pending"
	NotificationStatusSent    = "sent"
	NotificationStatusFailed  = "failed"
)

// Notification records an outbound push or email message to a marshal.
type Notification struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	EventID      *uuid.UUID `json:"event_id,omitempty"`
	Kind         string     `json:"kind"`
	Channel      string     `json:"channel"`
	Title        string     `json:"title"`
	Body         string     `json:"body,omitempty"`
	Status       string     `json:"status"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
