package models

import (
	"time"

	"github.com/google/uuid"
)

// Event statuses.
const (
	EventStatusActive    = "active"
	EventStatusCancelled = "cancelled"
	EventStatusCompleted = "completed"
)

// Event is a scheduled event marshals can be committed to.
// MaxMarshals is the capacity ceiling; the de-duplicated committed count
// must not exceed it.
type Event struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Location     string     `json:"location"`
	StartsAt     time.Time  `json:"starts_at"`
	EndsAt       *time.Time `json:"ends_at,omitempty"`
	MarshalTypes string     `json:"marshal_types"` // comma-separated tags an eligible marshal must intersect with
	MaxMarshals  int        `json:"max_marshals"`
	Status       string     `json:"status"`
	IsArchived   bool       `json:"is_archived"`
	CreatedBy    uuid.UUID  `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
