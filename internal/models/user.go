package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents a user's role in the platform.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleMarshal Role = "marshal"
)

// User represents a registered marshal or administrator.
// EmployeeID is the human-readable business identifier; it is globally
// unique and is the key used to collapse duplicates across the two
// commitment ledgers.
type User struct {
	ID           uuid.UUID `json:"id"`
	EmployeeID   string    `json:"employee_id"`
	Email        string    `json:"email"`
	Password     string    `json:"-"`
	FullName     string    `json:"full_name"`
	Phone        string    `json:"phone,omitempty"`
	MarshalTypes string    `json:"marshal_types"` // comma-separated capability tags, e.g. "circuit,rescue"
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	PhotoKey     string    `json:"photo_key,omitempty"`
	PushToken    string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID           uuid.UUID `json:"id"`
	EmployeeID   string    `json:"employee_id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	Phone        string    `json:"phone,omitempty"`
	MarshalTypes string    `json:"marshal_types"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:           u.ID,
		EmployeeID:   u.EmployeeID,
		Email:        u.Email,
		FullName:     u.FullName,
		Phone:        u.Phone,
		MarshalTypes: u.MarshalTypes,
		Role:         u.Role,
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
	}
}

// MarshalTypeSet splits the comma-separated capability tags into a set.
func (u *User) MarshalTypeSet() map[string]struct{} {
	return SplitTags(u.MarshalTypes)
}

// SplitTags parses a comma-separated tag string into a set, trimming blanks.
func SplitTags(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(strings.ToLower(t)); t != "" {
			out[t] = struct{}{}
		}
	}
	return out
}
