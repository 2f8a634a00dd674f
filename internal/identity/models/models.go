package models

import (
	"time"

	"github.com/google/uuid"

	"gestionale/internal/policy"
)

// User is an operator of the back office.
type User struct {
	ID           uuid.UUID   `json:"id"`
	Email        string      `json:"email"`
	Name         string      `json:"name"`
	Role         policy.Role `json:"role"`
	PasswordHash string      `json:"-"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// Session is a logged-in browser. The role is not copied here; it is read
// from the user on every request.
type Session struct {
	ID        string    `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	Device    string    `json:"device"`
	ClientIP  string    `json:"clientIp"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IsExpired reports whether the session has lapsed at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionSummary is the session view returned by /auth/me.
type SessionSummary struct {
	Device    string    `json:"device"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Me is the /auth/me response. Both fields are null for anonymous callers.
type Me struct {
	User    *User           `json:"user"`
	Session *SessionSummary `json:"session"`
}

// Permissions is the ability map of the calling role.
type Permissions struct {
	Role        policy.Role                          `json:"role"`
	Permissions map[policy.Resource][]policy.Ability `json:"permissions"`
}
