package models

import (
	"time"

	"github.com/google/uuid"
)

// Session represents an issued refresh token. Each refresh token has exactly one
// session row, which is consumed when the token is rotated and deleted on logout.
type Session struct {
	SessionID    uuid.UUID // UUIDv7
	PrincipalID  uuid.UUID
	RefreshToken string // Opaque, unique

	CreatedAt time.Time
	ExpiresAt time.Time

	// Optional audit metadata
	UserAgent string
	IPAddress string
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return s.ExpiredAt(time.Now())
}

// ExpiredAt returns true if the session is no longer valid at t.
func (s *Session) ExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}
