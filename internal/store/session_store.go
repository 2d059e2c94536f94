package store

import (
	"context"
	"errors"

	"github.com/cernio/cernio/internal/models"
	"github.com/google/uuid"
)

// Errors
var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionAlreadyExists = errors.New("session already exists")
)

// SessionStore persists refresh-token sessions for a single principal kind.
type SessionStore interface {
	// Create stores a new session.
	// Returns ErrSessionAlreadyExists if the refresh token is already stored.
	Create(ctx context.Context, session *models.Session) error

	// GetByToken retrieves a session by exact refresh token match without consuming it.
	// Expired sessions are returned as-is; callers decide validity.
	// Returns ErrSessionNotFound if no session has this token.
	GetByToken(ctx context.Context, refreshToken string) (*models.Session, error)

	// Consume atomically removes and returns the session holding the refresh token.
	// When several callers race on the same token exactly one receives the session,
	// the others get ErrSessionNotFound.
	Consume(ctx context.Context, refreshToken string) (*models.Session, error)

	// DeleteByToken deletes any session holding the refresh token and returns the
	// number of rows removed. Removing nothing is not an error.
	DeleteByToken(ctx context.Context, refreshToken string) (int, error)

	// DeleteByPrincipal deletes all sessions for a principal (logout everywhere).
	DeleteByPrincipal(ctx context.Context, principalID uuid.UUID) (int, error)

	// DeleteExpired deletes all expired sessions (cleanup job).
	DeleteExpired(ctx context.Context) (int, error)
}
