package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cernio/cernio/internal/models"
	"github.com/cernio/cernio/internal/store"
	"github.com/google/uuid"
)

var _ store.SessionStore = (*SessionStore)(nil)

// SessionStore implements store.SessionStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type SessionStore struct {
	mu sync.Mutex

	sessions            map[string]*models.Session // refresh_token -> Session
	sessionsByPrincipal map[uuid.UUID][]string     // principal_id -> []refresh_token
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:            make(map[string]*models.Session),
		sessionsByPrincipal: make(map[uuid.UUID][]string),
	}
}

// Create creates a new session in memory.
func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.RefreshToken]; exists {
		return store.ErrSessionAlreadyExists
	}

	// Clone to avoid external modifications
	clone := *session
	s.sessions[session.RefreshToken] = &clone

	// Update principal index
	s.sessionsByPrincipal[session.PrincipalID] = append(
		s.sessionsByPrincipal[session.PrincipalID],
		session.RefreshToken,
	)

	return nil
}

// GetByToken retrieves a session by refresh token.
func (s *SessionStore) GetByToken(ctx context.Context, refreshToken string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[refreshToken]
	if !exists {
		return nil, store.ErrSessionNotFound
	}

	clone := *session
	return &clone, nil
}

// Consume removes and returns the session holding the refresh token.
func (s *SessionStore) Consume(ctx context.Context, refreshToken string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[refreshToken]
	if !exists {
		return nil, store.ErrSessionNotFound
	}

	s.removeFromPrincipalIndex(session.PrincipalID, refreshToken)
	delete(s.sessions, refreshToken)

	return session, nil
}

// DeleteByToken deletes the session holding the refresh token, if any (logout).
func (s *SessionStore) DeleteByToken(ctx context.Context, refreshToken string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[refreshToken]
	if !exists {
		return 0, nil
	}

	s.removeFromPrincipalIndex(session.PrincipalID, refreshToken)
	delete(s.sessions, refreshToken)

	return 1, nil
}

// DeleteByPrincipal deletes all sessions for a principal (logout everywhere).
func (s *SessionStore) DeleteByPrincipal(ctx context.Context, principalID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, exists := s.sessionsByPrincipal[principalID]
	if !exists {
		return 0, nil
	}

	for _, token := range tokens {
		delete(s.sessions, token)
	}

	// Clear index
	delete(s.sessionsByPrincipal, principalID)

	return len(tokens), nil
}

// DeleteExpired deletes all expired sessions (cleanup job).
func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0

	for token, session := range s.sessions {
		if session.ExpiredAt(now) {
			s.removeFromPrincipalIndex(session.PrincipalID, token)
			delete(s.sessions, token)
			count++
		}
	}

	return count, nil
}

// removeFromPrincipalIndex removes a refresh token from the principal's session list.
func (s *SessionStore) removeFromPrincipalIndex(principalID uuid.UUID, refreshToken string) {
	tokens := s.sessionsByPrincipal[principalID]
	for i, token := range tokens {
		if token == refreshToken {
			s.sessionsByPrincipal[principalID] = append(tokens[:i], tokens[i+1:]...)
			break
		}
	}
	// Clean up empty entries
	if len(s.sessionsByPrincipal[principalID]) == 0 {
		delete(s.sessionsByPrincipal, principalID)
	}
}
