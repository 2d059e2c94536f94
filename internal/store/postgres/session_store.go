package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cernio/cernio/internal/models"
	"github.com/cernio/cernio/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const sessionColumns = `
	session_id, principal_id, refresh_token,
	created_at, expires_at,
	user_agent, COALESCE(host(ip_address), '')`

var _ store.SessionStore = (*SessionStore)(nil)

// SessionStore implements store.SessionStore using PostgreSQL.
type SessionStore struct {
	pool  *pgxpool.Pool
	kind  models.Kind
	table string
}

// NewSessionStore creates a new PostgreSQL-backed session store for the given kind.
func NewSessionStore(pool *pgxpool.Pool, kind models.Kind) (*SessionStore, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}

	return &SessionStore{
		pool:  pool,
		kind:  kind,
		table: t.sessions,
	}, nil
}

// Create creates a new session in the database.
func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			session_id, principal_id, refresh_token,
			created_at, expires_at,
			user_agent, ip_address
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7::inet
		)
	`, s.table)

	// Convert empty IP address to nil for proper INET handling
	var ipAddress any
	if session.IPAddress != "" {
		ipAddress = session.IPAddress
	}

	_, err := s.pool.Exec(ctx, query,
		session.SessionID,
		session.PrincipalID,
		session.RefreshToken,
		session.CreatedAt,
		session.ExpiresAt,
		session.UserAgent,
		ipAddress,
	)

	if err != nil {
		mapped := mapPostgresError(err)
		if errors.Is(mapped, store.ErrSessionAlreadyExists) || errors.Is(mapped, store.ErrPrincipalNotFound) {
			return mapped
		}
		return fmt.Errorf("failed to create session: %w", mapped)
	}

	log.Debug().
		Str("session_id", session.SessionID.String()).
		Str("principal_id", session.PrincipalID.String()).
		Str("kind", s.kind.String()).
		Msg("Created session")

	return nil
}

// GetByToken retrieves a session by refresh token.
func (s *SessionStore) GetByToken(ctx context.Context, refreshToken string) (*models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE refresh_token = $1`, sessionColumns, s.table)

	session, err := scanSession(s.pool.QueryRow(ctx, query, refreshToken))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// Consume deletes the session holding the refresh token and returns it.
// The DELETE ... RETURNING statement is the serialization point for concurrent refreshes.
func (s *SessionStore) Consume(ctx context.Context, refreshToken string) (*models.Session, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE refresh_token = $1 RETURNING %s`, s.table, sessionColumns)

	session, err := scanSession(s.pool.QueryRow(ctx, query, refreshToken))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to consume session: %w", err)
	}

	log.Debug().
		Str("session_id", session.SessionID.String()).
		Str("kind", s.kind.String()).
		Msg("Consumed session")

	return session, nil
}

// DeleteByToken deletes the session holding the refresh token, if any (logout).
func (s *SessionStore) DeleteByToken(ctx context.Context, refreshToken string) (int, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE refresh_token = $1`, s.table)

	result, err := s.pool.Exec(ctx, query, refreshToken)
	if err != nil {
		return 0, fmt.Errorf("failed to delete session: %w", err)
	}

	return int(result.RowsAffected()), nil
}

// DeleteByPrincipal deletes all sessions for a principal (logout everywhere).
func (s *SessionStore) DeleteByPrincipal(ctx context.Context, principalID uuid.UUID) (int, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE principal_id = $1`, s.table)

	result, err := s.pool.Exec(ctx, query, principalID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions by principal: %w", err)
	}

	count := int(result.RowsAffected())

	log.Info().
		Str("principal_id", principalID.String()).
		Str("kind", s.kind.String()).
		Int("count", count).
		Msg("Deleted all sessions for principal")

	return count, nil
}

// DeleteExpired deletes all expired sessions (cleanup job).
func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= $1`, s.table)

	result, err := s.pool.Exec(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	count := int(result.RowsAffected())

	if count > 0 {
		log.Info().
			Int("count", count).
			Str("kind", s.kind.String()).
			Msg("Deleted expired sessions")
	}

	return count, nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var session models.Session
	err := row.Scan(
		&session.SessionID,
		&session.PrincipalID,
		&session.RefreshToken,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.UserAgent,
		&session.IPAddress,
	)
	if err != nil {
		return nil, err
	}

	return &session, nil
}
