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

var _ store.PrincipalStore = (*PrincipalStore)(nil)

// PrincipalStore implements store.PrincipalStore using PostgreSQL.
// Each instance serves one principal kind and only touches that kind's table.
type PrincipalStore struct {
	pool   *pgxpool.Pool
	kind   models.Kind
	tables tables

	selectColumns string
}

// NewPrincipalStore creates a new PostgreSQL-backed principal store for the given kind.
// It shares the connection pool with other stores.
func NewPrincipalStore(pool *pgxpool.Pool, kind models.Kind) (*PrincipalStore, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}

	tenantColumn := "NULL::uuid"
	if t.tenantColumn != "" {
		tenantColumn = t.tenantColumn
	}

	return &PrincipalStore{
		pool:   pool,
		kind:   kind,
		tables: t,
		selectColumns: fmt.Sprintf(`
			principal_id, %s, email, password_hash,
			first_name, last_name, phone, role, is_active,
			created_at, updated_at`, tenantColumn),
	}, nil
}

// Kind returns the principal kind served by this store.
func (s *PrincipalStore) Kind() models.Kind {
	return s.kind
}

// Register creates the tenant (if any) and the principal in one transaction.
func (s *PrincipalStore) Register(ctx context.Context, principal *models.Principal, tenant *models.Tenant) error {
	if principal.Kind != s.kind {
		return fmt.Errorf("principal kind %q does not match store kind %q", principal.Kind, s.kind)
	}
	if tenant != nil && s.tables.tenantColumn == "" {
		return fmt.Errorf("%s principals cannot own a tenant", s.kind)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	if tenant != nil {
		if err := insertTenant(ctx, tx, tenant); err != nil {
			return err
		}
	}

	if err := s.insertPrincipal(ctx, tx, principal); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit registration: %w", err)
	}

	return nil
}

func (s *PrincipalStore) insertPrincipal(ctx context.Context, tx pgx.Tx, principal *models.Principal) error {
	args := []any{
		principal.PrincipalID,
		principal.Email,
		principal.PasswordHash,
		principal.FirstName,
		principal.LastName,
		principal.Phone,
		principal.Role,
		principal.IsActive,
		principal.CreatedAt,
		principal.UpdatedAt,
	}

	var query string
	if s.tables.tenantColumn != "" {
		query = fmt.Sprintf(`
			INSERT INTO %s (
				principal_id, email, password_hash, first_name, last_name,
				phone, role, is_active, created_at, updated_at, %s
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
			)
		`, s.tables.principals, s.tables.tenantColumn)
		args = append(args, principal.TenantID)
	} else {
		query = fmt.Sprintf(`
			INSERT INTO %s (
				principal_id, email, password_hash, first_name, last_name,
				phone, role, is_active, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
			)
		`, s.tables.principals)
	}

	_, err := tx.Exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrPrincipalAlreadyExists
		}
		return fmt.Errorf("failed to create principal: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("principal_id", principal.PrincipalID.String()).
		Str("kind", s.kind.String()).
		Msg("Created principal")

	return nil
}

// Get retrieves a principal by ID.
func (s *PrincipalStore) Get(ctx context.Context, principalID uuid.UUID) (*models.Principal, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE principal_id = $1`, s.selectColumns, s.tables.principals)

	p, err := s.scanPrincipal(s.pool.QueryRow(ctx, query, principalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}

	return p, nil
}

// GetByEmail retrieves a principal by exact email match.
func (s *PrincipalStore) GetByEmail(ctx context.Context, email string) (*models.Principal, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE email = $1`, s.selectColumns, s.tables.principals)

	p, err := s.scanPrincipal(s.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to get principal by email: %w", err)
	}

	return p, nil
}

// EmailExists reports whether any principal has this email.
func (s *PrincipalStore) EmailExists(ctx context.Context, email string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE email = $1)`, s.tables.principals)

	var exists bool
	if err := s.pool.QueryRow(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}

	return exists, nil
}

// SetActive activates or deactivates a principal.
func (s *PrincipalStore) SetActive(ctx context.Context, principalID uuid.UUID, active bool) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET is_active = $2, updated_at = $3
		WHERE principal_id = $1
	`, s.tables.principals)

	result, err := s.pool.Exec(ctx, query, principalID, active, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update principal: %w", err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrPrincipalNotFound
	}

	log.Info().
		Str("principal_id", principalID.String()).
		Str("kind", s.kind.String()).
		Bool("active", active).
		Msg("Updated principal status")

	return nil
}

func (s *PrincipalStore) scanPrincipal(row pgx.Row) (*models.Principal, error) {
	p := models.Principal{Kind: s.kind}
	err := row.Scan(
		&p.PrincipalID,
		&p.TenantID,
		&p.Email,
		&p.PasswordHash,
		&p.FirstName,
		&p.LastName,
		&p.Phone,
		&p.Role,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &p, nil
}
