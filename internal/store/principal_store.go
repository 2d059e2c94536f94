package store

import (
	"context"
	"errors"

	"github.com/cernio/cernio/internal/models"
	"github.com/google/uuid"
)

// Errors
var (
	ErrPrincipalNotFound      = errors.New("principal not found")
	ErrPrincipalAlreadyExists = errors.New("principal already exists")
)

// PrincipalStore manages the principals of a single kind.
type PrincipalStore interface {
	// Kind returns the principal kind served by this store.
	Kind() models.Kind

	// Register creates the principal, and the tenant when one is given, as a single
	// atomic unit. Either both rows persist or neither does.
	// Returns ErrPrincipalAlreadyExists if the email or ID is already taken.
	Register(ctx context.Context, principal *models.Principal, tenant *models.Tenant) error

	// Get retrieves a principal by ID.
	// Returns ErrPrincipalNotFound if the principal doesn't exist.
	Get(ctx context.Context, principalID uuid.UUID) (*models.Principal, error)

	// GetByEmail retrieves a principal by exact email match.
	// Returns ErrPrincipalNotFound if no principal has this email.
	GetByEmail(ctx context.Context, email string) (*models.Principal, error)

	// EmailExists reports whether any principal has this email.
	EmailExists(ctx context.Context, email string) (bool, error)

	// SetActive activates or deactivates a principal.
	// Returns ErrPrincipalNotFound if the principal doesn't exist.
	SetActive(ctx context.Context, principalID uuid.UUID, active bool) error
}
