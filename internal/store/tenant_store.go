package store

import (
	"context"
	"errors"

	"github.com/cernio/cernio/internal/models"
	"github.com/google/uuid"
)

// Sentinel errors for tenant store operations
var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrTenantAlreadyExists = errors.New("tenant already exists")
)

// TenantStore defines read access to tenants (companies).
// Tenants are only created through PrincipalStore.Register so that a tenant
// never exists without its first administrator.
type TenantStore interface {
	// Get retrieves a tenant by ID.
	// Returns ErrTenantNotFound if the tenant doesn't exist.
	Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error)
}
