package memory

import (
	"context"
	"sync"

	"github.com/cernio/cernio/internal/models"
	"github.com/cernio/cernio/internal/store"
	"github.com/google/uuid"
)

var _ store.TenantStore = (*TenantStore)(nil)

// TenantStore implements store.TenantStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type TenantStore struct {
	mu sync.RWMutex

	tenants map[uuid.UUID]*models.Tenant // tenant_id -> Tenant
}

// NewTenantStore creates a new in-memory tenant store.
func NewTenantStore() *TenantStore {
	return &TenantStore{
		tenants: make(map[uuid.UUID]*models.Tenant),
	}
}

// Get retrieves a tenant by ID.
func (s *TenantStore) Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenant, exists := s.tenants[tenantID]
	if !exists {
		return nil, store.ErrTenantNotFound
	}

	// Clone to avoid external modifications
	clone := *tenant
	return &clone, nil
}

// create inserts a tenant. Only PrincipalStore.Register creates tenants.
func (s *TenantStore) create(tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[tenant.TenantID]; exists {
		return store.ErrTenantAlreadyExists
	}

	clone := *tenant
	s.tenants[tenant.TenantID] = &clone

	return nil
}

// remove undoes create when the rest of a registration fails.
func (s *TenantStore) remove(tenantID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tenants, tenantID)
}
