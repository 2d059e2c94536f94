package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cernio/cernio/internal/models"
	"github.com/cernio/cernio/internal/store"
	"github.com/google/uuid"
)

var _ store.PrincipalStore = (*PrincipalStore)(nil)

// PrincipalStore implements store.PrincipalStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type PrincipalStore struct {
	mu sync.RWMutex

	kind    models.Kind
	tenants *TenantStore

	principals map[uuid.UUID]*models.Principal // principal_id -> Principal
	byEmail    map[string]uuid.UUID            // email -> principal_id
}

// NewPrincipalStore creates a new in-memory principal store for the given kind.
// tenants is required for kinds that register a tenant with the first principal.
func NewPrincipalStore(kind models.Kind, tenants *TenantStore) *PrincipalStore {
	return &PrincipalStore{
		kind:       kind,
		tenants:    tenants,
		principals: make(map[uuid.UUID]*models.Principal),
		byEmail:    make(map[string]uuid.UUID),
	}
}

// Kind returns the principal kind served by this store.
func (s *PrincipalStore) Kind() models.Kind {
	return s.kind
}

// Register creates the tenant (if any) and the principal. If the principal cannot
// be inserted the tenant is removed again, so neither row survives a failure.
func (s *PrincipalStore) Register(ctx context.Context, principal *models.Principal, tenant *models.Tenant) error {
	if principal.Kind != s.kind {
		return fmt.Errorf("principal kind %q does not match store kind %q", principal.Kind, s.kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tenant != nil {
		if s.tenants == nil {
			return fmt.Errorf("%s principals cannot own a tenant", s.kind)
		}
		if err := s.tenants.create(tenant); err != nil {
			return err
		}
	}

	if err := s.insert(principal); err != nil {
		if tenant != nil {
			s.tenants.remove(tenant.TenantID)
		}
		return err
	}

	return nil
}

// insert must be called with s.mu held.
func (s *PrincipalStore) insert(principal *models.Principal) error {
	if _, exists := s.principals[principal.PrincipalID]; exists {
		return store.ErrPrincipalAlreadyExists
	}
	if _, exists := s.byEmail[principal.Email]; exists {
		return store.ErrPrincipalAlreadyExists
	}

	// Clone to avoid external modifications
	clone := *principal
	clone.Tenant = nil
	s.principals[clone.PrincipalID] = &clone
	s.byEmail[clone.Email] = clone.PrincipalID

	return nil
}

// Get retrieves a principal by ID.
func (s *PrincipalStore) Get(ctx context.Context, principalID uuid.UUID) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	principal, exists := s.principals[principalID]
	if !exists {
		return nil, store.ErrPrincipalNotFound
	}

	// Clone to avoid external modifications
	clone := *principal
	return &clone, nil
}

// GetByEmail retrieves a principal by exact email match.
func (s *PrincipalStore) GetByEmail(ctx context.Context, email string) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	principalID, exists := s.byEmail[email]
	if !exists {
		return nil, store.ErrPrincipalNotFound
	}

	clone := *s.principals[principalID]
	return &clone, nil
}

// EmailExists reports whether any principal has this email.
func (s *PrincipalStore) EmailExists(ctx context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.byEmail[email]
	return exists, nil
}

// SetActive activates or deactivates a principal.
func (s *PrincipalStore) SetActive(ctx context.Context, principalID uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	principal, exists := s.principals[principalID]
	if !exists {
		return store.ErrPrincipalNotFound
	}

	principal.IsActive = active
	principal.UpdatedAt = time.Now()

	return nil
}
