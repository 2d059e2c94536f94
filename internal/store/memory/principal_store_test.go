package memory

import (
	"context"
	"testing"
	"time"

	"github.com/cernio/cernio/internal/models"
	"github.com/cernio/cernio/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestOperator(t *testing.T, email string) (*models.Principal, *models.Tenant) {
	t.Helper()
	now := time.Now()

	tenantID, err := uuid.NewV7()
	require.NoError(t, err)
	principalID, err := uuid.NewV7()
	require.NoError(t, err)

	tenant := &models.Tenant{
		TenantID:  tenantID,
		Name:      "Acme Demolition",
		CreatedAt: now,
		UpdatedAt: now,
	}
	principal := &models.Principal{
		PrincipalID:  principalID,
		Kind:         models.KindOperator,
		TenantID:     &tenantID,
		Email:        email,
		PasswordHash: "hash",
		FirstName:    "Jo",
		LastName:     "Doe",
		Role:         models.RoleCompanyAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return principal, tenant
}

func TestPrincipalStore_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("creates tenant and principal", func(t *testing.T) {
		tenants := NewTenantStore()
		st := NewPrincipalStore(models.KindOperator, tenants)

		principal, tenant := newTestOperator(t, "jo@acme.test")
		require.NoError(t, st.Register(ctx, principal, tenant))

		got, err := st.Get(ctx, principal.PrincipalID)
		require.NoError(t, err)
		require.Equal(t, "jo@acme.test", got.Email)
		require.Equal(t, tenant.TenantID, *got.TenantID)

		gotTenant, err := tenants.Get(ctx, tenant.TenantID)
		require.NoError(t, err)
		require.Equal(t, "Acme Demolition", gotTenant.Name)
	})

	t.Run("duplicate email leaves no tenant behind", func(t *testing.T) {
		tenants := NewTenantStore()
		st := NewPrincipalStore(models.KindOperator, tenants)

		first, firstTenant := newTestOperator(t, "jo@acme.test")
		require.NoError(t, st.Register(ctx, first, firstTenant))

		second, secondTenant := newTestOperator(t, "jo@acme.test")
		err := st.Register(ctx, second, secondTenant)
		require.ErrorIs(t, err, store.ErrPrincipalAlreadyExists)

		_, err = tenants.Get(ctx, secondTenant.TenantID)
		require.ErrorIs(t, err, store.ErrTenantNotFound)
	})

	t.Run("duplicate principal id leaves no tenant behind", func(t *testing.T) {
		tenants := NewTenantStore()
		st := NewPrincipalStore(models.KindOperator, tenants)

		first, firstTenant := newTestOperator(t, "jo@acme.test")
		require.NoError(t, st.Register(ctx, first, firstTenant))

		second, secondTenant := newTestOperator(t, "other@acme.test")
		second.PrincipalID = first.PrincipalID
		err := st.Register(ctx, second, secondTenant)
		require.ErrorIs(t, err, store.ErrPrincipalAlreadyExists)

		_, err = tenants.Get(ctx, secondTenant.TenantID)
		require.ErrorIs(t, err, store.ErrTenantNotFound)

		exists, err := st.EmailExists(ctx, "other@acme.test")
		require.NoError(t, err)
		require.False(t, exists)
	})

	t.Run("rejects principal of another kind", func(t *testing.T) {
		st := NewPrincipalStore(models.KindMarketplace, nil)

		principal, _ := newTestOperator(t, "jo@acme.test")
		err := st.Register(ctx, principal, nil)
		require.Error(t, err)
	})

	t.Run("rejects tenant for marketplace store", func(t *testing.T) {
		st := NewPrincipalStore(models.KindMarketplace, nil)

		principal, tenant := newTestOperator(t, "jo@acme.test")
		principal.Kind = models.KindMarketplace
		err := st.Register(ctx, principal, tenant)
		require.Error(t, err)

		exists, err := st.EmailExists(ctx, "jo@acme.test")
		require.NoError(t, err)
		require.False(t, exists)
	})
}

func TestPrincipalStore_Lookup(t *testing.T) {
	ctx := context.Background()
	st := NewPrincipalStore(models.KindOperator, NewTenantStore())

	principal, tenant := newTestOperator(t, "jo@acme.test")
	require.NoError(t, st.Register(ctx, principal, tenant))

	t.Run("by email is case sensitive", func(t *testing.T) {
		got, err := st.GetByEmail(ctx, "jo@acme.test")
		require.NoError(t, err)
		require.Equal(t, principal.PrincipalID, got.PrincipalID)

		_, err = st.GetByEmail(ctx, "JO@acme.test")
		require.ErrorIs(t, err, store.ErrPrincipalNotFound)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := st.Get(ctx, uuid.New())
		require.ErrorIs(t, err, store.ErrPrincipalNotFound)
	})

	t.Run("returned principal is a copy", func(t *testing.T) {
		got, err := st.Get(ctx, principal.PrincipalID)
		require.NoError(t, err)
		got.Email = "changed@acme.test"

		again, err := st.Get(ctx, principal.PrincipalID)
		require.NoError(t, err)
		require.Equal(t, "jo@acme.test", again.Email)
	})
}

func TestPrincipalStore_SetActive(t *testing.T) {
	ctx := context.Background()
	st := NewPrincipalStore(models.KindOperator, NewTenantStore())

	principal, tenant := newTestOperator(t, "jo@acme.test")
	require.NoError(t, st.Register(ctx, principal, tenant))

	require.NoError(t, st.SetActive(ctx, principal.PrincipalID, false))

	got, err := st.Get(ctx, principal.PrincipalID)
	require.NoError(t, err)
	require.False(t, got.IsActive)

	err = st.SetActive(ctx, uuid.New(), true)
	require.ErrorIs(t, err, store.ErrPrincipalNotFound)
}
