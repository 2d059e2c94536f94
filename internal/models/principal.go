package models

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies which population of principals an identity belongs to.
// Operators and marketplace customers live in separate tables and never share
// tokens or sessions.
type Kind string

const (
	KindOperator    Kind = "operator"    // Company users, scoped to a tenant
	KindMarketplace Kind = "marketplace" // Self-service marketplace customers
)

// RequiresTenant reports whether principals of this kind must belong to a tenant.
func (k Kind) RequiresTenant() bool {
	return k == KindOperator
}

func (k Kind) String() string {
	return string(k)
}

// Operator roles. Registration always assigns RoleCompanyAdmin; the other
// roles are granted by company administrators.
const (
	RoleSystemAdmin    = "system_admin"
	RoleCompanyAdmin   = "company_admin"
	RoleProjectManager = "project_manager"
	RoleFieldWorker    = "field_worker"
	RoleAccountant     = "accountant"
)

// Principal represents an identity that can authenticate with an email and password.
type Principal struct {
	PrincipalID uuid.UUID  `json:"id"` // UUIDv7
	Kind        Kind       `json:"-"`
	TenantID    *uuid.UUID `json:"companyId,omitempty"` // Set for operators only

	Email        string  `json:"email"`
	PasswordHash string  `json:"-"`
	FirstName    string  `json:"firstName"`
	LastName     string  `json:"lastName"`
	Phone        *string `json:"phone,omitempty"`
	Role         string  `json:"role,omitempty"`
	IsActive     bool    `json:"isActive"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Populated on read for operators
	Tenant *Tenant `json:"company,omitempty"`
}

