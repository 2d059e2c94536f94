package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents a company account. Operator principals always belong to
// exactly one tenant, created together with its first administrator.
type Tenant struct {
	TenantID  uuid.UUID `json:"id"` // UUIDv7
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
