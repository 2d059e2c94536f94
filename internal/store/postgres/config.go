package postgres

import (
	"fmt"

	"github.com/cernio/cernio/internal/models"
)

// tables names the relations backing one principal kind.
type tables struct {
	principals string
	sessions   string

	// tenantColumn is empty for kinds without a tenant.
	tenantColumn string
}

func tablesFor(kind models.Kind) (tables, error) {
	switch kind {
	case models.KindOperator:
		return tables{principals: "users", sessions: "sessions", tenantColumn: "company_id"}, nil
	case models.KindMarketplace:
		return tables{principals: "marketplace_users", sessions: "marketplace_sessions"}, nil
	default:
		return tables{}, fmt.Errorf("unknown principal kind %q", kind)
	}
}
