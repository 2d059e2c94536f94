package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetMetrics(t *testing.T) {
	m := GetMetrics()
	require.NotNil(t, m)
	require.NotNil(t, m.AuthOperationsTotal)
	require.NotNil(t, m.SessionsIssuedTotal)
	require.NotNil(t, m.SessionsRevokedTotal)
	require.NotNil(t, m.RateLimitedTotal)

	// Singleton
	require.Same(t, m, GetMetrics())
}
