//go:build integration

package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedisContainer(t *testing.T, ctx context.Context) string {
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

func TestRedisLimiter_Integration(t *testing.T) {
	ctx := context.Background()
	url := setupRedisContainer(t, ctx)

	l, err := NewRedisLimiter(ctx, url, 2, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	for range 2 {
		allowed, err := l.Allow(ctx, "192.0.2.1|/api/v1/auth/login")
		require.NoError(t, err)
		require.True(t, allowed)
	}

	allowed, err := l.Allow(ctx, "192.0.2.1|/api/v1/auth/login")
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, err = l.Allow(ctx, "192.0.2.2|/api/v1/auth/login")
	require.NoError(t, err)
	require.True(t, allowed)

	// The window expires with the key
	require.Eventually(t, func() bool {
		allowed, err := l.Allow(ctx, "192.0.2.1|/api/v1/auth/login")
		return err == nil && allowed
	}, 5*time.Second, 250*time.Millisecond)
}

func TestNewRedisLimiter_BadURL(t *testing.T) {
	_, err := NewRedisLimiter(context.Background(), "not a url", 1, time.Second)
	require.Error(t, err)
}
