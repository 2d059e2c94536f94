package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cernio/cernio/internal/models"
	"github.com/cernio/cernio/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, principalID uuid.UUID, token string, ttl time.Duration) *models.Session {
	t.Helper()

	sessionID, err := uuid.NewV7()
	require.NoError(t, err)

	now := time.Now()
	return &models.Session{
		SessionID:    sessionID,
		PrincipalID:  principalID,
		RefreshToken: token,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
}

func TestSessionStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	st := NewSessionStore()
	principalID := uuid.New()

	session := newTestSession(t, principalID, "token-1", time.Hour)
	require.NoError(t, st.Create(ctx, session))

	got, err := st.GetByToken(ctx, "token-1")
	require.NoError(t, err)
	require.Equal(t, session.SessionID, got.SessionID)

	err = st.Create(ctx, session)
	require.ErrorIs(t, err, store.ErrSessionAlreadyExists)

	_, err = st.GetByToken(ctx, "missing")
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestSessionStore_Consume(t *testing.T) {
	ctx := context.Background()

	t.Run("consume is single use", func(t *testing.T) {
		st := NewSessionStore()
		require.NoError(t, st.Create(ctx, newTestSession(t, uuid.New(), "token-1", time.Hour)))

		got, err := st.Consume(ctx, "token-1")
		require.NoError(t, err)
		require.Equal(t, "token-1", got.RefreshToken)

		_, err = st.Consume(ctx, "token-1")
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("concurrent consumers have one winner", func(t *testing.T) {
		st := NewSessionStore()
		require.NoError(t, st.Create(ctx, newTestSession(t, uuid.New(), "token-1", time.Hour)))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := st.Consume(ctx, "token-1"); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		require.Equal(t, int32(1), wins.Load())
	})

	t.Run("expired session is still returned", func(t *testing.T) {
		st := NewSessionStore()
		require.NoError(t, st.Create(ctx, newTestSession(t, uuid.New(), "token-1", -time.Second)))

		got, err := st.Consume(ctx, "token-1")
		require.NoError(t, err)
		require.True(t, got.IsExpired())
	})
}

func TestSessionStore_Delete(t *testing.T) {
	ctx := context.Background()
	principalID := uuid.New()
	otherID := uuid.New()

	st := NewSessionStore()
	require.NoError(t, st.Create(ctx, newTestSession(t, principalID, "token-1", time.Hour)))
	require.NoError(t, st.Create(ctx, newTestSession(t, principalID, "token-2", time.Hour)))
	require.NoError(t, st.Create(ctx, newTestSession(t, otherID, "token-3", -time.Minute)))
	require.NoError(t, st.Create(ctx, newTestSession(t, otherID, "token-4", time.Hour)))

	t.Run("by token is idempotent", func(t *testing.T) {
		count, err := st.DeleteByToken(ctx, "token-1")
		require.NoError(t, err)
		require.Equal(t, 1, count)

		count, err = st.DeleteByToken(ctx, "token-1")
		require.NoError(t, err)
		require.Equal(t, 0, count)
	})

	t.Run("expired", func(t *testing.T) {
		count, err := st.DeleteExpired(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, count)

		_, err = st.GetByToken(ctx, "token-3")
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("by principal", func(t *testing.T) {
		count, err := st.DeleteByPrincipal(ctx, otherID)
		require.NoError(t, err)
		require.Equal(t, 1, count)

		_, err = st.GetByToken(ctx, "token-4")
		require.ErrorIs(t, err, store.ErrSessionNotFound)

		_, err = st.GetByToken(ctx, "token-2")
		require.NoError(t, err)
	})
}
