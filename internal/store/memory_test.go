package store

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animetinder/auth/internal/models"
)

func TestMemoryStore(t *testing.T) {
	testStoreBehaviour(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestMemoryStoreCleanup(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	s := NewMemoryStore(
		WithClock(func() time.Time { return now }),
		WithRetention(10*time.Minute, 24*time.Hour),
	)

	stale := models.NewPendingAuthorization("stale", "v", "plain", t0)
	fresh := models.NewPendingAuthorization("fresh", "v", "plain", t0.Add(5*time.Minute))
	require.NoError(t, s.CreatePendingAuthorization(ctx, stale))
	require.NoError(t, s.CreatePendingAuthorization(ctx, fresh))

	userID := uuid.Must(uuid.NewV4())
	live := models.NewRefreshToken(userID, 30*24*time.Hour, t0, models.GrantParams{})
	revoked := models.NewRefreshToken(userID, 30*24*time.Hour, t0, models.GrantParams{})
	expired := models.NewRefreshToken(userID, time.Hour, t0, models.GrantParams{})
	for _, rt := range []*models.RefreshToken{live, revoked, expired} {
		require.NoError(t, s.CreateRefreshToken(ctx, rt))
	}
	require.NoError(t, s.RevokeRefreshToken(ctx, revoked.Token, t0))

	// expired but kept so a late callback still reads as expired
	now = t0.Add(12 * time.Minute)
	removed, err := s.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	now = t0.Add(21 * time.Minute)
	removed, err = s.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "only the stale pending authorization")

	now = t0.Add(26 * time.Hour)
	removed, err = s.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, removed, "fresh pending, revoked and expired tokens")

	pending, _, tokens := s.Stats()
	assert.Equal(t, 0, pending)
	assert.Equal(t, 1, tokens)

	_, err = s.LookupRefreshToken(ctx, live.Token, now)
	require.NoError(t, err)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	user, err := s.UpsertUser(ctx, models.ProviderIdentity{ProviderID: "1", Username: "ed"}, time.Now())
	require.NoError(t, err)
	user.Username = "mutated"

	found, err := s.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ed", found.Username)
}
