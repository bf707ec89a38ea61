package models

import (
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animetinder/auth/internal/conf"
)

func TestPendingAuthorizationIsExpired(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewPendingAuthorization("state", "verifier", "plain", t0)
	ttl := 10 * time.Minute

	assert.False(t, p.IsExpired(t0, ttl))
	assert.False(t, p.IsExpired(t0.Add(9*time.Minute), ttl))
	assert.False(t, p.IsExpired(t0.Add(ttl), ttl))
	assert.True(t, p.IsExpired(t0.Add(11*time.Minute), ttl))
}

func TestRefreshTokenIsUsable(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rt := NewRefreshToken(uuid.Must(uuid.NewV4()), 30*24*time.Hour, now, GrantParams{UserAgent: "test", IP: "127.0.0.1"})

	require.Len(t, rt.Token, 43)
	assert.Equal(t, now.Add(30*24*time.Hour), rt.ExpiresAt)
	assert.Equal(t, "test", rt.UserAgent)

	assert.True(t, rt.IsUsable(now))
	assert.True(t, rt.IsUsable(now.Add(29*24*time.Hour)))
	assert.False(t, rt.IsUsable(rt.ExpiresAt))
	assert.False(t, rt.IsUsable(now.Add(31*24*time.Hour)))

	rt.Revoked = true
	assert.False(t, rt.IsUsable(now))
}

func TestNewRefreshTokenUnique(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	now := time.Now()
	a := NewRefreshToken(userID, time.Hour, now, GrantParams{})
	b := NewRefreshToken(userID, time.Hour, now, GrantParams{})
	assert.NotEqual(t, a.Token, b.Token)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestUserApplyIdentity(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	u := NewUser(ProviderIdentity{ProviderID: "42", Username: "spike", AvatarURL: "a.png", AccessToken: "at1"}, t0)

	assert.True(t, u.IsNewUser)
	assert.Equal(t, "spike", u.Username)
	id := u.ID

	u.IsNewUser = false
	u.ApplyIdentity(ProviderIdentity{ProviderID: "42", Username: "", AvatarURL: "b.png", AccessToken: "at2"}, t0.Add(time.Hour))
	assert.Equal(t, id, u.ID)
	assert.False(t, u.IsNewUser)
	assert.Equal(t, "42", u.Username, "falls back to the provider id")
	assert.Equal(t, "b.png", u.AvatarURL)
	assert.Equal(t, "at2", u.ProviderAccessToken)
	assert.Equal(t, t0.Add(time.Hour), u.UpdatedAt)
}

func TestIsNotFoundError(t *testing.T) {
	assert.True(t, IsNotFoundError(UserNotFoundError{}))
	assert.True(t, IsNotFoundError(&RefreshTokenNotFoundError{}))
	assert.True(t, IsNotFoundError(PendingAuthorizationNotFoundError{}))
	assert.False(t, IsNotFoundError(ExpiredFlowError{}))
	assert.False(t, IsNotFoundError(ConflictError{Resource: "user"}))
}

func TestCleanupKeepsExpiredPendingAuthorizations(t *testing.T) {
	config := &conf.GlobalConfiguration{}
	config.Sessions.FlowStateTTL = 10 * time.Minute
	config.Sessions.RefreshTokenRetention = 24 * time.Hour

	statements := NewCleanup(config).Statements()
	require.Len(t, statements, 3)
	assert.Contains(t, statements[0], `"pending_authorizations"`)
	assert.Contains(t, statements[0], "interval '1200 seconds'")
}
