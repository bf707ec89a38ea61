package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animetinder/auth/internal/models"
)

// testStoreBehaviour exercises the contract every Store implementation
// shares. newStore must return an empty store.
func testStoreBehaviour(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	t0 := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("pending authorization is consumed exactly once", func(t *testing.T) {
		s := newStore(t)
		p := models.NewPendingAuthorization(uuid.Must(uuid.NewV4()).String(), "verifier", "plain", t0)
		require.NoError(t, s.CreatePendingAuthorization(ctx, p))

		got, err := s.ConsumePendingAuthorization(ctx, p.State)
		require.NoError(t, err)
		assert.Equal(t, p.CodeVerifier, got.CodeVerifier)
		assert.Equal(t, p.State, got.State)
		assert.WithinDuration(t, p.CreatedAt, got.CreatedAt, time.Millisecond)

		_, err = s.ConsumePendingAuthorization(ctx, p.State)
		require.ErrorAs(t, err, &models.PendingAuthorizationNotFoundError{})
	})

	t.Run("unknown state is indistinguishable from consumed", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ConsumePendingAuthorization(ctx, "never-issued")
		require.ErrorAs(t, err, &models.PendingAuthorizationNotFoundError{})
		assert.True(t, models.IsNotFoundError(err))
	})

	t.Run("duplicate state conflicts", func(t *testing.T) {
		s := newStore(t)
		state := uuid.Must(uuid.NewV4()).String()
		require.NoError(t, s.CreatePendingAuthorization(ctx, models.NewPendingAuthorization(state, "a", "plain", t0)))
		err := s.CreatePendingAuthorization(ctx, models.NewPendingAuthorization(state, "b", "plain", t0))
		require.ErrorAs(t, err, &models.ConflictError{})

		got, err := s.ConsumePendingAuthorization(ctx, state)
		require.NoError(t, err)
		assert.Equal(t, "a", got.CodeVerifier)
	})

	t.Run("concurrent consumers race for one record", func(t *testing.T) {
		s := newStore(t)
		p := models.NewPendingAuthorization(uuid.Must(uuid.NewV4()).String(), "verifier", "plain", t0)
		require.NoError(t, s.CreatePendingAuthorization(ctx, p))

		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.ConsumePendingAuthorization(ctx, p.State); err == nil {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins)
	})

	t.Run("expired pending authorization is reported and gone", func(t *testing.T) {
		s := newStore(t)
		p := models.NewPendingAuthorization(uuid.Must(uuid.NewV4()).String(), "verifier", "plain", t0)
		require.NoError(t, s.CreatePendingAuthorization(ctx, p))

		_, err := ConsumeFreshPendingAuthorization(ctx, s, p.State, t0.Add(11*time.Minute), 10*time.Minute)
		require.ErrorAs(t, err, &models.ExpiredFlowError{})

		_, err = ConsumeFreshPendingAuthorization(ctx, s, p.State, t0.Add(11*time.Minute), 10*time.Minute)
		require.ErrorAs(t, err, &models.PendingAuthorizationNotFoundError{})
	})

	t.Run("cleanup keeps a just expired pending authorization", func(t *testing.T) {
		s := newStore(t)
		created := time.Now().UTC().Add(-11 * time.Minute)
		p := models.NewPendingAuthorization(uuid.Must(uuid.NewV4()).String(), "verifier", "plain", created)
		require.NoError(t, s.CreatePendingAuthorization(ctx, p))

		// sql cleanup runs one statement per call
		for i := 0; i < 3; i++ {
			_, err := s.Cleanup(ctx)
			require.NoError(t, err)
		}

		_, err := ConsumeFreshPendingAuthorization(ctx, s, p.State, time.Now(), 10*time.Minute)
		require.ErrorAs(t, err, &models.ExpiredFlowError{})
	})

	t.Run("fresh pending authorization within ttl", func(t *testing.T) {
		s := newStore(t)
		p := models.NewPendingAuthorization(uuid.Must(uuid.NewV4()).String(), "verifier", "plain", t0)
		require.NoError(t, s.CreatePendingAuthorization(ctx, p))

		got, err := ConsumeFreshPendingAuthorization(ctx, s, p.State, t0.Add(9*time.Minute), 10*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "verifier", got.CodeVerifier)
	})

	t.Run("upsert keeps one row per provider id", func(t *testing.T) {
		s := newStore(t)
		providerID := uuid.Must(uuid.NewV4()).String()

		first, err := s.UpsertUser(ctx, models.ProviderIdentity{ProviderID: providerID, Username: "faye", AccessToken: "at1"}, t0)
		require.NoError(t, err)
		assert.True(t, first.IsNewUser)

		second, err := s.UpsertUser(ctx, models.ProviderIdentity{ProviderID: providerID, Username: "faye_v", AvatarURL: "x.png", AccessToken: "at2"}, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "faye_v", second.Username)

		found, err := s.FindUserByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "faye_v", found.Username)
		assert.Equal(t, "x.png", found.AvatarURL)
		assert.Equal(t, "at2", found.ProviderAccessToken)
		assert.True(t, found.IsNewUser)
	})

	t.Run("unknown user", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FindUserByID(ctx, uuid.Must(uuid.NewV4()))
		require.ErrorAs(t, err, &models.UserNotFoundError{})
	})

	t.Run("refresh token lifecycle", func(t *testing.T) {
		s := newStore(t)
		user, err := s.UpsertUser(ctx, models.ProviderIdentity{ProviderID: uuid.Must(uuid.NewV4()).String(), Username: "jet"}, t0)
		require.NoError(t, err)

		rt := models.NewRefreshToken(user.ID, 30*24*time.Hour, t0, models.GrantParams{UserAgent: "ua"})
		require.NoError(t, s.CreateRefreshToken(ctx, rt))

		got, err := s.LookupRefreshToken(ctx, rt.Token, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.UserID)

		_, err = s.LookupRefreshToken(ctx, rt.Token, t0.Add(31*24*time.Hour))
		require.ErrorAs(t, err, &models.RefreshTokenNotFoundError{}, "expired")

		_, err = s.LookupRefreshToken(ctx, "never-issued", t0)
		require.ErrorAs(t, err, &models.RefreshTokenNotFoundError{}, "unknown")

		require.NoError(t, s.RevokeRefreshToken(ctx, rt.Token, t0))
		require.NoError(t, s.RevokeRefreshToken(ctx, rt.Token, t0), "revoke is idempotent")
		require.NoError(t, s.RevokeRefreshToken(ctx, "never-issued", t0))

		_, err = s.LookupRefreshToken(ctx, rt.Token, t0.Add(time.Hour))
		require.ErrorAs(t, err, &models.RefreshTokenNotFoundError{}, "revoked")
	})

	t.Run("tokens of one user are independent", func(t *testing.T) {
		s := newStore(t)
		user, err := s.UpsertUser(ctx, models.ProviderIdentity{ProviderID: uuid.Must(uuid.NewV4()).String()}, t0)
		require.NoError(t, err)

		a := models.NewRefreshToken(user.ID, time.Hour, t0, models.GrantParams{})
		b := models.NewRefreshToken(user.ID, time.Hour, t0, models.GrantParams{})
		require.NoError(t, s.CreateRefreshToken(ctx, a))
		require.NoError(t, s.CreateRefreshToken(ctx, b))

		require.NoError(t, s.RevokeRefreshToken(ctx, a.Token, t0))
		_, err = s.LookupRefreshToken(ctx, b.Token, t0)
		require.NoError(t, err)

		require.NoError(t, s.RevokeUserRefreshTokens(ctx, user.ID, t0))
		_, err = s.LookupRefreshToken(ctx, b.Token, t0)
		require.ErrorAs(t, err, &models.RefreshTokenNotFoundError{})
	})

	t.Run("transaction commits together", func(t *testing.T) {
		s := newStore(t)
		var rt *models.RefreshToken
		err := s.Transaction(ctx, func(tx Store) error {
			user, terr := tx.UpsertUser(ctx, models.ProviderIdentity{ProviderID: uuid.Must(uuid.NewV4()).String()}, t0)
			if terr != nil {
				return terr
			}
			rt = models.NewRefreshToken(user.ID, time.Hour, t0, models.GrantParams{})
			return tx.CreateRefreshToken(ctx, rt)
		})
		require.NoError(t, err)

		_, err = s.LookupRefreshToken(ctx, rt.Token, t0)
		require.NoError(t, err)
	})

	t.Run("transaction rolls back on error", func(t *testing.T) {
		s := newStore(t)
		boom := errors.New("boom")
		var userID uuid.UUID
		var rt *models.RefreshToken
		err := s.Transaction(ctx, func(tx Store) error {
			user, terr := tx.UpsertUser(ctx, models.ProviderIdentity{ProviderID: uuid.Must(uuid.NewV4()).String()}, t0)
			if terr != nil {
				return terr
			}
			userID = user.ID
			rt = models.NewRefreshToken(user.ID, time.Hour, t0, models.GrantParams{})
			if terr := tx.CreateRefreshToken(ctx, rt); terr != nil {
				return terr
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = s.FindUserByID(ctx, userID)
		require.ErrorAs(t, err, &models.UserNotFoundError{})
		_, err = s.LookupRefreshToken(ctx, rt.Token, t0)
		require.ErrorAs(t, err, &models.RefreshTokenNotFoundError{})
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, newStore(t).Ping(ctx))
	})
}
