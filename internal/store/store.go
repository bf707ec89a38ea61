// Package store persists pending authorizations, users and refresh tokens.
// The SQL implementation is used in production, the memory one in tests and
// local development. Pending authorizations can be moved to redis.
package store

import (
	"context"
	"time"

	"github.com/gofrs/uuid"

	"github.com/animetinder/auth/internal/models"
)

// PendingAuthorizationStore holds logins that are waiting on the provider.
type PendingAuthorizationStore interface {
	// CreatePendingAuthorization returns models.ConflictError when the state
	// is already pending.
	CreatePendingAuthorization(ctx context.Context, p *models.PendingAuthorization) error
	// ConsumePendingAuthorization atomically looks up and deletes the record
	// for state. Unknown and already consumed states both yield
	// models.PendingAuthorizationNotFoundError.
	ConsumePendingAuthorization(ctx context.Context, state string) (*models.PendingAuthorization, error)
}

type UserStore interface {
	UpsertUser(ctx context.Context, identity models.ProviderIdentity, now time.Time) (*models.User, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type RefreshTokenStore interface {
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	// LookupRefreshToken only returns tokens that are usable at now.
	// Everything else is models.RefreshTokenNotFoundError.
	LookupRefreshToken(ctx context.Context, token string, now time.Time) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, token string, now time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID uuid.UUID, now time.Time) error
}

// Store is the full persistence surface of the service.
type Store interface {
	PendingAuthorizationStore
	UserStore
	RefreshTokenStore

	// Transaction runs fn against a Store whose writes are committed
	// together when fn returns nil and discarded otherwise.
	Transaction(ctx context.Context, fn func(tx Store) error) error
	// Cleanup removes a batch of stale rows and reports how many went.
	Cleanup(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

// ConsumeFreshPendingAuthorization consumes the pending authorization for
// state and rejects it with models.ExpiredFlowError when it is older than
// ttl. An expired record is deleted all the same.
func ConsumeFreshPendingAuthorization(ctx context.Context, s PendingAuthorizationStore, state string, now time.Time, ttl time.Duration) (*models.PendingAuthorization, error) {
	p, err := s.ConsumePendingAuthorization(ctx, state)
	if err != nil {
		return nil, err
	}
	if p.IsExpired(now, ttl) {
		return nil, models.ExpiredFlowError{}
	}
	return p, nil
}

// WithPendingAuthorizations returns base with its pending authorizations
// served by pending instead.
func WithPendingAuthorizations(base Store, pending PendingAuthorizationStore) Store {
	return &pendingOverride{Store: base, pending: pending}
}

type pendingOverride struct {
	Store
	pending PendingAuthorizationStore
}

func (p *pendingOverride) CreatePendingAuthorization(ctx context.Context, pa *models.PendingAuthorization) error {
	return p.pending.CreatePendingAuthorization(ctx, pa)
}

func (p *pendingOverride) ConsumePendingAuthorization(ctx context.Context, state string) (*models.PendingAuthorization, error) {
	return p.pending.ConsumePendingAuthorization(ctx, state)
}

func (p *pendingOverride) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return p.Store.Transaction(ctx, func(tx Store) error {
		return fn(&pendingOverride{Store: tx, pending: p.pending})
	})
}

func (p *pendingOverride) Ping(ctx context.Context) error {
	if err := p.Store.Ping(ctx); err != nil {
		return err
	}
	if pinger, ok := p.pending.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}
