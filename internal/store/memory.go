package store

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid"

	"github.com/animetinder/auth/internal/models"
)

// MemoryStore implements Store with in-memory maps. It is safe for
// concurrent use but loses everything on restart, so it is meant for tests
// and local development.
type MemoryStore struct {
	mu sync.RWMutex

	// txMu serializes transactions. A transaction that fails restores the
	// snapshot taken when it began.
	txMu sync.Mutex

	pending         map[string]*models.PendingAuthorization
	users           map[uuid.UUID]*models.User
	usersByProvider map[string]uuid.UUID
	refreshTokens   map[string]*models.RefreshToken

	flowStateTTL time.Duration
	retention    time.Duration
	now          func() time.Time
}

// MemoryStoreOption configures a MemoryStore instance.
type MemoryStoreOption func(*MemoryStore)

// WithClock sets the time source used by Cleanup.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// WithRetention sets the flow ttl and how long dead refresh tokens survive
// before Cleanup removes them. Pending authorizations are kept for
// models.PendingAuthorizationRetentionFactor flow ttls.
func WithRetention(flowStateTTL, refreshTokenRetention time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.flowStateTTL = flowStateTTL
		s.retention = refreshTokenRetention
	}
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		pending:         make(map[string]*models.PendingAuthorization),
		users:           make(map[uuid.UUID]*models.User),
		usersByProvider: make(map[string]uuid.UUID),
		refreshTokens:   make(map[string]*models.RefreshToken),
		flowStateTTL:    10 * time.Minute,
		retention:       30 * 24 * time.Hour,
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *MemoryStore) CreatePendingAuthorization(_ context.Context, p *models.PendingAuthorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[p.State]; ok {
		return models.ConflictError{Resource: "pending authorization"}
	}
	cp := *p
	s.pending[p.State] = &cp
	return nil
}

func (s *MemoryStore) ConsumePendingAuthorization(_ context.Context, state string) (*models.PendingAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[state]
	if !ok {
		return nil, models.PendingAuthorizationNotFoundError{}
	}
	delete(s.pending, state)
	return p, nil
}

func (s *MemoryStore) UpsertUser(_ context.Context, identity models.ProviderIdentity, now time.Time) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.usersByProvider[identity.ProviderID]; ok {
		user := s.users[id]
		user.ApplyIdentity(identity, now)
		cp := *user
		return &cp, nil
	}

	user := models.NewUser(identity, now)
	s.users[user.ID] = user
	s.usersByProvider[user.ProviderID] = user.ID
	cp := *user
	return &cp, nil
}

func (s *MemoryStore) FindUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, models.UserNotFoundError{}
	}
	cp := *user
	return &cp, nil
}

func (s *MemoryStore) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refreshTokens[token.Token]; ok {
		return models.ConflictError{Resource: "refresh token"}
	}
	cp := *token
	s.refreshTokens[token.Token] = &cp
	return nil
}

func (s *MemoryStore) LookupRefreshToken(_ context.Context, token string, now time.Time) (*models.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rt, ok := s.refreshTokens[token]
	if !ok || !rt.IsUsable(now) {
		return nil, models.RefreshTokenNotFoundError{}
	}
	cp := *rt
	return &cp, nil
}

func (s *MemoryStore) RevokeRefreshToken(_ context.Context, token string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rt, ok := s.refreshTokens[token]; ok && !rt.Revoked {
		rt.Revoked = true
		rt.UpdatedAt = now.UTC()
	}
	return nil
}

func (s *MemoryStore) RevokeUserRefreshTokens(_ context.Context, userID uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rt := range s.refreshTokens {
		if rt.UserID == userID && !rt.Revoked {
			rt.Revoked = true
			rt.UpdatedAt = now.UTC()
		}
	}
	return nil
}

// Transaction runs fn with exclusive use of the transaction lock. Writes made
// outside any transaction while fn runs are lost if fn fails.
func (s *MemoryStore) Transaction(_ context.Context, fn func(tx Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(&memoryTx{s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *MemoryStore) Cleanup(_ context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for state, p := range s.pending {
		if p.IsExpired(now, s.flowStateTTL*models.PendingAuthorizationRetentionFactor) {
			delete(s.pending, state)
			removed++
		}
	}

	horizon := now.Add(-s.retention)
	for token, rt := range s.refreshTokens {
		if (rt.Revoked && rt.UpdatedAt.Before(horizon)) || rt.ExpiresAt.Before(horizon) {
			delete(s.refreshTokens, token)
			removed++
		}
	}

	return removed, nil
}

func (*MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Stats reports the number of stored records, for tests.
func (s *MemoryStore) Stats() (pending, users, refreshTokens int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending), len(s.users), len(s.refreshTokens)
}

type memorySnapshot struct {
	pending         map[string]*models.PendingAuthorization
	users           map[uuid.UUID]*models.User
	usersByProvider map[string]uuid.UUID
	refreshTokens   map[string]*models.RefreshToken
}

func (s *MemoryStore) snapshot() *memorySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &memorySnapshot{
		pending:         make(map[string]*models.PendingAuthorization, len(s.pending)),
		users:           make(map[uuid.UUID]*models.User, len(s.users)),
		usersByProvider: make(map[string]uuid.UUID, len(s.usersByProvider)),
		refreshTokens:   make(map[string]*models.RefreshToken, len(s.refreshTokens)),
	}
	for k, v := range s.pending {
		cp := *v
		snap.pending[k] = &cp
	}
	for k, v := range s.users {
		cp := *v
		snap.users[k] = &cp
	}
	for k, v := range s.usersByProvider {
		snap.usersByProvider[k] = v
	}
	for k, v := range s.refreshTokens {
		cp := *v
		snap.refreshTokens[k] = &cp
	}
	return snap
}

func (s *MemoryStore) restore(snap *memorySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = snap.pending
	s.users = snap.users
	s.usersByProvider = snap.usersByProvider
	s.refreshTokens = snap.refreshTokens
}

// memoryTx is the Store handed to a transaction body. Nested transactions
// join the outer one.
type memoryTx struct {
	*MemoryStore
}

func (t *memoryTx) Transaction(_ context.Context, fn func(tx Store) error) error {
	return fn(t)
}

var _ Store = (*MemoryStore)(nil)
