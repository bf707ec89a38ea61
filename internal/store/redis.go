package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/animetinder/auth/internal/conf"
	"github.com/animetinder/auth/internal/models"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// RedisPendingAuthorizationStore keeps pending authorizations in redis,
// letting several instances share in-flight logins without a database
// round trip.
type RedisPendingAuthorizationStore struct {
	client    redis.UniversalClient
	keyPrefix string
	keyTTL    time.Duration
}

// storedPendingAuthorization is the JSON form of a pending authorization.
type storedPendingAuthorization struct {
	ID                  string    `json:"id"`
	CodeVerifier        string    `json:"code_verifier"`
	CodeChallengeMethod string    `json:"code_challenge_method"`
	CreatedAt           time.Time `json:"created_at"`
}

// NewRedisPendingAuthorizationStore connects to the configured redis.
func NewRedisPendingAuthorizationStore(ctx context.Context, config *conf.GlobalConfiguration) (*RedisPendingAuthorizationStore, error) {
	opts, err := redis.ParseURL(config.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		// Close the client to prevent resource leak
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisPendingAuthorizationStoreWithClient(client, config.Redis.KeyPrefix, config.Sessions.FlowStateTTL), nil
}

// NewRedisPendingAuthorizationStoreWithClient uses a pre-configured client.
// This is useful for testing with miniredis.
func NewRedisPendingAuthorizationStoreWithClient(client redis.UniversalClient, keyPrefix string, flowStateTTL time.Duration) *RedisPendingAuthorizationStore {
	return &RedisPendingAuthorizationStore{
		client:    client,
		keyPrefix: keyPrefix,
		keyTTL:    flowStateTTL * models.PendingAuthorizationRetentionFactor,
	}
}

func (s *RedisPendingAuthorizationStore) key(state string) string {
	return s.keyPrefix + state
}

func (s *RedisPendingAuthorizationStore) CreatePendingAuthorization(ctx context.Context, p *models.PendingAuthorization) error {
	data, err := json.Marshal(storedPendingAuthorization{
		ID:                  p.ID.String(),
		CodeVerifier:        p.CodeVerifier,
		CodeChallengeMethod: p.CodeChallengeMethod,
		CreatedAt:           p.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal pending authorization: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(p.State), data, s.keyTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to store pending authorization: %w", err)
	}
	if !ok {
		return models.ConflictError{Resource: "pending authorization"}
	}
	return nil
}

func (s *RedisPendingAuthorizationStore) ConsumePendingAuthorization(ctx context.Context, state string) (*models.PendingAuthorization, error) {
	data, err := s.client.GetDel(ctx, s.key(state)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.PendingAuthorizationNotFoundError{}
		}
		return nil, fmt.Errorf("failed to consume pending authorization: %w", err)
	}

	var stored storedPendingAuthorization
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending authorization: %w", err)
	}
	id, err := uuid.FromString(stored.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pending authorization id: %w", err)
	}

	return &models.PendingAuthorization{
		ID:                  id,
		State:               state,
		CodeVerifier:        stored.CodeVerifier,
		CodeChallengeMethod: stored.CodeChallengeMethod,
		CreatedAt:           stored.CreatedAt,
	}, nil
}

func (s *RedisPendingAuthorizationStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisPendingAuthorizationStore) Close() error {
	return s.client.Close()
}

var _ PendingAuthorizationStore = (*RedisPendingAuthorizationStore)(nil)
