package store

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"

	"github.com/animetinder/auth/internal/models"
	"github.com/animetinder/auth/internal/storage"
)

// SQLStore keeps everything in the relational database through pop.
type SQLStore struct {
	db      *storage.Connection
	cleanup *models.Cleanup
}

func NewSQLStore(db *storage.Connection, cleanup *models.Cleanup) *SQLStore {
	return &SQLStore{db: db, cleanup: cleanup}
}

func (s *SQLStore) conn(ctx context.Context) *storage.Connection {
	return s.db.WithContext(ctx)
}

func (s *SQLStore) CreatePendingAuthorization(ctx context.Context, p *models.PendingAuthorization) error {
	return models.CreatePendingAuthorization(s.conn(ctx), p)
}

func (s *SQLStore) ConsumePendingAuthorization(ctx context.Context, state string) (*models.PendingAuthorization, error) {
	var p *models.PendingAuthorization
	err := s.conn(ctx).Transaction(func(tx *storage.Connection) error {
		var terr error
		p, terr = models.ConsumePendingAuthorization(tx, state)
		return terr
	})
	return p, err
}

func (s *SQLStore) UpsertUser(ctx context.Context, identity models.ProviderIdentity, now time.Time) (*models.User, error) {
	var user *models.User
	err := s.conn(ctx).Transaction(func(tx *storage.Connection) error {
		var terr error
		user, terr = models.UpsertUser(tx, identity, now)
		return terr
	})
	return user, err
}

func (s *SQLStore) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return models.FindUserByID(s.conn(ctx), id)
}

func (s *SQLStore) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	return models.CreateRefreshToken(s.conn(ctx), token)
}

func (s *SQLStore) LookupRefreshToken(ctx context.Context, token string, now time.Time) (*models.RefreshToken, error) {
	return models.FindUsableRefreshToken(s.conn(ctx), token, now)
}

func (s *SQLStore) RevokeRefreshToken(ctx context.Context, token string, now time.Time) error {
	return models.RevokeRefreshToken(s.conn(ctx), token, now)
}

func (s *SQLStore) RevokeUserRefreshTokens(ctx context.Context, userID uuid.UUID, now time.Time) error {
	return models.RevokeUserRefreshTokens(s.conn(ctx), userID, now)
}

func (s *SQLStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.conn(ctx).Transaction(func(tx *storage.Connection) error {
		return fn(&SQLStore{db: tx, cleanup: s.cleanup})
	})
}

func (s *SQLStore) Cleanup(ctx context.Context) (int, error) {
	if s.cleanup == nil {
		return 0, nil
	}
	return s.cleanup.Clean(s.conn(ctx))
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return errors.Wrap(s.conn(ctx).RawQuery("select 1").Exec(), "database ping failed")
}

var _ Store = (*SQLStore)(nil)
