package models

import (
	"database/sql"
	"time"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"

	"github.com/animetinder/auth/internal/storage"
)

// User is the local account behind a provider identity.
type User struct {
	ID         uuid.UUID `json:"id" db:"id"`
	ProviderID string    `json:"provider_id" db:"provider_id"`
	Username   string    `json:"username" db:"username"`
	AvatarURL  string    `json:"avatar_url" db:"avatar_url"`
	IsNewUser  bool      `json:"is_new_user" db:"is_new_user"`

	ProviderAccessToken  string     `json:"-" db:"provider_access_token"`
	ProviderRefreshToken string     `json:"-" db:"provider_refresh_token"`
	ProviderExpiresAt    *time.Time `json:"-" db:"provider_expires_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ProviderIdentity is what a completed provider login tells us about the
// user.
type ProviderIdentity struct {
	ProviderID   string
	Username     string
	AvatarURL    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

func (User) TableName() string {
	tableName := "users"
	return tableName
}

// NewUser builds a first-time user from a provider identity.
func NewUser(identity ProviderIdentity, now time.Time) *User {
	u := &User{
		ID:         uuid.Must(uuid.NewV4()),
		ProviderID: identity.ProviderID,
		IsNewUser:  true,
		CreatedAt:  now.UTC(),
	}
	u.ApplyIdentity(identity, now)
	return u
}

// ApplyIdentity refreshes the profile fields and provider tokens. The local
// id and the new-user flag are left alone.
func (u *User) ApplyIdentity(identity ProviderIdentity, now time.Time) {
	u.Username = identity.Username
	if u.Username == "" {
		u.Username = identity.ProviderID
	}
	u.AvatarURL = identity.AvatarURL
	u.ProviderAccessToken = identity.AccessToken
	u.ProviderRefreshToken = identity.RefreshToken
	u.ProviderExpiresAt = identity.ExpiresAt
	u.UpdatedAt = now.UTC()
}

func findUser(tx *storage.Connection, query string, args ...interface{}) (*User, error) {
	obj := &User{}
	if err := tx.Q().Where(query, args...).First(obj); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return nil, UserNotFoundError{}
		}
		return nil, errors.Wrap(err, "error finding user")
	}

	return obj, nil
}

// FindUserByID finds a user matching the provided ID.
func FindUserByID(tx *storage.Connection, id uuid.UUID) (*User, error) {
	return findUser(tx, "id = ?", id)
}

// FindUserByProviderID finds the user linked to a provider account.
func FindUserByProviderID(tx *storage.Connection, providerID string) (*User, error) {
	return findUser(tx, "provider_id = ?", providerID)
}

// UpsertUser creates the user for identity on first login and refreshes the
// existing row on every later one. Concurrent first logins of the same
// provider account converge on a single row.
func UpsertUser(tx *storage.Connection, identity ProviderIdentity, now time.Time) (*User, error) {
	candidate := NewUser(identity, now)

	count, err := tx.RawQuery(
		"insert into "+candidate.TableName()+" (id, provider_id, username, avatar_url, is_new_user, provider_access_token, provider_refresh_token, provider_expires_at, created_at, updated_at) "+
			"values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) on conflict (provider_id) do nothing",
		candidate.ID,
		candidate.ProviderID,
		candidate.Username,
		candidate.AvatarURL,
		candidate.IsNewUser,
		candidate.ProviderAccessToken,
		candidate.ProviderRefreshToken,
		candidate.ProviderExpiresAt,
		candidate.CreatedAt,
		candidate.UpdatedAt,
	).ExecWithCount()
	if err != nil {
		return nil, errors.Wrap(err, "error inserting user")
	}
	if count == 1 {
		return candidate, nil
	}

	user, err := FindUserByProviderID(tx, identity.ProviderID)
	if err != nil {
		return nil, err
	}
	user.ApplyIdentity(identity, now)
	if err := tx.UpdateOnly(user, "username", "avatar_url", "provider_access_token", "provider_refresh_token", "provider_expires_at"); err != nil {
		return nil, errors.Wrap(err, "error updating user")
	}
	return user, nil
}
