package models

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"

	"github.com/animetinder/auth/internal/crypto"
	"github.com/animetinder/auth/internal/storage"
	"github.com/animetinder/auth/internal/utilities"
)

// refreshTokenLength is the number of random bytes behind a refresh token.
const refreshTokenLength = 32

// RefreshToken is the database model for refresh tokens.
type RefreshToken struct {
	ID uuid.UUID `db:"id"`

	Token string `db:"token"`

	UserID uuid.UUID `db:"user_id"`

	Revoked   bool      `db:"revoked"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	UserAgent string `db:"user_agent"`
	IP        string `db:"ip"`
}

func (RefreshToken) TableName() string {
	tableName := "refresh_tokens"
	return tableName
}

// GrantParams is used to pass session-specific parameters when issuing a new
// refresh token to authenticated users.
type GrantParams struct {
	UserAgent string
	IP        string
}

func (g *GrantParams) FillGrantParams(r *http.Request) {
	g.UserAgent = r.Header.Get("User-Agent")
	g.IP = utilities.GetIPAddress(r)
}

// NewRefreshToken mints a token for userID that stays usable for ttl.
func NewRefreshToken(userID uuid.UUID, ttl time.Duration, now time.Time, params GrantParams) *RefreshToken {
	now = now.UTC()
	return &RefreshToken{
		ID:        uuid.Must(uuid.NewV4()),
		Token:     crypto.SecureToken(refreshTokenLength),
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
		UserAgent: params.UserAgent,
		IP:        params.IP,
	}
}

// IsUsable reports whether the token can still mint access tokens.
func (r *RefreshToken) IsUsable(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

// CreateRefreshToken persists token.
func CreateRefreshToken(tx *storage.Connection, token *RefreshToken) error {
	if err := tx.Create(token); err != nil {
		if utilities.IsUniqueViolation(err) {
			return ConflictError{Resource: "refresh token"}
		}
		return errors.Wrap(err, "error creating refresh token")
	}
	return nil
}

// FindUsableRefreshToken returns the token only if it is neither revoked nor
// expired at now.
func FindUsableRefreshToken(tx *storage.Connection, token string, now time.Time) (*RefreshToken, error) {
	obj := &RefreshToken{}
	if err := tx.Q().Where("token = ? and revoked is false and expires_at > ?", token, now.UTC()).First(obj); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return nil, RefreshTokenNotFoundError{}
		}
		return nil, errors.Wrap(err, "error finding refresh token")
	}
	return obj, nil
}

// RevokeRefreshToken marks token revoked. Revoking an unknown or already
// revoked token is not an error.
func RevokeRefreshToken(tx *storage.Connection, token string, now time.Time) error {
	return errors.Wrap(
		tx.RawQuery("update "+(RefreshToken{}).TableName()+" set revoked = true, updated_at = ? where token = ? and revoked is false", now.UTC(), token).Exec(),
		"error revoking refresh token",
	)
}

// RevokeUserRefreshTokens revokes every live token of the user.
func RevokeUserRefreshTokens(tx *storage.Connection, userID uuid.UUID, now time.Time) error {
	return errors.Wrap(
		tx.RawQuery("update "+(RefreshToken{}).TableName()+" set revoked = true, updated_at = ? where user_id = ? and revoked is false", now.UTC(), userID).Exec(),
		"error revoking user refresh tokens",
	)
}
