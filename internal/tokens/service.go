package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	pkgerrors "github.com/pkg/errors"

	"github.com/animetinder/auth/internal/api/provider"
	"github.com/animetinder/auth/internal/conf"
	"github.com/animetinder/auth/internal/models"
	"github.com/animetinder/auth/internal/observability"
	"github.com/animetinder/auth/internal/store"
)

var (
	// ErrInvalidToken covers every way a presented token can fail: malformed,
	// badly signed, expired, revoked or unknown.
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnauthenticated is returned when neither credential of a session
	// checks out.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// AccessTokenClaims is a struct thats used for JWT claims
type AccessTokenClaims struct {
	jwt.RegisteredClaims
}

// AccessToken is a signed, self-contained credential for one user.
type AccessToken struct {
	Token     string
	UserID    uuid.UUID
	ExpiresAt time.Time
}

// LoginResult is everything a completed login hands back to the browser.
type LoginResult struct {
	User         *models.User
	RefreshToken *models.RefreshToken
	AccessToken  *AccessToken
}

// Session is the outcome of a successful session check. Refreshed is set
// when the access token had to be reissued from the refresh token.
type Session struct {
	UserID    uuid.UUID
	Refreshed *AccessToken
}

// Service handles token operations
type Service struct {
	config *conf.GlobalConfiguration
	store  store.Store
	now    func() time.Time
}

// NewService creates a new token service
func NewService(config *conf.GlobalConfiguration, st store.Store) *Service {
	return &Service{
		config: config,
		store:  st,
		now:    time.Now,
	}
}

// SetTimeFunc replaces the clock, for tests.
func (s *Service) SetTimeFunc(now func() time.Time) {
	s.now = now
}

// GenerateAccessToken signs a new access token for userID.
func (s *Service) GenerateAccessToken(userID uuid.UUID) (*AccessToken, error) {
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.config.JWT.Exp)

	claims := &AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    s.config.JWT.Issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.JWT.Secret))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "error signing access token")
	}

	return &AccessToken{
		Token:     signed,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}, nil
}

// ParseAccessToken verifies token and returns its claims. Every failure is
// reported as ErrInvalidToken.
func (s *Service) ParseAccessToken(token string) (*AccessTokenClaims, uuid.UUID, error) {
	p := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.config.JWT.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	claims := &AccessTokenClaims{}
	if _, err := p.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(s.config.JWT.Secret), nil
	}); err != nil {
		return nil, uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := uuid.FromString(claims.Subject)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%w: bad subject: %v", ErrInvalidToken, err)
	}

	return claims, userID, nil
}

// CompleteLogin records the provider identity and opens a new session for
// it. The user row and the refresh token are written in one transaction.
// Every call creates a fresh refresh token, earlier ones stay valid.
func (s *Service) CompleteLogin(ctx context.Context, providerTokens *provider.Tokens, profile *provider.Profile, params models.GrantParams) (*LoginResult, error) {
	identity := models.ProviderIdentity{
		ProviderID:   profile.ID,
		Username:     profile.Name,
		AvatarURL:    profile.Picture,
		AccessToken:  providerTokens.AccessToken,
		RefreshToken: providerTokens.RefreshToken,
		ExpiresAt:    providerTokens.ExpiresAt,
	}
	now := s.now()

	var user *models.User
	var refreshToken *models.RefreshToken
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		var terr error
		user, terr = tx.UpsertUser(ctx, identity, now)
		if terr != nil {
			return terr
		}

		refreshToken = models.NewRefreshToken(user.ID, s.config.Sessions.RefreshTokenTTL, now, params)
		return tx.CreateRefreshToken(ctx, refreshToken)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "error completing login")
	}

	accessToken, err := s.GenerateAccessToken(user.ID)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		User:         user,
		RefreshToken: refreshToken,
		AccessToken:  accessToken,
	}, nil
}

// RotateAccessToken mints a new access token from a usable refresh token.
// The refresh token itself is left untouched.
func (s *Service) RotateAccessToken(ctx context.Context, refreshToken string) (*AccessToken, error) {
	rt, err := s.store.LookupRefreshToken(ctx, refreshToken, s.now())
	if err != nil {
		if models.IsNotFoundError(err) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	return s.GenerateAccessToken(rt.UserID)
}

// ValidateSession accepts a request when its access token verifies, or else
// when its refresh token can mint a new one. Any credential failure ends in
// ErrUnauthenticated; storage failures are returned as they are.
func (s *Service) ValidateSession(ctx context.Context, accessToken, refreshToken string) (*Session, error) {
	if accessToken != "" {
		if _, userID, err := s.ParseAccessToken(accessToken); err == nil {
			observability.SessionValidationsTotal.WithLabelValues(observability.SessionPathAccess).Inc()
			return &Session{UserID: userID}, nil
		}
	}

	if refreshToken != "" {
		at, err := s.RotateAccessToken(ctx, refreshToken)
		switch {
		case err == nil:
			observability.SessionValidationsTotal.WithLabelValues(observability.SessionPathRefresh).Inc()
			return &Session{UserID: at.UserID, Refreshed: at}, nil
		case !errors.Is(err, ErrInvalidToken):
			return nil, err
		}
	}

	observability.SessionValidationsTotal.WithLabelValues(observability.SessionPathUnauthenticated).Inc()
	return nil, ErrUnauthenticated
}

// Logout revokes refreshToken, or with global set every refresh token of
// its owner. An unusable refresh token is ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string, global bool) error {
	now := s.now()
	if !global {
		return s.store.RevokeRefreshToken(ctx, refreshToken, now)
	}

	rt, err := s.store.LookupRefreshToken(ctx, refreshToken, now)
	if err != nil {
		if models.IsNotFoundError(err) {
			return nil
		}
		return err
	}
	return s.store.RevokeUserRefreshTokens(ctx, rt.UserID, now)
}
