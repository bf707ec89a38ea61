package provider

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// Tokens are the provider credentials returned by a code exchange.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// Profile is the subset of the provider's user record this service keeps.
type Profile struct {
	ID      string
	Name    string
	Picture string
}

// OAuthProvider is an identity provider supporting the authorization code
// flow with PKCE.
type OAuthProvider interface {
	// Name is the short reason-code prefix of provider errors, e.g. "mal".
	Name() string
	AuthCodeURL(state, challenge, method string) string
	// ExchangeCode trades a one-time code for tokens. It never retries.
	ExchangeCode(ctx context.Context, code, verifier string) (*Tokens, error)
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)
}

// transportStatus maps a failed round trip onto the status reported for it:
// 504 when the request timed out, 502 for anything else.
func transportStatus(err error) int {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}
