package api

import (
	"net/http"
	"time"

	"github.com/animetinder/auth/internal/models"
	"github.com/animetinder/auth/internal/tokens"
)

const (
	accessTokenCookieName  = "access_token"
	refreshTokenCookieName = "refresh_token"
)

func (a *API) newCookie(name, value string, maxAge time.Duration, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   a.config.Cookie.Domain,
		MaxAge:   int(maxAge.Seconds()),
		Secure:   !a.config.Cookie.Insecure,
		HttpOnly: httpOnly,
		SameSite: http.SameSiteLaxMode,
	}
}

func (a *API) setRefreshTokenCookie(w http.ResponseWriter, token *models.RefreshToken) {
	http.SetCookie(w, a.newCookie(refreshTokenCookieName, token.Token, a.config.Sessions.RefreshTokenTTL, true))
}

func (a *API) setAccessTokenCookie(w http.ResponseWriter, token *tokens.AccessToken) {
	http.SetCookie(w, a.newCookie(accessTokenCookieName, token.Token, a.config.Cookie.AccessTokenMaxAge, a.config.Cookie.AccessTokenHTTPOnly))
}

func (a *API) clearCookies(w http.ResponseWriter) {
	for _, name := range []string{accessTokenCookieName, refreshTokenCookieName} {
		c := a.newCookie(name, "", 0, name == refreshTokenCookieName || a.config.Cookie.AccessTokenHTTPOnly)
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
