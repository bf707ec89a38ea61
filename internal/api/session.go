package api

import (
	"errors"
	"net/http"

	"github.com/gofrs/uuid"

	"github.com/animetinder/auth/internal/models"
	"github.com/animetinder/auth/internal/tokens"
)

type SessionUser struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

type SessionResponse struct {
	Authenticated bool         `json:"authenticated"`
	User          *SessionUser `json:"user,omitempty"`
}

type UserResponse struct {
	IsNewUser bool `json:"is_new_user"`
}

// SessionGet reports whether the browser holds a valid session. A stale
// access token is replaced from the refresh token cookie.
func (a *API) SessionGet(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	session, err := a.tokens.ValidateSession(ctx, cookieValue(r, accessTokenCookieName), cookieValue(r, refreshTokenCookieName))
	if err != nil {
		if errors.Is(err, tokens.ErrUnauthenticated) {
			return sendJSON(w, http.StatusUnauthorized, SessionResponse{})
		}
		return internalServerError("Unable to validate session").WithInternalError(err)
	}

	user, err := a.store.FindUserByID(ctx, session.UserID)
	if err != nil {
		if models.IsNotFoundError(err) {
			return sendJSON(w, http.StatusUnauthorized, SessionResponse{})
		}
		return internalServerError("Unable to load user").WithInternalError(err)
	}

	if session.Refreshed != nil {
		a.setAccessTokenCookie(w, session.Refreshed)
	}

	return sendJSON(w, http.StatusOK, SessionResponse{
		Authenticated: true,
		User: &SessionUser{
			ID:       user.ID,
			Username: user.Username,
		},
	})
}

// UserGet returns the onboarding state of the authenticated user.
func (a *API) UserGet(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	user, err := a.store.FindUserByID(ctx, getUserID(ctx))
	if err != nil {
		if models.IsNotFoundError(err) {
			return unauthorizedError("User not found").WithInternalError(err)
		}
		return internalServerError("Unable to load user").WithInternalError(err)
	}

	return sendJSON(w, http.StatusOK, UserResponse{IsNewUser: user.IsNewUser})
}
