package api

import (
	"net/http"
)

type LogoutBehavior string

const (
	LogoutGlobal LogoutBehavior = "global"
	LogoutLocal  LogoutBehavior = "local"
)

// Logout revokes the presented refresh token, or every refresh token of its
// owner with scope=global, and clears the session cookies.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	scope := LogoutLocal

	switch r.URL.Query().Get("scope") {
	case "", "local":
		scope = LogoutLocal

	case "global":
		scope = LogoutGlobal

	default:
		return badRequestError(ErrorCodeValidationFailed, "Unsupported logout scope %q", r.URL.Query().Get("scope"))
	}

	if refreshToken := cookieValue(r, refreshTokenCookieName); refreshToken != "" {
		if err := a.tokens.Logout(ctx, refreshToken, scope == LogoutGlobal); err != nil {
			return internalServerError("Error logging out user").WithInternalError(err)
		}
	}

	a.clearCookies(w)
	w.WriteHeader(http.StatusNoContent)

	return nil
}
