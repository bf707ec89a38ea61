package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/animetinder/auth/internal/api/provider"
	"github.com/animetinder/auth/internal/models"
	"github.com/animetinder/auth/internal/observability"
	"github.com/animetinder/auth/internal/security"
	"github.com/animetinder/auth/internal/store"
)

const (
	loginSucceeded = "ok"

	// the provider gets this share of what is left of the request
	providerBudgetShare = 0.75
)

// OAuthStart begins a login: it records a pending authorization and sends
// the browser to the provider.
func (a *API) OAuthStart(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	material, err := security.GenerateAuthorizationMaterial(a.config.External.MyAnimeList.CodeChallengeMethod)
	if err != nil {
		return internalServerError("Unable to start login").WithInternalError(err)
	}

	pending := models.NewPendingAuthorization(material.State, material.Verifier, material.Method, a.Now())
	if err := a.store.CreatePendingAuthorization(ctx, pending); err != nil {
		return internalServerError("Unable to start login").WithInternalError(err)
	}

	authURL := a.provider.AuthCodeURL(material.State, material.Challenge, material.Method)
	observability.LogEntrySetField(r, "provider", a.provider.Name())

	http.Redirect(w, r, authURL, http.StatusFound)
	return nil
}

// OAuthCallback completes a login. Failures send the browser back to the
// site with ?error=<reason>.
func (a *API) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	u, err := url.Parse(a.config.SiteURL + "/")
	if err != nil {
		HandleResponseError(internalServerError("Invalid site url").WithInternalError(err), w, r)
		return
	}
	a.redirectErrors(a.handleOAuthCallback, w, r, u)
}

func (a *API) handleOAuthCallback(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	q := r.URL.Query()
	code, state := q.Get("code"), q.Get("state")

	if providerErr := q.Get("error"); providerErr != "" {
		if state != "" {
			// the attempt is over, drop its verifier
			if _, err := a.store.ConsumePendingAuthorization(ctx, state); err != nil && !models.IsNotFoundError(err) {
				observability.GetLogEntry(r).WithError(err).Warn("unable to discard pending authorization")
			}
		}
		return callbackError(http.StatusBadRequest, ReasonCancelled, "Login was cancelled").
			WithInternalMessage("provider returned error %q: %s", providerErr, q.Get("error_description"))
	}

	if code == "" || state == "" {
		return callbackError(http.StatusBadRequest, ReasonMissingParams, "Missing code or state")
	}

	pending, err := store.ConsumeFreshPendingAuthorization(ctx, a.store, state, a.Now(), a.config.Sessions.FlowStateTTL)
	if err != nil {
		var expired models.ExpiredFlowError
		switch {
		case errors.As(err, &expired):
			return callbackError(http.StatusBadRequest, ReasonLongWait, "Login took too long")
		case models.IsNotFoundError(pkgerrors.Cause(err)):
			return callbackError(http.StatusBadRequest, ReasonInvalidState, "Unknown state")
		default:
			return callbackError(http.StatusInternalServerError, ReasonServerError, "Unable to complete login").WithInternalError(err)
		}
	}

	providerCtx, cancel := providerContext(ctx)
	defer cancel()

	providerTokens, err := a.provider.ExchangeCode(providerCtx, code, pending.CodeVerifier)
	if err != nil {
		status := http.StatusBadGateway
		var exchangeErr *provider.ExchangeError
		if errors.As(err, &exchangeErr) {
			status = exchangeErr.Status
		}
		reason := fmt.Sprintf("%s_%d", a.provider.Name(), status)
		return callbackError(http.StatusBadGateway, reason, "Token exchange failed").WithInternalError(err)
	}

	profile, err := a.provider.FetchProfile(providerCtx, providerTokens.AccessToken)
	if err != nil {
		return callbackError(http.StatusBadGateway, ReasonProfileUnavailable, "Unable to fetch profile").WithInternalError(err)
	}

	var params models.GrantParams
	params.FillGrantParams(r)

	result, err := a.tokens.CompleteLogin(ctx, providerTokens, profile, params)
	if err != nil {
		return callbackError(http.StatusInternalServerError, ReasonServerError, "Unable to complete login").WithInternalError(err)
	}

	a.setRefreshTokenCookie(w, result.RefreshToken)
	a.setAccessTokenCookie(w, result.AccessToken)

	observability.LoginsTotal.WithLabelValues(loginSucceeded).Inc()
	observability.LogEntrySetField(r, "user_id", result.User.ID)
	observability.LogEntrySetField(r, "new_user", result.User.IsNewUser)

	http.Redirect(w, r, a.config.HomeURL(), http.StatusFound)
	return nil
}

// providerContext bounds the provider calls so a slow provider still leaves
// time to store the login and redirect before the request deadline.
func providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	budget := time.Duration(float64(time.Until(deadline)) * providerBudgetShare)
	return context.WithTimeout(ctx, budget)
}
