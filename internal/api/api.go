package api

import (
	"context"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/sebest/xff"
	"github.com/sirupsen/logrus"

	"github.com/animetinder/auth/internal/api/provider"
	"github.com/animetinder/auth/internal/conf"
	"github.com/animetinder/auth/internal/observability"
	"github.com/animetinder/auth/internal/store"
	"github.com/animetinder/auth/internal/tokens"
)

const defaultVersion = "unknown version"

// API is the main REST API
type API struct {
	handler  http.Handler
	config   *conf.GlobalConfiguration
	store    store.Store
	provider provider.OAuthProvider
	tokens   *tokens.Service
	version  string

	// overrideTime can be used to override the clock used by handlers. Should only be used in tests!
	overrideTime func() time.Time
}

func (a *API) Now() time.Time {
	if a.overrideTime != nil {
		return a.overrideTime()
	}

	return time.Now()
}

// NewAPI instantiates a new REST API
func NewAPI(globalConfig *conf.GlobalConfiguration, st store.Store, p provider.OAuthProvider) *API {
	return NewAPIWithVersion(context.Background(), globalConfig, st, p, defaultVersion)
}

// NewAPIWithVersion creates a new REST API using the specified version
func NewAPIWithVersion(ctx context.Context, globalConfig *conf.GlobalConfiguration, st store.Store, p provider.OAuthProvider, version string) *API {
	api := &API{
		config:   globalConfig,
		store:    st,
		provider: p,
		version:  version,
	}
	api.tokens = tokens.NewService(globalConfig, st)
	api.tokens.SetTimeFunc(api.Now)

	xffmw, _ := xff.Default()
	logger := observability.NewStructuredLogger(logrus.StandardLogger())

	r := newRouter()
	r.Use(addRequestID(globalConfig))
	r.UseBypass(xffmw.Handler)
	r.UseBypass(logger)
	r.UseBypass(recoverer)

	if globalConfig.API.MaxRequestDuration > 0 {
		r.UseBypass(timeoutMiddleware(globalConfig.API.MaxRequestDuration))
	}

	r.Get("/health", api.HealthCheck)

	if globalConfig.Metrics.Enabled {
		r.Method(http.MethodGet, "/metrics", observability.MetricsHandler())
	}

	r.Route("/oauth", func(r *router) {
		// callbacks always answer with a redirect, so only the start is limited
		r.With(api.limitHandler(api.newOAuthLimiter())).Get("/", api.OAuthStart)
		r.chi.Get("/callback", api.OAuthCallback)
	})

	r.Route("/api", func(r *router) {
		r.UseBypass(chimiddleware.NoCache)

		r.Get("/session", api.SessionGet)
		r.With(api.requireAuthentication).Get("/user", api.UserGet)
	})

	r.Post("/logout", api.Logout)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   globalConfig.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	api.handler = corsHandler.Handler(r)
	return api
}

// ServeHTTP lets the API be mounted as a plain http.Handler.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

type HealthCheckResponse struct {
	Version     string `json:"version"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HealthCheck endpoint indicates if the auth service and its store are
// available
func (a *API) HealthCheck(w http.ResponseWriter, r *http.Request) error {
	if err := a.store.Ping(r.Context()); err != nil {
		return httpError(http.StatusServiceUnavailable, ErrorCodeUnexpectedFailure, "Store unavailable").WithInternalError(err)
	}

	return sendJSON(w, http.StatusOK, HealthCheckResponse{
		Version:     a.version,
		Name:        "anime-tinder-auth",
		Description: "anime-tinder auth issues sessions for MyAnimeList accounts",
	})
}
