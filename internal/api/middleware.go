package api

import (
	"bytes"
	"context"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/didip/tollbooth/v5"
	"github.com/didip/tollbooth/v5/limiter"
	"github.com/sirupsen/logrus"

	"github.com/animetinder/auth/internal/observability"
	"github.com/animetinder/auth/internal/utilities"
)

var bearerRegexp = regexp.MustCompile(`^(?:B|b)earer (\S+$)`)

// newOAuthLimiter allows RateLimitOAuth requests per client to the login
// endpoints.
func (a *API) newOAuthLimiter() *limiter.Limiter {
	rate := a.config.RateLimitOAuth
	return tollbooth.NewLimiter(rate.EventsPerSecond(), &limiter.ExpirableOptions{
		DefaultExpirationTTL: time.Hour,
	}).SetBurst(int(rate.Events))
}

// limitHandler keys lmt on the configured rate limit header, or on the
// client address when no header is configured.
func (a *API) limitHandler(lmt *limiter.Limiter) middlewareHandler {
	return func(w http.ResponseWriter, req *http.Request) (context.Context, error) {
		c := req.Context()

		key := utilities.GetIPAddress(req)
		if limitHeader := a.config.RateLimitHeader; limitHeader != "" {
			key = req.Header.Get(limitHeader)

			if key == "" {
				log := observability.GetLogEntry(req)
				log.WithField("header", limitHeader).Warn("request does not have a value for the rate limiting header, rate limiting is not applied")
				return c, nil
			}
		}

		if err := tollbooth.LimitByKeys(lmt, []string{key}); err != nil {
			return c, tooManyRequestsError(ErrorCodeOverRequestRateLimit, "Request rate limit reached")
		}
		return c, nil
	}
}

// extractAccessToken reads the access token from the Authorization header,
// falling back to the access token cookie.
func extractAccessToken(r *http.Request) string {
	if matches := bearerRegexp.FindStringSubmatch(r.Header.Get("Authorization")); len(matches) == 2 {
		return matches[1]
	}
	return cookieValue(r, accessTokenCookieName)
}

// requireAuthentication accepts only a valid access token. It never falls
// back to the refresh token.
func (a *API) requireAuthentication(w http.ResponseWriter, r *http.Request) (context.Context, error) {
	token := extractAccessToken(r)
	if token == "" {
		return nil, unauthorizedError("This endpoint requires a valid access token")
	}

	_, userID, err := a.tokens.ParseAccessToken(token)
	if err != nil {
		return nil, unauthorizedError("Invalid access token").WithInternalError(err)
	}

	observability.LogEntrySetField(r, "user_id", userID)
	return withUserID(r.Context(), userID), nil
}

// timeoutResponseWriter is a http.ResponseWriter that queues up a response
// body to be sent if the serving completes before the context has exceeded its
// deadline.
type timeoutResponseWriter struct {
	sync.Mutex

	header      http.Header
	wroteHeader bool
	snapHeader  http.Header // snapshot of the header at the time WriteHeader was called
	statusCode  int
	buf         bytes.Buffer
}

func (t *timeoutResponseWriter) Header() http.Header {
	t.Lock()
	defer t.Unlock()

	return t.header
}

func (t *timeoutResponseWriter) Write(bytes []byte) (int, error) {
	t.Lock()
	defer t.Unlock()

	if !t.wroteHeader {
		t.writeHeaderLocked(http.StatusOK)
	}

	return t.buf.Write(bytes)
}

func (t *timeoutResponseWriter) WriteHeader(statusCode int) {
	t.Lock()
	defer t.Unlock()

	t.writeHeaderLocked(statusCode)
}

func (t *timeoutResponseWriter) writeHeaderLocked(statusCode int) {
	if t.wroteHeader {
		// once WriteHeader has been called, the header map is frozen in
		// snapHeader for finallyWrite
		return
	}

	t.statusCode = statusCode
	t.wroteHeader = true
	t.snapHeader = t.header.Clone()
}

func (t *timeoutResponseWriter) finallyWrite(w http.ResponseWriter) {
	t.Lock()
	defer t.Unlock()

	dst := w.Header()
	for k, vv := range t.snapHeader {
		dst[k] = vv
	}

	if !t.wroteHeader {
		t.statusCode = http.StatusOK
	}

	w.WriteHeader(t.statusCode)
	if _, err := w.Write(t.buf.Bytes()); err != nil {
		logrus.WithError(err).Warn("Write failed")
	}
}

// timeoutMiddleware answers 504 when a request runs past timeout. Provider
// calls inherit the deadline through the request context.
func timeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			timeoutWriter := &timeoutResponseWriter{
				header: make(http.Header),
			}

			panicChan := make(chan any, 1)
			serverDone := make(chan struct{})
			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicChan <- p
					}
				}()

				next.ServeHTTP(timeoutWriter, r.WithContext(ctx))
				close(serverDone)
			}()

			select {
			case p := <-panicChan:
				panic(p)

			case <-serverDone:
				timeoutWriter.finallyWrite(w)

			case <-ctx.Done():
				err := ctx.Err()

				if err == context.DeadlineExceeded {
					httpError := &HTTPError{
						HTTPStatus: http.StatusGatewayTimeout,
						ErrorCode:  ErrorCodeRequestTimeout,
						Message:    "Processing this request timed out, please retry after a moment.",
					}

					httpError = httpError.WithInternalError(err)

					HandleResponseError(httpError, w, r)
				} else {
					// unrecognized context error, wait for the handler and
					// write out its response
					<-serverDone

					timeoutWriter.finallyWrite(w)
				}
			}
		})
	}
}
