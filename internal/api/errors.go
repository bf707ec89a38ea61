package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/animetinder/auth/internal/observability"
	"github.com/animetinder/auth/internal/utilities"
)

type ErrorCode = string

const (
	ErrorCodeUnknown              ErrorCode = "unknown"
	ErrorCodeUnexpectedFailure    ErrorCode = "unexpected_failure"
	ErrorCodeValidationFailed     ErrorCode = "validation_failed"
	ErrorCodeNoAuthorization      ErrorCode = "no_authorization"
	ErrorCodeOverRequestRateLimit ErrorCode = "over_request_rate_limit"
	ErrorCodeRequestTimeout       ErrorCode = "request_timeout"
)

// Reasons reported to the browser in the ?error= parameter of a failed
// OAuth callback.
const (
	ReasonCancelled          ErrorCode = "cancelled"
	ReasonMissingParams      ErrorCode = "missing_params"
	ReasonInvalidState       ErrorCode = "invalid_state"
	ReasonLongWait           ErrorCode = "long_wait"
	ReasonProfileUnavailable ErrorCode = "profile_unavailable"
	ReasonServerError        ErrorCode = "server_error"
)

func badRequestError(errorCode ErrorCode, fmtString string, args ...interface{}) *HTTPError {
	return httpError(http.StatusBadRequest, errorCode, fmtString, args...)
}

func internalServerError(fmtString string, args ...interface{}) *HTTPError {
	return httpError(http.StatusInternalServerError, ErrorCodeUnexpectedFailure, fmtString, args...)
}

func unauthorizedError(fmtString string, args ...interface{}) *HTTPError {
	return httpError(http.StatusUnauthorized, ErrorCodeNoAuthorization, fmtString, args...)
}

func tooManyRequestsError(errorCode ErrorCode, fmtString string, args ...interface{}) *HTTPError {
	return httpError(http.StatusTooManyRequests, errorCode, fmtString, args...)
}

// callbackError is a failed login. reason ends up in the redirect, status
// only decides how loudly it is logged.
func callbackError(status int, reason ErrorCode, fmtString string, args ...interface{}) *HTTPError {
	return httpError(status, reason, fmtString, args...)
}

// HTTPError is an error with a message and an HTTP status code.
type HTTPError struct {
	HTTPStatus      int    `json:"code"`
	ErrorCode       string `json:"error_code,omitempty"`
	Message         string `json:"msg"`
	InternalError   error  `json:"-"`
	InternalMessage string `json:"-"`
	ErrorID         string `json:"error_id,omitempty"`
}

func (e *HTTPError) Error() string {
	if e.InternalMessage != "" {
		return e.InternalMessage
	}
	return fmt.Sprintf("%d: %s", e.HTTPStatus, e.Message)
}

func (e *HTTPError) Is(target error) bool {
	return e.Error() == target.Error()
}

// Cause returns the root cause error
func (e *HTTPError) Cause() error {
	if e.InternalError != nil {
		return e.InternalError
	}
	return e
}

// WithInternalError adds internal error information to the error
func (e *HTTPError) WithInternalError(err error) *HTTPError {
	e.InternalError = err
	return e
}

// WithInternalMessage adds internal message information to the error
func (e *HTTPError) WithInternalMessage(fmtString string, args ...interface{}) *HTTPError {
	e.InternalMessage = fmt.Sprintf(fmtString, args...)
	return e
}

func httpError(httpStatus int, errorCode ErrorCode, fmtString string, args ...interface{}) *HTTPError {
	return &HTTPError{
		HTTPStatus: httpStatus,
		ErrorCode:  errorCode,
		Message:    fmt.Sprintf(fmtString, args...),
	}
}

// Recoverer is a middleware that recovers from panics, logs the panic (and a
// backtrace), and returns a HTTP 500 (Internal Server Error) status if
// possible.
func recoverer(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}

				logEntry := observability.GetLogEntry(r)
				if logEntry != nil {
					logEntry.WithField("panic", fmt.Sprintf("%+v", rvr)).WithField("stack", string(debug.Stack())).Error("unhandled request panic")
				} else {
					fmt.Fprintf(os.Stderr, "Panic: %+v\n", rvr)
					debug.PrintStack()
				}

				se := &HTTPError{
					HTTPStatus: http.StatusInternalServerError,
					Message:    http.StatusText(http.StatusInternalServerError),
				}
				HandleResponseError(se, w, r)
			}
		}()
		next.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

// ErrorCause is an error interface that contains the method Cause() for returning root cause errors
type ErrorCause interface {
	Cause() error
}

func HandleResponseError(err error, w http.ResponseWriter, r *http.Request) {
	log := observability.GetLogEntry(r)
	errorID := utilities.GetRequestID(r.Context())

	switch e := err.(type) {
	case *HTTPError:
		logHTTPError(log, e, errorID)

		if e.ErrorCode == "" {
			if e.HTTPStatus == http.StatusInternalServerError {
				e.ErrorCode = ErrorCodeUnexpectedFailure
			} else {
				e.ErrorCode = ErrorCodeUnknown
			}
		}

		if jsonErr := sendJSON(w, e.HTTPStatus, e); jsonErr != nil && jsonErr != context.DeadlineExceeded {
			log.WithError(jsonErr).Warn("Failed to send JSON on ResponseWriter")
		}

	case ErrorCause:
		HandleResponseError(e.Cause(), w, r)

	default:
		log.WithError(e).Errorf("Unhandled server error: %s", e.Error())

		httpError := HTTPError{
			HTTPStatus: http.StatusInternalServerError,
			ErrorCode:  ErrorCodeUnexpectedFailure,
			Message:    "Unexpected failure, please check server logs for more information",
			ErrorID:    errorID,
		}

		if jsonErr := sendJSON(w, http.StatusInternalServerError, httpError); jsonErr != nil && jsonErr != context.DeadlineExceeded {
			log.WithError(jsonErr).Warn("Failed to send JSON on ResponseWriter")
		}
	}
}

func logHTTPError(log logrus.FieldLogger, e *HTTPError, errorID string) {
	switch {
	case e.HTTPStatus >= http.StatusInternalServerError:
		e.ErrorID = errorID
		// this will get us the stack trace too
		log.WithError(e.Cause()).Error(e.Error())
	case e.HTTPStatus == http.StatusTooManyRequests:
		log.WithError(e.Cause()).Warn(e.Error())
	default:
		log.WithError(e.Cause()).Info(e.Error())
	}
}

// redirectErrors runs handler and turns a returned error into a redirect to
// u carrying only the reason code. Details stay in the server log.
func (a *API) redirectErrors(handler apiHandler, w http.ResponseWriter, r *http.Request, u *url.URL) {
	log := observability.GetLogEntry(r)
	errorID := utilities.GetRequestID(r.Context())

	err := handler(w, r)
	if err == nil {
		return
	}

	reason := ReasonServerError
	if e, ok := err.(*HTTPError); ok {
		logHTTPError(log, e, errorID)
		if e.ErrorCode != "" {
			reason = e.ErrorCode
		}
	} else {
		log.WithError(err).Errorf("Unhandled server error: %s", err.Error())
	}
	observability.LoginsTotal.WithLabelValues(reason).Inc()

	q := u.Query()
	q.Set("error", reason)
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}
