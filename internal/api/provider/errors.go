package provider

import (
	"fmt"
	"net/http"
)

// ExchangeError is returned when the provider refuses an authorization code
// or cannot be reached. Body is the raw response and must not leave the
// server.
type ExchangeError struct {
	Status int
	Body   string
	Err    error
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token exchange failed with status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("token exchange failed with status %d: %s", e.Status, e.Body)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// ProfileFetchError is returned when the user profile cannot be loaded with
// a freshly issued provider access token.
type ProfileFetchError struct {
	Status int
	Err    error
}

func (e *ProfileFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("profile fetch failed with status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("profile fetch failed with status %d", e.Status)
}

func (e *ProfileFetchError) Unwrap() error {
	return e.Err
}

// retryable reports whether another attempt could succeed.
func (e *ProfileFetchError) retryable() bool {
	return e.Status >= http.StatusInternalServerError
}
