package models

import "fmt"

// IsNotFoundError returns whether an error represents a "not found" error.
func IsNotFoundError(err error) bool {
	switch err.(type) {
	case UserNotFoundError, *UserNotFoundError:
		return true
	case RefreshTokenNotFoundError, *RefreshTokenNotFoundError:
		return true
	case PendingAuthorizationNotFoundError, *PendingAuthorizationNotFoundError:
		return true
	}
	return false
}

// UserNotFoundError represents when a user is not found.
type UserNotFoundError struct{}

func (e UserNotFoundError) Error() string {
	return "User not found"
}

// RefreshTokenNotFoundError is returned for unknown, revoked and expired
// refresh tokens alike.
type RefreshTokenNotFoundError struct{}

func (e RefreshTokenNotFoundError) Error() string {
	return "Refresh Token not found"
}

// PendingAuthorizationNotFoundError is returned when a state was never
// issued or has already been consumed.
type PendingAuthorizationNotFoundError struct{}

func (e PendingAuthorizationNotFoundError) Error() string {
	return "Pending authorization not found"
}

// ExpiredFlowError is returned when a pending authorization outlived its
// ttl before the callback arrived.
type ExpiredFlowError struct{}

func (e ExpiredFlowError) Error() string {
	return "Authorization flow expired"
}

// ConflictError is returned when a unique key is already taken.
type ConflictError struct {
	Resource string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s already exists", e.Resource)
}
