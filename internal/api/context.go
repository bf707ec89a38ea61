package api

import (
	"context"

	"github.com/gofrs/uuid"
)

type contextKey string

func (c contextKey) String() string {
	return "auth api context key " + string(c)
}

const (
	userIDKey = contextKey("user_id")
)

// withUserID adds the authenticated user id to the context.
func withUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// getUserID reads the authenticated user id from the context.
func getUserID(ctx context.Context) uuid.UUID {
	obj := ctx.Value(userIDKey)
	if obj == nil {
		return uuid.Nil
	}
	return obj.(uuid.UUID)
}
