package handlers

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey type for context keys
type ContextKey string

// ContextKeyUserID carries the authenticated user id set by the router.
const ContextKeyUserID ContextKey = "user_id"

// UserID extracts the authenticated user id from request context.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	if id, ok := ctx.Value(ContextKeyUserID).(uuid.UUID); ok {
		return id, true
	}
	return uuid.Nil, false
}
