package httputil

import (
	"context"
	"net/http"
)

// ctxKey is unexported so nothing outside this package can collide
// with (or spoof) the values stored under it.
type ctxKey int

const userIDCtxKey ctxKey = iota

// WithUserID returns a shallow copy of the request whose context
// carries the authenticated user's ID.
func WithUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userIDCtxKey, userID))
}

// GetUserID returns the authenticated user's ID, or "" when the
// request never passed the auth middleware.
func GetUserID(r *http.Request) string {
	id, _ := r.Context().Value(userIDCtxKey).(string)
	return id
}
