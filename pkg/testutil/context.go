package testutil

import (
	"net/http"

	id "minimizer/pkg/domain"
	"minimizer/pkg/requestcontext"
)

// WithActor marks the request as authenticated by username, the way
// auth.RequireAuth does.
func WithActor(req *http.Request, username string) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), id.Username(username))
	return req.WithContext(ctx)
}

// WithAdmin marks the request as authenticated by an admin.
func WithAdmin(req *http.Request, username string) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), id.Username(username))
	ctx = requestcontext.WithAdmin(ctx, true)
	return req.WithContext(ctx)
}
