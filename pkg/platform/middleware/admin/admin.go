package admin

import (
	"log/slog"
	"net/http"

	request "minimizer/pkg/platform/middleware/request"
	"minimizer/pkg/requestcontext"
)

// RequireAdmin rejects authenticated users without the admin flag. It must
// run after auth.RequireAuth.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !requestcontext.IsAdmin(ctx) {
				logger.WarnContext(ctx, "admin required",
					"actor", requestcontext.Actor(ctx),
					"request_id", request.GetRequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","error_description":"admin privileges required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
