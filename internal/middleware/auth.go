package middleware

import (
	"net/http"

	"github.com/ponraviraj/gemini-chat/internal/auth"
)

// RequireAuth validates the session cookie and injects the session into
// the request context.
func RequireAuth(sessions auth.Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(auth.SessionCookie)
			if err != nil {
				http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
				return
			}

			sess, err := sessions.Get(r.Context(), cookie.Value)
			if err != nil || sess == nil {
				http.Error(w, `{"error":"session expired"}`, http.StatusUnauthorized)
				return
			}

			ctx := auth.NewContext(r.Context(), cookie.Value, *sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
