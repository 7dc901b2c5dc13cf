package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sergiecode/gemini-chat-backend/internal/auth"
	"github.com/sergiecode/gemini-chat-backend/internal/model/user"
	"github.com/sergiecode/gemini-chat-backend/pkg/utils"
)

type contextKey string

const userKey contextKey = "user"

// Auth verifies the bearer token on each request and stores the resolved
// user in the request context. Websocket clients cannot set headers from
// the browser API, so a "token" query parameter is accepted as fallback.
func Auth(provider auth.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				utils.RespondError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			u, err := provider.Verify(r.Context(), token)
			if err != nil {
				utils.RespondError(w, http.StatusUnauthorized, "invalid credentials")
				return
			}

			ctx := context.WithValue(r.Context(), userKey, u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFrom returns the authenticated user stored by Auth, if any.
func UserFrom(ctx context.Context) (user.User, bool) {
	u, ok := ctx.Value(userKey).(user.User)
	return u, ok
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
