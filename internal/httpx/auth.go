package httpx

import (
	"context"
	"net/http"
	"strings"
)

// HeaderUserID carries the caller authenticated by the gateway.
const HeaderUserID = "X-User-ID"

type ctxKey struct{}

func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if id == "" {
			writeError(w, http.StatusUnauthorized, CodeUnauthenticated, "missing "+HeaderUserID)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func userID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
