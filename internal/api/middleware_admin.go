package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"formrelay/internal/models"

	"github.com/gorilla/mux"
)

// adminTokenMiddleware requires "Authorization: Bearer <token>" on operator
// endpoints.
func adminTokenMiddleware(token string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isValidAdminToken(r.Header.Get("Authorization"), token) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="formrelay"`)
				writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse(models.MessageUnauthorized))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isValidAdminToken compares in constant time. An empty configured token
// never matches.
func isValidAdminToken(header, token string) bool {
	const prefix = "Bearer "
	if token == "" || !strings.HasPrefix(header, prefix) {
		return false
	}
	presented := header[len(prefix):]
	return subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1
}
