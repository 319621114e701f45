// Package httpmw provides plain net/http middleware for the trust
// boundary, for services that do not use Gin.
package httpmw

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	authkit "github.com/atlas-pt/authkit-go"
	"github.com/google/uuid"
)

// RequestID wraps next so every request carries a correlation identifier:
// a non-empty inbound X-Request-Id is reused verbatim, otherwise a fresh
// UUID is generated. The identifier is placed in the request context and
// echoed on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(authkit.HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(authkit.HeaderRequestID, id)
		ctx := authkit.WithRequestID(r.Context(), id)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Auth wraps next with bearer token verification. Expired tokens are
// answered with 401 and the TOKEN_EXPIRED code; anything else invalid
// gets a plain 401.
func Auth(verifier authkit.TokenVerifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractBearerToken(r)
		if tokenStr == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing authorization token"})
			return
		}

		claims, err := verifier.Verify(r.Context(), tokenStr)
		if err != nil {
			if errors.Is(err, authkit.ErrTokenExpired) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"error": "token expired",
					"code":  authkit.CodeTokenExpired,
				})
				return
			}
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}

		ctx := authkit.WithClaims(r.Context(), claims)
		ctx = authkit.WithUserID(ctx, claims.Subject)
		ctx = authkit.WithTenantID(ctx, claims.TenantID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
