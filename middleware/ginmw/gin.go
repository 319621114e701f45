// Package ginmw provides Gin HTTP middleware for the trust boundary.
//
// RequestID implements the correlation tagger: every request leaves with
// an X-Request-Id, caller-supplied or freshly generated. Auth verifies
// bearer tokens and answers expired ones with the machine-readable
// TOKEN_EXPIRED code that the request pipeline treats as renewable.
package ginmw

import (
	"errors"
	"net/http"
	"strings"

	authkit "github.com/atlas-pt/authkit-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Context keys for storing boundary data in gin.Context.
const (
	KeyRequestID = "authkit_request_id"
	KeyUserID    = "authkit_user_id"
	KeyTenantID  = "authkit_tenant_id"
	KeyClaims    = "authkit_claims"
)

// RequestID returns Gin middleware that tags every request with a
// correlation identifier. A non-empty inbound X-Request-Id is reused
// verbatim (upstream internal callers are trusted); otherwise a fresh
// UUID is generated. The identifier is stored in the request context and
// always echoed on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(authkit.HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(KeyRequestID, id)
		c.Request = c.Request.WithContext(authkit.WithRequestID(c.Request.Context(), id))
		c.Writer.Header().Set(authkit.HeaderRequestID, id)

		c.Next()
	}
}

// AuthOption configures Auth middleware behavior.
type AuthOption func(*authConfig)

type authConfig struct {
	excludedPaths map[string]bool
}

// WithExcludedPaths sets paths that skip authentication (e.g. health checks).
func WithExcludedPaths(paths ...string) AuthOption {
	return func(cfg *authConfig) {
		for _, p := range paths {
			cfg.excludedPaths[p] = true
		}
	}
}

// Auth returns Gin middleware that verifies bearer tokens via the given
// verifier. An expired token gets 401 with code TOKEN_EXPIRED so clients
// can renew; any other failure gets a plain 401 that clients must treat
// as terminal.
func Auth(verifier authkit.TokenVerifier, opts ...AuthOption) gin.HandlerFunc {
	cfg := &authConfig{excludedPaths: make(map[string]bool)}
	for _, o := range opts {
		o(cfg)
	}

	return func(c *gin.Context) {
		if cfg.excludedPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		tokenStr := extractBearerToken(c.Request)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization token"})
			return
		}

		if verifier == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token verifier not configured"})
			return
		}

		claims, err := verifier.Verify(c.Request.Context(), tokenStr)
		if err != nil {
			if errors.Is(err, authkit.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "token expired",
					"code":  authkit.CodeTokenExpired,
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(KeyClaims, claims)
		c.Set(KeyUserID, claims.Subject)
		c.Set(KeyTenantID, claims.TenantID)

		ctx := authkit.WithClaims(c.Request.Context(), claims)
		ctx = authkit.WithUserID(ctx, claims.Subject)
		ctx = authkit.WithTenantID(ctx, claims.TenantID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// --- Context helpers ---

// GetRequestID returns the correlation identifier from the Gin context.
func GetRequestID(c *gin.Context) string {
	v, _ := c.Get(KeyRequestID)
	s, _ := v.(string)
	return s
}

// GetUserID returns the authenticated user ID from the Gin context.
func GetUserID(c *gin.Context) string {
	v, _ := c.Get(KeyUserID)
	s, _ := v.(string)
	return s
}

// GetTenantID returns the tenant ID from the Gin context.
func GetTenantID(c *gin.Context) string {
	v, _ := c.Get(KeyTenantID)
	s, _ := v.(string)
	return s
}

// GetClaims returns the full claims from the Gin context.
func GetClaims(c *gin.Context) *authkit.Claims {
	v, _ := c.Get(KeyClaims)
	cl, _ := v.(*authkit.Claims)
	return cl
}

// --- internal helpers ---

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
