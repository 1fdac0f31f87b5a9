// internal/auth/middleware.go
package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/profitpulse/query-gateway/internal/errors"
	"github.com/profitpulse/query-gateway/internal/observability"
)

// TenantContextKey is the gin context key holding the verified tenant id
const TenantContextKey = "tenant_id"

// TokenVerifier verifies bearer tokens
type TokenVerifier interface {
	Verify(tokenString string) (*Identity, error)
}

// Middleware authenticates requests and applies the per-tenant rate limit.
// The tenant id only ever comes from a verified token.
type Middleware struct {
	verifier TokenVerifier
	limiter  *RateLimiter
	logger   *observability.Logger
}

// NewMiddleware creates the middleware. limiter may be nil.
func NewMiddleware(verifier TokenVerifier, limiter *RateLimiter) *Middleware {
	return &Middleware{
		verifier: verifier,
		limiter:  limiter,
		logger:   observability.NewLogger("auth"),
	}
}

// Handler returns the gin handler
func (m *Middleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abort(c, http.StatusUnauthorized, errors.NewNotAuthenticatedError())
			return
		}

		identity, err := m.verifier.Verify(tokenString)
		if err != nil {
			m.logger.Warn(c.Request.Context(), "Rejected bearer token", map[string]interface{}{
				"error": err.Error(),
				"ip":    c.ClientIP(),
			})
			abort(c, http.StatusUnauthorized, errors.NewInvalidTokenError(err))
			return
		}

		if m.limiter != nil && !m.limiter.Allow(identity.TenantID) {
			c.Header("Retry-After", "60")
			abort(c, http.StatusTooManyRequests, errors.NewRateLimitedError(m.limiter.PerMinute()))
			return
		}

		c.Set(TenantContextKey, identity.TenantID)
		c.Request = c.Request.WithContext(observability.WithTenantID(c.Request.Context(), identity.TenantID))

		c.Next()
	}
}

// TenantID returns the verified tenant of the request
func TenantID(c *gin.Context) (string, bool) {
	value, exists := c.Get(TenantContextKey)
	if !exists {
		return "", false
	}

	tenantID, ok := value.(string)
	return tenantID, ok && tenantID != ""
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func abort(c *gin.Context, status int, err *errors.EnhancedError) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":       err.Code,
			"message":    err.Message,
			"details":    err.Details,
			"suggestion": err.Suggestion,
		},
	})
}
