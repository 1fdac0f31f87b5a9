// internal/auth/manager.go
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/profitpulse/query-gateway/internal/config"
	"github.com/profitpulse/query-gateway/internal/scope"
)

var (
	ErrMissingSecret = errors.New("auth: JWT secret is required")
	ErrMissingTenant = errors.New("auth: token carries no tenant")
	ErrInvalidTenant = errors.New("auth: token tenant is not a valid identifier")
)

// Identity is the verified caller of one request
type Identity struct {
	TenantID  string
	TokenID   string
	ExpiresAt time.Time
}

// Verifier checks HS256 bearer tokens issued by the login service and
// extracts the tenant identifier from the configured claim. Verifier holds
// no mutable state and is safe for concurrent use.
type Verifier struct {
	secret      []byte
	issuer      string
	tenantClaim string
	parser      *jwt.Parser
	now         func() time.Time
}

// NewVerifier creates a verifier from the auth configuration
func NewVerifier(cfg config.AuthConfig) (*Verifier, error) {
	if cfg.JWTSecret == "" {
		return nil, ErrMissingSecret
	}

	claim := cfg.TenantClaim
	if claim == "" {
		claim = "sub"
	}

	v := &Verifier{
		secret:      []byte(cfg.JWTSecret),
		issuer:      cfg.JWTIssuer,
		tenantClaim: claim,
		now:         time.Now,
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithTimeFunc(func() time.Time { return v.now() }),
	}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}
	v.parser = jwt.NewParser(opts...)

	return v, nil
}

// Verify validates the token and returns the caller identity
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	claims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	raw, ok := claims[v.tenantClaim]
	if !ok {
		return nil, ErrMissingTenant
	}
	tenantID, ok := raw.(string)
	if !ok || tenantID == "" {
		return nil, ErrMissingTenant
	}
	if !scope.ValidTenantID(tenantID) {
		return nil, ErrInvalidTenant
	}

	identity := &Identity{TenantID: tenantID}
	if jti, ok := claims["jti"].(string); ok {
		identity.TokenID = jti
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		identity.ExpiresAt = exp.Time
	}
	return identity, nil
}

// Issue signs a token for tenantID. The gateway never logs users in; this
// exists for local use and tests.
func (v *Verifier) Issue(tenantID string, ttl time.Duration) (string, error) {
	if !scope.ValidTenantID(tenantID) {
		return "", ErrInvalidTenant
	}

	now := v.now()
	claims := jwt.MapClaims{
		v.tenantClaim: tenantID,
		"jti":         uuid.New().String(),
		"iat":         now.Unix(),
		"exp":         now.Add(ttl).Unix(),
	}
	if v.issuer != "" {
		claims["iss"] = v.issuer
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
