package config

import (
	"context"
	"os"
)

// EnvProvider retrieves secrets from environment variables. With a prefix,
// GATEWAY_JWT_SECRET wins over JWT_SECRET.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates a new environment variable provider
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{prefix: "GATEWAY_"}
}

// GetSecret retrieves a secret from environment variables
func (e *EnvProvider) GetSecret(ctx context.Context, key string) (string, error) {
	if e.prefix != "" {
		if v := os.Getenv(e.prefix + key); v != "" {
			return v, nil
		}
	}
	return os.Getenv(key), nil
}

// Name returns the provider name
func (e *EnvProvider) Name() string {
	return "env"
}

// IsAvailable always returns true as env vars are always available
func (e *EnvProvider) IsAvailable(ctx context.Context) bool {
	return true
}
