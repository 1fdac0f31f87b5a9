package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation error(s):\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// HasErrors returns true if there are any validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate performs comprehensive validation on the configuration
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateRedis()...)
	errors = append(errors, c.validateAnthropic()...)
	errors = append(errors, c.validateAuth()...)
	errors = append(errors, c.validateServer()...)
	errors = append(errors, c.validateGateway()...)
	errors = append(errors, c.validateLog()...)

	if errors.HasErrors() {
		return errors
	}

	return nil
}

func (c *Config) validateStore() []ValidationError {
	var errors []ValidationError

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "Store.DatabaseURL",
				Message: "DATABASE_URL is required for the postgres fact store",
			})
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errors = append(errors, ValidationError{
				Field:   "Store.SQLitePath",
				Message: "SQLITE_PATH is required for the sqlite fact store",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "Store.Driver",
			Message: fmt.Sprintf("invalid store driver: %s (must be 'postgres' or 'sqlite')", c.Store.Driver),
		})
	}

	if c.Store.MaxConns <= 0 {
		errors = append(errors, ValidationError{
			Field:   "Store.MaxConns",
			Message: "max connections must be positive",
		})
	}

	if c.Store.MinConns < 0 || c.Store.MinConns > c.Store.MaxConns {
		errors = append(errors, ValidationError{
			Field:   "Store.MinConns",
			Message: "min connections must be between 0 and max connections",
		})
	}

	if c.Store.MaxRows <= 0 {
		errors = append(errors, ValidationError{
			Field:   "Store.MaxRows",
			Message: "max rows must be positive",
		})
	}

	if c.Store.StatementTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "Store.StatementTimeout",
			Message: "statement timeout must be positive",
		})
	}

	return errors
}

func (c *Config) validateRedis() []ValidationError {
	var errors []ValidationError

	if c.Redis.CacheTTL < 0 {
		errors = append(errors, ValidationError{
			Field:   "Redis.CacheTTL",
			Message: "cache TTL must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateAnthropic() []ValidationError {
	var errors []ValidationError

	if c.Anthropic.APIKey == "" {
		errors = append(errors, ValidationError{
			Field:   "Anthropic.APIKey",
			Message: "Anthropic API key is required",
		})
	}

	if c.Anthropic.Model == "" {
		errors = append(errors, ValidationError{
			Field:   "Anthropic.Model",
			Message: "Claude model is required",
		})
	}

	if c.Anthropic.MaxTokens <= 0 {
		errors = append(errors, ValidationError{
			Field:   "Anthropic.MaxTokens",
			Message: "max tokens must be positive",
		})
	}

	if c.Anthropic.Temperature < 0 || c.Anthropic.Temperature > 1 {
		errors = append(errors, ValidationError{
			Field:   "Anthropic.Temperature",
			Message: "temperature must be between 0 and 1",
		})
	}

	return errors
}

func (c *Config) validateAuth() []ValidationError {
	var errors []ValidationError

	if c.Auth.JWTSecret == "" {
		errors = append(errors, ValidationError{
			Field:   "Auth.JWTSecret",
			Message: "JWT secret is required",
		})
	}

	if c.Auth.TenantClaim == "" {
		errors = append(errors, ValidationError{
			Field:   "Auth.TenantClaim",
			Message: "tenant claim name is required",
		})
	}

	if c.Auth.RateLimitPerMinute < 0 {
		errors = append(errors, ValidationError{
			Field:   "Auth.RateLimitPerMinute",
			Message: "rate limit must be non-negative",
		})
	}

	if c.Auth.RateLimitPerMinute > 0 && c.Auth.RateLimitBurst <= 0 {
		errors = append(errors, ValidationError{
			Field:   "Auth.RateLimitBurst",
			Message: "rate limit burst must be positive when rate limiting is enabled",
		})
	}

	return errors
}

func (c *Config) validateServer() []ValidationError {
	var errors []ValidationError

	if c.Server.Port == "" {
		errors = append(errors, ValidationError{
			Field:   "Server.Port",
			Message: "server port is required",
		})
	}

	validModes := []string{"debug", "release", "test"}
	isValid := false
	for _, mode := range validModes {
		if c.Server.GinMode == mode {
			isValid = true
			break
		}
	}
	if !isValid {
		errors = append(errors, ValidationError{
			Field:   "Server.GinMode",
			Message: fmt.Sprintf("invalid gin mode: %s (must be 'debug', 'release', or 'test')", c.Server.GinMode),
		})
	}

	return errors
}

func (c *Config) validateGateway() []ValidationError {
	var errors []ValidationError

	if c.Gateway.TranslateTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "Gateway.TranslateTimeout",
			Message: "translate timeout must be positive",
		})
	}

	if c.Gateway.ExecuteTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "Gateway.ExecuteTimeout",
			Message: "execute timeout must be positive",
		})
	}

	if c.Gateway.MaxQuestionChars <= 0 {
		errors = append(errors, ValidationError{
			Field:   "Gateway.MaxQuestionChars",
			Message: "max question length must be positive",
		})
	}

	return errors
}

func (c *Config) validateLog() []ValidationError {
	var errors []ValidationError

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, ValidationError{
			Field:   "Log.Level",
			Message: fmt.Sprintf("invalid log level: %s", c.Log.Level),
		})
	}

	if c.Log.Format != "json" && c.Log.Format != "console" {
		errors = append(errors, ValidationError{
			Field:   "Log.Format",
			Message: fmt.Sprintf("invalid log format: %s (must be 'json' or 'console')", c.Log.Format),
		})
	}

	return errors
}

// ValidateProduction performs additional validation for production environments
// It checks for insecure default values that should not be used in production
func (c *Config) ValidateProduction() error {
	var errors ValidationErrors

	insecureJWTSecrets := []string{
		"",
		"your-secret-key-change-in-production",
		"change-this-in-production",
		"secret",
		"jwt-secret",
	}
	for _, insecure := range insecureJWTSecrets {
		if c.Auth.JWTSecret == insecure {
			errors = append(errors, ValidationError{
				Field:   "Auth.JWTSecret",
				Message: "production deployment must not use default or insecure JWT secret",
			})
			break
		}
	}

	if len(c.Auth.JWTSecret) < 32 {
		errors = append(errors, ValidationError{
			Field:   "Auth.JWTSecret",
			Message: "JWT secret should be at least 32 characters for production use",
		})
	}

	if c.Store.Driver != "postgres" {
		errors = append(errors, ValidationError{
			Field:   "Store.Driver",
			Message: "production deployment must use the postgres fact store",
		})
	}

	if strings.Contains(c.Store.DatabaseURL, "sslmode=disable") {
		errors = append(errors, ValidationError{
			Field:   "Store.DatabaseURL",
			Message: "production deployment must not disable TLS to the fact store",
		})
	}

	if c.Anthropic.BaseURL != "" {
		errors = append(errors, ValidationError{
			Field:   "Anthropic.BaseURL",
			Message: "production deployment must use the default Anthropic endpoint",
		})
	}

	if c.Server.GinMode != "release" {
		errors = append(errors, ValidationError{
			Field:   "Server.GinMode",
			Message: "production deployment should use 'release' mode",
		})
	}

	if c.Auth.RateLimitPerMinute == 0 {
		errors = append(errors, ValidationError{
			Field:   "Auth.RateLimitPerMinute",
			Message: "production deployment should rate limit questions",
		})
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// IsProduction determines if the current environment is production
// based on the GinMode setting
func (c *Config) IsProduction() bool {
	return c.Server.GinMode == "release"
}

// ValidateWithContext validates configuration and runs production checks if appropriate
func (c *Config) ValidateWithContext() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.IsProduction() {
		if err := c.ValidateProduction(); err != nil {
			return fmt.Errorf("production validation failed: %w", err)
		}
	}

	return nil
}
