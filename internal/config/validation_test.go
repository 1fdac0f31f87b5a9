package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:           "postgres",
			DatabaseURL:      "postgres://readonly@db/profitpulse?sslmode=require",
			MaxConns:         10,
			MinConns:         2,
			MaxRows:          1000,
			StatementTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{CacheTTL: 5 * time.Minute},
		Anthropic: AnthropicConfig{
			APIKey:    "sk-ant-test",
			Model:     "claude-sonnet-4-5-20250929",
			MaxTokens: 1024,
		},
		Auth: AuthConfig{
			JWTSecret:          "test-secret-key",
			TenantClaim:        "sub",
			RateLimitPerMinute: 30,
			RateLimitBurst:     5,
		},
		Server:  ServerConfig{Port: "8080", GinMode: "debug"},
		Gateway: GatewayConfig{TranslateTimeout: 30 * time.Second, ExecuteTimeout: 15 * time.Second, MaxQuestionChars: 1000},
		Log:     LogConfig{Level: "info", Format: "json"},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"valid config", func(c *Config) {}, ""},
		{"sqlite driver without database url", func(c *Config) {
			c.Store.Driver = "sqlite"
			c.Store.DatabaseURL = ""
			c.Store.SQLitePath = "local.db"
		}, ""},
		{"postgres without url", func(c *Config) { c.Store.DatabaseURL = "" }, "Store.DatabaseURL"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, "Store.Driver"},
		{"min conns above max", func(c *Config) { c.Store.MinConns = 20 }, "Store.MinConns"},
		{"zero max rows", func(c *Config) { c.Store.MaxRows = 0 }, "Store.MaxRows"},
		{"negative cache ttl", func(c *Config) { c.Redis.CacheTTL = -time.Second }, "Redis.CacheTTL"},
		{"missing api key", func(c *Config) { c.Anthropic.APIKey = "" }, "Anthropic.APIKey"},
		{"temperature out of range", func(c *Config) { c.Anthropic.Temperature = 1.5 }, "Anthropic.Temperature"},
		{"missing jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }, "Auth.JWTSecret"},
		{"rate limit without burst", func(c *Config) { c.Auth.RateLimitBurst = 0 }, "Auth.RateLimitBurst"},
		{"invalid gin mode", func(c *Config) { c.Server.GinMode = "prod" }, "Server.GinMode"},
		{"zero translate timeout", func(c *Config) { c.Gateway.TranslateTimeout = 0 }, "Gateway.TranslateTimeout"},
		{"zero execute timeout", func(c *Config) { c.Gateway.ExecuteTimeout = 0 }, "Gateway.ExecuteTimeout"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "Log.Format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected no validation errors, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected validation error for %s", tt.wantField)
			}
			if !strings.Contains(err.Error(), tt.wantField) {
				t.Errorf("expected error mentioning %s, got: %v", tt.wantField, err)
			}
		})
	}
}

func TestProductionValidation(t *testing.T) {
	t.Run("secure config passes", func(t *testing.T) {
		cfg := validConfig()
		cfg.Auth.JWTSecret = strings.Repeat("k", 40)
		cfg.Server.GinMode = "release"
		if err := cfg.ValidateProduction(); err != nil {
			t.Errorf("expected no production errors, got: %v", err)
		}
	})

	t.Run("insecure config reports every problem", func(t *testing.T) {
		cfg := validConfig()
		cfg.Auth.JWTSecret = "secret"
		cfg.Store.Driver = "sqlite"
		cfg.Store.DatabaseURL = "postgres://db?sslmode=disable"
		cfg.Auth.RateLimitPerMinute = 0

		err := cfg.ValidateProduction()
		if err == nil {
			t.Fatal("expected production validation errors")
		}
		errs, ok := err.(ValidationErrors)
		if !ok {
			t.Fatalf("expected ValidationErrors, got %T", err)
		}
		for _, field := range []string{"Auth.JWTSecret", "Store.Driver", "Store.DatabaseURL", "Server.GinMode", "Auth.RateLimitPerMinute"} {
			if !strings.Contains(errs.Error(), field) {
				t.Errorf("expected %s in %v", field, errs)
			}
		}
	})
}

func TestValidateWithContext(t *testing.T) {
	cfg := validConfig()
	if cfg.IsProduction() {
		t.Fatal("debug mode should not be production")
	}
	if err := cfg.ValidateWithContext(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.Server.GinMode = "release"
	err := cfg.ValidateWithContext()
	if err == nil || !strings.Contains(err.Error(), "production validation failed") {
		t.Errorf("expected production validation failure, got %v", err)
	}
}
