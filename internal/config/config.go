package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds all application configuration
type Config struct {
	// Fact store the gateway reads tenant data from
	Store StoreConfig

	// Gateway-owned database holding the audit log and example corpus
	AppDatabase AppDatabaseConfig

	// Redis outcome cache
	Redis RedisConfig

	// Anthropic translator
	Anthropic AnthropicConfig

	// Authentication configuration
	Auth AuthConfig

	// Server configuration
	Server ServerConfig

	// Per-question limits
	Gateway GatewayConfig

	Log LogConfig
}

// StoreConfig configures the fact store accessor
type StoreConfig struct {
	Driver           string // "postgres" or "sqlite"
	DatabaseURL      string
	SQLitePath       string
	MaxConns         int
	MinConns         int
	MaxRows          int
	StatementTimeout time.Duration
}

// AppDatabaseConfig configures the write-capable gateway database.
// An empty URL disables the audit log and the example store.
type AppDatabaseConfig struct {
	URL            string
	MigrationsPath string
}

// Enabled reports whether a gateway database is configured
func (a AppDatabaseConfig) Enabled() bool {
	return a.URL != ""
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string
	CacheTTL time.Duration
}

// Enabled reports whether the outcome cache is configured
func (r RedisConfig) Enabled() bool {
	return r.URL != "" && r.CacheTTL > 0
}

// AnthropicConfig holds Anthropic API configuration
type AnthropicConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	BaseURL     string
}

// AuthConfig holds authentication and rate limit configuration
type AuthConfig struct {
	JWTSecret          string
	JWTIssuer          string
	TenantClaim        string
	RateLimitPerMinute int
	RateLimitBurst     int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	GinMode         string
	ShutdownTimeout time.Duration
}

// GatewayConfig bounds the two blocking stages of a question
type GatewayConfig struct {
	TranslateTimeout time.Duration
	ExecuteTimeout   time.Duration
	MaxQuestionChars int
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string
	Format string
}

// Loader handles loading configuration from various sources
type Loader struct {
	provider SecretProvider
}

// NewLoader creates a new configuration loader with the given secret provider
func NewLoader(provider SecretProvider) *Loader {
	return &Loader{
		provider: provider,
	}
}

// NewDefaultLoader creates a loader with the default provider chain:
// 1. Kubernetes secrets (if available)
// 2. File-based secrets (if available)
// 3. Environment variables
// 4. The YAML config file (if present)
func NewDefaultLoader(configFile string) *Loader {
	providers := []SecretProvider{
		NewK8sProvider("", ""),
		NewFileProvider("/var/secrets"),
		NewEnvProvider(),
		NewViperProvider(configFile),
	}

	return &Loader{
		provider: NewChainProvider(providers...),
	}
}

// Load loads the complete configuration
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}

	cfg.Store = StoreConfig{
		Driver:           strings.ToLower(l.getString(ctx, "STORE_DRIVER", "postgres")),
		DatabaseURL:      l.getString(ctx, "DATABASE_URL", ""),
		SQLitePath:       l.getString(ctx, "SQLITE_PATH", "profitpulse.db"),
		MaxConns:         l.getInt(ctx, "STORE_MAX_CONNS", 10),
		MinConns:         l.getInt(ctx, "STORE_MIN_CONNS", 2),
		MaxRows:          l.getInt(ctx, "MAX_ROWS", 1000),
		StatementTimeout: l.getDuration(ctx, "STATEMENT_TIMEOUT", 10*time.Second),
	}

	cfg.AppDatabase = AppDatabaseConfig{
		URL:            l.getString(ctx, "APP_DATABASE_URL", ""),
		MigrationsPath: l.getString(ctx, "MIGRATIONS_PATH", ""),
	}

	cfg.Redis = RedisConfig{
		URL:      l.getString(ctx, "REDIS_URL", ""),
		CacheTTL: l.getDuration(ctx, "CACHE_TTL", 5*time.Minute),
	}

	cfg.Anthropic = AnthropicConfig{
		APIKey:      l.getString(ctx, "ANTHROPIC_API_KEY", ""),
		Model:       l.getString(ctx, "CLAUDE_MODEL", "claude-sonnet-4-5-20250929"),
		MaxTokens:   l.getInt(ctx, "CLAUDE_MAX_TOKENS", 1024),
		Temperature: l.getFloat(ctx, "CLAUDE_TEMPERATURE", 0),
		BaseURL:     l.getString(ctx, "ANTHROPIC_BASE_URL", ""),
	}

	cfg.Auth = AuthConfig{
		JWTSecret:          l.getString(ctx, "JWT_SECRET", ""),
		JWTIssuer:          l.getString(ctx, "JWT_ISSUER", ""),
		TenantClaim:        l.getString(ctx, "JWT_TENANT_CLAIM", "sub"),
		RateLimitPerMinute: l.getInt(ctx, "RATE_LIMIT_PER_MINUTE", 30),
		RateLimitBurst:     l.getInt(ctx, "RATE_LIMIT_BURST", 5),
	}

	cfg.Server = ServerConfig{
		Port:            l.getString(ctx, "SERVER_PORT", "8080"),
		GinMode:         l.getString(ctx, "GIN_MODE", "debug"),
		ShutdownTimeout: l.getDuration(ctx, "SHUTDOWN_TIMEOUT", 15*time.Second),
	}

	cfg.Gateway = GatewayConfig{
		TranslateTimeout: l.getDuration(ctx, "TRANSLATE_TIMEOUT", 30*time.Second),
		ExecuteTimeout:   l.getDuration(ctx, "EXECUTE_TIMEOUT", 15*time.Second),
		MaxQuestionChars: l.getInt(ctx, "MAX_QUESTION_CHARS", 1000),
	}

	cfg.Log = LogConfig{
		Level:  l.getString(ctx, "LOG_LEVEL", "info"),
		Format: l.getString(ctx, "LOG_FORMAT", "json"),
	}

	return cfg, nil
}

// Helper methods for retrieving and parsing configuration values

func (l *Loader) getString(ctx context.Context, key, defaultValue string) string {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}
	return value
}

func (l *Loader) getInt(ctx context.Context, key string, defaultValue int) int {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}

func (l *Loader) getFloat(ctx context.Context, key string, defaultValue float64) float64 {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func (l *Loader) getDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

// MustLoad loads configuration and panics on error
// Useful for application startup
func (l *Loader) MustLoad(ctx context.Context) *Config {
	cfg, err := l.Load(ctx)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
