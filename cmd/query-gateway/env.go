package main

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/profitpulse/query-gateway/internal/audit"
	"github.com/profitpulse/query-gateway/internal/cache"
	"github.com/profitpulse/query-gateway/internal/config"
	"github.com/profitpulse/query-gateway/internal/examples"
	"github.com/profitpulse/query-gateway/internal/factstore"
	"github.com/profitpulse/query-gateway/internal/gateway"
	"github.com/profitpulse/query-gateway/internal/observability"
	"github.com/profitpulse/query-gateway/internal/safety"
	"github.com/profitpulse/query-gateway/internal/scope"
	"github.com/profitpulse/query-gateway/internal/translator"
)

// environment holds everything a question needs, built once per process
type environment struct {
	Asker    gateway.Asker
	Gateway  *gateway.Gateway
	Breaker  *translator.CircuitBreaker
	Store    factstore.Accessor
	Recorder *audit.Recorder
	Cache    *cache.Cache
	Health   *observability.HealthChecker

	closers []func()
}

// Close releases connections in reverse order of creation
func (e *environment) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func (e *environment) onClose(fn func()) {
	e.closers = append(e.closers, fn)
}

func initEnvironment(ctx context.Context, cfg *config.Config) (*environment, error) {
	env := &environment{Health: observability.NewHealthChecker()}

	store, err := openFactStore(ctx, cfg.Store, env)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Store = store
	env.Health.Register("fact_store", observability.FactStoreHealthCheck(store.Ping))

	var source examples.Source
	if cfg.AppDatabase.Enabled() {
		exampleStore, err := examples.NewPostgresStore(cfg.AppDatabase.URL)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.onClose(func() { _ = exampleStore.Close() })
		source = exampleStore
	} else {
		source = examples.NewStaticSource(examples.Seed().Examples)
	}

	claude, err := translator.NewClaude(cfg.Anthropic, examples.Seed(), source)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Breaker = translator.NewCircuitBreaker(claude, "anthropic", translator.DefaultCircuitBreakerConfig)
	env.Health.Register("translator", observability.TranslatorHealthCheck(env.Breaker.State))

	validator := safety.Chain{safety.NewKeywordValidator()}
	env.Gateway = gateway.New(env.Breaker, validator, scope.NewRewriter(), store, gateway.Config{
		TranslateTimeout: cfg.Gateway.TranslateTimeout,
		ExecuteTimeout:   cfg.Gateway.ExecuteTimeout,
		MaxQuestionChars: cfg.Gateway.MaxQuestionChars,
	})
	env.Asker = env.Gateway

	if cfg.AppDatabase.Enabled() {
		pool, err := pgxpool.New(ctx, cfg.AppDatabase.URL)
		if err != nil {
			env.Close()
			return nil, eris.Wrap(err, "open audit database")
		}
		env.onClose(pool.Close)

		env.Recorder = audit.NewRecorder(pool)
		env.Gateway.SetAuditSink(env.Recorder)
		env.Health.Register("audit", observability.AuditHealthCheck(env.Recorder.Ping))
	}

	if cfg.Redis.Enabled() {
		client, err := newRedisClient(cfg.Redis)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.onClose(func() { _ = client.Close() })

		env.Cache = cache.New(env.Gateway, client, cfg.Redis.CacheTTL)
		env.Asker = env.Cache
		env.Health.Register("redis", observability.RedisHealthCheck(env.Cache.Ping))
	}

	zap.L().Info("gateway environment ready",
		zap.String("store_driver", cfg.Store.Driver),
		zap.Bool("audit", env.Recorder != nil),
		zap.Bool("cache", env.Cache != nil),
	)
	return env, nil
}

func openFactStore(ctx context.Context, cfg config.StoreConfig, env *environment) (factstore.Accessor, error) {
	switch cfg.Driver {
	case "sqlite":
		store, err := factstore.NewSQLite(cfg.SQLitePath, cfg.MaxRows, cfg.StatementTimeout)
		if err != nil {
			return nil, err
		}
		env.onClose(func() { _ = store.Close() })
		return store, nil
	default:
		store, err := factstore.NewPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		env.onClose(store.Close)
		return store, nil
	}
}

func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, eris.Wrap(err, "parse redis url")
	}
	return redis.NewClient(opts), nil
}
