package factstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/profitpulse/query-gateway/internal/config"
	"github.com/profitpulse/query-gateway/internal/observability"
)

// Pool is the subset of pgxpool.Pool the accessor uses
type Pool interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Postgres executes statements through a pgx pool
type Postgres struct {
	pool             Pool
	maxRows          int
	statementTimeout time.Duration
	logger           *observability.Logger
}

// NewPostgres creates a pool for the fact store. Every session defaults to
// read-only transactions on top of the explicit read-only transaction per call.
func NewPostgres(ctx context.Context, cfg config.StoreConfig) (*Postgres, error) {
	pgxCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "factstore: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if cfg.MaxConns > 0 {
		maxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		minConns = int32(cfg.MinConns)
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute
	pgxCfg.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"
	pgxCfg.ConnConfig.RuntimeParams["application_name"] = "query-gateway"

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "factstore: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "factstore: ping")
	}
	return NewPostgresFromPool(pool, cfg.MaxRows, cfg.StatementTimeout), nil
}

// NewPostgresFromPool wraps an existing pool. maxRows <= 0 uses DefaultMaxRows.
func NewPostgresFromPool(pool Pool, maxRows int, statementTimeout time.Duration) *Postgres {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Postgres{
		pool:             pool,
		maxRows:          maxRows,
		statementTimeout: statementTimeout,
		logger:           observability.NewLogger("factstore"),
	}
}

// Execute implements Accessor. The connection goes back to the pool on every
// path and nothing the statement does survives the rollback.
func (p *Postgres) Execute(ctx context.Context, statement string, args ...any) (result *Result, err error) {
	start := time.Now()
	defer func() {
		record("postgres", start, result, err)
	}()

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, p.fail(ctx, "begin", err)
	}
	defer func() {
		if rerr := tx.Rollback(context.WithoutCancel(ctx)); rerr != nil && !errors.Is(rerr, pgx.ErrTxClosed) {
			p.logger.Warn(ctx, "rollback failed", map[string]interface{}{"error": rerr.Error()})
		}
	}()

	if p.statementTimeout > 0 {
		setTimeout := fmt.Sprintf("SET LOCAL statement_timeout = %d", p.statementTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, setTimeout); err != nil {
			return nil, p.fail(ctx, "set statement timeout", err)
		}
	}

	rows, err := tx.Query(ctx, statement, args...)
	if err != nil {
		return nil, p.fail(ctx, "query", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	result, err = collect(rows, columns, p.maxRows)
	if err != nil {
		return nil, p.fail(ctx, "read rows", err)
	}
	if result.Truncated {
		p.logger.Warn(ctx, "result truncated", map[string]interface{}{"max_rows": p.maxRows})
	}
	return result, nil
}

func (p *Postgres) fail(ctx context.Context, step string, err error) error {
	ferr := classifyPostgres(ctx, err)
	p.logger.Error(ctx, "statement failed", err, map[string]interface{}{
		"step":     step,
		"kind":     string(ferr.Kind),
		"sqlstate": ferr.SQLState,
	})
	return ferr
}

// Ping implements Accessor
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the pool
func (p *Postgres) Close() {
	p.pool.Close()
}
