package factstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/profitpulse/query-gateway/internal/observability"
)

// SQLite executes statements against a local SQLite copy of the fact table.
// It backs the local demo mode and the isolation fixtures.
type SQLite struct {
	db               *sql.DB
	maxRows          int
	statementTimeout time.Duration
	logger           *observability.Logger
}

// NewSQLite opens the database at path
func NewSQLite(path string, maxRows int, statementTimeout time.Duration) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return NewSQLiteFromDB(db, maxRows, statementTimeout), nil
}

// NewSQLiteFromDB wraps an open handle
func NewSQLiteFromDB(db *sql.DB, maxRows int, statementTimeout time.Duration) *SQLite {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &SQLite{
		db:               db,
		maxRows:          maxRows,
		statementTimeout: statementTimeout,
		logger:           observability.NewLogger("factstore"),
	}
}

// DB exposes the handle for fixtures and seeding
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// Execute implements Accessor. The connection is switched to query_only for
// the duration of the call, so writes fail with a permission error.
func (s *SQLite) Execute(ctx context.Context, statement string, args ...any) (result *Result, err error) {
	start := time.Now()
	defer func() {
		record("sqlite", start, result, err)
	}()

	if s.statementTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.statementTimeout)
		defer cancel()
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, s.fail(ctx, "acquire", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return nil, s.fail(ctx, "query_only", err)
	}
	defer func() {
		if _, rerr := conn.ExecContext(context.WithoutCancel(ctx), "PRAGMA query_only = OFF"); rerr != nil {
			s.logger.Warn(ctx, "reset query_only failed", map[string]interface{}{"error": rerr.Error()})
		}
	}()

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, s.fail(ctx, "begin", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, s.fail(ctx, "query", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, s.fail(ctx, "columns", err)
	}

	result, err = collect(&sqlRows{rows: rows, width: len(columns)}, columns, s.maxRows)
	if err != nil {
		return nil, s.fail(ctx, "read rows", err)
	}
	return result, nil
}

func (s *SQLite) fail(ctx context.Context, step string, err error) error {
	ferr := classifySQLite(ctx, err)
	s.logger.Error(ctx, "statement failed", err, map[string]interface{}{
		"step": step,
		"kind": string(ferr.Kind),
	})
	return ferr
}

// Ping implements Accessor
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}

// sqlRows gives *sql.Rows the Values method collect expects
type sqlRows struct {
	rows  *sql.Rows
	width int
}

func (r *sqlRows) Next() bool {
	return r.rows.Next()
}

func (r *sqlRows) Values() ([]any, error) {
	values := make([]any, r.width)
	ptrs := make([]any, r.width)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return values, nil
}

func (r *sqlRows) Err() error {
	return r.rows.Err()
}
