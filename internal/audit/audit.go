// Package audit keeps a trail of every answered question, including rejected
// and failed ones, in the gateway's own Postgres database.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/profitpulse/query-gateway/internal/gateway"
	"github.com/profitpulse/query-gateway/internal/observability"
)

// Pool is the part of pgxpool.Pool the recorder uses
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

const insertEntry = `INSERT INTO query_audit
	(id, tenant_id, correlation_id, question, generated_sql, executed_sql, status, error_code, category, row_count, duration_ms)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

const selectHistory = `SELECT id::text, question, generated_sql, status, error_code, category, row_count, duration_ms, created_at
	FROM query_audit
	WHERE tenant_id = $1
	ORDER BY created_at DESC
	LIMIT $2`

const deleteBefore = `DELETE FROM query_audit WHERE created_at < $1`

// Recorder writes audit entries and reads a tenant's history back
type Recorder struct {
	pool   Pool
	logger *observability.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder on pool
func NewRecorder(pool Pool) *Recorder {
	return &Recorder{
		pool:   pool,
		logger: observability.NewLogger("audit"),
		now:    time.Now,
	}
}

// Record implements gateway.AuditSink
func (r *Recorder) Record(ctx context.Context, req gateway.Request, outcome gateway.Outcome, duration time.Duration) error {
	_, err := r.pool.Exec(ctx, insertEntry,
		uuid.New().String(),
		req.TenantID,
		observability.GetCorrelationID(ctx),
		req.Question,
		outcome.SQL,
		outcome.ExecutedSQL,
		string(outcome.Status),
		outcome.ErrorCode,
		outcome.Category,
		outcome.RowCount,
		duration.Milliseconds(),
	)
	if err != nil {
		return eris.Wrap(err, "audit: insert entry")
	}
	return nil
}

// History implements gateway.HistoryReader. It only ever returns the
// requesting tenant's own entries.
func (r *Recorder) History(ctx context.Context, tenantID string, limit int) ([]gateway.HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, selectHistory, tenantID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "audit: query history")
	}
	defer rows.Close()

	entries := make([]gateway.HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			e      gateway.HistoryEntry
			status string
		)
		if err := rows.Scan(&e.ID, &e.Question, &e.SQL, &status, &e.ErrorCode, &e.Category, &e.RowCount, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "audit: scan history row")
		}
		e.Status = gateway.Status(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "audit: read history")
	}
	return entries, nil
}

// Prune deletes entries older than retention and returns how many were removed
func (r *Recorder) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := r.now().Add(-retention)
	tag, err := r.pool.Exec(ctx, deleteBefore, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "audit: prune entries")
	}

	r.logger.Info(ctx, "Pruned audit entries", map[string]interface{}{
		"removed": tag.RowsAffected(),
		"cutoff":  cutoff,
	})
	return tag.RowsAffected(), nil
}

// Ping checks the audit database
func (r *Recorder) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
