// Package factstore runs validated statements against the tenant-partitioned
// fact table. It is a read-only conduit: one transaction per call, always
// rolled back, never retried.
package factstore

import (
	"context"
	"time"

	"github.com/profitpulse/query-gateway/internal/observability"
)

// DefaultMaxRows caps the rows returned by one statement
const DefaultMaxRows = 1000

// Accessor executes read-only statements
type Accessor interface {
	Execute(ctx context.Context, statement string, args ...any) (*Result, error)
	Ping(ctx context.Context) error
}

// Func adapts a function to the execute half of Accessor. Ping always succeeds.
type Func func(ctx context.Context, statement string, args ...any) (*Result, error)

// Execute calls f
func (f Func) Execute(ctx context.Context, statement string, args ...any) (*Result, error) {
	return f(ctx, statement, args...)
}

// Ping implements Accessor
func (f Func) Ping(context.Context) error {
	return nil
}

// rowReader is the part of pgx.Rows and the sqlite scanner that collect needs
type rowReader interface {
	Next() bool
	Values() ([]any, error)
	Err() error
}

// collect drains rows into a Result, keeping at most maxRows
func collect(rows rowReader, columns []string, maxRows int) (*Result, error) {
	result := &Result{Columns: uniqueColumns(columns), Rows: []Row{}}
	for rows.Next() {
		if maxRows > 0 && len(result.Rows) >= maxRows {
			result.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		for i := range values {
			values[i] = normalize(values[i])
		}
		result.Rows = append(result.Rows, Row{Columns: result.Columns, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

func record(driver string, start time.Time, result *Result, err error) {
	rows := 0
	if result != nil {
		rows = result.RowCount
	}
	kind := ""
	if err != nil {
		kind = string(KindOf(err))
	}
	observability.RecordFactStoreMetrics(driver, time.Since(start), rows, kind)
}
