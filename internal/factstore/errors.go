package factstore

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrorKind is the sanitized category of an execution failure
type ErrorKind string

const (
	ErrorSyntax           ErrorKind = "syntax"
	ErrorUnknownReference ErrorKind = "unknown_reference"
	ErrorPermission       ErrorKind = "permission"
	ErrorConstraint       ErrorKind = "constraint"
	ErrorTimeout          ErrorKind = "timeout"
	ErrorConnection       ErrorKind = "connection"
	ErrorCanceled         ErrorKind = "canceled"
	ErrorInternal         ErrorKind = "internal"
)

var summaries = map[ErrorKind]string{
	ErrorSyntax:           "the statement is not valid SQL",
	ErrorUnknownReference: "the statement references a column, table or function that does not exist",
	ErrorPermission:       "the statement is not permitted for this connection",
	ErrorConstraint:       "the statement violated a database constraint",
	ErrorTimeout:          "the statement exceeded its time limit",
	ErrorConnection:       "the fact store is unavailable",
	ErrorCanceled:         "the request was canceled",
	ErrorInternal:         "the statement failed",
}

// Error is an execution failure. Error() carries only the category summary;
// the driver error stays behind Unwrap for logging.
type Error struct {
	Kind     ErrorKind
	SQLState string
	Err      error
}

func (e *Error) Error() string {
	return "factstore: " + e.Summary()
}

// Summary is the caller-safe description of the failure
func (e *Error) Summary() string {
	if s, ok := summaries[e.Kind]; ok {
		return s
	}
	return summaries[ErrorInternal]
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the category of err
func KindOf(err error) ErrorKind {
	var ferr *Error
	if errors.As(err, &ferr) {
		return ferr.Kind
	}
	return contextKind(err, ErrorInternal)
}

func contextKind(err error, fallback ErrorKind) ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTimeout
	case errors.Is(err, context.Canceled):
		return ErrorCanceled
	default:
		return fallback
	}
}

// classifyPostgres maps pgx errors by SQLSTATE class
func classifyPostgres(ctx context.Context, err error) *Error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &Error{Kind: postgresKind(pgErr.Code), SQLState: pgErr.Code, Err: err}
	}

	if kind := contextKind(err, ""); kind != "" {
		return &Error{Kind: kind, Err: err}
	}
	if kind := contextKind(ctx.Err(), ""); kind != "" {
		return &Error{Kind: kind, Err: err}
	}
	if pgconn.Timeout(err) {
		return &Error{Kind: ErrorTimeout, Err: err}
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) || strings.Contains(err.Error(), "closed pool") {
		return &Error{Kind: ErrorConnection, Err: err}
	}
	return &Error{Kind: ErrorInternal, Err: err}
}

func postgresKind(code string) ErrorKind {
	switch code {
	case "42601", "42P10", "22P02", "22007", "22008", "42803", "42804", "42P18":
		return ErrorSyntax
	case "42703", "42P01", "42883", "42P02", "42704", "3F000", "42702", "42725":
		return ErrorUnknownReference
	case "42501", "25006", "28000":
		return ErrorPermission
	case "57014":
		return ErrorTimeout
	case "57P01", "57P02", "57P03", "53300":
		return ErrorConnection
	}

	if len(code) < 2 {
		return ErrorInternal
	}
	switch code[:2] {
	case "23":
		return ErrorConstraint
	case "08":
		return ErrorConnection
	case "42":
		return ErrorSyntax
	default:
		return ErrorInternal
	}
}

// classifySQLite maps modernc.org/sqlite result codes and messages
func classifySQLite(ctx context.Context, err error) *Error {
	if kind := contextKind(err, ""); kind != "" {
		return &Error{Kind: kind, Err: err}
	}

	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		if kind := contextKind(ctx.Err(), ""); kind != "" {
			return &Error{Kind: kind, Err: err}
		}
		return &Error{Kind: ErrorInternal, Err: err}
	}

	msg := strings.ToLower(sqlErr.Error())
	switch sqlErr.Code() & 0xff {
	case sqlite3.SQLITE_INTERRUPT:
		return &Error{Kind: contextKind(ctx.Err(), ErrorTimeout), Err: err}
	case sqlite3.SQLITE_READONLY, sqlite3.SQLITE_PERM, sqlite3.SQLITE_AUTH:
		return &Error{Kind: ErrorPermission, Err: err}
	case sqlite3.SQLITE_CONSTRAINT:
		return &Error{Kind: ErrorConstraint, Err: err}
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN:
		return &Error{Kind: ErrorConnection, Err: err}
	}

	switch {
	case strings.Contains(msg, "no such column"), strings.Contains(msg, "no such table"),
		strings.Contains(msg, "no such function"), strings.Contains(msg, "ambiguous column"):
		return &Error{Kind: ErrorUnknownReference, Err: err}
	case strings.Contains(msg, "syntax error"), strings.Contains(msg, "incomplete input"),
		strings.Contains(msg, "wrong number of arguments"), strings.Contains(msg, "misuse of aggregate"):
		return &Error{Kind: ErrorSyntax, Err: err}
	case strings.Contains(msg, "readonly"), strings.Contains(msg, "not authorized"):
		return &Error{Kind: ErrorPermission, Err: err}
	default:
		return &Error{Kind: ErrorInternal, Err: err}
	}
}
