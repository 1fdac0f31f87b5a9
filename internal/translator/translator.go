// Package translator turns a scoped question into candidate SQL. The gateway
// treats the result as untrusted text.
package translator

import (
	"context"
	"errors"
	"fmt"

	"github.com/profitpulse/query-gateway/internal/scope"
)

// Kind tells whether a translation carries a candidate statement
type Kind string

const (
	KindCandidate Kind = "candidate"
	KindUnusable  Kind = "unusable"
)

// Usage is the token consumption of one model call
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Translation is the model's answer. A model reply without SQL is an
// ordinary Unusable result, not an error.
type Translation struct {
	Statement   string
	Explanation string
	Raw         string
	Kind        Kind
	Model       string
	Usage       Usage
}

// Usable reports whether a statement was extracted
func (t Translation) Usable() bool {
	return t.Kind == KindCandidate && t.Statement != ""
}

// Translator maps a scoped question to candidate SQL
type Translator interface {
	Translate(ctx context.Context, question scope.ScopedQuestion) (Translation, error)
}

// Func adapts a function to the Translator interface
type Func func(ctx context.Context, question scope.ScopedQuestion) (Translation, error)

// Translate calls f
func (f Func) Translate(ctx context.Context, question scope.ScopedQuestion) (Translation, error) {
	return f(ctx, question)
}

// ErrorKind classifies translator failures
type ErrorKind string

const (
	ErrorTimeout     ErrorKind = "timeout"
	ErrorCanceled    ErrorKind = "canceled"
	ErrorQuota       ErrorKind = "quota"
	ErrorUnavailable ErrorKind = "unavailable"
	ErrorMalformed   ErrorKind = "malformed"
	ErrorCircuitOpen ErrorKind = "circuit_open"
)

// Error is a failed translator call
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("translator: %s", e.Kind)
	}
	return fmt.Sprintf("translator: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the error kind of err, deriving it from context errors when
// err is not a *Error.
func KindOf(err error) ErrorKind {
	var terr *Error
	switch {
	case errors.As(err, &terr):
		return terr.Kind
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTimeout
	case errors.Is(err, context.Canceled):
		return ErrorCanceled
	default:
		return ErrorUnavailable
	}
}
