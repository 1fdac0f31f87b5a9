// Package errors provides enhanced error types with helpful context and suggestions
package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Query pipeline errors
	ErrCodeTranslationFailed ErrorCode = "TRANSLATION_FAILED"
	ErrCodeUnsafeStatement   ErrorCode = "UNSAFE_STATEMENT"
	ErrCodeExecutionFailed   ErrorCode = "EXECUTION_FAILED"
	ErrCodeTimeout           ErrorCode = "TIMEOUT"

	// Authentication errors
	ErrCodeNotAuthenticated ErrorCode = "NOT_AUTHENTICATED"
	ErrCodeInvalidToken     ErrorCode = "INVALID_TOKEN"
	ErrCodeRateLimited      ErrorCode = "RATE_LIMITED"

	// Input validation errors
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED_FIELD"

	// Infrastructure errors
	ErrCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeDatabaseQuery      ErrorCode = "DATABASE_QUERY_FAILED"
	ErrCodeCacheRead          ErrorCode = "CACHE_READ_FAILED"
	ErrCodeCacheWrite         ErrorCode = "CACHE_WRITE_FAILED"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// EnhancedError represents an error with additional context and helpful information
type EnhancedError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Cause      error                  `json:"-"`
}

// Error implements the error interface. The cause is included, so Error is
// meant for logs; callers get UserMessage.
func (e *EnhancedError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))
	if e.Details != "" {
		sb.WriteString(fmt.Sprintf(": %s", e.Details))
	}
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(" (cause: %v)", e.Cause))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain unwrapping
func (e *EnhancedError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a message that is safe to show to the caller. It never
// includes the cause.
func (e *EnhancedError) UserMessage() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Details != "" {
		sb.WriteString(fmt.Sprintf(": %s", e.Details))
	}

	if e.Suggestion != "" {
		sb.WriteString(fmt.Sprintf(". %s", e.Suggestion))
	}

	return sb.String()
}

// New creates a new EnhancedError
func New(code ErrorCode, message string) *EnhancedError {
	return &EnhancedError{
		Code:     code,
		Message:  message,
		Metadata: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with enhanced context
func Wrap(err error, code ErrorCode, message string) *EnhancedError {
	return &EnhancedError{
		Code:     code,
		Message:  message,
		Cause:    err,
		Metadata: make(map[string]interface{}),
	}
}

// WithDetails adds detailed information about the error
func (e *EnhancedError) WithDetails(details string) *EnhancedError {
	e.Details = details
	return e
}

// WithSuggestion adds a suggestion on how to fix the error
func (e *EnhancedError) WithSuggestion(suggestion string) *EnhancedError {
	e.Suggestion = suggestion
	return e
}

// WithMetadata adds additional metadata to the error
func (e *EnhancedError) WithMetadata(key string, value interface{}) *EnhancedError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Common error constructors with pre-configured messages

// NewTranslationError creates an error for a question that could not be turned into SQL
func NewTranslationError(err error, kind string) *EnhancedError {
	return Wrap(err, ErrCodeTranslationFailed, "Could not translate your question into a query").
		WithSuggestion("Try rephrasing the question, for example 'What was my net revenue last month?'").
		WithMetadata("kind", kind)
}

// NewTranslationTimeoutError creates an error for a translator call that exceeded its deadline
func NewTranslationTimeoutError(err error) *EnhancedError {
	return Wrap(err, ErrCodeTimeout, "The query assistant took too long to respond").
		WithSuggestion("Please try again in a moment").
		WithMetadata("kind", "timeout").
		WithMetadata("retryable", true)
}

// NewUnsafeStatementError creates an error for a generated statement the validator refused
func NewUnsafeStatementError(category, keyword string) *EnhancedError {
	details := fmt.Sprintf("the generated query was blocked (%s)", category)
	if keyword != "" {
		details = fmt.Sprintf("the generated query was blocked (%s: %s)", category, keyword)
	}
	return New(ErrCodeUnsafeStatement, "Unsafe SQL generated. Read-only access allowed").
		WithDetails(details).
		WithMetadata("category", category)
}

// NewExecutionError creates an error for a statement the fact store could not run.
// Only the sanitized category reaches the caller.
func NewExecutionError(err error, kind, summary string) *EnhancedError {
	return Wrap(err, ErrCodeExecutionFailed, "The generated query could not be run").
		WithDetails(summary).
		WithSuggestion("Try rephrasing the question").
		WithMetadata("kind", kind)
}

// NewExecutionTimeoutError creates an error for a statement that exceeded its deadline
func NewExecutionTimeoutError(err error) *EnhancedError {
	return Wrap(err, ErrCodeTimeout, "The query took too long to run").
		WithSuggestion("Try narrowing the date range of your question").
		WithMetadata("kind", "timeout").
		WithMetadata("retryable", true)
}

// NewNotAuthenticatedError creates an error for unauthenticated requests
func NewNotAuthenticatedError() *EnhancedError {
	return New(ErrCodeNotAuthenticated, "Authentication required").
		WithDetails("this endpoint requires a bearer token").
		WithSuggestion("Include a valid token in the 'Authorization: Bearer <token>' header")
}

// NewInvalidTokenError creates an error for a token that failed verification
func NewInvalidTokenError(err error) *EnhancedError {
	return Wrap(err, ErrCodeInvalidToken, "Invalid or expired token").
		WithSuggestion("Log in again to obtain a fresh token")
}

// NewRateLimitedError creates an error for a tenant that exceeded its request budget
func NewRateLimitedError(limitPerMinute int) *EnhancedError {
	return New(ErrCodeRateLimited, "Too many questions").
		WithDetails(fmt.Sprintf("the limit is %d questions per minute", limitPerMinute)).
		WithSuggestion("Wait a moment before asking again").
		WithMetadata("retryable", true)
}

// NewInvalidInputError creates an error for invalid input
func NewInvalidInputError(field string, reason string) *EnhancedError {
	return New(ErrCodeInvalidInput, "Invalid input").
		WithDetails(fmt.Sprintf("field '%s' is invalid: %s", field, reason))
}

// NewDatabaseConnectionError creates an error for database connection failures
func NewDatabaseConnectionError(err error) *EnhancedError {
	return Wrap(err, ErrCodeDatabaseConnection, "Database connection failed").
		WithDetails("unable to connect to the database").
		WithMetadata("retryable", true)
}

// NewDatabaseQueryError creates an error for database query failures
func NewDatabaseQueryError(err error, operation string) *EnhancedError {
	return Wrap(err, ErrCodeDatabaseQuery, "Database query failed").
		WithDetails(fmt.Sprintf("failed to execute database operation: %s", operation))
}

// NewInternalError creates an error for failures outside the query pipeline
func NewInternalError(err error) *EnhancedError {
	return Wrap(err, ErrCodeInternal, "Internal server error")
}
