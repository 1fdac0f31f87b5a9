// Package gateway orchestrates one question from scoping to a Query Outcome:
//
//	Received -> Scoped -> Translated -> Validated -> Executed -> Responded
//
// with the terminal exits Rejected (unsafe statement) and Failed (bad input,
// translator or fact store failure). Every failure is turned into an Outcome;
// Ask never returns an error.
package gateway

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/profitpulse/query-gateway/internal/errors"
	"github.com/profitpulse/query-gateway/internal/factstore"
	"github.com/profitpulse/query-gateway/internal/observability"
	"github.com/profitpulse/query-gateway/internal/safety"
	"github.com/profitpulse/query-gateway/internal/scope"
	"github.com/profitpulse/query-gateway/internal/translator"
)

// Request is one question from an authenticated tenant
type Request struct {
	Question string
	TenantID string
}

// Asker answers questions. Gateway implements it, and so do decorators such
// as the outcome cache.
type Asker interface {
	Ask(ctx context.Context, req Request) Outcome
}

// Rewriter binds a validated statement to one tenant
type Rewriter interface {
	Rewrite(statement, tenantID string) (scope.Rewritten, error)
}

// AuditSink records every outcome. Errors are logged by the gateway and never
// change the outcome.
type AuditSink interface {
	Record(ctx context.Context, req Request, outcome Outcome, duration time.Duration) error
}

// Config bounds the two blocking stages
type Config struct {
	TranslateTimeout time.Duration
	ExecuteTimeout   time.Duration
	MaxQuestionChars int
}

// DefaultConfig returns the stage timeouts used when none are configured
func DefaultConfig() Config {
	return Config{
		TranslateTimeout: 30 * time.Second,
		ExecuteTimeout:   15 * time.Second,
		MaxQuestionChars: 2000,
	}
}

// Gateway is safe for concurrent use; it holds no per-request state
type Gateway struct {
	translator translator.Translator
	validator  safety.Validator
	rewriter   Rewriter
	accessor   factstore.Accessor
	audit      AuditSink
	config     Config
	logger     *observability.Logger
}

// New creates a gateway. Zero timeouts fall back to DefaultConfig.
func New(t translator.Translator, v safety.Validator, r Rewriter, a factstore.Accessor, config Config) *Gateway {
	defaults := DefaultConfig()
	if config.TranslateTimeout <= 0 {
		config.TranslateTimeout = defaults.TranslateTimeout
	}
	if config.ExecuteTimeout <= 0 {
		config.ExecuteTimeout = defaults.ExecuteTimeout
	}

	return &Gateway{
		translator: t,
		validator:  v,
		rewriter:   r,
		accessor:   a,
		config:     config,
		logger:     observability.NewLogger("gateway"),
	}
}

// SetAuditSink sets the sink that receives every outcome
func (g *Gateway) SetAuditSink(sink AuditSink) {
	g.audit = sink
}

// SetLogger replaces the component logger
func (g *Gateway) SetLogger(logger *observability.Logger) {
	g.logger = logger
}

// Ask runs the question through the pipeline and always returns a well-formed outcome
func (g *Gateway) Ask(ctx context.Context, req Request) Outcome {
	start := time.Now()
	ctx = observability.WithTenantID(ctx, req.TenantID)

	outcome := g.ask(ctx, req)
	duration := time.Since(start)

	observability.RecordOutcomeMetrics(string(outcome.Status), outcome.ErrorCode, false, duration)
	g.logger.Info(ctx, "Question answered", map[string]interface{}{
		"status":      outcome.Status,
		"error_code":  outcome.ErrorCode,
		"category":    outcome.Category,
		"row_count":   outcome.RowCount,
		"duration_ms": duration.Milliseconds(),
	})

	if g.audit != nil {
		// the caller may be gone already; the audit row is still written
		if err := g.audit.Record(context.WithoutCancel(ctx), req, outcome, duration); err != nil {
			g.logger.Error(ctx, "Failed to record audit entry", err, nil)
		}
	}

	return outcome
}

func (g *Gateway) ask(ctx context.Context, req Request) Outcome {
	if g.config.MaxQuestionChars > 0 && utf8.RuneCountInString(req.Question) > g.config.MaxQuestionChars {
		return failed("", apperrors.NewInvalidInputError("question", "is too long"), "")
	}

	scoped, err := scope.Scope(req.Question, req.TenantID)
	if err != nil {
		return failed("", scopeError(err), "")
	}
	g.logger.Debug(ctx, "Question scoped", map[string]interface{}{"state": "scoped"})

	translation, err := g.translate(ctx, scoped)
	if err != nil {
		kind := translator.KindOf(err)
		g.logger.Error(ctx, "Translation failed", err, map[string]interface{}{"kind": kind})
		if kind == translator.ErrorTimeout {
			return failed("", apperrors.NewTranslationTimeoutError(err), string(kind))
		}
		return failed("", apperrors.NewTranslationError(err, string(kind)), string(kind))
	}
	if !translation.Usable() {
		g.logger.Warn(ctx, "Translator returned no SQL", map[string]interface{}{"model": translation.Model})
		return failed(strings.TrimSpace(translation.Raw), apperrors.NewTranslationError(nil, string(translator.KindUnusable)), string(translator.KindUnusable))
	}
	statement := translation.Statement
	g.logger.Debug(ctx, "Question translated", map[string]interface{}{"state": "translated", "sql": statement})

	if verdict := g.validator.Validate(statement); !verdict.Safe {
		return g.rejected(ctx, statement, verdict)
	}

	rewritten, err := g.rewriter.Rewrite(statement, req.TenantID)
	if err != nil {
		var rejectedErr *scope.RejectedError
		if errors.As(err, &rejectedErr) {
			return g.rejected(ctx, statement, rejectedErr.Verdict())
		}
		g.logger.Error(ctx, "Failed to scope statement", err, nil)
		return failed(statement, apperrors.NewInternalError(err), "")
	}
	g.logger.Debug(ctx, "Statement validated", map[string]interface{}{
		"state":     "validated",
		"scoped":    rewritten.Scoped,
		"executing": rewritten.Statement,
	})

	result, err := g.execute(ctx, rewritten.Statement)
	if err != nil {
		kind := factstore.KindOf(err)
		// full driver detail stays in the log
		g.logger.Error(ctx, "Execution failed", err, map[string]interface{}{"kind": kind, "sql": rewritten.Statement})
		if kind == factstore.ErrorTimeout {
			return failed(statement, apperrors.NewExecutionTimeoutError(err), string(kind))
		}
		return failed(statement, apperrors.NewExecutionError(err, string(kind), summary(err)), string(kind))
	}
	g.logger.Debug(ctx, "Statement executed", map[string]interface{}{"state": "executed", "row_count": result.RowCount})

	explanation := strings.TrimSpace(translation.Explanation)
	if explanation == "" {
		explanation = DefaultExplanation
	}
	data := result.Rows
	if data == nil {
		data = []factstore.Row{}
	}

	return Outcome{
		Status:      StatusSuccess,
		SQL:         statement,
		Data:        data,
		RowCount:    result.RowCount,
		Truncated:   result.Truncated,
		Explanation: explanation,
		ExecutedSQL: rewritten.Statement,
	}
}

func (g *Gateway) translate(ctx context.Context, scoped scope.ScopedQuestion) (translator.Translation, error) {
	start := time.Now()
	defer func() { observability.RecordStageDuration("translate", time.Since(start)) }()

	ctx, cancel := context.WithTimeout(ctx, g.config.TranslateTimeout)
	defer cancel()
	return g.translator.Translate(ctx, scoped)
}

func (g *Gateway) execute(ctx context.Context, statement string) (*factstore.Result, error) {
	start := time.Now()
	defer func() { observability.RecordStageDuration("execute", time.Since(start)) }()

	ctx, cancel := context.WithTimeout(ctx, g.config.ExecuteTimeout)
	defer cancel()
	return g.accessor.Execute(ctx, statement)
}

func (g *Gateway) rejected(ctx context.Context, statement string, verdict safety.Verdict) Outcome {
	observability.RecordUnsafeStatement(string(verdict.Category))
	g.logger.Warn(ctx, "Unsafe statement rejected", map[string]interface{}{
		"category": verdict.Category,
		"keyword":  verdict.Keyword,
		"reason":   verdict.Reason,
		"sql":      statement,
	})

	err := apperrors.NewUnsafeStatementError(string(verdict.Category), verdict.Keyword)
	return Outcome{
		Status:    StatusRejected,
		SQL:       statement,
		Error:     err.UserMessage(),
		ErrorCode: string(err.Code),
		Category:  string(verdict.Category),
	}
}

func failed(statement string, err *apperrors.EnhancedError, category string) Outcome {
	return Outcome{
		Status:    StatusFailed,
		SQL:       statement,
		Error:     err.UserMessage(),
		ErrorCode: string(err.Code),
		Category:  category,
	}
}

func scopeError(err error) *apperrors.EnhancedError {
	switch {
	case errors.Is(err, scope.ErrEmptyQuestion):
		return apperrors.NewInvalidInputError("question", "must not be empty")
	case errors.Is(err, scope.ErrTenantInQuestion):
		return apperrors.NewInvalidInputError("question", "must not contain the account identifier")
	default:
		return apperrors.NewInvalidInputError("tenant", "is not a valid account identifier")
	}
}

// summary is the caller-safe description of an execution failure. Errors that
// did not come from a factstore accessor are reduced to their kind as well.
func summary(err error) string {
	var ferr *factstore.Error
	if errors.As(err, &ferr) {
		return ferr.Summary()
	}
	return (&factstore.Error{Kind: factstore.KindOf(err)}).Summary()
}
