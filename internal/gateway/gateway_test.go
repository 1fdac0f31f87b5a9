package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/profitpulse/query-gateway/internal/factstore"
	"github.com/profitpulse/query-gateway/internal/safety"
	"github.com/profitpulse/query-gateway/internal/scope"
	"github.com/profitpulse/query-gateway/internal/translator"
)

const revenueSQL = "SELECT sum(revenue_net) FROM fact_daily_financials WHERE user_id = 'u-1' AND date >= '2024-03-01'"

// fakeTranslator returns a fixed translation and remembers what it was asked
type fakeTranslator struct {
	translation translator.Translation
	err         error
	block       bool

	mu    sync.Mutex
	calls []scope.ScopedQuestion
}

func (f *fakeTranslator) Translate(ctx context.Context, q scope.ScopedQuestion) (translator.Translation, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return translator.Translation{}, &translator.Error{Kind: translator.ErrorTimeout, Err: ctx.Err()}
	}
	return f.translation, f.err
}

func (f *fakeTranslator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func candidate(statement string) *fakeTranslator {
	return &fakeTranslator{translation: translator.Translation{
		Statement: statement,
		Raw:       "```sql\n" + statement + "\n```",
		Kind:      translator.KindCandidate,
		Model:     "test-model",
	}}
}

// countingAccessor counts executions and records the executed statements
type countingAccessor struct {
	execute func(ctx context.Context, statement string) (*factstore.Result, error)

	calls      atomic.Int32
	mu         sync.Mutex
	statements []string
}

func (a *countingAccessor) Execute(ctx context.Context, statement string, args ...any) (*factstore.Result, error) {
	a.calls.Add(1)
	a.mu.Lock()
	a.statements = append(a.statements, statement)
	a.mu.Unlock()
	return a.execute(ctx, statement)
}

func (a *countingAccessor) Ping(context.Context) error {
	return nil
}

func sumResult(sum float64) func(context.Context, string) (*factstore.Result, error) {
	return func(context.Context, string) (*factstore.Result, error) {
		columns := []string{"sum"}
		return &factstore.Result{
			Columns:  columns,
			Rows:     []factstore.Row{{Columns: columns, Values: []any{sum}}},
			RowCount: 1,
		}, nil
	}
}

// MockAuditSink is a mock implementation of AuditSink
type MockAuditSink struct {
	mock.Mock
}

func (m *MockAuditSink) Record(ctx context.Context, req Request, outcome Outcome, duration time.Duration) error {
	args := m.Called(ctx, req, outcome, duration)
	return args.Error(0)
}

func newGateway(tr translator.Translator, acc factstore.Accessor) *Gateway {
	return New(tr, safety.NewKeywordValidator(), scope.NewRewriter(), acc, Config{
		TranslateTimeout: time.Second,
		ExecuteTimeout:   time.Second,
		MaxQuestionChars: 200,
	})
}

func TestGateway_Ask_RevenueScenario(t *testing.T) {
	tr := candidate(revenueSQL)
	acc := &countingAccessor{execute: sumResult(4231.50)}

	outcome := newGateway(tr, acc).Ask(context.Background(), Request{
		Question: "what was my revenue last week",
		TenantID: "u-1",
	})

	require.Equal(t, StatusSuccess, outcome.Status)
	assert.Equal(t, revenueSQL, outcome.SQL)
	require.Len(t, outcome.Data, 1)
	sum, ok := outcome.Data[0].Get("sum")
	require.True(t, ok)
	assert.Equal(t, 4231.5, sum)
	assert.Equal(t, 1, outcome.RowCount)
	assert.Equal(t, DefaultExplanation, outcome.Explanation)
	assert.Empty(t, outcome.Error)

	require.Equal(t, 1, tr.callCount())
	assert.Equal(t, 1, strings.Count(tr.calls[0].Text, "u-1"), "scoped question names the tenant once")

	require.EqualValues(t, 1, acc.calls.Load())
	assert.Contains(t, acc.statements[0], "(SELECT * FROM fact_daily_financials WHERE user_id = 'u-1') AS fact_daily_financials")
	assert.Equal(t, acc.statements[0], outcome.ExecutedSQL)
}

func TestGateway_Ask_UsesTranslatorExplanation(t *testing.T) {
	tr := candidate(revenueSQL)
	tr.translation.Explanation = "  Net revenue since March 1st.  "
	acc := &countingAccessor{execute: sumResult(1)}

	outcome := newGateway(tr, acc).Ask(context.Background(), Request{Question: "revenue", TenantID: "u-1"})
	require.Equal(t, StatusSuccess, outcome.Status)
	assert.Equal(t, "Net revenue since March 1st.", outcome.Explanation)
}

func TestGateway_Ask_EmptyResultHasData(t *testing.T) {
	acc := &countingAccessor{execute: func(context.Context, string) (*factstore.Result, error) {
		return &factstore.Result{Columns: []string{"sum"}}, nil
	}}

	outcome := newGateway(candidate(revenueSQL), acc).Ask(context.Background(), Request{Question: "revenue", TenantID: "u-1"})
	require.Equal(t, StatusSuccess, outcome.Status)
	assert.NotNil(t, outcome.Data)
	assert.Empty(t, outcome.Data)
}

func TestGateway_Ask_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		statement string
		category  string
		keyword   string
	}{
		{"update", "UPDATE fact_daily_financials SET revenue_net = 0", "data-mutation", "UPDATE"},
		{"delete", "DELETE FROM fact_daily_financials", "data-deletion", "DELETE"},
		{"drop", "DROP TABLE fact_daily_financials", "schema-alteration", "DROP"},
		{"stacked", "SELECT 1; SELECT 2", "multiple-statements", ""},
		{"sleep", "SELECT pg_sleep(10)", "dangerous-function", ""},
		{"catalog", "SELECT * FROM pg_catalog.pg_user", "relation", ""},
		{"other table", "SELECT * FROM users", "relation", ""},
		{"quoted table function", `SELECT * FROM "ts_stat"('select user_id from fact_daily_financials')`, "dangerous-function", ""},
		{"function outside the allow-list", "SELECT table_to_xml_and_xmlschema('fact_daily_financials', true, false, '')", "dangerous-function", ""},
		{"xml path function", "SELECT xpath('/a', '<a/>'::xml)", "dangerous-function", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := &countingAccessor{execute: sumResult(1)}

			outcome := newGateway(candidate(tt.statement), acc).Ask(context.Background(), Request{
				Question: "reset my revenue",
				TenantID: "u-1",
			})

			assert.Equal(t, StatusRejected, outcome.Status)
			assert.Equal(t, tt.statement, outcome.SQL, "the unsafe statement is returned for transparency")
			assert.Empty(t, outcome.Data)
			assert.Equal(t, "UNSAFE_STATEMENT", outcome.ErrorCode)
			assert.Equal(t, tt.category, outcome.Category)
			assert.Contains(t, outcome.Error, tt.category)
			if tt.keyword != "" {
				assert.Contains(t, outcome.Error, tt.keyword)
			}
			assert.Zero(t, acc.calls.Load(), "rejected statements are never executed")
		})
	}
}

func TestGateway_Ask_KeywordInLiteralIsSafe(t *testing.T) {
	statement := "SELECT date FROM fact_daily_financials WHERE currency = 'DELETE'"
	acc := &countingAccessor{execute: sumResult(0)}

	outcome := newGateway(candidate(statement), acc).Ask(context.Background(), Request{Question: "q", TenantID: "u-1"})
	assert.Equal(t, StatusSuccess, outcome.Status)
	assert.EqualValues(t, 1, acc.calls.Load())
}

func TestGateway_Ask_TranslationFailures(t *testing.T) {
	tests := []struct {
		name     string
		tr       *fakeTranslator
		code     string
		category string
		sql      string
	}{
		{
			name:     "quota",
			tr:       &fakeTranslator{err: &translator.Error{Kind: translator.ErrorQuota, Err: errors.New("429 rate_limit_error: secret org id")}},
			code:     "TRANSLATION_FAILED",
			category: "quota",
		},
		{
			name:     "circuit open",
			tr:       &fakeTranslator{err: &translator.Error{Kind: translator.ErrorCircuitOpen}},
			code:     "TRANSLATION_FAILED",
			category: "circuit_open",
		},
		{
			name:     "timeout",
			tr:       &fakeTranslator{err: &translator.Error{Kind: translator.ErrorTimeout, Err: context.DeadlineExceeded}},
			code:     "TIMEOUT",
			category: "timeout",
		},
		{
			name:     "plain error",
			tr:       &fakeTranslator{err: errors.New("dial tcp: refused")},
			code:     "TRANSLATION_FAILED",
			category: "unavailable",
		},
		{
			name: "unusable",
			tr: &fakeTranslator{translation: translator.Translation{
				Raw:  "  I can only answer questions about your financial data.\n",
				Kind: translator.KindUnusable,
			}},
			code:     "TRANSLATION_FAILED",
			category: "unusable",
			sql:      "I can only answer questions about your financial data.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := &countingAccessor{execute: sumResult(1)}

			outcome := newGateway(tt.tr, acc).Ask(context.Background(), Request{Question: "revenue?", TenantID: "u-1"})

			assert.Equal(t, StatusFailed, outcome.Status)
			assert.Equal(t, tt.code, outcome.ErrorCode)
			assert.Equal(t, tt.category, outcome.Category)
			assert.Equal(t, tt.sql, outcome.SQL)
			assert.NotEmpty(t, outcome.Error)
			assert.NotContains(t, outcome.Error, "secret")
			assert.Nil(t, outcome.Data)
			assert.Zero(t, acc.calls.Load())
		})
	}
}

func TestGateway_Ask_TranslateTimeout(t *testing.T) {
	tr := &fakeTranslator{block: true}
	acc := &countingAccessor{execute: sumResult(1)}

	g := New(tr, safety.NewKeywordValidator(), scope.NewRewriter(), acc, Config{
		TranslateTimeout: 20 * time.Millisecond,
		ExecuteTimeout:   time.Second,
	})

	start := time.Now()
	outcome := g.Ask(context.Background(), Request{Question: "revenue", TenantID: "u-1"})

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, "TIMEOUT", outcome.ErrorCode)
	assert.Zero(t, acc.calls.Load())
}

func TestGateway_Ask_ExecutionFailures(t *testing.T) {
	driverMessage := `column "revenu" does not exist`

	tests := []struct {
		name     string
		err      error
		code     string
		category string
	}{
		{
			name:     "unknown column",
			err:      &factstore.Error{Kind: factstore.ErrorUnknownReference, SQLState: "42703", Err: errors.New(driverMessage)},
			code:     "EXECUTION_FAILED",
			category: "unknown_reference",
		},
		{
			name:     "syntax",
			err:      &factstore.Error{Kind: factstore.ErrorSyntax, Err: errors.New(driverMessage)},
			code:     "EXECUTION_FAILED",
			category: "syntax",
		},
		{
			name:     "connection",
			err:      &factstore.Error{Kind: factstore.ErrorConnection, Err: errors.New(driverMessage)},
			code:     "EXECUTION_FAILED",
			category: "connection",
		},
		{
			name:     "statement timeout",
			err:      &factstore.Error{Kind: factstore.ErrorTimeout, Err: errors.New(driverMessage)},
			code:     "TIMEOUT",
			category: "timeout",
		},
		{
			name:     "unclassified driver error",
			err:      fmt.Errorf("pq: %s", driverMessage),
			code:     "EXECUTION_FAILED",
			category: "internal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			statement := "SELECT revenu FROM fact_daily_financials"
			acc := &countingAccessor{execute: func(context.Context, string) (*factstore.Result, error) {
				return nil, tt.err
			}}

			outcome := newGateway(candidate(statement), acc).Ask(context.Background(), Request{Question: "revenue", TenantID: "u-1"})

			assert.Equal(t, StatusFailed, outcome.Status)
			assert.Equal(t, tt.code, outcome.ErrorCode)
			assert.Equal(t, tt.category, outcome.Category)
			assert.Equal(t, statement, outcome.SQL)
			assert.Nil(t, outcome.Data)
			assert.NotContains(t, outcome.Error, `"revenu"`)
			assert.NotContains(t, outcome.Error, "42703")
			assert.NotContains(t, outcome.Error, "pq:")
			assert.EqualValues(t, 1, acc.calls.Load(), "execution errors are not retried")

			data, err := json.Marshal(outcome)
			require.NoError(t, err)
			assert.NotContains(t, string(data), `\"revenu\"`)
			assert.NotContains(t, string(data), `"data"`)
		})
	}
}

func TestGateway_Ask_ExecuteTimeout(t *testing.T) {
	acc := &countingAccessor{execute: func(ctx context.Context, _ string) (*factstore.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	g := New(candidate(revenueSQL), safety.NewKeywordValidator(), scope.NewRewriter(), acc, Config{
		TranslateTimeout: time.Second,
		ExecuteTimeout:   20 * time.Millisecond,
	})

	outcome := g.Ask(context.Background(), Request{Question: "revenue", TenantID: "u-1"})
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, "TIMEOUT", outcome.ErrorCode)
	assert.Equal(t, revenueSQL, outcome.SQL)
}

func TestGateway_Ask_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"empty question", Request{Question: "   ", TenantID: "u-1"}},
		{"too long", Request{Question: strings.Repeat("a", 201), TenantID: "u-1"}},
		{"invalid tenant", Request{Question: "revenue", TenantID: "u-1' OR '1'='1"}},
		{"missing tenant", Request{Question: "revenue"}},
		{"tenant named in question", Request{Question: "revenue for u-1", TenantID: "u-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := candidate(revenueSQL)
			acc := &countingAccessor{execute: sumResult(1)}

			outcome := newGateway(tr, acc).Ask(context.Background(), tt.req)

			assert.Equal(t, StatusFailed, outcome.Status)
			assert.Equal(t, "INVALID_INPUT", outcome.ErrorCode)
			assert.Empty(t, outcome.SQL)
			assert.Zero(t, tr.callCount())
			assert.Zero(t, acc.calls.Load())
		})
	}
}

func TestGateway_Ask_Audit(t *testing.T) {
	sink := new(MockAuditSink)
	sink.On("Record", mock.Anything, Request{Question: "revenue", TenantID: "u-1"},
		mock.MatchedBy(func(o Outcome) bool { return o.Status == StatusSuccess }),
		mock.AnythingOfType("time.Duration")).
		Return(nil).Once()

	g := newGateway(candidate(revenueSQL), &countingAccessor{execute: sumResult(1)})
	g.SetAuditSink(sink)

	outcome := g.Ask(context.Background(), Request{Question: "revenue", TenantID: "u-1"})
	assert.Equal(t, StatusSuccess, outcome.Status)
	sink.AssertExpectations(t)
}

func TestGateway_Ask_AuditRecordsRejections(t *testing.T) {
	sink := new(MockAuditSink)
	sink.On("Record", mock.Anything, mock.Anything,
		mock.MatchedBy(func(o Outcome) bool { return o.Status == StatusRejected && o.Category == "data-mutation" }),
		mock.Anything).
		Return(nil).Once()

	g := newGateway(candidate("UPDATE fact_daily_financials SET revenue_net = 0"), &countingAccessor{execute: sumResult(1)})
	g.SetAuditSink(sink)

	g.Ask(context.Background(), Request{Question: "reset", TenantID: "u-1"})
	sink.AssertExpectations(t)
}

func TestGateway_Ask_AuditFailureDoesNotChangeOutcome(t *testing.T) {
	sink := new(MockAuditSink)
	sink.On("Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("audit database down"))

	g := newGateway(candidate(revenueSQL), &countingAccessor{execute: sumResult(4231.5)})
	g.SetAuditSink(sink)

	outcome := g.Ask(context.Background(), Request{Question: "revenue", TenantID: "u-1"})
	assert.Equal(t, StatusSuccess, outcome.Status)
	assert.Empty(t, outcome.Error)
}

func TestGateway_Ask_AuditSurvivesCanceledCaller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var auditCtxErr error
	sink := new(MockAuditSink)
	sink.On("Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			auditCtxErr = args.Get(0).(context.Context).Err()
		}).
		Return(nil)

	acc := &countingAccessor{execute: func(context.Context, string) (*factstore.Result, error) {
		cancel()
		return nil, &factstore.Error{Kind: factstore.ErrorCanceled, Err: context.Canceled}
	}}

	g := newGateway(candidate(revenueSQL), acc)
	g.SetAuditSink(sink)

	outcome := g.Ask(ctx, Request{Question: "revenue", TenantID: "u-1"})
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.NoError(t, auditCtxErr)
}

// Concurrent questions from different tenants share the gateway but never
// each other's tenant filter.
func TestGateway_Ask_ConcurrentTenants(t *testing.T) {
	tr := translator.Func(func(ctx context.Context, q scope.ScopedQuestion) (translator.Translation, error) {
		return translator.Translation{
			Statement: "SELECT user_id FROM fact_daily_financials",
			Kind:      translator.KindCandidate,
		}, nil
	})
	acc := &countingAccessor{execute: func(_ context.Context, statement string) (*factstore.Result, error) {
		columns := []string{"statement"}
		return &factstore.Result{Columns: columns, Rows: []factstore.Row{{Columns: columns, Values: []any{statement}}}, RowCount: 1}, nil
	}}
	g := newGateway(tr, acc)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		tenant := fmt.Sprintf("tenant-%02d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome := g.Ask(context.Background(), Request{Question: "list rows", TenantID: tenant})
			assert.Equal(t, StatusSuccess, outcome.Status)
			assert.Contains(t, outcome.ExecutedSQL, "user_id = '"+tenant+"'")
			assert.Equal(t, 1, strings.Count(outcome.ExecutedSQL, "tenant-"))
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 20, acc.calls.Load())
}
