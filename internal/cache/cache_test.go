package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/profitpulse/query-gateway/internal/factstore"
	"github.com/profitpulse/query-gateway/internal/gateway"
)

// MockAsker is a mock implementation of gateway.Asker
type MockAsker struct {
	mock.Mock
}

func (m *MockAsker) Ask(ctx context.Context, req gateway.Request) gateway.Outcome {
	args := m.Called(ctx, req)
	return args.Get(0).(gateway.Outcome)
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func successOutcome(sum float64) gateway.Outcome {
	columns := []string{"sum"}
	return gateway.Outcome{
		Status:      gateway.StatusSuccess,
		SQL:         "SELECT sum(revenue_net) FROM fact_daily_financials",
		Data:        []factstore.Row{{Columns: columns, Values: []any{sum}}},
		RowCount:    1,
		Explanation: gateway.DefaultExplanation,
	}
}

func TestCache_HitAfterSuccess(t *testing.T) {
	mr, client := setupRedis(t)
	req := gateway.Request{Question: "What was my revenue?", TenantID: "u-1"}

	next := new(MockAsker)
	next.On("Ask", mock.Anything, req).Return(successOutcome(4231.5)).Once()

	c := New(next, client, 5*time.Minute)

	first := c.Ask(context.Background(), req)
	assert.False(t, first.Cached)

	second := c.Ask(context.Background(), req)
	assert.True(t, second.Cached)
	assert.Equal(t, first.SQL, second.SQL)
	require.Len(t, second.Data, 1)
	sum, _ := second.Data[0].Get("sum")
	assert.Equal(t, 4231.5, sum)

	next.AssertExpectations(t)
	assert.Equal(t, 5*time.Minute, mr.TTL(Key(req)))
}

func TestCache_FailuresAreNotCached(t *testing.T) {
	_, client := setupRedis(t)
	req := gateway.Request{Question: "drop everything", TenantID: "u-1"}

	for _, outcome := range []gateway.Outcome{
		{Status: gateway.StatusRejected, SQL: "DROP TABLE x", Error: "blocked", ErrorCode: "UNSAFE_STATEMENT"},
		{Status: gateway.StatusFailed, Error: "timeout", ErrorCode: "TIMEOUT"},
	} {
		next := new(MockAsker)
		next.On("Ask", mock.Anything, req).Return(outcome).Twice()

		c := New(next, client, time.Minute)
		c.Ask(context.Background(), req)
		got := c.Ask(context.Background(), req)

		assert.False(t, got.Cached)
		next.AssertExpectations(t)
	}
}

func TestCache_IsolatesTenants(t *testing.T) {
	_, client := setupRedis(t)

	next := new(MockAsker)
	next.On("Ask", mock.Anything, gateway.Request{Question: "revenue", TenantID: "u-1"}).Return(successOutcome(1)).Once()
	next.On("Ask", mock.Anything, gateway.Request{Question: "revenue", TenantID: "u-2"}).Return(successOutcome(2)).Once()

	c := New(next, client, time.Minute)
	c.Ask(context.Background(), gateway.Request{Question: "revenue", TenantID: "u-1"})

	other := c.Ask(context.Background(), gateway.Request{Question: "revenue", TenantID: "u-2"})
	assert.False(t, other.Cached)
	sum, _ := other.Data[0].Get("sum")
	assert.Equal(t, 2.0, sum)

	next.AssertExpectations(t)
}

func TestKey(t *testing.T) {
	base := Key(gateway.Request{Question: "What was my revenue?", TenantID: "u-1"})

	assert.Equal(t, base, Key(gateway.Request{Question: "  What   was my\trevenue? ", TenantID: "u-1"}))
	assert.NotEqual(t, base, Key(gateway.Request{Question: "what WAS my revenue?", TenantID: "u-1"}))
	assert.NotEqual(t, base, Key(gateway.Request{Question: "What was my revenue?", TenantID: "u-2"}))
	assert.NotEqual(t, base, Key(gateway.Request{Question: "What were my refunds?", TenantID: "u-1"}))
	assert.Contains(t, base, "{u-1}")

	upper := Key(gateway.Request{Question: "orders in currency 'EUR'", TenantID: "u-1"})
	lower := Key(gateway.Request{Question: "orders in currency 'eur'", TenantID: "u-1"})
	assert.NotEqual(t, upper, lower, "literals differing only in case get their own entries")
}

func TestCache_RedisDown(t *testing.T) {
	mr, client := setupRedis(t)
	req := gateway.Request{Question: "revenue", TenantID: "u-1"}

	next := new(MockAsker)
	next.On("Ask", mock.Anything, req).Return(successOutcome(1)).Twice()

	c := New(next, client, time.Minute)
	mr.Close()

	assert.Error(t, c.Ping(context.Background()))
	assert.Equal(t, gateway.StatusSuccess, c.Ask(context.Background(), req).Status)
	assert.Equal(t, gateway.StatusSuccess, c.Ask(context.Background(), req).Status)
	next.AssertExpectations(t)
}

func TestCache_DropsCorruptEntries(t *testing.T) {
	mr, client := setupRedis(t)
	req := gateway.Request{Question: "revenue", TenantID: "u-1"}
	require.NoError(t, mr.Set(Key(req), "{not json"))

	next := new(MockAsker)
	next.On("Ask", mock.Anything, req).Return(successOutcome(1)).Once()

	got := New(next, client, time.Minute).Ask(context.Background(), req)
	assert.False(t, got.Cached)
	next.AssertExpectations(t)

	stored, err := mr.Get(Key(req))
	require.NoError(t, err)
	assert.NotEqual(t, "{not json", stored)
}

func TestCache_Invalidate(t *testing.T) {
	mr, client := setupRedis(t)

	next := new(MockAsker)
	next.On("Ask", mock.Anything, mock.Anything).Return(successOutcome(1))

	c := New(next, client, time.Minute)
	ctx := context.Background()
	c.Ask(ctx, gateway.Request{Question: "revenue", TenantID: "u-1"})
	c.Ask(ctx, gateway.Request{Question: "refunds", TenantID: "u-1"})
	c.Ask(ctx, gateway.Request{Question: "revenue", TenantID: "u-1:eu"})
	c.Ask(ctx, gateway.Request{Question: "revenue", TenantID: "u-2"})

	removed, err := c.Invalidate(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	assert.False(t, mr.Exists(Key(gateway.Request{Question: "revenue", TenantID: "u-1"})))
	assert.True(t, mr.Exists(Key(gateway.Request{Question: "revenue", TenantID: "u-1:eu"})))
	assert.True(t, mr.Exists(Key(gateway.Request{Question: "revenue", TenantID: "u-2"})))
}
