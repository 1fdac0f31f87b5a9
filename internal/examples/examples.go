// Package examples holds the material the query translator is primed with:
// the fact table DDL, documentation lines and question/SQL pairs.
package examples

import (
	"context"
	"sort"
	"strings"
)

// TenantPlaceholder stands in for the tenant id in example SQL, so no real
// tenant id ever enters a prompt through the corpus.
const TenantPlaceholder = "USER_ID"

// Example is a question paired with SQL that answers it
type Example struct {
	ID         string  `json:"id"`
	Question   string  `json:"question"`
	SQL        string  `json:"sql"`
	Similarity float64 `json:"similarity,omitempty"`
}

// Corpus is the schema context given to the translator on every call
type Corpus struct {
	DDL           string
	Documentation []string
	Examples      []Example
}

// Source returns the examples closest to a question
type Source interface {
	Similar(ctx context.Context, question string, limit int) ([]Example, error)
}

// FactTableDDL describes the analytical table owned by the ingestion subsystem
const FactTableDDL = `CREATE TABLE fact_daily_financials (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL,
    date DATE NOT NULL,
    revenue_gross NUMERIC(12, 2) DEFAULT 0,
    revenue_net NUMERIC(12, 2) DEFAULT 0,
    refunds NUMERIC(12, 2) DEFAULT 0,
    disputes NUMERIC(12, 2) DEFAULT 0,
    cost_ads_meta NUMERIC(12, 2) DEFAULT 0,
    cost_ads_google NUMERIC(12, 2) DEFAULT 0,
    cost_transaction_fees NUMERIC(12, 2) DEFAULT 0,
    cost_fixed_allocated NUMERIC(12, 2) DEFAULT 0,
    cost_variable NUMERIC(12, 2) DEFAULT 0,
    currency VARCHAR(3) DEFAULT 'USD',
    transactions_count INTEGER DEFAULT 0,
    orders_count INTEGER DEFAULT 0,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW(),
    UNIQUE (user_id, date)
);`

var documentation = []string{
	"The table fact_daily_financials contains daily aggregated financial metrics for users, one row per user per day.",
	"user_id identifies the owning account. Every query must filter on user_id.",
	"revenue_gross is revenue before refunds and disputes; revenue_net is revenue after them.",
	"Ad spend is split into cost_ads_meta and cost_ads_google.",
	"Net profit is revenue_net minus refunds, disputes, cost_ads_meta, cost_ads_google, cost_transaction_fees, cost_fixed_allocated and cost_variable.",
	"Return on ad spend (ROAS) is revenue_net divided by the sum of cost_ads_meta and cost_ads_google.",
	"Average order value is revenue_net divided by orders_count.",
	"Amounts are stored in the currency column, which defaults to USD.",
}

var seedExamples = []Example{
	{
		ID:       "total-revenue-since",
		Question: "What was my total revenue since January 2024?",
		SQL:      "SELECT sum(revenue_gross) FROM fact_daily_financials WHERE user_id = 'USER_ID' AND date >= '2024-01-01'",
	},
	{
		ID:       "net-revenue-last-week",
		Question: "What was my net revenue last week?",
		SQL:      "SELECT sum(revenue_net) FROM fact_daily_financials WHERE user_id = 'USER_ID' AND date >= date_trunc('week', current_date) - interval '7 days' AND date < date_trunc('week', current_date)",
	},
	{
		ID:       "ad-spend-this-month",
		Question: "How much did I spend on ads this month?",
		SQL:      "SELECT sum(cost_ads_meta) AS meta, sum(cost_ads_google) AS google, sum(cost_ads_meta + cost_ads_google) AS total FROM fact_daily_financials WHERE user_id = 'USER_ID' AND date >= date_trunc('month', current_date)",
	},
	{
		ID:       "net-profit-by-month",
		Question: "What is my net profit by month this year?",
		SQL:      "SELECT date_trunc('month', date) AS month, sum(revenue_net - refunds - disputes - cost_ads_meta - cost_ads_google - cost_transaction_fees - cost_fixed_allocated - cost_variable) AS net_profit FROM fact_daily_financials WHERE user_id = 'USER_ID' AND date >= date_trunc('year', current_date) GROUP BY 1 ORDER BY 1",
	},
	{
		ID:       "most-refunds-day",
		Question: "Which day had the most refunds?",
		SQL:      "SELECT date, refunds FROM fact_daily_financials WHERE user_id = 'USER_ID' ORDER BY refunds DESC LIMIT 1",
	},
	{
		ID:       "average-order-value",
		Question: "What is my average order value over the last 30 days?",
		SQL:      "SELECT sum(revenue_net) / NULLIF(sum(orders_count), 0) AS average_order_value FROM fact_daily_financials WHERE user_id = 'USER_ID' AND date >= current_date - 30",
	},
	{
		ID:       "daily-revenue-orders",
		Question: "Show daily revenue and orders for the last 7 days",
		SQL:      "SELECT date, revenue_net, orders_count FROM fact_daily_financials WHERE user_id = 'USER_ID' AND date >= current_date - 7 ORDER BY date",
	},
	{
		ID:       "roas-this-quarter",
		Question: "What is my return on ad spend this quarter?",
		SQL:      "SELECT sum(revenue_net) / NULLIF(sum(cost_ads_meta + cost_ads_google), 0) AS roas FROM fact_daily_financials WHERE user_id = 'USER_ID' AND date >= date_trunc('quarter', current_date)",
	},
}

// Seed returns the built-in corpus. The returned slices are copies.
func Seed() Corpus {
	docs := make([]string, len(documentation))
	copy(docs, documentation)
	exs := make([]Example, len(seedExamples))
	copy(exs, seedExamples)
	return Corpus{DDL: FactTableDDL, Documentation: docs, Examples: exs}
}

// StaticSource ranks a fixed example list by embedding similarity
type StaticSource struct {
	examples   []Example
	embeddings [][]float32
}

// NewStaticSource indexes the given examples
func NewStaticSource(exs []Example) *StaticSource {
	s := &StaticSource{examples: exs, embeddings: make([][]float32, len(exs))}
	for i, ex := range exs {
		s.embeddings[i] = Embed(ex.Question)
	}
	return s
}

// Similar implements Source
func (s *StaticSource) Similar(ctx context.Context, question string, limit int) ([]Example, error) {
	if limit <= 0 || len(s.examples) == 0 {
		return nil, nil
	}
	query := Embed(question)

	ranked := make([]Example, len(s.examples))
	for i, ex := range s.examples {
		ex.Similarity = cosine(query, s.embeddings[i])
		ranked[i] = ex
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Similarity > ranked[j].Similarity
	})

	if limit > len(ranked) {
		limit = len(ranked)
	}
	return ranked[:limit], nil
}

// WithTenant substitutes the placeholder in an example's SQL
func (e Example) WithTenant(tenantID string) string {
	return strings.ReplaceAll(e.SQL, TenantPlaceholder, tenantID)
}
