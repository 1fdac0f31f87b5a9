package scope

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/profitpulse/query-gateway/internal/safety"
)

const scopedU1 = "(SELECT * FROM fact_daily_financials WHERE user_id = 'u-1')"

func TestRewriter_Rewrite(t *testing.T) {
	tests := []struct {
		name   string
		sql    string
		want   string
		scoped int
	}{
		{
			name:   "single reference without alias",
			sql:    "SELECT sum(revenue_net) FROM fact_daily_financials WHERE date >= '2024-01-01'",
			want:   "SELECT sum(revenue_net) FROM " + scopedU1 + " AS fact_daily_financials WHERE date >= '2024-01-01'",
			scoped: 1,
		},
		{
			name:   "bare alias",
			sql:    "SELECT f.revenue_net FROM fact_daily_financials f",
			want:   "SELECT f.revenue_net FROM " + scopedU1 + " f",
			scoped: 1,
		},
		{
			name:   "as alias",
			sql:    "SELECT f.revenue_net FROM fact_daily_financials AS f ORDER BY 1",
			want:   "SELECT f.revenue_net FROM " + scopedU1 + " AS f ORDER BY 1",
			scoped: 1,
		},
		{
			name:   "upper case table name",
			sql:    "SELECT * FROM FACT_DAILY_FINANCIALS",
			want:   "SELECT * FROM (SELECT * FROM FACT_DAILY_FINANCIALS WHERE user_id = 'u-1') AS FACT_DAILY_FINANCIALS",
			scoped: 1,
		},
		{
			name:   "self join",
			sql:    "SELECT a.date FROM fact_daily_financials a JOIN fact_daily_financials b ON a.date = b.date",
			want:   "SELECT a.date FROM " + scopedU1 + " a JOIN " + scopedU1 + " b ON a.date = b.date",
			scoped: 2,
		},
		{
			name:   "comma list",
			sql:    "SELECT * FROM fact_daily_financials a, fact_daily_financials b",
			want:   "SELECT * FROM " + scopedU1 + " a, " + scopedU1 + " b",
			scoped: 2,
		},
		{
			name:   "schema qualified",
			sql:    "SELECT * FROM public.fact_daily_financials",
			want:   "SELECT * FROM (SELECT * FROM public.fact_daily_financials WHERE user_id = 'u-1') AS fact_daily_financials",
			scoped: 1,
		},
		{
			name:   "cte body is scoped and the cte reference is not",
			sql:    "WITH w AS (SELECT date, revenue_net FROM fact_daily_financials) SELECT sum(revenue_net) FROM w",
			want:   "WITH w AS (SELECT date, revenue_net FROM " + scopedU1 + " AS fact_daily_financials) SELECT sum(revenue_net) FROM w",
			scoped: 1,
		},
		{
			name:   "subquery in where",
			sql:    "SELECT 1 WHERE EXISTS (SELECT 1 FROM fact_daily_financials)",
			want:   "SELECT 1 WHERE EXISTS (SELECT 1 FROM " + scopedU1 + " AS fact_daily_financials)",
			scoped: 1,
		},
		{
			name:   "extract does not start a from clause",
			sql:    "SELECT extract(year FROM date) AS y, sum(revenue_net) FROM fact_daily_financials GROUP BY 1",
			want:   "SELECT extract(year FROM date) AS y, sum(revenue_net) FROM " + scopedU1 + " AS fact_daily_financials GROUP BY 1",
			scoped: 1,
		},
		{
			name:   "is distinct from",
			sql:    "SELECT * FROM fact_daily_financials WHERE currency IS DISTINCT FROM 'USD'",
			want:   "SELECT * FROM " + scopedU1 + " AS fact_daily_financials WHERE currency IS DISTINCT FROM 'USD'",
			scoped: 1,
		},
		{
			name:   "table statement",
			sql:    "TABLE fact_daily_financials",
			want:   "SELECT * FROM " + scopedU1 + " AS fact_daily_financials",
			scoped: 1,
		},
		{
			name:   "parenthesised join tree",
			sql:    "SELECT * FROM (fact_daily_financials a JOIN fact_daily_financials b USING (date))",
			want:   "SELECT * FROM (" + scopedU1 + " a JOIN " + scopedU1 + " b USING (date))",
			scoped: 2,
		},
		{
			name:   "comments are kept",
			sql:    "SELECT * FROM /* facts */ fact_daily_financials -- all\n",
			want:   "SELECT * FROM /* facts */ " + scopedU1 + " AS fact_daily_financials -- all\n",
			scoped: 1,
		},
		{
			name: "table function",
			sql:  "SELECT * FROM generate_series(1, 3) g",
			want: "SELECT * FROM generate_series(1, 3) g",
		},
		{
			name: "table function with column alias list",
			sql:  "SELECT sum(n) FROM generate_series(1, 3) AS g(n)",
			want: "SELECT sum(n) FROM generate_series(1, 3) AS g(n)",
		},
		{
			name:   "nested allowed functions and a cast",
			sql:    "SELECT date_trunc('month', date) AS m, round(coalesce(sum(revenue_net), 0)::numeric(12, 2), 2) FROM fact_daily_financials GROUP BY 1",
			want:   "SELECT date_trunc('month', date) AS m, round(coalesce(sum(revenue_net), 0)::numeric(12, 2), 2) FROM " + scopedU1 + " AS fact_daily_financials GROUP BY 1",
			scoped: 1,
		},
		{
			name:   "aggregate filter and window",
			sql:    "SELECT count(*) FILTER (WHERE refunds > 0), rank() OVER (ORDER BY date) FROM fact_daily_financials",
			want:   "SELECT count(*) FILTER (WHERE refunds > 0), rank() OVER (ORDER BY date) FROM " + scopedU1 + " AS fact_daily_financials",
			scoped: 1,
		},
		{
			name:   "in list and exists",
			sql:    "SELECT 1 FROM fact_daily_financials WHERE currency IN ('USD', 'EUR') AND NOT EXISTS (SELECT 1)",
			want:   "SELECT 1 FROM " + scopedU1 + " AS fact_daily_financials WHERE currency IN ('USD', 'EUR') AND NOT EXISTS (SELECT 1)",
			scoped: 1,
		},
		{
			name: "no relation",
			sql:  "SELECT 1",
			want: "SELECT 1",
		},
	}

	r := NewRewriter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Rewrite(tt.sql, "u-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Statement)
			assert.Equal(t, tt.scoped, got.Scoped)
		})
	}
}

func TestRewriter_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		category safety.Category
		relation string
	}{
		{
			name:     "unknown table",
			sql:      "SELECT * FROM users",
			category: safety.CategoryRelation,
			relation: "users",
		},
		{
			name:     "catalog table",
			sql:      "SELECT * FROM pg_catalog.pg_user",
			category: safety.CategoryRelation,
			relation: "pg_catalog.pg_user",
		},
		{
			name:     "information schema",
			sql:      "SELECT table_name FROM information_schema.tables",
			category: safety.CategoryRelation,
			relation: "information_schema.tables",
		},
		{
			name:     "protected table in another schema",
			sql:      "SELECT * FROM staging.fact_daily_financials",
			category: safety.CategoryRelation,
			relation: "staging.fact_daily_financials",
		},
		{
			name:     "joined unknown table",
			sql:      "SELECT * FROM fact_daily_financials f JOIN users u ON u.id = f.user_id",
			category: safety.CategoryRelation,
			relation: "users",
		},
		{
			name:     "cte name used outside its scope",
			sql:      "SELECT * FROM (WITH users AS (SELECT 1) SELECT * FROM users) x, users",
			category: safety.CategoryRelation,
			relation: "users",
		},
		{
			name:     "non recursive cte referencing its own name",
			sql:      "WITH users AS (SELECT * FROM users) SELECT * FROM users",
			category: safety.CategoryRelation,
			relation: "users",
		},
		{
			name:     "cte shadowing the protected table",
			sql:      "WITH fact_daily_financials AS (SELECT 1) SELECT * FROM fact_daily_financials",
			category: safety.CategoryRelation,
			relation: "fact_daily_financials",
		},
		{
			name:     "function reading a whole table by name",
			sql:      "SELECT table_to_xml_and_xmlschema('fact_daily_financials', true, false, '')",
			category: safety.CategoryDangerousFunction,
			relation: "table_to_xml_and_xmlschema",
		},
		{
			name:     "quoted function running a query string",
			sql:      `SELECT "query_to_xml"('select * from fact_daily_financials', true, false, '')`,
			category: safety.CategoryDangerousFunction,
			relation: "query_to_xml",
		},
		{
			name:     "quoted table function after from",
			sql:      `SELECT * FROM "ts_stat"('select to_tsvector(user_id::text) from fact_daily_financials')`,
			category: safety.CategoryDangerousFunction,
			relation: "ts_stat",
		},
		{
			name:     "schema qualified table function",
			sql:      "SELECT query FROM pg_catalog.pg_stat_get_activity(NULL)",
			category: safety.CategoryDangerousFunction,
			relation: "pg_catalog.pg_stat_get_activity",
		},
		{
			name:     "schema qualified call in the select list",
			sql:      "SELECT pg_catalog.pg_stat_get_activity(NULL)",
			category: safety.CategoryDangerousFunction,
			relation: "pg_catalog.pg_stat_get_activity",
		},
		{
			name:     "unknown function in where",
			sql:      "SELECT * FROM fact_daily_financials WHERE length(current_setting('role')) > 0",
			category: safety.CategoryDangerousFunction,
			relation: "current_setting",
		},
		{
			name:     "unknown function after a scoped relation",
			sql:      "SELECT * FROM fact_daily_financials f, xpath('/a', '<a/>'::xml)",
			category: safety.CategoryDangerousFunction,
			relation: "xpath",
		},
		{
			name:     "unbalanced parenthesis",
			sql:      "SELECT (1 FROM fact_daily_financials",
			category: safety.CategoryAmbiguous,
		},
		{
			name:     "dangling from",
			sql:      "SELECT * FROM",
			category: safety.CategoryAmbiguous,
		},
		{
			name:     "literal where a relation belongs",
			sql:      "SELECT * FROM 'fact_daily_financials'",
			category: safety.CategoryAmbiguous,
		},
	}

	r := NewRewriter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Rewrite(tt.sql, "u-1")
			require.Error(t, err)

			var rejected *RejectedError
			require.True(t, errors.As(err, &rejected))
			assert.Equal(t, tt.category, rejected.Category)
			if tt.relation != "" {
				assert.Equal(t, tt.relation, rejected.Relation)
			}

			verdict := rejected.Verdict()
			assert.False(t, verdict.Safe)
			assert.Equal(t, tt.category, verdict.Category)
		})
	}
}

func TestRewriter_RecursiveCTE(t *testing.T) {
	sql := "WITH RECURSIVE d(n) AS (SELECT 1 UNION ALL SELECT n + 1 FROM d WHERE n < 7) SELECT * FROM d"

	got, err := NewRewriter().Rewrite(sql, "u-1")
	require.NoError(t, err)
	assert.Equal(t, sql, got.Statement)
}

func TestRewriter_InvalidTenant(t *testing.T) {
	_, err := NewRewriter().Rewrite("SELECT 1", "u-1' OR '1'='1")
	assert.ErrorIs(t, err, ErrInvalidTenant)
}

func TestRewriter_Deterministic(t *testing.T) {
	r := NewRewriter()
	sql := "SELECT date, revenue_net FROM fact_daily_financials ORDER BY date DESC LIMIT 7"

	first, err := r.Rewrite(sql, "tenant-42")
	require.NoError(t, err)
	second, err := r.Rewrite(sql, "tenant-42")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// A statement generated for one tenant, even one naming another tenant,
// only ever reads the caller's rows after rewriting.
func TestRewriter_OverridesForeignTenantFilter(t *testing.T) {
	sql := "SELECT sum(revenue_net) FROM fact_daily_financials WHERE user_id = 'u-2'"

	got, err := NewRewriter().Rewrite(sql, "u-1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(got.Statement, "SELECT sum(revenue_net) FROM "+scopedU1))
	assert.Equal(t, 1, got.Scoped)
}

func TestRewriter_CustomTables(t *testing.T) {
	r := NewRewriter("fact_daily_financials", "fact_ad_spend")

	got, err := r.Rewrite("SELECT * FROM fact_ad_spend s JOIN fact_daily_financials f USING (date)", "u-1")
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT * FROM (SELECT * FROM fact_ad_spend WHERE user_id = 'u-1') s JOIN "+scopedU1+" f USING (date)",
		got.Statement)
}
