package scope

import (
	"fmt"
	"strings"

	"github.com/profitpulse/query-gateway/internal/safety"
)

// AllowedFunctions are the calls a scoped statement may make. Anything else
// followed by "(" is rejected: a function can read a relation by name or run
// a query passed as text, and the rewriter cannot see inside either.
var AllowedFunctions = map[string]bool{
	// aggregates
	"sum": true, "count": true, "avg": true, "min": true, "max": true,
	"stddev": true, "stddev_pop": true, "stddev_samp": true,
	"variance": true, "var_pop": true, "var_samp": true,
	"bool_and": true, "bool_or": true, "every": true,
	"string_agg": true, "array_agg": true, "group_concat": true,
	"percentile_cont": true, "percentile_disc": true, "mode": true,
	"corr": true, "covar_pop": true, "covar_samp": true,
	"regr_slope": true, "regr_intercept": true, "grouping": true,

	// window
	"row_number": true, "rank": true, "dense_rank": true, "percent_rank": true,
	"cume_dist": true, "ntile": true, "lag": true, "lead": true,
	"first_value": true, "last_value": true, "nth_value": true,

	// scalar
	"coalesce": true, "nullif": true, "greatest": true, "least": true, "ifnull": true,
	"abs": true, "round": true, "ceil": true, "ceiling": true, "floor": true,
	"trunc": true, "sign": true, "sqrt": true, "power": true, "exp": true,
	"ln": true, "log": true, "mod": true, "div": true, "cast": true,
	"lower": true, "upper": true, "length": true, "char_length": true,
	"substring": true, "substr": true, "trim": true, "btrim": true,
	"ltrim": true, "rtrim": true, "replace": true, "concat": true,
	"concat_ws": true, "left": true, "right": true, "position": true,
	"strpos": true, "split_part": true, "lpad": true, "rpad": true,
	"initcap": true, "to_char": true, "to_number": true,

	// dates
	"date_trunc": true, "date_part": true, "extract": true, "age": true,
	"now": true, "make_date": true, "make_interval": true, "make_timestamp": true,
	"to_date": true, "to_timestamp": true, "justify_days": true,
	"date": true, "strftime": true, "julianday": true,

	// set-returning, usable after FROM
	"generate_series": true, "unnest": true,

	// type modifiers, as in numeric(12, 2)
	"numeric": true, "decimal": true, "varchar": true, "char": true,
	"character": true, "timestamp": true, "timestamptz": true, "time": true,
	"interval": true, "float": true, "bit": true,
}

// callKeywords may be followed by "(" without being a call
var callKeywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "JOIN": true, "ON": true, "USING": true,
	"AS": true, "AND": true, "OR": true, "NOT": true, "IN": true, "EXISTS": true,
	"ANY": true, "ALL": true, "SOME": true, "VALUES": true, "OVER": true, "FILTER": true,
	"WITH": true, "UNION": true, "INTERSECT": true, "EXCEPT": true, "GROUP": true, "BY": true,
	"ROLLUP": true, "CUBE": true, "SETS": true, "HAVING": true, "CASE": true, "WHEN": true,
	"THEN": true, "ELSE": true, "IS": true, "LIKE": true, "ILIKE": true, "SIMILAR": true,
	"BETWEEN": true, "DISTINCT": true, "ROW": true, "ARRAY": true, "LIMIT": true,
	"OFFSET": true, "LATERAL": true, "ONLY": true, "MATERIALIZED": true,
}

func rejectFunction(name, format string, args ...interface{}) *RejectedError {
	return &RejectedError{Category: safety.CategoryDangerousFunction, Relation: name, Reason: fmt.Sprintf(format, args...)}
}

// checkCall rejects sig[i] when it names a function that is not allowed.
// Column lists after an alias or a CTE name are not calls.
func (r *Rewriter) checkCall(sig []safety.Token, i int, f *frame, cteNames map[int]bool) error {
	tok := sig[i]
	if tok.Kind != safety.Word && tok.Kind != safety.QuotedIdent {
		return nil
	}
	if i+1 >= len(sig) || !sig[i+1].IsPunct("(") {
		return nil
	}
	if tok.Kind == safety.Word && callKeywords[tok.Upper()] {
		return nil
	}
	if cteNames[i] {
		return nil
	}
	if i > 0 {
		prev := sig[i-1]
		switch {
		case prev.IsWord("AS"):
			return nil
		case prev.IsPunct(")") && f.fromClause:
			return nil
		case prev.IsPunct("."):
			name := qualifiedBefore(sig, i)
			return rejectFunction(name, "function %s is not allowed", name)
		}
	}

	name := identName(tok)
	if !r.AllowedFunctions[name] {
		return rejectFunction(name, "function %s is not allowed", name)
	}
	return nil
}

// qualifiedBefore joins the dotted name ending at sig[i]
func qualifiedBefore(sig []safety.Token, i int) string {
	names := []string{identName(sig[i])}
	for j := i - 1; j >= 1 && sig[j].IsPunct(".") && (sig[j-1].Kind == safety.Word || sig[j-1].Kind == safety.QuotedIdent); j -= 2 {
		names = append([]string{identName(sig[j-1])}, names...)
	}
	return strings.Join(names, ".")
}
