package scope

import (
	"fmt"
	"strings"

	"github.com/profitpulse/query-gateway/internal/safety"
)

// RejectedError reports a statement the rewriter refused to scope
type RejectedError struct {
	Category safety.Category
	Relation string
	Reason   string
}

func (e *RejectedError) Error() string {
	return "scope: " + e.Reason
}

// Verdict converts the rejection into a validator verdict
func (e *RejectedError) Verdict() safety.Verdict {
	return safety.Unsafe(e.Category, e.Relation, e.Reason)
}

func rejectRelation(relation, format string, args ...interface{}) *RejectedError {
	return &RejectedError{Category: safety.CategoryRelation, Relation: relation, Reason: fmt.Sprintf(format, args...)}
}

func rejectAmbiguous(format string, args ...interface{}) *RejectedError {
	return &RejectedError{Category: safety.CategoryAmbiguous, Reason: fmt.Sprintf(format, args...)}
}

// Rewritten is a statement with every protected relation replaced by a
// tenant-filtered derived table.
type Rewritten struct {
	Statement string
	Scoped    int
}

// Rewriter injects the tenant filter into generated SQL. Every reference to
// a protected table after FROM, JOIN or TABLE becomes
//
//	(SELECT * FROM <table> WHERE <isolation column> = '<tenant>') AS <alias>
//
// CTE names visible at the reference are left alone. Any other relation, and
// any call to a function outside AllowedFunctions, is rejected, so the
// statement can only read tenant rows.
type Rewriter struct {
	// ProtectedTables holds lower-case table names
	ProtectedTables map[string]bool
	// Schemas a protected table may be qualified with
	Schemas         map[string]bool
	IsolationColumn string
	// AllowedFunctions holds lower-case function names
	AllowedFunctions map[string]bool
}

// NewRewriter returns a rewriter protecting the given tables
func NewRewriter(tables ...string) *Rewriter {
	if len(tables) == 0 {
		tables = []string{"fact_daily_financials"}
	}
	protected := make(map[string]bool, len(tables))
	for _, t := range tables {
		protected[strings.ToLower(t)] = true
	}
	return &Rewriter{
		ProtectedTables:  protected,
		Schemas:          map[string]bool{"public": true, "main": true},
		IsolationColumn:  IsolationColumn,
		AllowedFunctions: AllowedFunctions,
	}
}

// aliasStop are words that may follow a relation but are never its alias
var aliasStop = map[string]bool{
	"WHERE": true, "JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true, "FULL": true,
	"CROSS": true, "NATURAL": true, "ON": true, "USING": true, "GROUP": true, "ORDER": true,
	"HAVING": true, "LIMIT": true, "OFFSET": true, "FETCH": true, "UNION": true,
	"INTERSECT": true, "EXCEPT": true, "WINDOW": true, "FOR": true, "TABLESAMPLE": true,
	"RETURNING": true,
}

// clauseEnd closes the FROM clause of the current query level
var clauseEnd = map[string]bool{
	"WHERE": true, "GROUP": true, "HAVING": true, "WINDOW": true, "ORDER": true,
	"LIMIT": true, "OFFSET": true, "FETCH": true, "UNION": true, "INTERSECT": true,
	"EXCEPT": true, "FOR": true, "RETURNING": true, "SELECT": true,
}

var queryStart = map[string]bool{"SELECT": true, "WITH": true, "VALUES": true, "TABLE": true}

// frame is the parse state of one bracket group
type frame struct {
	query      bool
	fromClause bool
	expect     bool
	tableAt    int
}

type reference struct {
	start, end int
	name       string
	hasAlias   bool
	alias      string
	tableStmt  bool
}

type cteDef struct {
	name        string
	at          int
	group       int
	visibleFrom int
}

// Rewrite returns the tenant-scoped form of statement. The input is expected
// to have passed the safety validator already.
func (r *Rewriter) Rewrite(statement, tenantID string) (Rewritten, error) {
	if !ValidTenantID(tenantID) {
		return Rewritten{}, ErrInvalidTenant
	}

	tokens, err := safety.Tokenize(statement)
	if err != nil {
		return Rewritten{}, rejectAmbiguous("%v", err)
	}
	sig := safety.Significant(tokens)

	enclosing, closing, err := bracketGroups(sig)
	if err != nil {
		return Rewritten{}, err
	}

	ctes := collectCTEs(sig, enclosing, closing)
	for _, def := range ctes {
		if r.ProtectedTables[strings.ToLower(def.name)] {
			return Rewritten{}, rejectRelation(def.name, "common table expression %s shadows a protected table", def.name)
		}
	}

	refs, err := r.references(sig, enclosing, ctes)
	if err != nil {
		return Rewritten{}, err
	}

	var sb strings.Builder
	last := 0
	for _, ref := range refs {
		sb.WriteString(statement[last:ref.start])
		if ref.tableStmt {
			sb.WriteString("SELECT * FROM ")
		}
		sb.WriteString(fmt.Sprintf("(SELECT * FROM %s WHERE %s = %s)", ref.name, r.IsolationColumn, quoteLiteral(tenantID)))
		if !ref.hasAlias {
			sb.WriteString(" AS " + ref.alias)
		}
		last = ref.end
	}
	sb.WriteString(statement[last:])

	return Rewritten{Statement: sb.String(), Scoped: len(refs)}, nil
}

// references walks the statement and returns the protected relations to
// wrap, in text order.
func (r *Rewriter) references(sig []safety.Token, enclosing []int, ctes []cteDef) ([]reference, error) {
	frames := map[int]*frame{-1: {query: true, tableAt: -1}}
	var refs []reference

	cteNames := make(map[int]bool, len(ctes))
	for _, def := range ctes {
		cteNames[def.at] = true
	}

	for i := 0; i < len(sig); i++ {
		tok := sig[i]
		f := frames[enclosing[i]]

		if !f.expect {
			if err := r.checkCall(sig, i, f, cteNames); err != nil {
				return nil, err
			}
		}

		switch {
		case tok.IsPunct("(") || tok.IsPunct("["):
			nf := &frame{query: tok.Text == "(" && startsQuery(sig, i+1), tableAt: -1}
			if f.expect {
				f.expect = false
				if !nf.query && tok.Text == "(" {
					// parenthesised join tree
					nf.fromClause = true
					nf.expect = true
				}
			}
			frames[i] = nf

		case tok.IsPunct(")") || tok.IsPunct("]"):

		case f.expect:
			if tok.IsWord("LATERAL") || tok.IsWord("ONLY") {
				continue
			}
			if tok.Kind != safety.Word && tok.Kind != safety.QuotedIdent {
				return nil, rejectAmbiguous("unexpected %s %q where a relation was expected", tok.Kind, tok.Text)
			}

			parts := []safety.Token{tok}
			j := i + 1
			for j+1 < len(sig) && sig[j].IsPunct(".") && (sig[j+1].Kind == safety.Word || sig[j+1].Kind == safety.QuotedIdent) {
				parts = append(parts, sig[j+1])
				j += 2
			}
			f.expect = false
			tableAt := f.tableAt
			f.tableAt = -1

			if j < len(sig) && sig[j].IsPunct("(") && tableAt < 0 {
				// table function; its arguments are scanned as an ordinary group
				name := identName(parts[0])
				if len(parts) > 1 {
					name = qualifiedBefore(sig, j-1)
				}
				if len(parts) > 1 || !r.AllowedFunctions[name] {
					return nil, rejectFunction(name, "function %s is not allowed after FROM", name)
				}
				i = j - 1
				continue
			}

			ref, scoped, err := r.classify(parts, i, enclosing, ctes)
			if err != nil {
				return nil, err
			}
			if scoped {
				ref.start = parts[0].Start
				if tableAt >= 0 {
					ref.start = sig[tableAt].Start
					ref.tableStmt = true
				}
				ref.end = parts[len(parts)-1].End
				ref.hasAlias = hasAlias(sig, j)
				ref.alias = parts[len(parts)-1].Text
				refs = append(refs, ref)
			}
			i = j - 1

		case tok.Kind == safety.Word:
			switch tok.Upper() {
			case "FROM":
				if f.query && !isDistinctFrom(sig, i) {
					f.fromClause = true
					f.expect = true
				}
			case "JOIN":
				if f.fromClause {
					f.expect = true
				}
			case "TABLE":
				if f.query {
					f.expect = true
					f.tableAt = i
				}
			default:
				if clauseEnd[tok.Upper()] {
					f.fromClause = false
				}
			}

		case tok.IsPunct(","):
			if f.fromClause {
				f.expect = true
			}
		}
	}

	for _, f := range frames {
		if f.expect {
			return nil, rejectAmbiguous("statement ends where a relation was expected")
		}
	}
	return refs, nil
}

// classify decides whether a relation is a visible CTE (left alone), a
// protected table (scoped) or anything else (rejected).
func (r *Rewriter) classify(parts []safety.Token, at int, enclosing []int, ctes []cteDef) (reference, bool, error) {
	names := make([]string, len(parts))
	for i, p := range parts {
		names[i] = identName(p)
	}
	qualified := strings.Join(names, ".")

	if len(names) == 1 && cteVisible(names[0], at, enclosing, ctes) {
		return reference{}, false, nil
	}

	table := strings.ToLower(names[len(names)-1])
	if r.ProtectedTables[table] {
		switch {
		case len(names) == 1:
		case len(names) == 2 && r.Schemas[strings.ToLower(names[0])]:
		default:
			return reference{}, false, rejectRelation(qualified, "relation %s is outside the allowed schemas", qualified)
		}
		text := make([]string, len(parts))
		for i, p := range parts {
			text[i] = p.Text
		}
		return reference{name: strings.Join(text, ".")}, true, nil
	}

	return reference{}, false, rejectRelation(qualified, "relation %s is not queryable", qualified)
}

// bracketGroups returns, for every token, the index of the innermost open
// bracket enclosing it (-1 at top level), and for every open bracket the
// index of its matching close.
func bracketGroups(sig []safety.Token) ([]int, map[int]int, error) {
	enclosing := make([]int, len(sig))
	closing := make(map[int]int)
	var stack []int

	for i, tok := range sig {
		enclosing[i] = -1
		if len(stack) > 0 {
			enclosing[i] = stack[len(stack)-1]
		}
		switch {
		case tok.IsPunct("(") || tok.IsPunct("["):
			stack = append(stack, i)
		case tok.IsPunct(")") || tok.IsPunct("]"):
			if len(stack) == 0 {
				return nil, nil, rejectAmbiguous("unbalanced %q at offset %d", tok.Text, tok.Start)
			}
			open := stack[len(stack)-1]
			if (sig[open].Text == "(") != (tok.Text == ")") {
				return nil, nil, rejectAmbiguous("mismatched %q at offset %d", tok.Text, tok.Start)
			}
			closing[open] = i
			stack = stack[:len(stack)-1]
			enclosing[i] = enclosing[open]
		}
	}
	if len(stack) > 0 {
		return nil, nil, rejectAmbiguous("unclosed %q at offset %d", sig[stack[len(stack)-1]].Text, sig[stack[len(stack)-1]].Start)
	}
	return enclosing, closing, nil
}

// collectCTEs finds every WITH list. A non-recursive CTE is visible after
// its own body; a recursive one inside it as well.
func collectCTEs(sig []safety.Token, enclosing []int, closing map[int]int) []cteDef {
	var defs []cteDef
	for i, tok := range sig {
		if !tok.IsWord("WITH") {
			continue
		}
		group := enclosing[i]
		j := i + 1
		recursive := j < len(sig) && sig[j].IsWord("RECURSIVE")
		if recursive {
			j++
		}
		for j < len(sig) && (sig[j].Kind == safety.Word || sig[j].Kind == safety.QuotedIdent) {
			name, at := identName(sig[j]), j
			j++
			if j < len(sig) && sig[j].IsPunct("(") {
				j = closing[j] + 1
			}
			if j >= len(sig) || !sig[j].IsWord("AS") {
				break
			}
			j++
			if j < len(sig) && sig[j].IsWord("NOT") {
				j++
			}
			if j < len(sig) && sig[j].IsWord("MATERIALIZED") {
				j++
			}
			if j >= len(sig) || !sig[j].IsPunct("(") {
				break
			}
			def := cteDef{name: name, at: at, group: group, visibleFrom: closing[j]}
			if recursive {
				def.visibleFrom = j
			}
			defs = append(defs, def)
			j = closing[j] + 1
			if j < len(sig) && sig[j].IsPunct(",") {
				j++
				continue
			}
			break
		}
	}
	return defs
}

func cteVisible(name string, at int, enclosing []int, ctes []cteDef) bool {
	for _, def := range ctes {
		if def.name != name || at <= def.visibleFrom {
			continue
		}
		for g := enclosing[at]; ; g = enclosing[g] {
			if g == def.group {
				return true
			}
			if g < 0 {
				break
			}
		}
	}
	return false
}

// identName folds unquoted identifiers to lower case and unquotes quoted ones
func identName(tok safety.Token) string {
	if tok.Kind == safety.QuotedIdent {
		inner := tok.Text[1 : len(tok.Text)-1]
		return strings.ReplaceAll(inner, `""`, `"`)
	}
	return strings.ToLower(tok.Text)
}

func startsQuery(sig []safety.Token, j int) bool {
	for ; j < len(sig); j++ {
		if sig[j].IsPunct("(") {
			continue
		}
		return sig[j].Kind == safety.Word && queryStart[sig[j].Upper()]
	}
	return false
}

func hasAlias(sig []safety.Token, j int) bool {
	if j >= len(sig) {
		return false
	}
	next := sig[j]
	switch next.Kind {
	case safety.QuotedIdent:
		return true
	case safety.Word:
		return next.IsWord("AS") || !aliasStop[next.Upper()]
	}
	return false
}

// isDistinctFrom reports whether the FROM at i belongs to IS [NOT] DISTINCT FROM
func isDistinctFrom(sig []safety.Token, i int) bool {
	return i >= 2 && sig[i-1].IsWord("DISTINCT") && (sig[i-2].IsWord("IS") || sig[i-2].IsWord("NOT"))
}
