package safety

import (
	"fmt"
	"strings"
)

// DefaultDenyKeywords maps write, DDL and DCL verbs to their category.
// Matching is on bare words only; quoted literals and identifiers are opaque.
var DefaultDenyKeywords = map[string]Category{
	"DELETE":   CategoryDataDeletion,
	"TRUNCATE": CategoryDataDeletion,

	"INSERT": CategoryDataMutation,
	"UPDATE": CategoryDataMutation,
	"MERGE":  CategoryDataMutation,
	"UPSERT": CategoryDataMutation,
	"COPY":   CategoryDataMutation,
	"INTO":   CategoryDataMutation,

	"CREATE":     CategorySchemaAlteration,
	"ALTER":      CategorySchemaAlteration,
	"DROP":       CategorySchemaAlteration,
	"RENAME":     CategorySchemaAlteration,
	"COMMENT":    CategorySchemaAlteration,
	"REINDEX":    CategorySchemaAlteration,
	"CLUSTER":    CategorySchemaAlteration,
	"VACUUM":     CategorySchemaAlteration,
	"REFRESH":    CategorySchemaAlteration,
	"CHECKPOINT": CategorySchemaAlteration,

	"GRANT":  CategoryPrivilegeChange,
	"REVOKE": CategoryPrivilegeChange,
	"OWNER":  CategoryPrivilegeChange,

	"SET":        CategorySessionControl,
	"RESET":      CategorySessionControl,
	"BEGIN":      CategorySessionControl,
	"COMMIT":     CategorySessionControl,
	"ROLLBACK":   CategorySessionControl,
	"SAVEPOINT":  CategorySessionControl,
	"LOCK":       CategorySessionControl,
	"DO":         CategorySessionControl,
	"CALL":       CategorySessionControl,
	"EXECUTE":    CategorySessionControl,
	"PREPARE":    CategorySessionControl,
	"DEALLOCATE": CategorySessionControl,
	"LISTEN":     CategorySessionControl,
	"UNLISTEN":   CategorySessionControl,
	"NOTIFY":     CategorySessionControl,
	"DISCARD":    CategorySessionControl,
	"IMPORT":     CategorySessionControl,
	"LOAD":       CategorySessionControl,
	"ATTACH":     CategorySessionControl,
	"DETACH":     CategorySessionControl,
	"PRAGMA":     CategorySessionControl,
}

// DefaultDenyFunctions lists functions with side effects or that read
// outside the tenant-scoped relation.
var DefaultDenyFunctions = []string{
	"pg_sleep", "pg_sleep_for", "pg_sleep_until",
	"pg_read_file", "pg_read_binary_file", "pg_ls_dir", "pg_stat_file",
	"pg_terminate_backend", "pg_cancel_backend", "pg_reload_conf", "pg_rotate_logfile",
	"set_config", "nextval", "setval",
	"lo_import", "lo_export", "lo_unlink", "lo_get",
	"dblink", "dblink_exec", "dblink_connect",
	"query_to_xml", "query_to_xml_and_xmlschema", "cursor_to_xml",
	"table_to_xml", "table_to_xml_and_xmlschema",
	"schema_to_xml", "schema_to_xml_and_xmlschema",
	"database_to_xml", "database_to_xml_and_xmlschema",
	"pg_stat_get_activity",
	"ts_stat", "ts_rewrite",
	"load_extension", "readfile", "writefile",
}

// queryStarters are the first words a read-only query may begin with
var queryStarters = map[string]bool{
	"SELECT": true,
	"WITH":   true,
	"VALUES": true,
	"TABLE":  true,
}

// KeywordValidator is a deny-list validator over the quote-aware token stream
type KeywordValidator struct {
	DenyKeywords       map[string]Category
	DenyFunctions      map[string]bool
	MaxStatementLength int
}

// NewKeywordValidator creates a validator with the default deny-set
func NewKeywordValidator() *KeywordValidator {
	functions := make(map[string]bool, len(DefaultDenyFunctions))
	for _, fn := range DefaultDenyFunctions {
		functions[fn] = true
	}
	return &KeywordValidator{
		DenyKeywords:       DefaultDenyKeywords,
		DenyFunctions:      functions,
		MaxStatementLength: 8000,
	}
}

// Validate implements Validator
func (kv *KeywordValidator) Validate(statement string) Verdict {
	trimmed := strings.TrimSpace(statement)
	if trimmed == "" {
		return Unsafe(CategoryNotAQuery, "", "statement is empty")
	}
	if kv.MaxStatementLength > 0 && len(trimmed) > kv.MaxStatementLength {
		return Unsafe(CategoryAmbiguous, "", fmt.Sprintf("statement exceeds %d characters", kv.MaxStatementLength))
	}

	tokens, err := Tokenize(trimmed)
	if err != nil {
		return Unsafe(CategoryAmbiguous, "", err.Error())
	}
	tokens = Significant(tokens)
	if len(tokens) == 0 {
		return Unsafe(CategoryNotAQuery, "", "statement contains only comments")
	}

	for _, tok := range tokens {
		if tok.Kind == QuotedIdent {
			// "query_to_xml"(...) calls the same function as the bare word
			if name := strings.ToLower(unquoteIdent(tok.Text)); kv.DenyFunctions[name] {
				return Unsafe(CategoryDangerousFunction, name, fmt.Sprintf("function %s is not allowed", name))
			}
			continue
		}
		if tok.Kind != Word {
			continue
		}
		upper := tok.Upper()
		if category, denied := kv.DenyKeywords[upper]; denied {
			return Unsafe(category, upper, fmt.Sprintf("keyword %s is not allowed", upper))
		}
		if lower := strings.ToLower(tok.Text); kv.DenyFunctions[lower] {
			return Unsafe(CategoryDangerousFunction, lower, fmt.Sprintf("function %s is not allowed", lower))
		}
	}

	if verdict := checkTerminators(tokens); !verdict.Safe {
		return verdict
	}

	first := tokens[0]
	if first.IsPunct("(") {
		return Safe()
	}
	if first.Kind != Word || !queryStarters[first.Upper()] {
		return Unsafe(CategoryNotAQuery, first.Upper(), "statement must start with SELECT or WITH")
	}

	return Safe()
}

func unquoteIdent(text string) string {
	if len(text) < 2 {
		return text
	}
	return strings.ReplaceAll(text[1:len(text)-1], `""`, `"`)
}

// checkTerminators allows at most one statement terminator, and only as the
// final token.
func checkTerminators(tokens []Token) Verdict {
	count := 0
	for i, tok := range tokens {
		if !tok.IsPunct(";") {
			continue
		}
		count++
		if count > 1 {
			return Unsafe(CategoryMultipleStatement, ";", "more than one statement terminator")
		}
		if i != len(tokens)-1 {
			return Unsafe(CategoryMultipleStatement, ";", "text follows the statement terminator")
		}
	}
	return Safe()
}
