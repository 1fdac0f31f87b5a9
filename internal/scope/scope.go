// Package scope binds a question and the SQL generated for it to a single
// tenant. Scope adds the tenant constraint to the question text the
// translator sees; Rewriter enforces the same constraint structurally on
// the generated statement before it reaches the fact store.
package scope

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// IsolationColumn is the owning-tenant column of every protected table
const IsolationColumn = "user_id"

var (
	ErrEmptyQuestion    = errors.New("scope: question is empty")
	ErrInvalidTenant    = errors.New("scope: invalid tenant id")
	ErrTenantInQuestion = errors.New("scope: question already contains the tenant id")
)

// tenantIDPattern admits ids that embed in a SQL literal unescaped. Short
// ids are allowed, so a question is only refused when it names the tenant as
// a whole word: tenant "1" may still ask about "revenue in 2021".
var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:@-]{1,128}$`)

// ScopedQuestion is a question plus the tenant constraint the translator
// is expected to honor.
type ScopedQuestion struct {
	Question string
	TenantID string
	Text     string
}

// ValidTenantID reports whether id can be embedded in question text and in
// a SQL literal without quoting ambiguity.
func ValidTenantID(id string) bool {
	return tenantIDPattern.MatchString(id)
}

// Scope appends an explicit filter on the isolation column to the question.
// The output is a pure function of its inputs and names the tenant exactly once.
func Scope(question, tenantID string) (ScopedQuestion, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return ScopedQuestion{}, ErrEmptyQuestion
	}
	if !ValidTenantID(tenantID) {
		return ScopedQuestion{}, ErrInvalidTenant
	}
	if mentions(question, tenantID) {
		return ScopedQuestion{}, ErrTenantInQuestion
	}

	return ScopedQuestion{
		Question: question,
		TenantID: tenantID,
		Text:     fmt.Sprintf("%s (Ensure to filter by %s = '%s')", question, IsolationColumn, tenantID),
	}, nil
}

// mentions reports whether word occurs in text with no letter, digit,
// underscore or hyphen directly before or after it.
func mentions(text, word string) bool {
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], word)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(word)
		if (start == 0 || !isWordByte(text[start-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		from = start + 1
	}
	return false
}

func isWordByte(c byte) bool {
	return c == '_' || c == '-' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// quoteLiteral renders s as a standard-conforming SQL string literal
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
