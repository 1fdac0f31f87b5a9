// Package safety classifies generated SQL as safe or unsafe to run against
// the fact store.
package safety

// Category names the reason class of an unsafe verdict
type Category string

const (
	CategoryDataDeletion      Category = "data-deletion"
	CategoryDataMutation      Category = "data-mutation"
	CategorySchemaAlteration  Category = "schema-alteration"
	CategoryPrivilegeChange   Category = "privilege-change"
	CategorySessionControl    Category = "session-control"
	CategoryDangerousFunction Category = "dangerous-function"
	CategoryMultipleStatement Category = "multiple-statements"
	CategoryNotAQuery         Category = "not-a-query"
	CategoryAmbiguous         Category = "ambiguous"
	CategoryRelation          Category = "relation"
)

// Verdict is the outcome of validating one statement
type Verdict struct {
	Safe     bool
	Category Category
	Keyword  string
	Reason   string
}

// Safe returns a passing verdict
func Safe() Verdict {
	return Verdict{Safe: true}
}

// Unsafe returns a failing verdict
func Unsafe(category Category, keyword, reason string) Verdict {
	return Verdict{Category: category, Keyword: keyword, Reason: reason}
}

// Validator classifies a candidate statement. Implementations must not
// modify the statement and must fail closed on anything they cannot decide.
type Validator interface {
	Validate(statement string) Verdict
}

// ValidatorFunc adapts a function to the Validator interface
type ValidatorFunc func(statement string) Verdict

// Validate calls f(statement)
func (f ValidatorFunc) Validate(statement string) Verdict {
	return f(statement)
}

// Chain runs validators in order and returns the first unsafe verdict
type Chain []Validator

// Validate implements Validator
func (c Chain) Validate(statement string) Verdict {
	for _, v := range c {
		if verdict := v.Validate(statement); !verdict.Safe {
			return verdict
		}
	}
	return Safe()
}
