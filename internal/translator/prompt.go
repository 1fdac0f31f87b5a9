package translator

import (
	"fmt"
	"strings"

	"github.com/profitpulse/query-gateway/internal/examples"
)

// BuildSystemPrompt renders the schema context for one call. Example SQL
// keeps the tenant placeholder, so the only tenant id the model sees is the
// one carried by the scoped question.
func BuildSystemPrompt(corpus examples.Corpus, shots []examples.Example) string {
	var b strings.Builder

	b.WriteString("You are a PostgreSQL expert. Convert the question into one read-only SELECT statement.\n")
	b.WriteString("Return the SQL in a ```sql code block followed by one sentence explaining it.\n")
	b.WriteString("Never modify data or schema. Query only the tables described below.\n\n")

	if corpus.DDL != "" {
		b.WriteString("Schema:\n")
		b.WriteString(corpus.DDL)
		b.WriteString("\n\n")
	}

	if len(corpus.Documentation) > 0 {
		b.WriteString("Notes:\n")
		for _, line := range corpus.Documentation {
			fmt.Fprintf(&b, "- %s\n", line)
		}
		b.WriteString("\n")
	}

	if len(shots) > 0 {
		fmt.Fprintf(&b, "Examples (%s stands for the requesting account):\n", examples.TenantPlaceholder)
		for _, ex := range shots {
			fmt.Fprintf(&b, "Question: %s\nSQL: %s\n\n", ex.Question, ex.SQL)
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}
