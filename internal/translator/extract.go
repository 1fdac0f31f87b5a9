package translator

import (
	"regexp"
	"strings"
)

var (
	fencedBlock = regexp.MustCompile("(?s)```([A-Za-z]*)[ \t]*\r?\n(.*?)```")
	blankLines  = regexp.MustCompile(`\n\s*\n`)
)

var sqlFenceLanguages = map[string]bool{
	"":           true,
	"sql":        true,
	"postgres":   true,
	"postgresql": true,
	"pgsql":      true,
}

// Parse extracts the statement and explanation from model text. A fenced
// SQL block wins; otherwise the first run of lines starting with SELECT or
// WITH is taken. Anything else is Unusable.
func Parse(text string) Translation {
	t := Translation{Raw: text, Kind: KindUnusable}

	for _, m := range fencedBlock.FindAllStringSubmatchIndex(text, -1) {
		lang := strings.ToLower(text[m[2]:m[3]])
		body := strings.TrimSpace(text[m[4]:m[5]])
		if !sqlFenceLanguages[lang] || body == "" {
			continue
		}
		t.Statement = body
		t.Kind = KindCandidate
		t.Explanation = cleanExplanation(text[:m[0]] + "\n" + text[m[1]:])
		return t
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if !startsStatement(line) {
			continue
		}
		end := i + 1
		for end < len(lines) && strings.TrimSpace(lines[end]) != "" {
			end++
		}
		t.Statement = strings.TrimSpace(strings.Join(lines[i:end], "\n"))
		t.Kind = KindCandidate
		t.Explanation = cleanExplanation(strings.Join(lines[:i], "\n") + "\n" + strings.Join(lines[end:], "\n"))
		return t
	}

	return t
}

func startsStatement(line string) bool {
	upper := strings.ToUpper(strings.TrimSpace(line))
	for _, kw := range []string{"SELECT", "WITH"} {
		if upper == kw || strings.HasPrefix(upper, kw+" ") || strings.HasPrefix(upper, kw+"\t") || strings.HasPrefix(upper, kw+"(") {
			return true
		}
	}
	return false
}

func cleanExplanation(s string) string {
	s = blankLines.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}
