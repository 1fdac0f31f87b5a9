package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(tokens []Token) []TokenKind {
	out := make([]TokenKind, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Kind
	}
	return out
}

func texts(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Text
	}
	return out
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		texts []string
		kinds []TokenKind
	}{
		{
			name:  "simple select",
			input: "SELECT a, b FROM t;",
			texts: []string{"SELECT", "a", ",", "b", "FROM", "t", ";"},
			kinds: []TokenKind{Word, Word, Punct, Word, Word, Word, Punct},
		},
		{
			name:  "doubled quote escape",
			input: "SELECT 'it''s'",
			texts: []string{"SELECT", "'it''s'"},
			kinds: []TokenKind{Word, String},
		},
		{
			name:  "escape string",
			input: `SELECT E'a\'b'`,
			texts: []string{"SELECT", `E'a\'b'`},
			kinds: []TokenKind{Word, String},
		},
		{
			name:  "quoted identifier with doubled quote",
			input: `SELECT "a""b" FROM t`,
			texts: []string{"SELECT", `"a""b"`, "FROM", "t"},
			kinds: []TokenKind{Word, QuotedIdent, Word, Word},
		},
		{
			name:  "dollar quoted string and parameter",
			input: "SELECT $$x$$, $tag$ y $tag$, $1",
			texts: []string{"SELECT", "$$x$$", ",", "$tag$ y $tag$", ",", "$1"},
			kinds: []TokenKind{Word, String, Punct, String, Punct, Param},
		},
		{
			name:  "numbers",
			input: "SELECT 42, 4.5, .5, 1e3, 2E-4",
			texts: []string{"SELECT", "42", ",", "4.5", ",", ".5", ",", "1e3", ",", "2E-4"},
			kinds: []TokenKind{Word, Number, Punct, Number, Punct, Number, Punct, Number, Punct, Number},
		},
		{
			name:  "line and nested block comments",
			input: "SELECT 1 -- note\n/* outer /* inner */ still */ FROM t",
			texts: []string{"SELECT", "1", "-- note", "/* outer /* inner */ still */", "FROM", "t"},
			kinds: []TokenKind{Word, Number, Comment, Comment, Word, Word},
		},
		{
			name:  "schema qualified name",
			input: "public.fact_daily_financials",
			texts: []string{"public", ".", "fact_daily_financials"},
			kinds: []TokenKind{Word, Punct, Word},
		},
		{
			name:  "non ascii identifier",
			input: "SELECT umsätze",
			texts: []string{"SELECT", "umsätze"},
			kinds: []TokenKind{Word, Word},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := Tokenize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.texts, texts(tokens))
			assert.Equal(t, tt.kinds, kinds(tokens))
		})
	}
}

func TestTokenize_Offsets(t *testing.T) {
	input := "SELECT  x FROM fact_daily_financials f"
	tokens, err := Tokenize(input)
	require.NoError(t, err)

	for _, tok := range tokens {
		assert.Equal(t, tok.Text, input[tok.Start:tok.End])
	}
}

func TestTokenize_Errors(t *testing.T) {
	tests := []struct {
		input string
		err   error
	}{
		{"SELECT 'open", ErrUnterminatedString},
		{`SELECT E'open\'`, ErrUnterminatedString},
		{`SELECT "open`, ErrUnterminatedIdentifier},
		{"SELECT $a$ open", ErrUnterminatedDollar},
		{"SELECT /* /* */", ErrUnterminatedComment},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := Tokenize(tt.input)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestSignificant(t *testing.T) {
	tokens, err := Tokenize("/* a */ SELECT -- b\n 1")
	require.NoError(t, err)

	assert.Equal(t, []string{"SELECT", "1"}, texts(Significant(tokens)))
}

func TestToken_Helpers(t *testing.T) {
	tok := Token{Kind: Word, Text: "select"}
	assert.True(t, tok.IsWord("SELECT"))
	assert.False(t, tok.IsPunct("select"))
	assert.Equal(t, "SELECT", tok.Upper())
	assert.Equal(t, "word", tok.Kind.String())
	assert.Equal(t, "string", String.String())
}
