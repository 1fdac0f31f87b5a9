package safety

import (
	"errors"
	"fmt"
	"strings"
)

// Tokenizer errors. Any of them makes a statement ambiguous.
var (
	ErrUnterminatedString     = errors.New("unterminated string literal")
	ErrUnterminatedIdentifier = errors.New("unterminated quoted identifier")
	ErrUnterminatedDollar     = errors.New("unterminated dollar-quoted string")
	ErrUnterminatedComment    = errors.New("unterminated block comment")
)

// TokenKind classifies a token
type TokenKind int

const (
	Word        TokenKind = iota // keywords and bare identifiers
	QuotedIdent                  // "identifier"
	String                       // 'literal', E'literal', $tag$literal$tag$
	Number                       // 42, 4.5, 1e3
	Param                        // $1
	Punct                        // ( ) , ; . and operators
	Comment                      // -- line and /* block */ comments
)

func (k TokenKind) String() string {
	switch k {
	case Word:
		return "word"
	case QuotedIdent:
		return "quoted_identifier"
	case String:
		return "string"
	case Number:
		return "number"
	case Param:
		return "param"
	case Punct:
		return "punct"
	case Comment:
		return "comment"
	default:
		return "unknown"
	}
}

// Token is one lexical unit of a statement. Start and End are byte offsets
// into the original text, so callers can splice without re-rendering.
type Token struct {
	Kind  TokenKind
	Text  string
	Start int
	End   int
}

// Upper returns the upper-cased text, for keyword comparison only
func (t Token) Upper() string {
	return strings.ToUpper(t.Text)
}

// IsWord reports whether the token is the bare word w (case-insensitive)
func (t Token) IsWord(w string) bool {
	return t.Kind == Word && strings.EqualFold(t.Text, w)
}

// IsPunct reports whether the token is the punctuation p
func (t Token) IsPunct(p string) bool {
	return t.Kind == Punct && t.Text == p
}

// Tokenize splits a PostgreSQL statement into tokens. Whitespace is dropped.
// Quoting follows the server defaults: standard_conforming_strings is on, so
// a backslash only escapes inside E” strings, and block comments nest.
func Tokenize(input string) ([]Token, error) {
	t := &tokenizer{input: input}
	var tokens []Token
	for {
		tok, ok, err := t.next()
		if err != nil {
			return tokens, err
		}
		if !ok {
			return tokens, nil
		}
		tokens = append(tokens, tok)
	}
}

// Significant returns the tokens without comments
func Significant(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Kind != Comment {
			out = append(out, tok)
		}
	}
	return out
}

type tokenizer struct {
	input string
	pos   int
}

func (t *tokenizer) peek(offset int) byte {
	if t.pos+offset >= len(t.input) {
		return 0
	}
	return t.input[t.pos+offset]
}

func (t *tokenizer) emit(kind TokenKind, start int) Token {
	return Token{Kind: kind, Text: t.input[start:t.pos], Start: start, End: t.pos}
}

func (t *tokenizer) next() (Token, bool, error) {
	for t.pos < len(t.input) && isSpace(t.input[t.pos]) {
		t.pos++
	}
	if t.pos >= len(t.input) {
		return Token{}, false, nil
	}

	start := t.pos
	c := t.input[t.pos]

	switch {
	case c == '\'':
		err := t.readQuoted('\'', false, ErrUnterminatedString)
		return t.emit(String, start), true, err
	case c == '"':
		err := t.readQuoted('"', false, ErrUnterminatedIdentifier)
		return t.emit(QuotedIdent, start), true, err
	case (c == 'E' || c == 'e') && t.peek(1) == '\'':
		t.pos++
		err := t.readQuoted('\'', true, ErrUnterminatedString)
		return t.emit(String, start), true, err
	case c == '$':
		return t.readDollar(start)
	case c == '-' && t.peek(1) == '-':
		for t.pos < len(t.input) && t.input[t.pos] != '\n' {
			t.pos++
		}
		return t.emit(Comment, start), true, nil
	case c == '/' && t.peek(1) == '*':
		err := t.readBlockComment()
		return t.emit(Comment, start), true, err
	case isWordStart(c):
		for t.pos < len(t.input) && isWordPart(t.input[t.pos]) {
			t.pos++
		}
		return t.emit(Word, start), true, nil
	case isDigit(c) || (c == '.' && isDigit(t.peek(1))):
		t.readNumber()
		return t.emit(Number, start), true, nil
	default:
		t.pos++
		return t.emit(Punct, start), true, nil
	}
}

// readQuoted consumes a quoted run. A doubled delimiter is an escaped
// delimiter; backslashes escape only when allowed.
func (t *tokenizer) readQuoted(delim byte, backslash bool, unterminated error) error {
	t.pos++ // opening delimiter
	for t.pos < len(t.input) {
		c := t.input[t.pos]
		switch {
		case backslash && c == '\\':
			t.pos += 2
		case c == delim && t.peek(1) == delim:
			t.pos += 2
		case c == delim:
			t.pos++
			return nil
		default:
			t.pos++
		}
	}
	t.pos = len(t.input)
	return fmt.Errorf("%w at offset %d", unterminated, t.pos)
}

// readDollar reads a $n parameter or a $tag$...$tag$ string. A lone $ is
// punctuation.
func (t *tokenizer) readDollar(start int) (Token, bool, error) {
	if isDigit(t.peek(1)) {
		t.pos++
		for t.pos < len(t.input) && isDigit(t.input[t.pos]) {
			t.pos++
		}
		return t.emit(Param, start), true, nil
	}

	end := t.pos + 1
	for end < len(t.input) && isWordPart(t.input[end]) && t.input[end] != '$' {
		end++
	}
	if end >= len(t.input) || t.input[end] != '$' {
		t.pos++
		return t.emit(Punct, start), true, nil
	}

	tag := t.input[start : end+1]
	body := end + 1
	closing := strings.Index(t.input[body:], tag)
	if closing < 0 {
		t.pos = len(t.input)
		return t.emit(String, start), true, fmt.Errorf("%w at offset %d", ErrUnterminatedDollar, start)
	}
	t.pos = body + closing + len(tag)
	return t.emit(String, start), true, nil
}

func (t *tokenizer) readBlockComment() error {
	depth := 0
	for t.pos < len(t.input) {
		switch {
		case t.input[t.pos] == '/' && t.peek(1) == '*':
			depth++
			t.pos += 2
		case t.input[t.pos] == '*' && t.peek(1) == '/':
			depth--
			t.pos += 2
			if depth == 0 {
				return nil
			}
		default:
			t.pos++
		}
	}
	return fmt.Errorf("%w at offset %d", ErrUnterminatedComment, t.pos)
}

func (t *tokenizer) readNumber() {
	for t.pos < len(t.input) {
		c := t.input[t.pos]
		switch {
		case isDigit(c) || c == '.' || c == '_':
			t.pos++
		case (c == 'e' || c == 'E') && (isDigit(t.peek(1)) || ((t.peek(1) == '+' || t.peek(1) == '-') && isDigit(t.peek(2)))):
			t.pos += 2
		default:
			return
		}
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// Bytes at or above 0x80 belong to multi-byte identifier characters.
func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isWordPart(c byte) bool {
	return isWordStart(c) || isDigit(c) || c == '$'
}
