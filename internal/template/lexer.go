package template

import (
	"strings"
	"unicode/utf8"
)

// TokenType identifies the type of token.
type TokenType int

// TokenType constants for query token types.
const (
	TokenText     TokenType = iota // Literal text (SQL)
	TokenVariable                  // $name, ${name}, ${name:format} or [[name]]
	TokenEOF                       // End of input
)

// String returns the string representation of the token type.
func (t TokenType) String() string {
	switch t {
	case TokenText:
		return "TEXT"
	case TokenVariable:
		return "VARIABLE"
	case TokenEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}

// Token represents a lexical token.
type Token struct {
	Type   TokenType
	Value  string // literal text, or the variable name
	Format string // optional ${name:format} suffix
	Raw    string // original source text of the token
	Offset int    // byte offset in the input
}

// Lexer splits a query into literal text and variable references.
// Malformed references (unclosed braces, empty names) stay literal text.
type Lexer struct {
	input string
	pos   int
	start int
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Tokenize converts the input into a slice of tokens ending with EOF.
// Adjacent literal runs are merged.
func (l *Lexer) Tokenize() []Token {
	var tokens []Token
	for {
		tok := l.nextToken()
		if tok.Type == TokenText && len(tokens) > 0 && tokens[len(tokens)-1].Type == TokenText {
			prev := &tokens[len(tokens)-1]
			prev.Value += tok.Value
			prev.Raw += tok.Raw
			continue
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens
		}
	}
}

// nextToken returns the next token from the input.
func (l *Lexer) nextToken() Token {
	l.start = l.pos
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Offset: l.pos}
	}

	switch {
	case l.matchString("${"):
		if tok, ok := l.scanBraced(); ok {
			return tok
		}
	case l.matchString("[["):
		if tok, ok := l.scanBracketed(); ok {
			return tok
		}
	case l.matchString("$"):
		if tok, ok := l.scanBare(); ok {
			return tok
		}
	}

	// A delimiter that did not form a reference is one literal rune.
	if l.pos == l.start && (l.matchString("$") || l.matchString("[[")) {
		l.advance()
		return l.text()
	}
	return l.scanText()
}

// scanText scans literal text until a possible delimiter or EOF.
func (l *Lexer) scanText() Token {
	for l.pos < len(l.input) {
		if l.matchString("$") || l.matchString("[[") {
			break
		}
		l.advance()
	}
	return l.text()
}

// scanBare scans $name.
func (l *Lexer) scanBare() (Token, bool) {
	l.pos++
	name := l.scanName()
	if name == "" {
		l.pos = l.start
		return Token{}, false
	}
	return l.variable(name, ""), true
}

// scanBraced scans ${name} and ${name:format}.
func (l *Lexer) scanBraced() (Token, bool) {
	l.pos += 2
	name := l.scanName()
	format := ""
	if name != "" && l.matchString(":") {
		l.pos++
		fmtStart := l.pos
		for l.pos < len(l.input) && l.input[l.pos] != '}' && isNameByte(l.input[l.pos]) {
			l.pos++
		}
		format = l.input[fmtStart:l.pos]
	}
	if name == "" || !l.matchString("}") {
		l.pos = l.start
		return Token{}, false
	}
	l.pos++
	return l.variable(name, format), true
}

// scanBracketed scans [[name]].
func (l *Lexer) scanBracketed() (Token, bool) {
	l.pos += 2
	name := l.scanName()
	if name == "" || !l.matchString("]]") {
		l.pos = l.start
		return Token{}, false
	}
	l.pos += 2
	return l.variable(name, ""), true
}

// Helper methods

// scanName reads an identifier. Names cannot start with a digit, which
// keeps positional parameters like $1 literal.
func (l *Lexer) scanName() string {
	nameStart := l.pos
	if l.pos < len(l.input) && l.input[l.pos] >= '0' && l.input[l.pos] <= '9' {
		return ""
	}
	for l.pos < len(l.input) && isNameByte(l.input[l.pos]) {
		l.pos++
	}
	return l.input[nameStart:l.pos]
}

func (l *Lexer) text() Token {
	s := l.input[l.start:l.pos]
	return Token{Type: TokenText, Value: s, Raw: s, Offset: l.start}
}

func (l *Lexer) variable(name, format string) Token {
	return Token{
		Type:   TokenVariable,
		Value:  name,
		Format: format,
		Raw:    l.input[l.start:l.pos],
		Offset: l.start,
	}
}

// advance moves to the next rune.
func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}
	_, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size
}

// matchString checks if the input at current position matches s.
func (l *Lexer) matchString(s string) bool {
	return strings.HasPrefix(l.input[l.pos:], s)
}

func isNameByte(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
