// Package lexer tokenizes T3D scene-description text.
//
// The lexer never fails: characters no rule recognizes (control bytes, NUL,
// invalid UTF-8, stray symbols) come out as Error tokens carrying their
// position so the parser can decide how to recover. Unterminated quoted
// strings run to the end of the line.
package lexer

import (
	"fmt"

	plexer "github.com/alecthomas/participle/v2/lexer"
)

// Kind identifies the lexical class of a token.
type Kind int

const (
	EOF Kind = iota
	Ident
	Number
	String
	Punct
	Whitespace
	Newline
	Error
)

var kindNames = [...]string{
	EOF:        "EOF",
	Ident:      "Ident",
	Number:     "Number",
	String:     "String",
	Punct:      "Punct",
	Whitespace: "Whitespace",
	Newline:    "Newline",
	Error:      "Error",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Rule order matters: the first alternative that matches wins, so the
// catch-all Error rule must stay last.
var t3dLexer = plexer.MustSimple([]plexer.SimpleRule{
	{Name: "Newline", Pattern: `\r?\n`},
	{Name: "Whitespace", Pattern: `[ \t\f\v\r\x{FEFF}\x{00A0}]+`},
	{Name: "String", Pattern: `"(?:[^"\\\n]|\\[^\n])*"?`},
	{Name: "Number", Pattern: `[-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?`},
	{Name: "Ident", Pattern: `[\pL_][\pL\pN_]*`},
	{Name: "Punct", Pattern: "[=(),'.;:\\[\\]{}<>/\\\\|!#$%&*+\\-?@^~`]"},
	{Name: "Error", Pattern: `.`},
})

var kindBySymbol = func() map[plexer.TokenType]Kind {
	names := map[string]Kind{
		"Newline":    Newline,
		"Whitespace": Whitespace,
		"String":     String,
		"Number":     Number,
		"Ident":      Ident,
		"Punct":      Punct,
		"Error":      Error,
	}
	out := make(map[plexer.TokenType]Kind, len(names))
	for name, tt := range t3dLexer.Symbols() {
		if k, ok := names[name]; ok {
			out[tt] = k
		}
	}
	return out
}()

// Token is one lexeme. Text is the exact source slice; Offset is the byte
// offset of its first byte; Line and Column are 1-based.
type Token struct {
	Kind   Kind
	Text   string
	Offset int
	Line   int
	Column int
}

// End returns the byte offset just past the token.
func (t Token) End() int { return t.Offset + len(t.Text) }

// Is reports whether the token has the given kind and text.
func (t Token) Is(kind Kind, text string) bool { return t.Kind == kind && t.Text == text }

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d:%d", t.Kind, t.Text, t.Line, t.Column)
}

// Lexer produces tokens lazily from a source string.
type Lexer struct {
	src  string
	lex  plexer.Lexer
	end  int
	line int
	done bool
}

// New creates a Lexer over src.
//
// Postcondition: the first call to Next returns the first token of src.
func New(src string) *Lexer {
	l := &Lexer{src: src}
	l.Reset()
	return l
}

// Reset restarts tokenization from the beginning of the source.
func (l *Lexer) Reset() {
	l.end = 0
	l.line = 1
	l.done = false
	lex, err := t3dLexer.LexString("", l.src)
	if err != nil {
		// LexString only fails on reader errors, which a string cannot produce.
		l.lex = nil
		return
	}
	l.lex = lex
}

// Next returns the next token. After the source is exhausted it returns EOF
// tokens forever.
func (l *Lexer) Next() Token {
	if l.done || l.lex == nil {
		return l.eof()
	}
	tok, err := l.lex.Next()
	if err != nil {
		// Rules cover every byte, so this is unreachable in practice; degrade
		// to one Error token spanning the rest of the input.
		l.done = true
		rest := l.src[l.end:]
		if rest == "" {
			return l.eof()
		}
		t := Token{Kind: Error, Text: rest, Offset: l.end, Line: l.line, Column: 1}
		l.end = len(l.src)
		return t
	}
	if tok.EOF() {
		l.done = true
		return l.eof()
	}
	t := Token{
		Kind:   kindBySymbol[tok.Type],
		Text:   tok.Value,
		Offset: tok.Pos.Offset,
		Line:   tok.Pos.Line,
		Column: tok.Pos.Column,
	}
	l.end = t.End()
	l.line = t.Line
	if t.Kind == Newline {
		l.line++
	}
	return t
}

func (l *Lexer) eof() Token {
	return Token{Kind: EOF, Offset: len(l.src), Line: l.line, Column: 1}
}

// Tokenize lexes all of src, excluding the trailing EOF token.
func Tokenize(src string) []Token {
	l := New(src)
	var out []Token
	for {
		t := l.Next()
		if t.Kind == EOF {
			return out
		}
		out = append(out, t)
	}
}

// Lines lexes src and groups tokens into lines. Newline tokens are dropped;
// a line with no tokens (an empty line) is kept as an empty slice so that
// slice index i always corresponds to source line i+1.
func Lines(src string) [][]Token {
	var (
		out [][]Token
		cur []Token
		l   = New(src)
	)
	for {
		t := l.Next()
		switch t.Kind {
		case EOF:
			if len(cur) > 0 || len(out) == 0 {
				out = append(out, cur)
			}
			return out
		case Newline:
			out = append(out, cur)
			cur = nil
		default:
			cur = append(cur, t)
		}
	}
}
