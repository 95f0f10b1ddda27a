package parser

import (
	"strconv"
	"strings"

	"github.com/cory-johannsen/levelport/internal/resource"
	"github.com/cory-johannsen/levelport/internal/t3d/lexer"
	"github.com/cory-johannsen/levelport/internal/t3d/scene"
)

// ParseValue classifies the source text of a property value. The returned
// value always carries raw as its source text, so writing it back without
// modification reproduces raw exactly. Text that fits no typed form becomes
// a raw value.
func ParseValue(name, raw string) scene.Value {
	text := strings.TrimSpace(raw)
	if text == "" {
		return scene.RawValue(raw)
	}
	hint, isRef := referenceHint(name)

	toks := significant(lexer.Tokenize(text))
	if len(toks) == 0 {
		return scene.RawValue(raw)
	}

	// "quoted string"
	if len(toks) == 1 && toks[0].Kind == lexer.String {
		if s, ok := unquote(toks[0].Text); ok {
			return scene.StringValue(s).WithRaw(raw)
		}
		return scene.RawValue(raw)
	}

	// Class'Pkg.Name'
	if len(toks) >= 3 && toks[0].Kind == lexer.Ident && toks[1].Is(lexer.Punct, "'") &&
		toks[len(toks)-1].Is(lexer.Punct, "'") {
		class := toks[0].Text
		path := text[toks[1].End():toks[len(toks)-1].Offset]
		kind := resource.KindFromClass(class)
		if kind == resource.KindOther {
			kind = hint
		}
		return scene.ReferenceValue(class, path, kind).WithRaw(raw)
	}

	// (X=1,Y=2,Z=3)
	if toks[0].Is(lexer.Punct, "(") && toks[len(toks)-1].Is(lexer.Punct, ")") {
		if comps, integral, ok := parseComponents(toks[1 : len(toks)-1]); ok {
			v := scene.VectorValue(comps...)
			v.Integral = integral
			return v.WithRaw(raw)
		}
		return scene.RawValue(raw)
	}

	if len(toks) == 1 {
		t := toks[0]
		switch t.Kind {
		case lexer.Number:
			if n, err := strconv.ParseInt(t.Text, 10, 64); err == nil {
				return scene.IntValue(n).WithRaw(raw)
			}
			if f, err := strconv.ParseFloat(t.Text, 64); err == nil {
				return scene.FloatValue(f).WithRaw(raw)
			}
		case lexer.Ident:
			switch strings.ToLower(t.Text) {
			case "true":
				return scene.BoolValue(true).WithRaw(raw)
			case "false":
				return scene.BoolValue(false).WithRaw(raw)
			}
			return scene.NameValue(t.Text).WithRaw(raw)
		}
		return scene.RawValue(raw)
	}

	// Pkg.Name or Pkg.Group.Name
	if isDottedPath(toks) {
		if _, ok := resource.ParseReference(text); ok {
			kind := resource.KindOther
			if isRef {
				kind = hint
			}
			return scene.ReferenceValue("", text, kind).WithRaw(raw)
		}
	}
	return scene.RawValue(raw)
}

func significant(toks []lexer.Token) []lexer.Token {
	out := toks[:0:0]
	for _, t := range toks {
		if t.Kind != lexer.Whitespace && t.Kind != lexer.Newline {
			out = append(out, t)
		}
	}
	return out
}

// isDottedPath reports whether toks spell Ident(.Segment)+. A numeric last
// segment such as the 3 of GenFX.LensFlar.3 lexes as the number ".3", which
// counts as a dot and a segment.
func isDottedPath(toks []lexer.Token) bool {
	if len(toks) < 2 || toks[0].Kind != lexer.Ident {
		return false
	}
	for i := 1; i < len(toks); i++ {
		t := toks[i]
		switch {
		case t.Kind == lexer.Number && strings.HasPrefix(t.Text, "."):
			if !isDigits(t.Text[1:]) {
				return false
			}
		case t.Is(lexer.Punct, ".") && i+1 < len(toks):
			next := toks[i+1]
			if next.Kind != lexer.Ident && (next.Kind != lexer.Number || !isDigits(next.Text)) {
				return false
			}
			i++
		default:
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseComponents parses Name=Number pairs separated by commas. integral
// reports whether every number was written without a fraction or exponent.
func parseComponents(toks []lexer.Token) (comps []scene.Component, integral, ok bool) {
	integral = true
	for i := 0; i < len(toks); {
		if i+2 >= len(toks) {
			return nil, false, false
		}
		name, eq, num := toks[i], toks[i+1], toks[i+2]
		if name.Kind != lexer.Ident || !eq.Is(lexer.Punct, "=") || num.Kind != lexer.Number {
			return nil, false, false
		}
		f, err := strconv.ParseFloat(num.Text, 64)
		if err != nil {
			return nil, false, false
		}
		if strings.ContainsAny(num.Text, ".eE") {
			integral = false
		}
		comps = append(comps, scene.Component{Name: name.Text, Value: f})
		i += 3
		if i < len(toks) {
			if !toks[i].Is(lexer.Punct, ",") {
				return nil, false, false
			}
			i++
		}
	}
	return comps, integral, len(comps) > 0
}

// unquote strips the quotes of a string token and resolves backslash
// escapes. Unterminated strings are rejected.
func unquote(s string) (string, bool) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", false
	}
	body := s[1 : len(s)-1]
	if !strings.Contains(body, `\`) {
		return body, true
	}
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' || i == len(body)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		default:
			b.WriteByte(body[i])
		}
	}
	return b.String(), true
}
