// Package parser builds a scene.Document from T3D text.
//
// Parsing is line oriented: every line is a Begin line, an End line, a
// Key=Value property line, or (inside a polygon) a geometry line. A line
// that is none of these is recoverable: it produces one syntax diagnostic
// and the parser skips forward to the next anchor line. Consecutive skipped
// lines share that single diagnostic. Only an End with no open block is
// fatal.
package parser

import (
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/cory-johannsen/levelport/internal/diag"
	"github.com/cory-johannsen/levelport/internal/t3d/lexer"
	"github.com/cory-johannsen/levelport/internal/t3d/scene"
)

// frame is one open Begin block.
type frame struct {
	kind string
	line int
	// node is the block's scene node; nil for PolyList, Polygon and
	// discarded frames.
	node *scene.Actor
	// brush is the Brush node that owns a PolyList or Polygon frame.
	brush   *scene.Actor
	poly    *scene.Polygon
	discard bool
}

type parser struct {
	src   string
	doc   *scene.Document
	diags *diag.List
	stack []*frame

	skipping bool
}

// Parse parses src as a T3D document written in generation gen.
// Recoverable problems are recorded in diags.
//
// Precondition: diags must be non-nil.
// Postcondition: returns a non-nil Document, or a *diag.StructuralError
// when the block structure cannot be recovered.
func Parse(src string, gen scene.Generation, diags *diag.List) (*scene.Document, error) {
	p := &parser{
		src:   src,
		doc:   &scene.Document{Header: scene.Header{Generation: gen}},
		diags: diags,
	}
	lines := lexer.Lines(src)
	for i, toks := range lines {
		if err := p.line(i+1, toks); err != nil {
			return nil, err
		}
	}
	p.endSkip()
	for len(p.stack) > 0 {
		f := p.top()
		p.diags.Warn(diag.KindSyntax, f.line, "Begin %s has no matching End; closed at end of input", f.kind)
		p.pop()
	}
	return p.doc, nil
}

func (p *parser) top() *frame {
	if len(p.stack) == 0 {
		return nil
	}
	return p.stack[len(p.stack)-1]
}

func (p *parser) pop() *frame {
	f := p.top()
	p.stack = p.stack[:len(p.stack)-1]
	return f
}

// owner returns the nearest open scene node that can receive properties
// and children.
func (p *parser) owner() *scene.Actor {
	for i := len(p.stack) - 1; i >= 0; i-- {
		f := p.stack[i]
		if f.node != nil {
			return f.node
		}
		if f.brush != nil {
			return f.brush
		}
	}
	return nil
}

func (p *parser) text(toks []lexer.Token) string {
	if len(toks) == 0 {
		return ""
	}
	return p.src[toks[0].Offset:toks[len(toks)-1].End()]
}

// malformed records a recoverable syntax error and enters skip mode. Lines
// skipped while already in skip mode share the first line's diagnostic.
func (p *parser) malformed(ln int, toks []lexer.Token, reason string) {
	if p.skipping {
		return
	}
	p.skipping = true
	p.diags.Warn(diag.KindSyntax, ln, "%s: %q; skipping to next Begin, End or Key= line", reason, truncate(p.text(toks), 80))
}

func (p *parser) endSkip() { p.skipping = false }

func (p *parser) line(ln int, all []lexer.Token) error {
	toks := significant(all)
	if len(toks) == 0 {
		return nil
	}
	first := toks[0]

	if first.Kind == lexer.Ident && strings.EqualFold(first.Text, "Begin") {
		p.endSkip()
		p.begin(ln, all, toks)
		return nil
	}
	if first.Kind == lexer.Ident && strings.EqualFold(first.Text, "End") {
		p.endSkip()
		return p.end(ln, toks)
	}

	top := p.top()
	if top == nil {
		if len(p.doc.Nodes) == 0 {
			p.doc.Header.Preamble = append(p.doc.Header.Preamble, p.text(toks))
			return nil
		}
		p.malformed(ln, toks, "text outside any block")
		return nil
	}
	if top.discard {
		return nil
	}
	if isComment(toks) {
		p.diags.Info(diag.KindSyntax, ln, "comment dropped: %q", truncate(p.text(toks), 80))
		return nil
	}

	if top.poly != nil {
		if p.geometryLine(ln, toks, top.poly) {
			p.endSkip()
			return nil
		}
	}

	if name, index, indexed, valueStart, ok := propertyHead(toks); ok {
		p.endSkip()
		owner := p.owner()
		// Spacing after "=" is part of the value's source text; trailing
		// blanks belong to the line ending.
		raw := strings.TrimRight(p.src[valueStart:lineEnd(all)], " \t\r\f\v")
		if top.poly != nil {
			top.poly.Extra = append(top.poly.Extra, p.text(toks))
			return nil
		}
		v := ParseValue(name, raw)
		if indexed {
			owner.AddElement(name, index, v, ln)
			return nil
		}
		if !owner.Add(name, v, ln) {
			p.diags.Warn(diag.KindSyntax, ln, "property %s assigned more than once; last value kept", name)
		}
		return nil
	}

	p.malformed(ln, toks, "malformed line")
	return nil
}

func isComment(toks []lexer.Token) bool {
	if toks[0].Is(lexer.Punct, ";") {
		return true
	}
	return len(toks) > 1 && toks[0].Is(lexer.Punct, "/") && toks[1].Is(lexer.Punct, "/")
}

// lineEnd returns the byte offset just past the last token of the line.
func lineEnd(all []lexer.Token) int {
	return all[len(all)-1].End()
}

// propertyHead matches Key=, Key(i)= and Key[i]= and returns the byte offset
// where the value starts.
func propertyHead(toks []lexer.Token) (name string, index int, indexed bool, valueStart int, ok bool) {
	if len(toks) < 2 || toks[0].Kind != lexer.Ident {
		return "", 0, false, 0, false
	}
	name = toks[0].Text
	if toks[1].Is(lexer.Punct, "=") {
		return name, 0, false, toks[1].End(), true
	}
	if len(toks) < 5 {
		return "", 0, false, 0, false
	}
	open, num, closing, eq := toks[1], toks[2], toks[3], toks[4]
	if !(open.Is(lexer.Punct, "(") && closing.Is(lexer.Punct, ")")) &&
		!(open.Is(lexer.Punct, "[") && closing.Is(lexer.Punct, "]")) {
		return "", 0, false, 0, false
	}
	if num.Kind != lexer.Number || !eq.Is(lexer.Punct, "=") {
		return "", 0, false, 0, false
	}
	n, err := strconv.Atoi(num.Text)
	if err != nil || n < 0 {
		return "", 0, false, 0, false
	}
	return name, n, true, eq.End(), true
}

func (p *parser) begin(ln int, all, toks []lexer.Token) {
	if len(toks) < 2 || toks[1].Kind != lexer.Ident {
		// Still an anchor: open an anonymous block so the matching End
		// balances, but keep nothing from it.
		p.diags.Warn(diag.KindSyntax, ln, "Begin without a block kind: %q", truncate(p.text(toks), 80))
		p.stack = append(p.stack, &frame{kind: "", line: ln, discard: true})
		return
	}
	kind := toks[1].Text
	attrs, err := p.attrs(all, toks[1])
	if err != "" {
		p.diags.Warn(diag.KindSyntax, ln, "Begin %s: %s", kind, err)
	}

	top := p.top()
	if top != nil && top.discard {
		p.stack = append(p.stack, &frame{kind: kind, line: ln, discard: true})
		return
	}

	switch {
	case strings.EqualFold(kind, scene.KindPolyList) && top != nil && top.node != nil && top.node.Brush != nil:
		p.stack = append(p.stack, &frame{kind: kind, line: ln, brush: top.node})
		return
	case strings.EqualFold(kind, scene.KindPolygon) && brushOf(top) != nil && top.poly == nil:
		brush := brushOf(top)
		poly := &scene.Polygon{Attrs: attrs, Line: ln}
		brush.Brush.Polygons = append(brush.Brush.Polygons, poly)
		p.stack = append(p.stack, &frame{kind: kind, line: ln, brush: brush, poly: poly})
		return
	case top != nil && top.poly != nil:
		p.diags.Warn(diag.KindSyntax, ln, "Begin %s inside a polygon is not allowed; block ignored", kind)
		p.stack = append(p.stack, &frame{kind: kind, line: ln, discard: true})
		return
	}

	node := &scene.Actor{Kind: kind, Attrs: attrs, Line: ln}
	if strings.EqualFold(kind, scene.KindBrush) {
		node.Brush = &scene.Brush{}
	}
	if owner := p.owner(); owner != nil {
		owner.Children = append(owner.Children, node)
	} else {
		p.doc.Nodes = append(p.doc.Nodes, node)
	}
	p.stack = append(p.stack, &frame{kind: kind, line: ln, node: node})
}

// brushOf returns the Brush node a frame contributes geometry to.
func brushOf(f *frame) *scene.Actor {
	switch {
	case f == nil:
		return nil
	case f.brush != nil:
		return f.brush
	case f.node != nil && f.node.Brush != nil:
		return f.node
	}
	return nil
}

// attrs parses the Key=Value pairs that follow the block kind on a Begin
// line. Values end at whitespace outside parentheses.
func (p *parser) attrs(all []lexer.Token, kindTok lexer.Token) ([]scene.Attr, string) {
	i := 0
	for i < len(all) && all[i].Offset <= kindTok.Offset {
		i++
	}
	var out []scene.Attr
	for i < len(all) {
		if all[i].Kind == lexer.Whitespace {
			i++
			continue
		}
		key := all[i]
		if key.Kind != lexer.Ident || i+1 >= len(all) || !all[i+1].Is(lexer.Punct, "=") {
			return out, "unexpected " + strconv.Quote(truncate(p.src[key.Offset:lineEnd(all)], 40))
		}
		i += 2
		valueStart := all[i-1].End()
		depth := 0
		for i < len(all) {
			t := all[i]
			if t.Kind == lexer.Whitespace && depth == 0 {
				break
			}
			switch {
			case t.Is(lexer.Punct, "("):
				depth++
			case t.Is(lexer.Punct, ")") && depth > 0:
				depth--
			}
			i++
		}
		end := valueStart
		if i > 0 && all[i-1].End() > valueStart {
			end = all[i-1].End()
		}
		raw := p.src[valueStart:end]
		out = append(out, scene.Attr{Key: key.Text, Value: ParseValue(key.Text, raw)})
	}
	return out, ""
}

func (p *parser) end(ln int, toks []lexer.Token) error {
	if len(p.stack) == 0 {
		return &diag.StructuralError{Line: ln, Message: "End " + endKind(toks) + " with no open Begin block"}
	}
	kind := endKind(toks)
	match := -1
	for i := len(p.stack) - 1; i >= 0; i-- {
		if kind == "" || strings.EqualFold(p.stack[i].kind, kind) {
			match = i
			break
		}
	}
	if match < 0 {
		p.diags.Warn(diag.KindSyntax, ln, "End %s matches no open block; ignored", kind)
		return nil
	}
	for len(p.stack)-1 > match {
		f := p.pop()
		p.diags.Warn(diag.KindSyntax, f.line, "Begin %s closed implicitly by End %s at line %d", f.kind, kind, ln)
	}
	p.pop()
	return nil
}

func endKind(toks []lexer.Token) string {
	if len(toks) > 1 && toks[1].Kind == lexer.Ident {
		return toks[1].Text
	}
	return ""
}

// geometryLine parses Origin/Normal/TextureU/TextureV/Vertex/Pan lines.
// It reports false when the line is not a geometry keyword so the caller can
// try other forms.
func (p *parser) geometryLine(ln int, toks []lexer.Token, poly *scene.Polygon) bool {
	if toks[0].Kind != lexer.Ident {
		return false
	}
	keyword := strings.ToLower(toks[0].Text)
	rest := ""
	if len(toks) > 1 {
		rest = p.src[toks[1].Offset:toks[len(toks)-1].End()]
	}
	switch keyword {
	case "origin", "normal", "textureu", "texturev", "vertex":
		v, ok := parseVec3(rest)
		if !ok {
			p.diags.Warn(diag.KindSyntax, ln, "invalid %s coordinates %q; line kept verbatim", toks[0].Text, rest)
			poly.Extra = append(poly.Extra, p.text(toks))
			return true
		}
		switch keyword {
		case "origin":
			poly.Origin = v
		case "normal":
			poly.Normal = v
		case "textureu":
			poly.TextureU = v
		case "texturev":
			poly.TextureV = v
		case "vertex":
			poly.Vertices = append(poly.Vertices, v)
		}
		return true
	case "pan":
		u, v, ok := parsePan(toks[1:])
		if !ok {
			p.diags.Warn(diag.KindSyntax, ln, "invalid Pan %q; line kept verbatim", rest)
			poly.Extra = append(poly.Extra, p.text(toks))
			return true
		}
		poly.PanU, poly.PanV, poly.HasPan = u, v, true
		return true
	}
	return false
}

// parseVec3 parses "x,y,z" with optional sign prefixes such as
// "+00128.000000,-00064.000000,+00000.000000".
func parseVec3(s string) (mgl64.Vec3, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return mgl64.Vec3{}, false
	}
	var v mgl64.Vec3
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return mgl64.Vec3{}, false
		}
		v[i] = f
	}
	return v, true
}

// parsePan parses "U=<int> V=<int>".
func parsePan(toks []lexer.Token) (u, v int, ok bool) {
	seen := 0
	for i := 0; i+2 < len(toks); i += 3 {
		key, eq, num := toks[i], toks[i+1], toks[i+2]
		if key.Kind != lexer.Ident || !eq.Is(lexer.Punct, "=") || num.Kind != lexer.Number {
			return 0, 0, false
		}
		n, err := strconv.Atoi(strings.TrimPrefix(num.Text, "+"))
		if err != nil {
			return 0, 0, false
		}
		switch strings.ToUpper(key.Text) {
		case "U":
			u = n
		case "V":
			v = n
		default:
			return 0, 0, false
		}
		seen++
	}
	return u, v, seen > 0 && seen*3 == len(toks)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
