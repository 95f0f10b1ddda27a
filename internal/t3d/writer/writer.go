// Package writer serializes a scene.Document back to T3D text.
package writer

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/cory-johannsen/levelport/internal/t3d/scene"
)

// indentUnit is the per-level indentation used by the editors' exporters.
const indentUnit = "   "

// Options controls output formatting.
type Options struct {
	// CRLF terminates lines with "\r\n" instead of "\n".
	CRLF bool
}

// Writer emits T3D text to an underlying io.Writer.
type Writer struct {
	w    *bufio.Writer
	nl   string
	err  error
	line []byte
}

// New creates a Writer over w.
func New(w io.Writer, opts Options) *Writer {
	nl := "\n"
	if opts.CRLF {
		nl = "\r\n"
	}
	return &Writer{w: bufio.NewWriter(w), nl: nl}
}

// WriteDocument writes the preamble and every node of doc, in order.
//
// Precondition: doc must be non-nil.
// Postcondition: every Begin has a matching End at the same indentation;
// values a rule never touched are written from their source text.
func (wr *Writer) WriteDocument(doc *scene.Document) error {
	for _, line := range doc.Header.Preamble {
		wr.emit(0, line)
	}
	for _, n := range doc.Nodes {
		wr.node(0, n)
	}
	if wr.err != nil {
		return fmt.Errorf("writing document: %w", wr.err)
	}
	if err := wr.w.Flush(); err != nil {
		return fmt.Errorf("flushing document: %w", err)
	}
	return nil
}

// String renders doc to a string with default options.
func String(doc *scene.Document) string {
	var b strings.Builder
	// strings.Builder never returns write errors.
	_ = New(&b, Options{}).WriteDocument(doc)
	return b.String()
}

func (wr *Writer) emit(depth int, text string) {
	if wr.err != nil {
		return
	}
	wr.line = wr.line[:0]
	for i := 0; i < depth; i++ {
		wr.line = append(wr.line, indentUnit...)
	}
	wr.line = append(wr.line, text...)
	wr.line = append(wr.line, wr.nl...)
	_, wr.err = wr.w.Write(wr.line)
}

func beginLine(kind string, attrs []scene.Attr) string {
	var b strings.Builder
	b.WriteString("Begin ")
	b.WriteString(kind)
	for _, a := range attrs {
		b.WriteByte(' ')
		b.WriteString(a.Key)
		b.WriteByte('=')
		b.WriteString(a.Value.Text())
	}
	return b.String()
}

func (wr *Writer) node(depth int, a *scene.Actor) {
	wr.emit(depth, beginLine(a.Kind, a.Attrs))
	for _, c := range a.Children {
		wr.node(depth+1, c)
	}
	if a.Brush != nil {
		wr.brush(depth+1, a.Brush)
	}
	for _, p := range a.Properties() {
		wr.property(depth+1, p.Name, p.Value)
	}
	wr.emit(depth, "End "+a.Kind)
}

func (wr *Writer) property(depth int, name string, v scene.Value) {
	if v.Kind != scene.ValueArray {
		wr.emit(depth, name+"="+v.Text())
		return
	}
	for _, e := range v.Elements {
		wr.emit(depth, name+"("+strconv.Itoa(e.Index)+")="+e.Value.Text())
	}
}

func (wr *Writer) brush(depth int, b *scene.Brush) {
	wr.emit(depth, "Begin "+scene.KindPolyList)
	for _, p := range b.Polygons {
		wr.polygon(depth+1, p)
	}
	wr.emit(depth, "End "+scene.KindPolyList)
}

func (wr *Writer) polygon(depth int, p *scene.Polygon) {
	wr.emit(depth, beginLine(scene.KindPolygon, p.Attrs))
	in := depth + 1
	wr.emit(in, "Origin   "+FormatVector(p.Origin))
	wr.emit(in, "Normal   "+FormatVector(p.Normal))
	wr.emit(in, "TextureU "+FormatVector(p.TextureU))
	wr.emit(in, "TextureV "+FormatVector(p.TextureV))
	if p.HasPan {
		wr.emit(in, fmt.Sprintf("Pan      U=%d V=%d", p.PanU, p.PanV))
	}
	for _, v := range p.Vertices {
		wr.emit(in, "Vertex   "+FormatVector(v))
	}
	for _, extra := range p.Extra {
		wr.emit(in, extra)
	}
	wr.emit(depth, "End "+scene.KindPolygon)
}

// FormatVector renders a geometry vector as "+00128.000000,-00064.000000,+00000.000000".
func FormatVector(v mgl64.Vec3) string {
	return fmt.Sprintf("%+013.6f,%+013.6f,%+013.6f", v[0], v[1], v[2])
}
