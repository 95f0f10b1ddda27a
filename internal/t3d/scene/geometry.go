package scene

import "github.com/go-gl/mathgl/mgl64"

// Polygon is one planar face of a CSG brush.
type Polygon struct {
	// Attrs are the Begin Polygon attributes (Item=, Texture=, Flags=, Link=).
	Attrs    []Attr
	Origin   mgl64.Vec3
	Normal   mgl64.Vec3
	TextureU mgl64.Vec3
	TextureV mgl64.Vec3
	PanU     int
	PanV     int
	HasPan   bool
	Vertices []mgl64.Vec3
	// Extra keeps unrecognized geometry lines verbatim.
	Extra []string
	Line  int
}

// Attr returns a polygon attribute case-insensitively.
func (p *Polygon) Attr(key string) (Value, bool) {
	a := Actor{Attrs: p.Attrs}
	return a.Attr(key)
}

// DistinctVertices counts vertices that differ from every earlier vertex.
func (p *Polygon) DistinctVertices() int {
	n := 0
	for i, v := range p.Vertices {
		dup := false
		for _, w := range p.Vertices[:i] {
			if v.ApproxEqual(w) {
				dup = true
				break
			}
		}
		if !dup {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the polygon.
func (p *Polygon) Clone() *Polygon {
	out := *p
	if p.Attrs != nil {
		out.Attrs = make([]Attr, len(p.Attrs))
		for i, a := range p.Attrs {
			out.Attrs[i] = Attr{Key: a.Key, Value: a.Value.Clone()}
		}
	}
	out.Vertices = append([]mgl64.Vec3(nil), p.Vertices...)
	out.Extra = append([]string(nil), p.Extra...)
	return &out
}

// Brush is the polygon list of a Begin Brush block.
type Brush struct {
	Polygons []*Polygon
}

// Clone returns a deep copy of the brush.
func (b *Brush) Clone() *Brush {
	out := &Brush{Polygons: make([]*Polygon, len(b.Polygons))}
	for i, p := range b.Polygons {
		out.Polygons[i] = p.Clone()
	}
	return out
}

// VertexCount returns the total vertex count across all polygons.
func (b *Brush) VertexCount() int {
	n := 0
	for _, p := range b.Polygons {
		n += len(p.Vertices)
	}
	return n
}
