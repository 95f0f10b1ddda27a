// Package scene is the in-memory model of a T3D document: nested blocks
// (actors, containers, sub-objects) with ordered typed properties and
// structured brush geometry.
package scene

// Header is the document-level metadata.
type Header struct {
	// Generation is the dialect the document is written in.
	Generation Generation
	// Preamble keeps any text before the first Begin line verbatim.
	Preamble []string
}

// Document is a parsed T3D file. It is owned by exactly one conversion run.
type Document struct {
	Header Header
	Nodes  []*Actor
}

// Walk visits every block depth-first.
func (d *Document) Walk(fn func(*Actor) bool) {
	for _, n := range d.Nodes {
		n.Walk(fn)
	}
}

// Actors returns every Begin Actor block in document order, including actors
// nested in containers such as Map and Level.
func (d *Document) Actors() []*Actor {
	var out []*Actor
	d.Walk(func(a *Actor) bool {
		if a.IsActor() {
			out = append(out, a)
			return false
		}
		return true
	})
	return out
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := &Document{Header: Header{Generation: d.Header.Generation}}
	out.Header.Preamble = append([]string(nil), d.Header.Preamble...)
	for _, n := range d.Nodes {
		out.Nodes = append(out.Nodes, n.Clone())
	}
	return out
}
