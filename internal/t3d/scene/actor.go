package scene

import "strings"

// Block kinds with special meaning to the converter.
const (
	KindActor    = "Actor"
	KindBrush    = "Brush"
	KindPolyList = "PolyList"
	KindPolygon  = "Polygon"
	KindMap      = "Map"
	KindLevel    = "Level"
)

// Attr is a Key=Value pair on a Begin line, e.g. Class=Light.
type Attr struct {
	Key   string
	Value Value
}

// Property is one Key=Value line inside a block.
type Property struct {
	Name  string
	Value Value
	// Line is the source line of the first declaration; 0 for properties
	// created by a rule.
	Line int
}

// Actor is one Begin/End block: a level actor, a container such as Map or
// Level, or a nested sub-object. Property names are unique case-insensitively
// and keep insertion order.
type Actor struct {
	Kind     string
	Attrs    []Attr
	Children []*Actor
	// Brush holds the structured polygon list of a Brush block.
	Brush *Brush
	Line  int

	props []Property
}

// NewActor creates an empty block of the given kind.
func NewActor(kind string) *Actor { return &Actor{Kind: kind} }

// IsActor reports whether the block is a level actor (Begin Actor).
func (a *Actor) IsActor() bool { return strings.EqualFold(a.Kind, KindActor) }

// Attr returns the value of a Begin-line attribute, case-insensitively.
func (a *Actor) Attr(key string) (Value, bool) {
	for _, at := range a.Attrs {
		if strings.EqualFold(at.Key, key) {
			return at.Value, true
		}
	}
	return Value{}, false
}

// SetAttr replaces an attribute in place or appends it.
func (a *Actor) SetAttr(key string, v Value) {
	for i := range a.Attrs {
		if strings.EqualFold(a.Attrs[i].Key, key) {
			a.Attrs[i].Value = v
			return
		}
	}
	a.Attrs = append(a.Attrs, Attr{Key: key, Value: v})
}

// Class returns the Class= attribute text, or "" when absent.
func (a *Actor) Class() string {
	if v, ok := a.Attr("Class"); ok {
		return v.Text()
	}
	return ""
}

// SetClass sets the Class= attribute.
func (a *Actor) SetClass(class string) { a.SetAttr("Class", NameValue(class)) }

// Name returns the Name= attribute text, or "" when absent.
func (a *Actor) Name() string {
	if v, ok := a.Attr("Name"); ok {
		return v.Text()
	}
	return ""
}

// SetName sets the Name= attribute.
func (a *Actor) SetName(name string) { a.SetAttr("Name", NameValue(name)) }

func (a *Actor) indexOf(name string) int {
	for i := range a.props {
		if strings.EqualFold(a.props[i].Name, name) {
			return i
		}
	}
	return -1
}

// Properties returns a copy of the property list in declaration order.
func (a *Actor) Properties() []Property {
	out := make([]Property, len(a.props))
	copy(out, a.props)
	return out
}

// Len returns the number of properties.
func (a *Actor) Len() int { return len(a.props) }

// Property looks up a property case-insensitively.
func (a *Actor) Property(name string) (Property, bool) {
	if i := a.indexOf(name); i >= 0 {
		return a.props[i], true
	}
	return Property{}, false
}

// Value returns a property's value case-insensitively.
func (a *Actor) Value(name string) (Value, bool) {
	p, ok := a.Property(name)
	return p.Value, ok
}

// Set replaces an existing property's value in place, keeping its position
// and original casing, or appends a new property.
func (a *Actor) Set(name string, v Value) {
	if i := a.indexOf(name); i >= 0 {
		a.props[i].Value = v
		return
	}
	a.props = append(a.props, Property{Name: name, Value: v})
}

// Add appends a property parsed from the given line. A repeated name
// replaces the earlier value (the engine keeps the last assignment) but
// keeps the first position.
//
// Postcondition: returns false when the name already existed.
func (a *Actor) Add(name string, v Value, line int) bool {
	if i := a.indexOf(name); i >= 0 {
		a.props[i].Value = v
		return false
	}
	a.props = append(a.props, Property{Name: name, Value: v, Line: line})
	return true
}

// AddElement merges an indexed declaration Name(index)=v into an array
// value keyed by the base name. A repeated index replaces the earlier entry.
func (a *Actor) AddElement(name string, index int, v Value, line int) {
	i := a.indexOf(name)
	if i < 0 {
		a.props = append(a.props, Property{Name: name, Value: ArrayValue(Element{Index: index, Value: v}), Line: line})
		return
	}
	arr := a.props[i].Value
	if arr.Kind != ValueArray {
		// A scalar assignment followed by indexed ones: the scalar is index 0.
		arr = ArrayValue(Element{Index: 0, Value: arr})
	}
	for j := range arr.Elements {
		if arr.Elements[j].Index == index {
			arr.Elements[j].Value = v
			a.props[i].Value = arr
			return
		}
	}
	arr.Elements = append(arr.Elements, Element{Index: index, Value: v})
	a.props[i].Value = arr
}

// Remove deletes a property, reporting whether it existed.
func (a *Actor) Remove(name string) bool {
	i := a.indexOf(name)
	if i < 0 {
		return false
	}
	a.props = append(a.props[:i], a.props[i+1:]...)
	return true
}

// Rename changes a property's name in place. If newName already exists as a
// different property, that property is removed first so names stay unique.
//
// Postcondition: returns false when oldName does not exist.
func (a *Actor) Rename(oldName, newName string) bool {
	i := a.indexOf(oldName)
	if i < 0 {
		return false
	}
	if j := a.indexOf(newName); j >= 0 && j != i {
		a.props = append(a.props[:j], a.props[j+1:]...)
		if j < i {
			i--
		}
	}
	a.props[i].Name = newName
	return true
}

// SetProperties replaces the whole property list.
func (a *Actor) SetProperties(props []Property) {
	a.props = append([]Property(nil), props...)
}

// Clone returns a deep copy of the block and its children.
func (a *Actor) Clone() *Actor {
	out := &Actor{Kind: a.Kind, Line: a.Line}
	if a.Attrs != nil {
		out.Attrs = make([]Attr, len(a.Attrs))
		for i, at := range a.Attrs {
			out.Attrs[i] = Attr{Key: at.Key, Value: at.Value.Clone()}
		}
	}
	if a.props != nil {
		out.props = make([]Property, len(a.props))
		for i, p := range a.props {
			out.props[i] = Property{Name: p.Name, Value: p.Value.Clone(), Line: p.Line}
		}
	}
	for _, c := range a.Children {
		out.Children = append(out.Children, c.Clone())
	}
	if a.Brush != nil {
		out.Brush = a.Brush.Clone()
	}
	return out
}

// Walk visits the block and its descendants depth-first. Returning false
// from fn skips the block's children.
func (a *Actor) Walk(fn func(*Actor) bool) {
	if !fn(a) {
		return
	}
	for _, c := range a.Children {
		c.Walk(fn)
	}
}
