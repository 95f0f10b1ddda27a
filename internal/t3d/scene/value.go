package scene

import (
	"math"
	"strconv"
	"strings"

	"github.com/cory-johannsen/levelport/internal/resource"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	ValueRaw ValueKind = iota
	ValueInt
	ValueFloat
	ValueBool
	ValueString
	ValueName
	ValueVector
	ValueReference
	ValueArray
)

func (k ValueKind) String() string {
	switch k {
	case ValueRaw:
		return "raw"
	case ValueInt:
		return "int"
	case ValueFloat:
		return "float"
	case ValueBool:
		return "bool"
	case ValueString:
		return "string"
	case ValueName:
		return "name"
	case ValueVector:
		return "vector"
	case ValueReference:
		return "reference"
	case ValueArray:
		return "array"
	default:
		return "ValueKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Component is one named scalar of a vector value, e.g. X=1.0.
type Component struct {
	Name  string
	Value float64
}

// Element is one entry of an indexed property, e.g. Skins(2)=... .
type Element struct {
	Index int
	Value Value
}

// Ref is a reference to a package resource.
type Ref struct {
	// Class is the type prefix of Class'Path' syntax; empty for bare paths.
	Class string
	Path  string
	// Kind is the resource kind implied by the owning property or class prefix.
	Kind resource.Kind
	// Resource is attached by the resolver stage.
	Resource *resource.PackageResource
}

// Value is a property value. Values produced by the parser keep the exact
// source text they came from and are written back verbatim unless replaced.
type Value struct {
	Kind       ValueKind
	Int        int64
	Float      float64
	Bool       bool
	Str        string
	Components []Component
	// Integral renders vector components as integers, as colors expect.
	Integral bool
	Ref      *Ref
	Elements []Element

	raw    string
	parsed bool
}

// RawValue wraps source text the parser could not (or chose not to) type.
func RawValue(text string) Value {
	return Value{Kind: ValueRaw, raw: text, parsed: true}
}

// IntValue creates a new integer value.
func IntValue(n int64) Value { return Value{Kind: ValueInt, Int: n} }

// FloatValue creates a new float value.
func FloatValue(f float64) Value { return Value{Kind: ValueFloat, Float: f} }

// BoolValue creates a new boolean value.
func BoolValue(b bool) Value { return Value{Kind: ValueBool, Bool: b} }

// StringValue creates a new string value; it is quoted on output when needed.
func StringValue(s string) Value { return Value{Kind: ValueString, Str: s} }

// NameValue creates a new bare token value such as an enum name or class.
func NameValue(s string) Value { return Value{Kind: ValueName, Str: s} }

// VectorValue creates a new vector value from named components.
func VectorValue(components ...Component) Value {
	return Value{Kind: ValueVector, Components: components}
}

// ReferenceValue creates a new reference value.
func ReferenceValue(class, path string, kind resource.Kind) Value {
	return Value{Kind: ValueReference, Ref: &Ref{Class: class, Path: path, Kind: kind}}
}

// ArrayValue creates a new indexed value.
func ArrayValue(elements ...Element) Value {
	return Value{Kind: ValueArray, Elements: elements}
}

// WithRaw marks v as parsed from the given source text.
func (v Value) WithRaw(raw string) Value {
	v.raw = raw
	v.parsed = true
	return v
}

// Raw returns the source text the value was parsed from, or "" for values
// created by a rule.
func (v Value) Raw() string {
	if !v.parsed {
		return ""
	}
	return v.raw
}

// Parsed reports whether v still carries its original source text.
func (v Value) Parsed() bool { return v.parsed }

// Touched returns a copy of v that is re-formatted on output instead of
// echoing its source text. Rules call it after changing a value in place.
func (v Value) Touched() Value {
	v.parsed = false
	v.raw = ""
	if v.Ref != nil {
		r := *v.Ref
		v.Ref = &r
	}
	return v
}

// AsFloat returns the numeric value of an int or float.
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case ValueInt:
		return float64(v.Int), true
	case ValueFloat:
		return v.Float, true
	default:
		return 0, false
	}
}

// Component returns the named vector component, case-insensitively.
func (v Value) Component(name string) (float64, bool) {
	for _, c := range v.Components {
		if strings.EqualFold(c.Name, name) {
			return c.Value, true
		}
	}
	return 0, false
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	out := v
	if v.Components != nil {
		out.Components = append([]Component(nil), v.Components...)
	}
	if v.Ref != nil {
		r := *v.Ref
		out.Ref = &r
	}
	if v.Elements != nil {
		out.Elements = make([]Element, len(v.Elements))
		for i, e := range v.Elements {
			out.Elements[i] = Element{Index: e.Index, Value: e.Value.Clone()}
		}
	}
	return out
}

// Text renders the value for a Key=Value line. Parsed values return their
// source text unchanged. Arrays have no single-line form and render as "".
func (v Value) Text() string {
	if v.parsed {
		return v.raw
	}
	switch v.Kind {
	case ValueInt:
		return strconv.FormatInt(v.Int, 10)
	case ValueFloat:
		return FormatFloat(v.Float)
	case ValueBool:
		if v.Bool {
			return "True"
		}
		return "False"
	case ValueString:
		return QuoteIfNeeded(v.Str)
	case ValueName:
		return v.Str
	case ValueVector:
		var b strings.Builder
		b.WriteByte('(')
		for i, c := range v.Components {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(c.Name)
			b.WriteByte('=')
			if v.Integral {
				b.WriteString(strconv.FormatInt(int64(math.Round(c.Value)), 10))
			} else {
				b.WriteString(FormatFloat(c.Value))
			}
		}
		b.WriteByte(')')
		return b.String()
	case ValueReference:
		if v.Ref == nil {
			return "None"
		}
		if v.Ref.Class != "" {
			return v.Ref.Class + "'" + v.Ref.Path + "'"
		}
		return v.Ref.Path
	default:
		return v.raw
	}
}

// FormatFloat renders a float the way T3D exporters do: fixed six decimals.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}

const reservedChars = "=(),\"'"

// QuoteIfNeeded quotes s when it is empty or contains whitespace or a
// character reserved by the T3D grammar.
func QuoteIfNeeded(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\r\n"+reservedChars) {
		return s
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
