// Package resource resolves Package.Resource references found in scene
// properties to shared PackageResource instances.
//
// A Registry is owned by exactly one conversion run and passed explicitly to
// every component that needs resolution; it is the single source of truth
// that asset extractors consult to learn which packages need exporting.
package resource

import (
	"fmt"
	"sort"
	"strings"
)

// Kind is the asset category of a referenced resource.
type Kind int

const (
	KindOther Kind = iota
	KindTexture
	KindStaticMesh
	KindSound
)

var kindNames = map[Kind]string{
	KindOther:      "Other",
	KindTexture:    "Texture",
	KindStaticMesh: "StaticMesh",
	KindSound:      "Sound",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a kind name such as "texture" or "StaticMesh" to a Kind,
// case-insensitively.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(name, s) {
			return k, nil
		}
	}
	return KindOther, fmt.Errorf("unknown resource kind %q", s)
}

// NeedsExport reports whether resources of this kind require a binary
// export step by an external extractor.
func (k Kind) NeedsExport() bool {
	return k == KindTexture || k == KindStaticMesh || k == KindSound
}

// KindFromClass maps the class prefix of a typed reference such as
// Texture'Pkg.Name' to a Kind. Unknown classes map to KindOther.
func KindFromClass(class string) Kind {
	switch strings.ToLower(class) {
	case "texture", "shader", "finalblend", "combiner", "texpanner", "material", "texture2d", "materialinstanceconstant":
		return KindTexture
	case "staticmesh":
		return KindStaticMesh
	case "sound", "soundcue", "soundwave":
		return KindSound
	default:
		return KindOther
	}
}

// PackageResource is a named asset inside a package.
type PackageResource struct {
	// Package and Name keep the casing of the first reference seen.
	Package string
	Name    string
	Kind    Kind
	// ExportedFile is set by the extraction collaborator; empty until then.
	ExportedFile string
}

// FullName returns "Package.Name".
func (r *PackageResource) FullName() string { return r.Package + "." + r.Name }

// Exported reports whether an extractor produced a file for this resource.
func (r *PackageResource) Exported() bool { return r.ExportedFile != "" }

// Reference is a parsed reference token.
type Reference struct {
	// Class is the type prefix of Class'Pkg.Name' syntax; empty for bare references.
	Class   string
	Package string
	Name    string
}

// ParseReference splits a reference token into its parts. Accepted forms:
// Class'Pkg.Name', Class'Pkg.Group.Name', Pkg.Name, Pkg.Group.Name. The
// package is the first dotted segment and the resource name is everything
// after it, so grouped resources stay distinct.
//
// Postcondition: ok is false for None, empty input, or text without a dot.
func ParseReference(text string) (ref Reference, ok bool) {
	s := strings.TrimSpace(text)
	s = strings.Trim(s, `"`)
	if q := strings.IndexByte(s, '\''); q > 0 && strings.HasSuffix(s, "'") && q < len(s)-1 {
		ref.Class = s[:q]
		s = s[q+1 : len(s)-1]
	}
	if s == "" || strings.EqualFold(s, "none") {
		return Reference{}, false
	}
	// UE4 object paths: /Game/Pkg/Asset.Asset
	s = strings.TrimPrefix(s, "/")
	dot := strings.IndexByte(s, '.')
	if dot <= 0 || dot == len(s)-1 {
		return Reference{}, false
	}
	if c := s[0]; !(c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')) {
		return Reference{}, false
	}
	ref.Package = s[:dot]
	ref.Name = s[dot+1:]
	if strings.ContainsAny(ref.Package+ref.Name, " \t()=,\"") {
		return Reference{}, false
	}
	return ref, true
}

// key normalizes (package, name) case-insensitively, matching the legacy
// engine's package naming.
func key(pkg, name string) string {
	return strings.ToLower(pkg) + "." + strings.ToLower(name)
}

// Registry deduplicates PackageResources for one conversion run. It is not
// safe for concurrent use.
type Registry struct {
	byKey map[string]*PackageResource
	order []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]*PackageResource)}
}

// Resolve returns the shared PackageResource for the reference text,
// creating it on first sight. hint is the kind implied by the owning
// property; a typed reference's class prefix takes precedence over it.
//
// Postcondition: two calls naming the same package and resource (in any
// casing) return the same pointer; ok is false when text is not a reference.
func (r *Registry) Resolve(text string, hint Kind) (res *PackageResource, ok bool) {
	ref, ok := ParseReference(text)
	if !ok {
		return nil, false
	}
	kind := hint
	if ref.Class != "" {
		if k := KindFromClass(ref.Class); k != KindOther {
			kind = k
		}
	}
	return r.Add(ref.Package, ref.Name, kind), true
}

// Add registers (pkg, name) and returns the shared instance. An existing
// entry of KindOther is upgraded when a more specific kind is supplied.
func (r *Registry) Add(pkg, name string, kind Kind) *PackageResource {
	k := key(pkg, name)
	if res, found := r.byKey[k]; found {
		if res.Kind == KindOther && kind != KindOther {
			res.Kind = kind
		}
		return res
	}
	res := &PackageResource{Package: pkg, Name: name, Kind: kind}
	r.byKey[k] = res
	r.order = append(r.order, k)
	return res
}

// Lookup finds a resource by package and name, case-insensitively.
func (r *Registry) Lookup(pkg, name string) (*PackageResource, bool) {
	res, ok := r.byKey[key(pkg, name)]
	return res, ok
}

// Len returns the number of distinct resources.
func (r *Registry) Len() int { return len(r.order) }

// All returns every resource in first-seen order.
func (r *Registry) All() []*PackageResource {
	out := make([]*PackageResource, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.byKey[k])
	}
	return out
}

// PackageExport groups the resources of one package that need exporting.
// A package may hold resources of several kinds.
type PackageExport struct {
	Package   string
	Resources []*PackageResource
}

// Kinds returns the distinct kinds of the export's resources in Kind order.
func (e PackageExport) Kinds() []Kind {
	seen := make(map[Kind]bool)
	var kinds []Kind
	for _, res := range e.Resources {
		if !seen[res.Kind] {
			seen[res.Kind] = true
			kinds = append(kinds, res.Kind)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// PendingExports groups not-yet-exported resources that need a binary
// export by package, case-insensitively, sorted by package name.
//
// Postcondition: each package appears in at most one PackageExport.
func (r *Registry) PendingExports() []PackageExport {
	groups := make(map[string]*PackageExport)
	var keys []string
	for _, res := range r.All() {
		if !res.Kind.NeedsExport() || res.Exported() {
			continue
		}
		gk := strings.ToLower(res.Package)
		g, ok := groups[gk]
		if !ok {
			g = &PackageExport{Package: res.Package}
			groups[gk] = g
			keys = append(keys, gk)
		}
		g.Resources = append(g.Resources, res)
	}
	sort.Strings(keys)
	out := make([]PackageExport, 0, len(keys))
	for _, k := range keys {
		out = append(out, *groups[k])
	}
	return out
}
