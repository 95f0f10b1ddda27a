package convert

import (
	"strings"

	"github.com/cory-johannsen/levelport/internal/resource"
	"github.com/cory-johannsen/levelport/internal/t3d/scene"
)

// Resolve attaches a shared PackageResource from reg to every reference
// value in doc: block attributes, properties, indexed elements and polygon
// attributes. It returns the source line of each resource's first
// reference.
func Resolve(doc *scene.Document, reg *resource.Registry) map[*resource.PackageResource]int {
	lines := make(map[*resource.PackageResource]int)
	visit := func(v scene.Value, line int) {
		resolveValue(v, line, reg, lines)
	}
	doc.Walk(func(a *scene.Actor) bool {
		for _, at := range a.Attrs {
			visit(at.Value, a.Line)
		}
		for _, p := range a.Properties() {
			line := p.Line
			if line == 0 {
				line = a.Line
			}
			visit(p.Value, line)
		}
		if a.Brush != nil {
			for _, poly := range a.Brush.Polygons {
				for _, at := range poly.Attrs {
					visit(at.Value, poly.Line)
				}
			}
		}
		return true
	})
	return lines
}

func resolveValue(v scene.Value, line int, reg *resource.Registry, lines map[*resource.PackageResource]int) {
	switch v.Kind {
	case scene.ValueArray:
		for _, el := range v.Elements {
			resolveValue(el.Value, line, reg, lines)
		}
	case scene.ValueReference:
		if v.Ref == nil {
			return
		}
		text := v.Ref.Path
		if v.Ref.Class != "" {
			text = v.Ref.Class + "'" + v.Ref.Path + "'"
		}
		res, ok := reg.Resolve(text, v.Ref.Kind)
		if !ok {
			return
		}
		// Ref is shared by every copy of v, so the owning property sees it.
		v.Ref.Resource = res
		if _, seen := lines[res]; !seen {
			lines[res] = line
		}
	}
}

// foldName normalizes a resource name for matching extractor output, which
// reports only the last path segment.
func foldName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(name)
}
