package rules

import "strings"

// Hierarchy is the static class-ancestry table used to find the nearest
// ancestor rule for a class with no rule of its own. Keys are lower-cased
// class names; values are parent class names.
type Hierarchy struct {
	parent map[string]string
}

// defaultParents covers the stock classes of all four generations that the
// built-in rules and common rule packs refer to.
var defaultParents = map[string]string{
	"info":                 "Actor",
	"zoneinfo":             "Info",
	"skyzoneinfo":          "ZoneInfo",
	"warpzoneinfo":         "ZoneInfo",
	"levelinfo":            "ZoneInfo",
	"light":                "Actor",
	"spotlight":            "Light",
	"triggerlight":         "Light",
	"sunlight":             "Light",
	"pointlight":           "Light",
	"directionallight":     "Light",
	"skylight":             "Light",
	"keypoint":             "Actor",
	"ambientsound":         "Keypoint",
	"decoration":           "Actor",
	"staticmeshactor":      "Actor",
	"brush":                "Actor",
	"mover":                "Brush",
	"volume":               "Brush",
	"blockingvolume":       "Volume",
	"physicsvolume":        "Volume",
	"watervolume":          "PhysicsVolume",
	"lavavolume":           "PhysicsVolume",
	"postprocessvolume":    "Volume",
	"triggervolume":        "Volume",
	"navigationpoint":      "Actor",
	"pathnode":             "NavigationPoint",
	"playerstart":          "NavigationPoint",
	"teleporter":           "NavigationPoint",
	"inventoryspot":        "NavigationPoint",
	"liftcenter":           "NavigationPoint",
	"liftexit":             "NavigationPoint",
	"triggers":             "Actor",
	"trigger":              "Triggers",
	"dispatcher":           "Triggers",
	"counter":              "Triggers",
	"inventory":            "Actor",
	"pickup":               "Inventory",
	"weapon":               "Inventory",
	"emitter":              "Actor",
	"interpactor":          "Actor",
	"billboardactor":       "Actor",
	"note":                 "Actor",
	"camera":               "Actor",
	"projector":            "Actor",
	"fluidsurfaceinfo":     "Info",
	"defaultphysicsvolume": "PhysicsVolume",
}

// DefaultHierarchy returns the built-in ancestry table.
func DefaultHierarchy() *Hierarchy {
	h := &Hierarchy{parent: make(map[string]string, len(defaultParents))}
	for k, v := range defaultParents {
		h.parent[k] = v
	}
	return h
}

// Set records class as a direct subclass of parent, replacing any earlier
// entry.
func (h *Hierarchy) Set(class, parent string) {
	h.parent[strings.ToLower(NormalizeClass(class))] = parent
}

// Known reports whether class appears in the table, either as a subclass or
// as the root class Actor.
func (h *Hierarchy) Known(class string) bool {
	c := strings.ToLower(NormalizeClass(class))
	if c == "actor" {
		return true
	}
	_, ok := h.parent[c]
	return ok
}

// Ancestors returns the parents of class from nearest to furthest. Cycles
// in user-supplied tables are cut at the first repeat.
func (h *Hierarchy) Ancestors(class string) []string {
	var out []string
	seen := map[string]bool{strings.ToLower(NormalizeClass(class)): true}
	cur := NormalizeClass(class)
	for {
		p, ok := h.parent[strings.ToLower(cur)]
		if !ok || seen[strings.ToLower(p)] {
			return out
		}
		seen[strings.ToLower(p)] = true
		out = append(out, p)
		cur = p
	}
}

// NormalizeClass strips package and object-path qualifiers, so
// "/Script/Engine.PointLight" and "Engine.PointLight" both become
// "PointLight".
func NormalizeClass(class string) string {
	c := strings.TrimSpace(class)
	if i := strings.LastIndexByte(c, '.'); i >= 0 {
		c = c[i+1:]
	}
	return strings.Trim(c, `'"`)
}
