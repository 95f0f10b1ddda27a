package parser

import (
	"strings"

	"github.com/cory-johannsen/levelport/internal/resource"
)

// referenceHints maps lower-cased property names whose values name package
// resources to the kind of resource they hold.
var referenceHints = map[string]resource.Kind{
	"staticmesh":        resource.KindStaticMesh,
	"texture":           resource.KindTexture,
	"skin":              resource.KindTexture,
	"skins":             resource.KindTexture,
	"multiskins":        resource.KindTexture,
	"material":          resource.KindTexture,
	"materials":         resource.KindTexture,
	"overridematerials": resource.KindTexture,
	"sprite":            resource.KindTexture,
	"skybox":            resource.KindOther,
	"mesh":              resource.KindOther,
	"ambientsound":      resource.KindSound,
	"sound":             resource.KindSound,
	"soundcue":          resource.KindSound,
	"openingsound":      resource.KindSound,
	"openedsound":       resource.KindSound,
	"closingsound":      resource.KindSound,
	"closedsound":       resource.KindSound,
	"moveambientsound":  resource.KindSound,
	"song":              resource.KindSound,
}

// referenceHint reports the resource kind implied by a property name and
// whether the property is known to hold a reference.
func referenceHint(name string) (resource.Kind, bool) {
	k, ok := referenceHints[strings.ToLower(name)]
	return k, ok
}
