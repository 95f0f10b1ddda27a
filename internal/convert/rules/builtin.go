package rules

import (
	"github.com/cory-johannsen/levelport/internal/t3d/scene"
)

// Unit conversions between legacy and modern light and sound properties.
const (
	// legacyRadiusUnit converts legacy light and sound radii to world units.
	legacyRadiusUnit = 25.0
	// intensityPerBrightness maps legacy LightBrightness (0-255) to Intensity.
	intensityPerBrightness = 8.0
	// ue3BrightnessPerLegacy maps legacy LightBrightness to UE3 Brightness,
	// where the legacy default of 64 becomes 1.0.
	ue3BrightnessPerLegacy = 1.0 / 64
	// coneDegreesPerUnit maps legacy LightCone (0-255) to a cone angle.
	coneDegreesPerUnit = 90.0 / 255
)

var legacySources = []scene.Generation{scene.UE1, scene.UE2, scene.UE3}

// known marks properties that pass through unchanged.
func known(names ...string) []PropertyRule {
	out := make([]PropertyRule, len(names))
	for i, n := range names {
		out[i] = PropertyRule{Name: n}
	}
	return out
}

func drop(reason string, names ...string) []PropertyRule {
	out := make([]PropertyRule, len(names))
	for i, n := range names {
		out[i] = PropertyRule{Name: n, Drop: true, Reason: reason}
	}
	return out
}

func props(groups ...[]PropertyRule) []PropertyRule {
	var out []PropertyRule
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// commonProperties are understood by every generation.
var commonProperties = []string{
	"Tag", "Event", "Group", "DrawScale", "DrawScale3D", "DrawType", "bHidden",
	"bStatic", "bNoDelete", "bMovable", "Physics", "Style", "Texture", "Mesh",
	"Skins", "MultiSkins", "Sprite", "CollisionRadius", "CollisionHeight",
	"bCollideActors", "bBlockActors", "bBlockPlayers", "bDirectional",
	"AmbientSound", "SoundRadius", "SoundVolume", "SoundPitch", "Base",
}

// DefaultRuleset returns the built-in rules: every legacy generation to UE4,
// and UE1/UE2 to UE2/UE3, for lights, static mesh actors, brushes and
// volumes, player starts, ambient sounds, zone info and movers.
func DefaultRuleset() *Ruleset {
	rs := NewRuleset(DefaultHierarchy())
	for _, src := range legacySources {
		addModernRules(rs, src)
	}
	for _, src := range []scene.Generation{scene.UE1, scene.UE2} {
		for _, dst := range []scene.Generation{scene.UE2, scene.UE3} {
			if src != dst {
				addLegacyRules(rs, src, dst)
			}
		}
	}
	return rs
}

func addModernRules(rs *Ruleset, src scene.Generation) {
	dst := scene.UE4
	add := func(r *Rule) {
		r.Source, r.Target, r.Origin = src, dst, "builtin"
		rs.Add(r)
	}

	add(&Rule{
		Class: Wildcard,
		Properties: props(
			[]PropertyRule{
				{Name: "Location", Convert: ScaleVector()},
				{Name: "PrePivot", Convert: ScaleVector()},
				{Name: "Rotation", Convert: RotatorToDegrees()},
			},
			known(commonProperties...),
			drop("zone regions are recomputed on import", "Region"),
			drop("level back-references are rebuilt on import", "Level"),
			drop("editor selection state", "bSelected"),
			drop("physics volumes are assigned on import", "PhysicsVolume"),
			drop("runtime state", "OldLocation", "bLightChanged"),
		),
		Transform: func(c *Context, a *scene.Actor) ([]*scene.Actor, error) {
			return withSoundCompanion(c, a, []*scene.Actor{a}), nil
		},
	})

	// UE3 lights are already component based.
	if src != scene.UE3 {
		add(&Rule{
			Class:       "Light",
			RenameClass: "PointLight",
			Properties:  lightProperties("Intensity", intensityPerBrightness, "AttenuationRadius"),
			Transform:   lightTransform,
		})
		add(&Rule{
			Class:       "Spotlight",
			RenameClass: "SpotLight",
			Properties: []PropertyRule{
				{Name: "LightCone", Rename: "OuterConeAngle", Convert: Multiply(coneDegreesPerUnit)},
			},
			Transform: lightTransform,
		})
		add(&Rule{
			Class:       "Sunlight",
			RenameClass: "DirectionalLight",
			Transform:   lightTransform,
		})
	}

	add(&Rule{
		Class: "Brush",
		Properties: props(
			[]PropertyRule{{Name: "CsgOper", Rename: "BrushType", Convert: EnumMap(map[string]string{
				"CSG_Active":   "Brush_Default",
				"CSG_Add":      "Brush_Add",
				"CSG_Subtract": "Brush_Subtract",
			})}},
			known("Brush", "PolyFlags", "MainScale", "PostScale", "TempScale"),
			drop("editor display color", "BrushColor", "bColored"),
		),
	})

	add(&Rule{
		Class:      "NavigationPoint",
		Drop:       true,
		DropReason: "navigation points are rebuilt from the navigation mesh",
	})
	add(&Rule{
		Class: "PlayerStart",
		Properties: props(
			known("TeamNumber"),
			drop("game-mode flags have no equivalent", "bSinglePlayerStart", "bCoopStart", "bEnabled"),
		),
	})
	add(&Rule{
		Class:      "Teleporter",
		Properties: known("URL", "ProductRequired", "bChangesVelocity", "bChangesYaw", "TargetVelocity"),
	})
	add(&Rule{
		Class:      "ZoneInfo",
		Drop:       true,
		DropReason: "zones are replaced by volumes",
	})

	if src != scene.UE3 {
		add(&Rule{
			Class: "AmbientSound",
			Properties: []PropertyRule{
				{Name: "AmbientSound", Rename: "Sound"},
				{Name: "SoundRadius", Rename: "AttenuationRadius", Convert: ScaledMultiply(legacyRadiusUnit)},
				{Name: "SoundVolume", Rename: "VolumeMultiplier", Convert: Multiply(1.0 / 255)},
				{Name: "SoundPitch", Rename: "PitchMultiplier", Convert: Multiply(1.0 / 64)},
			},
		})
	}
	if src != scene.UE1 {
		add(&Rule{
			Class:      "StaticMeshActor",
			Properties: known("StaticMesh", "StaticMeshComponent", "bShadowCast"),
			Transform:  staticMeshTransform,
		})
	}
}

func addLegacyRules(rs *Ruleset, src, dst scene.Generation) {
	add := func(r *Rule) {
		r.Source, r.Target, r.Origin = src, dst, "builtin"
		rs.Add(r)
	}

	add(&Rule{
		Class: Wildcard,
		Properties: props(
			[]PropertyRule{
				{Name: "Location", Convert: ScaleVector()},
				{Name: "PrePivot", Convert: ScaleVector()},
			},
			known(commonProperties...),
			known("Rotation", "Level", "PhysicsVolume"),
			drop("zone regions are recomputed on import", "Region"),
			drop("editor selection state", "bSelected"),
			drop("runtime state", "OldLocation", "bLightChanged"),
		),
	})
	add(&Rule{
		Class:      "Brush",
		Properties: known("CsgOper", "Brush", "PolyFlags", "MainScale", "PostScale", "TempScale", "BrushColor", "bColored"),
	})
	add(&Rule{
		Class:      "PlayerStart",
		Properties: known("TeamNumber", "bSinglePlayerStart", "bCoopStart", "bEnabled"),
	})
	add(&Rule{
		Class:      "ZoneInfo",
		Properties: known("ZoneName", "bWaterZone", "bPainZone", "ZoneGravity", "AmbientBrightness", "AmbientHue", "AmbientSaturation"),
	})

	if dst == scene.UE2 {
		add(&Rule{
			Class: "Light",
			Properties: known("LightBrightness", "LightRadius", "LightHue", "LightSaturation", "bCorona", "Skin",
				"LightCone", "LightType", "LightEffect", "LightPeriod", "LightPhase", "VolumeBrightness", "VolumeRadius", "VolumeFog"),
		})
	}
	if dst == scene.UE3 {
		add(&Rule{
			Class:       "Light",
			RenameClass: "PointLight",
			Properties:  lightProperties("Brightness", ue3BrightnessPerLegacy, "Radius"),
			Transform:   lightTransform,
		})
		add(&Rule{
			Class:       "Mover",
			RenameClass: "InterpActor",
			Properties: props(
				[]PropertyRule{{Name: "KeyPos", Convert: ScaleVector()}},
				known("KeyRot", "MoveTime", "StayOpenTime", "NumKeys", "KeyNum", "OpeningSound", "OpenedSound", "ClosingSound", "ClosedSound"),
				drop("encroachment is handled by physics", "MoverEncroachType"),
			),
		})
		add(&Rule{
			Class:      "AmbientSound",
			Properties: known("AmbientSound", "SoundRadius", "SoundVolume", "SoundPitch"),
		})
	}
}

func lightProperties(brightness string, brightnessFactor float64, radius string) []PropertyRule {
	return props(
		[]PropertyRule{
			{Name: "LightBrightness", Rename: brightness, Convert: Multiply(brightnessFactor)},
			{Name: "LightRadius", Rename: radius, Convert: ScaledMultiply(legacyRadiusUnit)},
		},
		known("LightHue", "LightSaturation", "bCorona", "Skin", "LightCone"),
		drop("light effects have no equivalent", "LightType", "LightEffect", "LightPeriod", "LightPhase"),
		drop("volumetric lighting is configured per scene", "VolumeBrightness", "VolumeRadius", "VolumeFog"),
	)
}
