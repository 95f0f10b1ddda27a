package rules

import (
	"github.com/cory-johannsen/levelport/internal/t3d/scene"
)

// staticMeshComponentName is the sub-object name the modern editor gives the
// root mesh component of a StaticMeshActor.
const staticMeshComponentName = "StaticMeshComponent0"

// numeric returns a property's value as a float.
func numeric(a *scene.Actor, name string) (float64, bool) {
	v, ok := a.Value(name)
	if !ok {
		return 0, false
	}
	return v.AsFloat()
}

func truthy(a *scene.Actor, name string) bool {
	v, ok := a.Value(name)
	return ok && v.Kind == scene.ValueBool && v.Bool
}

// companion creates an actor placed where a sits.
func companion(c *Context, a *scene.Actor, class, suffix string) *scene.Actor {
	out := scene.NewActor(scene.KindActor)
	out.SetClass(class)
	out.SetName(c.NewName(a.Name(), suffix))
	if loc, ok := a.Value("Location"); ok {
		out.Set("Location", loc.Clone())
	}
	return out
}

// lightTransform folds legacy hue and saturation into a color and splits
// off corona and ambient sound companions.
func lightTransform(c *Context, a *scene.Actor) ([]*scene.Actor, error) {
	hue, hasHue := numeric(a, "LightHue")
	sat, hasSat := numeric(a, "LightSaturation")
	if hasHue || hasSat {
		if !hasSat {
			// The legacy default saturation is white.
			sat = 255
		}
		a.Remove("LightHue")
		a.Remove("LightSaturation")
		a.Set("LightColor", HSVToColor(hue, sat))
	}

	out := []*scene.Actor{a}
	if truthy(a, "bCorona") {
		corona := companion(c, a, "BillboardActor", "Corona")
		if skin, ok := a.Value("Skin"); ok {
			corona.Set("Sprite", skin)
			a.Remove("Skin")
		}
		a.Remove("bCorona")
		out = append(out, corona)
	}
	return withSoundCompanion(c, a, out), nil
}

// withSoundCompanion moves a legacy per-actor ambient sound onto a separate
// AmbientSound actor, which modern generations require.
func withSoundCompanion(c *Context, a *scene.Actor, out []*scene.Actor) []*scene.Actor {
	if c.Pair.Target != scene.UE4 {
		return out
	}
	snd, ok := a.Value("AmbientSound")
	if !ok {
		return out
	}
	s := companion(c, a, "AmbientSound", "Sound")
	s.Set("Sound", snd)
	moves := []struct {
		from, to string
		conv     ValueConverter
	}{
		{"SoundRadius", "AttenuationRadius", ScaledMultiply(legacyRadiusUnit)},
		{"SoundVolume", "VolumeMultiplier", Multiply(1.0 / 255)},
		{"SoundPitch", "PitchMultiplier", Multiply(1.0 / 64)},
	}
	for _, m := range moves {
		v, ok := a.Value(m.from)
		if !ok {
			continue
		}
		if nv, err := m.conv(c, v); err == nil {
			v = nv
		}
		s.Set(m.to, v)
		a.Remove(m.from)
	}
	a.Remove("AmbientSound")
	return append(out, s)
}

// staticMeshTransform wraps a flat legacy StaticMeshActor in the component
// layout modern editors expect. Actors that already carry a component are
// left alone.
func staticMeshTransform(_ *Context, a *scene.Actor) ([]*scene.Actor, error) {
	mesh, ok := a.Value("StaticMesh")
	if !ok {
		return []*scene.Actor{a}, nil
	}
	comp := scene.NewActor("Object")
	comp.SetClass("StaticMeshComponent")
	comp.SetName(staticMeshComponentName)
	comp.Set("StaticMesh", mesh)
	a.Remove("StaticMesh")

	for _, m := range [][2]string{{"Location", "RelativeLocation"}, {"Rotation", "RelativeRotation"}} {
		if v, ok := a.Value(m[0]); ok {
			comp.Set(m[1], v)
			a.Remove(m[0])
		}
	}
	if scale, ok := combinedScale(a); ok {
		comp.Set("RelativeScale3D", scale)
		a.Remove("DrawScale")
		a.Remove("DrawScale3D")
	}

	a.Children = append(a.Children, comp)
	a.Set("StaticMeshComponent", scene.NameValue(staticMeshComponentName))
	a.Set("RootComponent", scene.NameValue(staticMeshComponentName))
	return []*scene.Actor{a}, nil
}

// combinedScale multiplies the uniform DrawScale into DrawScale3D.
func combinedScale(a *scene.Actor) (scene.Value, bool) {
	uniform, hasUniform := numeric(a, "DrawScale")
	v3, has3D := a.Value("DrawScale3D")
	switch {
	case !hasUniform && !has3D:
		return scene.Value{}, false
	case !has3D:
		return scene.VectorValue(
			scene.Component{Name: "X", Value: uniform},
			scene.Component{Name: "Y", Value: uniform},
			scene.Component{Name: "Z", Value: uniform},
		), true
	case !hasUniform:
		return v3, true
	}
	scaled, err := multiplyValue(v3, uniform)
	if err != nil {
		return v3, true
	}
	return scaled, true
}
