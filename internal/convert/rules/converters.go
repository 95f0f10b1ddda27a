package rules

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/cory-johannsen/levelport/internal/t3d/scene"
)

// ErrUnsupportedValue is returned by a converter handed a value kind it does
// not handle.
var ErrUnsupportedValue = errors.New("unsupported value")

// rotatorUnitsPerTurn is the legacy integer rotator resolution: 65536 units
// per full revolution.
const rotatorUnitsPerTurn = 65536.0

func unsupported(v scene.Value, want string) error {
	return fmt.Errorf("%w: %s value %q is not %s", ErrUnsupportedValue, v.Kind, v.Text(), want)
}

// multiplyValue scales every numeric part of v by f.
func multiplyValue(v scene.Value, f float64) (scene.Value, error) {
	switch v.Kind {
	case scene.ValueInt:
		return scene.FloatValue(float64(v.Int) * f), nil
	case scene.ValueFloat:
		return scene.FloatValue(v.Float * f), nil
	case scene.ValueVector:
		comps := make([]scene.Component, len(v.Components))
		for i, c := range v.Components {
			comps[i] = scene.Component{Name: c.Name, Value: c.Value * f}
		}
		return scene.VectorValue(comps...), nil
	default:
		return scene.Value{}, unsupported(v, "numeric")
	}
}

// ScaleVector multiplies a position or length by the run's world scale. The
// value keeps its source text when the scale is 1.
func ScaleVector() ValueConverter {
	return func(c *Context, v scene.Value) (scene.Value, error) {
		if c.Scale == 1 {
			return v, nil
		}
		return multiplyValue(v, c.Scale)
	}
}

// Multiply multiplies a numeric or vector value by a fixed factor.
func Multiply(f float64) ValueConverter {
	return func(_ *Context, v scene.Value) (scene.Value, error) {
		return multiplyValue(v, f)
	}
}

// ScaledMultiply multiplies by f and by the run's world scale, for legacy
// radii expressed in engine-specific units.
func ScaledMultiply(f float64) ValueConverter {
	return func(c *Context, v scene.Value) (scene.Value, error) {
		return multiplyValue(v, f*c.Scale)
	}
}

// RotatorToDegrees converts a legacy (Pitch,Yaw,Roll) rotator in 1/65536
// turn units to degrees.
func RotatorToDegrees() ValueConverter {
	return func(_ *Context, v scene.Value) (scene.Value, error) {
		if v.Kind != scene.ValueVector {
			return scene.Value{}, unsupported(v, "a rotator")
		}
		return multiplyValue(v, 360/rotatorUnitsPerTurn)
	}
}

// EnumMap remaps an enum token case-insensitively. Unmapped tokens are an
// error so the property is kept and reported.
func EnumMap(m map[string]string) ValueConverter {
	lower := make(map[string]string, len(m))
	for k, v := range m {
		lower[strings.ToLower(k)] = v
	}
	return func(_ *Context, v scene.Value) (scene.Value, error) {
		if v.Kind != scene.ValueName {
			return scene.Value{}, unsupported(v, "an enum token")
		}
		to, ok := lower[strings.ToLower(v.Str)]
		if !ok {
			return scene.Value{}, fmt.Errorf("%w: no mapping for %s", ErrUnsupportedValue, v.Str)
		}
		return scene.NameValue(to), nil
	}
}

// HSVToColor converts a legacy light hue and saturation (both 0-255, where
// saturation 255 is white) to an (R,G,B,A) color vector.
func HSVToColor(hue, saturation float64) scene.Value {
	h := math.Mod(hue/255*360, 360)
	s := 1 - clamp(saturation/255, 0, 1)
	const v = 1.0

	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c
	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	byteOf := func(f float64) float64 { return math.Round((f + m) * 255) }
	color := scene.VectorValue(
		scene.Component{Name: "B", Value: byteOf(b)},
		scene.Component{Name: "G", Value: byteOf(g)},
		scene.Component{Name: "R", Value: byteOf(r)},
		scene.Component{Name: "A", Value: 255},
	)
	color.Integral = true
	return color
}

func clamp(f, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, f))
}
