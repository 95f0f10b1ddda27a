package scene

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/levelport/internal/resource"
)

func TestParseGeneration_Aliases(t *testing.T) {
	tests := []struct {
		in   string
		want Generation
	}{
		{"ue1", UE1},
		{"UT99", UE1},
		{" ut2004 ", UE2},
		{"udk", UE3},
		{"UE4", UE4},
	}
	for _, tt := range tests {
		g, err := ParseGeneration(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, g, tt.in)
	}

	_, err := ParseGeneration("ue9")
	assert.Error(t, err)
}

func TestPair_Identity(t *testing.T) {
	assert.True(t, Pair{UE2, UE2}.Identity())
	assert.False(t, Pair{UE1, UE4}.Identity())
	assert.Equal(t, "UE1->UE4", Pair{UE1, UE4}.String())
}

func TestActor_AddKeepsFirstPosition(t *testing.T) {
	a := NewActor(KindActor)
	assert.True(t, a.Add("A", IntValue(1), 1))
	assert.True(t, a.Add("B", IntValue(2), 2))
	assert.False(t, a.Add("a", IntValue(3), 3))

	props := a.Properties()
	require.Len(t, props, 2)
	assert.Equal(t, "A", props[0].Name)
	assert.Equal(t, int64(3), props[0].Value.Int)
	assert.Equal(t, 1, props[0].Line)
}

func TestActor_RenameRemovesClash(t *testing.T) {
	a := NewActor(KindActor)
	a.Set("Old", IntValue(1))
	a.Set("Keep", IntValue(2))
	a.Set("New", IntValue(3))

	require.True(t, a.Rename("old", "New"))
	props := a.Properties()
	require.Len(t, props, 2)
	assert.Equal(t, "New", props[0].Name)
	assert.Equal(t, int64(1), props[0].Value.Int)
	assert.Equal(t, "Keep", props[1].Name)

	assert.False(t, a.Rename("missing", "X"))
}

func TestActor_AddElementMergesScalar(t *testing.T) {
	a := NewActor(KindActor)
	a.Add("Skins", NameValue("Base"), 1)
	a.AddElement("Skins", 2, NameValue("Two"), 2)
	a.AddElement("Skins", 2, NameValue("Again"), 3)

	v, ok := a.Value("skins")
	require.True(t, ok)
	require.Equal(t, ValueArray, v.Kind)
	require.Len(t, v.Elements, 2)
	assert.Equal(t, 0, v.Elements[0].Index)
	assert.Equal(t, "Again", v.Elements[1].Value.Str)
}

func TestActor_CloneIsDeep(t *testing.T) {
	a := NewActor(KindActor)
	a.SetClass("Light")
	a.Set("Location", VectorValue(Component{"X", 1}))
	a.Brush = &Brush{Polygons: []*Polygon{{Vertices: []mgl64.Vec3{{1, 2, 3}}}}}
	a.Children = append(a.Children, NewActor("Object"))

	c := a.Clone()
	c.SetClass("PointLight")
	v, _ := c.Value("Location")
	v.Components[0].Value = 99
	c.Brush.Polygons[0].Vertices[0] = mgl64.Vec3{}
	c.Children[0].Kind = "Changed"

	assert.Equal(t, "Light", a.Class())
	orig, _ := a.Value("Location")
	assert.Equal(t, 1.0, orig.Components[0].Value)
	assert.Equal(t, mgl64.Vec3{1, 2, 3}, a.Brush.Polygons[0].Vertices[0])
	assert.Equal(t, "Object", a.Children[0].Kind)
}

func TestDocument_ActorsThroughContainers(t *testing.T) {
	level := NewActor(KindLevel)
	inner := NewActor(KindActor)
	sub := NewActor("Object")
	inner.Children = append(inner.Children, sub)
	level.Children = append(level.Children, inner)
	top := NewActor(KindActor)
	doc := &Document{Nodes: []*Actor{NewActor(KindMap), level, top}}
	doc.Nodes[0].Children = append(doc.Nodes[0].Children, NewActor(KindActor))

	assert.Len(t, doc.Actors(), 3)
}

func TestValue_TextPrefersRaw(t *testing.T) {
	v := FloatValue(1).WithRaw("1.0")
	assert.Equal(t, "1.0", v.Text())

	touched := v.Touched()
	assert.Equal(t, "1.000000", touched.Text())
	assert.Equal(t, "", touched.Raw())
}

func TestValue_Formatting(t *testing.T) {
	assert.Equal(t, "True", BoolValue(true).Text())
	assert.Equal(t, "42", IntValue(42).Text())
	assert.Equal(t, "(X=1.000000,Y=-2.500000)", VectorValue(Component{"X", 1}, Component{"Y", -2.5}).Text())
	assert.Equal(t, "Texture'Pkg.Tex'", ReferenceValue("Texture", "Pkg.Tex", resource.KindTexture).Text())
	assert.Equal(t, "Pkg.Tex", ReferenceValue("", "Pkg.Tex", resource.KindTexture).Text())
	assert.Equal(t, `"a \"b\""`, StringValue(`a "b"`).Text())
	assert.Equal(t, "plain", StringValue("plain").Text())
	assert.Equal(t, `""`, StringValue("").Text())
}

func TestPolygon_DistinctVertices(t *testing.T) {
	p := &Polygon{Vertices: []mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 0, 0}, {1, 0, 0}}}
	assert.Equal(t, 2, p.DistinctVertices())
}

func TestValue_CloneIndependent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(rt, "n")
		elems := make([]Element, n)
		for i := range elems {
			elems[i] = Element{Index: i, Value: VectorValue(Component{"X", rapid.Float64().Draw(rt, "x")})}
		}
		v := ArrayValue(elems...)
		c := v.Clone()
		for i := range c.Elements {
			c.Elements[i].Value.Components[0].Value = 0
			c.Elements[i].Index = -1
		}
		for i, e := range v.Elements {
			if e.Index != i {
				rt.Fatalf("element %d index mutated", i)
			}
		}
	})
}
