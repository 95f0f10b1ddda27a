package rules_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/levelport/internal/convert/rules"
	"github.com/cory-johannsen/levelport/internal/diag"
	"github.com/cory-johannsen/levelport/internal/t3d/parser"
	"github.com/cory-johannsen/levelport/internal/t3d/scene"
	"github.com/cory-johannsen/levelport/internal/t3d/writer"
)

func parseDoc(t *testing.T, src string, gen scene.Generation) *scene.Document {
	t.Helper()
	doc, err := parser.Parse(src, gen, diag.NewList(nil))
	require.NoError(t, err)
	return doc
}

func convertDoc(t *testing.T, rs *rules.Ruleset, src string, pair scene.Pair) (*scene.Document, *diag.List) {
	t.Helper()
	doc := parseDoc(t, src, pair.Source)
	diags := diag.NewList(nil)
	c := rules.NewContext(pair, 1, diags, nil)
	out, err := rules.NewEngine(rs, nil).ConvertDocument(context.Background(), c, doc)
	require.NoError(t, err)
	return out, diags
}

const cubeActor = `Begin Actor Class=StaticMeshActor Name=Cube0
  StaticMesh=MyPackage.Cube
End Actor
`

func TestConvert_RenamesProperty(t *testing.T) {
	rs := rules.NewRuleset(nil)
	rs.Add(&rules.Rule{
		Class:      "StaticMeshActor",
		Source:     scene.UE1,
		Target:     scene.UE2,
		Properties: []rules.PropertyRule{{Name: "StaticMesh", Rename: "Mesh"}},
	})

	out, diags := convertDoc(t, rs, cubeActor, scene.Pair{Source: scene.UE1, Target: scene.UE2})
	assert.Equal(t, 0, diags.Len())

	actors := out.Actors()
	require.Len(t, actors, 1)
	a := actors[0]
	assert.Equal(t, "StaticMeshActor", a.Class())
	assert.Equal(t, "Cube0", a.Name())
	require.Equal(t, 1, a.Len())
	p := a.Properties()[0]
	assert.Equal(t, "Mesh", p.Name)
	assert.Equal(t, "MyPackage.Cube", p.Value.Text())
	assert.Equal(t, scene.UE2, out.Header.Generation)
}

func TestConvert_InputNotModified(t *testing.T) {
	rs := rules.NewRuleset(nil)
	rs.Add(&rules.Rule{Class: "StaticMeshActor", Properties: []rules.PropertyRule{{Name: "StaticMesh", Rename: "Mesh"}}})

	doc := parseDoc(t, cubeActor, scene.UE1)
	before := writer.String(doc)
	c := rules.NewContext(scene.Pair{Source: scene.UE1, Target: scene.UE2}, 1, diag.NewList(nil), nil)
	_, err := rules.NewEngine(rs, nil).ConvertDocument(context.Background(), c, doc)
	require.NoError(t, err)
	assert.Equal(t, before, writer.String(doc))
}

func TestChain_MostSpecificFirst(t *testing.T) {
	rs := rules.NewRuleset(nil)
	light := &rules.Rule{Class: "Light", RenameClass: "PointLight"}
	wild := &rules.Rule{Class: rules.Wildcard}
	spot := &rules.Rule{Class: "Spotlight", RenameClass: "SpotLight"}
	rs.Add(light)
	rs.Add(wild)
	pair := scene.Pair{Source: scene.UE1, Target: scene.UE4}

	chain, m := rs.Chain("TriggerLight", pair)
	assert.Equal(t, rules.MatchAncestor, m)
	require.Len(t, chain, 2)
	assert.Same(t, light, chain[0])
	assert.Same(t, wild, chain[1])

	rs.Add(spot)
	chain, m = rs.Chain("Spotlight", pair)
	assert.Equal(t, rules.MatchExact, m)
	require.Len(t, chain, 3)
	assert.Same(t, spot, chain[0])

	chain, m = rs.Chain("SomethingElse", pair)
	assert.Equal(t, rules.MatchWildcard, m)
	assert.Len(t, chain, 1)

	_, m = rules.NewRuleset(nil).Chain("Light", pair)
	assert.Equal(t, rules.MatchNone, m)
	assert.Equal(t, "identity", m.String())
}

func TestChain_SpecificPairBeatsAnyGeneration(t *testing.T) {
	rs := rules.NewRuleset(nil)
	anyPair := &rules.Rule{Class: "Light"}
	exact := &rules.Rule{Class: "Light", Source: scene.UE1, Target: scene.UE4}
	other := &rules.Rule{Class: "Light", Source: scene.UE2, Target: scene.UE4}
	rs.Add(exact)
	rs.Add(anyPair)
	rs.Add(other)

	chain, _ := rs.Chain("Light", scene.Pair{Source: scene.UE1, Target: scene.UE4})
	require.NotEmpty(t, chain)
	assert.Same(t, exact, chain[0])

	chain, _ = rs.Chain("Light", scene.Pair{Source: scene.UE3, Target: scene.UE4})
	require.NotEmpty(t, chain)
	assert.Same(t, anyPair, chain[0])
}

func TestConvert_IdentityPassthrough(t *testing.T) {
	src := "Begin Actor Class=Mystery Name=M0\n   Foo=1\nEnd Actor\n"

	out, diags := convertDoc(t, rules.NewRuleset(nil), src, scene.Pair{Source: scene.UE2, Target: scene.UE2})
	require.Len(t, out.Actors(), 1)
	require.Equal(t, 1, diags.Len(), "unknown classes warn even when the generation is unchanged")
	assert.Equal(t, diag.KindRuleGap, diags.Items()[0].Kind)
	assert.Contains(t, diags.Items()[0].Message, "unknown class Mystery")

	_, diags = convertDoc(t, rules.NewRuleset(nil), "Begin Actor Class=Light Name=L0\n   Foo=1\nEnd Actor\n", scene.Pair{Source: scene.UE2, Target: scene.UE2})
	assert.Equal(t, 0, diags.Len(), "known classes pass through silently")

	out, diags = convertDoc(t, rules.NewRuleset(nil), src, scene.Pair{Source: scene.UE2, Target: scene.UE3})
	require.Len(t, out.Actors(), 1, "unknown classes are never dropped")
	gaps := diags.OfKind(diag.KindRuleGap)
	require.Len(t, gaps, 1)
	assert.Equal(t, 1, gaps[0].Line)
	assert.Contains(t, gaps[0].Message, "Mystery")
}

func TestConvert_RenameOntoEarlierPropertyReportsItOnce(t *testing.T) {
	rs := rules.NewRuleset(nil)
	rs.Add(&rules.Rule{
		Class:      "Light",
		Source:     scene.UE2,
		Target:     scene.UE3,
		Properties: []rules.PropertyRule{{Name: "LightBrightness", Rename: "Intensity"}},
	})
	src := "Begin Actor Class=Light Name=L0\n   Intensity=3\n   LightBrightness=64\nEnd Actor\n"

	out, diags := convertDoc(t, rs, src, scene.Pair{Source: scene.UE2, Target: scene.UE3})
	a := out.Actors()[0]
	require.Equal(t, 1, a.Len())
	v, ok := a.Value("Intensity")
	require.True(t, ok)
	assert.Equal(t, "64", v.Text())

	perProperty := make(map[int][]diag.Diagnostic)
	for _, d := range diags.Items() {
		perProperty[d.Line] = append(perProperty[d.Line], d)
	}
	require.Len(t, perProperty[2], 1, "Intensity=3 gets exactly one diagnostic")
	assert.Equal(t, diag.KindDropped, perProperty[2][0].Kind)
	assert.Contains(t, perProperty[2][0].Message, "replaced by renamed LightBrightness")
	assert.Empty(t, perProperty[3])
	assert.Empty(t, diags.OfKind(diag.KindRuleGap))
}

func TestConvert_TwoRenamesOntoOneName(t *testing.T) {
	rs := rules.NewRuleset(nil)
	rs.Add(&rules.Rule{
		Class:  "Light",
		Source: scene.UE2,
		Target: scene.UE3,
		Properties: []rules.PropertyRule{
			{Name: "LightBrightness", Rename: "Intensity"},
			{Name: "Brightness", Rename: "Intensity"},
		},
	})
	src := "Begin Actor Class=Light Name=L0\n   Intensity=3\n   LightBrightness=64\n   Brightness=9\nEnd Actor\n"

	out, diags := convertDoc(t, rs, src, scene.Pair{Source: scene.UE2, Target: scene.UE3})
	v, ok := out.Actors()[0].Value("Intensity")
	require.True(t, ok)
	assert.Equal(t, "9", v.Text())
	assert.Len(t, diags.OfKind(diag.KindDropped), 2, "both overwritten values are reported")
	assert.Equal(t, 2, diags.Len())
}

func TestConvert_ActorDropWinsOverPropertyRules(t *testing.T) {
	rs := rules.NewRuleset(nil)
	rs.Add(&rules.Rule{
		Class:      "ZoneInfo",
		Drop:       true,
		DropReason: "zones are volumes now",
		Properties: []rules.PropertyRule{{Name: "ZoneName", Rename: "Label"}, {Name: "bWaterZone", Drop: true}},
	})
	src := "Begin Actor Class=ZoneInfo Name=Z0\n   ZoneName=Hall\n   bWaterZone=True\nEnd Actor\n"

	out, diags := convertDoc(t, rs, src, scene.Pair{Source: scene.UE1, Target: scene.UE4})
	assert.Empty(t, out.Actors())
	require.Equal(t, 1, diags.Len())
	d := diags.Items()[0]
	assert.Equal(t, diag.KindDropped, d.Kind)
	assert.Equal(t, diag.SeverityInfo, d.Severity)
	assert.Contains(t, d.Message, "zones are volumes now")
}

const legacyLights = `Begin Map
Begin Actor Class=Light Name=Light0
    LightBrightness=64
    LightRadius=32
    LightHue=0
    LightSaturation=0
    LightEffect=LE_None
    bCorona=True
    Skin=Texture'Engine.Corona'
    Region=(Zone=ZoneInfo'MyLevel.ZoneInfo0',iLeaf=3,ZoneNumber=1)
    Location=(X=10.000000,Y=0.000000,Z=-5.000000)
    CustomFlag=7
End Actor
Begin Actor Class=Light Name=Light1
    bCorona=True
End Actor
Begin Actor Class=PathNode Name=PathNode0
End Actor
End Map
`

func TestDefaultRules_LegacyLightToModern(t *testing.T) {
	pair := scene.Pair{Source: scene.UE1, Target: scene.UE4}
	doc := parseDoc(t, legacyLights, scene.UE1)
	diags := diag.NewList(nil)
	c := rules.NewContext(pair, 2, diags, nil)
	out, err := rules.NewEngine(rules.DefaultRuleset(), nil).ConvertDocument(context.Background(), c, doc)
	require.NoError(t, err)

	actors := out.Actors()
	require.Len(t, actors, 4, "two lights with corona companions; the path node is dropped")

	light := actors[0]
	assert.Equal(t, "PointLight", light.Class())
	assert.Equal(t, "Light0", light.Name())
	intensity, ok := light.Value("Intensity")
	require.True(t, ok)
	f, _ := intensity.AsFloat()
	assert.InDelta(t, 512, f, 1e-9)
	radius, ok := light.Value("AttenuationRadius")
	require.True(t, ok)
	f, _ = radius.AsFloat()
	assert.InDelta(t, 32*25*2, f, 1e-9)
	color, ok := light.Value("LightColor")
	require.True(t, ok)
	assert.Equal(t, "(B=0,G=0,R=255,A=255)", color.Text())
	loc, _ := light.Value("Location")
	x, _ := loc.Component("X")
	assert.InDelta(t, 20, x, 1e-9)
	for _, gone := range []string{"LightHue", "LightSaturation", "bCorona", "Skin", "Region", "LightEffect"} {
		_, ok := light.Value(gone)
		assert.False(t, ok, gone)
	}
	_, ok = light.Value("CustomFlag")
	assert.True(t, ok, "unknown properties are kept")

	corona := actors[1]
	assert.Equal(t, "BillboardActor", corona.Class())
	assert.Equal(t, "Light0_Corona1", corona.Name())
	sprite, ok := corona.Value("Sprite")
	require.True(t, ok)
	assert.Equal(t, "Texture'Engine.Corona'", sprite.Text())
	assert.Equal(t, "Light1_Corona2", actors[3].Name())

	gaps := diags.OfKind(diag.KindRuleGap)
	require.Len(t, gaps, 1)
	assert.Contains(t, gaps[0].Message, "CustomFlag")
	assert.Equal(t, 12, gaps[0].Line)
}

func TestDefaultRules_NoSilentLoss(t *testing.T) {
	pair := scene.Pair{Source: scene.UE1, Target: scene.UE4}
	doc := parseDoc(t, legacyLights, scene.UE1)
	diags := diag.NewList(nil)
	c := rules.NewContext(pair, 1, diags, nil)
	out, err := rules.NewEngine(rules.DefaultRuleset(), nil).ConvertDocument(context.Background(), c, doc)
	require.NoError(t, err)

	// Every input property either survives under some name on an output
	// actor or has exactly one diagnostic naming it.
	outText := writer.String(out)
	reported := map[string]int{}
	for _, d := range diags.Items() {
		for _, a := range doc.Actors() {
			for _, p := range a.Properties() {
				if strings.Contains(d.Message, "property "+p.Name+" ") {
					reported[p.Name]++
				}
			}
		}
	}
	assert.Equal(t, 1, reported["Region"])
	assert.Equal(t, 1, reported["LightEffect"])
	assert.Equal(t, 1, reported["CustomFlag"])
	assert.Contains(t, outText, "CustomFlag=7")

	dropped := diags.OfKind(diag.KindDropped)
	var pathNode int
	for _, d := range dropped {
		if strings.Contains(d.Message, "PathNode0") {
			pathNode++
		}
	}
	assert.Equal(t, 1, pathNode)
}

func TestContext_NewNameAvoidsExistingNames(t *testing.T) {
	c := rules.NewContext(scene.Pair{}, 1, diag.NewList(nil), nil)
	c.Reserve("Lamp_Corona1")
	assert.Equal(t, "Lamp_Corona2", c.NewName("Lamp", "Corona"))
	assert.Equal(t, "Lamp_Sound1", c.NewName("Lamp", "Sound"))
	assert.Equal(t, "Other_Corona3", c.NewName("Other", "Corona"))
}

func TestConvertDocument_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc := parseDoc(t, legacyLights, scene.UE1)
	c := rules.NewContext(scene.Pair{Source: scene.UE1, Target: scene.UE4}, 1, diag.NewList(nil), nil)

	out, err := rules.NewEngine(rules.DefaultRuleset(), nil).ConvertDocument(ctx, c, doc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, out)
	assert.Empty(t, out.Actors())
}

func TestConvertDocument_Deterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		scale := rapid.Float64Range(0.5, 4).Draw(t, "scale")
		run := func() (string, []diag.Diagnostic) {
			doc, err := parser.Parse(legacyLights, scene.UE1, diag.NewList(nil))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			diags := diag.NewList(nil)
			c := rules.NewContext(scene.Pair{Source: scene.UE1, Target: scene.UE4}, scale, diags, nil)
			out, err := rules.NewEngine(rules.DefaultRuleset(), nil).ConvertDocument(context.Background(), c, doc)
			if err != nil {
				t.Fatalf("convert: %v", err)
			}
			return writer.String(out), diags.Items()
		}
		text1, diags1 := run()
		text2, diags2 := run()
		if text1 != text2 {
			t.Fatalf("output differs between runs:\n%s\n---\n%s", text1, text2)
		}
		if len(diags1) != len(diags2) {
			t.Fatalf("diagnostic count differs: %d vs %d", len(diags1), len(diags2))
		}
	})
}

func TestDefaultRules_StaticMeshComponentLayout(t *testing.T) {
	src := `Begin Actor Class=StaticMeshActor Name=Rock0
    StaticMesh=StaticMesh'Rocks.Boulder'
    Location=(X=100.000000,Y=0.000000,Z=0.000000)
    DrawScale=2.000000
End Actor
`
	out, _ := convertDoc(t, rules.DefaultRuleset(), src, scene.Pair{Source: scene.UE2, Target: scene.UE4})
	actors := out.Actors()
	require.Len(t, actors, 1)
	a := actors[0]
	require.Len(t, a.Children, 1)
	comp := a.Children[0]
	assert.Equal(t, "StaticMeshComponent", comp.Class())
	mesh, ok := comp.Value("StaticMesh")
	require.True(t, ok)
	assert.Equal(t, "StaticMesh'Rocks.Boulder'", mesh.Text())
	scale, ok := comp.Value("RelativeScale3D")
	require.True(t, ok)
	assert.Equal(t, "(X=2.000000,Y=2.000000,Z=2.000000)", scale.Text())
	root, ok := a.Value("RootComponent")
	require.True(t, ok)
	assert.Equal(t, "StaticMeshComponent0", root.Text())
	_, ok = a.Value("StaticMesh")
	assert.False(t, ok)
}
