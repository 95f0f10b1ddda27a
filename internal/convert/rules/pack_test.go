package rules_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/levelport/internal/convert/rules"
	"github.com/cory-johannsen/levelport/internal/diag"
	"github.com/cory-johannsen/levelport/internal/scripting"
	"github.com/cory-johannsen/levelport/internal/t3d/scene"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const meshPack = `source: ut99
target: ue2
hierarchy:
  GlowingRock: Decoration
rules:
  - class: StaticMeshActor
    properties:
      - name: StaticMesh
        rename: Mesh
  - class: Decoration
    rename_class: StaticMeshActor
    properties:
      - name: Glow
        convert: multiply
        factor: 2
      - name: Style
        convert: enum
        map:
          STY_Translucent: STY_Alpha
      - name: Junk
        drop: true
        reason: editor only
`

func TestLoadRuleset_PackOverBuiltins(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "meshes.yaml"), meshPack)
	writeFile(t, filepath.Join(dir, "README.txt"), "ignored")

	rs, err := rules.LoadRuleset(dir, nil, 0)
	require.NoError(t, err)
	assert.Greater(t, rs.Len(), rules.DefaultRuleset().Len())

	pair := scene.Pair{Source: scene.UE1, Target: scene.UE2}
	out, diags := convertDoc(t, rs, cubeActor, pair)
	a := out.Actors()[0]
	_, ok := a.Value("Mesh")
	assert.True(t, ok)
	assert.Equal(t, 0, diags.Len())

	src := `Begin Actor Class=GlowingRock Name=Rock0
   Glow=3
   Style=STY_Translucent
   Junk=1
End Actor
`
	out, diags = convertDoc(t, rs, src, pair)
	a = out.Actors()[0]
	assert.Equal(t, "StaticMeshActor", a.Class())
	glow, _ := a.Value("Glow")
	assert.Equal(t, 6.0, glow.Float)
	style, _ := a.Value("Style")
	assert.Equal(t, "STY_Alpha", style.Text())
	_, ok = a.Value("Junk")
	assert.False(t, ok)
	dropped := diags.OfKind(diag.KindDropped)
	require.Len(t, dropped, 1)
	assert.Contains(t, dropped[0].Message, "editor only")
	assert.Equal(t, 4, dropped[0].Line)

	chain, m := rs.Chain("StaticMeshActor", pair)
	require.NotEmpty(t, chain)
	assert.Equal(t, rules.MatchExact, m)
	assert.Equal(t, "meshes", chain[0].Origin)
}

func TestLoadPack_Errors(t *testing.T) {
	cases := map[string]string{
		"bad yaml":          "rules: [",
		"missing class":     "rules:\n  - rename_class: X\n",
		"unknown converter": "rules:\n  - class: Light\n    properties:\n      - name: A\n        convert: squash\n",
		"zero factor":       "rules:\n  - class: Light\n    properties:\n      - name: A\n        convert: multiply\n",
		"bad generation":    "source: ue9\nrules:\n  - class: Light\n",
		"script no manager": "rules:\n  - class: Light\n    script: fix_light\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, "p.yml"), content)
			_, err := rules.LoadRuleset(dir, nil, 0)
			assert.Error(t, err)
		})
	}
}

func TestLoadRuleset_EmptyDirUsesBuiltins(t *testing.T) {
	rs, err := rules.LoadRuleset("", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, rules.DefaultRuleset().Len(), rs.Len())

	_, err = rules.LoadRuleset(filepath.Join(t.TempDir(), "missing"), nil, 0)
	assert.Error(t, err)
}

const scriptPack = `source: ue2
target: ue4
scripts: lua
rules:
  - class: Emitter
    script: convert_emitter
  - class: Note
    script: drop_note
  - class: Projector
    script: split_projector
  - class: Camera
    script: not_defined
`

const scriptSource = `
function convert_emitter(a)
  engine.log.debug("converting " .. a.name)
  a.class = "ParticleSystemActor"
  a.properties.Template = a.properties.Emitters
  a.properties.Emitters = nil
  a.properties.bAutoActivate = true
  return a
end

function drop_note(a)
  return false
end

function split_projector(a)
  local decal = { class = "DecalActor", properties = { DecalSize = 64 } }
  return { a, decal }
end
`

func loadScriptPack(t *testing.T) *rules.Ruleset {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "fx.yaml"), scriptPack)
	writeFile(t, filepath.Join(dir, "lua", "fx.lua"), scriptSource)

	mgr := scripting.NewManager(zaptest.NewLogger(t))
	t.Cleanup(mgr.Close)
	rs, err := rules.LoadRuleset(dir, mgr, 0)
	require.NoError(t, err)
	return rs
}

func TestScriptTransform_ReplacesActor(t *testing.T) {
	rs := loadScriptPack(t)
	src := `Begin Actor Class=Emitter Name=Smoke0
   Emitters(0)=SpriteEmitter'MyLevel.SpriteEmitter0'
   Tag=Smoke
End Actor
`
	out, diags := convertDoc(t, rs, src, scene.Pair{Source: scene.UE2, Target: scene.UE4})
	actors := out.Actors()
	require.Len(t, actors, 1)
	a := actors[0]
	assert.Equal(t, "ParticleSystemActor", a.Class())
	assert.Equal(t, "Smoke0", a.Name())

	tmpl, ok := a.Value("Template")
	require.True(t, ok)
	require.Equal(t, scene.ValueArray, tmpl.Kind)
	require.Len(t, tmpl.Elements, 1)
	assert.Equal(t, "SpriteEmitter'MyLevel.SpriteEmitter0'", tmpl.Elements[0].Value.Text())

	auto, ok := a.Value("bAutoActivate")
	require.True(t, ok)
	assert.Equal(t, "True", auto.Text())

	tag, ok := a.Value("Tag")
	require.True(t, ok)
	assert.Equal(t, "Smoke", tag.Text())

	removed := 0
	for _, d := range diags.OfKind(diag.KindDropped) {
		if d.Line == 2 {
			removed++
		}
	}
	assert.Equal(t, 1, removed, "Emitters removed by the script is reported")
}

func TestScriptTransform_DropAndSplit(t *testing.T) {
	rs := loadScriptPack(t)
	src := `Begin Map
Begin Actor Class=Note Name=Note0
End Actor
Begin Actor Class=Projector Name=Proj0
End Actor
End Map
`
	out, diags := convertDoc(t, rs, src, scene.Pair{Source: scene.UE2, Target: scene.UE4})
	actors := out.Actors()
	require.Len(t, actors, 2)
	assert.Equal(t, "Projector", actors[0].Class())
	assert.Equal(t, "DecalActor", actors[1].Class())
	assert.Equal(t, "Proj0_Script1", actors[1].Name())
	size, ok := actors[1].Value("DecalSize")
	require.True(t, ok)
	assert.Equal(t, int64(64), size.Int)

	dropped := diags.OfKind(diag.KindDropped)
	require.Len(t, dropped, 1)
	assert.Contains(t, dropped[0].Message, "Note0")
}

func TestScriptTransform_MissingHookKeepsActor(t *testing.T) {
	rs := loadScriptPack(t)
	src := "Begin Actor Class=Camera Name=Cam0\nEnd Actor\n"
	out, diags := convertDoc(t, rs, src, scene.Pair{Source: scene.UE2, Target: scene.UE4})
	require.Len(t, out.Actors(), 1)
	gaps := diags.OfKind(diag.KindRuleGap)
	require.Len(t, gaps, 1)
	assert.Contains(t, gaps[0].Message, "not_defined")
}

func TestScriptTransform_RuntimeErrorKeepsActor(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "spin.yaml"), "scripts: lua\nrules:\n  - class: Trigger\n    script: spin\n")
	writeFile(t, filepath.Join(dir, "lua", "spin.lua"), "function spin(a) while true do end end\n")
	mgr := scripting.NewManager(zaptest.NewLogger(t))
	t.Cleanup(mgr.Close)
	rs, err := rules.LoadRuleset(dir, mgr, 1000)
	require.NoError(t, err)

	doc := parseDoc(t, "Begin Actor Class=Trigger Name=T0\nEnd Actor\n", scene.UE1)
	diags := diag.NewList(nil)
	c := rules.NewContext(scene.Pair{Source: scene.UE1, Target: scene.UE4}, 1, diags, nil)
	out, err := rules.NewEngine(rs, nil).ConvertDocument(context.Background(), c, doc)
	require.NoError(t, err)
	require.Len(t, out.Actors(), 1)
	assert.NotEmpty(t, diags.OfKind(diag.KindRuleGap))
}
