package scripting_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/levelport/internal/scripting"
)

func TestNewSandboxedState_RemovesUnsafeGlobals(t *testing.T) {
	L := scripting.NewSandboxedState(0)
	require.NotNil(t, L)
	defer L.Close()
	for _, name := range []string{"os", "io", "debug", "dofile", "loadfile", "load", "collectgarbage", "require"} {
		assert.Equal(t, lua.LNil, L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestNewSandboxedState_SafeLibsAvailable(t *testing.T) {
	L := scripting.NewSandboxedState(0)
	defer L.Close()
	err := L.DoString(`
		assert(math.floor(2.5) == 2)
		assert(string.lower("MESH") == "mesh")
		local t = {}
		table.insert(t, "a")
		assert(#t == 1)
	`)
	assert.NoError(t, err)
}

func TestNewSandboxedState_RunawayScriptStops(t *testing.T) {
	L := scripting.NewSandboxedState(10)
	defer L.Close()
	assert.Error(t, L.DoString(`while true do end`))
}

func TestProperty_AnyLimitStopsInfiniteLoop(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 50).Draw(t, "limit")
		L := scripting.NewSandboxedState(limit)
		defer L.Close()
		if err := L.DoString(`while true do end`); err == nil {
			t.Fatalf("expected error with limit=%d", limit)
		}
	})
}
