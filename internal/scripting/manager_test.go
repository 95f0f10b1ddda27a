package scripting_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/levelport/internal/scripting"
)

func newManager(t *testing.T) (*scripting.Manager, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	mgr := scripting.NewManager(zap.New(core))
	t.Cleanup(mgr.Close)
	return mgr, logs
}

func writeScript(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
}

func TestNewManager_NilLoggerPanics(t *testing.T) {
	assert.Panics(t, func() { scripting.NewManager(nil) })
}

func TestManager_LoadPackRunsFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "b.lua", `function suffix() return prefix .. "_b" end`)
	writeScript(t, dir, "a.lua", `prefix = "a"`)
	writeScript(t, dir, "notes.txt", `this is not lua`)

	mgr, _ := newManager(t)
	require.NoError(t, mgr.LoadPack("meshes", dir, 0))

	ret, err := mgr.CallHook("meshes", "suffix")
	require.NoError(t, err)
	assert.Equal(t, "a_b", ret.String())
}

func TestManager_LoadPackSyntaxError(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "bad.lua", `function broken(`)

	mgr, _ := newManager(t)
	err := mgr.LoadPack("bad", dir, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.lua")
}

func TestManager_LoadPackMissingDir(t *testing.T) {
	mgr, _ := newManager(t)
	assert.Error(t, mgr.LoadPack("p", filepath.Join(t.TempDir(), "missing"), 0))
}

func TestManager_CallHookUnknownPackIsNoop(t *testing.T) {
	mgr, logs := newManager(t)
	ret, err := mgr.CallHook("nobody", "transform")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
	assert.Equal(t, 1, logs.FilterMessage("scripting: no VM for pack").Len())
}

func TestManager_CallHookMissingFunctionIsNoop(t *testing.T) {
	mgr, _ := newManager(t)
	require.NoError(t, mgr.LoadString("p", `x = 1`, 0))
	assert.False(t, mgr.HasHook("p", "transform"))
	ret, err := mgr.CallHook("p", "transform")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
}

func TestManager_GlobalFallback(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "shared.lua", `function double(n) return n * 2 end`)

	mgr, _ := newManager(t)
	require.NoError(t, mgr.LoadGlobal(dir, 0))
	assert.True(t, mgr.HasHook("any-pack", "double"))

	ret, err := mgr.CallHook("any-pack", "double", lua.LNumber(21))
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(42), ret)
}

func TestManager_RuntimeErrorLoggedAndReturned(t *testing.T) {
	mgr, logs := newManager(t)
	require.NoError(t, mgr.LoadString("p", `function transform() error("boom") end`, 0))

	_, err := mgr.CallHook("p", "transform")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 1, logs.FilterMessage("scripting: Lua runtime error").Len())
}

func TestManager_BudgetIsPerCall(t *testing.T) {
	mgr, _ := newManager(t)
	src := `function work() local s = 0 for i = 1, 100 do s = s + i end return s end
function spin() while true do end end`
	require.NoError(t, mgr.LoadString("p", src, 5000))

	_, err := mgr.CallHook("p", "spin")
	require.Error(t, err)

	// A later call gets a fresh budget.
	for i := 0; i < 3; i++ {
		ret, err := mgr.CallHook("p", "work")
		require.NoError(t, err)
		assert.Equal(t, lua.LNumber(5050), ret)
	}
}

func TestManager_InvokeBuildAndRead(t *testing.T) {
	mgr, _ := newManager(t)
	require.NoError(t, mgr.LoadString("p", `function tag(t) t.tagged = true return t end`, 0))

	var tagged bool
	err := mgr.Invoke("p", "tag",
		func(L *lua.LState) []lua.LValue { return []lua.LValue{L.NewTable()} },
		func(L *lua.LState, ret lua.LValue) error {
			tbl, ok := ret.(*lua.LTable)
			require.True(t, ok)
			tagged = lua.LVAsBool(L.GetField(tbl, "tagged"))
			return nil
		},
	)
	require.NoError(t, err)
	assert.True(t, tagged)
}

func TestManager_ConcurrentCalls(t *testing.T) {
	mgr, _ := newManager(t)
	require.NoError(t, mgr.LoadString("p", `n = 0 function bump() n = n + 1 return n end`, 0))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.CallHook("p", "bump")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	ret, err := mgr.CallHook("p", "bump")
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(21), ret)
}
