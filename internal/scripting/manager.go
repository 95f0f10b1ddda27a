package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// globalKey is the reserved key for shared scripts loaded via LoadGlobal.
// Calls fall back to this VM when the named pack has no VM.
const globalKey = "__global__"

// vm is one sandboxed LState. An LState is single-threaded, so every call
// holds mu.
type vm struct {
	mu    sync.Mutex
	L     *lua.LState
	limit int
}

// Manager owns one sandboxed LState per rule pack and dispatches hook calls.
//
// Manager is safe for concurrent use; calls into the same pack are
// serialized, calls into different packs run concurrently.
type Manager struct {
	mu     sync.RWMutex
	vms    map[string]*vm
	logger *zap.Logger
}

// NewManager creates a Manager.
//
// Precondition: logger must be non-nil.
// Postcondition: Returns a non-nil Manager with no VMs.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		panic("scripting.NewManager: logger must not be nil")
	}
	return &Manager{
		vms:    make(map[string]*vm),
		logger: logger,
	}
}

// LoadPack creates a sandboxed VM for pack, registers the engine.* modules,
// then executes every *.lua file in scriptDir in lexicographic order.
//
// Precondition: pack must be non-empty; scriptDir must be a readable directory.
// Postcondition: the pack's VM replaces any earlier one; returns an error on
// Lua load failure.
func (m *Manager) LoadPack(pack, scriptDir string, instLimit int) error {
	return m.loadDir(pack, scriptDir, instLimit)
}

// LoadGlobal creates the shared VM used as a fallback by packs without
// scripts of their own.
//
// Precondition: scriptDir must be a readable directory.
func (m *Manager) LoadGlobal(scriptDir string, instLimit int) error {
	return m.loadDir(globalKey, scriptDir, instLimit)
}

// LoadString creates a VM for pack from inline Lua source.
func (m *Manager) LoadString(pack, src string, instLimit int) error {
	L := m.newState(instLimit)
	if err := L.DoString(src); err != nil {
		L.Close()
		return fmt.Errorf("scripting: loading inline source for %q: %w", pack, err)
	}
	m.install(pack, L, instLimit)
	return nil
}

func (m *Manager) newState(instLimit int) *lua.LState {
	L := NewSandboxedState(instLimit)
	m.RegisterModules(L)
	return L
}

func (m *Manager) loadDir(key, scriptDir string, instLimit int) error {
	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		return fmt.Errorf("scripting: reading script dir %q for %q: %w", scriptDir, key, err)
	}

	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	L := m.newState(instLimit)
	for _, path := range luaFiles {
		cancel := withBudget(L, instLimit)
		err := L.DoFile(path)
		cancel()
		if err != nil {
			L.Close()
			return fmt.Errorf("scripting: loading %q for %q: %w", path, key, err)
		}
	}
	m.install(key, L, instLimit)
	m.logger.Debug("scripting: pack loaded",
		zap.String("pack", key),
		zap.Int("files", len(luaFiles)),
	)
	return nil
}

func (m *Manager) install(key string, L *lua.LState, instLimit int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.vms[key]; ok {
		old.mu.Lock()
		old.L.Close()
		old.mu.Unlock()
	}
	m.vms[key] = &vm{L: L, limit: instLimit}
}

func (m *Manager) lookup(pack string) *vm {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.vms[pack]; ok {
		return v
	}
	return m.vms[globalKey]
}

// HasHook reports whether hook is a Lua function in pack's VM or the global
// fallback VM.
func (m *Manager) HasHook(pack, hook string) bool {
	v := m.lookup(pack)
	if v == nil {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.L.GetGlobal(hook).Type() == lua.LTFunction
}

// Invoke calls the named Lua global in pack's VM with a fresh instruction
// budget. build creates the arguments and read consumes the first return
// value; both run while the VM is held, so they may use L freely. A missing
// VM or hook is a no-op: read is not called.
//
// Postcondition: Lua runtime errors, including an exhausted budget, are
// logged at Warn level and returned.
func (m *Manager) Invoke(pack, hook string, build func(L *lua.LState) []lua.LValue, read func(L *lua.LState, ret lua.LValue) error) error {
	v := m.lookup(pack)
	if v == nil {
		m.logger.Info("scripting: no VM for pack",
			zap.String("pack", pack),
			zap.String("hook", hook),
		)
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	L := v.L
	fn := L.GetGlobal(hook)
	if fn.Type() != lua.LTFunction {
		return nil
	}

	var args []lua.LValue
	if build != nil {
		args = build(L)
	}
	cancel := withBudget(L, v.limit)
	err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...)
	cancel()
	if err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("pack", pack),
			zap.String("hook", hook),
			zap.Error(err),
		)
		return fmt.Errorf("scripting: %s.%s: %w", pack, hook, err)
	}

	ret := L.Get(-1)
	L.Pop(1)
	if read == nil {
		return nil
	}
	return read(L, ret)
}

// CallHook calls hook with plain arguments and returns its first result, or
// LNil when the VM or hook does not exist.
func (m *Manager) CallHook(pack, hook string, args ...lua.LValue) (lua.LValue, error) {
	ret := lua.LValue(lua.LNil)
	err := m.Invoke(pack, hook,
		func(*lua.LState) []lua.LValue { return args },
		func(_ *lua.LState, v lua.LValue) error {
			ret = v
			return nil
		},
	)
	if err != nil {
		return lua.LNil, err
	}
	return ret, nil
}

// Close releases every VM.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, v := range m.vms {
		v.mu.Lock()
		v.L.Close()
		v.mu.Unlock()
		delete(m.vms, key)
	}
}
