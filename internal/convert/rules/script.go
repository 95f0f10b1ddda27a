package rules

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/cory-johannsen/levelport/internal/diag"
	"github.com/cory-johannsen/levelport/internal/scripting"
	"github.com/cory-johannsen/levelport/internal/t3d/parser"
	"github.com/cory-johannsen/levelport/internal/t3d/scene"
)

// ScriptTransform returns a Transform that hands the actor to a Lua hook.
//
// The hook receives a table {class, name, source, target, properties} where
// properties maps each name to its value text (indexed properties map to a
// table of index to text). It returns:
//
//	nil          keep the actor as the rules left it
//	false        drop the actor
//	{class=...}  the replacement actor
//	{{...}, ...} several actors; the first replaces the input
//
// Properties missing from the first returned actor are reported as dropped.
func ScriptTransform(scripts *scripting.Manager, pack, hook string) Transform {
	return func(c *Context, a *scene.Actor) ([]*scene.Actor, error) {
		if !scripts.HasHook(pack, hook) {
			return nil, fmt.Errorf("script hook %s not defined in pack %s", hook, pack)
		}
		var out []*scene.Actor
		err := scripts.Invoke(pack, hook,
			func(L *lua.LState) []lua.LValue {
				return []lua.LValue{actorTable(L, c, a)}
			},
			func(L *lua.LState, ret lua.LValue) error {
				actors, err := actorsFromLua(c, a, ret)
				out = actors
				return err
			},
		)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

func actorTable(L *lua.LState, c *Context, a *scene.Actor) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "class", lua.LString(a.Class()))
	L.SetField(t, "name", lua.LString(a.Name()))
	L.SetField(t, "source", lua.LString(c.Pair.Source.String()))
	L.SetField(t, "target", lua.LString(c.Pair.Target.String()))
	props := L.NewTable()
	for _, p := range a.Properties() {
		if p.Value.Kind == scene.ValueArray {
			arr := L.NewTable()
			for _, el := range p.Value.Elements {
				arr.RawSetInt(el.Index, lua.LString(strings.TrimSpace(el.Value.Text())))
			}
			L.SetField(props, p.Name, arr)
			continue
		}
		L.SetField(props, p.Name, lua.LString(strings.TrimSpace(p.Value.Text())))
	}
	L.SetField(t, "properties", props)
	return t
}

func actorsFromLua(c *Context, a *scene.Actor, ret lua.LValue) ([]*scene.Actor, error) {
	switch v := ret.(type) {
	case *lua.LNilType:
		return []*scene.Actor{a}, nil
	case lua.LBool:
		if !bool(v) {
			return nil, nil
		}
		return []*scene.Actor{a}, nil
	case *lua.LTable:
		// A table with a class or properties field is a single actor;
		// otherwise it is a list of actors.
		if v.RawGetString("class") != lua.LNil || v.RawGetString("properties") != lua.LNil {
			first, err := actorFromTable(c, a, v, true)
			if err != nil {
				return nil, err
			}
			return []*scene.Actor{first}, nil
		}
		var out []*scene.Actor
		for i := 1; i <= v.Len(); i++ {
			tbl, ok := v.RawGetInt(i).(*lua.LTable)
			if !ok {
				return nil, fmt.Errorf("result %d is %s, not a table", i, v.RawGetInt(i).Type())
			}
			actor, err := actorFromTable(c, a, tbl, i == 1)
			if err != nil {
				return nil, fmt.Errorf("result %d: %w", i, err)
			}
			out = append(out, actor)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("script returned %s", ret.Type())
	}
}

// actorFromTable builds an actor from a returned table. The first result
// replaces a: it keeps a's children, brush and the source text of every
// property whose text the script left unchanged.
func actorFromTable(c *Context, a *scene.Actor, t *lua.LTable, replaces bool) (*scene.Actor, error) {
	var out *scene.Actor
	if replaces {
		out = a.Clone()
	} else {
		out = scene.NewActor(scene.KindActor)
		out.Line = a.Line
	}

	if class, ok := t.RawGetString("class").(lua.LString); ok && string(class) != out.Class() {
		out.SetClass(string(class))
	}
	if name, ok := t.RawGetString("name").(lua.LString); ok && string(name) != "" {
		if string(name) != out.Name() {
			out.SetName(string(name))
		}
	} else if !replaces {
		out.SetName(c.NewName(a.Name(), "Script"))
	}
	if out.Class() == "" {
		return nil, fmt.Errorf("actor has no class")
	}

	props, ok := t.RawGetString("properties").(*lua.LTable)
	if !ok {
		return out, nil
	}

	returned := make(map[string]lua.LValue)
	var names []string
	props.ForEach(func(k, v lua.LValue) {
		key, ok := k.(lua.LString)
		if !ok {
			return
		}
		returned[strings.ToLower(string(key))] = v
		names = append(names, string(key))
	})
	sort.Strings(names)

	var kept []scene.Property
	for _, p := range out.Properties() {
		lv, ok := returned[strings.ToLower(p.Name)]
		if !ok {
			if replaces {
				c.Diags.Info(diag.KindDropped, p.Line, "property %s of %s removed by script", p.Name, out.Class())
			}
			continue
		}
		v, err := valueFromLua(p.Name, lv)
		if err != nil {
			return nil, err
		}
		if v.Kind == scene.ValueArray || v.Text() != strings.TrimSpace(p.Value.Text()) {
			p.Value = v
		}
		kept = append(kept, p)
		delete(returned, strings.ToLower(p.Name))
	}
	for _, name := range names {
		lv, ok := returned[strings.ToLower(name)]
		if !ok {
			continue
		}
		v, err := valueFromLua(name, lv)
		if err != nil {
			return nil, err
		}
		kept = append(kept, scene.Property{Name: name, Value: v})
	}
	out.SetProperties(kept)
	return out, nil
}

func valueFromLua(name string, lv lua.LValue) (scene.Value, error) {
	if arr, ok := lv.(*lua.LTable); ok {
		var elems []scene.Element
		var err error
		arr.ForEach(func(k, v lua.LValue) {
			idx, ok := k.(lua.LNumber)
			if !ok || err != nil {
				return
			}
			text, terr := luaText(v)
			if terr != nil {
				err = fmt.Errorf("property %s(%d): %w", name, int(idx), terr)
				return
			}
			elems = append(elems, scene.Element{Index: int(idx), Value: parser.ParseValue(name, text)})
		})
		if err != nil {
			return scene.Value{}, err
		}
		sort.Slice(elems, func(i, j int) bool { return elems[i].Index < elems[j].Index })
		return scene.ArrayValue(elems...), nil
	}
	text, err := luaText(lv)
	if err != nil {
		return scene.Value{}, fmt.Errorf("property %s: %w", name, err)
	}
	return parser.ParseValue(name, text), nil
}

func luaText(lv lua.LValue) (string, error) {
	switch v := lv.(type) {
	case lua.LString:
		return string(v), nil
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) < 1e15 {
			return strconv.FormatInt(int64(f), 10), nil
		}
		return scene.FormatFloat(f), nil
	case lua.LBool:
		if bool(v) {
			return "True", nil
		}
		return "False", nil
	default:
		return "", fmt.Errorf("unsupported Lua value of type %s", lv.Type())
	}
}
