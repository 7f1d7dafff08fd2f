package scripting

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// LuaExporter is implemented by values that know how to present
// themselves to a Lua script, such as the robot API.
type LuaExporter interface {
	LuaValue(L *lua.LState, ctl *Control) lua.LValue
}

// LuaBody is a script written in Lua.
//
// Globals available to the chunk: every environment value converted by
// ToLua, plus "ctx" (sleep, stop_requested, terminate, terminate_all,
// time) aliased as "Control", and "sleep" / "time" shorthands.
type LuaBody struct {
	Source string
}

func (b LuaBody) run(env *Env) error {
	L := lua.NewState()
	defer L.Close()
	L.SetContext(env.Control.Context())

	names := make([]string, 0, len(env.Values))
	for name := range env.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		L.SetGlobal(name, ToLua(L, env.Control, env.Values[name]))
	}

	ctl := controlTable(L, env.Control)
	L.SetGlobal("ctx", ctl)
	L.SetGlobal("Control", ctl)
	L.SetGlobal("sleep", L.GetField(ctl, "sleep"))
	L.SetGlobal("time", L.GetField(ctl, "time"))

	err := L.DoString(b.Source)
	if env.Control.StopRequested() {
		return ErrCancelled
	}
	if err != nil {
		return fmt.Errorf("lua: %w", err)
	}
	return nil
}

func controlTable(L *lua.LState, c *Control) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "sleep", L.NewFunction(func(L *lua.LState) int {
		secs := float64(L.CheckNumber(1))
		if err := c.Sleep(time.Duration(secs * float64(time.Second))); err != nil {
			L.RaiseError("%s", err)
		}
		return 0
	}))
	L.SetField(t, "stop_requested", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(c.StopRequested()))
		return 1
	}))
	L.SetField(t, "terminate", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("%s", c.Terminate())
		return 0
	}))
	L.SetField(t, "terminate_all", L.NewFunction(func(L *lua.LState) int {
		c.TerminateAll()
		return 0
	}))
	L.SetField(t, "time", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(c.Time().Seconds()))
		return 1
	}))
	return t
}

// ToLua converts a Go value for use in a Lua state. Byte slices become
// 1-based arrays, maps with string keys become tables, and values that
// cannot be represented become nil.
func ToLua(L *lua.LState, ctl *Control, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return x
	case LuaExporter:
		return x.LuaValue(L, ctl)
	case bool:
		return lua.LBool(x)
	case string:
		return lua.LString(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case []byte:
		t := L.NewTable()
		for _, b := range x {
			t.Append(lua.LNumber(b))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, e := range x {
			L.SetField(t, k, ToLua(L, ctl, e))
		}
		return t
	case map[string]int:
		t := L.NewTable()
		for k, e := range x {
			L.SetField(t, k, lua.LNumber(e))
		}
		return t
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return lua.LNumber(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(rv.Float())
	default:
		return lua.LNil
	}
}
