package sandbox

import (
	"fmt"
	"math"
	"sort"

	"github.com/Shopify/go-lua"
)

// GlobalName is the single binding injected into a script.
const GlobalName = "coordinator"

// Killer is the minimum a coordinator offers to scripts.
type Killer interface {
	Kill()
}

// Method is a coordinator function callable from a script. Arguments and
// results are converted between Lua and Go: strings, numbers, booleans, nil,
// and tables (to []any or map[string]any).
type Method func(args []any) (any, error)

// Scriptable is implemented by coordinators that expose methods to scripts.
type Scriptable interface {
	ScriptMethods() map[string]Method
}

// Run executes source under name with target bound as `coordinator`.
// If the chunk returns a function, that function is called with the
// coordinator table as its only argument.
//
// A panic raised by a coordinator binding is returned as an error.
func Run(name, source string, target Killer) (err error) {
	defer recoverPanic(name, &err)

	state := lua.NewState()
	pushCoordinator(state, target)
	state.SetGlobal(GlobalName)

	if err := lua.LoadBuffer(state, source, name, "t"); err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}

	if state.IsFunction(-1) {
		state.Global(GlobalName)
		if err := state.ProtectedCall(1, 0, 0); err != nil {
			return fmt.Errorf("call %s export: %w", name, err)
		}
		return nil
	}
	state.Pop(1)
	return nil
}

// recoverPanic turns a panic that escaped the Lua runtime into an error.
// go-lua only traps panics carrying error values; anything else unwinds
// through ProtectedCall.
func recoverPanic(name string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("run %s: panic: %v", name, r)
	}
}

// ModuleExport is what a Lua config module evaluates to.
type ModuleExport struct {
	// Callable is set when the module returned a function.
	Callable bool
	// Record holds the returned table when the module returned one.
	Record map[string]any
}

// Export evaluates source as a module without any bindings and reports its
// return value. Anything other than a table or a function yields an empty
// export.
func Export(name, source string) (export ModuleExport, err error) {
	defer recoverPanic(name, &err)

	state := lua.NewState()
	if err := lua.LoadBuffer(state, source, name, "t"); err != nil {
		return ModuleExport{}, fmt.Errorf("load %s: %w", name, err)
	}
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		return ModuleExport{}, fmt.Errorf("run %s: %w", name, err)
	}
	defer state.Pop(1)

	switch state.TypeOf(-1) {
	case lua.TypeFunction:
		return ModuleExport{Callable: true}, nil
	case lua.TypeTable:
		return ModuleExport{Record: tableToMap(state, -1)}, nil
	default:
		return ModuleExport{}, nil
	}
}

func pushCoordinator(state *lua.State, target Killer) {
	state.NewTable()

	state.PushGoFunction(func(l *lua.State) int {
		target.Kill()
		return 0
	})
	state.SetField(-2, "kill")

	scriptable, ok := target.(Scriptable)
	if !ok {
		return
	}
	methods := scriptable.ScriptMethods()
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		method := methods[name]
		state.PushGoFunction(func(l *lua.State) int {
			args := make([]any, 0, l.Top())
			for i := 1; i <= l.Top(); i++ {
				args = append(args, luaToGo(l, i))
			}
			result, err := method(args)
			if err != nil {
				lua.Errorf(l, "%s", err.Error())
				return 0
			}
			pushGo(l, result)
			return 1
		})
		state.SetField(-2, name)
	}
}

func luaToGo(state *lua.State, index int) any {
	switch state.TypeOf(index) {
	case lua.TypeString:
		value, _ := state.ToString(index)
		return value
	case lua.TypeNumber:
		value, _ := state.ToNumber(index)
		return normalizeNumber(value)
	case lua.TypeBoolean:
		return state.ToBoolean(index)
	case lua.TypeTable:
		return tableToGo(state, index)
	default:
		return nil
	}
}

func tableToGo(state *lua.State, index int) any {
	index = state.AbsIndex(index)
	isArray := true
	maxIndex := 0
	count := 0
	state.PushNil()
	for state.Next(index) {
		if isArray {
			if state.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if idx, ok := state.ToInteger(-2); ok && idx > 0 {
				count++
				if idx > maxIndex {
					maxIndex = idx
				}
			} else {
				isArray = false
			}
		}
		state.Pop(1)
	}

	if isArray && count > 0 && maxIndex == count {
		result := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			state.RawGetInt(index, i)
			result = append(result, luaToGo(state, -1))
			state.Pop(1)
		}
		return result
	}
	return tableToMap(state, index)
}

func tableToMap(state *lua.State, index int) map[string]any {
	output := map[string]any{}
	index = state.AbsIndex(index)
	state.PushNil()
	for state.Next(index) {
		if state.TypeOf(-2) == lua.TypeString {
			key, _ := state.ToString(-2)
			output[key] = luaToGo(state, -1)
		}
		state.Pop(1)
	}
	return output
}

func pushGo(state *lua.State, value any) {
	switch v := value.(type) {
	case nil:
		state.PushNil()
	case bool:
		state.PushBoolean(v)
	case string:
		state.PushString(v)
	case int:
		state.PushInteger(v)
	case int64:
		state.PushNumber(float64(v))
	case float64:
		state.PushNumber(v)
	case []any:
		state.NewTable()
		for i, item := range v {
			pushGo(state, item)
			state.RawSetInt(-2, i+1)
		}
	case map[string]any:
		state.NewTable()
		for key, item := range v {
			pushGo(state, item)
			state.SetField(-2, key)
		}
	default:
		state.PushString(fmt.Sprint(v))
	}
}

func normalizeNumber(value float64) any {
	if math.Mod(value, 1) == 0 {
		return int(value)
	}
	return value
}
