package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// ErrNoFunction is returned by Call when the named global is not a function.
var ErrNoFunction = errors.New("lua function not found")

// Engine wraps a single gopher-lua VM.
// Single-goroutine access only.
type Engine struct {
	vm  *lua.LState
	log *zap.Logger

	resources map[lua.LValue]string
	byName    map[string]lua.LValue
}

// NewEngine creates a Lua engine and loads all scripts from the given
// directory. An empty directory name loads nothing.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{
		vm:        vm,
		log:       log,
		resources: make(map[lua.LValue]string),
		byName:    make(map[string]lua.LValue),
	}
	if scriptsDir == "" {
		return e, nil
	}

	// Load core scripts first, then every other directory in name order
	if err := e.loadDir(filepath.Join(scriptsDir, "core")); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load core scripts: %w", err)
	}
	subs, err := subdirs(scriptsDir)
	if err != nil {
		vm.Close()
		return nil, fmt.Errorf("scan scripts: %w", err)
	}
	for _, sub := range subs {
		if sub == "core" {
			continue
		}
		if err := e.loadDir(filepath.Join(scriptsDir, sub)); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}
	if err := e.loadDir(scriptsDir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
	}

	return e, nil
}

func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			out = append(out, entry.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// State returns the underlying VM.
func (e *Engine) State() *lua.LState { return e.vm }

// DoString runs a chunk of Lua source.
func (e *Engine) DoString(src string) error {
	return e.vm.DoString(src)
}

// Call calls a global Lua function with the given arguments and returns its
// first result.
func (e *Engine) Call(name string, args ...lua.LValue) (lua.LValue, error) {
	fn := e.vm.GetGlobal(name)
	if fn.Type() != lua.LTFunction {
		return lua.LNil, fmt.Errorf("%w: %s", ErrNoFunction, name)
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		e.log.Error("lua call error", zap.String("func", name), zap.Error(err))
		return lua.LNil, fmt.Errorf("call %s: %w", name, err)
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)
	return result, nil
}

// RegisterResource names a value that Marshal cannot encode, such as a
// function or userdata. Marshal writes the name in its place and Unmarshal
// resolves the name back to the registered value.
func (e *Engine) RegisterResource(name string, v lua.LValue) error {
	if prev, ok := e.byName[name]; ok && prev != v {
		return fmt.Errorf("resource %q already registered", name)
	}
	if prev, ok := e.resources[v]; ok && prev != name {
		return fmt.Errorf("value already registered as resource %q", prev)
	}
	e.resources[v] = name
	e.byName[name] = v
	return nil
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
