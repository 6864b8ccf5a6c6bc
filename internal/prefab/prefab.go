// Package prefab spawns objects described in YAML documents:
//
//	objects:
//	  - id: camp
//	    components:
//	      hv.Position: {x: 10, y: 4}
//	  - id: guard
//	    parent: camp
//	    script: new_guard
//	    components:
//	      hv.Name: {value: Guard}
//
// Component keys are codec names. Parent refers to another entry's id in the
// same document. Script names a global Lua function that is called with the
// entry id and must return the object's state table.
package prefab

import (
	"errors"
	"fmt"
	"os"
	"sort"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/heavy-go/hv/internal/component"
	"github.com/heavy-go/hv/internal/core/ecs"
	"github.com/heavy-go/hv/internal/objtable"
	"github.com/heavy-go/hv/internal/serialize"
	"github.com/heavy-go/hv/internal/spaces"
)

var (
	ErrDuplicateID   = errors.New("duplicate prefab id")
	ErrUnknownParent = errors.New("unknown parent id")
	ErrNoScripting   = errors.New("script given but no scripting engine")
)

// ObjectSpec describes one object.
type ObjectSpec struct {
	ID         string               `yaml:"id"`
	Parent     string               `yaml:"parent"`
	Script     string               `yaml:"script"`
	Components map[string]yaml.Node `yaml:"components"`
}

// Prefab is a parsed document.
type Prefab struct {
	Objects []ObjectSpec `yaml:"objects"`
}

// Parse decodes a prefab document and checks its ids and parent references.
func Parse(raw []byte) (*Prefab, error) {
	var p Prefab
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse prefab: %w", err)
	}
	ids := make(map[string]struct{}, len(p.Objects))
	for _, o := range p.Objects {
		if o.ID == "" {
			continue
		}
		if _, dup := ids[o.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, o.ID)
		}
		ids[o.ID] = struct{}{}
	}
	for _, o := range p.Objects {
		if o.Parent == "" {
			continue
		}
		if _, ok := ids[o.Parent]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownParent, o.Parent)
		}
	}
	return &p, nil
}

// LoadFile reads and parses a prefab file.
func LoadFile(path string) (*Prefab, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prefab: %w", err)
	}
	return Parse(raw)
}

// Caller runs a global Lua function.
type Caller interface {
	Call(name string, args ...lua.LValue) (lua.LValue, error)
}

// Loader spawns prefabs into spaces.
type Loader struct {
	codecs  *serialize.Registry
	scripts Caller
	tables  *objtable.Registry
	log     *zap.Logger
}

// NewLoader creates a loader. scripts and tables may be nil when no prefab
// uses scripts.
func NewLoader(codecs *serialize.Registry, scripts Caller, tables *objtable.Registry, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{codecs: codecs, scripts: scripts, tables: tables, log: log}
}

// Spawn creates every object of p in s. Handles are reserved up front so
// parents may appear after their children. Nothing is spawned unless every
// entry decodes. It returns the objects in document order.
func (l *Loader) Spawn(s *spaces.Space, p *Prefab) ([]spaces.Object, error) {
	objects := s.ReserveObjects(uint32(len(p.Objects)))
	byID := make(map[string]spaces.Object, len(p.Objects))
	for i, spec := range p.Objects {
		if spec.ID != "" {
			byID[spec.ID] = objects[i]
		}
	}

	cb := spaces.NewCommandBuffer()
	var inserted []objtable.Component
	fail := func(err error) ([]spaces.Object, error) {
		cb.Clear()
		for _, c := range inserted {
			l.tables.Remove(c.Index)
		}
		// Reserved handles still become live on the next flush.
		for _, o := range objects {
			cb.Despawn(o)
		}
		s.Flush()
		_ = cb.Run(s)
		return nil, err
	}

	for i, spec := range p.Objects {
		comps, err := l.components(spec)
		if err != nil {
			return fail(fmt.Errorf("object %d %q: %w", i, spec.ID, err))
		}
		if spec.Parent != "" {
			parent, ok := byID[spec.Parent]
			if !ok {
				return fail(fmt.Errorf("object %d %q: %w: %q", i, spec.ID, ErrUnknownParent, spec.Parent))
			}
			comps = append(comps, ecs.With(component.Parent{Object: parent}))
		}
		if spec.Script != "" {
			c, err := l.script(spec, objects[i])
			if err != nil {
				return fail(fmt.Errorf("object %d %q: %w", i, spec.ID, err))
			}
			inserted = append(inserted, c)
			comps = append(comps, ecs.With(c))
		}
		cb.Insert(objects[i], comps...)
	}

	if err := cb.Run(s); err != nil {
		return nil, fmt.Errorf("spawn prefab: %w", err)
	}
	l.log.Debug("spawned prefab",
		zap.Stringer("space", s.ID()),
		zap.Int("objects", len(objects)))
	return objects, nil
}

func (l *Loader) components(spec ObjectSpec) ([]ecs.Component, error) {
	names := make([]string, 0, len(spec.Components))
	for name := range spec.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ecs.Component, 0, len(names)+2)
	for _, name := range names {
		codec, ok := l.codecs.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", serialize.ErrUnknownCodec, name)
		}
		node := spec.Components[name]
		c, err := codec.DecodeYAML(&node)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (l *Loader) script(spec ObjectSpec, o spaces.Object) (objtable.Component, error) {
	if l.scripts == nil || l.tables == nil {
		return objtable.Component{}, ErrNoScripting
	}
	v, err := l.scripts.Call(spec.Script, lua.LString(spec.ID))
	if err != nil {
		return objtable.Component{}, err
	}
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return objtable.Component{}, fmt.Errorf("script %s returned %s, want table", spec.Script, v.Type())
	}
	return l.tables.Insert(tbl, o)
}
