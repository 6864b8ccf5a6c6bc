// Package objtable binds Lua tables to objects so scripts can keep per-object
// state. Bindings survive serialization: the table travels through the Lua
// value stream and is linked back to its object once the space is loaded.
package objtable

import (
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/multierr"

	"github.com/heavy-go/hv/internal/core/arena"
	"github.com/heavy-go/hv/internal/serialize"
	"github.com/heavy-go/hv/internal/spaces"
)

// CodecName is the stream name of the Component codec.
const CodecName = "hv.ObjectTable"

var (
	ErrNoSuchEntry   = errors.New("no such object table entry")
	ErrAlreadyLinked = errors.New("object table entry already linked")
	ErrNotTable      = errors.New("object table value is not a table")
)

// Component marks an object as owning the table entry at Index.
type Component struct {
	Index arena.Index
}

// Entry is one table binding. A partial entry has no object yet.
type Entry struct {
	Table  *lua.LTable
	Object spaces.Object
	Linked bool
}

// Registry stores table bindings in a generational arena.
type Registry struct {
	entries  *arena.Arena[*Entry]
	byObject map[spaces.Object]arena.Index
	byTable  map[*lua.LTable]arena.Index
}

func NewRegistry() *Registry {
	return &Registry{
		entries:  arena.New[*Entry](),
		byObject: make(map[spaces.Object]arena.Index),
		byTable:  make(map[*lua.LTable]arena.Index),
	}
}

// Insert binds table to o. The returned component should be attached to o.
func (r *Registry) Insert(table *lua.LTable, o spaces.Object) (Component, error) {
	if idx, ok := r.byObject[o]; ok {
		return Component{}, fmt.Errorf("%w: %v has entry %v", ErrAlreadyLinked, o, idx)
	}
	if idx, ok := r.byTable[table]; ok {
		return Component{}, fmt.Errorf("%w: table has entry %v", ErrAlreadyLinked, idx)
	}
	idx := r.entries.Insert(&Entry{Table: table, Object: o, Linked: true})
	r.byObject[o] = idx
	r.byTable[table] = idx
	return Component{Index: idx}, nil
}

// InsertPartialEntry registers table without an object. The entry must later
// be completed with LinkPartialEntryToObject.
func (r *Registry) InsertPartialEntry(table *lua.LTable) Component {
	if idx, ok := r.byTable[table]; ok {
		if e, _ := r.entries.Get(idx); !e.Linked {
			return Component{Index: idx}
		}
	}
	idx := r.entries.Insert(&Entry{Table: table})
	r.byTable[table] = idx
	return Component{Index: idx}
}

// LinkPartialEntryToObject completes the partial entry at idx with o.
func (r *Registry) LinkPartialEntryToObject(o spaces.Object, idx arena.Index) error {
	e, ok := r.entries.Get(idx)
	if !ok {
		return fmt.Errorf("%w: %v", ErrNoSuchEntry, idx)
	}
	if e.Linked {
		if e.Object == o {
			return nil
		}
		return fmt.Errorf("%w: entry %v belongs to %v", ErrAlreadyLinked, idx, e.Object)
	}
	if prev, ok := r.byObject[o]; ok {
		return fmt.Errorf("%w: %v has entry %v", ErrAlreadyLinked, o, prev)
	}
	e.Object, e.Linked = o, true
	r.byObject[o] = idx
	return nil
}

// ByIndex returns the entry at idx.
func (r *Registry) ByIndex(idx arena.Index) (Entry, bool) {
	e, ok := r.entries.Get(idx)
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// ByObject returns the entry bound to o.
func (r *Registry) ByObject(o spaces.Object) (arena.Index, *lua.LTable, bool) {
	idx, ok := r.byObject[o]
	if !ok {
		return 0, nil, false
	}
	e, _ := r.entries.Get(idx)
	return idx, e.Table, true
}

// Remove drops the entry at idx.
func (r *Registry) Remove(idx arena.Index) bool {
	e, ok := r.entries.Remove(idx)
	if !ok {
		return false
	}
	if e.Linked && r.byObject[e.Object] == idx {
		delete(r.byObject, e.Object)
	}
	if r.byTable[e.Table] == idx {
		delete(r.byTable, e.Table)
	}
	return true
}

// Prune drops every entry bound to an object of s that no longer exists and
// returns how many were dropped.
func (r *Registry) Prune(s *spaces.Space) int {
	var dead []arena.Index
	for o, idx := range r.byObject {
		if o.Space() == s.ID() && !s.Contains(o) {
			dead = append(dead, idx)
		}
	}
	for _, idx := range dead {
		r.Remove(idx)
	}
	return len(dead)
}

// Len returns the number of entries, partial ones included.
func (r *Registry) Len() int { return r.entries.Len() }

// Codec returns the codec for Component. Tables are written to the Lua value
// stream; loading creates partial entries that the finalizer links to the
// loaded objects. A loaded object replaces any entry previously bound to the
// same handle.
func (r *Registry) Codec() *serialize.Codec {
	return serialize.WithEncoder[Component, uint32](CodecName,
		func(ctx *serialize.Context, c *Component) (uint32, error) {
			e, ok := r.entries.Get(c.Index)
			if !ok {
				return 0, fmt.Errorf("%w: %v", ErrNoSuchEntry, c.Index)
			}
			return ctx.SerializeLuaValue(e.Table), nil
		},
		func(ctx *serialize.Context, slot uint32) (Component, error) {
			v, err := ctx.DeserializeLuaValue(slot)
			if err != nil {
				return Component{}, err
			}
			table, ok := v.(*lua.LTable)
			if !ok {
				return Component{}, fmt.Errorf("%w: %s", ErrNotTable, v.Type())
			}
			return r.InsertPartialEntry(table), nil
		},
	).WithFinalizer(func(_ *serialize.Context, s *spaces.Space) error {
		var errs error
		spaces.Each(s, func(o spaces.Object, c *Component) {
			if prev, ok := r.byObject[o]; ok && prev != c.Index {
				r.Remove(prev)
			}
			errs = multierr.Append(errs, r.LinkPartialEntryToObject(o, c.Index))
		})
		return errs
	})
}
