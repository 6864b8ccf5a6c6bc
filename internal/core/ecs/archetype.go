package ecs

import (
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Archetype is the set of live entities sharing an identical set of component
// types. Archetypes are derived from the stores on demand; they are a snapshot
// and go stale after any structural change.
type Archetype struct {
	types    []reflect.Type
	entities []EntityID
}

// Types returns the component types of the archetype sorted by type name.
func (a *Archetype) Types() []reflect.Type { return a.types }

// Entities returns the member entities in index order.
func (a *Archetype) Entities() []EntityID { return a.entities }

func (a *Archetype) Len() int { return len(a.entities) }

// Has reports whether the archetype includes component type t.
func (a *Archetype) Has(t reflect.Type) bool {
	for _, at := range a.types {
		if at == t {
			return true
		}
	}
	return false
}

// Archetypes groups live entities by component set. Archetypes are ordered by
// their lowest entity index, which makes the result deterministic for a given
// world state.
func (w *World) Archetypes() []*Archetype {
	defer w.borrow()()

	var (
		out   []*Archetype
		byKey = make(map[string]*Archetype)
		key   strings.Builder
		set   []int
	)
	w.pool.Each(func(id EntityID) {
		key.Reset()
		set = set[:0]
		for i, s := range w.registry.stores {
			if s.Has(id) {
				key.WriteString(strconv.Itoa(i))
				key.WriteByte(',')
				set = append(set, i)
			}
		}
		a, ok := byKey[key.String()]
		if !ok {
			a = &Archetype{types: make([]reflect.Type, 0, len(set))}
			for _, i := range set {
				a.types = append(a.types, w.registry.stores[i].Type())
			}
			sortTypes(a.types)
			byKey[key.String()] = a
			out = append(out, a)
		}
		a.entities = append(a.entities, id)
	})
	return out
}

func sortTypes(types []reflect.Type) {
	sort.Slice(types, func(i, j int) bool {
		if types[i].String() != types[j].String() {
			return types[i].String() < types[j].String()
		}
		return types[i].PkgPath() < types[j].PkgPath()
	})
}

// Column returns the T components of every entity in a, in entity order.
// The archetype must include T.
func Column[T any](w *World, a *Archetype) []*T {
	s := storeOf[T](w.registry)
	out := make([]*T, len(a.entities))
	for i, id := range a.entities {
		out[i], _ = s.Get(id)
	}
	return out
}
