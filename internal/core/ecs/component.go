package ecs

import (
	"fmt"
	"reflect"
)

// Storage is implemented by all component stores so the World can handle
// components whose static type it does not know.
type Storage interface {
	Type() reflect.Type
	Has(id EntityID) bool
	Remove(id EntityID)
	Len() int

	put(id EntityID, value any)
	value(id EntityID) (any, bool)
	empty() Storage
}

// Store is a generic typed map store for ECS components.
type Store[T any] struct {
	data map[EntityID]*T
}

func NewStore[T any]() *Store[T] {
	return &Store[T]{
		data: make(map[EntityID]*T, 256),
	}
}

func (s *Store[T]) Type() reflect.Type {
	return TypeOf[T]()
}

func (s *Store[T]) Set(id EntityID, c *T) {
	s.data[id] = c
}

func (s *Store[T]) Get(id EntityID) (*T, bool) {
	c, ok := s.data[id]
	return c, ok
}

func (s *Store[T]) Remove(id EntityID) {
	delete(s.data, id)
}

func (s *Store[T]) Has(id EntityID) bool {
	_, ok := s.data[id]
	return ok
}

func (s *Store[T]) Len() int {
	return len(s.data)
}

func (s *Store[T]) Each(fn func(EntityID, *T)) {
	for id, c := range s.data {
		fn(id, c)
	}
}

func (s *Store[T]) put(id EntityID, value any) {
	c := value.(T)
	s.data[id] = &c
}

func (s *Store[T]) empty() Storage {
	return NewStore[T]()
}

func (s *Store[T]) value(id EntityID) (any, bool) {
	c, ok := s.data[id]
	if !ok {
		return nil, false
	}
	return *c, true
}

// TypeOf returns the component type key for T.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Component is a type-erased component value ready to be attached to an entity.
type Component struct {
	typ      reflect.Type
	value    any
	newStore func() Storage
}

// With wraps v as a Component keyed by its static type T.
func With[T any](v T) Component {
	return Component{
		typ:      TypeOf[T](),
		value:    v,
		newStore: func() Storage { return NewStore[T]() },
	}
}

func (c Component) Type() reflect.Type { return c.typ }
func (c Component) Value() any         { return c.value }

func (c Component) String() string {
	return fmt.Sprintf("%v(%v)", c.typ, c.value)
}

// Builder stages a set of components for one entity.
type Builder struct {
	components []Component
}

func NewBuilder() *Builder {
	return &Builder{components: make([]Component, 0, 8)}
}

// Add appends components. A later component of the same type wins on insert.
func (b *Builder) Add(components ...Component) *Builder {
	b.components = append(b.components, components...)
	return b
}

func (b *Builder) Components() []Component { return b.components }
func (b *Builder) Len() int                { return len(b.components) }

// Reset empties the builder for reuse, keeping its capacity.
func (b *Builder) Reset() {
	clear(b.components)
	b.components = b.components[:0]
}
