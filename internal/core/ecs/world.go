package ecs

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrNoSuchEntity is returned for dead, stale or never-issued entity IDs.
	ErrNoSuchEntity = errors.New("ecs: no such entity")
	// ErrInvalidEntity is returned when an entity handle can never be live.
	ErrInvalidEntity = errors.New("ecs: invalid entity handle")
	// ErrBorrowed is the panic value raised when the world is structurally
	// mutated while a query over it is running.
	ErrBorrowed = errors.New("ecs: world mutated while borrowed by a query")
)

// MissingComponentError reports that an entity exists but lacks a component.
type MissingComponentError struct {
	Type reflect.Type
}

func (e *MissingComponentError) Error() string {
	return fmt.Sprintf("missing component %v", e.Type)
}

// World is the top-level ECS container. It owns the entity pool and the
// component registry. Queries borrow the world; structural changes while a
// borrow is held panic, so deferred mutation goes through a command buffer.
type World struct {
	pool     *EntityPool
	registry *Registry
	borrows  int
}

func NewWorld() *World {
	return &World{
		pool:     NewEntityPool(),
		registry: NewRegistry(),
	}
}

func (w *World) Pool() *EntityPool   { return w.pool }
func (w *World) Registry() *Registry { return w.registry }

func (w *World) mustMutate() {
	if w.borrows > 0 {
		panic(ErrBorrowed)
	}
}

// Borrowed reports whether a query currently holds the world.
func (w *World) Borrowed() bool {
	return w.borrows > 0
}

func (w *World) borrow() func() {
	w.borrows++
	return func() { w.borrows-- }
}

// Spawn creates an entity carrying the given components.
func (w *World) Spawn(components ...Component) EntityID {
	w.mustMutate()
	w.Flush()
	id := w.pool.Create()
	w.attach(id, components)
	return id
}

// SpawnAt creates an entity with a caller-chosen handle. Any entity already
// occupying the handle's index is dropped together with its components.
func (w *World) SpawnAt(id EntityID, components ...Component) error {
	if id.Generation() == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidEntity, id)
	}
	w.mustMutate()
	w.Flush()
	if replaced, ok := w.pool.Claim(id); ok {
		w.registry.RemoveAll(replaced)
	}
	w.registry.RemoveAll(id)
	w.attach(id, components)
	return nil
}

// Reserve hands out an entity ID without creating it. The ID becomes a live,
// empty entity on the next Flush or structural operation. Reserving is allowed
// while the world is borrowed.
func (w *World) Reserve() EntityID {
	return w.pool.Reserve()
}

// ReserveN reserves n entity IDs.
func (w *World) ReserveN(n uint32) []EntityID {
	ids := make([]EntityID, n)
	for i := range ids {
		ids[i] = w.pool.Reserve()
	}
	return ids
}

// Flush converts reserved IDs into live empty entities.
func (w *World) Flush() {
	if !w.pool.Pending() {
		return
	}
	w.mustMutate()
	w.pool.Flush()
}

// Contains reports whether id is a live entity.
func (w *World) Contains(id EntityID) bool {
	return w.pool.Alive(id)
}

// Find returns the live entity at index idx.
func (w *World) Find(idx uint32) (EntityID, bool) {
	return w.pool.Find(idx)
}

// Despawn destroys an entity and drops all of its components.
func (w *World) Despawn(id EntityID) error {
	w.mustMutate()
	w.Flush()
	if !w.pool.Alive(id) {
		return ErrNoSuchEntity
	}
	w.registry.RemoveAll(id)
	w.pool.Destroy(id)
	return nil
}

// Insert attaches components to an existing entity, replacing values of the
// same type.
func (w *World) Insert(id EntityID, components ...Component) error {
	w.mustMutate()
	w.Flush()
	if !w.pool.Alive(id) {
		return ErrNoSuchEntity
	}
	w.attach(id, components)
	return nil
}

// RemoveType detaches the component of type t and returns its value.
func (w *World) RemoveType(id EntityID, t reflect.Type) (any, error) {
	w.mustMutate()
	w.Flush()
	if !w.pool.Alive(id) {
		return nil, ErrNoSuchEntity
	}
	s, ok := w.registry.Lookup(t)
	if !ok {
		return nil, &MissingComponentError{Type: t}
	}
	v, ok := s.value(id)
	if !ok {
		return nil, &MissingComponentError{Type: t}
	}
	s.Remove(id)
	return v, nil
}

// HasType reports whether id carries a component of type t.
func (w *World) HasType(id EntityID, t reflect.Type) bool {
	s, ok := w.registry.Lookup(t)
	return ok && s.Has(id)
}

// Components returns copies of every component attached to id, in store
// registration order.
func (w *World) Components(id EntityID) ([]Component, error) {
	if !w.pool.Alive(id) {
		return nil, ErrNoSuchEntity
	}
	var out []Component
	for _, s := range w.registry.stores {
		if v, ok := s.value(id); ok {
			out = append(out, Component{typ: s.Type(), value: v, newStore: s.empty})
		}
	}
	return out, nil
}

// Clear despawns every entity. Stores keep their allocations.
func (w *World) Clear() {
	w.mustMutate()
	w.pool.Each(w.registry.RemoveAll)
	w.pool.Clear()
}

// Len returns the number of live entities.
func (w *World) Len() int {
	return w.pool.Len()
}

// Each visits every live entity in index order.
func (w *World) Each(fn func(EntityID)) {
	defer w.borrow()()
	w.pool.Each(fn)
}

func (w *World) attach(id EntityID, components []Component) {
	w.mustMutate()
	for _, c := range components {
		s, ok := w.registry.Lookup(c.typ)
		if !ok {
			s = w.registry.Register(c.newStore())
		}
		s.put(id, c.value)
	}
}

// Get returns a pointer to the T component of id for in-place mutation.
func Get[T any](w *World, id EntityID) (*T, error) {
	if !w.pool.Alive(id) {
		return nil, ErrNoSuchEntity
	}
	c, ok := storeOf[T](w.registry).Get(id)
	if !ok {
		return nil, &MissingComponentError{Type: TypeOf[T]()}
	}
	return c, nil
}

// Has reports whether id carries a T component.
func Has[T any](w *World, id EntityID) bool {
	return w.HasType(id, TypeOf[T]())
}

// Remove detaches the T component from id and returns it.
func Remove[T any](w *World, id EntityID) (T, error) {
	v, err := w.RemoveType(id, TypeOf[T]())
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// StoreOf returns the typed store for T, creating it if needed.
func StoreOf[T any](w *World) *Store[T] {
	return storeOf[T](w.registry)
}
