package ecs

import "reflect"

// Registry tracks all component stores and supports bulk cleanup on entity destroy.
type Registry struct {
	stores []Storage
	byType map[reflect.Type]int
}

func NewRegistry() *Registry {
	return &Registry{
		stores: make([]Storage, 0, 16),
		byType: make(map[reflect.Type]int, 16),
	}
}

// Register adds a component store to the registry. Registering a second store
// for the same type is ignored and the existing store is returned.
func (r *Registry) Register(store Storage) Storage {
	if i, ok := r.byType[store.Type()]; ok {
		return r.stores[i]
	}
	r.byType[store.Type()] = len(r.stores)
	r.stores = append(r.stores, store)
	return store
}

// Lookup returns the store for t, if one was registered.
func (r *Registry) Lookup(t reflect.Type) (Storage, bool) {
	i, ok := r.byType[t]
	if !ok {
		return nil, false
	}
	return r.stores[i], true
}

// RemoveAll clears the given entity from every registered component store.
func (r *Registry) RemoveAll(id EntityID) {
	for _, s := range r.stores {
		s.Remove(id)
	}
}

// storeOf returns the typed store for T, creating and registering it on demand.
func storeOf[T any](r *Registry) *Store[T] {
	if s, ok := r.Lookup(TypeOf[T]()); ok {
		return s.(*Store[T])
	}
	return r.Register(NewStore[T]()).(*Store[T])
}
