package spaces

import (
	"github.com/heavy-go/hv/internal/core/ecs"
)

// Get returns a pointer to the T component of o. The pointer may be used to
// modify the component in place.
func Get[T any](s *Space, o Object) (*T, error) {
	if !s.owns(o) {
		return nil, ErrWrongSpace
	}
	c, err := ecs.Get[T](s.world, o.entity)
	if err != nil {
		return nil, translate(err)
	}
	return c, nil
}

// Has reports whether o carries a T component.
func Has[T any](s *Space, o Object) (bool, error) {
	if !s.owns(o) {
		return false, ErrWrongSpace
	}
	if !s.world.Contains(o.entity) {
		return false, ErrNoSuchObject
	}
	return ecs.Has[T](s.world, o.entity), nil
}

// Remove detaches the T component from o and returns it.
func Remove[T any](s *Space, o Object) (T, error) {
	if !s.owns(o) {
		var zero T
		return zero, ErrWrongSpace
	}
	v, err := ecs.Remove[T](s.world, o.entity)
	return v, translate(err)
}

// Each calls fn for every object carrying an A component.
func Each[A any](s *Space, fn func(Object, *A)) {
	ecs.Each[A](s.world, func(e ecs.EntityID, a *A) { fn(s.wrap(e), a) })
}

// Each2 calls fn for every object carrying both A and B.
func Each2[A, B any](s *Space, fn func(Object, *A, *B)) {
	ecs.Each2[A, B](s.world, func(e ecs.EntityID, a *A, b *B) { fn(s.wrap(e), a, b) })
}

// Each3 calls fn for every object carrying A, B and C.
func Each3[A, B, C any](s *Space, fn func(Object, *A, *B, *C)) {
	ecs.Each3[A, B, C](s.world, func(e ecs.EntityID, a *A, b *B, c *C) { fn(s.wrap(e), a, b, c) })
}
