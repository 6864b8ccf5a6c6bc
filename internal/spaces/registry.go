package spaces

import (
	"fmt"

	"github.com/heavy-go/hv/internal/core/arena"
	"github.com/heavy-go/hv/internal/core/ecs"
)

// Registry owns every Space and is the only source of SpaceIDs. Spaces are
// never removed, so an ID issued here stays valid for the registry's lifetime.
type Registry struct {
	spaces *arena.Arena[*Space]
}

func NewRegistry() *Registry {
	return &Registry{spaces: arena.New[*Space]()}
}

// CreateSpace creates an empty space with a fresh SpaceID.
func (r *Registry) CreateSpace() *Space {
	s := &Space{id: InvalidSpaceID, world: ecs.NewWorld()}
	s.id = SpaceID(r.spaces.Insert(s))
	return s
}

// GetSpace returns the space with the given ID. It panics if the ID was not
// issued by this registry.
func (r *Registry) GetSpace(id SpaceID) *Space {
	s, ok := r.spaces.Get(arena.Index(id))
	if !ok {
		panic(fmt.Sprintf("spaces: no space with id %v", id))
	}
	return s
}

// Len returns the number of spaces created.
func (r *Registry) Len() int {
	return r.spaces.Len()
}

// Each visits every space in creation order.
func (r *Registry) Each(fn func(*Space)) {
	r.spaces.Each(func(_ arena.Index, s *Space) { fn(s) })
}
