package spaces

import (
	"github.com/heavy-go/hv/internal/core/ecs"
)

// Space is a container for Objects and their components. It wraps one entity
// store and refuses any Object that belongs to a different space.
//
// A Space is not safe for concurrent use. While a query over it runs, only
// component values may be modified; structural changes must be queued on a
// CommandBuffer and applied after the query returns.
type Space struct {
	id    SpaceID
	world *ecs.World
}

// ID returns the unique identifier of this space.
func (s *Space) ID() SpaceID { return s.id }

// World exposes the underlying entity store for serializers.
func (s *Space) World() *ecs.World { return s.world }

// ReplaceWorld swaps in a fully built entity store. Deserialization builds a
// staging world and installs it only once decoding succeeded.
func (s *Space) ReplaceWorld(w *ecs.World) { s.world = w }

func (s *Space) wrap(e ecs.EntityID) Object {
	return Object{space: s.id, entity: e}
}

func (s *Space) owns(o Object) bool {
	return o.space == s.id
}

// Spawn creates an object with the given components.
func (s *Space) Spawn(components ...ecs.Component) Object {
	return s.wrap(s.world.Spawn(components...))
}

// SpawnAt creates an object at an entity handle, typically one obtained from
// ReserveObject. An existing object with that handle loses all its components
// and is replaced.
func (s *Space) SpawnAt(entity ecs.EntityID, components ...ecs.Component) (Object, error) {
	if err := s.world.SpawnAt(entity, components...); err != nil {
		return Object{}, err
	}
	return s.wrap(entity), nil
}

// SpawnBatch spawns one object per bundle.
func (s *Space) SpawnBatch(bundles [][]ecs.Component) []Object {
	out := make([]Object, len(bundles))
	for i, b := range bundles {
		out[i] = s.Spawn(b...)
	}
	return out
}

// SpawnColumnBatch spawns a column batch at its recorded entity handles.
func (s *Space) SpawnColumnBatch(batch *ecs.ColumnBatch) ([]Object, error) {
	ids, err := s.world.SpawnColumnBatch(batch)
	if err != nil {
		return nil, err
	}
	out := make([]Object, len(ids))
	for i, id := range ids {
		out[i] = s.wrap(id)
	}
	return out, nil
}

// ReserveObject reserves an Object handle without creating the object. The
// object becomes real on the next Flush or structural operation, such as an
// Insert onto it. Reserving is allowed during a query.
func (s *Space) ReserveObject() Object {
	return s.wrap(s.world.Reserve())
}

// ReserveObjects reserves n Object handles; see ReserveObject.
func (s *Space) ReserveObjects(n uint32) []Object {
	ids := s.world.ReserveN(n)
	out := make([]Object, len(ids))
	for i, id := range ids {
		out[i] = s.wrap(id)
	}
	return out
}

// Flush turns reserved objects into empty live objects. Spawn, Insert, Remove
// and Despawn flush implicitly; call Flush before iterating if objects were
// only reserved.
func (s *Space) Flush() {
	s.world.Flush()
}

// Despawn removes an object and drops all of its components.
func (s *Space) Despawn(o Object) error {
	if !s.owns(o) {
		return ErrWrongSpace
	}
	return translate(s.world.Despawn(o.entity))
}

// Contains reports whether o is a live object of this space.
func (s *Space) Contains(o Object) bool {
	return s.owns(o) && s.world.Contains(o.entity)
}

// Insert adds components to an object, replacing components of the same type.
func (s *Space) Insert(o Object, components ...ecs.Component) error {
	if !s.owns(o) {
		return ErrWrongSpace
	}
	return translate(s.world.Insert(o.entity, components...))
}

// InsertOne adds a single component to an object.
func (s *Space) InsertOne(o Object, component ecs.Component) error {
	return s.Insert(o, component)
}

// FindObjectFromEntity attaches this space's ID to a raw entity handle if the
// entity is alive here.
func (s *Space) FindObjectFromEntity(e ecs.EntityID) (Object, bool) {
	if !s.world.Contains(e) {
		return Object{}, false
	}
	return s.wrap(e), true
}

// FindObjectFromSlot recovers the live object occupying an entity slot.
func (s *Space) FindObjectFromSlot(slot uint32) (Object, bool) {
	e, ok := s.world.Find(slot)
	if !ok {
		return Object{}, false
	}
	return s.wrap(e), true
}

// Objects returns every live object in slot order.
func (s *Space) Objects() []Object {
	out := make([]Object, 0, s.world.Len())
	s.world.Each(func(e ecs.EntityID) { out = append(out, s.wrap(e)) })
	return out
}

// EachObject visits every live object in slot order.
func (s *Space) EachObject(fn func(Object)) {
	s.world.Each(func(e ecs.EntityID) { fn(s.wrap(e)) })
}

// Archetypes groups the objects of this space by component set.
func (s *Space) Archetypes() []*ecs.Archetype {
	return s.world.Archetypes()
}

// Clear despawns every object.
func (s *Space) Clear() {
	s.world.Clear()
}

// Len returns the number of live objects.
func (s *Space) Len() int {
	return s.world.Len()
}

func (s *Space) IsEmpty() bool {
	return s.world.Len() == 0
}
