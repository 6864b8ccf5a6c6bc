package spaces

import (
	"fmt"

	"github.com/heavy-go/hv/internal/core/arena"
	"github.com/heavy-go/hv/internal/core/ecs"
)

// SpaceID uniquely identifies a Space within the Registry that created it.
type SpaceID arena.Index

// InvalidSpaceID is held by a space that has not been registered yet.
const InvalidSpaceID SpaceID = 0

func (id SpaceID) IsValid() bool { return id != InvalidSpaceID }

func (id SpaceID) String() string {
	return arena.Index(id).String()
}

// Object is a handle to one entity inside one Space. It combines the owning
// SpaceID with the entity's generational handle, so an Object can never be
// used to reach an entity of another space.
type Object struct {
	space  SpaceID
	entity ecs.EntityID
}

// ObjectOf binds a raw entity handle to a space. It performs no validation and
// exists for serializers that rebuild handles relative to a known space.
func ObjectOf(space SpaceID, entity ecs.EntityID) Object {
	return Object{space: space, entity: entity}
}

// Space returns the ID of the space this object was spawned in.
func (o Object) Space() SpaceID { return o.space }

// Entity returns the entity handle inside the owning space.
func (o Object) Entity() ecs.EntityID { return o.entity }

// Slot returns the entity index without its generation. A slot alone may
// refer to a dead entity.
func (o Object) Slot() uint32 { return o.entity.Index() }

// Generation returns the entity generation.
func (o Object) Generation() uint32 { return o.entity.Generation() }

func (o Object) String() string {
	return fmt.Sprintf("%v.%d.%d", o.space, o.entity.Index(), o.entity.Generation())
}
