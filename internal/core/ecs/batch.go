package ecs

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrColumnLength is returned when a column does not hold one value per entity.
var ErrColumnLength = errors.New("ecs: column length does not match entity count")

// ColumnBatch stages whole columns of components for a fixed list of entity
// handles, to be spawned together. It is how a serialized archetype is
// materialized.
type ColumnBatch struct {
	entities []EntityID
	types    []reflect.Type
	columns  map[reflect.Type][]Component
}

func NewColumnBatch(entities []EntityID) *ColumnBatch {
	return &ColumnBatch{
		entities: entities,
		columns:  make(map[reflect.Type][]Component),
	}
}

func (b *ColumnBatch) Len() int              { return len(b.entities) }
func (b *ColumnBatch) Entities() []EntityID  { return b.entities }
func (b *ColumnBatch) Types() []reflect.Type { return b.types }

func (b *ColumnBatch) HasColumn(t reflect.Type) bool {
	_, ok := b.columns[t]
	return ok
}

// Add stages the column for type t. Every value must be of type t and there
// must be exactly one value per entity.
func (b *ColumnBatch) Add(t reflect.Type, values []Component) error {
	if _, dup := b.columns[t]; dup {
		return fmt.Errorf("ecs: duplicate column %v", t)
	}
	if len(values) != len(b.entities) {
		return fmt.Errorf("%w: column %v has %d values for %d entities",
			ErrColumnLength, t, len(values), len(b.entities))
	}
	for _, v := range values {
		if v.typ != t {
			return fmt.Errorf("ecs: column %v holds a %v value", t, v.typ)
		}
	}
	b.types = append(b.types, t)
	b.columns[t] = values
	return nil
}

// Validate checks that every entity handle is usable and unique.
func (b *ColumnBatch) Validate() error {
	seen := make(map[uint32]struct{}, len(b.entities))
	for _, id := range b.entities {
		if id.Generation() == 0 {
			return fmt.Errorf("%w: %v", ErrInvalidEntity, id)
		}
		if _, dup := seen[id.Index()]; dup {
			return fmt.Errorf("%w: index %d appears twice", ErrInvalidEntity, id.Index())
		}
		seen[id.Index()] = struct{}{}
	}
	return nil
}

// SpawnColumnBatch spawns every staged entity at its handle with its row of
// column values.
func (w *World) SpawnColumnBatch(b *ColumnBatch) ([]EntityID, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	row := make([]Component, len(b.types))
	for i, id := range b.entities {
		for j, t := range b.types {
			row[j] = b.columns[t][i]
		}
		if err := w.SpawnAt(id, row...); err != nil {
			return nil, err
		}
	}
	return b.entities, nil
}
