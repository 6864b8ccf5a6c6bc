package ecs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type position struct{ X, Y float64 }
type velocity struct{ DX, DY float64 }
type tag struct{}

func TestEntityPoolGenerations(t *testing.T) {
	p := NewEntityPool()
	a := p.Create()
	require.Equal(t, uint32(0), a.Index())
	require.Equal(t, uint32(1), a.Generation())
	require.True(t, p.Alive(a))

	require.True(t, p.Destroy(a))
	require.False(t, p.Alive(a))
	require.False(t, p.Destroy(a), "double destroy is a no-op")

	b := p.Create()
	require.Equal(t, a.Index(), b.Index())
	require.Equal(t, a.Generation()+1, b.Generation())
	require.False(t, p.Alive(a))
	require.Equal(t, 1, p.Len())
}

func TestEntityPoolReserveFlush(t *testing.T) {
	p := NewEntityPool()
	r := p.Reserve()
	require.False(t, p.Alive(r))
	require.True(t, p.Pending())

	flushed := p.Flush()
	require.Equal(t, []EntityID{r}, flushed)
	require.True(t, p.Alive(r))
	require.False(t, p.Pending())
}

func TestEntityPoolClaim(t *testing.T) {
	p := NewEntityPool()
	id := NewEntityID(5, 3)
	_, replaced := p.Claim(id)
	require.False(t, replaced)
	require.True(t, p.Alive(id))
	require.Equal(t, 1, p.Len())

	// Indices below the claimed one are free for regular allocation.
	next := p.Create()
	require.Less(t, next.Index(), uint32(5))

	other := NewEntityID(5, 9)
	prev, replaced := p.Claim(other)
	require.True(t, replaced)
	require.Equal(t, id, prev)
	require.False(t, p.Alive(id))
	require.True(t, p.Alive(other))
	require.Equal(t, 2, p.Len())
}

func TestWorldSpawnGetRemove(t *testing.T) {
	w := NewWorld()
	e := w.Spawn(With(position{1, 2}), With(velocity{3, 4}))

	pos, err := Get[position](w, e)
	require.NoError(t, err)
	require.Equal(t, position{1, 2}, *pos)

	pos.X = 10
	pos, _ = Get[position](w, e)
	require.Equal(t, 10.0, pos.X)

	v, err := Remove[velocity](w, e)
	require.NoError(t, err)
	require.Equal(t, velocity{3, 4}, v)

	_, err = Get[velocity](w, e)
	var missing *MissingComponentError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, TypeOf[velocity](), missing.Type)

	require.NoError(t, w.Despawn(e))
	_, err = Get[position](w, e)
	require.ErrorIs(t, err, ErrNoSuchEntity)
	require.ErrorIs(t, w.Despawn(e), ErrNoSuchEntity)
	require.ErrorIs(t, w.Insert(e, With(tag{})), ErrNoSuchEntity)
}

func TestWorldInsertReplaces(t *testing.T) {
	w := NewWorld()
	e := w.Spawn(With(position{1, 1}))
	require.NoError(t, w.Insert(e, With(position{2, 2}), With(tag{})))

	pos, err := Get[position](w, e)
	require.NoError(t, err)
	require.Equal(t, position{2, 2}, *pos)
	require.True(t, Has[tag](w, e))
}

func TestWorldReservedEntityBecomesLiveOnInsert(t *testing.T) {
	w := NewWorld()
	r := w.Reserve()
	require.False(t, w.Contains(r))

	require.NoError(t, w.Insert(r, With(tag{})))
	require.True(t, w.Contains(r))
	require.Equal(t, 1, w.Len())
}

func TestWorldSpawnAtOverwrites(t *testing.T) {
	w := NewWorld()
	e := w.Spawn(With(position{1, 1}), With(tag{}))

	require.NoError(t, w.SpawnAt(e, With(velocity{1, 0})))
	require.False(t, Has[position](w, e))
	require.False(t, Has[tag](w, e))
	require.True(t, Has[velocity](w, e))
	require.Equal(t, 1, w.Len())

	require.ErrorIs(t, w.SpawnAt(NewEntityID(1, 0)), ErrInvalidEntity)
}

func TestArchetypesGrouping(t *testing.T) {
	w := NewWorld()
	a := w.Spawn(With(position{}), With(velocity{}))
	b := w.Spawn(With(position{}))
	c := w.Spawn(With(velocity{}), With(position{}))
	w.Spawn()

	archs := w.Archetypes()
	require.Len(t, archs, 3)

	require.Equal(t, []EntityID{a, c}, archs[0].Entities())
	require.True(t, archs[0].Has(TypeOf[position]()))
	require.True(t, archs[0].Has(TypeOf[velocity]()))
	require.Len(t, archs[0].Types(), 2)

	require.Equal(t, []EntityID{b}, archs[1].Entities())
	require.False(t, archs[1].Has(TypeOf[velocity]()))

	require.Empty(t, archs[2].Types())
	require.Equal(t, 1, archs[2].Len())
}

func TestColumn(t *testing.T) {
	w := NewWorld()
	w.Spawn(With(position{1, 0}))
	w.Spawn(With(position{2, 0}))

	archs := w.Archetypes()
	require.Len(t, archs, 1)
	col := Column[position](w, archs[0])
	require.Len(t, col, 2)
	require.Equal(t, 1.0, col[0].X)
	require.Equal(t, 2.0, col[1].X)
}

func TestEachBorrowsWorld(t *testing.T) {
	w := NewWorld()
	w.Spawn(With(position{}))
	w.Spawn(With(position{}), With(velocity{}))

	count := 0
	Each[position](w, func(_ EntityID, p *position) {
		p.X++
		count++
	})
	require.Equal(t, 2, count)

	count = 0
	Each2[position, velocity](w, func(EntityID, *position, *velocity) { count++ })
	require.Equal(t, 1, count)

	require.PanicsWithValue(t, ErrBorrowed, func() {
		Each[position](w, func(EntityID, *position) {
			w.Spawn(With(tag{}))
		})
	})
	require.False(t, w.Borrowed(), "borrow released after panic")

	// Reserving is allowed during iteration.
	Each[position](w, func(EntityID, *position) { w.Reserve() })
	w.Flush()
	require.Equal(t, 4, w.Len())
}

func TestEach3(t *testing.T) {
	w := NewWorld()
	w.Spawn(With(position{}), With(velocity{}), With(tag{}))
	w.Spawn(With(position{}), With(velocity{}))

	count := 0
	Each3[position, velocity, tag](w, func(EntityID, *position, *velocity, *tag) { count++ })
	require.Equal(t, 1, count)
}

func TestColumnBatch(t *testing.T) {
	w := NewWorld()
	ids := []EntityID{NewEntityID(2, 1), NewEntityID(0, 4)}
	b := NewColumnBatch(ids)

	require.ErrorIs(t, b.Add(TypeOf[position](), []Component{With(position{})}), ErrColumnLength)
	require.NoError(t, b.Add(TypeOf[position](), []Component{With(position{1, 1}), With(position{2, 2})}))
	require.Error(t, b.Add(TypeOf[position](), []Component{With(position{}), With(position{})}))

	spawned, err := w.SpawnColumnBatch(b)
	require.NoError(t, err)
	require.Equal(t, ids, spawned)

	pos, err := Get[position](w, ids[1])
	require.NoError(t, err)
	require.Equal(t, position{2, 2}, *pos)
	require.Equal(t, 2, w.Len())
}

func TestColumnBatchRejectsDuplicateIndex(t *testing.T) {
	b := NewColumnBatch([]EntityID{NewEntityID(1, 1), NewEntityID(1, 2)})
	require.ErrorIs(t, b.Validate(), ErrInvalidEntity)
}

func TestClear(t *testing.T) {
	w := NewWorld()
	e := w.Spawn(With(position{}))
	w.Clear()
	require.Zero(t, w.Len())
	require.False(t, Has[position](w, e))
}

func TestComponentsSnapshot(t *testing.T) {
	w := NewWorld()
	e := w.Spawn(With(position{1, 2}), With(tag{}))
	comps, err := w.Components(e)
	require.NoError(t, err)
	require.Len(t, comps, 2)

	other := w.Spawn(comps...)
	pos, err := Get[position](w, other)
	require.NoError(t, err)
	require.Equal(t, position{1, 2}, *pos)
}
