package objtable

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/multierr"

	"github.com/heavy-go/hv/internal/component"
	"github.com/heavy-go/hv/internal/core/arena"
	"github.com/heavy-go/hv/internal/core/ecs"
	"github.com/heavy-go/hv/internal/scripting"
	"github.com/heavy-go/hv/internal/serialize"
	"github.com/heavy-go/hv/internal/spaces"
)

func newEngine(t *testing.T) *scripting.Engine {
	t.Helper()
	e, err := scripting.NewEngine("", nil)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestInsertAndLookup(t *testing.T) {
	e := newEngine(t)
	s := spaces.NewRegistry().CreateSpace()
	o := s.Spawn()
	tbl := e.State().NewTable()

	r := NewRegistry()
	c, err := r.Insert(tbl, o)
	require.NoError(t, err)
	require.Equal(t, 1, r.Len())

	idx, got, ok := r.ByObject(o)
	require.True(t, ok)
	require.Equal(t, c.Index, idx)
	require.Same(t, tbl, got)

	entry, ok := r.ByIndex(c.Index)
	require.True(t, ok)
	require.True(t, entry.Linked)
	require.Equal(t, o, entry.Object)

	_, err = r.Insert(e.State().NewTable(), o)
	require.ErrorIs(t, err, ErrAlreadyLinked)
	_, err = r.Insert(tbl, s.Spawn())
	require.ErrorIs(t, err, ErrAlreadyLinked)

	require.True(t, r.Remove(c.Index))
	require.False(t, r.Remove(c.Index))
	_, _, ok = r.ByObject(o)
	require.False(t, ok)
	require.Equal(t, 0, r.Len())
}

func TestPartialEntries(t *testing.T) {
	e := newEngine(t)
	s := spaces.NewRegistry().CreateSpace()
	a, b := s.Spawn(), s.Spawn()

	r := NewRegistry()
	tbl := e.State().NewTable()
	c := r.InsertPartialEntry(tbl)
	require.Equal(t, c, r.InsertPartialEntry(tbl))

	entry, ok := r.ByIndex(c.Index)
	require.True(t, ok)
	require.False(t, entry.Linked)
	_, _, ok = r.ByObject(a)
	require.False(t, ok)

	require.NoError(t, r.LinkPartialEntryToObject(a, c.Index))
	require.NoError(t, r.LinkPartialEntryToObject(a, c.Index))
	require.ErrorIs(t, r.LinkPartialEntryToObject(b, c.Index), ErrAlreadyLinked)

	other := r.InsertPartialEntry(e.State().NewTable())
	require.ErrorIs(t, r.LinkPartialEntryToObject(a, other.Index), ErrAlreadyLinked)
	require.ErrorIs(t, r.LinkPartialEntryToObject(b, arena.NewIndex(40, 1)), ErrNoSuchEntry)
}

func TestPrune(t *testing.T) {
	e := newEngine(t)
	reg := spaces.NewRegistry()
	s := reg.CreateSpace()
	other := reg.CreateSpace()

	r := NewRegistry()
	live, dead := s.Spawn(), s.Spawn()
	elsewhere := other.Spawn()
	for _, o := range []spaces.Object{live, dead, elsewhere} {
		_, err := r.Insert(e.State().NewTable(), o)
		require.NoError(t, err)
	}
	require.NoError(t, s.Despawn(dead))
	require.NoError(t, other.Despawn(elsewhere))

	require.Equal(t, 1, r.Prune(s))
	require.Equal(t, 2, r.Len())
	_, _, ok := r.ByObject(live)
	require.True(t, ok)
	_, _, ok = r.ByObject(elsewhere)
	require.True(t, ok)
}

func TestCodecRoundTrip(t *testing.T) {
	e := newEngine(t)
	tables := NewRegistry()
	codecs := serialize.NewRegistry()
	require.NoError(t, component.Register(codecs))
	codecs.MustRegister(tables.Codec())
	ser := serialize.NewSerializer(codecs, e, nil)

	reg := spaces.NewRegistry()
	src := reg.CreateSpace()
	state := e.State().NewTable()
	state.RawSetString("mood", lua.LString("calm"))
	o := src.Spawn(ecs.With(component.Name{Value: "npc"}))
	c, err := tables.Insert(state, o)
	require.NoError(t, err)
	require.NoError(t, src.InsertOne(o, ecs.With(c)))

	snap, err := ser.Snapshot(src)
	require.NoError(t, err)

	dst := reg.CreateSpace()
	require.NoError(t, ser.Restore(dst, snap))

	loaded, ok := dst.FindObjectFromEntity(o.Entity())
	require.True(t, ok)
	lc, err := spaces.Get[Component](dst, loaded)
	require.NoError(t, err)
	require.NotEqual(t, c.Index, lc.Index)

	idx, tbl, ok := tables.ByObject(loaded)
	require.True(t, ok)
	require.Equal(t, lc.Index, idx)
	require.NotSame(t, state, tbl)
	require.Equal(t, lua.LString("calm"), tbl.RawGetString("mood"))
	require.Equal(t, 2, tables.Len())

	// Restoring over the same space replaces the entry bound to the handle.
	require.NoError(t, ser.Restore(dst, snap))
	idx2, _, ok := tables.ByObject(loaded)
	require.True(t, ok)
	require.NotEqual(t, idx, idx2)
	require.Equal(t, 2, tables.Len())
}

func TestCodecRejectsUnknownEntry(t *testing.T) {
	e := newEngine(t)
	tables := NewRegistry()
	codecs := serialize.NewRegistry()
	codecs.MustRegister(tables.Codec())
	ser := serialize.NewSerializer(codecs, e, nil)

	src := spaces.NewRegistry().CreateSpace()
	src.Spawn(ecs.With(Component{Index: arena.NewIndex(3, 1)}))
	_, err := ser.Snapshot(src)
	require.ErrorIs(t, err, ErrNoSuchEntry)
}

func TestFinalizerReportsConflicts(t *testing.T) {
	e := newEngine(t)
	tables := NewRegistry()
	codecs := serialize.NewRegistry()
	codec := tables.Codec()
	require.True(t, codec.HasFinalizer())
	codecs.MustRegister(codec)
	ser := serialize.NewSerializer(codecs, e, nil)

	reg := spaces.NewRegistry()
	src := reg.CreateSpace()
	shared, err := tables.Insert(e.State().NewTable(), src.Spawn())
	require.NoError(t, err)
	src.Spawn(ecs.With(shared))
	src.Spawn(ecs.With(shared))
	src.Spawn(ecs.With(shared))

	snap, err := ser.Snapshot(src)
	require.NoError(t, err)
	dst := reg.CreateSpace()
	err = ser.Restore(dst, snap)
	require.ErrorIs(t, err, ErrAlreadyLinked)
	require.Len(t, multierr.Errors(errors.Unwrap(err)), 2)
	require.Equal(t, 4, dst.Len())
}
