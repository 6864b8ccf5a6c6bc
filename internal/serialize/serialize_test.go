package serialize_test

import (
	"bytes"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/heavy-go/hv/internal/component"
	"github.com/heavy-go/hv/internal/core/ecs"
	"github.com/heavy-go/hv/internal/scripting"
	"github.com/heavy-go/hv/internal/serialize"
	"github.com/heavy-go/hv/internal/spaces"
	"github.com/heavy-go/hv/internal/wire"
)

type fixture struct {
	engine *scripting.Engine
	codecs *serialize.Registry
	ser    *serialize.Serializer
	spaces *spaces.Registry
}

func newFixture(t *testing.T, extra ...*serialize.Codec) *fixture {
	t.Helper()
	engine, err := scripting.NewEngine("", nil)
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	codecs := serialize.NewRegistry()
	require.NoError(t, component.Register(codecs))
	codecs.MustRegister(extra...)
	return &fixture{
		engine: engine,
		codecs: codecs,
		ser:    serialize.NewSerializer(codecs, engine, nil),
		spaces: spaces.NewRegistry(),
	}
}

func (f *fixture) emptyValues(t *testing.T) []byte {
	t.Helper()
	data, err := f.engine.Marshal(f.engine.State().NewTable())
	require.NoError(t, err)
	return data
}

func TestPositionScenario(t *testing.T) {
	f := newFixture(t)
	s1 := f.spaces.CreateSpace()
	o1 := s1.Spawn(ecs.With(component.Position{X: 1, Y: 2}))
	s2 := f.spaces.CreateSpace()

	_, err := spaces.Get[component.Position](s2, o1)
	require.ErrorIs(t, err, spaces.ErrWrongSpace)

	var buf bytes.Buffer
	require.NoError(t, f.ser.SerializeWhole(s1, &buf))

	s3 := f.spaces.CreateSpace()
	require.NoError(t, f.ser.DeserializeWhole(s3, &buf))
	require.Equal(t, 1, s3.Len())

	var got []component.Position
	spaces.Each(s3, func(_ spaces.Object, p *component.Position) { got = append(got, *p) })
	require.Equal(t, []component.Position{{X: 1, Y: 2}}, got)
}

func TestRoundTrip(t *testing.T) {
	f := newFixture(t)
	src := f.spaces.CreateSpace()

	shared := f.engine.State().NewTable()
	shared.RawSetString("hp", lua.LNumber(12))
	own := f.engine.State().NewTable()
	own.RawSetString("shared", shared)

	root := src.Spawn(ecs.With(component.Position{X: 1}), ecs.With(component.Name{Value: "root"}))
	mover := src.Spawn(ecs.With(component.Position{X: 2}), ecs.With(component.Velocity{X: 1, Y: -1}))
	child := src.Spawn(ecs.With(component.Name{Value: "child"}), ecs.With(component.Parent{Object: root}))
	a := src.Spawn(ecs.With(component.Script{State: shared}))
	b := src.Spawn(ecs.With(component.Script{State: shared}), ecs.With(component.Position{X: 9}))
	c := src.Spawn(ecs.With(component.Script{State: own}))
	empty := src.Spawn()
	require.NoError(t, src.Despawn(empty))
	gone := src.Spawn()
	require.NoError(t, src.Despawn(gone))

	snap, err := f.ser.Snapshot(src)
	require.NoError(t, err)

	dst := f.spaces.CreateSpace()
	require.NoError(t, f.ser.Restore(dst, snap))
	require.Equal(t, src.Len(), dst.Len())
	require.Len(t, dst.Archetypes(), len(src.Archetypes()))

	at := func(o spaces.Object) spaces.Object {
		found, ok := dst.FindObjectFromEntity(o.Entity())
		require.True(t, ok, "object %v missing", o)
		return found
	}

	p, err := spaces.Get[component.Position](dst, at(mover))
	require.NoError(t, err)
	require.Equal(t, component.Position{X: 2}, *p)
	v, err := spaces.Get[component.Velocity](dst, at(mover))
	require.NoError(t, err)
	require.Equal(t, component.Velocity{X: 1, Y: -1}, *v)
	has, err := spaces.Has[component.Name](dst, at(mover))
	require.NoError(t, err)
	require.False(t, has)

	parent, err := spaces.Get[component.Parent](dst, at(child))
	require.NoError(t, err)
	require.Equal(t, dst.ID(), parent.Object.Space())
	name, err := spaces.Get[component.Name](dst, parent.Object)
	require.NoError(t, err)
	require.Equal(t, "root", name.Value)

	sa, err := spaces.Get[component.Script](dst, at(a))
	require.NoError(t, err)
	sb, err := spaces.Get[component.Script](dst, at(b))
	require.NoError(t, err)
	sc, err := spaces.Get[component.Script](dst, at(c))
	require.NoError(t, err)

	ta := sa.State.(*lua.LTable)
	require.NotSame(t, shared, ta)
	require.Same(t, ta, sb.State)
	require.Same(t, ta, sc.State.(*lua.LTable).RawGetString("shared"))
	require.Equal(t, lua.LNumber(12), ta.RawGetString("hp"))

	require.False(t, dst.Contains(spaces.ObjectOf(dst.ID(), empty.Entity())))
	require.False(t, dst.Contains(spaces.ObjectOf(dst.ID(), gone.Entity())))
}

func TestRestoreReplacesContents(t *testing.T) {
	f := newFixture(t)
	src := f.spaces.CreateSpace()
	src.Spawn(ecs.With(component.Position{X: 1}))
	snap, err := f.ser.Snapshot(src)
	require.NoError(t, err)

	dst := f.spaces.CreateSpace()
	dst.Spawn(ecs.With(component.Name{Value: "old"}))
	dst.Spawn(ecs.With(component.Name{Value: "older"}))
	require.NoError(t, f.ser.Restore(dst, snap))
	require.Equal(t, 1, dst.Len())
}

func TestHeaderNamesSortedColumnsReversed(t *testing.T) {
	f := newFixture(t)
	s := f.spaces.CreateSpace()
	o := s.Spawn(
		ecs.With(component.Velocity{X: 3}),
		ecs.With(component.Name{Value: "n"}),
		ecs.With(component.Position{X: 1, Y: 2}),
	)
	snap, err := f.ser.Snapshot(s)
	require.NoError(t, err)

	r := wire.NewReader(snap.Objects)
	require.Equal(t, uint32(1), r.ReadU32())
	require.Equal(t, uint32(1), r.ReadU32())
	require.Equal(t, uint64(o.Entity()), r.ReadU64())
	require.Equal(t, uint32(3), r.ReadU32())
	require.Equal(t, component.NameCodec, r.ReadString())
	require.Equal(t, component.PositionCodec, r.ReadString())
	require.Equal(t, component.VelocityCodec, r.ReadString())

	var vel []component.Velocity
	require.NoError(t, cbor.Unmarshal(r.ReadBlob(), &vel))
	require.Equal(t, []component.Velocity{{X: 3}}, vel)
	var pos []component.Position
	require.NoError(t, cbor.Unmarshal(r.ReadBlob(), &pos))
	require.Equal(t, []component.Position{{X: 1, Y: 2}}, pos)
	var names []component.Name
	require.NoError(t, cbor.Unmarshal(r.ReadBlob(), &names))
	require.Equal(t, []component.Name{{Value: "n"}}, names)

	require.NoError(t, r.Err())
	require.Equal(t, 0, r.Remaining())
}

// objectStream writes one archetype with the given entities, header names and
// column blobs.
func objectStream(ids []ecs.EntityID, names []string, blobs ...[]byte) []byte {
	w := wire.NewWriter()
	w.WriteU32(1)
	w.WriteU32(uint32(len(ids)))
	for _, id := range ids {
		w.WriteU64(uint64(id))
	}
	w.WriteU32(uint32(len(names)))
	for _, n := range names {
		w.WriteString(n)
	}
	for _, b := range blobs {
		w.WriteBlob(b)
	}
	return w.Bytes()
}

// joinStreams merges single-archetype object streams into one stream.
func joinStreams(streams ...[]byte) []byte {
	w := wire.NewWriter()
	w.WriteU32(uint32(len(streams)))
	out := w.Bytes()
	for _, s := range streams {
		out = append(out, s[4:]...)
	}
	return out
}

func TestDecodeFailuresLeaveSpaceUntouched(t *testing.T) {
	f := newFixture(t)
	ids := []ecs.EntityID{ecs.NewEntityID(0, 1), ecs.NewEntityID(1, 1)}
	one, err := cbor.Marshal([]component.Position{{X: 1, Y: 2}})
	require.NoError(t, err)
	two, err := cbor.Marshal([]component.Position{{X: 1}, {X: 2}})
	require.NoError(t, err)

	cases := []struct {
		name    string
		objects []byte
		want    error
	}{
		{"count mismatch", objectStream(ids, []string{component.PositionCodec}, one), serialize.ErrCountMismatch},
		{"unknown codec", objectStream(ids, []string{"game.Nope"}, two), serialize.ErrUnknownCodec},
		{"missing column", objectStream(ids, []string{component.PositionCodec}), serialize.ErrMissingColumn},
		{"truncated", objectStream(ids, nil)[:10], wire.ErrShortRead},
		{"zero handle", objectStream([]ecs.EntityID{0}, nil), ecs.ErrInvalidEntity},
		{"handle in two archetypes", joinStreams(
			objectStream(ids[:1], []string{component.PositionCodec}, one),
			objectStream([]ecs.EntityID{ecs.NewEntityID(0, 2)}, nil),
		), ecs.ErrInvalidEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := f.spaces.CreateSpace()
			keep := s.Spawn(ecs.With(component.Name{Value: "keep"}))

			err := f.ser.Restore(s, &serialize.Snapshot{Objects: tc.objects, Values: f.emptyValues(t)})
			require.ErrorIs(t, err, tc.want)

			require.Equal(t, 1, s.Len())
			name, err := spaces.Get[component.Name](s, keep)
			require.NoError(t, err)
			require.Equal(t, "keep", name.Value)
		})
	}
}

func TestForeignObjectRejected(t *testing.T) {
	f := newFixture(t)
	other := f.spaces.CreateSpace()
	s := f.spaces.CreateSpace()
	s.Spawn(ecs.With(component.Parent{Object: other.Spawn()}))

	_, err := f.ser.Snapshot(s)
	require.ErrorIs(t, err, serialize.ErrForeignObject)
}

func TestSeparateStreams(t *testing.T) {
	f := newFixture(t)
	s := f.spaces.CreateSpace()
	state := f.engine.State().NewTable()
	state.RawSetString("k", lua.LString("v"))
	s.Spawn(ecs.With(component.Script{State: state}), ecs.With(component.Position{Y: 4}))

	var objects, values bytes.Buffer
	require.NoError(t, f.ser.SerializeSeparate(s, &objects, &values))

	dst := f.spaces.CreateSpace()
	require.NoError(t, f.ser.DeserializeSeparate(dst, &objects, &values))
	var got []string
	spaces.Each2(dst, func(_ spaces.Object, sc *component.Script, p *component.Position) {
		got = append(got, sc.State.(*lua.LTable).RawGetString("k").String())
		require.Equal(t, 4.0, p.Y)
	})
	require.Equal(t, []string{"v"}, got)
}

func TestWholeStreamToleratesTrailingBytes(t *testing.T) {
	f := newFixture(t)
	s := f.spaces.CreateSpace()
	s.Spawn(ecs.With(component.Velocity{X: 1}))

	var buf bytes.Buffer
	require.NoError(t, f.ser.SerializeWhole(s, &buf))
	buf.WriteString("trailing")

	dst := f.spaces.CreateSpace()
	require.NoError(t, f.ser.DeserializeWhole(dst, &buf))
	require.Equal(t, 1, dst.Len())

	snap, err := serialize.ParseSnapshot([]byte{1, 0})
	require.ErrorIs(t, err, wire.ErrShortRead)
	require.Nil(t, snap)
}

type counter struct{ N int }

func TestFinalizerRunsOncePerCodecSeen(t *testing.T) {
	runs := 0
	var seen *spaces.Space
	codec := serialize.WithBinary[counter]("test.Counter").
		WithFinalizer(func(ctx *serialize.Context, s *spaces.Space) error {
			runs++
			seen = s
			require.Equal(t, s.ID(), ctx.SpaceID())
			return nil
		})
	f := newFixture(t, codec)

	s := f.spaces.CreateSpace()
	s.Spawn(ecs.With(counter{1}))
	s.Spawn(ecs.With(counter{2}), ecs.With(component.Position{}))
	snap, err := f.ser.Snapshot(s)
	require.NoError(t, err)

	dst := f.spaces.CreateSpace()
	require.NoError(t, f.ser.Restore(dst, snap))
	require.Equal(t, 1, runs)
	require.Same(t, dst, seen)

	// No counter column, no finalizer.
	plain := f.spaces.CreateSpace()
	plain.Spawn(ecs.With(component.Position{}))
	snap, err = f.ser.Snapshot(plain)
	require.NoError(t, err)
	require.NoError(t, f.ser.Restore(f.spaces.CreateSpace(), snap))
	require.Equal(t, 1, runs)
}

func TestUnregisteredComponentsAreSkipped(t *testing.T) {
	f := newFixture(t)
	s := f.spaces.CreateSpace()
	s.Spawn(ecs.With(counter{1}), ecs.With(component.Position{X: 5}))
	snap, err := f.ser.Snapshot(s)
	require.NoError(t, err)

	dst := f.spaces.CreateSpace()
	require.NoError(t, f.ser.Restore(dst, snap))
	o, ok := dst.FindObjectFromSlot(0)
	require.True(t, ok)
	has, err := spaces.Has[counter](dst, o)
	require.NoError(t, err)
	require.False(t, has)
}
