package serialize

import (
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"

	"github.com/heavy-go/hv/internal/core/ecs"
	"github.com/heavy-go/hv/internal/spaces"
	"github.com/heavy-go/hv/internal/wire"
)

// Serializer writes spaces as two streams: the object stream holds entity
// handles and component columns, the value stream holds every Lua value the
// columns refer to by slot.
//
// Object stream layout, little-endian:
//
//	u32 archetype count
//	per archetype:
//	  u32 entity count, u64 entity handle per entity
//	  u32 column count, codec name per column in name order
//	  column blob per column in reverse name order
type Serializer struct {
	codecs  *Registry
	runtime Runtime
	log     *zap.Logger
}

// Snapshot is an in-memory copy of both streams.
type Snapshot struct {
	Objects []byte
	Values  []byte
}

func NewSerializer(codecs *Registry, rt Runtime, log *zap.Logger) *Serializer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Serializer{codecs: codecs, runtime: rt, log: log}
}

func (z *Serializer) Codecs() *Registry { return z.codecs }

// Snapshot serializes s into memory. The value stream is the marshalled
// value table without framing.
func (z *Serializer) Snapshot(s *spaces.Space) (*Snapshot, error) {
	ctx := NewContext(s.ID(), z.runtime)
	objects, err := z.encodeObjects(ctx, s)
	if err != nil {
		return nil, err
	}
	values, err := ctx.DumpLuaValues()
	if err != nil {
		return nil, fmt.Errorf("dump lua values: %w", err)
	}
	z.log.Debug("serialized space",
		zap.Stringer("space", s.ID()),
		zap.Int("objects", s.Len()),
		zap.Int("lua_values", ctx.LuaValueCount()),
		zap.Int("bytes", len(objects)+len(values)))
	return &Snapshot{Objects: objects, Values: values}, nil
}

// Restore replaces the contents of s with a snapshot. On error s is left as
// it was, except that finalizer failures are reported after the swap.
func (z *Serializer) Restore(s *spaces.Space, snap *Snapshot) error {
	ctx, err := NewContextWithLuaValues(s.ID(), z.runtime, snap.Values)
	if err != nil {
		return err
	}
	world, seen, err := z.decodeObjects(ctx, snap.Objects)
	if err != nil {
		return err
	}
	s.ReplaceWorld(world)
	z.log.Debug("deserialized space",
		zap.Stringer("space", s.ID()),
		zap.Int("objects", s.Len()),
		zap.Int("lua_values", ctx.LuaValueCount()))
	return z.finalize(ctx, s, seen)
}

// SerializeSeparate writes the object stream to objects and the value stream,
// as one length-prefixed blob, to values.
func (z *Serializer) SerializeSeparate(s *spaces.Space, objects, values io.Writer) error {
	snap, err := z.Snapshot(s)
	if err != nil {
		return err
	}
	if _, err := objects.Write(snap.Objects); err != nil {
		return fmt.Errorf("write objects: %w", err)
	}
	vw := wire.NewWriter()
	vw.WriteBlob(snap.Values)
	if _, err := vw.WriteTo(values); err != nil {
		return fmt.Errorf("write values: %w", err)
	}
	return nil
}

// DeserializeSeparate reads streams written by SerializeSeparate into s.
func (z *Serializer) DeserializeSeparate(s *spaces.Space, objects, values io.Reader) error {
	obj, err := io.ReadAll(objects)
	if err != nil {
		return fmt.Errorf("read objects: %w", err)
	}
	raw, err := io.ReadAll(values)
	if err != nil {
		return fmt.Errorf("read values: %w", err)
	}
	r := wire.NewReader(raw)
	vals := r.ReadBlob()
	if err := r.Err(); err != nil {
		return fmt.Errorf("read values: %w", err)
	}
	return z.Restore(s, &Snapshot{Objects: obj, Values: vals})
}

// SerializeWhole writes both streams to w as two length-prefixed blobs.
func (z *Serializer) SerializeWhole(s *spaces.Space, w io.Writer) error {
	snap, err := z.Snapshot(s)
	if err != nil {
		return err
	}
	_, err = snap.WriteTo(w)
	return err
}

// DeserializeWhole reads a stream written by SerializeWhole into s. Bytes
// after the second blob are ignored.
func (z *Serializer) DeserializeWhole(s *spaces.Space, r io.Reader) error {
	snap, err := ReadSnapshot(r)
	if err != nil {
		return err
	}
	return z.Restore(s, snap)
}

// WriteTo writes the snapshot in the whole-stream format.
func (snap *Snapshot) WriteTo(w io.Writer) (int64, error) {
	ww := wire.NewWriter()
	ww.WriteBlob(snap.Objects)
	ww.WriteBlob(snap.Values)
	n, err := ww.WriteTo(w)
	if err != nil {
		return n, fmt.Errorf("write snapshot: %w", err)
	}
	return n, nil
}

// Bytes returns the snapshot in the whole-stream format.
func (snap *Snapshot) Bytes() []byte {
	ww := wire.NewWriter()
	ww.WriteBlob(snap.Objects)
	ww.WriteBlob(snap.Values)
	return ww.Bytes()
}

// ReadSnapshot reads a whole-stream snapshot.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return ParseSnapshot(raw)
}

// ParseSnapshot splits a whole-stream snapshot into its two streams.
func ParseSnapshot(raw []byte) (*Snapshot, error) {
	wr := wire.NewReader(raw)
	snap := &Snapshot{Objects: wr.ReadBlob(), Values: wr.ReadBlob()}
	if err := wr.Err(); err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return snap, nil
}

func (z *Serializer) encodeObjects(ctx *Context, s *spaces.Space) ([]byte, error) {
	world := s.World()
	world.Flush()
	archetypes := world.Archetypes()

	w := wire.NewWriter()
	w.WriteU32(uint32(len(archetypes)))
	queue := make([]*Codec, 0, z.codecs.Len())
	for _, a := range archetypes {
		w.WriteU32(uint32(a.Len()))
		for _, id := range a.Entities() {
			w.WriteU64(uint64(id))
		}

		queue = queue[:0]
		for _, c := range z.codecs.Codecs() {
			if a.Has(c.typ) {
				queue = append(queue, c)
			}
		}
		w.WriteU32(uint32(len(queue)))
		for _, c := range queue {
			w.WriteString(c.name)
		}
		for len(queue) > 0 {
			c := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			data, err := c.encode(ctx, world, a)
			if err != nil {
				return nil, fmt.Errorf("encode %s: %w", c.name, err)
			}
			w.WriteBlob(data)
		}
	}
	z.log.Debug("encoded object stream",
		zap.Int("archetypes", len(archetypes)),
		zap.Int("bytes", w.Len()))
	return w.Bytes(), nil
}

// decodeObjects builds a new world from an object stream. It returns the
// names of every codec that contributed a column.
func (z *Serializer) decodeObjects(ctx *Context, data []byte) (*ecs.World, []string, error) {
	r := wire.NewReader(data)
	world := ecs.NewWorld()
	seen := make(map[string]struct{})
	// Slots claimed by earlier archetypes.
	slots := make(map[uint32]struct{})

	count := r.ReadU32()
	queue := make([]*Codec, 0, z.codecs.Len())
	for i := uint32(0); i < count && r.Err() == nil; i++ {
		n := r.ReadU32()
		if uint64(n)*8 > uint64(r.Remaining()) {
			return nil, nil, fmt.Errorf("archetype %d: %w: %d entities", i, wire.ErrShortRead, n)
		}
		ids := make([]ecs.EntityID, n)
		for j := range ids {
			ids[j] = ecs.EntityID(r.ReadU64())
		}
		for _, id := range ids {
			if _, dup := slots[id.Index()]; dup {
				return nil, nil, fmt.Errorf("archetype %d: %w: index %d appears in two archetypes",
					i, ecs.ErrInvalidEntity, id.Index())
			}
		}

		names := r.ReadU32()
		if uint64(names)*4 > uint64(r.Remaining()) {
			return nil, nil, fmt.Errorf("archetype %d: %w: %d columns", i, wire.ErrShortRead, names)
		}
		queue = queue[:0]
		for j := uint32(0); j < names; j++ {
			name := r.ReadString()
			if err := r.Err(); err != nil {
				return nil, nil, fmt.Errorf("archetype %d: %w", i, err)
			}
			c, ok := z.codecs.Lookup(name)
			if !ok {
				return nil, nil, fmt.Errorf("archetype %d: %w: %q", i, ErrUnknownCodec, name)
			}
			queue = append(queue, c)
			seen[name] = struct{}{}
		}

		batch := ecs.NewColumnBatch(ids)
		for len(queue) > 0 {
			c := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			blob := r.ReadBlob()
			if err := r.Err(); err != nil {
				return nil, nil, fmt.Errorf("archetype %d: %w: %s: %w", i, ErrMissingColumn, c.name, err)
			}
			comps, err := c.decode(ctx, blob, int(n))
			if err != nil {
				return nil, nil, fmt.Errorf("archetype %d: decode %s: %w", i, c.name, err)
			}
			if err := batch.Add(c.typ, comps); err != nil {
				return nil, nil, fmt.Errorf("archetype %d: %s: %w", i, c.name, err)
			}
		}
		if _, err := world.SpawnColumnBatch(batch); err != nil {
			return nil, nil, fmt.Errorf("archetype %d: %w", i, err)
		}
		for _, id := range ids {
			slots[id.Index()] = struct{}{}
		}
	}
	if err := r.Err(); err != nil {
		return nil, nil, err
	}

	order := make([]string, 0, len(seen))
	for name := range seen {
		order = append(order, name)
	}
	sort.Strings(order)
	z.log.Debug("decoded object stream",
		zap.Uint32("archetypes", count),
		zap.Int("objects", world.Len()),
		zap.Strings("codecs", order))
	return world, order, nil
}

func (z *Serializer) finalize(ctx *Context, s *spaces.Space, names []string) error {
	for _, name := range names {
		c, _ := z.codecs.Lookup(name)
		if c.finalize == nil {
			continue
		}
		z.log.Debug("running codec finalizer", zap.String("codec", name))
		if err := c.finalize(ctx, s); err != nil {
			return fmt.Errorf("finalize %s: %w", name, err)
		}
	}
	return nil
}
