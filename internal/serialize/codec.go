package serialize

import (
	"fmt"
	"math"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	lua "github.com/yuin/gopher-lua"
	"gopkg.in/yaml.v3"

	"github.com/heavy-go/hv/internal/core/ecs"
	"github.com/heavy-go/hv/internal/spaces"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{MaxArrayElements: math.MaxInt32}).DecMode(); err != nil {
		panic(err)
	}
}

type (
	encodeFunc   func(ctx *Context, w *ecs.World, a *ecs.Archetype) ([]byte, error)
	decodeFunc   func(ctx *Context, data []byte, n int) ([]ecs.Component, error)
	yamlFunc     func(node *yaml.Node) (ecs.Component, error)
	FinalizeFunc func(ctx *Context, s *spaces.Space) error
)

// Codec serializes one component type as a column. Codecs are looked up by
// name when reading a stream, so a codec's name must stay stable across
// versions of the program.
type Codec struct {
	name     string
	typ      reflect.Type
	encode   encodeFunc
	decode   decodeFunc
	yaml     yamlFunc
	finalize FinalizeFunc
}

func (c *Codec) Name() string       { return c.name }
func (c *Codec) Type() reflect.Type { return c.typ }
func (c *Codec) HasFinalizer() bool { return c.finalize != nil }
func (c *Codec) SupportsYAML() bool { return c.yaml != nil }

// WithFinalizer sets a hook that runs once after a stream containing this
// codec's column has been fully loaded into a space.
func (c *Codec) WithFinalizer(fn FinalizeFunc) *Codec {
	c.finalize = fn
	return c
}

// WithYAML overrides how the component is read from a prefab document.
func (c *Codec) WithYAML(fn func(node *yaml.Node) (ecs.Component, error)) *Codec {
	c.yaml = fn
	return c
}

// DecodeYAML builds a component from a prefab document node.
func (c *Codec) DecodeYAML(node *yaml.Node) (ecs.Component, error) {
	if c.yaml == nil {
		return ecs.Component{}, fmt.Errorf("codec %s: yaml not supported", c.name)
	}
	comp, err := c.yaml(node)
	if err != nil {
		return ecs.Component{}, fmt.Errorf("codec %s: %w", c.name, err)
	}
	return comp, nil
}

func checkCount(got, want int) error {
	if got != want {
		return fmt.Errorf("%w: got %d, want %d", ErrCountMismatch, got, want)
	}
	return nil
}

// WithBinary builds a codec that writes a column of T as a CBOR array.
func WithBinary[T any](name string) *Codec {
	return &Codec{
		name: name,
		typ:  ecs.TypeOf[T](),
		encode: func(_ *Context, w *ecs.World, a *ecs.Archetype) ([]byte, error) {
			col := ecs.Column[T](w, a)
			vals := make([]T, len(col))
			for i, p := range col {
				vals[i] = *p
			}
			return encMode.Marshal(vals)
		},
		decode: func(_ *Context, data []byte, n int) ([]ecs.Component, error) {
			var vals []T
			if err := decMode.Unmarshal(data, &vals); err != nil {
				return nil, err
			}
			if err := checkCount(len(vals), n); err != nil {
				return nil, err
			}
			out := make([]ecs.Component, len(vals))
			for i, v := range vals {
				out[i] = ecs.With(v)
			}
			return out, nil
		},
		yaml: func(node *yaml.Node) (ecs.Component, error) {
			var v T
			if err := node.Decode(&v); err != nil {
				return ecs.Component{}, err
			}
			return ecs.With(v), nil
		},
	}
}

// WithEncoder builds a codec that converts each T into a plain wire form W
// before CBOR encoding. The conversions get the Context, which components
// holding Object handles need.
func WithEncoder[T, W any](name string, to func(*Context, *T) (W, error), from func(*Context, W) (T, error)) *Codec {
	return &Codec{
		name: name,
		typ:  ecs.TypeOf[T](),
		encode: func(ctx *Context, w *ecs.World, a *ecs.Archetype) ([]byte, error) {
			col := ecs.Column[T](w, a)
			vals := make([]W, len(col))
			for i, p := range col {
				v, err := to(ctx, p)
				if err != nil {
					return nil, err
				}
				vals[i] = v
			}
			return encMode.Marshal(vals)
		},
		decode: func(ctx *Context, data []byte, n int) ([]ecs.Component, error) {
			var vals []W
			if err := decMode.Unmarshal(data, &vals); err != nil {
				return nil, err
			}
			if err := checkCount(len(vals), n); err != nil {
				return nil, err
			}
			out := make([]ecs.Component, len(vals))
			for i, v := range vals {
				t, err := from(ctx, v)
				if err != nil {
					return nil, err
				}
				out[i] = ecs.With(t)
			}
			return out, nil
		},
	}
}

// LuaValue is implemented by pointers to components whose state lives in the
// Lua heap.
type LuaValue[T any] interface {
	*T
	ToLua(ctx *Context) (lua.LValue, error)
	FromLua(ctx *Context, v lua.LValue) error
}

// WithLua builds a codec for components backed by Lua values. Each value goes
// into the context's opaque value table and the column stores only its slot.
func WithLua[T any, PT LuaValue[T]](name string) *Codec {
	return &Codec{
		name: name,
		typ:  ecs.TypeOf[T](),
		encode: func(ctx *Context, w *ecs.World, a *ecs.Archetype) ([]byte, error) {
			col := ecs.Column[T](w, a)
			slots := make([]uint32, len(col))
			for i, p := range col {
				v, err := PT(p).ToLua(ctx)
				if err != nil {
					return nil, err
				}
				slots[i] = ctx.SerializeLuaValue(v)
			}
			return encMode.Marshal(slots)
		},
		decode: func(ctx *Context, data []byte, n int) ([]ecs.Component, error) {
			var slots []uint32
			if err := decMode.Unmarshal(data, &slots); err != nil {
				return nil, err
			}
			if err := checkCount(len(slots), n); err != nil {
				return nil, err
			}
			out := make([]ecs.Component, len(slots))
			for i, slot := range slots {
				v, err := ctx.DeserializeLuaValue(slot)
				if err != nil {
					return nil, err
				}
				var t T
				if err := PT(&t).FromLua(ctx, v); err != nil {
					return nil, err
				}
				out[i] = ecs.With(t)
			}
			return out, nil
		},
	}
}
