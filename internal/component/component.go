package component

import (
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/heavy-go/hv/internal/serialize"
	"github.com/heavy-go/hv/internal/spaces"
)

// Position is an object's location in its space.
// Pure data, zero methods.
type Position struct {
	X float64 `cbor:"x" yaml:"x"`
	Y float64 `cbor:"y" yaml:"y"`
}

// Velocity is the per-tick displacement applied to Position.
type Velocity struct {
	X float64 `cbor:"x" yaml:"x"`
	Y float64 `cbor:"y" yaml:"y"`
}

// Name is a display name, not an identifier.
type Name struct {
	Value string `cbor:"v" yaml:"value"`
}

// Parent links an object to another object of the same space.
type Parent struct {
	Object spaces.Object
}

// Script holds scripted per-object state that lives in the Lua heap.
type Script struct {
	State lua.LValue
}

func (s *Script) ToLua(*serialize.Context) (lua.LValue, error) {
	if s.State == nil || s.State == lua.LNil {
		return nil, errors.New("script state is nil")
	}
	return s.State, nil
}

func (s *Script) FromLua(_ *serialize.Context, v lua.LValue) error {
	s.State = v
	return nil
}

// Codec names. These appear in saved streams and must not change.
const (
	PositionCodec = "hv.Position"
	VelocityCodec = "hv.Velocity"
	NameCodec     = "hv.Name"
	ParentCodec   = "hv.Parent"
	ScriptCodec   = "hv.Script"
)

// Codecs returns the codecs for every engine component.
func Codecs() []*serialize.Codec {
	return []*serialize.Codec{
		serialize.WithBinary[Position](PositionCodec),
		serialize.WithBinary[Velocity](VelocityCodec),
		serialize.WithBinary[Name](NameCodec),
		serialize.WithEncoder[Parent, uint64](ParentCodec,
			func(ctx *serialize.Context, p *Parent) (uint64, error) {
				return ctx.EncodeObject(p.Object)
			},
			func(ctx *serialize.Context, raw uint64) (Parent, error) {
				return Parent{Object: ctx.DecodeObject(raw)}, nil
			},
		),
		serialize.WithLua[Script](ScriptCodec),
	}
}

// Register adds the engine component codecs to reg.
func Register(reg *serialize.Registry) error {
	for _, c := range Codecs() {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register %s: %w", c.Name(), err)
		}
	}
	return nil
}
