package serialize

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/heavy-go/hv/internal/core/ecs"
	"github.com/heavy-go/hv/internal/spaces"
)

// Runtime is the scripting capability used to persist opaque Lua values.
type Runtime interface {
	State() *lua.LState
	// Marshal encodes v, preserving shared references and cycles within it.
	Marshal(v lua.LValue) ([]byte, error)
	// Unmarshal decodes exactly n values from data.
	Unmarshal(data []byte, n int) ([]lua.LValue, error)
}

// Context carries the state shared by every codec during one serialization
// or deserialization of a space: the space being processed and the table of
// opaque Lua values referenced by slot from the object stream.
type Context struct {
	space   spaces.SpaceID
	runtime Runtime
	values  []lua.LValue
}

// NewContext creates a context with an empty value table.
func NewContext(space spaces.SpaceID, rt Runtime) *Context {
	return &Context{space: space, runtime: rt}
}

// NewContextWithLuaValues creates a context whose value table is decoded from
// a blob written by DumpLuaValues.
func NewContextWithLuaValues(space spaces.SpaceID, rt Runtime, blob []byte) (*Context, error) {
	vals, err := rt.Unmarshal(blob, 1)
	if err != nil {
		return nil, fmt.Errorf("unmarshal lua values: %w", err)
	}
	tbl, ok := vals[0].(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("unmarshal lua values: expected table, got %s", vals[0].Type())
	}

	keyed := make(map[int]lua.LValue)
	var bad error
	tbl.ForEach(func(k, v lua.LValue) {
		if bad != nil {
			return
		}
		n, ok := k.(lua.LNumber)
		if !ok || float64(n) != float64(int(n)) || int(n) < 1 {
			bad = fmt.Errorf("%w: key %s", ErrValueGaps, k.String())
			return
		}
		keyed[int(n)] = v
	})
	if bad != nil {
		return nil, bad
	}

	values := make([]lua.LValue, len(keyed))
	for k, v := range keyed {
		if k > len(values) {
			return nil, fmt.Errorf("%w: key %d with %d values", ErrValueGaps, k, len(values))
		}
		values[k-1] = v
	}
	return &Context{space: space, runtime: rt, values: values}, nil
}

// SpaceID returns the space currently being serialized or deserialized.
func (c *Context) SpaceID() spaces.SpaceID { return c.space }

func (c *Context) Runtime() Runtime { return c.runtime }

// State returns the Lua state values are created in.
func (c *Context) State() *lua.LState { return c.runtime.State() }

// SerializeLuaValue appends v to the value table and returns its slot.
func (c *Context) SerializeLuaValue(v lua.LValue) uint32 {
	c.values = append(c.values, v)
	return uint32(len(c.values) - 1)
}

// DeserializeLuaValue returns the value stored at slot.
func (c *Context) DeserializeLuaValue(slot uint32) (lua.LValue, error) {
	if int(slot) >= len(c.values) {
		return nil, fmt.Errorf("%w: %d of %d", ErrBadSlot, slot, len(c.values))
	}
	return c.values[slot], nil
}

// LuaValueCount returns the size of the value table.
func (c *Context) LuaValueCount() int { return len(c.values) }

// DumpLuaValues marshals the value table as a single Lua table
// {[1] = v0, [2] = v1, ...}.
func (c *Context) DumpLuaValues() ([]byte, error) {
	tbl := c.runtime.State().CreateTable(len(c.values), 0)
	for i, v := range c.values {
		if v == nil || v == lua.LNil {
			return nil, fmt.Errorf("%w: slot %d is nil", ErrValueGaps, i)
		}
		tbl.RawSetInt(i+1, v)
	}
	if n := tbl.Len(); n != len(c.values) {
		return nil, fmt.Errorf("%w: table length %d, want %d", ErrValueGaps, n, len(c.values))
	}
	return c.runtime.Marshal(tbl)
}

// EncodeObject converts an object handle into its stream form. Only objects
// of the space being serialized can be encoded.
func (c *Context) EncodeObject(o spaces.Object) (uint64, error) {
	if o.Space() != c.space {
		return 0, fmt.Errorf("%w: %v", ErrForeignObject, o)
	}
	return uint64(o.Entity()), nil
}

// DecodeObject rebuilds an object handle relative to the space being
// deserialized.
func (c *Context) DecodeObject(raw uint64) spaces.Object {
	return spaces.ObjectOf(c.space, ecs.EntityID(raw))
}
