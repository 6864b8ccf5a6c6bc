package scripting

import (
	"errors"
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"

	"github.com/heavy-go/hv/internal/wire"
)

// ErrUnsupportedValue is returned by Marshal for values that are neither
// plain data nor registered resources.
var ErrUnsupportedValue = errors.New("lua value cannot be marshalled")

// Value tags. Tables are numbered in the order they are first written;
// a repeated table is written as a reference to that number, which keeps
// shared tables shared and lets cycles terminate.
const (
	tagNil byte = iota
	tagFalse
	tagTrue
	tagNumber
	tagString
	tagTable
	tagRef
	tagResource
)

// maxDepth bounds table nesting on decode.
const maxDepth = 512

// Marshal encodes v. Metatables are not persisted.
func (e *Engine) Marshal(v lua.LValue) ([]byte, error) {
	m := marshaller{
		w:         wire.NewWriter(),
		tables:    make(map[*lua.LTable]uint32),
		resources: e.resources,
	}
	if err := m.value(v); err != nil {
		return nil, err
	}
	return m.w.Bytes(), nil
}

// Unmarshal decodes n values written back to back by Marshal calls. Each
// Marshal call numbers its tables from zero, so references resolve within
// the value they were written in.
func (e *Engine) Unmarshal(data []byte, n int) ([]lua.LValue, error) {
	u := unmarshaller{r: wire.NewReader(data), vm: e.vm, byName: e.byName}
	out := make([]lua.LValue, 0, n)
	for i := 0; i < n; i++ {
		u.tables = u.tables[:0]
		v, err := u.value(0)
		if err != nil {
			return nil, fmt.Errorf("unmarshal value %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

type marshaller struct {
	w         *wire.Writer
	tables    map[*lua.LTable]uint32
	resources map[lua.LValue]string
}

func (m *marshaller) value(v lua.LValue) error {
	if v == nil {
		m.w.WriteU8(tagNil)
		return nil
	}
	if name, ok := m.resources[v]; ok {
		m.w.WriteU8(tagResource)
		m.w.WriteString(name)
		return nil
	}
	switch lv := v.(type) {
	case *lua.LNilType:
		m.w.WriteU8(tagNil)
	case lua.LBool:
		if lv {
			m.w.WriteU8(tagTrue)
		} else {
			m.w.WriteU8(tagFalse)
		}
	case lua.LNumber:
		m.w.WriteU8(tagNumber)
		m.w.WriteF64(float64(lv))
	case lua.LString:
		m.w.WriteU8(tagString)
		m.w.WriteString(string(lv))
	case *lua.LTable:
		return m.table(lv)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedValue, v.Type())
	}
	return nil
}

func (m *marshaller) table(t *lua.LTable) error {
	if id, ok := m.tables[t]; ok {
		m.w.WriteU8(tagRef)
		m.w.WriteU32(id)
		return nil
	}
	m.tables[t] = uint32(len(m.tables))

	var count uint32
	t.ForEach(func(_, _ lua.LValue) { count++ })
	m.w.WriteU8(tagTable)
	m.w.WriteU32(count)

	var err error
	t.ForEach(func(k, v lua.LValue) {
		if err != nil {
			return
		}
		if err = m.value(k); err != nil {
			return
		}
		err = m.value(v)
	})
	return err
}

type unmarshaller struct {
	r      *wire.Reader
	vm     *lua.LState
	byName map[string]lua.LValue
	tables []*lua.LTable
}

func (u *unmarshaller) value(depth int) (lua.LValue, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("tables nested deeper than %d", maxDepth)
	}
	tag := u.r.ReadU8()
	if err := u.r.Err(); err != nil {
		return nil, err
	}
	switch tag {
	case tagNil:
		return lua.LNil, nil
	case tagFalse:
		return lua.LFalse, nil
	case tagTrue:
		return lua.LTrue, nil
	case tagNumber:
		f := u.r.ReadF64()
		return lua.LNumber(f), u.r.Err()
	case tagString:
		s := u.r.ReadString()
		return lua.LString(s), u.r.Err()
	case tagRef:
		id := u.r.ReadU32()
		if err := u.r.Err(); err != nil {
			return nil, err
		}
		if int(id) >= len(u.tables) {
			return nil, fmt.Errorf("reference to unknown table %d", id)
		}
		return u.tables[id], nil
	case tagResource:
		name := u.r.ReadString()
		if err := u.r.Err(); err != nil {
			return nil, err
		}
		v, ok := u.byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown resource %q", name)
		}
		return v, nil
	case tagTable:
		return u.table(depth)
	}
	return nil, fmt.Errorf("unknown value tag %d", tag)
}

func (u *unmarshaller) table(depth int) (lua.LValue, error) {
	count := u.r.ReadU32()
	if err := u.r.Err(); err != nil {
		return nil, err
	}
	// Every pair takes at least two bytes.
	if uint64(count)*2 > uint64(u.r.Remaining()) {
		return nil, fmt.Errorf("%w: table of %d pairs", wire.ErrShortRead, count)
	}
	t := u.vm.NewTable()
	u.tables = append(u.tables, t)
	for i := uint32(0); i < count; i++ {
		k, err := u.value(depth + 1)
		if err != nil {
			return nil, err
		}
		v, err := u.value(depth + 1)
		if err != nil {
			return nil, err
		}
		if k == lua.LNil {
			return nil, errors.New("table key is nil")
		}
		if n, ok := k.(lua.LNumber); ok && math.IsNaN(float64(n)) {
			return nil, errors.New("table key is NaN")
		}
		t.RawSet(k, v)
	}
	return t, nil
}
