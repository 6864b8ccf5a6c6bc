package serialize

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Registry holds the codecs a Serializer knows about. Streams only carry
// codec names, so reader and writer must register the same set.
type Registry struct {
	byName map[string]*Codec
	byType map[reflect.Type]*Codec
	sorted []*Codec
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Codec),
		byType: make(map[reflect.Type]*Codec),
	}
}

// Register adds a codec. Names and component types must both be unique.
func (r *Registry) Register(c *Codec) error {
	if _, ok := r.byName[c.name]; ok {
		return fmt.Errorf("%w: name %q", ErrDuplicateCodec, c.name)
	}
	if prev, ok := r.byType[c.typ]; ok {
		return fmt.Errorf("%w: type %v already registered as %q", ErrDuplicateCodec, c.typ, prev.name)
	}
	r.byName[c.name] = c
	r.byType[c.typ] = c

	i := sort.Search(len(r.sorted), func(i int) bool { return r.sorted[i].name >= c.name })
	r.sorted = append(r.sorted, nil)
	copy(r.sorted[i+1:], r.sorted[i:])
	r.sorted[i] = c
	return nil
}

// MustRegister registers every codec and panics on the first failure.
func (r *Registry) MustRegister(codecs ...*Codec) {
	for _, c := range codecs {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Lookup(name string) (*Codec, bool) {
	c, ok := r.byName[name]
	return c, ok
}

func (r *Registry) ByType(t reflect.Type) (*Codec, bool) {
	c, ok := r.byType[t]
	return c, ok
}

// Codecs returns the registered codecs ordered by name. The slice must not be
// modified.
func (r *Registry) Codecs() []*Codec { return r.sorted }

func (r *Registry) Len() int { return len(r.sorted) }

// Fingerprint hashes the codec names and their component types in name
// order. Two registries with equal fingerprints read each other's streams.
func (r *Registry) Fingerprint() uint64 {
	d := xxhash.New()
	for _, c := range r.sorted {
		_, _ = d.WriteString(c.name)
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(c.typ.String())
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}
