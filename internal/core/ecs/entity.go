package ecs

import "fmt"

// EntityID encodes a 32-bit index in the lower bits and a 32-bit generation
// in the upper bits. Generation increments on destroy to invalidate stale refs.
// Generations start at 1, so the zero EntityID never names a live entity.
type EntityID uint64

func NewEntityID(index uint32, generation uint32) EntityID {
	return EntityID(uint64(generation)<<32 | uint64(index))
}

func (id EntityID) Index() uint32      { return uint32(id) }
func (id EntityID) Generation() uint32 { return uint32(id >> 32) }
func (id EntityID) IsZero() bool       { return id == 0 }

func (id EntityID) String() string {
	return fmt.Sprintf("%dv%d", id.Index(), id.Generation())
}

// EntityPool manages entity allocation with generational indices and a free list.
//
// Allocation is two-phase when Reserve is used: a reserved ID is handed out
// immediately but only becomes alive on the next Flush.
type EntityPool struct {
	generations []uint32
	alive       []bool
	freeList    []uint32
	pending     []EntityID
	nextIndex   uint32
	live        int
}

func NewEntityPool() *EntityPool {
	return &EntityPool{
		generations: make([]uint32, 0, 1024),
		alive:       make([]bool, 0, 1024),
		freeList:    make([]uint32, 0, 256),
	}
}

func (p *EntityPool) allocate() EntityID {
	if len(p.freeList) > 0 {
		idx := p.freeList[len(p.freeList)-1]
		p.freeList = p.freeList[:len(p.freeList)-1]
		return NewEntityID(idx, p.generations[idx])
	}
	idx := p.nextIndex
	p.nextIndex++
	p.grow(idx)
	return NewEntityID(idx, p.generations[idx])
}

// grow extends the per-index tables so that idx is addressable.
func (p *EntityPool) grow(idx uint32) {
	for uint32(len(p.generations)) <= idx {
		p.generations = append(p.generations, 1)
		p.alive = append(p.alive, false)
	}
}

func (p *EntityPool) Create() EntityID {
	id := p.allocate()
	p.alive[id.Index()] = true
	p.live++
	return id
}

// Reserve hands out an ID that is not alive until the next Flush.
func (p *EntityPool) Reserve() EntityID {
	id := p.allocate()
	p.pending = append(p.pending, id)
	return id
}

// Pending reports whether any reserved IDs await a Flush.
func (p *EntityPool) Pending() bool {
	return len(p.pending) > 0
}

// Flush turns every reserved ID into a live entity and returns them.
func (p *EntityPool) Flush() []EntityID {
	if len(p.pending) == 0 {
		return nil
	}
	flushed := p.pending
	for _, id := range flushed {
		idx := id.Index()
		if p.generations[idx] == id.Generation() && !p.alive[idx] {
			p.alive[idx] = true
			p.live++
		}
	}
	p.pending = make([]EntityID, 0, cap(flushed))
	return flushed
}

// Claim makes id alive with exactly its index and generation, as needed when
// restoring saved handles. If a different generation currently lives at that
// index it is returned so the caller can drop its components.
func (p *EntityPool) Claim(id EntityID) (replaced EntityID, ok bool) {
	idx := id.Index()
	if idx >= p.nextIndex {
		for i := p.nextIndex; i < idx; i++ {
			p.grow(i)
			p.freeList = append(p.freeList, i)
		}
		p.nextIndex = idx + 1
		p.grow(idx)
	} else {
		p.dropFree(idx)
		p.dropPending(idx)
	}

	if p.alive[idx] {
		if p.generations[idx] != id.Generation() {
			replaced, ok = NewEntityID(idx, p.generations[idx]), true
		}
	} else {
		p.live++
	}
	p.generations[idx] = id.Generation()
	p.alive[idx] = true
	return replaced, ok
}

func (p *EntityPool) dropFree(idx uint32) {
	for i, free := range p.freeList {
		if free == idx {
			p.freeList = append(p.freeList[:i], p.freeList[i+1:]...)
			return
		}
	}
}

func (p *EntityPool) dropPending(idx uint32) {
	for i, id := range p.pending {
		if id.Index() == idx {
			p.pending = append(p.pending[:i], p.pending[i+1:]...)
			return
		}
	}
}

func (p *EntityPool) Alive(id EntityID) bool {
	idx := id.Index()
	if idx >= p.nextIndex {
		return false
	}
	return p.alive[idx] && p.generations[idx] == id.Generation()
}

// Find returns the live entity currently occupying idx.
func (p *EntityPool) Find(idx uint32) (EntityID, bool) {
	if idx >= p.nextIndex || !p.alive[idx] {
		return 0, false
	}
	return NewEntityID(idx, p.generations[idx]), true
}

func (p *EntityPool) Destroy(id EntityID) bool {
	if !p.Alive(id) {
		return false // already destroyed (stale reference)
	}
	idx := id.Index()
	p.generations[idx]++
	if p.generations[idx] == 0 {
		p.generations[idx] = 1
	}
	p.alive[idx] = false
	p.freeList = append(p.freeList, idx)
	p.live--
	return true
}

// Len returns the number of live entities.
func (p *EntityPool) Len() int {
	return p.live
}

// Each visits live entities in index order.
func (p *EntityPool) Each(fn func(EntityID)) {
	for idx := uint32(0); idx < p.nextIndex; idx++ {
		if p.alive[idx] {
			fn(NewEntityID(idx, p.generations[idx]))
		}
	}
}

// Clear destroys every live entity, keeping allocated capacity.
func (p *EntityPool) Clear() {
	p.Each(func(id EntityID) { p.Destroy(id) })
	p.pending = p.pending[:0]
}
