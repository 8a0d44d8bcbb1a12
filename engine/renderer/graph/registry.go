package graph

import (
	"fmt"

	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
)

type registrySlot struct {
	generation uint32
	live       bool
	resource   Resource
	initial    ResourceState
}

// Registry maps handles to the resources live in the current frame.
type Registry struct {
	slots []registrySlot
	free  []uint32
}

func NewRegistry() *Registry {
	return &Registry{
		slots: make([]registrySlot, 0, 32),
		free:  make([]uint32, 0, 32),
	}
}

// Register inserts a resource whose content is undefined on entry to the
// frame.
func (r *Registry) Register(res Resource) Handle {
	return r.Import(res, StateUndefined)
}

// Import inserts a resource whose content persists from earlier frames in the
// given state.
func (r *Registry) Import(res Resource, initial ResourceState) Handle {
	if res == nil {
		panic("graph: registering a nil resource")
	}

	var index uint32
	if n := len(r.free); n > 0 {
		index = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		index = uint32(len(r.slots))
		r.slots = append(r.slots, registrySlot{})
	}

	slot := &r.slots[index]
	slot.generation = nextGeneration(slot.generation)
	slot.live = true
	slot.resource = res
	slot.initial = initial

	return Handle{Index: index, Generation: slot.generation}
}

// Resolve returns the resource behind h, or core.ErrStaleHandle when h belongs
// to an earlier frame or was never issued.
func (r *Registry) Resolve(h Handle) (Resource, error) {
	slot, err := r.slot(h)
	if err != nil {
		return nil, err
	}
	return slot.resource, nil
}

// MustResolve is Resolve for callers that treat a stale handle as a
// programming error.
func (r *Registry) MustResolve(h Handle) Resource {
	res, err := r.Resolve(h)
	if err != nil {
		panic(err)
	}
	return res
}

func (r *Registry) initialState(h Handle) ResourceState {
	slot, err := r.slot(h)
	if err != nil {
		panic(err)
	}
	return slot.initial
}

func (r *Registry) slot(h Handle) (*registrySlot, error) {
	if !h.IsValid() || int(h.Index) >= len(r.slots) {
		return nil, fmt.Errorf("resolving %s: %w", h, core.ErrStaleHandle)
	}
	slot := &r.slots[h.Index]
	if !slot.live || slot.generation != h.Generation {
		return nil, fmt.Errorf("resolving %s (slot at generation %d): %w", h, slot.generation, core.ErrStaleHandle)
	}
	return slot, nil
}

// Reset invalidates every handle issued so far and frees all slots.
func (r *Registry) Reset() {
	r.free = r.free[:0]
	for i := len(r.slots) - 1; i >= 0; i-- {
		slot := &r.slots[i]
		if slot.live {
			slot.generation = nextGeneration(slot.generation)
		}
		slot.live = false
		slot.resource = nil
		slot.initial = StateUndefined
		r.free = append(r.free, uint32(i))
	}
}

// Len returns the number of live resources.
func (r *Registry) Len() int {
	return len(r.slots) - len(r.free)
}

func nextGeneration(g uint32) uint32 {
	g++
	if g == 0 {
		g = 1
	}
	return g
}
