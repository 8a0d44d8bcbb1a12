package descriptor

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
)

const (
	DefaultMaxSetsCap = 4092
	DefaultMaxPools   = 16
	growthFactor      = 1.5
)

// PoolRatio sizes one descriptor type of a pool relative to its set count.
type PoolRatio struct {
	Type  vk.DescriptorType
	Ratio float32
}

// Backend creates and drives the descriptor pools. AllocateSet must return an
// error wrapping core.ErrPoolFull when the pool has no room left.
type Backend interface {
	CreatePool(maxSets uint32, sizes []vk.DescriptorPoolSize) (vk.DescriptorPool, error)
	AllocateSet(pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error)
	ResetPool(pool vk.DescriptorPool) error
	DestroyPool(pool vk.DescriptorPool)
}

type Options struct {
	// MaxSetsCap bounds the set count of a single pool.
	MaxSetsCap uint32
	// MaxPools bounds how many pools the allocator may own.
	MaxPools int
}

// Allocator hands out descriptor sets for one frame-in-flight slot. Pools
// that run out are retired until the next Reset and replaced by a pool 1.5x
// larger.
type Allocator struct {
	backend     Backend
	ratios      []PoolRatio
	ready       []vk.DescriptorPool
	full        []vk.DescriptorPool
	setsPerPool uint32
	maxSetsCap  uint32
	maxPools    int
	allocated   int
}

func New(backend Backend, maxSets uint32, ratios []PoolRatio, opts Options) (*Allocator, error) {
	if opts.MaxSetsCap == 0 {
		opts.MaxSetsCap = DefaultMaxSetsCap
	}
	if opts.MaxPools <= 0 {
		opts.MaxPools = DefaultMaxPools
	}
	if maxSets == 0 || len(ratios) == 0 {
		return nil, fmt.Errorf("descriptor allocator needs a set count and at least one pool ratio")
	}

	a := &Allocator{
		backend:    backend,
		ratios:     append([]PoolRatio(nil), ratios...),
		maxSetsCap: opts.MaxSetsCap,
		maxPools:   opts.MaxPools,
	}
	pool, err := a.createPool(min(maxSets, a.maxSetsCap))
	if err != nil {
		return nil, err
	}
	a.ready = append(a.ready, pool)
	a.setsPerPool = a.grow(maxSets)
	return a, nil
}

func (a *Allocator) grow(sets uint32) uint32 {
	next := uint32(float32(sets) * growthFactor)
	if next > a.maxSetsCap {
		next = a.maxSetsCap
	}
	return next
}

func (a *Allocator) createPool(sets uint32) (vk.DescriptorPool, error) {
	sizes := make([]vk.DescriptorPoolSize, 0, len(a.ratios))
	for _, r := range a.ratios {
		count := uint32(r.Ratio * float32(sets))
		if count == 0 {
			count = 1
		}
		sizes = append(sizes, vk.DescriptorPoolSize{Type: r.Type, DescriptorCount: count})
	}
	pool, err := a.backend.CreatePool(sets, sizes)
	if err != nil {
		err = fmt.Errorf("failed to create descriptor pool of %d sets: %w", sets, err)
		core.LogError(err.Error())
		return nil, err
	}
	return pool, nil
}

// pool returns a pool with room, creating a bigger one when none is ready.
func (a *Allocator) pool() (vk.DescriptorPool, error) {
	if n := len(a.ready); n > 0 {
		p := a.ready[n-1]
		a.ready = a.ready[:n-1]
		return p, nil
	}
	if a.Pools() >= a.maxPools {
		return nil, fmt.Errorf("%d pools in use: %w", a.Pools(), core.ErrPoolExhausted)
	}
	p, err := a.createPool(a.setsPerPool)
	if err != nil {
		return nil, err
	}
	core.LogDebug("descriptor pool grown to %d sets", a.setsPerPool)
	a.setsPerPool = a.grow(a.setsPerPool)
	return p, nil
}

// Allocate returns a set for layout that stays valid until the next Reset.
func (a *Allocator) Allocate(layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	p, err := a.pool()
	if err != nil {
		return nil, err
	}

	set, err := a.backend.AllocateSet(p, layout)
	if errors.Is(err, core.ErrPoolFull) {
		a.full = append(a.full, p)
		if p, err = a.pool(); err != nil {
			return nil, err
		}
		set, err = a.backend.AllocateSet(p, layout)
		if errors.Is(err, core.ErrPoolFull) {
			// A fresh pool cannot hold the layout.
			a.full = append(a.full, p)
			return nil, fmt.Errorf("layout does not fit an empty pool: %w", core.ErrPoolExhausted)
		}
	}
	if err != nil {
		a.ready = append(a.ready, p)
		return nil, fmt.Errorf("failed to allocate descriptor set: %w", err)
	}

	a.ready = append(a.ready, p)
	a.allocated++
	return set, nil
}

// Reset recycles every set handed out since the previous Reset. The GPU must
// be done with them.
func (a *Allocator) Reset() error {
	a.ready = append(a.ready, a.full...)
	a.full = a.full[:0]
	for _, p := range a.ready {
		if err := a.backend.ResetPool(p); err != nil {
			err = fmt.Errorf("failed to reset descriptor pool: %w", err)
			core.LogError(err.Error())
			return err
		}
	}
	a.allocated = 0
	return nil
}

func (a *Allocator) Destroy() {
	for _, p := range a.ready {
		a.backend.DestroyPool(p)
	}
	for _, p := range a.full {
		a.backend.DestroyPool(p)
	}
	a.ready = nil
	a.full = nil
}

// Pools returns how many pools the allocator owns.
func (a *Allocator) Pools() int {
	return len(a.ready) + len(a.full)
}

// Allocated returns the sets handed out since the last Reset.
func (a *Allocator) Allocated() int {
	return a.allocated
}

// NextPoolSets is the set count the next created pool will get.
func (a *Allocator) NextPoolSets() uint32 {
	return a.setsPerPool
}
