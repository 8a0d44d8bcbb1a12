package descriptor

import (
	"errors"
	"fmt"
	"testing"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
)

type fakePool struct {
	capacity uint32
	used     uint32
	sizes    []vk.DescriptorPoolSize
	resets   int
}

// fakeBackend hands out pools backed by Go memory so each has a distinct
// handle value.
type fakeBackend struct {
	pools     map[vk.DescriptorPool]*fakePool
	created   []uint32
	destroyed int
	resetErr  error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{pools: make(map[vk.DescriptorPool]*fakePool)}
}

func (b *fakeBackend) CreatePool(maxSets uint32, sizes []vk.DescriptorPoolSize) (vk.DescriptorPool, error) {
	h := vk.DescriptorPool(unsafe.Pointer(new(uint64)))
	b.pools[h] = &fakePool{capacity: maxSets, sizes: sizes}
	b.created = append(b.created, maxSets)
	return h, nil
}

func (b *fakeBackend) AllocateSet(pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	p := b.pools[pool]
	if p.used == p.capacity {
		return nil, fmt.Errorf("vkAllocateDescriptorSets: %w", core.ErrPoolFull)
	}
	p.used++
	return vk.DescriptorSet(unsafe.Pointer(new(uint64))), nil
}

func (b *fakeBackend) ResetPool(pool vk.DescriptorPool) error {
	if b.resetErr != nil {
		return b.resetErr
	}
	p := b.pools[pool]
	p.used = 0
	p.resets++
	return nil
}

func (b *fakeBackend) DestroyPool(pool vk.DescriptorPool) {
	delete(b.pools, pool)
	b.destroyed++
}

var ratios = []PoolRatio{
	{Type: vk.DescriptorTypeStorageImage, Ratio: 3},
	{Type: vk.DescriptorTypeUniformBuffer, Ratio: 0.5},
}

var layout vk.DescriptorSetLayout

func TestAllocatorSizesPoolsFromRatios(t *testing.T) {
	backend := newFakeBackend()
	if _, err := New(backend, 10, ratios, Options{}); err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, p := range backend.pools {
		if p.sizes[0].DescriptorCount != 30 || p.sizes[1].DescriptorCount != 5 {
			t.Fatalf("pool sizes %+v", p.sizes)
		}
	}
}

func TestAllocatorGrowsByHalf(t *testing.T) {
	backend := newFakeBackend()
	a, err := New(backend, 4, ratios, Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	// 4 + 6 + 9 sets fit in the first three pools.
	for i := 0; i < 19; i++ {
		if _, err := a.Allocate(layout); err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
	}
	want := []uint32{4, 6, 9}
	if fmt.Sprint(backend.created) != fmt.Sprint(want) {
		t.Fatalf("pool sizes %v, want %v", backend.created, want)
	}
	if a.NextPoolSets() != 13 {
		t.Fatalf("next pool sets %d", a.NextPoolSets())
	}
	if a.Allocated() != 19 {
		t.Fatalf("allocated %d", a.Allocated())
	}
}

func TestAllocatorGrowthIsCapped(t *testing.T) {
	backend := newFakeBackend()
	a, err := New(backend, 8, ratios, Options{MaxSetsCap: 10})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 0; i < 8+10+10; i++ {
		if _, err := a.Allocate(layout); err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
	}
	want := []uint32{8, 10, 10}
	if fmt.Sprint(backend.created) != fmt.Sprint(want) {
		t.Fatalf("pool sizes %v, want %v", backend.created, want)
	}
}

func TestAllocatorExhaustion(t *testing.T) {
	backend := newFakeBackend()
	a, err := New(backend, 2, ratios, Options{MaxSetsCap: 2, MaxPools: 2})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 0; i < 4; i++ {
		if _, err := a.Allocate(layout); err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
	}
	if _, err := a.Allocate(layout); !errors.Is(err, core.ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
	if a.Pools() != 2 {
		t.Fatalf("exhaustion leaked pools: %d", a.Pools())
	}
}

func TestAllocatorResetReusesPools(t *testing.T) {
	backend := newFakeBackend()
	a, err := New(backend, 2, ratios, Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := a.Allocate(layout); err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
	}
	pools := a.Pools()

	if err := a.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if a.Allocated() != 0 {
		t.Fatalf("allocated after reset %d", a.Allocated())
	}
	for _, p := range backend.pools {
		if p.used != 0 || p.resets != 1 {
			t.Fatalf("pool not reset: %+v", p)
		}
	}

	// The same frame load fits the recycled pools without growing again.
	for i := 0; i < 5; i++ {
		if _, err := a.Allocate(layout); err != nil {
			t.Fatalf("allocate after reset %d: %v", i, err)
		}
	}
	if a.Pools() != pools {
		t.Fatalf("pools grew after reset: %d -> %d", pools, a.Pools())
	}

	a.Destroy()
	if backend.destroyed != pools || len(backend.pools) != 0 {
		t.Fatalf("destroy released %d of %d pools", backend.destroyed, pools)
	}
}

func TestAllocatorResetError(t *testing.T) {
	backend := newFakeBackend()
	a, err := New(backend, 2, ratios, Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	backend.resetErr = core.ErrDeviceLost
	if err := a.Reset(); !errors.Is(err, core.ErrDeviceLost) {
		t.Fatalf("expected reset error to surface, got %v", err)
	}
}
