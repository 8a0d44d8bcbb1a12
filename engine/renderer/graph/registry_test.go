package graph

import (
	"errors"
	"testing"

	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
)

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	img := colorImage("draw", 4, 4)
	buf := &Buffer{Name: "ubo", Size: 64}

	hi := r.Register(img)
	hb := r.Register(buf)
	if hi == hb {
		t.Fatalf("distinct resources share handle %s", hi)
	}

	got, err := r.Resolve(hi)
	if err != nil || got != img {
		t.Fatalf("resolve image: got %v, %v", got, err)
	}
	got, err = r.Resolve(hb)
	if err != nil || got != buf {
		t.Fatalf("resolve buffer: got %v, %v", got, err)
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 live resources, got %d", r.Len())
	}
}

func TestRegistryRejectsInvalidHandles(t *testing.T) {
	r := NewRegistry()
	r.Register(colorImage("a", 1, 1))

	tests := []struct {
		name string
		h    Handle
	}{
		{"sentinel", InvalidHandle},
		{"out of range", Handle{Index: 7, Generation: 1}},
		{"wrong generation", Handle{Index: 0, Generation: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Resolve(tt.h); !errors.Is(err, core.ErrStaleHandle) {
				t.Fatalf("expected ErrStaleHandle, got %v", err)
			}
		})
	}
}

func TestRegistryHandleFromPreviousFrameIsStale(t *testing.T) {
	r := NewRegistry()
	old := r.Register(colorImage("frame-n", 8, 8))

	r.Reset()
	if _, err := r.Resolve(old); !errors.Is(err, core.ErrStaleHandle) {
		t.Fatalf("handle survived reset: %v", err)
	}

	// The slot is reused by a different resource in the next frame.
	next := colorImage("frame-n+1", 8, 8)
	fresh := r.Register(next)
	if fresh.Index != old.Index {
		t.Fatalf("expected slot %d to be reused, got %d", old.Index, fresh.Index)
	}
	if fresh.Generation == old.Generation {
		t.Fatalf("reused slot kept generation %d", fresh.Generation)
	}
	if _, err := r.Resolve(old); !errors.Is(err, core.ErrStaleHandle) {
		t.Fatalf("old handle aliased the reused slot: %v", err)
	}
	if got, _ := r.Resolve(fresh); got != next {
		t.Fatalf("fresh handle resolved to %v", got)
	}
}

func TestRegistryGenerationsIncrease(t *testing.T) {
	r := NewRegistry()
	var last uint32
	for i := 0; i < 5; i++ {
		h := r.Register(colorImage("x", 1, 1))
		if h.Generation <= last {
			t.Fatalf("generation %d not above %d", h.Generation, last)
		}
		last = h.Generation
		r.Reset()
	}
}
