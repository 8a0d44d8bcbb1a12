package testbed

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestGroupsRoundUp(t *testing.T) {
	tests := map[uint32]uint32{0: 0, 1: 1, 16: 1, 17: 2, 1280: 80, 721: 46}
	for size, want := range tests {
		if got := groups(size); got != want {
			t.Errorf("groups(%d) = %d, want %d", size, got, want)
		}
	}
}

func TestPushConstantsLayout(t *testing.T) {
	buf := pushConstants(mgl32.Vec4{1, 2, 3, 4}, mgl32.Vec4{-1, 0.5, 0, 1})
	if len(buf) != 32 {
		t.Fatalf("got %d bytes", len(buf))
	}
	want := []float32{1, 2, 3, 4, -1, 0.5, 0, 1}
	for i, f := range want {
		got := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		if got != f {
			t.Errorf("float %d = %v, want %v", i, got, f)
		}
	}
}
