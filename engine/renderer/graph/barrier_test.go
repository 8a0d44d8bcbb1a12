package graph

import (
	"testing"

	vk "github.com/goki/vulkan"
)

func countBarriers(batches [][]Barrier) int {
	n := 0
	for _, b := range batches {
		n += len(b)
	}
	return n
}

func TestNoRedundantBarriers(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(g *Graph) Handle
		usage  Usage
		kind   PassKind
		passes int
		want   int
	}{
		{
			name:   "storage image reads after first transition",
			setup:  func(g *Graph) Handle { return g.Register(colorImage("img", 16, 16)) },
			usage:  UsageStorageRead,
			kind:   PassCompute,
			passes: 4,
			want:   1,
		},
		{
			name:   "uniform buffer reads wait once for earlier work",
			setup:  func(g *Graph) Handle { return g.Register(&Buffer{Name: "ubo", Size: 256}) },
			usage:  UsageUniform,
			kind:   PassGraphics,
			passes: 5,
			want:   1,
		},
		{
			name: "uniform buffer imported after a host write",
			setup: func(g *Graph) Handle {
				return g.Import(&Buffer{Name: "ubo", Size: 256}, UsageUniform.ResourceState)
			},
			usage:  UsageUniform,
			kind:   PassGraphics,
			passes: 5,
			want:   0,
		},
		{
			name: "texture imported in sampled layout",
			setup: func(g *Graph) Handle {
				return g.Import(colorImage("tex", 32, 32), UsageSampled.ResourceState)
			},
			usage:  UsageSampled,
			kind:   PassGraphics,
			passes: 3,
			want:   0,
		},
		{
			name:   "transfer sources",
			setup:  func(g *Graph) Handle { return g.Register(colorImage("src", 8, 8)) },
			usage:  UsageTransferSrc,
			kind:   PassTransfer,
			passes: 3,
			want:   1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			g.Begin()
			h := tt.setup(g)
			for i := 0; i < tt.passes; i++ {
				g.AddPass(tt.kind, "reader").Access(h, tt.usage)
			}
			if got := countBarriers(g.Compile()); got != tt.want {
				t.Fatalf("expected %d barriers, got %d", tt.want, got)
			}
		})
	}
}

func TestReadAfterWriteEmitsBarrier(t *testing.T) {
	g := New()
	g.Begin()
	vbo := g.Register(&Buffer{Name: "particles", Size: 4096})

	g.AddPass(PassCompute, "simulate").Access(vbo, UsageStorageWrite)
	g.AddPass(PassGraphics, "draw").Access(vbo, UsageVertex)
	g.AddPass(PassGraphics, "draw-again").Access(vbo, UsageVertex)

	batches := g.Compile()
	if len(batches[0]) != 1 || batches[0][0].Src != priorWork {
		t.Fatalf("first write must wait for earlier queue work, got %v", batches[0])
	}
	if len(batches[1]) != 1 {
		t.Fatalf("expected one RAW barrier, got %d", len(batches[1]))
	}
	b := batches[1][0]
	if b.IsImage() || b.Buffer == nil || b.Buffer.Name != "particles" {
		t.Fatalf("expected a buffer barrier, got %s", b)
	}
	if b.Src.Stage != stageCompute || b.Src.Access != vk.AccessFlags(vk.AccessShaderWriteBit) {
		t.Fatalf("source scope does not cover the compute write: %s", b)
	}
	if b.Dst.Stage != UsageVertex.Stage || b.Dst.Access != UsageVertex.Access {
		t.Fatalf("destination scope does not cover the vertex read: %s", b)
	}
	if len(batches[2]) != 0 {
		t.Fatalf("second read in the same stage should not wait again, got %v", batches[2])
	}
}

func TestWriteAfterReadEmitsExecutionBarrier(t *testing.T) {
	g := New()
	g.Begin()
	buf := g.Import(&Buffer{Name: "scene", Size: 256}, UsageUniform.ResourceState)

	g.AddPass(PassGraphics, "read").Access(buf, UsageUniform)
	g.AddPass(PassCompute, "write").Access(buf, UsageStorageWrite)

	batches := g.Compile()
	if len(batches[0]) != 0 {
		t.Fatalf("read in the imported state needs no barrier, got %v", batches[0])
	}
	if len(batches[1]) != 1 {
		t.Fatalf("expected WAR barrier, got %d", len(batches[1]))
	}
	b := batches[1][0]
	if b.Src.Stage != UsageUniform.Stage {
		t.Fatalf("WAR source stage %#x, want reader stages %#x", b.Src.Stage, UsageUniform.Stage)
	}
	if b.Src.Access != 0 {
		t.Fatalf("WAR needs no availability, got source access %#x", b.Src.Access)
	}
}

func TestWriteAfterWriteEmitsBarrier(t *testing.T) {
	g := New()
	g.Begin()
	buf := g.Register(&Buffer{Name: "counters", Size: 16})

	g.AddPass(PassCompute, "first").Access(buf, UsageStorageWrite)
	g.AddPass(PassCompute, "second").Access(buf, UsageStorageWrite)

	batches := g.Compile()
	if len(batches[1]) != 1 {
		t.Fatalf("expected WAW barrier, got %d", len(batches[1]))
	}
	if batches[1][0].Src.Access != vk.AccessFlags(vk.AccessShaderWriteBit) {
		t.Fatalf("WAW source access %#x", batches[1][0].Src.Access)
	}
}

func TestReadInNewStageWaitsForWrite(t *testing.T) {
	g := New()
	g.Begin()
	img := g.Register(colorImage("gbuffer", 64, 64))

	g.AddPass(PassCompute, "write").Access(img, UsageStorageWrite)
	g.AddPass(PassCompute, "read-compute").Access(img, UsageStorageRead)
	g.AddPass(PassGraphics, "read-fragment").Access(img, UsageStorageRead.At(stages(vk.PipelineStageFragmentShaderBit)))

	batches := g.Compile()
	for i, want := range []int{1, 1, 1} {
		if len(batches[i]) != want {
			t.Fatalf("pass %d: expected %d barriers, got %d", i, want, len(batches[i]))
		}
	}
	last := batches[2][0]
	if last.LayoutChange() {
		t.Fatalf("no layout change expected: %s", last)
	}
	if last.Src.Access != vk.AccessFlags(vk.AccessShaderWriteBit) {
		t.Fatalf("fragment read must see the compute write: %s", last)
	}
}

func TestDepthAttachmentFirstWrite(t *testing.T) {
	g := New()
	g.Begin()
	color := g.Register(colorImage("color", 32, 32))
	depth := g.Register(depthImage("depth", 32, 32))

	g.AddPass(PassGraphics, "geometry",
		ColorTarget(color, LoadOpClear, StoreOpStore, ClearColor(0, 0, 0, 1)),
		DepthTarget(depth, LoadOpClear, StoreOpDontCare, ClearDepth(1, 0)),
	)

	batches := g.Compile()
	if len(batches[0]) != 2 {
		t.Fatalf("expected color and depth transitions, got %d", len(batches[0]))
	}
	b := batches[0][1]
	if b.Handle != depth {
		t.Fatalf("second barrier is for %s", b.Handle)
	}
	if b.Src.Layout != vk.ImageLayoutUndefined || b.Dst.Layout != vk.ImageLayoutDepthStencilAttachmentOptimal {
		t.Fatalf("depth transition %d->%d", b.Src.Layout, b.Dst.Layout)
	}
	if b.Aspect() != vk.ImageAspectFlags(vk.ImageAspectDepthBit) {
		t.Fatalf("depth aspect %#x", b.Aspect())
	}
	if batches[0][0].Aspect() != vk.ImageAspectFlags(vk.ImageAspectColorBit) {
		t.Fatalf("color aspect %#x", batches[0][0].Aspect())
	}
}

func TestPresentTransitionsLast(t *testing.T) {
	g := New()
	g.Begin()
	swap := g.Register(&Image{Name: "swapchain", Format: vk.FormatB8g8r8a8Unorm, Width: 8, Height: 8})

	g.AddPass(PassGraphics, "ui", ColorTarget(swap, LoadOpLoad, StoreOpStore, ClearValue{}))
	p := g.Present(swap)

	accesses := p.Accesses()
	if last := accesses[len(accesses)-1]; last.Handle != swap || last.Layout != vk.ImageLayoutPresentSrc {
		t.Fatalf("present access is not last: %+v", last)
	}

	batches := g.Compile()
	b := batches[1][0]
	if b.Src.Layout != vk.ImageLayoutColorAttachmentOptimal || b.Dst.Layout != vk.ImageLayoutPresentSrc {
		t.Fatalf("present transition %d->%d", b.Src.Layout, b.Dst.Layout)
	}
	if b.Dst.Stage != stageBottom || b.Dst.Access != 0 {
		t.Fatalf("present destination scope %#x/%#x", b.Dst.Stage, b.Dst.Access)
	}
	if b.Src.Access&vk.AccessFlags(vk.AccessColorAttachmentWriteBit) == 0 {
		t.Fatalf("present must wait for the attachment write: %s", b)
	}
}

func TestSynthesizerStateFollowsPasses(t *testing.T) {
	g := New()
	g.Begin()
	img := g.Register(colorImage("draw", 4, 4))

	p1 := g.AddPass(PassGraphics, "draw", ColorTarget(img, LoadOpClear, StoreOpStore, ClearValue{}))
	p2 := g.AddPass(PassTransfer, "read").Access(img, UsageTransferSrc)

	s := NewSynthesizer(g.Registry())
	if st := s.State(img); st.Touched() {
		t.Fatalf("untouched image reports state %+v", st)
	}
	s.Step(p1)
	if st := s.State(img); st.Last.Layout != vk.ImageLayoutColorAttachmentOptimal {
		t.Fatalf("after draw: layout %d", st.Last.Layout)
	}
	s.Step(p2)
	st := s.State(img)
	if st.Last.Layout != vk.ImageLayoutTransferSrcOptimal {
		t.Fatalf("after read: layout %d", st.Last.Layout)
	}
	if !covers(st.Visible, UsageTransferSrc.ResourceState) {
		t.Fatalf("transfer read not visible after its transition: %+v", st.Visible)
	}
}

func TestFirstBarrierWaitsForEarlierWork(t *testing.T) {
	// Work submitted before this frame: the swapchain acquire wait at
	// color output and transfer, and the other slot's transfer read.
	earlier := stages(vk.PipelineStageColorAttachmentOutputBit, vk.PipelineStageTransferBit)

	tests := []struct {
		name  string
		res   Resource
		kind  PassKind
		usage Usage
	}{
		{"image written by a transfer", colorImage("swapchain", 8, 8), PassTransfer, UsageTransferDst},
		{"image cleared as a color target", colorImage("draw", 8, 8), PassGraphics, UsageColorAttachment},
		{"buffer written by a shader", &Buffer{Name: "particles", Size: 64}, PassCompute, UsageStorageWrite},
		{"buffer read by a shader", &Buffer{Name: "particles", Size: 64}, PassCompute, UsageStorageRead},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			g.Begin()
			h := g.Register(tt.res)
			g.AddPass(tt.kind, "first").Access(h, tt.usage)

			batches := g.Compile()
			if len(batches[0]) != 1 {
				t.Fatalf("expected one barrier, got %d", len(batches[0]))
			}
			b := batches[0][0]
			all := stages(vk.PipelineStageAllCommandsBit)
			if b.Src.Stage&all == 0 && b.Src.Stage&earlier != earlier {
				t.Fatalf("source stage %#x does not chain with %#x", b.Src.Stage, earlier)
			}
			if b.Src.Access&vk.AccessFlags(vk.AccessMemoryWriteBit) == 0 {
				t.Fatalf("earlier writes are not made available: %s", b)
			}
		})
	}
}
