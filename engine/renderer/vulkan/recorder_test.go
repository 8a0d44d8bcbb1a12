package vulkan

import (
	"testing"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/graph"
)

func fakeImage(name string, format vk.Format) *graph.Image {
	return &graph.Image{
		Name:   name,
		Handle: vk.Image(unsafe.Pointer(new(uint64))),
		View:   vk.ImageView(unsafe.Pointer(new(uint64))),
		Format: format,
		Width:  64,
		Height: 32,
	}
}

func fakeBuffer(name string, size vk.DeviceSize) *graph.Buffer {
	return &graph.Buffer{
		Name:   name,
		Handle: vk.Buffer(unsafe.Pointer(new(uint64))),
		Size:   size,
	}
}

func TestBatchBarriers(t *testing.T) {
	color := fakeImage("color", vk.FormatR16g16b16a16Sfloat)
	depth := fakeImage("depth", vk.FormatD32Sfloat)
	buf := fakeBuffer("particles", 1024)

	barriers := []graph.Barrier{
		{
			Image: color,
			Src:   graph.UsageColorAttachment.ResourceState,
			Dst:   graph.UsageTransferSrc.ResourceState,
		},
		{
			Image: depth,
			Src:   graph.ResourceState{Stage: vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)},
			Dst:   graph.UsageDepthAttachment.ResourceState,
		},
		{
			Buffer: buf,
			Src:    graph.UsageStorageWrite.ResourceState,
			Dst:    graph.UsageVertex.ResourceState,
		},
	}

	batch := batchBarriers(barriers)
	if len(batch.images) != 2 || len(batch.buffers) != 1 {
		t.Fatalf("got %d image and %d buffer barriers", len(batch.images), len(batch.buffers))
	}

	wantSrc := graph.UsageColorAttachment.Stage | vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit) | graph.UsageStorageWrite.Stage
	if batch.srcStage != wantSrc {
		t.Errorf("src stage = %#x, want %#x", batch.srcStage, wantSrc)
	}
	wantDst := graph.UsageTransferSrc.Stage | graph.UsageDepthAttachment.Stage | graph.UsageVertex.Stage
	if batch.dstStage != wantDst {
		t.Errorf("dst stage = %#x, want %#x", batch.dstStage, wantDst)
	}

	img := batch.images[0]
	if img.OldLayout != vk.ImageLayoutColorAttachmentOptimal || img.NewLayout != vk.ImageLayoutTransferSrcOptimal {
		t.Errorf("color layouts %d->%d", img.OldLayout, img.NewLayout)
	}
	if img.SrcQueueFamilyIndex != vk.QueueFamilyIgnored || img.DstQueueFamilyIndex != vk.QueueFamilyIgnored {
		t.Error("queue family ownership must be ignored")
	}
	if img.SubresourceRange.AspectMask != vk.ImageAspectFlags(vk.ImageAspectColorBit) || img.SubresourceRange.LevelCount != 1 {
		t.Errorf("color range %+v", img.SubresourceRange)
	}
	if got := batch.images[1].SubresourceRange.AspectMask; got != vk.ImageAspectFlags(vk.ImageAspectDepthBit) {
		t.Errorf("depth aspect = %#x", got)
	}
	if batch.images[1].OldLayout != vk.ImageLayoutUndefined || batch.images[1].NewLayout != vk.ImageLayoutDepthStencilAttachmentOptimal {
		t.Errorf("depth layouts %d->%d", batch.images[1].OldLayout, batch.images[1].NewLayout)
	}
	if b := batch.buffers[0]; b.Buffer != buf.Handle || b.SrcAccessMask != graph.UsageStorageWrite.Access {
		t.Errorf("buffer barrier %+v", b)
	}
}

func TestBatchBarriersDefaultsStages(t *testing.T) {
	swap := fakeImage("swapchain", vk.FormatB8g8r8a8Unorm)
	batch := batchBarriers([]graph.Barrier{{
		Image: swap,
		Dst:   graph.ResourceState{Layout: vk.ImageLayoutPresentSrc},
	}})
	if batch.srcStage != vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit) {
		t.Errorf("src stage = %#x, want top of pipe", batch.srcStage)
	}
	if batch.dstStage != vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit) {
		t.Errorf("dst stage = %#x, want bottom of pipe", batch.dstStage)
	}
}

func TestDescriptorWrites(t *testing.T) {
	set := vk.DescriptorSet(unsafe.Pointer(new(uint64)))
	ubo := fakeBuffer("camera", 256)
	tex := fakeImage("albedo", vk.FormatR8g8b8a8Unorm)
	sampler := vk.Sampler(unsafe.Pointer(new(uint64)))

	writes := descriptorWrites(set, []graph.DescriptorWrite{
		{Binding: 0, Type: vk.DescriptorTypeUniformBuffer, Buffer: ubo, Range: ubo.Size},
		{Binding: 1, Type: vk.DescriptorTypeCombinedImageSampler, Image: tex, Layout: vk.ImageLayoutShaderReadOnlyOptimal, Sampler: sampler},
		{Binding: 2, Type: vk.DescriptorTypeSampler, Sampler: sampler},
	})
	if len(writes) != 3 {
		t.Fatalf("got %d writes", len(writes))
	}
	for i, w := range writes {
		if w.DstSet != set || w.DstBinding != uint32(i) || w.DescriptorCount != 1 {
			t.Errorf("write %d: %+v", i, w)
		}
	}
	if info := writes[0].PBufferInfo; len(info) != 1 || info[0].Buffer != ubo.Handle || info[0].Range != 256 {
		t.Errorf("buffer info %+v", info)
	}
	if info := writes[1].PImageInfo; len(info) != 1 || info[0].ImageView != tex.View || info[0].Sampler != sampler || info[0].ImageLayout != vk.ImageLayoutShaderReadOnlyOptimal {
		t.Errorf("image info %+v", info)
	}
	if info := writes[2].PImageInfo; len(info) != 1 || info[0].ImageView != nil || info[0].Sampler != sampler {
		t.Errorf("sampler info %+v", info)
	}
}

func TestRenderpassKey(t *testing.T) {
	color := fakeImage("color", vk.FormatR16g16b16a16Sfloat)
	depth := fakeImage("depth", vk.FormatD32Sfloat)

	info := graph.RenderingInfo{
		PassName: "geometry",
		Color: []graph.RenderTarget{{
			Image:      color,
			Attachment: graph.ColorTarget(graph.InvalidHandle, graph.LoadOpClear, graph.StoreOpStore, graph.ClearColor(0, 0, 0, 1)),
		}},
		Depth: &graph.RenderTarget{
			Image:      depth,
			Attachment: graph.DepthTarget(graph.InvalidHandle, graph.LoadOpClear, graph.StoreOpDontCare, graph.ClearDepth(1, 0)),
		},
		Width:  64,
		Height: 32,
	}

	key := renderpassKeyFor(info)
	if key.ColorCount != 1 || !key.HasDepth {
		t.Fatalf("key %+v", key)
	}
	if key.Color[0].Format != color.Format || key.Color[0].Load != graph.LoadOpClear {
		t.Errorf("color key %+v", key.Color[0])
	}
	if key.Color[0].Layout != vk.ImageLayoutColorAttachmentOptimal || key.Depth.Layout != vk.ImageLayoutDepthStencilAttachmentOptimal {
		t.Errorf("unset layouts not defaulted: color %d depth %d", key.Color[0].Layout, key.Depth.Layout)
	}

	general := info
	general.Color = []graph.RenderTarget{{Image: color, Layout: vk.ImageLayoutGeneral, Attachment: info.Color[0].Attachment}}
	if k := renderpassKeyFor(general); k == key || k.Color[0].Layout != vk.ImageLayoutGeneral {
		t.Errorf("general layout target keyed as %+v", k.Color[0])
	}
	if d := attachmentDescription(renderpassKeyFor(general).Color[0]); d.InitialLayout != vk.ImageLayoutGeneral || d.FinalLayout != vk.ImageLayoutGeneral {
		t.Errorf("attachment layouts %d->%d", d.InitialLayout, d.FinalLayout)
	}

	// The same formats and ops on other images share a render pass.
	other := info
	other.Color = []graph.RenderTarget{{Image: fakeImage("other", color.Format), Attachment: info.Color[0].Attachment}}
	if renderpassKeyFor(other) != key {
		t.Error("compatible passes produced different keys")
	}

	loaded := info
	loaded.Color = []graph.RenderTarget{{Image: color, Attachment: graph.ColorTarget(graph.InvalidHandle, graph.LoadOpLoad, graph.StoreOpStore, graph.ClearValue{})}}
	if renderpassKeyFor(loaded) == key {
		t.Error("different load ops produced the same key")
	}

	if views := framebufferViews(info); len(views) != 2 || views[0] != color.View || views[1] != depth.View {
		t.Errorf("framebuffer views %v", views)
	}
	if values := clearValues(info); len(values) != 2 {
		t.Errorf("got %d clear values, want 2", len(values))
	}
}

func TestLayoutOr(t *testing.T) {
	if l := layoutOr(vk.ImageLayoutUndefined, vk.ImageLayoutTransferSrcOptimal); l != vk.ImageLayoutTransferSrcOptimal {
		t.Errorf("undefined layout kept: %d", l)
	}
	if l := layoutOr(vk.ImageLayoutGeneral, vk.ImageLayoutTransferSrcOptimal); l != vk.ImageLayoutGeneral {
		t.Errorf("declared layout replaced: %d", l)
	}
}

func TestUploadBarrier(t *testing.T) {
	tex := fakeImage("texture", vk.FormatR8g8b8a8Unorm)

	first := uploadBarrier(tex, graph.StateUndefined, graph.UsageTransferDst.ResourceState)
	if first.Src.Stage != vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit) || first.Src.Access != 0 {
		t.Errorf("first barrier src %+v", first.Src)
	}
	if first.Dst.Layout != vk.ImageLayoutTransferDstOptimal {
		t.Errorf("first barrier dst layout %d", first.Dst.Layout)
	}

	second := uploadBarrier(tex, graph.UsageTransferDst.ResourceState, graph.UsageSampled.ResourceState)
	if second.Src.Access != vk.AccessFlags(vk.AccessTransferWriteBit) {
		t.Errorf("second barrier src access %#x", second.Src.Access)
	}
	if second.Dst.Layout != vk.ImageLayoutShaderReadOnlyOptimal {
		t.Errorf("second barrier dst layout %d", second.Dst.Layout)
	}
}
