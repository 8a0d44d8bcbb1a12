package graph

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// fakeRecorder logs every call and keeps the barrier batches.
type fakeRecorder struct {
	calls   []string
	batches [][]Barrier
	sets    [][]DescriptorWrite
	layouts [][2]vk.ImageLayout
	targets [][]RenderTarget
	bindErr error
}

func (r *fakeRecorder) PipelineBarrier(barriers []Barrier) {
	r.calls = append(r.calls, fmt.Sprintf("barrier(%d)", len(barriers)))
	r.batches = append(r.batches, barriers)
}

func (r *fakeRecorder) BeginRendering(info RenderingInfo) {
	r.calls = append(r.calls, fmt.Sprintf("begin(%s %dx%d)", info.PassName, info.Width, info.Height))
	r.targets = append(r.targets, info.Color)
}

func (r *fakeRecorder) EndRendering() { r.calls = append(r.calls, "end") }

func (r *fakeRecorder) BindPipeline(p *Pipeline) {
	r.calls = append(r.calls, "pipeline("+p.Name+")")
}

func (r *fakeRecorder) BindDescriptorSet(p *Pipeline, set uint32, writes []DescriptorWrite) error {
	r.calls = append(r.calls, fmt.Sprintf("set(%d)", set))
	r.sets = append(r.sets, writes)
	return r.bindErr
}

func (r *fakeRecorder) PushConstants(p *Pipeline, stages vk.ShaderStageFlags, offset uint32, data []byte) {
	r.calls = append(r.calls, fmt.Sprintf("push(%d)", len(data)))
}

func (r *fakeRecorder) BindVertexBuffers(first uint32, buffers []*Buffer, offsets []vk.DeviceSize) {
	r.calls = append(r.calls, "vertex("+buffers[0].Name+")")
}

func (r *fakeRecorder) BindIndexBuffer(buffer *Buffer, offset vk.DeviceSize, indexType vk.IndexType) {
	r.calls = append(r.calls, "index("+buffer.Name+")")
}

func (r *fakeRecorder) SetViewport(viewport vk.Viewport) { r.calls = append(r.calls, "viewport") }

func (r *fakeRecorder) SetScissor(scissor vk.Rect2D) { r.calls = append(r.calls, "scissor") }

func (r *fakeRecorder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	r.calls = append(r.calls, fmt.Sprintf("draw(%d)", vertexCount))
}

func (r *fakeRecorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	r.calls = append(r.calls, fmt.Sprintf("drawIndexed(%d)", indexCount))
}

func (r *fakeRecorder) Dispatch(x, y, z uint32) {
	r.calls = append(r.calls, fmt.Sprintf("dispatch(%d,%d,%d)", x, y, z))
}

func (r *fakeRecorder) CopyBuffer(src, dst *Buffer, regions []vk.BufferCopy) {
	r.calls = append(r.calls, fmt.Sprintf("copy(%s->%s %d)", src.Name, dst.Name, regions[0].Size))
}

func (r *fakeRecorder) CopyBufferToImage(src *Buffer, dst *Image, dstLayout vk.ImageLayout, regions []vk.BufferImageCopy) {
	r.calls = append(r.calls, fmt.Sprintf("upload(%s->%s)", src.Name, dst.Name))
	r.layouts = append(r.layouts, [2]vk.ImageLayout{vk.ImageLayoutUndefined, dstLayout})
}

func (r *fakeRecorder) CopyImage(src *Image, srcLayout vk.ImageLayout, dst *Image, dstLayout vk.ImageLayout, regions []vk.ImageCopy) {
	r.calls = append(r.calls, fmt.Sprintf("copyImage(%s->%s)", src.Name, dst.Name))
	r.layouts = append(r.layouts, [2]vk.ImageLayout{srcLayout, dstLayout})
}

func (r *fakeRecorder) BlitImage(src *Image, srcLayout vk.ImageLayout, dst *Image, dstLayout vk.ImageLayout, regions []vk.ImageBlit, filter vk.Filter) {
	r.calls = append(r.calls, fmt.Sprintf("blit(%s->%s)", src.Name, dst.Name))
	r.layouts = append(r.layouts, [2]vk.ImageLayout{srcLayout, dstLayout})
}

func colorImage(name string, w, h uint32) *Image {
	return &Image{Name: name, Format: vk.FormatR16g16b16a16Sfloat, Width: w, Height: h}
}

func depthImage(name string, w, h uint32) *Image {
	return &Image{Name: name, Format: vk.FormatD32Sfloat, Width: w, Height: h}
}
