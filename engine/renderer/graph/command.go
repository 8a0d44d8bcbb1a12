package graph

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// Command is an opaque payload replayed verbatim once the pass barriers are
// recorded.
type Command interface {
	Replay(ctx *ReplayContext) error
}

// CommandFunc adapts a function to Command.
type CommandFunc func(ctx *ReplayContext) error

func (f CommandFunc) Replay(ctx *ReplayContext) error {
	return f(ctx)
}

// ReplayContext gives commands the recorder and resolution of handles.
type ReplayContext struct {
	Recorder Recorder
	Pass     *Pass
	registry *Registry
}

// Image resolves h to an image. A stale handle or a buffer panics.
func (c *ReplayContext) Image(h Handle) *Image {
	img, ok := c.registry.MustResolve(h).(*Image)
	if !ok {
		panic(fmt.Sprintf("graph: %s is not an image", h))
	}
	return img
}

// Layout is the layout h is in while the pass runs. Conflicting declarations
// in one pass leave it in ImageLayoutGeneral.
func (c *ReplayContext) Layout(h Handle) vk.ImageLayout {
	return c.Pass.layoutOf(h)
}

// Buffer resolves h to a buffer. A stale handle or an image panics.
func (c *ReplayContext) Buffer(h Handle) *Buffer {
	buf, ok := c.registry.MustResolve(h).(*Buffer)
	if !ok {
		panic(fmt.Sprintf("graph: %s is not a buffer", h))
	}
	return buf
}

type bindPipelineCmd struct {
	pipeline *Pipeline
}

func (c *bindPipelineCmd) Replay(ctx *ReplayContext) error {
	ctx.Recorder.BindPipeline(c.pipeline)
	return nil
}

type bindingDecl struct {
	binding uint32
	kind    vk.DescriptorType
	handle  Handle
	layout  vk.ImageLayout
	sampler vk.Sampler
}

type bindSetCmd struct {
	pipeline *Pipeline
	set      uint32
	bindings []bindingDecl
}

func (c *bindSetCmd) Replay(ctx *ReplayContext) error {
	writes := make([]DescriptorWrite, len(c.bindings))
	for i, b := range c.bindings {
		w := DescriptorWrite{Binding: b.binding, Type: b.kind, Layout: b.layout, Sampler: b.sampler}
		switch b.kind {
		case vk.DescriptorTypeUniformBuffer, vk.DescriptorTypeStorageBuffer:
			w.Buffer = ctx.Buffer(b.handle)
			w.Range = w.Buffer.Size
		case vk.DescriptorTypeSampler:
		default:
			w.Image = ctx.Image(b.handle)
			if l := ctx.Layout(b.handle); l != vk.ImageLayoutUndefined {
				w.Layout = l
			}
		}
		writes[i] = w
	}
	if err := ctx.Recorder.BindDescriptorSet(c.pipeline, c.set, writes); err != nil {
		return fmt.Errorf("binding set %d of pipeline %q: %w", c.set, c.pipeline.Name, err)
	}
	return nil
}

type pushConstantsCmd struct {
	pipeline *Pipeline
	stages   vk.ShaderStageFlags
	offset   uint32
	data     []byte
}

func (c *pushConstantsCmd) Replay(ctx *ReplayContext) error {
	ctx.Recorder.PushConstants(c.pipeline, c.stages, c.offset, c.data)
	return nil
}

type bindVertexCmd struct {
	first  uint32
	handle Handle
	offset vk.DeviceSize
}

func (c *bindVertexCmd) Replay(ctx *ReplayContext) error {
	ctx.Recorder.BindVertexBuffers(c.first, []*Buffer{ctx.Buffer(c.handle)}, []vk.DeviceSize{c.offset})
	return nil
}

type bindIndexCmd struct {
	handle    Handle
	offset    vk.DeviceSize
	indexType vk.IndexType
}

func (c *bindIndexCmd) Replay(ctx *ReplayContext) error {
	ctx.Recorder.BindIndexBuffer(ctx.Buffer(c.handle), c.offset, c.indexType)
	return nil
}

type viewportCmd struct {
	viewport vk.Viewport
}

func (c *viewportCmd) Replay(ctx *ReplayContext) error {
	ctx.Recorder.SetViewport(c.viewport)
	return nil
}

type scissorCmd struct {
	scissor vk.Rect2D
}

func (c *scissorCmd) Replay(ctx *ReplayContext) error {
	ctx.Recorder.SetScissor(c.scissor)
	return nil
}

type drawCmd struct {
	vertexCount, instanceCount, firstVertex, firstInstance uint32
}

func (c *drawCmd) Replay(ctx *ReplayContext) error {
	ctx.Recorder.Draw(c.vertexCount, c.instanceCount, c.firstVertex, c.firstInstance)
	return nil
}

type drawIndexedCmd struct {
	indexCount, instanceCount, firstIndex uint32
	vertexOffset                          int32
	firstInstance                         uint32
}

func (c *drawIndexedCmd) Replay(ctx *ReplayContext) error {
	ctx.Recorder.DrawIndexed(c.indexCount, c.instanceCount, c.firstIndex, c.vertexOffset, c.firstInstance)
	return nil
}

type dispatchCmd struct {
	x, y, z uint32
}

func (c *dispatchCmd) Replay(ctx *ReplayContext) error {
	ctx.Recorder.Dispatch(c.x, c.y, c.z)
	return nil
}

type copyBufferCmd struct {
	src, dst Handle
	regions  []vk.BufferCopy
}

func (c *copyBufferCmd) Replay(ctx *ReplayContext) error {
	src, dst := ctx.Buffer(c.src), ctx.Buffer(c.dst)
	regions := c.regions
	if len(regions) == 0 {
		size := src.Size
		if dst.Size < size {
			size = dst.Size
		}
		regions = []vk.BufferCopy{{Size: size}}
	}
	ctx.Recorder.CopyBuffer(src, dst, regions)
	return nil
}

type copyBufferToImageCmd struct {
	src, dst Handle
	regions  []vk.BufferImageCopy
}

func (c *copyBufferToImageCmd) Replay(ctx *ReplayContext) error {
	src, dst := ctx.Buffer(c.src), ctx.Image(c.dst)
	regions := c.regions
	if len(regions) == 0 {
		regions = []vk.BufferImageCopy{{
			ImageSubresource: subresourceLayers(dst),
			ImageExtent:      vk.Extent3D{Width: dst.Width, Height: dst.Height, Depth: 1},
		}}
	}
	ctx.Recorder.CopyBufferToImage(src, dst, ctx.Layout(c.dst), regions)
	return nil
}

type copyImageCmd struct {
	src, dst Handle
	regions  []vk.ImageCopy
}

func (c *copyImageCmd) Replay(ctx *ReplayContext) error {
	src, dst := ctx.Image(c.src), ctx.Image(c.dst)
	regions := c.regions
	if len(regions) == 0 {
		regions = []vk.ImageCopy{{
			SrcSubresource: subresourceLayers(src),
			DstSubresource: subresourceLayers(dst),
			Extent: vk.Extent3D{
				Width:  min(src.Width, dst.Width),
				Height: min(src.Height, dst.Height),
				Depth:  1,
			},
		}}
	}
	ctx.Recorder.CopyImage(src, ctx.Layout(c.src), dst, ctx.Layout(c.dst), regions)
	return nil
}

type blitImageCmd struct {
	src, dst Handle
	filter   vk.Filter
	regions  []vk.ImageBlit
}

func (c *blitImageCmd) Replay(ctx *ReplayContext) error {
	src, dst := ctx.Image(c.src), ctx.Image(c.dst)
	regions := c.regions
	if len(regions) == 0 {
		regions = []vk.ImageBlit{FullBlit(src, dst)}
	}
	ctx.Recorder.BlitImage(src, ctx.Layout(c.src), dst, ctx.Layout(c.dst), regions, c.filter)
	return nil
}

// FullBlit covers mip 0 of both images edge to edge.
func FullBlit(src, dst *Image) vk.ImageBlit {
	return vk.ImageBlit{
		SrcSubresource: subresourceLayers(src),
		SrcOffsets: [2]vk.Offset3D{
			{},
			{X: int32(src.Width), Y: int32(src.Height), Z: 1},
		},
		DstSubresource: subresourceLayers(dst),
		DstOffsets: [2]vk.Offset3D{
			{},
			{X: int32(dst.Width), Y: int32(dst.Height), Z: 1},
		},
	}
}

func subresourceLayers(img *Image) vk.ImageSubresourceLayers {
	return vk.ImageSubresourceLayers{
		AspectMask: img.Aspect(),
		LayerCount: img.Layers(),
	}
}
