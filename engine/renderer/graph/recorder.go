package graph

import (
	vk "github.com/goki/vulkan"
)

// Pipeline is a compiled pipeline passes can bind.
type Pipeline struct {
	Name       string
	Handle     vk.Pipeline
	Layout     vk.PipelineLayout
	SetLayouts []vk.DescriptorSetLayout
	BindPoint  vk.PipelineBindPoint
}

// DescriptorWrite is one resolved (binding, resource) pair of a descriptor
// set.
type DescriptorWrite struct {
	Binding uint32
	Type    vk.DescriptorType
	Buffer  *Buffer
	Offset  vk.DeviceSize
	Range   vk.DeviceSize
	Image   *Image
	Layout  vk.ImageLayout
	Sampler vk.Sampler
}

// RenderTarget is a resolved attachment of a graphics pass. Layout is the
// layout the barriers left the image in for the pass.
type RenderTarget struct {
	Image  *Image
	Layout vk.ImageLayout
	Attachment
}

// RenderingInfo describes the attachments a graphics pass renders into.
type RenderingInfo struct {
	PassName string
	Color    []RenderTarget
	Depth    *RenderTarget
	Width    uint32
	Height   uint32
}

// Recorder writes the replayed command stream into a command buffer.
type Recorder interface {
	PipelineBarrier(barriers []Barrier)
	BeginRendering(info RenderingInfo)
	EndRendering()

	BindPipeline(p *Pipeline)
	BindDescriptorSet(p *Pipeline, set uint32, writes []DescriptorWrite) error
	PushConstants(p *Pipeline, stages vk.ShaderStageFlags, offset uint32, data []byte)
	BindVertexBuffers(first uint32, buffers []*Buffer, offsets []vk.DeviceSize)
	BindIndexBuffer(buffer *Buffer, offset vk.DeviceSize, indexType vk.IndexType)
	SetViewport(viewport vk.Viewport)
	SetScissor(scissor vk.Rect2D)

	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	Dispatch(x, y, z uint32)

	CopyBuffer(src, dst *Buffer, regions []vk.BufferCopy)
	CopyBufferToImage(src *Buffer, dst *Image, dstLayout vk.ImageLayout, regions []vk.BufferImageCopy)
	CopyImage(src *Image, srcLayout vk.ImageLayout, dst *Image, dstLayout vk.ImageLayout, regions []vk.ImageCopy)
	BlitImage(src *Image, srcLayout vk.ImageLayout, dst *Image, dstLayout vk.ImageLayout, regions []vk.ImageBlit, filter vk.Filter)
}
