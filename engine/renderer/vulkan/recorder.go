package vulkan

import (
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/descriptor"
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/graph"
)

// VulkanRecorder writes replayed graph commands into a command buffer.
type VulkanRecorder struct {
	context       *VulkanContext
	commandBuffer *VulkanCommandBuffer
	frame         *VulkanFrame
	descriptors   *descriptor.Allocator
	renderpass    *VulkanRenderpass
}

var _ graph.Recorder = (*VulkanRecorder)(nil)

func NewVulkanRecorder(context *VulkanContext, frame *VulkanFrame, descriptors *descriptor.Allocator) *VulkanRecorder {
	return &VulkanRecorder{
		context:       context,
		commandBuffer: frame.CommandBuffer,
		frame:         frame,
		descriptors:   descriptors,
	}
}

func (r *VulkanRecorder) cmd() vk.CommandBuffer {
	return r.commandBuffer.Handle
}

type barrierBatch struct {
	srcStage vk.PipelineStageFlags
	dstStage vk.PipelineStageFlags
	buffers  []vk.BufferMemoryBarrier
	images   []vk.ImageMemoryBarrier
}

// batchBarriers folds a pass's barriers into a single vkCmdPipelineBarrier.
// Empty stage masks fall back to top and bottom of pipe.
func batchBarriers(barriers []graph.Barrier) barrierBatch {
	var batch barrierBatch
	for _, b := range barriers {
		batch.srcStage |= b.Src.Stage
		batch.dstStage |= b.Dst.Stage
		if b.IsImage() {
			batch.images = append(batch.images, vk.ImageMemoryBarrier{
				SType:               vk.StructureTypeImageMemoryBarrier,
				SrcAccessMask:       b.Src.Access,
				DstAccessMask:       b.Dst.Access,
				OldLayout:           b.Src.Layout,
				NewLayout:           b.Dst.Layout,
				SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
				DstQueueFamilyIndex: vk.QueueFamilyIgnored,
				Image:               b.Image.Handle,
				SubresourceRange: vk.ImageSubresourceRange{
					AspectMask: b.Aspect(),
					LevelCount: b.Image.Levels(),
					LayerCount: b.Image.Layers(),
				},
			})
			continue
		}
		batch.buffers = append(batch.buffers, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       b.Src.Access,
			DstAccessMask:       b.Dst.Access,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              b.Buffer.Handle,
			Size:                vk.DeviceSize(vk.WholeSize),
		})
	}
	if batch.srcStage == 0 {
		batch.srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	if batch.dstStage == 0 {
		batch.dstStage = vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}
	return batch
}

func (r *VulkanRecorder) PipelineBarrier(barriers []graph.Barrier) {
	if len(barriers) == 0 {
		return
	}
	batch := batchBarriers(barriers)
	vk.CmdPipelineBarrier(r.cmd(), batch.srcStage, batch.dstStage, 0,
		0, nil,
		uint32(len(batch.buffers)), batch.buffers,
		uint32(len(batch.images)), batch.images)
}

func (r *VulkanRecorder) BeginRendering(info graph.RenderingInfo) {
	rp, err := r.context.Renderpasses.Get(r.context, info)
	if err != nil {
		core.LogFatal("pass '%s': %s", info.PassName, err)
	}
	fb, err := FramebufferCreate(r.context, rp, info.Width, info.Height, framebufferViews(info))
	if err != nil {
		core.LogFatal("pass '%s': %s", info.PassName, err)
	}
	r.frame.retain(fb)

	rp.RenderpassBegin(r.commandBuffer, fb.Handle, info)
	r.renderpass = rp

	r.SetViewport(vk.Viewport{
		Width:    float32(info.Width),
		Height:   float32(info.Height),
		MaxDepth: 1.0,
	})
	r.SetScissor(vk.Rect2D{Extent: vk.Extent2D{Width: info.Width, Height: info.Height}})
}

func (r *VulkanRecorder) EndRendering() {
	if r.renderpass == nil {
		return
	}
	r.renderpass.RenderpassEnd(r.commandBuffer)
	r.renderpass = nil
}

func (r *VulkanRecorder) BindPipeline(p *graph.Pipeline) {
	vk.CmdBindPipeline(r.cmd(), p.BindPoint, p.Handle)
}

// descriptorWrites converts resolved bindings into writes for set.
func descriptorWrites(set vk.DescriptorSet, writes []graph.DescriptorWrite) []vk.WriteDescriptorSet {
	out := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      w.Binding,
			DescriptorCount: 1,
			DescriptorType:  w.Type,
		}
		switch w.Type {
		case vk.DescriptorTypeUniformBuffer, vk.DescriptorTypeStorageBuffer:
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: w.Buffer.Handle,
				Offset: w.Offset,
				Range:  w.Range,
			}}
		default:
			info := vk.DescriptorImageInfo{
				Sampler:     w.Sampler,
				ImageLayout: w.Layout,
			}
			if w.Image != nil {
				info.ImageView = w.Image.View
			}
			write.PImageInfo = []vk.DescriptorImageInfo{info}
		}
		out = append(out, write)
	}
	return out
}

func (r *VulkanRecorder) BindDescriptorSet(p *graph.Pipeline, set uint32, writes []graph.DescriptorWrite) error {
	if int(set) >= len(p.SetLayouts) {
		err := fmt.Errorf("pipeline '%s' has no descriptor set %d", p.Name, set)
		core.LogError(err.Error())
		return err
	}
	ds, err := r.descriptors.Allocate(p.SetLayouts[set])
	if errors.Is(err, core.ErrPoolExhausted) {
		panic(fmt.Errorf("pipeline '%s' set %d: %d sets in %d pools: %w",
			p.Name, set, r.descriptors.Allocated(), r.descriptors.Pools(), err))
	}
	if err != nil {
		return err
	}

	vkWrites := descriptorWrites(ds, writes)
	if len(vkWrites) > 0 {
		vk.UpdateDescriptorSets(r.context.Device.LogicalDevice, uint32(len(vkWrites)), vkWrites, 0, nil)
	}
	vk.CmdBindDescriptorSets(r.cmd(), p.BindPoint, p.Layout, set, 1, []vk.DescriptorSet{ds}, 0, nil)
	return nil
}

func (r *VulkanRecorder) PushConstants(p *graph.Pipeline, stages vk.ShaderStageFlags, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(r.cmd(), p.Layout, stages, offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (r *VulkanRecorder) BindVertexBuffers(first uint32, buffers []*graph.Buffer, offsets []vk.DeviceSize) {
	handles := make([]vk.Buffer, len(buffers))
	for i, b := range buffers {
		handles[i] = b.Handle
	}
	vk.CmdBindVertexBuffers(r.cmd(), first, uint32(len(handles)), handles, offsets)
}

func (r *VulkanRecorder) BindIndexBuffer(buffer *graph.Buffer, offset vk.DeviceSize, indexType vk.IndexType) {
	vk.CmdBindIndexBuffer(r.cmd(), buffer.Handle, offset, indexType)
}

func (r *VulkanRecorder) SetViewport(viewport vk.Viewport) {
	vk.CmdSetViewport(r.cmd(), 0, 1, []vk.Viewport{viewport})
}

func (r *VulkanRecorder) SetScissor(scissor vk.Rect2D) {
	vk.CmdSetScissor(r.cmd(), 0, 1, []vk.Rect2D{scissor})
}

func (r *VulkanRecorder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(r.cmd(), vertexCount, instanceCount, firstVertex, firstInstance)
}

func (r *VulkanRecorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(r.cmd(), indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (r *VulkanRecorder) Dispatch(x, y, z uint32) {
	vk.CmdDispatch(r.cmd(), x, y, z)
}

func (r *VulkanRecorder) CopyBuffer(src, dst *graph.Buffer, regions []vk.BufferCopy) {
	vk.CmdCopyBuffer(r.cmd(), src.Handle, dst.Handle, uint32(len(regions)), regions)
}

func (r *VulkanRecorder) CopyBufferToImage(src *graph.Buffer, dst *graph.Image, dstLayout vk.ImageLayout, regions []vk.BufferImageCopy) {
	vk.CmdCopyBufferToImage(r.cmd(), src.Handle, dst.Handle, layoutOr(dstLayout, vk.ImageLayoutTransferDstOptimal), uint32(len(regions)), regions)
}

func (r *VulkanRecorder) CopyImage(src *graph.Image, srcLayout vk.ImageLayout, dst *graph.Image, dstLayout vk.ImageLayout, regions []vk.ImageCopy) {
	vk.CmdCopyImage(r.cmd(),
		src.Handle, layoutOr(srcLayout, vk.ImageLayoutTransferSrcOptimal),
		dst.Handle, layoutOr(dstLayout, vk.ImageLayoutTransferDstOptimal),
		uint32(len(regions)), regions)
}

func (r *VulkanRecorder) BlitImage(src *graph.Image, srcLayout vk.ImageLayout, dst *graph.Image, dstLayout vk.ImageLayout, regions []vk.ImageBlit, filter vk.Filter) {
	vk.CmdBlitImage(r.cmd(),
		src.Handle, layoutOr(srcLayout, vk.ImageLayoutTransferSrcOptimal),
		dst.Handle, layoutOr(dstLayout, vk.ImageLayoutTransferDstOptimal),
		uint32(len(regions)), regions, filter)
}

// layoutOr returns layout, or fallback when the caller left it undefined.
func layoutOr(layout, fallback vk.ImageLayout) vk.ImageLayout {
	if layout == vk.ImageLayoutUndefined {
		return fallback
	}
	return layout
}
