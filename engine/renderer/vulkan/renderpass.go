package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/graph"
)

const maxColorAttachments = 8

type renderpassAttachmentKey struct {
	Format vk.Format
	Load   graph.LoadOp
	Store  graph.StoreOp
	Layout vk.ImageLayout
}

// renderpassKey identifies a compatible render pass. Attachments start and
// end in the layout the graph barriers left them in.
type renderpassKey struct {
	Color      [maxColorAttachments]renderpassAttachmentKey
	ColorCount int
	Depth      renderpassAttachmentKey
	HasDepth   bool
}

func renderpassKeyFor(info graph.RenderingInfo) renderpassKey {
	var key renderpassKey
	for i, target := range info.Color {
		if i == maxColorAttachments {
			core.LogWarn("pass '%s' has more than %d color targets, extra targets are ignored", info.PassName, maxColorAttachments)
			break
		}
		key.Color[i] = renderpassAttachmentKey{target.Image.Format, target.Load, target.Store,
			layoutOr(target.Layout, vk.ImageLayoutColorAttachmentOptimal)}
		key.ColorCount++
	}
	if info.Depth != nil {
		key.HasDepth = true
		key.Depth = renderpassAttachmentKey{info.Depth.Image.Format, info.Depth.Load, info.Depth.Store,
			layoutOr(info.Depth.Layout, vk.ImageLayoutDepthStencilAttachmentOptimal)}
	}
	return key
}

type VulkanRenderpass struct {
	Handle vk.RenderPass
	Key    renderpassKey
}

// VulkanRenderpassCache creates render passes on first use and keeps them
// until the device is destroyed.
type VulkanRenderpassCache struct {
	passes map[renderpassKey]*VulkanRenderpass
}

func NewVulkanRenderpassCache() *VulkanRenderpassCache {
	return &VulkanRenderpassCache{
		passes: make(map[renderpassKey]*VulkanRenderpass),
	}
}

func (c *VulkanRenderpassCache) Get(context *VulkanContext, info graph.RenderingInfo) (*VulkanRenderpass, error) {
	key := renderpassKeyFor(info)
	if rp, ok := c.passes[key]; ok {
		return rp, nil
	}
	rp, err := RenderpassCreate(context, key)
	if err != nil {
		return nil, err
	}
	c.passes[key] = rp
	return rp, nil
}

func (c *VulkanRenderpassCache) Len() int {
	return len(c.passes)
}

func (c *VulkanRenderpassCache) Destroy(context *VulkanContext) {
	for key, rp := range c.passes {
		rp.RenderpassDestroy(context)
		delete(c.passes, key)
	}
}

func attachmentDescription(a renderpassAttachmentKey) vk.AttachmentDescription {
	return vk.AttachmentDescription{
		Format:         a.Format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         a.Load.Vulkan(),
		StoreOp:        a.Store.Vulkan(),
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  a.Layout,
		FinalLayout:    a.Layout,
	}
}

func RenderpassCreate(context *VulkanContext, key renderpassKey) (*VulkanRenderpass, error) {
	attachments := make([]vk.AttachmentDescription, 0, key.ColorCount+1)
	colorRefs := make([]vk.AttachmentReference, 0, key.ColorCount)
	for i := 0; i < key.ColorCount; i++ {
		attachments = append(attachments, attachmentDescription(key.Color[i]))
		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     key.Color[i].Layout,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}

	if key.HasDepth {
		depth := attachmentDescription(key.Depth)
		if graph.AspectForFormat(key.Depth.Format)&vk.ImageAspectFlags(vk.ImageAspectStencilBit) != 0 {
			depth.StencilLoadOp = depth.LoadOp
			depth.StencilStoreOp = depth.StoreOp
		}
		attachments = append(attachments, depth)
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(attachments) - 1),
			Layout:     key.Depth.Layout,
		}
	}

	// No subpass dependencies: the graph records the barriers before the pass.
	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}

	var handle vk.RenderPass
	if res := vk.CreateRenderPass(context.Device.LogicalDevice, &renderpassCreateInfo, context.Allocator, &handle); res != vk.Success {
		return nil, vulkanError("vkCreateRenderPass", res)
	}
	core.LogDebug("Render pass created: %d color, depth %t.", key.ColorCount, key.HasDepth)
	return &VulkanRenderpass{Handle: handle, Key: key}, nil
}

func (vr *VulkanRenderpass) RenderpassDestroy(context *VulkanContext) {
	if vr.Handle != nil {
		vk.DestroyRenderPass(context.Device.LogicalDevice, vr.Handle, context.Allocator)
		vr.Handle = nil
	}
}

func clearValues(info graph.RenderingInfo) []vk.ClearValue {
	values := make([]vk.ClearValue, 0, len(info.Color)+1)
	for i, target := range info.Color {
		if i == maxColorAttachments {
			break
		}
		var v vk.ClearValue
		v.SetColor(target.Clear.Color[:])
		values = append(values, v)
	}
	if info.Depth != nil {
		var v vk.ClearValue
		v.SetDepthStencil(info.Depth.Clear.Depth, info.Depth.Clear.Stencil)
		values = append(values, v)
	}
	return values
}

func (vr *VulkanRenderpass) RenderpassBegin(commandBuffer *VulkanCommandBuffer, framebuffer vk.Framebuffer, info graph.RenderingInfo) {
	values := clearValues(info)
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vr.Handle,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: info.Width, Height: info.Height},
		},
		ClearValueCount: uint32(len(values)),
		PClearValues:    values,
	}

	vk.CmdBeginRenderPass(commandBuffer.Handle, &beginInfo, vk.SubpassContentsInline)
	commandBuffer.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (vr *VulkanRenderpass) RenderpassEnd(commandBuffer *VulkanCommandBuffer) {
	vk.CmdEndRenderPass(commandBuffer.Handle)
	commandBuffer.State = COMMAND_BUFFER_STATE_RECORDING
}
