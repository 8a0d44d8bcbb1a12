package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/graph"
)

// VulkanFramebuffer lives for one frame: attachment images may be rebuilt
// at any resize, so framebuffers are released once the slot's fence says the
// GPU is done with them.
type VulkanFramebuffer struct {
	Handle      vk.Framebuffer
	Attachments []vk.ImageView
	Renderpass  *VulkanRenderpass
}

func framebufferViews(info graph.RenderingInfo) []vk.ImageView {
	views := make([]vk.ImageView, 0, len(info.Color)+1)
	for i, target := range info.Color {
		if i == maxColorAttachments {
			break
		}
		views = append(views, target.Image.View)
	}
	if info.Depth != nil {
		views = append(views, info.Depth.Image.View)
	}
	return views
}

func FramebufferCreate(context *VulkanContext, renderpass *VulkanRenderpass, width uint32, height uint32, attachments []vk.ImageView) (*VulkanFramebuffer, error) {
	out := &VulkanFramebuffer{
		Attachments: append([]vk.ImageView(nil), attachments...),
		Renderpass:  renderpass,
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: uint32(len(out.Attachments)),
		PAttachments:    out.Attachments,
		Width:           width,
		Height:          height,
		Layers:          1,
	}

	var handle vk.Framebuffer
	if res := vk.CreateFramebuffer(context.Device.LogicalDevice, &framebufferCreateInfo, context.Allocator, &handle); res != vk.Success {
		return nil, vulkanError("vkCreateFramebuffer", res)
	}
	out.Handle = handle
	return out, nil
}

func (vfb *VulkanFramebuffer) Destroy(context *VulkanContext) {
	if vfb.Handle != nil {
		vk.DestroyFramebuffer(context.Device.LogicalDevice, vfb.Handle, context.Allocator)
	}
	vfb.Handle = nil
	vfb.Attachments = nil
	vfb.Renderpass = nil
}
