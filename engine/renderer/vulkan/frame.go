package vulkan

import (
	vk "github.com/goki/vulkan"
)

// VulkanFrame holds the objects of one frame-in-flight slot.
type VulkanFrame struct {
	CommandBuffer  *VulkanCommandBuffer
	Fence          *VulkanFence
	ImageAvailable vk.Semaphore
	RenderComplete vk.Semaphore

	// Framebuffers recorded into CommandBuffer, freed after the fence wait.
	framebuffers []*VulkanFramebuffer
}

func newSemaphore(context *VulkanContext) (vk.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if res := vk.CreateSemaphore(context.Device.LogicalDevice, &semaphoreCreateInfo, context.Allocator, &semaphore); res != vk.Success {
		return vk.NullSemaphore, vulkanError("vkCreateSemaphore", res)
	}
	return semaphore, nil
}

func FrameCreate(context *VulkanContext) (*VulkanFrame, error) {
	frame := &VulkanFrame{}
	var err error

	if frame.CommandBuffer, err = NewVulkanCommandBuffer(context, context.Device.GraphicsCommandPool, true); err != nil {
		return nil, err
	}
	if frame.ImageAvailable, err = newSemaphore(context); err != nil {
		frame.FrameDestroy(context)
		return nil, err
	}
	if frame.RenderComplete, err = newSemaphore(context); err != nil {
		frame.FrameDestroy(context)
		return nil, err
	}
	// Created signaled so the first wait on a fresh slot returns at once.
	if frame.Fence, err = NewFence(context, true); err != nil {
		frame.FrameDestroy(context)
		return nil, err
	}
	return frame, nil
}

func (f *VulkanFrame) retain(fb *VulkanFramebuffer) {
	f.framebuffers = append(f.framebuffers, fb)
}

func (f *VulkanFrame) releaseFramebuffers(context *VulkanContext) {
	for _, fb := range f.framebuffers {
		fb.Destroy(context)
	}
	f.framebuffers = f.framebuffers[:0]
}

func (f *VulkanFrame) FrameDestroy(context *VulkanContext) {
	f.releaseFramebuffers(context)
	if f.Fence != nil {
		f.Fence.FenceDestroy(context)
		f.Fence = nil
	}
	if f.RenderComplete != vk.NullSemaphore {
		vk.DestroySemaphore(context.Device.LogicalDevice, f.RenderComplete, context.Allocator)
		f.RenderComplete = vk.NullSemaphore
	}
	if f.ImageAvailable != vk.NullSemaphore {
		vk.DestroySemaphore(context.Device.LogicalDevice, f.ImageAvailable, context.Allocator)
		f.ImageAvailable = vk.NullSemaphore
	}
	if f.CommandBuffer != nil {
		f.CommandBuffer.Free(context, context.Device.GraphicsCommandPool)
		f.CommandBuffer = nil
	}
}
