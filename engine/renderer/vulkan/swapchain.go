package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"

	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer"
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/graph"
)

type VulkanSwapchain struct {
	Handle      vk.Swapchain
	ImageFormat vk.SurfaceFormat
	PresentMode vk.PresentMode
	Extent      vk.Extent2D

	// Images are owned by the swapchain, only the views are ours.
	Images []*graph.Image
}

type VulkanSwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, format := range formats {
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format
		}
	}
	return formats[0]
}

// choosePresentMode returns FIFO when vsync is on, otherwise mailbox, then
// immediate, when available. FIFO is always supported.
func choosePresentMode(modes []vk.PresentMode, vsync bool) vk.PresentMode {
	if vsync {
		return vk.PresentModeFifo
	}
	fallback := vk.PresentModeFifo
	for _, mode := range modes {
		switch mode {
		case vk.PresentModeMailbox:
			return mode
		case vk.PresentModeImmediate:
			fallback = mode
		}
	}
	return fallback
}

func chooseExtent(capabilities vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	if capabilities.CurrentExtent.Width != math.MaxUint32 {
		return capabilities.CurrentExtent
	}
	lo := capabilities.MinImageExtent
	hi := capabilities.MaxImageExtent
	return vk.Extent2D{
		Width:  Clamp(width, lo.Width, hi.Width),
		Height: Clamp(height, lo.Height, hi.Height),
	}
}

func chooseImageCount(capabilities vk.SurfaceCapabilities) uint32 {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && imageCount > capabilities.MaxImageCount {
		imageCount = capabilities.MaxImageCount
	}
	return imageCount
}

func SwapchainCreate(context *VulkanContext, width uint32, height uint32) (*VulkanSwapchain, error) {
	return createSwapchain(context, width, height, nil)
}

// SwapchainRecreate builds a new swapchain from the old one and destroys the
// old one afterwards. The caller must have waited for the device to idle.
func (vs *VulkanSwapchain) SwapchainRecreate(context *VulkanContext, width uint32, height uint32) (*VulkanSwapchain, error) {
	if err := DeviceQuerySwapchainSupport(context.Device.PhysicalDevice, context.Surface, &context.Device.SwapchainSupport); err != nil {
		return nil, err
	}
	sc, err := createSwapchain(context, width, height, vs.Handle)
	if err != nil {
		return nil, err
	}
	vs.SwapchainDestroy(context)
	return sc, nil
}

func (vs *VulkanSwapchain) SwapchainDestroy(context *VulkanContext) {
	for _, image := range vs.Images {
		if image != nil && image.View != nil {
			vk.DestroyImageView(context.Device.LogicalDevice, image.View, context.Allocator)
			image.View = nil
		}
	}
	vs.Images = nil
	if vs.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(context.Device.LogicalDevice, vs.Handle, context.Allocator)
		vs.Handle = vk.NullSwapchain
	}
}

func (vs *VulkanSwapchain) SwapchainAcquireNextImageIndex(context *VulkanContext, timeoutNS uint64, imageAvailableSemaphore vk.Semaphore) (uint32, renderer.SwapchainStatus, error) {
	var imageIndex uint32
	result := vk.AcquireNextImage(context.Device.LogicalDevice, vs.Handle, timeoutNS, imageAvailableSemaphore, vk.NullFence, &imageIndex)
	switch result {
	case vk.Success:
		return imageIndex, renderer.SwapchainOK, nil
	case vk.Suboptimal:
		return imageIndex, renderer.SwapchainSuboptimal, nil
	case vk.ErrorOutOfDate:
		return 0, renderer.SwapchainOutOfDate, nil
	default:
		return 0, renderer.SwapchainOK, vulkanError("vkAcquireNextImageKHR", result)
	}
}

func (vs *VulkanSwapchain) SwapchainPresent(context *VulkanContext, queue vk.Queue, renderCompleteSemaphore vk.Semaphore, presentImageIndex uint32) (renderer.SwapchainStatus, error) {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{renderCompleteSemaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vs.Handle},
		PImageIndices:      []uint32{presentImageIndex},
	}

	result := vk.QueuePresent(queue, &presentInfo)
	switch result {
	case vk.Success:
		return renderer.SwapchainOK, nil
	case vk.Suboptimal:
		return renderer.SwapchainSuboptimal, nil
	case vk.ErrorOutOfDate:
		return renderer.SwapchainOutOfDate, nil
	default:
		return renderer.SwapchainOK, vulkanError("vkQueuePresentKHR", result)
	}
}

func createSwapchain(context *VulkanContext, width, height uint32, old vk.Swapchain) (*VulkanSwapchain, error) {
	support := context.Device.SwapchainSupport
	if len(support.Formats) == 0 {
		err := fmt.Errorf("surface reports no formats")
		core.LogError(err.Error())
		return nil, err
	}

	swapchain := &VulkanSwapchain{
		ImageFormat: chooseSurfaceFormat(support.Formats),
		PresentMode: choosePresentMode(support.PresentModes, context.Vsync),
		Extent:      chooseExtent(support.Capabilities, width, height),
	}

	// Frames are usually blitted into the swapchain image.
	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    chooseImageCount(support.Capabilities),
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      swapchain.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      swapchain.PresentMode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}

	var handle vk.Swapchain
	if res := vk.CreateSwapchain(context.Device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &handle); res != vk.Success {
		return nil, vulkanError("vkCreateSwapchainKHR", res)
	}
	swapchain.Handle = handle

	var imageCount uint32
	if res := vk.GetSwapchainImages(context.Device.LogicalDevice, handle, &imageCount, nil); res != vk.Success {
		return nil, vulkanError("vkGetSwapchainImagesKHR", res)
	}
	images := make([]vk.Image, imageCount)
	if res := vk.GetSwapchainImages(context.Device.LogicalDevice, handle, &imageCount, images); res != vk.Success {
		return nil, vulkanError("vkGetSwapchainImagesKHR", res)
	}

	swapchain.Images = make([]*graph.Image, imageCount)
	for i, image := range images {
		view, err := ImageViewCreate(context, image, swapchain.ImageFormat.Format, graph.AspectForFormat(swapchain.ImageFormat.Format), 1)
		if err != nil {
			swapchain.SwapchainDestroy(context)
			return nil, err
		}
		swapchain.Images[i] = &graph.Image{
			Name:   fmt.Sprintf("swapchain[%d]", i),
			Handle: image,
			View:   view,
			Format: swapchain.ImageFormat.Format,
			Width:  swapchain.Extent.Width,
			Height: swapchain.Extent.Height,
		}
	}

	core.LogInfo("Swapchain created: %dx%d, %d images.", swapchain.Extent.Width, swapchain.Extent.Height, imageCount)
	return swapchain, nil
}
