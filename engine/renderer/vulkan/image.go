package vulkan

import (
	"fmt"
	"unsafe"

	"github.com/google/uuid"
	vk "github.com/goki/vulkan"

	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/graph"
)

/**
 * @brief A device image with its own memory. The embedded graph.Image is
 * what passes register.
 */
type VulkanImage struct {
	graph.Image
	Memory vk.DeviceMemory
}

/**
 * @brief The configuration of a 2D image.
 */
type VulkanImageConfig struct {
	/** @brief Debug name. A random one is generated when empty. */
	Name   string
	Width  uint32
	Height uint32
	Format vk.Format
	/** @brief Usage flags, the view aspect is derived from the format. */
	Usage       vk.ImageUsageFlags
	MipLevels   uint32
	MemoryFlags vk.MemoryPropertyFlags
}

func debugName(kind, name string) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("%s-%s", kind, uuid.NewString())
}

func ImageCreate(context *VulkanContext, config VulkanImageConfig) (*VulkanImage, error) {
	if config.MipLevels == 0 {
		config.MipLevels = 1
	}
	if config.MemoryFlags == 0 {
		config.MemoryFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	}

	out := &VulkanImage{
		Image: graph.Image{
			Name:        debugName("image", config.Name),
			Format:      config.Format,
			Width:       config.Width,
			Height:      config.Height,
			MipLevels:   config.MipLevels,
			ArrayLayers: 1,
		},
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    config.Format,
		Extent: vk.Extent3D{
			Width:  config.Width,
			Height: config.Height,
			Depth:  1,
		},
		MipLevels:     config.MipLevels,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         config.Usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	var handle vk.Image
	if res := vk.CreateImage(context.Device.LogicalDevice, &imageCreateInfo, context.Allocator, &handle); res != vk.Success {
		return nil, vulkanError("vkCreateImage", res)
	}
	out.Handle = handle

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(context.Device.LogicalDevice, handle, &requirements)
	memory, err := context.allocateMemory(requirements, config.MemoryFlags)
	if err != nil {
		out.ImageDestroy(context)
		return nil, err
	}
	out.Memory = memory

	if res := vk.BindImageMemory(context.Device.LogicalDevice, handle, memory, 0); res != vk.Success {
		out.ImageDestroy(context)
		return nil, vulkanError("vkBindImageMemory", res)
	}

	view, err := ImageViewCreate(context, handle, config.Format, graph.AspectForFormat(config.Format), config.MipLevels)
	if err != nil {
		out.ImageDestroy(context)
		return nil, err
	}
	out.View = view

	core.LogDebug("Image '%s' created: %dx%d.", out.Name, config.Width, config.Height)
	return out, nil
}

func ImageViewCreate(context *VulkanContext, image vk.Image, format vk.Format, aspect vk.ImageAspectFlags, levels uint32) (vk.ImageView, error) {
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: levels,
			LayerCount: 1,
		},
	}

	var view vk.ImageView
	if res := vk.CreateImageView(context.Device.LogicalDevice, &viewCreateInfo, context.Allocator, &view); res != vk.Success {
		return nil, vulkanError("vkCreateImageView", res)
	}
	return view, nil
}

func (vi *VulkanImage) ImageDestroy(context *VulkanContext) {
	if vi.View != nil {
		vk.DestroyImageView(context.Device.LogicalDevice, vi.View, context.Allocator)
		vi.View = nil
	}
	if vi.Memory != nil {
		vk.FreeMemory(context.Device.LogicalDevice, vi.Memory, context.Allocator)
		vi.Memory = nil
	}
	if vi.Handle != nil {
		vk.DestroyImage(context.Device.LogicalDevice, vi.Handle, context.Allocator)
		vi.Handle = nil
	}
}

/**
 * @brief A device buffer with its own memory.
 */
type VulkanBuffer struct {
	graph.Buffer
	Memory      vk.DeviceMemory
	Usage       vk.BufferUsageFlags
	MemoryFlags vk.MemoryPropertyFlags
}

func BufferCreate(context *VulkanContext, name string, size uint64, usage vk.BufferUsageFlags, memoryFlags vk.MemoryPropertyFlags) (*VulkanBuffer, error) {
	out := &VulkanBuffer{
		Buffer: graph.Buffer{
			Name: debugName("buffer", name),
			Size: vk.DeviceSize(size),
		},
		Usage:       usage,
		MemoryFlags: memoryFlags,
	}

	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}

	var handle vk.Buffer
	if res := vk.CreateBuffer(context.Device.LogicalDevice, &bufferCreateInfo, context.Allocator, &handle); res != vk.Success {
		return nil, vulkanError("vkCreateBuffer", res)
	}
	out.Handle = handle

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, handle, &requirements)
	memory, err := context.allocateMemory(requirements, memoryFlags)
	if err != nil {
		out.BufferDestroy(context)
		return nil, err
	}
	out.Memory = memory

	if res := vk.BindBufferMemory(context.Device.LogicalDevice, handle, memory, 0); res != vk.Success {
		out.BufferDestroy(context)
		return nil, vulkanError("vkBindBufferMemory", res)
	}
	return out, nil
}

// LoadData copies data into host visible memory at offset.
func (vb *VulkanBuffer) LoadData(context *VulkanContext, offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var mapped unsafe.Pointer
	if res := vk.MapMemory(context.Device.LogicalDevice, vb.Memory, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &mapped); res != vk.Success {
		return vulkanError("vkMapMemory", res)
	}
	copy(unsafe.Slice((*byte)(mapped), len(data)), data)
	vk.UnmapMemory(context.Device.LogicalDevice, vb.Memory)
	return nil
}

func (vb *VulkanBuffer) BufferDestroy(context *VulkanContext) {
	if vb.Memory != nil {
		vk.FreeMemory(context.Device.LogicalDevice, vb.Memory, context.Allocator)
		vb.Memory = nil
	}
	if vb.Handle != nil {
		vk.DestroyBuffer(context.Device.LogicalDevice, vb.Handle, context.Allocator)
		vb.Handle = nil
	}
}

// ImageUpload fills the first mip of image with tightly packed pixels and
// leaves it in ShaderReadOnlyOptimal. It blocks until the copy completed.
func ImageUpload(context *VulkanContext, image *VulkanImage, pixels []byte) error {
	staging, err := BufferCreate(context, image.Name+"-staging", uint64(len(pixels)),
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return err
	}
	defer staging.BufferDestroy(context)

	if err := staging.LoadData(context, 0, pixels); err != nil {
		return err
	}

	pool := context.Device.GraphicsCommandPool
	cb, err := AllocateAndBeginSingleUse(context, pool)
	if err != nil {
		return err
	}

	rec := &VulkanRecorder{context: context, commandBuffer: cb}
	toTransfer := uploadBarrier(&image.Image, graph.StateUndefined, graph.UsageTransferDst.ResourceState)
	rec.PipelineBarrier([]graph.Barrier{toTransfer})
	rec.CopyBufferToImage(&staging.Buffer, &image.Image, vk.ImageLayoutTransferDstOptimal, []vk.BufferImageCopy{{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: image.Aspect(),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{Width: image.Width, Height: image.Height, Depth: 1},
	}})
	toSampled := uploadBarrier(&image.Image, graph.UsageTransferDst.ResourceState, graph.UsageSampled.ResourceState)
	rec.PipelineBarrier([]graph.Barrier{toSampled})

	return cb.EndSingleUse(context, pool, context.Device.GraphicsQueue)
}

func uploadBarrier(image *graph.Image, src, dst graph.ResourceState) graph.Barrier {
	if src.Stage == 0 {
		src.Stage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	src.Access &= vk.AccessFlags(vk.AccessTransferWriteBit)
	return graph.Barrier{Image: image, Src: src, Dst: dst}
}
