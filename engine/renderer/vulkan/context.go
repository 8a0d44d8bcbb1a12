package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
)

// VulkanContext holds every device level object of the backend. It is owned
// by the VulkanRenderer and passed explicitly to the helpers of this package.
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugMessenger vk.DebugReportCallback

	Device    *VulkanDevice
	Swapchain *VulkanSwapchain

	// One entry per frame-in-flight slot.
	Frames []*VulkanFrame

	Renderpasses *VulkanRenderpassCache
	Locks        *VulkanLockPool

	Vsync bool
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(vc.Device.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(memoryProperties.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

// allocateMemory allocates device memory matching the requirements.
func (vc *VulkanContext) allocateMemory(requirements vk.MemoryRequirements, properties vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	requirements.Deref()
	index := vc.FindMemoryIndex(requirements.MemoryTypeBits, uint32(properties))
	if index == -1 {
		err := fmt.Errorf("required memory type not found, flags %#x", uint32(properties))
		core.LogError(err.Error())
		return nil, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(index),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(vc.Device.LogicalDevice, &allocateInfo, vc.Allocator, &memory); res != vk.Success {
		return nil, vulkanError("vkAllocateMemory", res)
	}
	return memory, nil
}
