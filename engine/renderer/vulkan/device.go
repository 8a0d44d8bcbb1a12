package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
)

const portabilitySubsetExtension = "VK_KHR_portability_subset"

type VulkanDevice struct {
	PhysicalDevice   vk.PhysicalDevice
	LogicalDevice    vk.Device
	SwapchainSupport VulkanSwapchainSupportInfo
	Queues           VulkanPhysicalDeviceQueueFamilyInfo

	// Frames, uploads and presentation all go through the graphics queue.
	GraphicsQueue       vk.Queue
	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	DepthFormat vk.Format
}

type VulkanPhysicalDeviceRequirements struct {
	Compute              bool
	DeviceExtensionNames []string
	SamplerAnisotropy    bool
}

// VulkanPhysicalDeviceQueueFamilyInfo holds the chosen family per role, -1
// when the device has none.
type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
	ComputeFamilyIndex  int32
	TransferFamilyIndex int32
}

type queueFamilyCaps struct {
	Flags   vk.QueueFlags
	Present bool
}

func hasQueueBit(flags vk.QueueFlags, bit vk.QueueFlagBits) bool {
	return flags&vk.QueueFlags(bit) != 0
}

// selectQueueFamilies prefers a graphics family that can also present and
// compute. The transfer family is the one with the fewest other
// capabilities, which favours dedicated transfer queues.
func selectQueueFamilies(families []queueFamilyCaps) VulkanPhysicalDeviceQueueFamilyInfo {
	info := VulkanPhysicalDeviceQueueFamilyInfo{-1, -1, -1, -1}
	bestGraphics := -1
	minTransferScore := 255
	for i, f := range families {
		if hasQueueBit(f.Flags, vk.QueueGraphicsBit) {
			score := 0
			if f.Present {
				score += 2
			}
			if hasQueueBit(f.Flags, vk.QueueComputeBit) {
				score++
			}
			if score > bestGraphics {
				bestGraphics = score
				info.GraphicsFamilyIndex = int32(i)
			}
		}
		if f.Present && info.PresentFamilyIndex == -1 {
			info.PresentFamilyIndex = int32(i)
		}
		if hasQueueBit(f.Flags, vk.QueueComputeBit) && info.ComputeFamilyIndex == -1 {
			info.ComputeFamilyIndex = int32(i)
		}
		if hasQueueBit(f.Flags, vk.QueueTransferBit) {
			score := 0
			if hasQueueBit(f.Flags, vk.QueueGraphicsBit) {
				score++
			}
			if hasQueueBit(f.Flags, vk.QueueComputeBit) {
				score++
			}
			if score < minTransferScore {
				minTransferScore = score
				info.TransferFamilyIndex = int32(i)
			}
		}
	}

	if g := info.GraphicsFamilyIndex; g != -1 {
		if families[g].Present {
			info.PresentFamilyIndex = g
		}
		if hasQueueBit(families[g].Flags, vk.QueueComputeBit) {
			info.ComputeFamilyIndex = g
		}
	}
	return info
}

// meets reports whether one queue can record, compute and present.
func (q VulkanPhysicalDeviceQueueFamilyInfo) meets(req *VulkanPhysicalDeviceRequirements) bool {
	if q.GraphicsFamilyIndex == -1 || q.PresentFamilyIndex != q.GraphicsFamilyIndex {
		return false
	}
	if req.Compute && q.ComputeFamilyIndex != q.GraphicsFamilyIndex {
		return false
	}
	return true
}

func DeviceCreate(context *VulkanContext, requirements *VulkanPhysicalDeviceRequirements) error {
	context.Device = &VulkanDevice{}
	if err := SelectPhysicalDevice(context, requirements); err != nil {
		return err
	}

	core.LogInfo("Creating logical device...")

	extensionNames := append([]string{}, requirements.DeviceExtensionNames...)
	available, err := deviceExtensions(context.Device.PhysicalDevice)
	if err != nil {
		return err
	}
	if available[portabilitySubsetExtension] {
		core.LogInfo("Adding required extension '%s'.", portabilitySubsetExtension)
		extensionNames = append(extensionNames, portabilitySubsetExtension)
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{}
	if context.Device.Features.SamplerAnisotropy == vk.True {
		deviceFeatures.SamplerAnisotropy = vk.True
	}

	queueCreateInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: uint32(context.Device.Queues.GraphicsFamilyIndex),
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    1,
		PQueueCreateInfos:       []vk.DeviceQueueCreateInfo{queueCreateInfo},
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	var device vk.Device
	if res := vk.CreateDevice(context.Device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &device); res != vk.Success {
		return vulkanError("vkCreateDevice", res)
	}
	context.Device.LogicalDevice = device
	core.LogInfo("Logical device created.")

	var queue vk.Queue
	vk.GetDeviceQueue(device, uint32(context.Device.Queues.GraphicsFamilyIndex), 0, &queue)
	context.Device.GraphicsQueue = queue
	core.LogInfo("Queues obtained.")

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(context.Device.Queues.GraphicsFamilyIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(device, &poolCreateInfo, context.Allocator, &pool); res != vk.Success {
		return vulkanError("vkCreateCommandPool", res)
	}
	context.Device.GraphicsCommandPool = pool
	core.LogInfo("Graphics command pool created.")

	if !DeviceDetectDepthFormat(context.Device) {
		context.Device.DepthFormat = vk.FormatUndefined
		core.LogWarn("No supported depth format found.")
	}
	return nil
}

func DeviceDestroy(context *VulkanContext) {
	if context.Device == nil {
		return
	}
	context.Device.GraphicsQueue = nil

	if context.Device.GraphicsCommandPool != nil {
		core.LogInfo("Destroying command pools...")
		vk.DestroyCommandPool(context.Device.LogicalDevice, context.Device.GraphicsCommandPool, context.Allocator)
		context.Device.GraphicsCommandPool = nil
	}

	if context.Device.LogicalDevice != nil {
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(context.Device.LogicalDevice, context.Allocator)
		context.Device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	context.Device.PhysicalDevice = nil
	context.Device.SwapchainSupport = VulkanSwapchainSupportInfo{}
}

func deviceExtensions(device vk.PhysicalDevice) (map[string]bool, error) {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success {
		return nil, vulkanError("vkEnumerateDeviceExtensionProperties", res)
	}
	properties := make([]vk.ExtensionProperties, count)
	if count > 0 {
		if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, properties); res != vk.Success {
			return nil, vulkanError("vkEnumerateDeviceExtensionProperties", res)
		}
	}
	names := make(map[string]bool, count)
	for i := range properties {
		properties[i].Deref()
		names[cString(properties[i].ExtensionName[:])] = true
	}
	return names, nil
}

func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface, supportInfo *VulkanSwapchainSupportInfo) error {
	var capabilities vk.SurfaceCapabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &capabilities); res != vk.Success {
		return vulkanError("vkGetPhysicalDeviceSurfaceCapabilitiesKHR", res)
	}
	capabilities.Deref()
	capabilities.CurrentExtent.Deref()
	capabilities.MinImageExtent.Deref()
	capabilities.MaxImageExtent.Deref()
	supportInfo.Capabilities = capabilities

	var formatCount uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil); res != vk.Success {
		return vulkanError("vkGetPhysicalDeviceSurfaceFormatsKHR", res)
	}
	supportInfo.Formats = make([]vk.SurfaceFormat, formatCount)
	if formatCount > 0 {
		if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, supportInfo.Formats); res != vk.Success {
			return vulkanError("vkGetPhysicalDeviceSurfaceFormatsKHR", res)
		}
		for i := range supportInfo.Formats {
			supportInfo.Formats[i].Deref()
		}
	}

	var modeCount uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &modeCount, nil); res != vk.Success {
		return vulkanError("vkGetPhysicalDeviceSurfacePresentModesKHR", res)
	}
	supportInfo.PresentModes = make([]vk.PresentMode, modeCount)
	if modeCount > 0 {
		if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &modeCount, supportInfo.PresentModes); res != vk.Success {
			return vulkanError("vkGetPhysicalDeviceSurfacePresentModesKHR", res)
		}
	}
	return nil
}

func DeviceDetectDepthFormat(device *VulkanDevice) bool {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(device.PhysicalDevice, candidate, &properties)
		properties.Deref()
		if properties.OptimalTilingFeatures&flags == flags {
			device.DepthFormat = candidate
			return true
		}
	}
	return false
}

func SelectPhysicalDevice(context *VulkanContext, requirements *VulkanPhysicalDeviceRequirements) error {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(context.Instance, &count, nil); res != vk.Success {
		return vulkanError("vkEnumeratePhysicalDevices", res)
	}
	if count == 0 {
		err := fmt.Errorf("no devices which support Vulkan were found")
		core.LogError(err.Error())
		return err
	}
	physicalDevices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &count, physicalDevices); res != vk.Success {
		return vulkanError("vkEnumeratePhysicalDevices", res)
	}

	bestScore := -1
	for _, candidate := range physicalDevices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(candidate, &properties)
		properties.Deref()

		var features vk.PhysicalDeviceFeatures
		vk.GetPhysicalDeviceFeatures(candidate, &features)
		features.Deref()

		queues, support, ok := PhysicalDeviceMeetsRequirements(candidate, context.Surface, &properties, &features, requirements)
		if !ok {
			continue
		}

		// Discrete GPUs win, integrated ones are still accepted.
		score := 0
		if properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			score = 2
		} else if properties.DeviceType == vk.PhysicalDeviceTypeIntegratedGpu {
			score = 1
		}
		if score <= bestScore {
			continue
		}
		bestScore = score

		var memory vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(candidate, &memory)
		memory.Deref()

		context.Device.PhysicalDevice = candidate
		context.Device.Queues = queues
		context.Device.SwapchainSupport = support
		context.Device.Properties = properties
		context.Device.Features = features
		context.Device.Memory = memory
	}

	if context.Device.PhysicalDevice == nil {
		err := fmt.Errorf("no physical devices were found which meet the requirements")
		core.LogError(err.Error())
		return err
	}

	logDevice(context.Device)
	core.LogInfo("Physical device selected.")
	return nil
}

func logDevice(device *VulkanDevice) {
	properties := device.Properties
	core.LogInfo("Selected device: '%s'.", cString(properties.DeviceName[:]))
	switch properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}

	driver := vk.Version(properties.DriverVersion)
	api := vk.Version(properties.ApiVersion)
	core.LogInfo("GPU Driver version: %d.%d.%d", driver.Major(), driver.Minor(), driver.Patch())
	core.LogInfo("Vulkan API version: %d.%d.%d", api.Major(), api.Minor(), api.Patch())

	for j := 0; j < int(device.Memory.MemoryHeapCount); j++ {
		heap := device.Memory.MemoryHeaps[j]
		heap.Deref()
		sizeGib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", sizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", sizeGib)
		}
	}

	q := device.Queues
	core.LogDebug("Graphics Family Index: %d", q.GraphicsFamilyIndex)
	core.LogDebug("Present Family Index:  %d", q.PresentFamilyIndex)
	core.LogDebug("Transfer Family Index: %d", q.TransferFamilyIndex)
	core.LogDebug("Compute Family Index:  %d", q.ComputeFamilyIndex)
}

func PhysicalDeviceMeetsRequirements(device vk.PhysicalDevice, surface vk.Surface, properties *vk.PhysicalDeviceProperties, features *vk.PhysicalDeviceFeatures, requirements *VulkanPhysicalDeviceRequirements) (VulkanPhysicalDeviceQueueFamilyInfo, VulkanSwapchainSupportInfo, bool) {
	name := cString(properties.DeviceName[:])
	var support VulkanSwapchainSupportInfo

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, families)

	caps := make([]queueFamilyCaps, familyCount)
	for i := range families {
		families[i].Deref()
		caps[i].Flags = families[i].QueueFlags
		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &supportsPresent); res != vk.Success {
			return VulkanPhysicalDeviceQueueFamilyInfo{}, support, false
		}
		caps[i].Present = supportsPresent == vk.True
	}

	queues := selectQueueFamilies(caps)
	if !queues.meets(requirements) {
		core.LogInfo("Device '%s' has no queue that can render and present, skipping.", name)
		return queues, support, false
	}

	if err := DeviceQuerySwapchainSupport(device, surface, &support); err != nil {
		return queues, support, false
	}
	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		core.LogInfo("Required swapchain support not present, skipping device '%s'.", name)
		return queues, support, false
	}

	available, err := deviceExtensions(device)
	if err != nil {
		return queues, support, false
	}
	for _, required := range requirements.DeviceExtensionNames {
		if !available[required] {
			core.LogInfo("Required extension not found: '%s', skipping device '%s'.", required, name)
			return queues, support, false
		}
	}

	if requirements.SamplerAnisotropy && features.SamplerAnisotropy == vk.False {
		core.LogInfo("Device '%s' does not support samplerAnisotropy, skipping.", name)
		return queues, support, false
	}
	return queues, support, true
}
