package vulkan

import (
	"fmt"
	"math"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer"
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/descriptor"
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/graph"
)

const validationLayerName = "VK_LAYER_KHRONOS_validation"

// Window is the part of the platform layer the backend needs.
type Window interface {
	GetInstanceProcAddress() unsafe.Pointer
	RequiredInstanceExtensions() []string
	CreateWindowSurface(instance vk.Instance) (uintptr, error)
}

type VulkanRendererConfig struct {
	ApplicationName string
	Width           uint32
	Height          uint32
	FramesInFlight  int
	Vsync           bool
	Validation      bool
}

// VulkanRenderer implements renderer.RendererBackend.
type VulkanRenderer struct {
	window      Window
	config      VulkanRendererConfig
	context     *VulkanContext
	descriptors *VulkanDescriptorBackend
}

var _ renderer.RendererBackend = (*VulkanRenderer)(nil)

func New(window Window, config VulkanRendererConfig) *VulkanRenderer {
	if config.FramesInFlight < 2 || config.FramesInFlight > 3 {
		core.LogWarn("frames in flight must be 2 or 3, got %d, using 2", config.FramesInFlight)
		config.FramesInFlight = 2
	}
	context := &VulkanContext{
		Renderpasses: NewVulkanRenderpassCache(),
		Locks:        NewVulkanLockPool(),
		Vsync:        config.Vsync,
	}
	return &VulkanRenderer{
		window:      window,
		config:      config,
		context:     context,
		descriptors: NewVulkanDescriptorBackend(context),
	}
}

// Context exposes the device objects to helpers such as pipeline and image
// creation.
func (vr *VulkanRenderer) Context() *VulkanContext {
	return vr.context
}

func (vr *VulkanRenderer) Initialize() error {
	procAddr := vr.window.GetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("GetInstanceProcAddress is nil")
		core.LogError(err.Error())
		return err
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	if err := vr.createInstance(); err != nil {
		return err
	}

	if vr.config.Validation {
		if err := vr.createDebugCallback(); err != nil {
			return err
		}
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := vr.window.CreateWindowSurface(vr.context.Instance)
	if err != nil {
		err = fmt.Errorf("vulkan surface creation failed: %w", err)
		core.LogError(err.Error())
		return err
	}
	vr.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	requirements := &VulkanPhysicalDeviceRequirements{
		Compute:              true,
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	}
	if err := DeviceCreate(vr.context, requirements); err != nil {
		return err
	}

	sc, err := SwapchainCreate(vr.context, vr.config.Width, vr.config.Height)
	if err != nil {
		return err
	}
	vr.context.Swapchain = sc

	vr.context.Frames = make([]*VulkanFrame, vr.config.FramesInFlight)
	for i := range vr.context.Frames {
		frame, err := FrameCreate(vr.context)
		if err != nil {
			return err
		}
		vr.context.Frames[i] = frame
	}

	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (vr *VulkanRenderer) createInstance() error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(vr.config.ApplicationName),
		PEngineName:        VulkanSafeString("Rr Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := append([]string{}, vr.window.RequiredInstanceExtensions()...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	layers := []string{}
	if vr.config.Validation {
		if vr.hasLayer(validationLayerName) {
			layers = append(layers, validationLayerName)
			extensions = append(extensions, vk.ExtDebugReportExtensionName)
		} else {
			core.LogWarn("Validation requested but '%s' is missing, continuing without it.", validationLayerName)
			vr.config.Validation = false
		}
	}
	for _, e := range extensions {
		core.LogDebug("Required extension: %s", e)
	}

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, vr.context.Allocator, &instance); res != vk.Success {
		return vulkanError("vkCreateInstance", res)
	}
	vr.context.Instance = instance
	if err := vk.InitInstance(instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Vulkan Instance created.")
	return nil
}

func (vr *VulkanRenderer) hasLayer(name string) bool {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false
	}
	layers := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, layers); res != vk.Success {
		return false
	}
	for i := range layers {
		layers[i].Deref()
		if cString(layers[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

func (vr *VulkanRenderer) createDebugCallback() error {
	core.LogDebug("Creating Vulkan debugger...")
	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: dbgCallbackFunc,
	}
	var dbg vk.DebugReportCallback
	if res := vk.CreateDebugReportCallback(vr.context.Instance, &debugCreateInfo, nil, &dbg); res != vk.Success {
		return vulkanError("vkCreateDebugReportCallbackEXT", res)
	}
	vr.context.debugMessenger = dbg
	core.LogDebug("Vulkan debugger created.")
	return nil
}

func (vr *VulkanRenderer) frame(slot int) *VulkanFrame {
	return vr.context.Frames[slot]
}

func (vr *VulkanRenderer) FramesInFlight() int {
	return vr.config.FramesInFlight
}

func (vr *VulkanRenderer) DescriptorBackend() descriptor.Backend {
	return vr.descriptors
}

// WaitFence also frees the framebuffers the slot's last submission used.
func (vr *VulkanRenderer) WaitFence(slot int, timeoutNs uint64) error {
	frame := vr.frame(slot)
	if err := frame.Fence.FenceWait(vr.context, timeoutNs); err != nil {
		return err
	}
	frame.releaseFramebuffers(vr.context)
	return nil
}

func (vr *VulkanRenderer) ResetFence(slot int) error {
	return vr.frame(slot).Fence.FenceReset(vr.context)
}

func (vr *VulkanRenderer) AcquireImage(slot int) (uint32, renderer.SwapchainStatus, error) {
	return vr.context.Swapchain.SwapchainAcquireNextImageIndex(vr.context, math.MaxUint64, vr.frame(slot).ImageAvailable)
}

func (vr *VulkanRenderer) SwapchainImage(index uint32) *graph.Image {
	return vr.context.Swapchain.Images[index]
}

func (vr *VulkanRenderer) SwapchainExtent() (uint32, uint32) {
	extent := vr.context.Swapchain.Extent
	return extent.Width, extent.Height
}

func (vr *VulkanRenderer) BeginCommands(slot int) error {
	cb := vr.frame(slot).CommandBuffer
	if err := cb.Reset(); err != nil {
		return err
	}
	return cb.Begin(true, false, false)
}

func (vr *VulkanRenderer) Recorder(slot int, descriptors *descriptor.Allocator) graph.Recorder {
	return NewVulkanRecorder(vr.context, vr.frame(slot), descriptors)
}

func (vr *VulkanRenderer) EndCommands(slot int) error {
	return vr.frame(slot).CommandBuffer.End()
}

func (vr *VulkanRenderer) Submit(slot int) error {
	frame := vr.frame(slot)

	// The acquired image is first written either as an attachment or as a
	// blit destination.
	waitStage := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageTransferBit)
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{frame.ImageAvailable},
		PWaitDstStageMask:    []vk.PipelineStageFlags{waitStage},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{frame.CommandBuffer.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{frame.RenderComplete},
	}

	family := uint32(vr.context.Device.Queues.GraphicsFamilyIndex)
	err := vr.context.Locks.SafeQueueCall(family, func() error {
		if res := vk.QueueSubmit(vr.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, frame.Fence.Handle); res != vk.Success {
			return vulkanError("vkQueueSubmit", res)
		}
		return nil
	})
	if err != nil {
		return err
	}
	frame.CommandBuffer.UpdateSubmitted()
	return nil
}

func (vr *VulkanRenderer) Present(slot int, imageIndex uint32) (renderer.SwapchainStatus, error) {
	var status renderer.SwapchainStatus
	family := uint32(vr.context.Device.Queues.GraphicsFamilyIndex)
	err := vr.context.Locks.SafeQueueCall(family, func() error {
		var err error
		status, err = vr.context.Swapchain.SwapchainPresent(vr.context, vr.context.Device.GraphicsQueue, vr.frame(slot).RenderComplete, imageIndex)
		return err
	})
	return status, err
}

func (vr *VulkanRenderer) WaitIdle() error {
	if vr.context.Device == nil || vr.context.Device.LogicalDevice == nil {
		return nil
	}
	if res := vk.DeviceWaitIdle(vr.context.Device.LogicalDevice); res != vk.Success {
		return vulkanError("vkDeviceWaitIdle", res)
	}
	return nil
}

// RecreateSwapchain expects the device to be idle.
func (vr *VulkanRenderer) RecreateSwapchain(width, height uint32) (uint32, uint32, error) {
	sc, err := vr.context.Swapchain.SwapchainRecreate(vr.context, width, height)
	if err != nil {
		return 0, 0, err
	}
	vr.context.Swapchain = sc
	return sc.Extent.Width, sc.Extent.Height, nil
}

// UploadImage creates a sampled image and fills it with RGBA8 pixels.
func (vr *VulkanRenderer) UploadImage(name string, width, height uint32, pixels []byte) (*VulkanImage, error) {
	image, err := ImageCreate(vr.context, VulkanImageConfig{
		Name:   name,
		Width:  width,
		Height: height,
		Format: vk.FormatR8g8b8a8Unorm,
		Usage:  vk.ImageUsageFlags(vk.ImageUsageSampledBit | vk.ImageUsageTransferDstBit | vk.ImageUsageTransferSrcBit),
	})
	if err != nil {
		return nil, err
	}
	if err := ImageUpload(vr.context, image, pixels); err != nil {
		image.ImageDestroy(vr.context)
		return nil, err
	}
	return image, nil
}

// Shutdown destroys everything in reverse creation order. The caller must
// have waited for the device to idle.
func (vr *VulkanRenderer) Shutdown() error {
	if vr.context.Device != nil && vr.context.Device.LogicalDevice != nil {
		for _, frame := range vr.context.Frames {
			if frame != nil {
				frame.FrameDestroy(vr.context)
			}
		}
		vr.context.Frames = nil

		vr.context.Renderpasses.Destroy(vr.context)

		if vr.context.Swapchain != nil {
			vr.context.Swapchain.SwapchainDestroy(vr.context)
			vr.context.Swapchain = nil
		}

		core.LogDebug("Destroying Vulkan device...")
		DeviceDestroy(vr.context)
	}

	if vr.context.Surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(vr.context.Instance, vr.context.Surface, vr.context.Allocator)
		vr.context.Surface = vk.NullSurface
	}

	if vr.context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(vr.context.Instance, vr.context.debugMessenger, vr.context.Allocator)
		vr.context.debugMessenger = vk.NullDebugReportCallback
	}

	if vr.context.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(vr.context.Instance, vr.context.Allocator)
		vr.context.Instance = nil
	}
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		core.LogDebug("DEBUG: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
