package renderer

import (
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/descriptor"
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/graph"
)

type RendererType uint8

const (
	Vulkan RendererType = iota
)

// SwapchainStatus is the outcome of an acquire or present that did not fail.
type SwapchainStatus uint8

const (
	SwapchainOK SwapchainStatus = iota
	SwapchainSuboptimal
	SwapchainOutOfDate
)

func (s SwapchainStatus) String() string {
	switch s {
	case SwapchainSuboptimal:
		return "suboptimal"
	case SwapchainOutOfDate:
		return "out of date"
	default:
		return "ok"
	}
}

// RendererBackend owns the device objects of every frame-in-flight slot.
// Slots are addressed by index, in [0, FramesInFlight).
type RendererBackend interface {
	FramesInFlight() int
	DescriptorBackend() descriptor.Backend

	// WaitFence blocks until the slot's last submission has completed.
	WaitFence(slot int, timeoutNs uint64) error
	ResetFence(slot int) error

	// AcquireImage signals the slot's image-acquired semaphore once the
	// returned swapchain image is ready.
	AcquireImage(slot int) (uint32, SwapchainStatus, error)
	SwapchainImage(index uint32) *graph.Image
	SwapchainExtent() (width, height uint32)

	BeginCommands(slot int) error
	Recorder(slot int, descriptors *descriptor.Allocator) graph.Recorder
	EndCommands(slot int) error

	// Submit waits on image-acquired, signals render-complete and the fence.
	Submit(slot int) error
	Present(slot int, imageIndex uint32) (SwapchainStatus, error)

	WaitIdle() error
	// RecreateSwapchain returns the extent actually created, which the
	// surface may clamp.
	RecreateSwapchain(width, height uint32) (uint32, uint32, error)
	Shutdown() error
}
