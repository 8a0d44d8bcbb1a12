package renderer

import (
	"errors"
	"fmt"
	"math"

	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/descriptor"
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/graph"
)

type SlotState uint8

const (
	SlotIdle SlotState = iota
	SlotAcquiring
	SlotRecording
	SlotSubmitted
)

func (s SlotState) String() string {
	switch s {
	case SlotAcquiring:
		return "acquiring"
	case SlotRecording:
		return "recording"
	case SlotSubmitted:
		return "submitted"
	default:
		return "idle"
	}
}

// FrameSlot is the CPU side of one frame in flight.
type FrameSlot struct {
	Index       int
	State       SlotState
	Descriptors *descriptor.Allocator
	ImageIndex  uint32
	Submissions uint64
}

// ResizeHook rebuilds a resolution dependent resource after the swapchain was
// recreated at the given extent.
type ResizeHook func(width, height uint32) error

type Config struct {
	Width             uint32
	Height            uint32
	DescriptorSets    uint32
	DescriptorRatios  []descriptor.PoolRatio
	DescriptorOptions descriptor.Options
}

// Renderer drives the frames in flight: fence wait, acquire, record, submit
// and present.
type Renderer struct {
	backend RendererBackend
	slots   []*FrameSlot
	current int
	active  *FrameSlot
	frame   uint64

	// Requested window size, and the size of the current swapchain.
	width, height         uint32
	swapWidth, swapHeight uint32
	resizePending         bool

	// Slot that last rendered into each swapchain image.
	imageOwners map[uint32]int
	swapImage   *graph.Image
	hooks       []ResizeHook
}

func New(backend RendererBackend, config Config) (*Renderer, error) {
	count := backend.FramesInFlight()
	if count < 1 {
		return nil, fmt.Errorf("renderer needs at least one frame in flight, backend has %d", count)
	}

	r := &Renderer{
		backend:     backend,
		slots:       make([]*FrameSlot, count),
		width:       config.Width,
		height:      config.Height,
		imageOwners: make(map[uint32]int),
	}
	r.swapWidth, r.swapHeight = backend.SwapchainExtent()

	for i := range r.slots {
		alloc, err := descriptor.New(backend.DescriptorBackend(), config.DescriptorSets, config.DescriptorRatios, config.DescriptorOptions)
		if err != nil {
			err = fmt.Errorf("failed to create descriptor allocator for frame %d: %w", i, err)
			core.LogError(err.Error())
			r.destroyAllocators()
			return nil, err
		}
		r.slots[i] = &FrameSlot{Index: i, Descriptors: alloc}
	}

	core.LogInfo("renderer created with %d frames in flight, swapchain %dx%d", count, r.swapWidth, r.swapHeight)
	return r, nil
}

// OnResize registers a hook run after every swapchain rebuild.
func (r *Renderer) OnResize(hook ResizeHook) {
	r.hooks = append(r.hooks, hook)
}

// Resize records a new window size. The swapchain is rebuilt at the start of
// the next frame.
func (r *Renderer) Resize(width, height uint32) {
	if width == r.width && height == r.height {
		return
	}
	core.LogInfo("renderer resized: %dx%d -> %dx%d", r.width, r.height, width, height)
	r.width, r.height = width, height
	r.resizePending = true
}

func (r *Renderer) NeedsResize() bool {
	return r.resizePending
}

// Extent returns the size of the current swapchain.
func (r *Renderer) Extent() (uint32, uint32) {
	return r.swapWidth, r.swapHeight
}

func (r *Renderer) Frame() uint64 {
	return r.frame
}

func (r *Renderer) Slot(i int) *FrameSlot {
	return r.slots[i]
}

// CurrentSlot is the slot the next or active frame uses.
func (r *Renderer) CurrentSlot() *FrameSlot {
	return r.slots[r.current]
}

// Rebuild waits for the device to go idle, recreates the swapchain and runs
// the resize hooks. A zero-area size leaves the resize pending.
func (r *Renderer) Rebuild(width, height uint32) error {
	if width == 0 || height == 0 {
		core.LogDebug("rebuild requested with a zero-area window, booting")
		r.resizePending = true
		return nil
	}
	if err := r.backend.WaitIdle(); err != nil {
		return fmt.Errorf("failed to wait for device idle before rebuild: %w", err)
	}

	w, h, err := r.backend.RecreateSwapchain(width, height)
	if err != nil {
		err = fmt.Errorf("failed to recreate swapchain at %dx%d: %w", width, height, err)
		core.LogError(err.Error())
		return err
	}
	r.swapWidth, r.swapHeight = w, h
	r.width, r.height = width, height
	clear(r.imageOwners)

	for _, hook := range r.hooks {
		if err := hook(w, h); err != nil {
			return fmt.Errorf("resize hook failed at %dx%d: %w", w, h, err)
		}
	}
	r.resizePending = false
	core.LogInfo("swapchain rebuilt at %dx%d", w, h)
	return nil
}

// BeginFrame prepares the current slot for recording. It returns false when
// the frame must be skipped: the window is minimized or the swapchain went out
// of date.
func (r *Renderer) BeginFrame() (bool, error) {
	if r.active != nil {
		return false, fmt.Errorf("frame %d is still being recorded", r.frame)
	}
	if r.width == 0 || r.height == 0 {
		return false, nil
	}
	if r.resizePending {
		if err := r.Rebuild(r.width, r.height); err != nil {
			return false, err
		}
		if r.resizePending {
			return false, nil
		}
	}

	slot := r.slots[r.current]
	slot.State = SlotAcquiring

	if err := r.backend.WaitFence(slot.Index, math.MaxUint64); err != nil {
		slot.State = SlotIdle
		return false, fmt.Errorf("in-flight fence wait failure on frame %d: %w", slot.Index, err)
	}

	if err := slot.Descriptors.Reset(); err != nil {
		slot.State = SlotIdle
		return false, err
	}

	index, status, err := r.backend.AcquireImage(slot.Index)
	if err != nil {
		slot.State = SlotIdle
		return false, fmt.Errorf("failed to acquire swapchain image: %w", err)
	}
	switch status {
	case SwapchainOutOfDate:
		core.LogDebug("swapchain out of date on acquire, frame %d skipped", r.frame)
		r.resizePending = true
		slot.State = SlotIdle
		return false, nil
	case SwapchainSuboptimal:
		r.resizePending = true
	}

	// The image may still be in use by another slot's submission.
	if owner, ok := r.imageOwners[index]; ok && owner != slot.Index && r.slots[owner].State == SlotSubmitted {
		if err := r.backend.WaitFence(owner, math.MaxUint64); err != nil {
			slot.State = SlotIdle
			return false, fmt.Errorf("image %d fence wait failure: %w", index, err)
		}
		r.slots[owner].State = SlotIdle
	}
	r.imageOwners[index] = slot.Index

	slot.ImageIndex = index
	r.swapImage = r.backend.SwapchainImage(index)

	if err := r.backend.BeginCommands(slot.Index); err != nil {
		slot.State = SlotIdle
		return false, err
	}
	slot.State = SlotRecording
	r.active = slot
	return true, nil
}

// SwapchainImage is the image acquired by BeginFrame.
func (r *Renderer) SwapchainImage() *graph.Image {
	return r.swapImage
}

// Record replays the graph into the active slot's command buffer.
func (r *Renderer) Record(g *graph.Graph) error {
	if r.active == nil {
		return errors.New("record called outside of a frame")
	}
	rec := r.backend.Recorder(r.active.Index, r.active.Descriptors)
	if err := g.Execute(rec); err != nil {
		return fmt.Errorf("failed to record frame %d: %w", r.frame, err)
	}
	return nil
}

// EndFrame submits the active slot and presents its image.
func (r *Renderer) EndFrame() error {
	slot := r.active
	if slot == nil {
		return errors.New("end frame called outside of a frame")
	}
	r.active = nil

	if err := r.backend.EndCommands(slot.Index); err != nil {
		return err
	}
	// The fence is only reset once work is certain to be submitted with it.
	if err := r.backend.ResetFence(slot.Index); err != nil {
		return err
	}
	if err := r.backend.Submit(slot.Index); err != nil {
		err = fmt.Errorf("queue submit failed on frame %d: %w", r.frame, err)
		core.LogError(err.Error())
		return err
	}
	slot.State = SlotSubmitted
	slot.Submissions++

	status, err := r.backend.Present(slot.Index, slot.ImageIndex)
	if err != nil {
		return fmt.Errorf("present failed on frame %d: %w", r.frame, err)
	}
	if status != SwapchainOK {
		core.LogDebug("swapchain %s on present", status)
		r.resizePending = true
	}

	r.current = (r.current + 1) % len(r.slots)
	r.frame++
	return nil
}

// Shutdown waits for the device to go idle before anything is destroyed.
func (r *Renderer) Shutdown() error {
	if err := r.backend.WaitIdle(); err != nil {
		core.LogError("device wait idle failed on shutdown: %s", err)
		return err
	}
	r.destroyAllocators()
	for _, slot := range r.slots {
		if slot != nil {
			slot.State = SlotIdle
		}
	}
	return r.backend.Shutdown()
}

func (r *Renderer) destroyAllocators() {
	for _, slot := range r.slots {
		if slot != nil && slot.Descriptors != nil {
			slot.Descriptors.Destroy()
			slot.Descriptors = nil
		}
	}
}
