package renderer

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/descriptor"
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/graph"
)

type fakeDescriptors struct {
	log      *[]string
	resetErr error
}

func (d *fakeDescriptors) CreatePool(maxSets uint32, sizes []vk.DescriptorPoolSize) (vk.DescriptorPool, error) {
	return vk.DescriptorPool(unsafe.Pointer(new(uint64))), nil
}

func (d *fakeDescriptors) AllocateSet(pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	return vk.DescriptorSet(unsafe.Pointer(new(uint64))), nil
}

func (d *fakeDescriptors) ResetPool(pool vk.DescriptorPool) error { return d.resetErr }

func (d *fakeDescriptors) DestroyPool(pool vk.DescriptorPool) {
	*d.log = append(*d.log, "destroyPool")
}

// nopRecorder accepts every command.
type nopRecorder struct{}

func (nopRecorder) PipelineBarrier([]graph.Barrier) {}
func (nopRecorder) BeginRendering(graph.RenderingInfo) {}
func (nopRecorder) EndRendering() {}
func (nopRecorder) BindPipeline(*graph.Pipeline) {}
func (nopRecorder) PushConstants(*graph.Pipeline, vk.ShaderStageFlags, uint32, []byte) {}
func (nopRecorder) BindVertexBuffers(uint32, []*graph.Buffer, []vk.DeviceSize) {}
func (nopRecorder) BindIndexBuffer(*graph.Buffer, vk.DeviceSize, vk.IndexType) {}
func (nopRecorder) SetViewport(vk.Viewport) {}
func (nopRecorder) SetScissor(vk.Rect2D) {}
func (nopRecorder) Draw(uint32, uint32, uint32, uint32) {}
func (nopRecorder) DrawIndexed(uint32, uint32, uint32, int32, uint32) {}
func (nopRecorder) Dispatch(uint32, uint32, uint32) {}
func (nopRecorder) CopyBuffer(*graph.Buffer, *graph.Buffer, []vk.BufferCopy) {}
func (nopRecorder) CopyBufferToImage(*graph.Buffer, *graph.Image, vk.ImageLayout, []vk.BufferImageCopy) {
}
func (nopRecorder) CopyImage(*graph.Image, vk.ImageLayout, *graph.Image, vk.ImageLayout, []vk.ImageCopy) {
}
func (nopRecorder) BlitImage(*graph.Image, vk.ImageLayout, *graph.Image, vk.ImageLayout, []vk.ImageBlit, vk.Filter) {
}
func (nopRecorder) BindDescriptorSet(*graph.Pipeline, uint32, []graph.DescriptorWrite) error {
	return nil
}

// fakeBackend simulates a GPU that finishes a submission by the time its
// fence is waited on.
type fakeBackend struct {
	frames     int
	imageCount uint32

	events     []string
	submitted  []bool
	waited     []bool
	violations int

	acquire   []SwapchainStatus
	present   []SwapchainStatus
	fenceErr  error
	slotErr   map[int]error
	nextImage uint32

	images     []*graph.Image
	liveImages int
	recreated  int
	extentW    uint32
	extentH    uint32

	descriptors *fakeDescriptors
}

func newFakeBackend(frames int, imageCount uint32) *fakeBackend {
	b := &fakeBackend{
		frames:     frames,
		imageCount: imageCount,
		submitted:  make([]bool, frames),
		waited:     make([]bool, frames),
	}
	b.descriptors = &fakeDescriptors{log: &b.events}
	b.createImages(640, 480)
	return b
}

func (b *fakeBackend) createImages(w, h uint32) {
	b.liveImages -= len(b.images)
	b.images = b.images[:0]
	for i := uint32(0); i < b.imageCount; i++ {
		b.images = append(b.images, &graph.Image{
			Name:   fmt.Sprintf("swapchain-%d", i),
			Format: vk.FormatB8g8r8a8Unorm,
			Width:  w,
			Height: h,
		})
	}
	b.liveImages += len(b.images)
	b.extentW, b.extentH = w, h
	b.nextImage = 0
}

func (b *fakeBackend) log(format string, args ...any) {
	b.events = append(b.events, fmt.Sprintf(format, args...))
}

func (b *fakeBackend) FramesInFlight() int { return b.frames }
func (b *fakeBackend) DescriptorBackend() descriptor.Backend { return b.descriptors }
func (b *fakeBackend) SwapchainExtent() (uint32, uint32) { return b.extentW, b.extentH }
func (b *fakeBackend) SwapchainImage(index uint32) *graph.Image { return b.images[index] }

func (b *fakeBackend) WaitFence(slot int, timeoutNs uint64) error {
	b.log("wait(%d)", slot)
	if b.fenceErr != nil {
		return b.fenceErr
	}
	if err := b.slotErr[slot]; err != nil {
		return err
	}
	b.waited[slot] = true
	return nil
}

func (b *fakeBackend) ResetFence(slot int) error {
	b.log("reset(%d)", slot)
	return nil
}

func (b *fakeBackend) AcquireImage(slot int) (uint32, SwapchainStatus, error) {
	status := SwapchainOK
	if len(b.acquire) > 0 {
		status, b.acquire = b.acquire[0], b.acquire[1:]
	}
	b.log("acquire(%d)", slot)
	if status == SwapchainOutOfDate {
		return 0, status, nil
	}
	index := b.nextImage
	b.nextImage = (b.nextImage + 1) % b.imageCount
	return index, status, nil
}

func (b *fakeBackend) BeginCommands(slot int) error {
	b.log("begin(%d)", slot)
	return nil
}

func (b *fakeBackend) Recorder(slot int, descriptors *descriptor.Allocator) graph.Recorder {
	return nopRecorder{}
}

func (b *fakeBackend) EndCommands(slot int) error {
	b.log("end(%d)", slot)
	return nil
}

func (b *fakeBackend) Submit(slot int) error {
	if b.submitted[slot] && !b.waited[slot] {
		b.violations++
	}
	b.submitted[slot] = true
	b.waited[slot] = false
	b.log("submit(%d)", slot)
	return nil
}

func (b *fakeBackend) Present(slot int, imageIndex uint32) (SwapchainStatus, error) {
	status := SwapchainOK
	if len(b.present) > 0 {
		status, b.present = b.present[0], b.present[1:]
	}
	b.log("present(%d,%d)", slot, imageIndex)
	return status, nil
}

func (b *fakeBackend) WaitIdle() error {
	b.log("idle")
	for i := range b.waited {
		b.waited[i] = true
	}
	return nil
}

func (b *fakeBackend) RecreateSwapchain(width, height uint32) (uint32, uint32, error) {
	b.recreated++
	b.createImages(width, height)
	b.log("recreate(%dx%d)", width, height)
	return width, height, nil
}

func (b *fakeBackend) Shutdown() error {
	b.log("shutdown")
	return nil
}

func (b *fakeBackend) count(event string) int {
	n := 0
	for _, e := range b.events {
		if e == event {
			n++
		}
	}
	return n
}
