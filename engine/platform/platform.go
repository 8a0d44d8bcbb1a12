package platform

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// ResizeHandler receives the new framebuffer size in pixels.
type ResizeHandler func(width, height uint32)

type Platform struct {
	Window    *glfw.Window
	startTime float64
	onResize  ResizeHandler
}

func New() *Platform {
	return &Platform{}
}

func (p *Platform) Startup(applicationName string, x uint32, y uint32, width uint32, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		err := fmt.Errorf("glfw reports no Vulkan loader on this system")
		core.LogError(err.Error())
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return err
	}
	p.Window = window

	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetIconifyCallback(p.iconifyCallback)
	p.Window.SetKeyCallback(keyCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	p.startTime = glfw.GetTime()

	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// OnResize sets the handler called for every framebuffer size change. A
// minimized window reports 0x0.
func (p *Platform) OnResize(handler ResizeHandler) {
	p.onResize = handler
}

func (p *Platform) PumpMessages() {
	glfw.PollEvents()
}

// WaitMessages blocks until an event arrives. Used while minimized.
func (p *Platform) WaitMessages() {
	glfw.WaitEvents()
}

func (p *Platform) ShouldClose() bool {
	return p.Window == nil || p.Window.ShouldClose()
}

// RequestClose may be called from any goroutine.
func (p *Platform) RequestClose() {
	if p.Window != nil {
		p.Window.SetShouldClose(true)
		glfw.PostEmptyEvent()
	}
}

func (p *Platform) Minimized() bool {
	return p.Window != nil && p.Window.GetAttrib(glfw.Iconified) == glfw.True
}

// FramebufferSize returns the current drawable size in pixels.
func (p *Platform) FramebufferSize() (uint32, uint32) {
	if p.Window == nil {
		return 0, 0
	}
	w, h := p.Window.GetFramebufferSize()
	return uint32(w), uint32(h)
}

// AbsoluteTime is the number of seconds since Startup.
func (p *Platform) AbsoluteTime() float64 {
	return glfw.GetTime() - p.startTime
}

func (p *Platform) GetInstanceProcAddress() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

func (p *Platform) RequiredInstanceExtensions() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

func (p *Platform) CreateWindowSurface(instance vk.Instance) (uintptr, error) {
	return p.Window.CreateWindowSurface(instance, nil)
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	if p.onResize != nil {
		p.onResize(uint32(width), uint32(height))
	}
}

func (p *Platform) iconifyCallback(w *glfw.Window, iconified bool) {
	if iconified {
		core.LogDebug("window minimized, frames suspended")
		return
	}
	core.LogDebug("window restored")
}

func keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if key == glfw.KeyEscape && action == glfw.Press {
		w.SetShouldClose(true)
	}
}
