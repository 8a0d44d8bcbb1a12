package vulkan

import (
	"math"
	"testing"

	vk "github.com/goki/vulkan"
)

func TestChooseSurfaceFormat(t *testing.T) {
	preferred := vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	other := vk.SurfaceFormat{Format: vk.FormatR8g8b8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear}

	if got := chooseSurfaceFormat([]vk.SurfaceFormat{other, preferred}); got != preferred {
		t.Errorf("got format %d, want the preferred one", got.Format)
	}
	if got := chooseSurfaceFormat([]vk.SurfaceFormat{other}); got != other {
		t.Errorf("got format %d, want the first available", got.Format)
	}
}

func TestChoosePresentMode(t *testing.T) {
	all := []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeImmediate, vk.PresentModeMailbox}
	tests := []struct {
		name  string
		modes []vk.PresentMode
		vsync bool
		want  vk.PresentMode
	}{
		{"vsync always fifo", all, true, vk.PresentModeFifo},
		{"mailbox preferred", all, false, vk.PresentModeMailbox},
		{"immediate without mailbox", []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeImmediate}, false, vk.PresentModeImmediate},
		{"fifo fallback", []vk.PresentMode{vk.PresentModeFifo}, false, vk.PresentModeFifo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := choosePresentMode(tt.modes, tt.vsync); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestChooseExtent(t *testing.T) {
	caps := vk.SurfaceCapabilities{
		CurrentExtent:  vk.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32},
		MinImageExtent: vk.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: vk.Extent2D{Width: 4096, Height: 2160},
	}
	if got := chooseExtent(caps, 1280, 720); got.Width != 1280 || got.Height != 720 {
		t.Errorf("free extent = %dx%d", got.Width, got.Height)
	}
	if got := chooseExtent(caps, 8000, 8000); got.Width != 4096 || got.Height != 2160 {
		t.Errorf("clamped extent = %dx%d", got.Width, got.Height)
	}

	caps.CurrentExtent = vk.Extent2D{Width: 800, Height: 600}
	if got := chooseExtent(caps, 1280, 720); got.Width != 800 || got.Height != 600 {
		t.Errorf("surface extent = %dx%d, want the surface's", got.Width, got.Height)
	}
}

func TestChooseImageCount(t *testing.T) {
	tests := []struct {
		min, max, want uint32
	}{
		{2, 0, 3},
		{2, 8, 3},
		{3, 3, 3},
	}
	for _, tt := range tests {
		caps := vk.SurfaceCapabilities{MinImageCount: tt.min, MaxImageCount: tt.max}
		if got := chooseImageCount(caps); got != tt.want {
			t.Errorf("min %d max %d: got %d, want %d", tt.min, tt.max, got, tt.want)
		}
	}
}

func TestSelectQueueFamilies(t *testing.T) {
	graphics := vk.QueueFlags(vk.QueueGraphicsBit | vk.QueueComputeBit | vk.QueueTransferBit)
	transferOnly := vk.QueueFlags(vk.QueueTransferBit)
	computeOnly := vk.QueueFlags(vk.QueueComputeBit | vk.QueueTransferBit)

	tests := []struct {
		name     string
		families []queueFamilyCaps
		want     VulkanPhysicalDeviceQueueFamilyInfo
		ok       bool
	}{
		{
			name:     "single universal family",
			families: []queueFamilyCaps{{graphics, true}},
			want:     VulkanPhysicalDeviceQueueFamilyInfo{0, 0, 0, 0},
			ok:       true,
		},
		{
			name:     "dedicated transfer family",
			families: []queueFamilyCaps{{graphics, true}, {computeOnly, false}, {transferOnly, false}},
			want:     VulkanPhysicalDeviceQueueFamilyInfo{0, 0, 0, 2},
			ok:       true,
		},
		{
			name:     "graphics family that presents wins",
			families: []queueFamilyCaps{{graphics, false}, {graphics, true}},
			want:     VulkanPhysicalDeviceQueueFamilyInfo{1, 1, 1, 0},
			ok:       true,
		},
		{
			name:     "present only on another family",
			families: []queueFamilyCaps{{graphics, false}, {transferOnly, true}},
			want:     VulkanPhysicalDeviceQueueFamilyInfo{0, 1, 0, 1},
			ok:       false,
		},
		{
			name:     "no graphics",
			families: []queueFamilyCaps{{computeOnly, true}},
			want:     VulkanPhysicalDeviceQueueFamilyInfo{-1, 0, 0, 0},
			ok:       false,
		},
	}
	req := &VulkanPhysicalDeviceRequirements{Compute: true}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := selectQueueFamilies(tt.families)
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if ok := got.meets(req); ok != tt.ok {
				t.Errorf("meets = %t, want %t", ok, tt.ok)
			}
		})
	}
}
