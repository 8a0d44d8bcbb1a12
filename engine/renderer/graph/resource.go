package graph

import (
	vk "github.com/goki/vulkan"
)

type ResourceKind uint8

const (
	ResourceKindImage ResourceKind = iota
	ResourceKindBuffer
)

func (k ResourceKind) String() string {
	if k == ResourceKindImage {
		return "image"
	}
	return "buffer"
}

// Resource is a live GPU object the graph can track. Only *Image and *Buffer
// implement it.
type Resource interface {
	Kind() ResourceKind
	DebugName() string
}

// Image is a GPU image owned by the caller (or the swapchain). The graph
// never creates nor destroys it.
type Image struct {
	Name        string
	Handle      vk.Image
	View        vk.ImageView
	Format      vk.Format
	Width       uint32
	Height      uint32
	MipLevels   uint32
	ArrayLayers uint32
}

func (i *Image) Kind() ResourceKind { return ResourceKindImage }

func (i *Image) DebugName() string { return i.Name }

// Aspect returns the aspect mask barriers and views of this image use.
func (i *Image) Aspect() vk.ImageAspectFlags {
	return AspectForFormat(i.Format)
}

// Levels returns the mip level count, defaulting to one.
func (i *Image) Levels() uint32 {
	if i.MipLevels == 0 {
		return 1
	}
	return i.MipLevels
}

// Layers returns the array layer count, defaulting to one.
func (i *Image) Layers() uint32 {
	if i.ArrayLayers == 0 {
		return 1
	}
	return i.ArrayLayers
}

// IsDepth reports whether the image has a depth or stencil format.
func (i *Image) IsDepth() bool {
	return i.Aspect()&vk.ImageAspectFlags(vk.ImageAspectColorBit) == 0
}

// Buffer is a GPU buffer owned by the caller.
type Buffer struct {
	Name   string
	Handle vk.Buffer
	Size   vk.DeviceSize
}

func (b *Buffer) Kind() ResourceKind { return ResourceKindBuffer }

func (b *Buffer) DebugName() string { return b.Name }

// AspectForFormat derives the aspect mask from the image format.
func AspectForFormat(format vk.Format) vk.ImageAspectFlags {
	switch format {
	case vk.FormatD16Unorm, vk.FormatD32Sfloat:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	case vk.FormatS8Uint:
		return vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	case vk.FormatD16UnormS8Uint, vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	default:
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
}
