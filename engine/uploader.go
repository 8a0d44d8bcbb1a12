package engine

import (
	"github.com/TideSofDarK/RrFramework-sub001/engine/assets"
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/graph"
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/vulkan"
)

// textureUploader owns the device images created for loaded textures.
type textureUploader struct {
	backend *vulkan.VulkanRenderer
	images  map[*graph.Image]*vulkan.VulkanImage
}

func newTextureUploader(backend *vulkan.VulkanRenderer) *textureUploader {
	return &textureUploader{
		backend: backend,
		images:  make(map[*graph.Image]*vulkan.VulkanImage),
	}
}

func (u *textureUploader) Upload(tex *assets.Texture) (*graph.Image, error) {
	image, err := u.backend.UploadImage(tex.Name, tex.Width, tex.Height, tex.Pixels)
	if err != nil {
		return nil, err
	}
	u.images[&image.Image] = image
	return &image.Image, nil
}

func (u *textureUploader) Release(image *graph.Image) {
	if vi, ok := u.images[image]; ok {
		vi.ImageDestroy(u.backend.Context())
		delete(u.images, image)
	}
}
