package assets

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Texture is a decoded image in tightly packed RGBA8.
type Texture struct {
	Name   string
	Path   string
	Format string
	Width  uint32
	Height uint32
	Pixels []byte
}

var textureExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".webp": true,
}

func IsTexture(path string) bool {
	return textureExtensions[strings.ToLower(filepath.Ext(path))]
}

// TextureName is the file name without directory and extension.
func TextureName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DecodeTexture reads and converts the image at path. Images larger than
// maxSize on either axis are scaled down keeping their aspect ratio; zero
// disables the limit.
func DecodeTexture(path string, maxSize uint32) (*Texture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	bounds := src.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("image %s has no pixels", path)
	}

	width, height := fitWithin(uint32(bounds.Dx()), uint32(bounds.Dy()), maxSize)
	dst := image.NewRGBA(image.Rect(0, 0, int(width), int(height)))
	if int(width) == bounds.Dx() && int(height) == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
	}

	return &Texture{
		Name:   TextureName(path),
		Path:   path,
		Format: format,
		Width:  width,
		Height: height,
		Pixels: dst.Pix,
	}, nil
}

func fitWithin(width, height, maxSize uint32) (uint32, uint32) {
	if maxSize == 0 || (width <= maxSize && height <= maxSize) {
		return width, height
	}
	if width >= height {
		return maxSize, max(1, uint32(uint64(height)*uint64(maxSize)/uint64(width)))
	}
	return max(1, uint32(uint64(width)*uint64(maxSize)/uint64(height))), maxSize
}
