package testbed

import (
	"encoding/binary"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"

	"github.com/TideSofDarK/RrFramework-sub001/engine"
	"github.com/TideSofDarK/RrFramework-sub001/engine/assets"
	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/graph"
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/vulkan"
)

const (
	drawFormat        = vk.FormatR16g16b16a16Sfloat
	gradientShader    = "gradient.comp.spv"
	gradientGroupSize = 16
)

// TestGame clears an offscreen image, optionally paints a compute gradient
// and a loaded texture over it, then blits it to the swapchain.
type TestGame struct {
	drawImage *vulkan.VulkanImage
	gradient  *vulkan.VulkanPipeline

	gradientPath   string
	reloadGradient atomic.Bool

	texture    string
	clearColor mgl32.Vec4
	time       float64
}

var _ engine.Application = (*TestGame)(nil)

func NewTestGame() *TestGame {
	return &TestGame{
		clearColor: mgl32.Vec4{0.1, 0.1, 0.2, 1},
	}
}

func (g *TestGame) Initialize(e *engine.Engine) error {
	core.LogInfo("initializing testbed...")

	width, height := e.Renderer().Extent()
	if err := g.createDrawImage(e, width, height); err != nil {
		return err
	}

	g.gradientPath = e.AssetPath("shaders", gradientShader)
	if err := g.loadGradient(e); err != nil {
		return err
	}
	e.Watch(".spv", func(path string) {
		if filepath.Clean(path) == filepath.Clean(g.gradientPath) {
			g.reloadGradient.Store(true)
		}
	})

	return g.loadTextures(e)
}

func (g *TestGame) createDrawImage(e *engine.Engine, width, height uint32) error {
	image, err := vulkan.ImageCreate(e.Backend().Context(), vulkan.VulkanImageConfig{
		Name:   "draw",
		Width:  width,
		Height: height,
		Format: drawFormat,
		Usage: vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageStorageBit |
			vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit),
	})
	if err != nil {
		return err
	}
	g.drawImage = image
	return nil
}

// loadGradient builds the compute pipeline when its SPIR-V is present. The
// demo runs without it.
func (g *TestGame) loadGradient(e *engine.Engine) error {
	code, err := os.ReadFile(g.gradientPath)
	if errors.Is(err, fs.ErrNotExist) {
		core.LogWarn("%s not found, run `mage build:shaders` for the gradient pass", g.gradientPath)
		return nil
	}
	if err != nil {
		return err
	}

	pipeline, err := vulkan.ComputePipelineCreate(e.Backend().Context(), vulkan.VulkanComputePipelineConfig{
		Name: "gradient",
		Code: code,
		Sets: [][]vk.DescriptorSetLayoutBinding{{{
			Binding:         0,
			DescriptorType:  vk.DescriptorTypeStorageImage,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageComputeBit),
		}}},
		PushConstantSize: 32,
	})
	if err != nil {
		return err
	}
	if g.gradient != nil {
		g.gradient.PipelineDestroy(e.Backend().Context())
	}
	g.gradient = pipeline
	return nil
}

func (g *TestGame) loadTextures(e *engine.Engine) error {
	entries, err := os.ReadDir(e.AssetPath("textures"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var paths []string
	for _, entry := range entries {
		if !entry.IsDir() && assets.IsTexture(entry.Name()) {
			paths = append(paths, e.AssetPath("textures", entry.Name()))
		}
	}
	if len(paths) == 0 {
		return nil
	}

	_, err = e.Assets().LoadBatch(paths, func(b *assets.Batch) {
		core.LogInfo("texture batch %s loaded: %d textures, %d errors", b.ID, len(b.Textures), len(b.Errors))
		if len(b.Textures) > 0 {
			g.texture = assets.TextureName(paths[0])
			if _, ok := b.Textures[g.texture]; !ok {
				for name := range b.Textures {
					g.texture = name
					break
				}
			}
		}
	})
	return err
}

func (g *TestGame) Update(e *engine.Engine, deltaTime float64) error {
	g.time += deltaTime
	t := float32(g.time)
	g.clearColor = mgl32.Vec4{
		0.5 + 0.5*float32(math.Sin(float64(t))),
		0.2,
		0.5 + 0.5*float32(math.Cos(float64(t))),
		1,
	}

	if g.reloadGradient.Swap(false) {
		core.LogInfo("reloading %s", g.gradientPath)
		if err := e.Backend().WaitIdle(); err != nil {
			return err
		}
		if err := g.loadGradient(e); err != nil {
			core.LogError("gradient reload failed, keeping the old pipeline: %s", err)
		}
	}
	return nil
}

func (g *TestGame) Draw(e *engine.Engine, f *engine.Frame) error {
	gfx := f.Graph
	draw := gfx.Register(&g.drawImage.Image)
	c := g.clearColor

	gfx.AddPass(graph.PassGraphics, "clear",
		graph.ColorTarget(draw, graph.LoadOpClear, graph.StoreOpStore, graph.ClearColor(c[0], c[1], c[2], c[3])))

	if g.gradient != nil {
		bottom := mgl32.Vec4{1, 1, 1, 2}.Sub(c)
		gfx.AddPass(graph.PassCompute, "gradient").
			BindPipeline(&g.gradient.Pipeline).
			BindStorageImage(0, 0, draw, graph.AccessReadWrite).
			PushConstants(vk.ShaderStageFlags(vk.ShaderStageComputeBit), 0, pushConstants(c, bottom)).
			Dispatch(groups(g.drawImage.Width), groups(g.drawImage.Height), 1)
	}

	if tex, ok := e.Assets().Import(gfx, g.texture); ok {
		img, _ := e.Assets().Texture(g.texture)
		// Top left quarter of the draw image.
		region := vk.ImageBlit{
			SrcSubresource: colorLayers(),
			DstSubresource: colorLayers(),
		}
		region.SrcOffsets[1] = vk.Offset3D{X: int32(img.Width), Y: int32(img.Height), Z: 1}
		region.DstOffsets[1] = vk.Offset3D{X: int32(g.drawImage.Width / 2), Y: int32(g.drawImage.Height / 2), Z: 1}

		gfx.AddPass(graph.PassBlit, "texture").BlitImage(tex, draw, vk.FilterLinear, region)
		// Loaded textures stay shader readable between frames.
		gfx.AddPass(graph.PassTransfer, "texture-restore").Access(tex, graph.UsageSampled)
	}

	gfx.AddPass(graph.PassBlit, "to-swapchain").BlitImage(draw, f.Swapchain, vk.FilterLinear)
	gfx.Present(f.Swapchain)
	return nil
}

func (g *TestGame) OnResize(e *engine.Engine, width, height uint32) error {
	// The renderer waited for the device to idle before the rebuild.
	if g.drawImage != nil {
		g.drawImage.ImageDestroy(e.Backend().Context())
	}
	return g.createDrawImage(e, width, height)
}

func (g *TestGame) Cleanup(e *engine.Engine) error {
	if e.Backend() == nil || e.Backend().Context().Device == nil {
		return nil
	}
	if g.gradient != nil {
		g.gradient.PipelineDestroy(e.Backend().Context())
		g.gradient = nil
	}
	if g.drawImage != nil {
		g.drawImage.ImageDestroy(e.Backend().Context())
		g.drawImage = nil
	}
	return nil
}

func colorLayers() vk.ImageSubresourceLayers {
	return vk.ImageSubresourceLayers{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LayerCount: 1,
	}
}

func groups(size uint32) uint32 {
	return (size + gradientGroupSize - 1) / gradientGroupSize
}

// pushConstants packs vectors as std430 vec4s.
func pushConstants(vs ...mgl32.Vec4) []byte {
	buf := make([]byte, 0, len(vs)*16)
	for _, v := range vs {
		for _, f := range v {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
		}
	}
	return buf
}
