package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	vk "github.com/goki/vulkan"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/descriptor"
)

// Application is implemented once per program. The engine calls Initialize
// after the renderer is up, then Update and Draw once per frame, and Cleanup
// before the renderer shuts down.
type Application interface {
	Initialize(e *Engine) error
	Update(e *Engine, deltaTime float64) error
	Draw(e *Engine, frame *Frame) error
	OnResize(e *Engine, width, height uint32) error
	Cleanup(e *Engine) error
}

type ApplicationConfig struct {
	// The application name used in windowing, if applicable.
	Name string `toml:"name"`
	// Window starting position x axis, if applicable.
	StartPosX uint32 `toml:"start_pos_x"`
	// Window starting position y axis, if applicable.
	StartPosY uint32 `toml:"start_pos_y"`
	// Window starting width, if applicable.
	StartWidth uint32 `toml:"start_width"`
	// Window starting height, if applicable.
	StartHeight uint32        `toml:"start_height"`
	LogLevel    core.LogLevel `toml:"log_level"`

	Renderer    RendererConfig   `toml:"renderer"`
	Descriptors DescriptorConfig `toml:"descriptors"`
	Assets      AssetsConfig     `toml:"assets"`
}

type RendererConfig struct {
	// Either 2 or 3.
	FramesInFlight int  `toml:"frames_in_flight"`
	Vsync          bool `toml:"vsync"`
	Validation     bool `toml:"validation"`
}

type DescriptorConfig struct {
	// Set count of the first pool of every frame.
	SetsPerPool uint32                  `toml:"sets_per_pool"`
	MaxSetsCap  uint32                  `toml:"max_sets_cap"`
	MaxPools    int                     `toml:"max_pools"`
	Ratios      []DescriptorRatioConfig `toml:"ratios"`
}

type DescriptorRatioConfig struct {
	Type  string  `toml:"type"`
	Ratio float32 `toml:"ratio"`
}

type AssetsConfig struct {
	Directory      string `toml:"directory"`
	Workers        int    `toml:"workers"`
	QueueSize      int    `toml:"queue_size"`
	MaxTextureSize uint32 `toml:"max_texture_size"`
	Watch          bool   `toml:"watch"`
}

var descriptorTypes = map[string]vk.DescriptorType{
	"sampler":                vk.DescriptorTypeSampler,
	"combined_image_sampler": vk.DescriptorTypeCombinedImageSampler,
	"sampled_image":          vk.DescriptorTypeSampledImage,
	"storage_image":          vk.DescriptorTypeStorageImage,
	"uniform_buffer":         vk.DescriptorTypeUniformBuffer,
	"storage_buffer":         vk.DescriptorTypeStorageBuffer,
}

func DefaultApplicationConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Name:        "Rr Testbed",
		StartPosX:   100,
		StartPosY:   100,
		StartWidth:  1280,
		StartHeight: 720,
		LogLevel:    core.LogLevelInfo,
		Renderer: RendererConfig{
			FramesInFlight: 2,
			Vsync:          true,
		},
		Descriptors: DescriptorConfig{
			SetsPerPool: 64,
			MaxSetsCap:  descriptor.DefaultMaxSetsCap,
			MaxPools:    descriptor.DefaultMaxPools,
			Ratios: []DescriptorRatioConfig{
				{Type: "uniform_buffer", Ratio: 1},
				{Type: "storage_buffer", Ratio: 1},
				{Type: "combined_image_sampler", Ratio: 2},
				{Type: "storage_image", Ratio: 1},
			},
		},
		Assets: AssetsConfig{
			Directory:      "assets",
			Workers:        2,
			QueueSize:      64,
			MaxTextureSize: 4096,
		},
	}
}

// LoadConfig reads the TOML file at path on top of the defaults, then applies
// environment overrides. An empty path only applies the overrides. Variables
// from a .env file in the working directory are loaded first and never
// replace variables already set.
func LoadConfig(path string) (*ApplicationConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config := DefaultApplicationConfig()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config: %w", err)
		}
		defer f.Close()

		// Decoding into the defaults keeps every key the file leaves out.
		// Arrays of tables append, so the default ratios are only restored
		// when the file has none.
		ratios := config.Descriptors.Ratios
		config.Descriptors.Ratios = nil
		if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(config); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, fmt.Errorf("config %s: %s", path, strict.String())
			}
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		if len(config.Descriptors.Ratios) == 0 {
			config.Descriptors.Ratios = ratios
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *ApplicationConfig) applyEnv() error {
	if v, ok := os.LookupEnv("RR_LOG_LEVEL"); ok {
		c.LogLevel = core.LogLevel(strings.ToLower(v))
	}
	if v, ok := os.LookupEnv("RR_FRAMES_IN_FLIGHT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RR_FRAMES_IN_FLIGHT: %w", err)
		}
		c.Renderer.FramesInFlight = n
	}
	if v, ok := os.LookupEnv("RR_VSYNC"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RR_VSYNC: %w", err)
		}
		c.Renderer.Vsync = b
	}
	if v, ok := os.LookupEnv("RR_VALIDATION"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RR_VALIDATION: %w", err)
		}
		c.Renderer.Validation = b
	}
	return nil
}

func (c *ApplicationConfig) Validate() error {
	switch c.LogLevel {
	case core.LogLevelDebug, core.LogLevelInfo, core.LogLevelWarn, core.LogLevelError:
	default:
		return fmt.Errorf("unknown log level '%s'", c.LogLevel)
	}
	if c.Renderer.FramesInFlight != 2 && c.Renderer.FramesInFlight != 3 {
		return fmt.Errorf("frames in flight must be 2 or 3, got %d", c.Renderer.FramesInFlight)
	}
	if c.StartWidth == 0 || c.StartHeight == 0 {
		return fmt.Errorf("window size %dx%d has no area", c.StartWidth, c.StartHeight)
	}
	if c.Descriptors.SetsPerPool == 0 {
		return fmt.Errorf("descriptors.sets_per_pool must be positive")
	}
	if len(c.Descriptors.Ratios) == 0 {
		return fmt.Errorf("descriptors.ratios is empty")
	}
	for _, r := range c.Descriptors.Ratios {
		if _, ok := descriptorTypes[r.Type]; !ok {
			return fmt.Errorf("unknown descriptor type '%s'", r.Type)
		}
		if r.Ratio <= 0 {
			return fmt.Errorf("descriptor type '%s' has a non positive ratio %f", r.Type, r.Ratio)
		}
	}
	if c.Assets.Workers < 1 {
		return fmt.Errorf("assets.workers must be at least 1, got %d", c.Assets.Workers)
	}
	if c.Assets.QueueSize < 1 {
		return fmt.Errorf("assets.queue_size must be at least 1, got %d", c.Assets.QueueSize)
	}
	return nil
}

// DescriptorRatios converts the configured ratios for the allocator. The
// config must have been validated.
func (c *ApplicationConfig) DescriptorRatios() []descriptor.PoolRatio {
	ratios := make([]descriptor.PoolRatio, 0, len(c.Descriptors.Ratios))
	for _, r := range c.Descriptors.Ratios {
		ratios = append(ratios, descriptor.PoolRatio{Type: descriptorTypes[r.Type], Ratio: r.Ratio})
	}
	return ratios
}
