package engine

import (
	"fmt"
	"path/filepath"

	"github.com/TideSofDarK/RrFramework-sub001/engine/assets"
	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
	"github.com/TideSofDarK/RrFramework-sub001/engine/platform"
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer"
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/descriptor"
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/graph"
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/vulkan"
	"github.com/TideSofDarK/RrFramework-sub001/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// metricsLogInterval is the number of frames between two frame time reports.
const metricsLogInterval = 600

// Frame is what the application draws into: a graph that was just reset and
// the swapchain image acquired for it.
type Frame struct {
	Graph     *graph.Graph
	Swapchain graph.Handle
	Width     uint32
	Height    uint32
	DeltaTime float64
	Number    uint64
}

type Engine struct {
	currentStage Stage
	app          Application
	config       *ApplicationConfig
	isRunning    bool
	isSuspended  bool
	width        uint32
	height       uint32

	platform *platform.Platform
	backend  *vulkan.VulkanRenderer
	renderer *renderer.Renderer
	graph    *graph.Graph
	jobs     *systems.JobSystem
	loader   *assets.Loader
	watcher  *assets.Watcher
	uploader *textureUploader

	clock    *core.Clock
	metrics  *core.Metrics
	lastTime float64
}

func New(app Application, config *ApplicationConfig) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	core.SetLogLevel(config.LogLevel)

	return &Engine{
		currentStage: EngineStageUninitialized,
		app:          app,
		config:       config,
		platform:     platform.New(),
		graph:        graph.New(),
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		width:        config.StartWidth,
		height:       config.StartHeight,
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	if err := e.platform.Startup(e.config.Name, e.config.StartPosX, e.config.StartPosY, e.config.StartWidth, e.config.StartHeight); err != nil {
		return err
	}
	e.platform.OnResize(e.onResized)
	// The framebuffer can differ from the window size on high density displays.
	e.width, e.height = e.platform.FramebufferSize()

	e.backend = vulkan.New(e.platform, vulkan.VulkanRendererConfig{
		ApplicationName: e.config.Name,
		Width:           e.width,
		Height:          e.height,
		FramesInFlight:  e.config.Renderer.FramesInFlight,
		Vsync:           e.config.Renderer.Vsync,
		Validation:      e.config.Renderer.Validation,
	})
	if err := e.backend.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize the vulkan backend: %w", err)
	}

	r, err := renderer.New(e.backend, renderer.Config{
		Width:            e.width,
		Height:           e.height,
		DescriptorSets:   e.config.Descriptors.SetsPerPool,
		DescriptorRatios: e.config.DescriptorRatios(),
		DescriptorOptions: descriptor.Options{
			MaxSetsCap: e.config.Descriptors.MaxSetsCap,
			MaxPools:   e.config.Descriptors.MaxPools,
		},
	})
	if err != nil {
		return err
	}
	e.renderer = r
	e.renderer.OnResize(func(width, height uint32) error {
		return e.app.OnResize(e, width, height)
	})

	if err := e.startAssets(); err != nil {
		return err
	}

	if err := e.app.Initialize(e); err != nil {
		return fmt.Errorf("application failed to initialize: %w", err)
	}

	e.isRunning = true
	e.currentStage = EngineStageInitialized
	core.LogInfo("engine initialized, %dx%d", e.width, e.height)
	return nil
}

func (e *Engine) startAssets() error {
	jobs, err := systems.NewJobSystem(e.config.Assets.Workers, e.config.Assets.QueueSize)
	if err != nil {
		return err
	}
	e.jobs = jobs

	e.uploader = newTextureUploader(e.backend)
	loader, err := assets.NewLoader(e.jobs, e.uploader, assets.LoaderConfig{
		QueueSize:      e.config.Assets.QueueSize,
		MaxTextureSize: e.config.Assets.MaxTextureSize,
		RetireAfter:    uint64(e.backend.FramesInFlight() + 1),
	})
	if err != nil {
		return err
	}
	e.loader = loader

	if !e.config.Assets.Watch {
		return nil
	}
	watcher, err := assets.NewWatcher()
	if err != nil {
		return err
	}
	reload := func(path string) {
		if err := e.loader.Reload(path); err != nil {
			core.LogWarn("failed to reload %s: %s", path, err)
		}
	}
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".bmp", ".webp"} {
		watcher.Handle(ext, reload)
	}
	if err := watcher.Start(e.config.Assets.Directory); err != nil {
		watcher.Close()
		return err
	}
	e.watcher = watcher
	core.LogInfo("watching %s for asset changes", e.config.Assets.Directory)
	return nil
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning {
		e.platform.PumpMessages()
		if e.platform.ShouldClose() {
			e.isRunning = false
			break
		}

		if e.isSuspended || e.platform.Minimized() {
			e.platform.WaitMessages()
			e.clock.Update()
			e.lastTime = e.clock.Elapsed()
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := e.platform.AbsoluteTime()

		e.loader.Drain()

		if err := e.app.Update(e, delta); err != nil {
			e.isRunning = false
			return fmt.Errorf("application update failed: %w", err)
		}
		if err := e.drawFrame(delta); err != nil {
			e.isRunning = false
			return err
		}

		e.metrics.Update(e.platform.AbsoluteTime() - frameStartTime)
		if n := e.renderer.Frame(); n > 0 && n%metricsLogInterval == 0 {
			fps, ms := e.metrics.Frame()
			core.LogDebug("frame %d: %.0f fps, %.2f ms", n, fps, ms)
		}
		e.lastTime = currentTime
	}
	return nil
}

func (e *Engine) drawFrame(delta float64) error {
	ok, err := e.renderer.BeginFrame()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	e.graph.Begin()
	frame := &Frame{
		Graph:     e.graph,
		Swapchain: e.graph.Register(e.renderer.SwapchainImage()),
		DeltaTime: delta,
		Number:    e.renderer.Frame(),
	}
	frame.Width, frame.Height = e.renderer.Extent()

	if err := e.app.Draw(e, frame); err != nil {
		return fmt.Errorf("application draw failed: %w", err)
	}
	if err := e.renderer.Record(e.graph); err != nil {
		return err
	}
	return e.renderer.EndFrame()
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.isRunning = false

	if e.watcher != nil {
		e.watcher.Close()
	}
	if e.backend != nil {
		// Everything below destroys device objects.
		if err := e.backend.WaitIdle(); err != nil {
			core.LogError("device wait idle failed on shutdown: %s", err)
		}
	}
	if err := e.app.Cleanup(e); err != nil {
		core.LogError("application cleanup failed: %s", err)
	}
	if e.loader != nil {
		e.loader.Shutdown()
	}
	if e.jobs != nil {
		e.jobs.Shutdown()
	}
	if e.renderer != nil {
		if err := e.renderer.Shutdown(); err != nil {
			return err
		}
	} else if e.backend != nil {
		e.backend.Shutdown()
	}
	return e.platform.Shutdown()
}

func (e *Engine) onResized(width, height uint32) {
	if width == e.width && height == e.height {
		return
	}
	e.width, e.height = width, height
	core.LogDebug("Window resize: %d, %d", width, height)

	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
	} else if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.renderer != nil {
		e.renderer.Resize(width, height)
	}
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) Config() *ApplicationConfig {
	return e.config
}

func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

// Backend exposes the Vulkan context for pipeline and image creation.
func (e *Engine) Backend() *vulkan.VulkanRenderer {
	return e.backend
}

func (e *Engine) Assets() *assets.Loader {
	return e.loader
}

// Watch registers a handler for changed files with the given extension. It is
// a no-op unless assets.watch is enabled. The handler runs on the watcher
// goroutine.
func (e *Engine) Watch(ext string, fn assets.ChangeHandler) {
	if e.watcher != nil {
		e.watcher.Handle(ext, fn)
	}
}

// AssetPath joins name to the configured asset directory.
func (e *Engine) AssetPath(name ...string) string {
	return filepath.Join(append([]string{e.config.Assets.Directory}, name...)...)
}

func (e *Engine) Metrics() *core.Metrics {
	return e.metrics
}

func (e *Engine) RequestQuit() {
	e.platform.RequestClose()
}
