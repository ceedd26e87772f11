package engine

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/instancer/engine/assets"
	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/engine/renderer"
	"github.com/spaghettifunk/instancer/engine/renderer/hostmem"
	"github.com/spaghettifunk/instancer/engine/renderer/metadata"
	"github.com/spaghettifunk/instancer/engine/systems"
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

func (s Stage) String() string {
	switch s {
	case EngineStageUninitialized:
		return "Uninitialized"
	case EngineStageInitializing:
		return "Initializing"
	case EngineStageInitialized:
		return "Initialized"
	case EngineStageRunning:
		return "Running"
	case EngineStageShuttingDown:
		return "ShuttingDown"
	}
	return fmt.Sprintf("Stage(%d)", uint8(s))
}

type Engine struct {
	currentStage  Stage
	gameInstance  *Game
	isRunning     atomic.Bool
	backend       renderer.RendererBackend
	renderThread  *renderer.RenderThread
	assetManager  *assets.AssetManager
	systemManager *systems.SystemManager
	events        *core.EventSystem
	clock         *core.Clock
	lastTime      float64
	frameNumber   uint64

	configMu sync.RWMutex
	config   *ApplicationConfig
}

func New(g *Game) (*Engine, error) {
	if g.ApplicationConfig == nil {
		g.ApplicationConfig = DefaultApplicationConfig()
	}
	config := g.ApplicationConfig
	core.SetLogLevel(config.LogLevel())

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	sm, err := systems.NewSystemManager(config.SystemManagerConfig())
	if err != nil {
		core.LogError(err.Error())
		am.Shutdown()
		return nil, err
	}

	return &Engine{
		currentStage:  EngineStageUninitialized,
		gameInstance:  g,
		backend:       hostmem.New(),
		assetManager:  am,
		systemManager: sm,
		events:        core.NewEventSystem(),
		clock:         core.NewClock(),
		config:        config,
	}, nil
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return fmt.Errorf("engine cannot initialize from stage %s", e.currentStage)
	}
	e.currentStage = EngineStageInitializing
	config := e.Config()

	if err := e.backend.Initialize(&metadata.RendererBackendConfig{
		ApplicationName: config.Name,
		FeatureLevel:    config.FeatureLevel(),
	}); err != nil {
		return err
	}
	e.renderThread = renderer.NewRenderThread(e.backend, config.Render.RenderQueueSize)

	// initialize subsystems
	if err := e.assetManager.Initialize(config.Streaming.AssetDir); err != nil {
		return err
	}
	e.assetManager.Subscribe(metadata.ResourceTypeConfig, e.onConfigChanged)

	g := e.gameInstance
	g.SystemManager = e.systemManager
	g.RenderThread = e.renderThread
	g.AssetManager = e.assetManager
	g.Events = e.events

	if g.FnInitialize != nil {
		if err := g.FnInitialize(); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("engine initialized (%s, %d workers)", config.FeatureLevel(), e.systemManager.JobSystem().NumWorkers())
	return nil
}

/**
 * @brief Runs the frame loop until Stop is called or maxFrames frames have
 * been produced. Zero means no frame limit.
 */
func (e *Engine) Run(maxFrames uint64) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine cannot run from stage %s", e.currentStage)
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	g := e.gameInstance
	for e.isRunning.Load() {
		// Update clock and get delta time.
		e.clock.Update()
		var currentTime float64 = e.clock.Elapsed()
		var delta float64 = (currentTime - e.lastTime)

		if err := e.renderThread.EnqueueRenderCommand("BeginFrame", func(backend renderer.RendererBackend) {
			if err := backend.BeginFrame(delta); err != nil {
				core.LogError(err.Error())
			}
		}); err != nil {
			return err
		}

		if g.FnUpdate != nil {
			if err := g.FnUpdate(delta); err != nil {
				core.LogError("game update failed, shutting down: %s", err.Error())
				e.isRunning.Store(false)
				return err
			}
		}

		if err := e.systemManager.Update(); err != nil {
			core.LogError(err.Error())
		}

		// Call the game's render routine.
		if g.FnRender != nil {
			if err := g.FnRender(delta); err != nil {
				core.LogError("game render failed, shutting down: %s", err.Error())
				e.isRunning.Store(false)
				return err
			}
		}

		if err := e.renderThread.EnqueueRenderCommand("EndFrame", func(backend renderer.RendererBackend) {
			if err := backend.EndFrame(delta); err != nil {
				core.LogError(err.Error())
			}
		}); err != nil {
			return err
		}
		// The frame is done once the render thread caught up.
		e.renderThread.Flush()

		e.clock.Update()
		core.DefaultMetrics().Update(e.clock.Elapsed() - currentTime)

		// Update last time
		e.lastTime = currentTime
		e.frameNumber++
		if maxFrames > 0 && e.frameNumber >= maxFrames {
			e.isRunning.Store(false)
		}
	}

	fps, frameTime := core.DefaultMetrics().Frame()
	replayed, skipped := core.DefaultMetrics().Replay()
	core.LogInfo("ran %d frames (%.1f fps, %.2f ms), %d commands replayed, %d skipped", e.frameNumber, fps, frameTime, replayed, skipped)
	return nil
}

// Stop makes Run return after the current frame. Safe to call from any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	if g := e.gameInstance; g.FnShutdown != nil {
		if err := g.FnShutdown(); err != nil {
			core.LogError(err.Error())
		}
	}
	if err := e.assetManager.Shutdown(); err != nil {
		return err
	}
	if e.renderThread != nil {
		// Drains pending commands, which also fires the events the job system waits on.
		if err := e.renderThread.Shutdown(); err != nil {
			return err
		}
	}
	renderer.ReleaseDummyBuffers(e.backend)
	if err := e.systemManager.Shutdown(); err != nil {
		return err
	}
	if err := e.backend.Shutdown(); err != nil {
		return err
	}
	return e.events.Shutdown()
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) FrameNumber() uint64 {
	return e.frameNumber
}

func (e *Engine) Config() *ApplicationConfig {
	e.configMu.RLock()
	defer e.configMu.RUnlock()
	return e.config
}

func (e *Engine) Backend() renderer.RendererBackend {
	return e.backend
}

// onConfigChanged reloads the application config when its file is written.
func (e *Engine) onConfigChanged(info assets.AssetInfo) {
	current := e.Config()
	if current.Path == "" || filepath.Clean(current.Path) != info.Path {
		return
	}
	res, err := e.assetManager.LoadPath(info.Path, nil)
	if err != nil {
		core.LogWarn("config %s changed but could not be read: %s", info.Path, err.Error())
		return
	}
	config, err := DecodeApplicationConfig(res.Data.([]byte))
	if err != nil {
		core.LogWarn("config %s changed but is invalid, keeping the previous one: %s", info.Path, err.Error())
		return
	}
	config.Path = current.Path

	e.configMu.Lock()
	e.config = config
	e.configMu.Unlock()
	core.SetLogLevel(config.LogLevel())
	core.LogInfo("reloaded config from %s", info.Path)
	e.events.Fire(core.EVENT_CODE_CONFIG_RELOADED, e, core.EventContext{})
}
