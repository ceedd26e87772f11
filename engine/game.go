package engine

import (
	"github.com/spaghettifunk/instancer/engine/assets"
	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/engine/renderer"
	"github.com/spaghettifunk/instancer/engine/systems"
)

/**
 * @brief The application driven by the engine. The engine fills in the system
 * handles before FnInitialize is called.
 */
type Game struct {
	ApplicationConfig *ApplicationConfig
	SystemManager     *systems.SystemManager
	RenderThread      *renderer.RenderThread
	AssetManager      *assets.AssetManager
	Events            *core.EventSystem
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnShutdown        Shutdown
}

type Initialize func() error
type Update func(deltaTime float64) error
type Render func(deltaTime float64) error
type Shutdown func() error
