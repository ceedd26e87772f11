package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/engine/renderer/hostmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, g *Game) *Engine {
	t.Helper()
	if g.ApplicationConfig == nil {
		g.ApplicationConfig = DefaultApplicationConfig()
		g.ApplicationConfig.Streaming.AssetDir = t.TempDir()
		g.ApplicationConfig.Render.WorkerCount = 2
	}
	e, err := New(g)
	require.NoError(t, err)
	return e
}

func TestEngineRunsFrames(t *testing.T) {
	var updates, renders int
	initialized, shutdown := false, false
	g := &Game{}
	g.FnInitialize = func() error {
		initialized = true
		assert.NotNil(t, g.RenderThread)
		assert.NotNil(t, g.SystemManager)
		assert.NotNil(t, g.AssetManager)
		return nil
	}
	g.FnUpdate = func(deltaTime float64) error {
		updates++
		assert.GreaterOrEqual(t, deltaTime, 0.0)
		return nil
	}
	g.FnRender = func(deltaTime float64) error {
		renders++
		return nil
	}
	g.FnShutdown = func() error {
		shutdown = true
		return nil
	}

	e := newTestEngine(t, g)
	assert.Equal(t, EngineStageUninitialized, e.Stage())
	assert.Error(t, e.Run(1))

	require.NoError(t, e.Initialize())
	assert.True(t, initialized)
	assert.Equal(t, EngineStageInitialized, e.Stage())
	assert.Error(t, e.Initialize())

	require.NoError(t, e.Run(3))
	assert.Equal(t, 3, updates)
	assert.Equal(t, 3, renders)
	assert.Equal(t, uint64(3), e.FrameNumber())
	// BeginFrame and EndFrame reached the backend on the render thread.
	assert.Equal(t, uint64(3), e.Backend().(*hostmem.HostMemoryRenderer).FrameNumber())

	require.NoError(t, e.Shutdown())
	assert.True(t, shutdown)
	assert.Equal(t, EngineStageShuttingDown, e.Stage())
	assert.NoError(t, e.Shutdown())
}

func TestEngineStopsOnUpdateError(t *testing.T) {
	g := &Game{}
	g.FnUpdate = func(deltaTime float64) error {
		return assert.AnError
	}
	e := newTestEngine(t, g)
	require.NoError(t, e.Initialize())
	assert.ErrorIs(t, e.Run(0), assert.AnError)
	require.NoError(t, e.Shutdown())
}

func TestEngineStopFromUpdate(t *testing.T) {
	g := &Game{}
	e := newTestEngine(t, g)
	frames := 0
	g.FnUpdate = func(deltaTime float64) error {
		frames++
		if frames == 2 {
			e.Stop()
		}
		return nil
	}
	require.NoError(t, e.Initialize())
	require.NoError(t, e.Run(0))
	assert.Equal(t, uint64(2), e.FrameNumber())
	require.NoError(t, e.Shutdown())
}

func TestEngineReloadsConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instancer.toml")
	require.NoError(t, os.WriteFile(path, []byte("[streaming]\nasset_dir = \""+filepath.ToSlash(dir)+"\"\n"), 0o644))

	config, err := LoadApplicationConfig(path)
	require.NoError(t, err)
	config.Render.WorkerCount = 2

	e := newTestEngine(t, &Game{ApplicationConfig: config})
	require.NoError(t, e.Initialize())
	t.Cleanup(func() { e.Shutdown() })

	reloaded := make(chan struct{}, 4)
	e.events.Register(core.EVENT_CODE_CONFIG_RELOADED, t, func(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
		reloaded <- struct{}{}
		return true
	})

	// Invalid documents keep the running config.
	require.NoError(t, os.WriteFile(path, []byte("[render]\nworker_count = 0\n"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("name = \"reloaded\"\n[log]\nlevel = \"warn\"\n"), 0o644))

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
	assert.Eventually(t, func() bool {
		return e.Config().Name == "reloaded"
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, path, e.Config().Path)
	assert.Equal(t, core.WarnLevel, e.Config().LogLevel())
	core.SetLogLevel(core.InfoLevel)
}
