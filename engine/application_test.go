package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadApplicationConfigKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instancer.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
name = "forest"

[log]
level = "debug"

[render]
feature_level = "es3_1"
half_float_vertex_format = false

[instancing]
authoring = true
compact_threshold = 0.25
`), 0o644))

	config, err := LoadApplicationConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "forest", config.Name)
	assert.Equal(t, core.DebugLevel, config.LogLevel())
	assert.Equal(t, metadata.FEATURE_LEVEL_ES31, config.FeatureLevel())
	assert.True(t, config.Instancing.Authoring)

	defaults := DefaultApplicationConfig()
	assert.Equal(t, defaults.Render.WorkerCount, config.Render.WorkerCount)
	assert.Equal(t, defaults.Streaming, config.Streaming)

	component := config.ComponentConfig("trees")
	assert.Equal(t, "trees", component.Name)
	assert.False(t, component.UseHalfFloat)
	assert.Equal(t, float32(0.25), component.CompactThreshold)
	assert.False(t, config.TargetPlatform().SupportsHalfFloatVertexFormat)
}

func TestApplicationConfigValidation(t *testing.T) {
	_, err := DecodeApplicationConfig([]byte("[render]\nworker_count = 0\n"))
	assert.ErrorIs(t, err, core.ErrNoWorkers)

	_, err = DecodeApplicationConfig([]byte("[streaming]\nmax_resident_pages = 0\n"))
	assert.Error(t, err)

	_, err = DecodeApplicationConfig([]byte("[instancing]\ncompact_threshold = 1.5\n"))
	assert.Error(t, err)

	_, err = DecodeApplicationConfig([]byte("[render\n"))
	assert.Error(t, err)

	_, err = LoadApplicationConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
