package engine

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/engine/instancing"
	"github.com/spaghettifunk/instancer/engine/renderer/metadata"
	"github.com/spaghettifunk/instancer/engine/systems"
)

type LogConfig struct {
	// One of debug, info, warn, error, fatal.
	Level string `toml:"level"`
}

type RenderConfig struct {
	// es3_1, sm5 or sm6.
	FeatureLevel          string `toml:"feature_level"`
	HalfFloatVertexFormat bool   `toml:"half_float_vertex_format"`
	Nanite                bool   `toml:"nanite"`
	WorkerCount           int    `toml:"worker_count"`
	TaskQueueSize         int    `toml:"task_queue_size"`
	RenderQueueSize       int    `toml:"render_queue_size"`
}

type InstancingConfig struct {
	Authoring        bool    `toml:"authoring"`
	UseHalfFloat     bool    `toml:"use_half_float"`
	CompactThreshold float32 `toml:"compact_threshold"`
	TrackBounds      bool    `toml:"track_bounds"`
	RequireCPUAccess bool    `toml:"require_cpu_access"`
	RandomSeed       uint64  `toml:"random_seed"`
}

type StreamingConfig struct {
	MaxResidentPages uint32 `toml:"max_resident_pages"`
	AssetDir         string `toml:"asset_dir"`
}

type ApplicationConfig struct {
	// The application name used by the renderer backend.
	Name       string           `toml:"name"`
	Log        LogConfig        `toml:"log"`
	Render     RenderConfig     `toml:"render"`
	Instancing InstancingConfig `toml:"instancing"`
	Streaming  StreamingConfig  `toml:"streaming"`

	// File the config was loaded from, empty for defaults.
	Path string `toml:"-"`
}

func DefaultApplicationConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Name: "Instancer",
		Log:  LogConfig{Level: "info"},
		Render: RenderConfig{
			FeatureLevel:          "sm5",
			HalfFloatVertexFormat: true,
			Nanite:                true,
			WorkerCount:           4,
			TaskQueueSize:         256,
			RenderQueueSize:       64,
		},
		Instancing: InstancingConfig{
			UseHalfFloat:     true,
			CompactThreshold: 0.5,
			TrackBounds:      true,
			RequireCPUAccess: true,
			RandomSeed:       1,
		},
		Streaming: StreamingConfig{
			MaxResidentPages: 1024,
			AssetDir:         "assets",
		},
	}
}

/**
 * @brief Reads a TOML config file. Keys missing from the file keep their
 * default value.
 */
func LoadApplicationConfig(path string) (*ApplicationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	config, err := DecodeApplicationConfig(data)
	if err != nil {
		return nil, err
	}
	config.Path = path
	return config, nil
}

func DecodeApplicationConfig(data []byte) (*ApplicationConfig, error) {
	config := DefaultApplicationConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("decode application config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *ApplicationConfig) Validate() error {
	if c.Render.WorkerCount <= 0 {
		return fmt.Errorf("render.worker_count must be positive, got %d: %w", c.Render.WorkerCount, core.ErrNoWorkers)
	}
	if c.Render.TaskQueueSize < 0 || c.Render.RenderQueueSize < 0 {
		return core.ErrNegativeQueueSize
	}
	if c.Streaming.MaxResidentPages == 0 {
		return fmt.Errorf("streaming.max_resident_pages must be positive")
	}
	if c.Instancing.CompactThreshold < 0 || c.Instancing.CompactThreshold > 1 {
		return fmt.Errorf("instancing.compact_threshold must be within [0, 1], got %f", c.Instancing.CompactThreshold)
	}
	return nil
}

func (c *ApplicationConfig) LogLevel() core.LogLevel {
	return core.ParseLogLevel(c.Log.Level)
}

func (c *ApplicationConfig) FeatureLevel() metadata.FeatureLevel {
	return metadata.ParseFeatureLevel(c.Render.FeatureLevel)
}

// TargetPlatform describes the platform the running renderer cooks for.
func (c *ApplicationConfig) TargetPlatform() metadata.TargetPlatform {
	return metadata.TargetPlatform{
		Name:                          c.Name,
		SupportsHalfFloatVertexFormat: c.Render.HalfFloatVertexFormat,
		SupportsNanite:                c.Render.Nanite,
	}
}

func (c *ApplicationConfig) SystemManagerConfig() systems.SystemManagerConfig {
	return systems.SystemManagerConfig{
		WorkerCount:      c.Render.WorkerCount,
		TaskQueueSize:    c.Render.TaskQueueSize,
		MaxResidentPages: c.Streaming.MaxResidentPages,
	}
}

/**
 * @brief Component settings derived from the [instancing] and [render]
 * sections. Half float storage is only used when the platform can fetch it.
 */
func (c *ApplicationConfig) ComponentConfig(name string) instancing.InstancedStaticMeshComponentConfig {
	return instancing.InstancedStaticMeshComponentConfig{
		Name:             name,
		Authoring:        c.Instancing.Authoring,
		UseHalfFloat:     c.Instancing.UseHalfFloat && c.Render.HalfFloatVertexFormat,
		TrackBounds:      c.Instancing.TrackBounds,
		RequireCPUAccess: c.Instancing.RequireCPUAccess,
		FeatureLevel:     c.FeatureLevel(),
		CompactThreshold: c.Instancing.CompactThreshold,
		RandomSeed:       c.Instancing.RandomSeed,
	}
}
