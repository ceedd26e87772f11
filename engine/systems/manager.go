package systems

import (
	"github.com/spaghettifunk/instancer/engine/core"
)

type SystemManagerConfig struct {
	WorkerCount      int
	TaskQueueSize    int
	MaxResidentPages uint32
}

type SystemManager struct {
	jobSystem        *JobSystem
	streamingManager *StreamingManager
}

func NewSystemManager(config SystemManagerConfig) (*SystemManager, error) {
	js, err := NewJobSystem(config.WorkerCount, config.TaskQueueSize)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	sm, err := NewStreamingManager(StreamingManagerConfig{
		MaxResidentPages: config.MaxResidentPages,
		RequestQueueSize: 256,
	}, js)
	if err != nil {
		js.Shutdown()
		return nil, err
	}
	return &SystemManager{
		jobSystem:        js,
		streamingManager: sm,
	}, nil
}

func (sm *SystemManager) JobSystem() *JobSystem {
	return sm.jobSystem
}

func (sm *SystemManager) StreamingManager() *StreamingManager {
	return sm.streamingManager
}

// Update runs the per-frame system work.
func (sm *SystemManager) Update() error {
	if _, err := sm.streamingManager.Update(); err != nil {
		core.LogWarn("streaming update: %s", err.Error())
	}
	return nil
}

func (sm *SystemManager) Shutdown() error {
	if err := sm.streamingManager.Shutdown(); err != nil {
		return err
	}
	if err := sm.jobSystem.Shutdown(); err != nil {
		return err
	}
	return nil
}
