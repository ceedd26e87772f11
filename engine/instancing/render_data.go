package instancing

import (
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/engine/math"
	"github.com/spaghettifunk/instancer/engine/renderer"
	"github.com/spaghettifunk/instancer/engine/renderer/metadata"
	"github.com/spaghettifunk/instancer/engine/systems"
)

type PerInstanceRenderDataOptions struct {
	FeatureLevel metadata.FeatureLevel
	/** @brief Keep the instance store readable from proxies on the render thread. */
	RequireCPUAccess bool
	/** @brief Compute a bounding sphere per instance. */
	TrackBounds bool
	/** @brief Bounds of the mesh in instance space. */
	MeshBounds math.BoxSphereBounds
}

/**
 * @brief Render data shared between a component and its scene proxies. Owns the
 * instance buffer plus a cached copy of per-instance transforms and bounds that
 * a task-graph job recomputes after every store change.
 *
 * Lifetime is reference counted. The last Release hands the GPU resources to
 * the render thread, which frees them once the pending recompute is done.
 */
type PerInstanceRenderData struct {
	rt      *renderer.RenderThread
	tasks   *systems.JobSystem
	options PerInstanceRenderDataOptions

	instanceBuffer *StaticMeshInstanceBuffer

	mu         sync.Mutex
	task       *systems.Task
	transforms []math.Mat4
	bounds     []math.Sphere

	refs     int32
	released atomic.Bool
}

/**
 * @brief Creates the render data from a populated store. GPU resource creation
 * is queued on the render thread and the first recompute is scheduled right away.
 */
func NewPerInstanceRenderData(rt *renderer.RenderThread, tasks *systems.JobSystem, store *StaticMeshInstanceData, options PerInstanceRenderDataOptions) (*PerInstanceRenderData, error) {
	rd := &PerInstanceRenderData{
		rt:             rt,
		tasks:          tasks,
		options:        options,
		instanceBuffer: NewStaticMeshInstanceBuffer(store, options.FeatureLevel, options.RequireCPUAccess),
		refs:           1,
	}

	initialized := systems.NewEvent("InitInstanceBuffer")
	err := rt.EnqueueRenderCommand("InitInstanceBuffer", func(backend renderer.RendererBackend) {
		initialized.Trigger(rd.instanceBuffer.InitResource(backend))
	})
	if err != nil {
		core.LogError("failed to queue instance buffer init: %s", err.Error())
		return nil, err
	}
	rd.scheduleRecompute(initialized)
	return rd, nil
}

// scheduleRecompute queues a recompute after after and after the previous recompute.
func (rd *PerInstanceRenderData) scheduleRecompute(after *systems.Task) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	rd.task = rd.tasks.Submit(metadata.JobTask{
		Name:    "RecomputeInstanceBounds",
		JobType: metadata.JOB_TYPE_BOUNDS,
		OnStart: rd.recompute,
	}, after, rd.task)
}

func (rd *PerInstanceRenderData) recompute() error {
	data := rd.instanceBuffer.data
	n := data.NumInstances()

	transforms := make([]math.Mat4, n)
	var bounds []math.Sphere
	if rd.options.TrackBounds {
		bounds = make([]math.Sphere, n)
	}
	for i := 0; i < n; i++ {
		// Hidden slots keep a zero transform and sphere.
		if !data.IsValidIndex(i) || data.IsNullInstance(i) {
			continue
		}
		m := data.GetInstanceTransform(i)
		transforms[i] = m
		if bounds != nil {
			bounds[i] = rd.options.MeshBounds.TransformBy(m).Sphere()
		}
	}

	rd.mu.Lock()
	rd.transforms = transforms
	rd.bounds = bounds
	rd.mu.Unlock()
	return nil
}

// waitForTask blocks until the last scheduled recompute has finished.
func (rd *PerInstanceRenderData) waitForTask() {
	rd.mu.Lock()
	task := rd.task
	rd.mu.Unlock()
	if err := task.Wait(); err != nil {
		core.LogWarn("instance bounds task: %s", err.Error())
	}
}

/**
 * @brief Returns the per-instance transforms, waiting for a pending recompute.
 * Must not be called from a render command queued before the update it waits on.
 */
func (rd *PerInstanceRenderData) GetPerInstanceTransforms() []math.Mat4 {
	rd.waitForTask()
	rd.mu.Lock()
	defer rd.mu.Unlock()
	return rd.transforms
}

/**
 * @brief Returns the per-instance bounding spheres, or nil when bounds are not tracked.
 */
func (rd *PerInstanceRenderData) GetPerInstanceBounds() []math.Sphere {
	rd.waitForTask()
	rd.mu.Lock()
	defer rd.mu.Unlock()
	return rd.bounds
}

func (rd *PerInstanceRenderData) NumInstances() int {
	return len(rd.GetPerInstanceTransforms())
}

func (rd *PerInstanceRenderData) InstanceBuffer() *StaticMeshInstanceBuffer {
	return rd.instanceBuffer
}

func (rd *PerInstanceRenderData) Options() PerInstanceRenderDataOptions {
	return rd.options
}

// enqueueStoreChange waits for the running recompute, runs fn on the render
// thread and schedules a recompute that starts once fn is done.
func (rd *PerInstanceRenderData) enqueueStoreChange(name string, fn func()) error {
	if rd.released.Load() {
		core.LogWarn("%s on released instance render data", name)
		return core.ErrRenderThreadStopped
	}
	rd.waitForTask()

	done := systems.NewEvent(name)
	if err := rd.rt.EnqueueRenderCommand(name, func(renderer.RendererBackend) {
		fn()
		done.Trigger(nil)
	}); err != nil {
		return err
	}
	rd.scheduleRecompute(done)
	return nil
}

/**
 * @brief Hands the commands of cmds to the render thread. The cached transforms
 * and bounds reflect the new state on the next read.
 */
func (rd *PerInstanceRenderData) UpdateFromCommandBuffer(cmds *InstanceUpdateCmdBuffer, deferUpload bool) error {
	stolen := cmds.Steal()
	return rd.enqueueStoreChange("UpdateFromCommandBuffer", func() {
		rd.instanceBuffer.UpdateFromCommandBufferRenderThread(stolen, deferUpload)
	})
}

/**
 * @brief Replaces the whole store.
 */
func (rd *PerInstanceRenderData) UpdateFromPreallocatedData(store *StaticMeshInstanceData, deferUpload bool) error {
	return rd.enqueueStoreChange("UpdateFromPreallocatedData", func() {
		rd.instanceBuffer.UpdateFromPreallocatedData(store, deferUpload)
	})
}

func (rd *PerInstanceRenderData) FlushDeferredUpload() error {
	return rd.rt.EnqueueRenderCommand("FlushDeferredUpload", func(renderer.RendererBackend) {
		if err := rd.instanceBuffer.FlushDeferredUpload(); err != nil {
			core.LogError("deferred instance upload failed: %s", err.Error())
		}
	})
}

// Acquire adds a reference and returns rd.
func (rd *PerInstanceRenderData) Acquire() *PerInstanceRenderData {
	atomic.AddInt32(&rd.refs, 1)
	return rd
}

/**
 * @brief Drops a reference. The last one releases the GPU resources on the
 * render thread after the pending recompute completes.
 */
func (rd *PerInstanceRenderData) Release() {
	refs := atomic.AddInt32(&rd.refs, -1)
	if refs > 0 {
		return
	}
	if !core.Ensure(refs == 0, "instance render data released %d times too often", -refs) {
		return
	}
	rd.released.Store(true)

	release := func(renderer.RendererBackend) {
		rd.waitForTask()
		rd.instanceBuffer.ReleaseResource()
	}
	if err := rd.rt.EnqueueRenderCommand("ReleasePerInstanceRenderData", release); err != nil {
		core.LogWarn("render thread gone, releasing instance render data inline")
		release(nil)
	}
}

func (rd *PerInstanceRenderData) IsReleased() bool {
	return rd.released.Load()
}

func (rd *PerInstanceRenderData) RefCount() int32 {
	return atomic.LoadInt32(&rd.refs)
}
