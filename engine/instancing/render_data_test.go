package instancing

import (
	"testing"

	"github.com/spaghettifunk/instancer/engine/math"
	"github.com/spaghettifunk/instancer/engine/renderer"
	"github.com/spaghettifunk/instancer/engine/renderer/hostmem"
	"github.com/spaghettifunk/instancer/engine/renderer/metadata"
	"github.com/spaghettifunk/instancer/engine/systems"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRuntime starts a render thread and a job system that are stopped
// when the test ends. The render thread goes first so pending events fire.
func newTestRuntime(t *testing.T) (*renderer.RenderThread, *systems.JobSystem, *hostmem.HostMemoryRenderer) {
	t.Helper()
	backend := hostmem.New()
	js, err := systems.NewJobSystem(2, 16)
	require.NoError(t, err)
	t.Cleanup(func() { js.Shutdown() })
	rt := renderer.NewRenderThread(backend, 8)
	t.Cleanup(func() {
		rt.Shutdown()
		renderer.ReleaseDummyBuffers(backend)
	})
	return rt, js, backend
}

var unitBounds = math.NewBoxSphereBounds(math.NewVec3(0, 0, 0), math.NewVec3(1, 1, 1), 1)

func TestRenderDataTracksInstanceCount(t *testing.T) {
	rt, js, _ := newTestRuntime(t)
	rd, err := NewPerInstanceRenderData(rt, js, populatedStore(t, 3, 0, false, false), PerInstanceRenderDataOptions{
		FeatureLevel:     metadata.FEATURE_LEVEL_SM5,
		RequireCPUAccess: true,
		TrackBounds:      true,
		MeshBounds:       unitBounds,
	})
	require.NoError(t, err)

	transforms := rd.GetPerInstanceTransforms()
	require.Len(t, transforms, 3)
	for i, m := range transforms {
		assert.Equal(t, testTransform(i), m)
	}

	count := 3
	for round := 0; round < 10; round++ {
		var cmds InstanceUpdateCmdBuffer
		for k := 0; k <= round; k++ {
			cmds.AddInstance(translation(float32(count), 0, 0))
			count++
		}
		require.NoError(t, rd.UpdateFromCommandBuffer(&cmds, false))
		assert.Equal(t, 0, cmds.NumInlineCommands())

		// Reads right after the update see the new count, never a stale array.
		require.Len(t, rd.GetPerInstanceTransforms(), count)
		require.Len(t, rd.GetPerInstanceBounds(), count)
	}

	bounds := rd.GetPerInstanceBounds()
	last := bounds[count-1]
	assert.InDelta(t, float32(count-1), last.Center.X, 1e-5)
	assert.InDelta(t, 1, last.W, 1e-5)
	assert.Equal(t, count, rd.NumInstances())
}

func TestRenderDataHiddenSlotsHaveZeroBounds(t *testing.T) {
	rt, js, _ := newTestRuntime(t)
	rd, err := NewPerInstanceRenderData(rt, js, populatedStore(t, 2, 0, false, false), PerInstanceRenderDataOptions{
		FeatureLevel: metadata.FEATURE_LEVEL_SM5,
		TrackBounds:  true,
		MeshBounds:   unitBounds,
	})
	require.NoError(t, err)

	var cmds InstanceUpdateCmdBuffer
	cmds.HideInstance(0)
	require.NoError(t, rd.UpdateFromCommandBuffer(&cmds, false))

	assert.Equal(t, math.Mat4{}, rd.GetPerInstanceTransforms()[0])
	assert.Equal(t, math.Sphere{}, rd.GetPerInstanceBounds()[0])
	assert.Equal(t, testTransform(1), rd.GetPerInstanceTransforms()[1])
}

func TestRenderDataWithoutBoundsTracking(t *testing.T) {
	rt, js, _ := newTestRuntime(t)
	rd, err := NewPerInstanceRenderData(rt, js, populatedStore(t, 2, 0, false, false), PerInstanceRenderDataOptions{
		FeatureLevel: metadata.FEATURE_LEVEL_SM5,
	})
	require.NoError(t, err)
	assert.Nil(t, rd.GetPerInstanceBounds())
	assert.Len(t, rd.GetPerInstanceTransforms(), 2)

	// Without CPU access proxies cannot read the store back.
	rt.Flush()
	assert.Nil(t, rd.InstanceBuffer().CPUData())
}

func TestRenderDataPreallocatedReplace(t *testing.T) {
	rt, js, _ := newTestRuntime(t)
	rd, err := NewPerInstanceRenderData(rt, js, populatedStore(t, 5, 0, false, false), PerInstanceRenderDataOptions{
		FeatureLevel: metadata.FEATURE_LEVEL_SM5,
	})
	require.NoError(t, err)
	require.NoError(t, rd.UpdateFromPreallocatedData(populatedStore(t, 2, 1, false, false), true))
	assert.Len(t, rd.GetPerInstanceTransforms(), 2)

	rt.Flush()
	assert.Equal(t, UPLOAD_STATE_DEFERRED, rd.InstanceBuffer().UploadState())
	require.NoError(t, rd.FlushDeferredUpload())
	rt.Flush()
	assert.Equal(t, UPLOAD_STATE_CLEAN, rd.InstanceBuffer().UploadState())
}

func TestRenderDataLowFeatureLevel(t *testing.T) {
	rt, js, _ := newTestRuntime(t)
	rd, err := NewPerInstanceRenderData(rt, js, populatedStore(t, 2, 0, true, false), PerInstanceRenderDataOptions{
		FeatureLevel:     metadata.FEATURE_LEVEL_ES31,
		RequireCPUAccess: true,
	})
	require.NoError(t, err)
	rt.Flush()
	assert.False(t, rd.InstanceBuffer().CPUData().UsesHalfFloat())
	assert.Equal(t, testTransform(1), rd.GetPerInstanceTransforms()[1])
}

func TestRenderDataReleasedOnLastReference(t *testing.T) {
	rt, js, backend := newTestRuntime(t)
	rd, err := NewPerInstanceRenderData(rt, js, populatedStore(t, 2, 1, false, false), PerInstanceRenderDataOptions{
		FeatureLevel: metadata.FEATURE_LEVEL_SM5,
	})
	require.NoError(t, err)

	proxyRef := rd.Acquire()
	assert.Equal(t, int32(2), rd.RefCount())

	rd.Release()
	assert.False(t, rd.IsReleased())
	rt.Flush()
	assert.True(t, rd.InstanceBuffer().IsInitialized())
	assert.Equal(t, 4, backend.Stats().LiveBuffers)

	proxyRef.Release()
	assert.True(t, rd.IsReleased())
	rt.Flush()
	assert.False(t, rd.InstanceBuffer().IsInitialized())
	assert.Equal(t, 0, backend.Stats().LiveBuffers)

	var cmds InstanceUpdateCmdBuffer
	cmds.AddInstance(translation(1, 0, 0))
	assert.Error(t, rd.UpdateFromCommandBuffer(&cmds, false))
}

func TestRenderDataReleaseAfterRenderThreadStopped(t *testing.T) {
	backend := hostmem.New()
	js, err := systems.NewJobSystem(1, 4)
	require.NoError(t, err)
	defer js.Shutdown()
	rt := renderer.NewRenderThread(backend, 4)

	rd, err := NewPerInstanceRenderData(rt, js, populatedStore(t, 2, 1, false, false), PerInstanceRenderDataOptions{
		FeatureLevel: metadata.FEATURE_LEVEL_SM5,
	})
	require.NoError(t, err)
	require.NoError(t, rt.Shutdown())

	rd.Release()
	assert.True(t, rd.IsReleased())
	assert.False(t, rd.InstanceBuffer().IsInitialized())
	assert.Equal(t, 0, backend.Stats().LiveBuffers)
}
