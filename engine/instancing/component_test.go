package instancing

import (
	"sync"
	"testing"

	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/engine/math"
	"github.com/spaghettifunk/instancer/engine/nanite"
	"github.com/spaghettifunk/instancer/engine/renderer"
	"github.com/spaghettifunk/instancer/engine/renderer/metadata"
	"github.com/spaghettifunk/instancer/engine/systems"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	code core.SystemEventCode
	a, b int32
}

// eventRecorder keeps every index notification fired by a component.
type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) listen(es *core.EventSystem) {
	for _, code := range []core.SystemEventCode{
		core.EVENT_CODE_INSTANCE_ADDED,
		core.EVENT_CODE_INSTANCE_REMOVED,
		core.EVENT_CODE_INSTANCE_RELOCATED,
		core.EVENT_CODE_INSTANCES_CLEARED,
		core.EVENT_CODE_INSTANCES_DESTROYED,
	} {
		es.Register(code, r, func(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, recordedEvent{code: code, a: data.Data.I32[0], b: data.Data.I32[1]})
			return false
		})
	}
}

func (r *eventRecorder) take() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

func newTestComponent(t *testing.T, config InstancedStaticMeshComponentConfig) (*InstancedStaticMeshComponent, *eventRecorder, *renderer.RenderThread, *systems.JobSystem) {
	t.Helper()
	rt, js, _ := newTestRuntime(t)
	es := core.NewEventSystem()
	rec := &eventRecorder{}
	rec.listen(es)
	if config.Name == "" {
		config.Name = "test"
	}
	if config.FeatureLevel == 0 {
		config.FeatureLevel = metadata.FEATURE_LEVEL_SM5
	}
	config.MeshBounds = unitBounds
	return NewInstancedStaticMeshComponent(config, rt, js, es), rec, rt, js
}

func TestRemoveHidesRenderSlotAndRelocates(t *testing.T) {
	c, rec, _, _ := newTestComponent(t, InstancedStaticMeshComponentConfig{RequireCPUAccess: true})
	c.AddInstances([]math.Mat4{translation(0, 0, 0), translation(1, 0, 0), translation(2, 0, 0)})
	require.NoError(t, c.FlushInstanceUpdateCommands(false))
	assert.Len(t, rec.take(), 3)

	require.True(t, c.RemoveInstance(1))

	cmds := c.PendingCommands()
	require.Len(t, cmds.Cmds, 1)
	assert.Equal(t, INSTANCE_UPDATE_TYPE_HIDE, cmds.Cmds[0].Type)
	assert.Equal(t, int32(1), cmds.Cmds[0].InstanceIndex)
	assert.Equal(t, []recordedEvent{
		{code: core.EVENT_CODE_INSTANCE_REMOVED, a: 1},
		{code: core.EVENT_CODE_INSTANCE_RELOCATED, a: 2, b: 1},
	}, rec.take())

	assert.Equal(t, []int32{0, 2}, c.InstanceReorderTable)
	assert.Equal(t, 3, c.NumRenderSlots())
	assert.Equal(t, 1, c.NumHiddenSlots())

	// The moved instance still addresses its original render slot.
	require.True(t, c.UpdateInstanceTransform(1, translation(7, 0, 0), true))
	assert.Equal(t, int32(2), cmds.Cmds[1].InstanceIndex)

	require.NoError(t, c.FlushInstanceUpdateCommands(false))
	transforms := c.RenderData().GetPerInstanceTransforms()
	require.Len(t, transforms, 3)
	assert.Equal(t, translation(0, 0, 0), transforms[0])
	assert.Equal(t, math.Mat4{}, transforms[1])
	assert.Equal(t, translation(7, 0, 0), transforms[2])
}

func TestCommandsOnlyRecordedOnceRenderDataExists(t *testing.T) {
	c, _, _, _ := newTestComponent(t, InstancedStaticMeshComponentConfig{})
	c.AddInstance(translation(1, 0, 0))
	c.UpdateInstanceTransform(0, translation(2, 0, 0), false)
	assert.Equal(t, 0, c.PendingCommands().NumInlineCommands())
	assert.Nil(t, c.RenderData())

	require.NoError(t, c.FlushInstanceUpdateCommands(false))
	require.NotNil(t, c.RenderData())
	assert.Equal(t, []math.Mat4{translation(2, 0, 0)}, c.RenderData().GetPerInstanceTransforms())

	c.AddInstance(translation(3, 0, 0))
	assert.Equal(t, 1, c.PendingCommands().NumAdds)
	assert.Equal(t, []int32{0, 1}, c.InstanceReorderTable)
}

func TestCompactionReclaimsHiddenSlots(t *testing.T) {
	c, _, _, _ := newTestComponent(t, InstancedStaticMeshComponentConfig{CompactThreshold: 0.3})
	for i := 0; i < 4; i++ {
		c.AddInstance(translation(float32(i), 0, 0))
	}
	require.NoError(t, c.FlushInstanceUpdateCommands(false))

	require.True(t, c.RemoveInstance(3))
	require.NoError(t, c.FlushInstanceUpdateCommands(false))
	// One of four hidden stays under the threshold.
	assert.Equal(t, 1, c.NumHiddenSlots())
	assert.Len(t, c.RenderData().GetPerInstanceTransforms(), 4)

	require.True(t, c.RemoveInstances([]int{0, 0}))
	require.NoError(t, c.FlushInstanceUpdateCommands(false))
	assert.Equal(t, 0, c.NumHiddenSlots())
	assert.Equal(t, 2, c.NumRenderSlots())
	assert.Equal(t, []int32{0, 1}, c.InstanceReorderTable)
	assert.Equal(t, []math.Mat4{translation(1, 0, 0), translation(2, 0, 0)}, c.RenderData().GetPerInstanceTransforms())
	assert.Equal(t, 0, c.PendingCommands().NumInlineCommands())
}

func TestClearInstancesResetsRenderStore(t *testing.T) {
	c, rec, _, _ := newTestComponent(t, InstancedStaticMeshComponentConfig{})
	c.AddInstances([]math.Mat4{translation(0, 0, 0), translation(1, 0, 0)})
	require.NoError(t, c.FlushInstanceUpdateCommands(false))
	rec.take()

	c.ClearInstances()
	assert.Equal(t, 0, c.GetInstanceCount())
	assert.Equal(t, 0, c.NumRenderSlots())
	assert.Empty(t, c.RenderData().GetPerInstanceTransforms())
	assert.Equal(t, []recordedEvent{{code: core.EVENT_CODE_INSTANCES_CLEARED, a: 2}}, rec.take())
}

func TestCustomData(t *testing.T) {
	c, _, rt, _ := newTestComponent(t, InstancedStaticMeshComponentConfig{RequireCPUAccess: true})
	c.AddInstances([]math.Mat4{translation(0, 0, 0), translation(1, 0, 0)})
	c.SetNumCustomDataFloats(2)
	require.True(t, c.SetCustomData(1, []float32{3, 4}))
	require.NoError(t, c.FlushInstanceUpdateCommands(false))

	require.True(t, c.SetCustomDataValue(0, 1, 9))
	require.NoError(t, c.FlushInstanceUpdateCommands(false))

	// Growing the channel count keeps the existing values.
	c.SetNumCustomDataFloats(3)
	assert.Equal(t, []float32{0, 9, 0, 3, 4, 0}, c.PerInstanceSMCustomData)
	rt.Flush()

	store := c.RenderData().InstanceBuffer().CPUData()
	require.Equal(t, 3, store.NumCustomDataFloats())
	assert.Equal(t, float32(9), store.GetInstanceCustomData(0, 1))
	assert.Equal(t, float32(4), store.GetInstanceCustomData(1, 1))
}

func TestShrinkingCustomDataThenAdding(t *testing.T) {
	c, _, rt, _ := newTestComponent(t, InstancedStaticMeshComponentConfig{RequireCPUAccess: true})
	c.AddInstance(translation(0, 0, 0))
	c.SetNumCustomDataFloats(2)
	require.True(t, c.SetCustomData(0, []float32{1, 2}))
	require.NoError(t, c.FlushInstanceUpdateCommands(false))

	c.SetNumCustomDataFloats(1)
	index := c.AddInstance(translation(1, 0, 0))
	require.NoError(t, c.FlushInstanceUpdateCommands(false))
	require.True(t, c.SetCustomData(index, []float32{7}))
	require.NoError(t, c.FlushInstanceUpdateCommands(false))
	rt.Flush()

	store := c.RenderData().InstanceBuffer().CPUData()
	require.Equal(t, 2, store.NumInstances())
	require.Equal(t, 1, store.NumCustomDataFloats())
	assert.Equal(t, float32(1), store.GetInstanceCustomData(0, 0))
	assert.Equal(t, float32(7), store.GetInstanceCustomData(index, 0))
}

func TestLightAndShadowBiasSetInSeparateFlushes(t *testing.T) {
	c, _, rt, _ := newTestComponent(t, InstancedStaticMeshComponentConfig{RequireCPUAccess: true})
	c.AddInstances([]math.Mat4{translation(0, 0, 0), translation(1, 0, 0)})
	require.NoError(t, c.FlushInstanceUpdateCommands(false))

	require.True(t, c.SetLightMapData(1, math.NewVec2(0.5, 0.25)))
	require.NoError(t, c.FlushInstanceUpdateCommands(false))
	require.True(t, c.SetShadowMapData(1, math.NewVec2(-0.5, 0.75)))
	require.NoError(t, c.FlushInstanceUpdateCommands(false))
	rt.Flush()

	lightmap, shadowmap := c.RenderData().InstanceBuffer().CPUData().GetInstanceLightMapData(1)
	assert.InDelta(t, 0.5, lightmap.X, 1e-4)
	assert.InDelta(t, 0.25, lightmap.Y, 1e-4)
	assert.InDelta(t, -0.5, shadowmap.X, 1e-4)
	assert.InDelta(t, 0.75, shadowmap.Y, 1e-4)
}

func TestCustomDataMismatchIsRejected(t *testing.T) {
	if core.DebugAssertions {
		t.Skip("ensure panics in debug builds")
	}
	c, _, _, _ := newTestComponent(t, InstancedStaticMeshComponentConfig{})
	c.AddInstance(translation(0, 0, 0))
	c.SetNumCustomDataFloats(2)
	require.NoError(t, c.FlushInstanceUpdateCommands(false))

	assert.False(t, c.SetCustomData(0, []float32{1}))
	assert.False(t, c.SetCustomDataValue(0, 2, 1))
	assert.False(t, c.UpdateInstanceTransform(5, translation(0, 0, 0), true))
	assert.False(t, c.RemoveInstance(-1))
	assert.Equal(t, 0, c.PendingCommands().NumInlineCommands())
}

func TestSelectionOnAuthoringComponent(t *testing.T) {
	c, _, rt, _ := newTestComponent(t, InstancedStaticMeshComponentConfig{Authoring: true, RequireCPUAccess: true})
	c.AddInstances([]math.Mat4{translation(0, 0, 0), translation(1, 0, 0), translation(2, 0, 0)})
	require.NoError(t, c.FlushInstanceUpdateCommands(false))

	require.True(t, c.SelectInstance(true, 1, 2))
	assert.Equal(t, []bool{false, true, true}, c.SelectedInstances)
	require.NoError(t, c.FlushInstanceUpdateCommands(false))
	rt.Flush()

	store := c.RenderData().InstanceBuffer().CPUData()
	_, selected := store.GetInstanceEditorData(2)
	assert.True(t, selected)
	_, selected = store.GetInstanceEditorData(0)
	assert.False(t, selected)
}

func TestSceneProxyStreams(t *testing.T) {
	c, _, rt, _ := newTestComponent(t, InstancedStaticMeshComponentConfig{RequireCPUAccess: true})
	c.AddInstances([]math.Mat4{translation(0, 0, 0), translation(1, 0, 0)})
	c.SetNumCustomDataFloats(1)
	c.SetCustomDataValue(1, 0, 5)
	c.UpdateInstanceTransform(0, translation(0, 1, 0), false)
	c.SetLightMapData(1, math.NewVec2(0.5, 0.25))

	proxy, err := c.CreateSceneProxy()
	require.NoError(t, err)
	defer proxy.Release()

	expected := metadata.INSTANCE_DATA_FLAG_HAS_RANDOM | metadata.INSTANCE_DATA_FLAG_HAS_LOCAL_BOUNDS |
		metadata.INSTANCE_DATA_FLAG_HAS_DYNAMIC_DATA | metadata.INSTANCE_DATA_FLAG_HAS_CUSTOM_DATA |
		metadata.INSTANCE_DATA_FLAG_HAS_LIGHTSHADOW_UV_BIAS
	assert.Equal(t, expected, proxy.Flags)
	require.Equal(t, 2, proxy.NumInstances())
	assert.Equal(t, translation(0, 1, 0), proxy.Instances[0].LocalToPrimitive)
	assert.Equal(t, translation(0, 0, 0), proxy.PrevLocalToPrimitive[0])
	assert.Equal(t, []float32{0, 5}, proxy.CustomData)
	assert.Equal(t, unitBounds, proxy.Instances[1].LocalBounds)
	assert.Equal(t, metadata.INVALID_HIERARCHY_OFFSET, proxy.Instances[1].NaniteHierarchyOffset)

	require.NoError(t, rt.EnqueueRenderCommand("CreateProxyResources", func(renderer.RendererBackend) {
		proxy.CreateRenderThreadResources()
	}))
	rt.Flush()
	assert.Equal(t, c.randomIDs, proxy.RandomIDs)
	assert.InDelta(t, 0.5, proxy.LightShadowUVBias[1].X, 1e-4)
	assert.InDelta(t, 0.25, proxy.LightShadowUVBias[1].Y, 1e-4)
}

func TestSceneProxyKeepsHiddenSlots(t *testing.T) {
	c, _, rt, _ := newTestComponent(t, InstancedStaticMeshComponentConfig{RequireCPUAccess: true})
	c.AddInstances([]math.Mat4{translation(0, 0, 0), translation(1, 0, 0), translation(2, 0, 0)})
	require.NoError(t, c.FlushInstanceUpdateCommands(false))
	c.RemoveInstance(1)

	proxy, err := c.CreateSceneProxy()
	require.NoError(t, err)
	defer proxy.Release()

	require.Equal(t, 3, proxy.NumInstances())
	assert.Equal(t, translation(0, 0, 0), proxy.Instances[0].LocalToPrimitive)
	assert.True(t, proxy.Instances[1].LocalToPrimitive.IsZeroScale())
	assert.Equal(t, translation(2, 0, 0), proxy.Instances[2].LocalToPrimitive)

	// Counts match, so the render thread streams are filled in slot order.
	require.NoError(t, rt.EnqueueRenderCommand("CreateProxyResources", func(renderer.RendererBackend) {
		proxy.CreateRenderThreadResources()
	}))
	rt.Flush()
	assert.Equal(t, c.randomIDs[1], proxy.RandomIDs[2])
}

func TestSceneProxyClampsStaleReorderTable(t *testing.T) {
	c, _, _, _ := newTestComponent(t, InstancedStaticMeshComponentConfig{})
	c.AddInstances([]math.Mat4{translation(0, 0, 0), translation(1, 0, 0)})
	require.NoError(t, c.FlushInstanceUpdateCommands(false))

	c.InstanceReorderTable[1] = 40
	proxy := NewInstancedStaticMeshSceneProxy(c)
	defer proxy.Release()
	require.Equal(t, 2, proxy.NumInstances())
	assert.Equal(t, translation(1, 0, 0), proxy.Instances[1].LocalToPrimitive)
}

func TestSceneProxyCountMismatchLeavesStreamsZero(t *testing.T) {
	c, _, rt, _ := newTestComponent(t, InstancedStaticMeshComponentConfig{RequireCPUAccess: true})
	c.AddInstances([]math.Mat4{translation(0, 0, 0), translation(1, 0, 0)})
	proxy, err := c.CreateSceneProxy()
	require.NoError(t, err)
	defer proxy.Release()

	c.AddInstance(translation(2, 0, 0))
	require.NoError(t, c.FlushInstanceUpdateCommands(false))
	require.NoError(t, rt.EnqueueRenderCommand("CreateProxyResources", func(renderer.RendererBackend) {
		proxy.CreateRenderThreadResources()
	}))
	rt.Flush()
	assert.Equal(t, []float32{0, 0}, proxy.RandomIDs)
}

func TestSceneProxyResolvesNaniteOffset(t *testing.T) {
	b := nanite.NewResourceBuilder()
	var cluster nanite.PackedCluster
	cluster.SetNumVerts(3)
	b.AddPage([]nanite.PackedCluster{cluster}, nil, nil, []byte{1, 2, 3})
	res, err := b.Build()
	require.NoError(t, err)

	c, _, rt, js := newTestComponent(t, InstancedStaticMeshComponentConfig{Nanite: res})
	sm, err := systems.NewStreamingManager(systems.StreamingManagerConfig{MaxResidentPages: 4}, js)
	require.NoError(t, err)
	defer sm.Shutdown()

	c.AddInstance(translation(0, 0, 0))
	proxy, err := c.CreateSceneProxy()
	require.NoError(t, err)
	defer proxy.Release()
	assert.False(t, proxy.ResolveNaniteHierarchyOffset())

	require.NoError(t, res.InitResources(rt, sm))
	rt.Flush()
	require.True(t, proxy.ResolveNaniteHierarchyOffset())
	offset, _ := res.HierarchyOffset()
	assert.Equal(t, offset, proxy.Instances[0].NaniteHierarchyOffset)
	assert.Same(t, res, c.Nanite())
}

func TestDestroyKeepsProxyDataAlive(t *testing.T) {
	c, rec, rt, _ := newTestComponent(t, InstancedStaticMeshComponentConfig{})
	c.AddInstance(translation(0, 0, 0))
	proxy, err := c.CreateSceneProxy()
	require.NoError(t, err)
	rd := proxy.RenderData()
	rec.take()

	c.Destroy()
	c.Destroy()
	assert.Nil(t, c.RenderData())
	assert.Equal(t, []recordedEvent{{code: core.EVENT_CODE_INSTANCES_DESTROYED, a: 1}}, rec.take())
	assert.False(t, rd.IsReleased())
	assert.NoError(t, c.FlushInstanceUpdateCommands(false))

	proxy.Release()
	proxy.Release()
	assert.True(t, rd.IsReleased())
	rt.Flush()
	assert.False(t, rd.InstanceBuffer().IsInitialized())
}
