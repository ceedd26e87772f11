package instancing

import (
	"sort"

	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/engine/math"
	"github.com/spaghettifunk/instancer/engine/nanite"
	"github.com/spaghettifunk/instancer/engine/renderer"
	"github.com/spaghettifunk/instancer/engine/renderer/metadata"
	"github.com/spaghettifunk/instancer/engine/systems"
)

/** @brief The configuration of an instanced static mesh component */
type InstancedStaticMeshComponentConfig struct {
	Name string
	/** @brief Bounds of the mesh in instance space. */
	MeshBounds math.BoxSphereBounds
	/** @brief Authoring components keep editor data and allocate with slack. */
	Authoring bool
	/** @brief Store instance transforms as half floats. */
	UseHalfFloat     bool
	TrackBounds      bool
	RequireCPUAccess bool
	FeatureLevel     metadata.FeatureLevel
	/** @brief Fraction of hidden render slots that triggers a compaction on flush. Zero disables it. */
	CompactThreshold float32
	RandomSeed       uint64
	/** @brief Optional virtualized geometry of the mesh. */
	Nanite *nanite.Resources
}

/**
 * @brief Authoritative state of one instance.
 */
type InstancedStaticMeshInstanceData struct {
	Transform       math.Mat4
	LightmapUVBias  math.Vec2
	ShadowmapUVBias math.Vec2
}

/**
 * @brief A mesh drawn many times. The component owns the authoritative instance
 * arrays on the game thread and records every change into a command log that is
 * flushed to the shared render data.
 *
 * InstanceReorderTable maps a component index to its slot in the render store.
 * Removing an instance hides its slot; slots are reclaimed by Compact.
 */
type InstancedStaticMeshComponent struct {
	config InstancedStaticMeshComponentConfig
	rt     *renderer.RenderThread
	tasks  *systems.JobSystem
	events *core.EventSystem
	random *math.RandomStream

	PerInstanceSMData        []InstancedStaticMeshInstanceData
	PerInstancePrevTransform []math.Mat4
	PerInstanceSMCustomData  []float32
	NumCustomDataFloats      int
	SelectedInstances        []bool
	InstanceReorderTable     []int32

	randomIDs         []float32
	hasPrevTransforms bool
	hasLightmapData   bool
	numRenderSlots    int
	numHiddenSlots    int
	cmds              InstanceUpdateCmdBuffer
	renderData        *PerInstanceRenderData
	destroyed         bool
}

func NewInstancedStaticMeshComponent(config InstancedStaticMeshComponentConfig, rt *renderer.RenderThread, tasks *systems.JobSystem, events *core.EventSystem) *InstancedStaticMeshComponent {
	return &InstancedStaticMeshComponent{
		config: config,
		rt:     rt,
		tasks:  tasks,
		events: events,
		random: math.NewRandomStream(config.RandomSeed),
	}
}

func (c *InstancedStaticMeshComponent) Name() string {
	return c.config.Name
}

func (c *InstancedStaticMeshComponent) Config() InstancedStaticMeshComponentConfig {
	return c.config
}

func (c *InstancedStaticMeshComponent) fire(code core.SystemEventCode, a, b int) {
	ctx := core.EventContext{}
	ctx.Data.I32[0] = int32(a)
	ctx.Data.I32[1] = int32(b)
	c.events.Fire(code, c, ctx)
}

// recording reports whether changes must be logged for the render data.
func (c *InstancedStaticMeshComponent) recording() bool {
	return c.renderData != nil
}

func (c *InstancedStaticMeshComponent) GetInstanceCount() int {
	return len(c.PerInstanceSMData)
}

func (c *InstancedStaticMeshComponent) IsValidInstance(index int) bool {
	return index >= 0 && index < len(c.PerInstanceSMData)
}

func (c *InstancedStaticMeshComponent) GetInstanceTransform(index int) (math.Mat4, bool) {
	if !c.IsValidInstance(index) {
		return math.Mat4{}, false
	}
	return c.PerInstanceSMData[index].Transform, true
}

// renderSlot returns the render store slot of index.
func (c *InstancedStaticMeshComponent) renderSlot(index int) int {
	if index < len(c.InstanceReorderTable) {
		return int(c.InstanceReorderTable[index])
	}
	return index
}

/**
 * @brief Appends an instance and returns its index.
 */
func (c *InstancedStaticMeshComponent) AddInstance(xform math.Mat4) int {
	index := len(c.PerInstanceSMData)
	randomID := c.random.Fraction()

	c.PerInstanceSMData = append(c.PerInstanceSMData, InstancedStaticMeshInstanceData{Transform: xform})
	c.PerInstancePrevTransform = append(c.PerInstancePrevTransform, xform)
	c.PerInstanceSMCustomData = append(c.PerInstanceSMCustomData, make([]float32, c.NumCustomDataFloats)...)
	c.SelectedInstances = append(c.SelectedInstances, false)
	c.randomIDs = append(c.randomIDs, randomID)

	if c.recording() {
		c.InstanceReorderTable = append(c.InstanceReorderTable, int32(c.numRenderSlots))
		c.numRenderSlots++
		c.cmds.AddInstanceWithRandom(xform, randomID)
	}
	c.fire(core.EVENT_CODE_INSTANCE_ADDED, index, 0)
	return index
}

func (c *InstancedStaticMeshComponent) AddInstances(xforms []math.Mat4) []int {
	out := make([]int, 0, len(xforms))
	for _, xform := range xforms {
		out = append(out, c.AddInstance(xform))
	}
	return out
}

/**
 * @brief Moves an instance. Without teleport the previous transform is kept for
 * motion vectors.
 */
func (c *InstancedStaticMeshComponent) UpdateInstanceTransform(index int, xform math.Mat4, teleport bool) bool {
	if !core.Ensure(c.IsValidInstance(index), "update transform of instance %d of %d", index, len(c.PerInstanceSMData)) {
		return false
	}
	if teleport {
		c.PerInstancePrevTransform[index] = xform
	} else {
		c.PerInstancePrevTransform[index] = c.PerInstanceSMData[index].Transform
		c.hasPrevTransforms = true
	}
	c.PerInstanceSMData[index].Transform = xform
	if c.recording() {
		c.cmds.UpdateInstance(c.renderSlot(index), xform)
	}
	return true
}

func (c *InstancedStaticMeshComponent) BatchUpdateInstancesTransforms(start int, xforms []math.Mat4, teleport bool) bool {
	if !core.Ensure(start >= 0 && start+len(xforms) <= len(c.PerInstanceSMData), "batch update [%d, %d) of %d", start, start+len(xforms), len(c.PerInstanceSMData)) {
		return false
	}
	for i, xform := range xforms {
		c.UpdateInstanceTransform(start+i, xform, teleport)
	}
	return true
}

/**
 * @brief Removes an instance. Later instances shift down by one and a
 * relocation is fired for each of them.
 */
func (c *InstancedStaticMeshComponent) RemoveInstance(index int) bool {
	if !core.Ensure(c.IsValidInstance(index), "remove instance %d of %d", index, len(c.PerInstanceSMData)) {
		return false
	}
	count := len(c.PerInstanceSMData)

	if c.recording() {
		c.cmds.HideInstance(c.renderSlot(index))
		c.numHiddenSlots++
		c.InstanceReorderTable = append(c.InstanceReorderTable[:index], c.InstanceReorderTable[index+1:]...)
	}

	c.PerInstanceSMData = append(c.PerInstanceSMData[:index], c.PerInstanceSMData[index+1:]...)
	c.PerInstancePrevTransform = append(c.PerInstancePrevTransform[:index], c.PerInstancePrevTransform[index+1:]...)
	c.SelectedInstances = append(c.SelectedInstances[:index], c.SelectedInstances[index+1:]...)
	c.randomIDs = append(c.randomIDs[:index], c.randomIDs[index+1:]...)
	n := c.NumCustomDataFloats
	c.PerInstanceSMCustomData = append(c.PerInstanceSMCustomData[:index*n], c.PerInstanceSMCustomData[(index+1)*n:]...)

	c.fire(core.EVENT_CODE_INSTANCE_REMOVED, index, 0)
	for moved := index + 1; moved < count; moved++ {
		c.fire(core.EVENT_CODE_INSTANCE_RELOCATED, moved, moved-1)
	}
	return true
}

// RemoveInstances removes every listed index, highest first.
func (c *InstancedStaticMeshComponent) RemoveInstances(indices []int) bool {
	sorted := append([]int(nil), indices...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	ok := true
	for i, index := range sorted {
		if i > 0 && index == sorted[i-1] {
			continue
		}
		ok = c.RemoveInstance(index) && ok
	}
	return ok
}

/**
 * @brief Removes every instance and resets the render store.
 */
func (c *InstancedStaticMeshComponent) ClearInstances() {
	previous := len(c.PerInstanceSMData)
	c.PerInstanceSMData = nil
	c.PerInstancePrevTransform = nil
	c.PerInstanceSMCustomData = nil
	c.SelectedInstances = nil
	c.randomIDs = nil
	c.hasPrevTransforms = false
	c.hasLightmapData = false

	if c.recording() {
		if err := c.rebuildRenderData(); err != nil {
			core.LogError("failed to clear render data of '%s': %s", c.config.Name, err.Error())
		}
	}
	c.fire(core.EVENT_CODE_INSTANCES_CLEARED, previous, 0)
}

/**
 * @brief Changes the number of custom floats per instance. Existing values of
 * the channels that remain are kept.
 */
func (c *InstancedStaticMeshComponent) SetNumCustomDataFloats(n int) {
	if n < 0 || n == c.NumCustomDataFloats {
		return
	}
	custom := make([]float32, len(c.PerInstanceSMData)*n)
	common := min(n, c.NumCustomDataFloats)
	for i := range c.PerInstanceSMData {
		copy(custom[i*n:i*n+common], c.PerInstanceSMCustomData[i*c.NumCustomDataFloats:])
	}
	c.PerInstanceSMCustomData = custom
	c.NumCustomDataFloats = n

	if c.recording() {
		if err := c.rebuildRenderData(); err != nil {
			core.LogError("failed to resize custom data of '%s': %s", c.config.Name, err.Error())
		}
	}
}

func (c *InstancedStaticMeshComponent) SetCustomDataValue(index, channel int, value float32) bool {
	if !core.Ensure(c.IsValidInstance(index) && channel >= 0 && channel < c.NumCustomDataFloats,
		"custom data %d/%d of instance %d", channel, c.NumCustomDataFloats, index) {
		return false
	}
	c.PerInstanceSMCustomData[index*c.NumCustomDataFloats+channel] = value
	c.pushCustomData(index)
	return true
}

/**
 * @brief Replaces every custom float of index. floats must hold exactly
 * NumCustomDataFloats values.
 */
func (c *InstancedStaticMeshComponent) SetCustomData(index int, floats []float32) bool {
	if !core.Ensure(c.IsValidInstance(index), "custom data of instance %d of %d", index, len(c.PerInstanceSMData)) {
		return false
	}
	if !core.Ensure(len(floats) == c.NumCustomDataFloats, "%s: got %d floats, component has %d", core.ErrCustomDataMismatch, len(floats), c.NumCustomDataFloats) {
		return false
	}
	copy(c.PerInstanceSMCustomData[index*c.NumCustomDataFloats:], floats)
	c.pushCustomData(index)
	return true
}

func (c *InstancedStaticMeshComponent) pushCustomData(index int) {
	if !c.recording() {
		return
	}
	n := c.NumCustomDataFloats
	c.cmds.SetCustomData(c.renderSlot(index), c.PerInstanceSMCustomData[index*n:(index+1)*n])
}

// hitProxyColor derives the editor pick color of an instance.
func (c *InstancedStaticMeshComponent) hitProxyColor(index int) uint32 {
	return uint32(index+1) & 0xFFFFFF
}

/**
 * @brief Sets the selection of count instances starting at index. Only
 * authoring components record editor data.
 */
func (c *InstancedStaticMeshComponent) SelectInstance(selected bool, index, count int) bool {
	if !core.Ensure(index >= 0 && count >= 0 && index+count <= len(c.PerInstanceSMData), "select [%d, %d) of %d", index, index+count, len(c.PerInstanceSMData)) {
		return false
	}
	for i := index; i < index+count; i++ {
		c.SelectedInstances[i] = selected
		if c.recording() && c.config.Authoring {
			c.cmds.SetEditorData(c.renderSlot(i), c.hitProxyColor(i), selected)
		}
	}
	return true
}

func (c *InstancedStaticMeshComponent) SetLightMapData(index int, bias math.Vec2) bool {
	if !core.Ensure(c.IsValidInstance(index), "lightmap data of instance %d of %d", index, len(c.PerInstanceSMData)) {
		return false
	}
	c.PerInstanceSMData[index].LightmapUVBias = bias
	c.hasLightmapData = true
	if c.recording() {
		c.pushLightMapData(index)
	}
	return true
}

func (c *InstancedStaticMeshComponent) SetShadowMapData(index int, bias math.Vec2) bool {
	if !core.Ensure(c.IsValidInstance(index), "shadowmap data of instance %d of %d", index, len(c.PerInstanceSMData)) {
		return false
	}
	c.PerInstanceSMData[index].ShadowmapUVBias = bias
	c.hasLightmapData = true
	if c.recording() {
		c.pushLightMapData(index)
	}
	return true
}

// pushLightMapData records both biases so a lightmap record never clears the other one.
func (c *InstancedStaticMeshComponent) pushLightMapData(index int) {
	inst := &c.PerInstanceSMData[index]
	c.cmds.SetLightMapData(c.renderSlot(index), inst.LightmapUVBias, inst.ShadowmapUVBias)
}

// PendingCommands exposes the unflushed command log.
func (c *InstancedStaticMeshComponent) PendingCommands() *InstanceUpdateCmdBuffer {
	return &c.cmds
}

// buildStore packs the authoritative arrays into a fresh render store.
func (c *InstancedStaticMeshComponent) buildStore() *StaticMeshInstanceData {
	store := NewStaticMeshInstanceData(c.config.UseHalfFloat, c.config.Authoring)
	n := len(c.PerInstanceSMData)
	store.AllocateInstances(n, c.NumCustomDataFloats, RESIZE_FLAGS_ALLOW_SLACK, true)
	for i, inst := range c.PerInstanceSMData {
		store.SetInstance(i, inst.Transform, c.randomIDs[i], inst.LightmapUVBias, inst.ShadowmapUVBias)
		for ch := 0; ch < c.NumCustomDataFloats; ch++ {
			store.SetInstanceCustomData(i, ch, c.PerInstanceSMCustomData[i*c.NumCustomDataFloats+ch])
		}
		store.SetInstanceEditorData(i, c.hitProxyColor(i), c.SelectedInstances[i])
	}
	return store
}

func (c *InstancedStaticMeshComponent) resetRenderSlots() {
	n := len(c.PerInstanceSMData)
	c.InstanceReorderTable = make([]int32, n)
	for i := range c.InstanceReorderTable {
		c.InstanceReorderTable[i] = int32(i)
	}
	c.numRenderSlots = n
	c.numHiddenSlots = 0
}

func (c *InstancedStaticMeshComponent) rebuildRenderData() error {
	store := c.buildStore()
	c.cmds.ResetInlineCommands()
	c.cmds.NumCustomDataFloats = c.NumCustomDataFloats
	c.resetRenderSlots()
	return c.renderData.UpdateFromPreallocatedData(store, false)
}

// ensureRenderData creates the render data on first use. Returns true when it was created.
func (c *InstancedStaticMeshComponent) ensureRenderData() (bool, error) {
	if c.renderData != nil {
		return false, nil
	}
	store := c.buildStore()
	rd, err := NewPerInstanceRenderData(c.rt, c.tasks, store, PerInstanceRenderDataOptions{
		FeatureLevel:     c.config.FeatureLevel,
		RequireCPUAccess: c.config.RequireCPUAccess,
		TrackBounds:      c.config.TrackBounds,
		MeshBounds:       c.config.MeshBounds,
	})
	if err != nil {
		return false, err
	}
	c.renderData = rd
	c.cmds.ResetInlineCommands()
	c.cmds.NumCustomDataFloats = c.NumCustomDataFloats
	c.resetRenderSlots()
	return true, nil
}

/**
 * @brief Pushes the recorded commands to the render data, creating it on first
 * use. Compacts instead when too many render slots are hidden.
 */
func (c *InstancedStaticMeshComponent) FlushInstanceUpdateCommands(deferUpload bool) error {
	if c.destroyed {
		return nil
	}
	created, err := c.ensureRenderData()
	if err != nil || created {
		return err
	}
	if c.cmds.NumInlineCommands() == 0 {
		return nil
	}
	if c.shouldCompact() {
		return c.Compact()
	}
	return c.renderData.UpdateFromCommandBuffer(&c.cmds, deferUpload)
}

func (c *InstancedStaticMeshComponent) shouldCompact() bool {
	if c.config.CompactThreshold <= 0 || c.numRenderSlots == 0 {
		return false
	}
	return float32(c.numHiddenSlots)/float32(c.numRenderSlots) > c.config.CompactThreshold
}

/**
 * @brief Rebuilds the render store from the authoritative arrays, dropping the
 * hidden slots. Pending commands are discarded.
 */
func (c *InstancedStaticMeshComponent) Compact() error {
	if c.renderData == nil {
		return nil
	}
	core.LogDebug("compacting '%s': %d of %d render slots hidden", c.config.Name, c.numHiddenSlots, c.numRenderSlots)
	return c.rebuildRenderData()
}

func (c *InstancedStaticMeshComponent) NumRenderSlots() int {
	return c.numRenderSlots
}

func (c *InstancedStaticMeshComponent) NumHiddenSlots() int {
	return c.numHiddenSlots
}

func (c *InstancedStaticMeshComponent) RenderData() *PerInstanceRenderData {
	return c.renderData
}

func (c *InstancedStaticMeshComponent) Nanite() *nanite.Resources {
	return c.config.Nanite
}

/**
 * @brief Flushes pending commands and builds a proxy for the current state.
 */
func (c *InstancedStaticMeshComponent) CreateSceneProxy() (*InstancedStaticMeshSceneProxy, error) {
	if err := c.FlushInstanceUpdateCommands(false); err != nil {
		return nil, err
	}
	if c.renderData == nil {
		return nil, core.ErrRenderThreadStopped
	}
	return NewInstancedStaticMeshSceneProxy(c), nil
}

/**
 * @brief Drops the component's render data reference. Proxies that still hold
 * one keep the GPU resources alive.
 */
func (c *InstancedStaticMeshComponent) Destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	c.fire(core.EVENT_CODE_INSTANCES_DESTROYED, len(c.PerInstanceSMData), 0)
	c.cmds.Reset()
	if c.renderData != nil {
		c.renderData.Release()
		c.renderData = nil
	}
}
