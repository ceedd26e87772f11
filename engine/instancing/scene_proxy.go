package instancing

import (
	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/engine/math"
	"github.com/spaghettifunk/instancer/engine/nanite"
	"github.com/spaghettifunk/instancer/engine/renderer/metadata"
)

/**
 * @brief Render side view of an instanced mesh component: the flat primitive
 * instance array the GPU scene uploads plus the optional per-instance streams
 * named by Flags. Arrays are in render slot order.
 */
type InstancedStaticMeshSceneProxy struct {
	renderData *PerInstanceRenderData
	nanite     *nanite.Resources

	Instances            []metadata.PrimitiveInstance
	Flags                metadata.InstanceDataFlags
	PrevLocalToPrimitive []math.Mat4
	CustomData           []float32
	NumCustomDataFloats  int
	RandomIDs            []float32
	// Lightmap uv bias in xy, shadowmap uv bias in zw.
	LightShadowUVBias []math.Vec4
}

/**
 * @brief Builds the proxy from the component's current arrays. Each instance is
 * written at its render slot. A slot that falls outside the array is replaced
 * by the instance's own index; the reorder table can be stale when the
 * component changed after the table was built, and the clamp does not repair
 * that mapping.
 */
func NewInstancedStaticMeshSceneProxy(c *InstancedStaticMeshComponent) *InstancedStaticMeshSceneProxy {
	count := max(c.numRenderSlots, len(c.PerInstanceSMData))
	p := &InstancedStaticMeshSceneProxy{
		renderData:          c.renderData.Acquire(),
		nanite:              c.config.Nanite,
		Instances:           make([]metadata.PrimitiveInstance, count),
		NumCustomDataFloats: c.NumCustomDataFloats,
		RandomIDs:           make([]float32, count),
		Flags:               metadata.INSTANCE_DATA_FLAG_HAS_RANDOM | metadata.INSTANCE_DATA_FLAG_HAS_LOCAL_BOUNDS,
	}
	if c.hasPrevTransforms {
		p.Flags |= metadata.INSTANCE_DATA_FLAG_HAS_DYNAMIC_DATA
		p.PrevLocalToPrimitive = make([]math.Mat4, count)
	}
	if c.NumCustomDataFloats > 0 {
		p.Flags |= metadata.INSTANCE_DATA_FLAG_HAS_CUSTOM_DATA
		p.CustomData = make([]float32, count*c.NumCustomDataFloats)
	}
	if c.hasLightmapData {
		p.Flags |= metadata.INSTANCE_DATA_FLAG_HAS_LIGHTSHADOW_UV_BIAS
		p.LightShadowUVBias = make([]math.Vec4, count)
	}

	// Hidden slots stay zero-scale.
	for i := range p.Instances {
		p.Instances[i].LocalBounds = c.config.MeshBounds
		p.Instances[i].NaniteHierarchyOffset = metadata.INVALID_HIERARCHY_OFFSET
		p.Instances[i].Flags = p.Flags
	}

	for in, inst := range c.PerInstanceSMData {
		out := in
		if in < len(c.InstanceReorderTable) {
			out = int(c.InstanceReorderTable[in])
		}
		if out < 0 || out >= count {
			core.LogWarn("reorder table of '%s' maps instance %d to %d, outside %d slots", c.config.Name, in, out, count)
			out = math.Clamp(in, 0, count-1)
		}

		p.Instances[out].LocalToPrimitive = inst.Transform
		if p.PrevLocalToPrimitive != nil {
			p.PrevLocalToPrimitive[out] = c.PerInstancePrevTransform[in]
		}
		if p.CustomData != nil {
			n := c.NumCustomDataFloats
			copy(p.CustomData[out*n:(out+1)*n], c.PerInstanceSMCustomData[in*n:(in+1)*n])
		}
	}
	return p
}

func (p *InstancedStaticMeshSceneProxy) NumInstances() int {
	return len(p.Instances)
}

func (p *InstancedStaticMeshSceneProxy) RenderData() *PerInstanceRenderData {
	return p.renderData
}

/**
 * @brief Fills the random id and uv bias streams from the render store. Runs on
 * the render thread. When the store no longer has the proxy's instance count, or
 * has no CPU copy, the streams stay zero.
 */
func (p *InstancedStaticMeshSceneProxy) CreateRenderThreadResources() {
	data := p.renderData.InstanceBuffer().CPUData()
	if data == nil {
		core.LogWarn("instance store has no CPU access, random ids and uv bias left at zero")
		return
	}
	if data.NumInstances() != len(p.Instances) {
		core.LogWarn("instance count changed since proxy creation (%d != %d), random ids and uv bias left at zero", data.NumInstances(), len(p.Instances))
		return
	}
	for i := range p.Instances {
		p.RandomIDs[i] = data.GetInstanceRandomID(i)
		if p.LightShadowUVBias != nil {
			lm, sm := data.GetInstanceLightMapData(i)
			p.LightShadowUVBias[i] = math.NewVec4(lm.X, lm.Y, sm.X, sm.Y)
		}
	}
}

/**
 * @brief Writes the hierarchy offset of the mesh's Nanite resource into every
 * instance once the streaming manager has registered it.
 * @returns false while the resource is not registered or the mesh has none.
 */
func (p *InstancedStaticMeshSceneProxy) ResolveNaniteHierarchyOffset() bool {
	if p.nanite == nil {
		return false
	}
	offset, ok := p.nanite.HierarchyOffset()
	if !ok {
		return false
	}
	for i := range p.Instances {
		p.Instances[i].NaniteHierarchyOffset = offset
	}
	return true
}

// Release drops the proxy's reference to the render data.
func (p *InstancedStaticMeshSceneProxy) Release() {
	if p.renderData == nil {
		return
	}
	p.renderData.Release()
	p.renderData = nil
}
