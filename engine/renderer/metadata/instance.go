package metadata

import "github.com/spaghettifunk/instancer/engine/math"

/**
 * @brief Bits describing which optional per-instance streams follow the
 * primitive instance array in the GPU scene upload.
 */
type InstanceDataFlags uint32

const (
	INSTANCE_DATA_FLAG_NONE InstanceDataFlags = 0
	/** @brief Previous-frame transforms are present (motion vectors). */
	INSTANCE_DATA_FLAG_HAS_DYNAMIC_DATA InstanceDataFlags = 1 << 0
	/** @brief Per-instance custom floats are present. */
	INSTANCE_DATA_FLAG_HAS_CUSTOM_DATA InstanceDataFlags = 1 << 1
	/** @brief Per-instance random IDs are present. */
	INSTANCE_DATA_FLAG_HAS_RANDOM InstanceDataFlags = 1 << 2
	/** @brief Lightmap and shadowmap UV biases are present. */
	INSTANCE_DATA_FLAG_HAS_LIGHTSHADOW_UV_BIAS InstanceDataFlags = 1 << 3
	/** @brief Per-instance local bounds are present. */
	INSTANCE_DATA_FLAG_HAS_LOCAL_BOUNDS InstanceDataFlags = 1 << 4
)

func (f InstanceDataFlags) Has(flag InstanceDataFlags) bool {
	return f&flag == flag
}

/** @brief Marks a hierarchy offset that has not been resolved by streaming registration yet. */
const INVALID_HIERARCHY_OFFSET uint32 = ^uint32(0)

/**
 * @brief One instance as the GPU scene consumes it.
 */
type PrimitiveInstance struct {
	/** @brief Instance to primitive transform. */
	LocalToPrimitive math.Mat4
	/** @brief Bounds of the mesh in instance space. */
	LocalBounds math.BoxSphereBounds
	/** @brief Offset of the owning resource's hierarchy in the global streaming hierarchy. */
	NaniteHierarchyOffset uint32
	/** @brief Per-instance flag word. */
	Flags InstanceDataFlags
}
