package math

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

/** @brief A quaternion, used to represent rotational orientation. */
type Quaternion Vec4

/**
 * @brief a 4x4 matrix, typically used to represent object transformations.
 * Row-vector convention: a point is transformed as p * M, so the translation
 * lives in elements 12, 13 and 14.
 */
type Mat4 struct {
	/** @brief The matrix elements */
	Data [16]float32
}

/**
 * @brief Represents the extents of a 3d object.
 */
type Extents3D struct {
	/** @brief The minimum extents of the object. */
	Min Vec3
	/** @brief The maximum extents of the object. */
	Max Vec3
}

/**
 * @brief A sphere stored as center + radius, the layout used by the GPU culling code.
 */
type Sphere struct {
	Center Vec3
	W      float32
}

/**
 * @brief Combined box and sphere bounds sharing one origin.
 */
type BoxSphereBounds struct {
	/** @brief The center of both the box and the sphere. */
	Origin Vec3
	/** @brief Half the size of the box along each axis. */
	BoxExtent Vec3
	/** @brief The radius of the bounding sphere. */
	SphereRadius float32
}

/**
 * @brief Represents the transform of an object in the world.
 * NOTE: The properties of this should not be edited directly,
 * but done via the methods in transform.go to ensure proper
 * matrix generation.
 */
type Transform struct {
	/** @brief The position in the world. */
	Position Vec3
	/** @brief The rotation in the world. */
	Rotation Quaternion
	/** @brief The scale in the world. */
	Scale Vec3
	/**
	 * @brief Indicates if the position, rotation or scale have changed,
	 * indicating that the local matrix needs to be recalculated.
	 */
	IsDirty bool
	/**
	 * @brief The local transformation matrix, updated whenever
	 * the position, rotation or scale have changed.
	 */
	Local Mat4
}
