package math

func NewBoxSphereBounds(origin, extent Vec3, radius float32) BoxSphereBounds {
	return BoxSphereBounds{Origin: origin, BoxExtent: extent, SphereRadius: radius}
}

/**
 * @brief Builds bounds enclosing the given extents. The sphere radius is the
 * half diagonal of the box.
 */
func BoxSphereBoundsFromExtents(e Extents3D) BoxSphereBounds {
	origin := e.Min.Add(e.Max).MulScalar(0.5)
	extent := e.Max.Sub(e.Min).MulScalar(0.5)
	return BoxSphereBounds{Origin: origin, BoxExtent: extent, SphereRadius: extent.Length()}
}

func (b BoxSphereBounds) Sphere() Sphere {
	return Sphere{Center: b.Origin, W: b.SphereRadius}
}

func (b BoxSphereBounds) Extents() Extents3D {
	return Extents3D{Min: b.Origin.Sub(b.BoxExtent), Max: b.Origin.Add(b.BoxExtent)}
}

/**
 * @brief Returns the bounds transformed by m. The box is re-fit around the
 * rotated extents and the radius scales with the largest axis scale.
 */
func (b BoxSphereBounds) TransformBy(m Mat4) BoxSphereBounds {
	d := &m.Data
	origin := b.Origin.Transform(m)
	ex := b.BoxExtent
	extent := Vec3{
		kabs(ex.X*d[0]) + kabs(ex.Y*d[4]) + kabs(ex.Z*d[8]),
		kabs(ex.X*d[1]) + kabs(ex.Y*d[5]) + kabs(ex.Z*d[9]),
		kabs(ex.X*d[2]) + kabs(ex.Y*d[6]) + kabs(ex.Z*d[10]),
	}
	radius := b.SphereRadius * m.MaximumAxisScale()
	if l := extent.Length(); l < radius {
		radius = l
	}
	return BoxSphereBounds{Origin: origin, BoxExtent: extent, SphereRadius: radius}
}

/**
 * @brief Returns the smallest bounds enclosing both b and other.
 */
func (b BoxSphereBounds) Union(other BoxSphereBounds) BoxSphereBounds {
	e0 := b.Extents()
	e1 := other.Extents()
	u := Extents3D{
		Min: Vec3{min(e0.Min.X, e1.Min.X), min(e0.Min.Y, e1.Min.Y), min(e0.Min.Z, e1.Min.Z)},
		Max: Vec3{max(e0.Max.X, e1.Max.X), max(e0.Max.Y, e1.Max.Y), max(e0.Max.Z, e1.Max.Z)},
	}
	out := BoxSphereBoundsFromExtents(u)
	r0 := b.Origin.Sub(out.Origin).Length() + b.SphereRadius
	r1 := other.Origin.Sub(out.Origin).Length() + other.SphereRadius
	out.SphereRadius = min(out.SphereRadius, max(r0, r1))
	return out
}
