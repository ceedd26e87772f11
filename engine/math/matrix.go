package math

/**
 * @brief Creates and returns an identity matrix.
 */
func NewMat4Identity() Mat4 {
	out := Mat4{}
	out.Data[0] = 1.0
	out.Data[5] = 1.0
	out.Data[10] = 1.0
	out.Data[15] = 1.0
	return out
}

/**
 * @brief Returns the result of multiplying mt and other. With the row-vector
 * convention a.Mul(b) applies a first, then b.
 */
func (mt Mat4) Mul(other Mat4) Mat4 {
	out := Mat4{}
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			sum := float32(0)
			for i := 0; i < 4; i++ {
				sum += mt.Data[row*4+i] * other.Data[i*4+col]
			}
			out.Data[row*4+col] = sum
		}
	}
	return out
}

/**
 * @brief Creates and returns a translation matrix from the given position.
 */
func NewMat4Translation(position Vec3) Mat4 {
	out := NewMat4Identity()
	out.Data[12] = position.X
	out.Data[13] = position.Y
	out.Data[14] = position.Z
	return out
}

/**
 * @brief Returns a scale matrix using the provided scale.
 */
func NewMat4Scale(scale Vec3) Mat4 {
	out := NewMat4Identity()
	out.Data[0] = scale.X
	out.Data[5] = scale.Y
	out.Data[10] = scale.Z
	return out
}

/**
 * @brief Creates a rotation matrix around the z axis.
 */
func NewMat4EulerZ(angleRadians float32) Mat4 {
	out := NewMat4Identity()
	c := kcos(angleRadians)
	s := ksin(angleRadians)
	out.Data[0] = c
	out.Data[1] = s
	out.Data[4] = -s
	out.Data[5] = c
	return out
}

/**
 * @brief Returns the translation part of the matrix.
 */
func (mt Mat4) Origin() Vec3 {
	return Vec3{mt.Data[12], mt.Data[13], mt.Data[14]}
}

/**
 * @brief Returns a copy of the matrix with the translation replaced.
 */
func (mt Mat4) WithOrigin(origin Vec3) Mat4 {
	mt.Data[12] = origin.X
	mt.Data[13] = origin.Y
	mt.Data[14] = origin.Z
	return mt
}

/**
 * @brief Returns row i (0..3) as a vec4.
 */
func (mt Mat4) Row(i int) Vec4 {
	return Vec4{mt.Data[i*4], mt.Data[i*4+1], mt.Data[i*4+2], mt.Data[i*4+3]}
}

/**
 * @brief Returns the largest scale applied along any of the three basis axes.
 */
func (mt Mat4) MaximumAxisScale() float32 {
	maxSq := float32(0)
	for i := 0; i < 3; i++ {
		r := Vec3{mt.Data[i*4], mt.Data[i*4+1], mt.Data[i*4+2]}
		if l := r.LengthSquared(); l > maxSq {
			maxSq = l
		}
	}
	return ksqrt(maxSq)
}

/**
 * @brief True when the upper 3x3 is all zero, the sentinel for a hidden instance.
 */
func (mt Mat4) IsZeroScale() bool {
	for i := 0; i < 3; i++ {
		if mt.Data[i*4] != 0 || mt.Data[i*4+1] != 0 || mt.Data[i*4+2] != 0 {
			return false
		}
	}
	return true
}

/**
 * @brief Compares all elements of mt and other within tolerance.
 */
func (mt Mat4) Compare(other Mat4, tolerance float32) bool {
	for i := range mt.Data {
		if kabs(mt.Data[i]-other.Data[i]) > tolerance {
			return false
		}
	}
	return true
}
