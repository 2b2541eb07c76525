package geometry

import "math"

// Vector is a 3D vector in base units.
type Vector struct {
	X float64
	Y float64
	Z float64
}

// Matrix is a 3x3 rotation matrix, row major.
type Matrix [3][3]float64

// Identity returns the identity rotation.
func Identity() Matrix {
	return Matrix{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
}

// FromXYZAngles composes a rotation from angles about the fixed x, y and z
// axes, applied in that order: R = Rz(tz) * Ry(ty) * Rx(tx). Angles are in
// radians.
func FromXYZAngles(tx, ty, tz float64) Matrix {
	sx, cx := math.Sincos(tx)
	sy, cy := math.Sincos(ty)
	sz, cz := math.Sincos(tz)

	return Matrix{
		{cz * cy, cz*sy*sx - sz*cx, cz*sy*cx + sz*sx},
		{sz * cy, sz*sy*sx + cz*cx, sz*sy*cx - cz*sx},
		{-sy, cy * sx, cy * cx},
	}
}

// Mul returns m * o.
func (m Matrix) Mul(o Matrix) Matrix {
	var r Matrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				r[i][j] += m[i][k] * o[k][j]
			}
		}
	}
	return r
}

// Apply rotates a vector.
func (m Matrix) Apply(v Vector) Vector {
	return Vector{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Angles decomposes the rotation into angles about the fixed x, y and z axes
// such that FromXYZAngles(tx, ty, tz) reproduces the matrix. The closed form
// follows the usual convention:
//
//	tx = atan2(r21, r22)
//	ty = atan2(-r20, sqrt(r21^2 + r22^2))
//	tz = atan2(r10, r00)
//
// At the gimbal-lock points (|ty| = pi/2) tz is taken as zero and tx absorbs
// the remaining rotation.
func (m Matrix) Angles() (tx, ty, tz float64) {
	ty = math.Atan2(-m[2][0], math.Hypot(m[2][1], m[2][2]))

	if math.Abs(m[2][1]) < 1e-15 && math.Abs(m[2][2]) < 1e-15 {
		// cos(ty) == 0: only the sum (or difference) of tx and tz is
		// determined. Fold it all into tx.
		if m[2][0] < 0 { // ty = +pi/2
			tx = math.Atan2(m[0][1], m[0][2])
		} else { // ty = -pi/2
			tx = math.Atan2(-m[0][1], -m[0][2])
		}
		return tx, ty, 0
	}

	tx = math.Atan2(m[2][1], m[2][2])
	tz = math.Atan2(m[1][0], m[0][0])
	return tx, ty, tz
}
