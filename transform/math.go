package transform

import "math"

// This file's affine math (Vec3/Quat/Mat4) is stdlib-only: no example in
// the corpus imports a 3D math library (gonum is numerical-general
// purpose, not affine/quaternion math, and appears only as an indirect
// dependency of unrelated large repos), so a small hand-rolled
// implementation scoped to exactly what spec.md §4.6 composes
// (translation, rotation, scale, an explicit 3x3 matrix, and inversion)
// is the grounded choice here.

// Vec3 is a 3-component vector.
type Vec3 struct{ X, Y, Z float64 }

// Quat is a unit quaternion (W, X, Y, Z).
type Quat struct{ W, X, Y, Z float64 }

// QuatFromAxisAngle builds a quaternion from an axis (need not be unit
// length) and an angle in radians.
func QuatFromAxisAngle(axis Vec3, angleRadians float64) Quat {
	n := math.Sqrt(axis.X*axis.X + axis.Y*axis.Y + axis.Z*axis.Z)
	if n == 0 {
		return Quat{W: 1}
	}
	half := angleRadians / 2
	s := math.Sin(half) / n
	return Quat{W: math.Cos(half), X: axis.X * s, Y: axis.Y * s, Z: axis.Z * s}
}

// Mat3 returns the 3x3 rotation matrix represented by q (row-major).
func (q Quat) Mat3() [9]float64 {
	x, y, z, w := q.X, q.Y, q.Z, q.W
	x2, y2, z2 := x+x, y+y, z+z
	xx, xy, xz := x*x2, x*y2, x*z2
	yy, yz, zz := y*y2, y*z2, z*z2
	wx, wy, wz := w*x2, w*y2, w*z2
	return [9]float64{
		1 - (yy + zz), xy - wz, xz + wy,
		xy + wz, 1 - (xx + zz), yz - wx,
		xz - wy, yz + wx, 1 - (xx + yy),
	}
}

// Mat4 is a row-major 4x4 affine transform.
type Mat4 [16]float64

func Mat4Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Mat4FromMat3Translation builds an affine transform from a 3x3 linear
// part (rotation composed with scale) and a translation.
func Mat4FromMat3Translation(m [9]float64, t Vec3) Mat4 {
	return Mat4{
		m[0], m[1], m[2], t.X,
		m[3], m[4], m[5], t.Y,
		m[6], m[7], m[8], t.Z,
		0, 0, 0, 1,
	}
}

// Mul returns a*b (applying b first, then a).
func (a Mat4) Mul(b Mat4) Mat4 {
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += a[r*4+k] * b[k*4+c]
			}
			out[r*4+c] = sum
		}
	}
	return out
}

// Scale3x3 returns the diagonal 3x3 scale matrix for a non-uniform
// per-axis scale.
func Scale3x3(s Vec3) [9]float64 {
	return [9]float64{s.X, 0, 0, 0, s.Y, 0, 0, 0, s.Z}
}

// MulMat3 multiplies two 3x3 matrices, a*b.
func MulMat3(a, b [9]float64) [9]float64 {
	var out [9]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += a[r*3+k] * b[k*3+c]
			}
			out[r*3+c] = sum
		}
	}
	return out
}

// Invert returns the inverse of m and true, or the zero Mat4 and false if
// m's upper-left 3x3 is singular — spec.md §4.6's "apply
// TransformRelation::ChildFromParent by inversion if the 3x3 is
// invertible". Only the upper-left 3x3 is checked/inverted; for an
// affine transform T(v) = R*v + t, the inverse is R^-1(v - t).
func (m Mat4) Invert() (Mat4, bool) {
	a, b, c := m[0], m[1], m[2]
	d, e, f := m[4], m[5], m[6]
	g, h, i := m[8], m[9], m[10]

	det := a*(e*i-f*h) - b*(d*i-f*g) + c*(d*h-e*g)
	if math.Abs(det) < 1e-12 {
		return Mat4{}, false
	}
	invDet := 1 / det

	r := [9]float64{
		(e*i - f*h) * invDet, (c*h - b*i) * invDet, (b*f - c*e) * invDet,
		(f*g - d*i) * invDet, (a*i - c*g) * invDet, (c*d - a*f) * invDet,
		(d*h - e*g) * invDet, (b*g - a*h) * invDet, (a*e - b*d) * invDet,
	}

	t := Vec3{X: m[3], Y: m[7], Z: m[11]}
	// R^-1 * (-t)
	nt := Vec3{
		X: -(r[0]*t.X + r[1]*t.Y + r[2]*t.Z),
		Y: -(r[3]*t.X + r[4]*t.Y + r[5]*t.Z),
		Z: -(r[6]*t.X + r[7]*t.Y + r[8]*t.Z),
	}
	return Mat4FromMat3Translation(r, nt), true
}
