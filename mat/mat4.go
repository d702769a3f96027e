package mat

import (
	"math"
)

// Mat4 is a 4x4 matrix in column-major order.
// Element (row i, column j) is stored at index 4*j+i.
type Mat4 [16]float64

func Ident() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

func (m Mat4) Add(a Mat4) Mat4 {
	var out Mat4
	for i := range m {
		out[i] = m[i] + a[i]
	}
	return out
}

func (m Mat4) Mul(a Mat4) Mat4 {
	var out Mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m[4*k+i] * a[4*j+k]
			}
			out[4*j+i] = sum
		}
	}
	return out
}

// MulAffine multiplies two affine matrices, skipping the constant
// bottom row.
func (m Mat4) MulAffine(a Mat4) Mat4 {
	var out Mat4
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += m[4*k+i] * a[4*j+k]
			}
			out[4*j+i] = sum
		}
		out[4*3+i] += m[4*3+i]
	}
	out[15] = 1
	return out
}

func (m Mat4) Transform(a Vec3) Vec3 {
	x := m[4*0+0]*a[0] + m[4*1+0]*a[1] + m[4*2+0]*a[2] + m[4*3+0]
	y := m[4*0+1]*a[0] + m[4*1+1]*a[1] + m[4*2+1]*a[2] + m[4*3+1]
	z := m[4*0+2]*a[0] + m[4*1+2]*a[1] + m[4*2+2]*a[2] + m[4*3+2]
	w := m[4*0+3]*a[0] + m[4*1+3]*a[1] + m[4*2+3]*a[2] + m[4*3+3]
	return Vec3{x / w, y / w, z / w}
}

func (m Mat4) Translation() Vec3 {
	return Vec3{m[4*3+0], m[4*3+1], m[4*3+2]}
}

// Det3 returns the determinant of the upper-left 3x3 block.
func (m Mat4) Det3() float64 {
	return m[0]*(m[5]*m[10]-m[9]*m[6]) -
		m[4]*(m[1]*m[10]-m[9]*m[2]) +
		m[8]*(m[1]*m[6]-m[5]*m[2])
}

// InvAffine inverts an affine matrix. The 3x3 block is inverted by
// cofactors; the matrix must be non-singular.
func (m Mat4) InvAffine() Mat4 {
	d := m.Det3()
	id := 1.0 / d

	var r Mat4
	r[4*0+0] = (m[5]*m[10] - m[9]*m[6]) * id
	r[4*1+0] = (m[8]*m[6] - m[4]*m[10]) * id
	r[4*2+0] = (m[4]*m[9] - m[8]*m[5]) * id
	r[4*0+1] = (m[9]*m[2] - m[1]*m[10]) * id
	r[4*1+1] = (m[0]*m[10] - m[8]*m[2]) * id
	r[4*2+1] = (m[8]*m[1] - m[0]*m[9]) * id
	r[4*0+2] = (m[1]*m[6] - m[5]*m[2]) * id
	r[4*1+2] = (m[4]*m[2] - m[0]*m[6]) * id
	r[4*2+2] = (m[0]*m[5] - m[4]*m[1]) * id

	t := m.Translation()
	ti := r.TransformAffine(t).Mul(-1)
	r[4*3+0] = ti[0]
	r[4*3+1] = ti[1]
	r[4*3+2] = ti[2]
	r[15] = 1
	return r
}

// IsRigid reports whether the rotation block is orthonormal with
// determinant +1 and the bottom row is (0, 0, 0, 1), all within tol.
func (m Mat4) IsRigid(tol float64) bool {
	cols := [3]Vec3{
		{m[0], m[1], m[2]},
		{m[4], m[5], m[6]},
		{m[8], m[9], m[10]},
	}
	for i := 0; i < 3; i++ {
		if math.Abs(cols[i].Norm()-1) > tol {
			return false
		}
		for j := i + 1; j < 3; j++ {
			if math.Abs(cols[i].Dot(cols[j])) > tol {
				return false
			}
		}
	}
	if math.Abs(m.Det3()-1) > tol {
		return false
	}
	return math.Abs(m[3]) <= tol && math.Abs(m[7]) <= tol &&
		math.Abs(m[11]) <= tol && math.Abs(m[15]-1) <= tol
}
