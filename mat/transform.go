package mat

import (
	"math"
)

func Translate(x, y, z float64) Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		x, y, z, 1,
	}
}

func Scale(x, y, z float64) Mat4 {
	return Mat4{
		x, 0, 0, 0,
		0, y, 0, 0,
		0, 0, z, 0,
		0, 0, 0, 1,
	}
}

// Rotate returns the rotation of ang radians around the unit axis
// (x, y, z).
func Rotate(x, y, z, ang float64) Mat4 {
	s, c := math.Sincos(ang)

	return Mat4{
		c + x*x*(1-c), y*x*(1-c) + z*s, z*x*(1-c) - y*s, 0,
		x*y*(1-c) - z*s, c + y*y*(1-c), z*y*(1-c) + x*s, 0,
		x*z*(1-c) + y*s, y*z*(1-c) - x*s, c + z*z*(1-c), 0,
		0, 0, 0, 1,
	}
}

// RotationExp is the exponential map from an axis-angle vector to a
// rotation matrix (Rodrigues' formula). The zero vector maps to
// identity.
func RotationExp(w Vec3) Mat4 {
	ang := w.Norm()
	if ang < 1e-12 {
		return Ident()
	}
	a := w.Mul(1 / ang)
	return Rotate(a[0], a[1], a[2], ang)
}

// RotationLog is the logarithmic map from the rotation block of m to
// an axis-angle vector.
func RotationLog(m Mat4) Vec3 {
	// trace of the 3x3 block
	tr := m[0] + m[5] + m[10]
	c := (tr - 1) / 2
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	ang := math.Acos(c)

	if ang < 1e-9 {
		return Vec3{}
	}
	if math.Pi-ang < 1e-6 {
		// Near pi the off-diagonal differences vanish; recover the
		// axis from the dominant diagonal entry instead.
		var axis Vec3
		switch {
		case m[0] >= m[5] && m[0] >= m[10]:
			axis[0] = math.Sqrt((m[0] + 1) / 2)
			axis[1] = m[4*0+1] / (2 * axis[0])
			axis[2] = m[4*0+2] / (2 * axis[0])
		case m[5] >= m[10]:
			axis[1] = math.Sqrt((m[5] + 1) / 2)
			axis[0] = m[4*1+0] / (2 * axis[1])
			axis[2] = m[4*1+2] / (2 * axis[1])
		default:
			axis[2] = math.Sqrt((m[10] + 1) / 2)
			axis[0] = m[4*2+0] / (2 * axis[2])
			axis[1] = m[4*2+1] / (2 * axis[2])
		}
		return axis.Normalized().Mul(ang)
	}

	f := ang / (2 * math.Sin(ang))
	return Vec3{
		(m[4*1+2] - m[4*2+1]) * f,
		(m[4*2+0] - m[4*0+2]) * f,
		(m[4*0+1] - m[4*1+0]) * f,
	}
}

// PoseLog maps a rigid transform to its 6-parameter form:
// translation plus rotation axis-angle.
func PoseLog(m Mat4) Vec6 {
	return NewVec6(m.Translation(), RotationLog(m))
}

// PoseExp is the inverse of PoseLog.
func PoseExp(v Vec6) Mat4 {
	t := v.Translation()
	m := RotationExp(v.Rotation())
	m[4*3+0] = t[0]
	m[4*3+1] = t[1]
	m[4*3+2] = t[2]
	return m
}
