package mat

import (
	"math"
)

// Vec6 packs a translation increment (elements 0-2) and a rotation
// increment in axis-angle form (elements 3-5).
type Vec6 [6]float64

func (v Vec6) Mul(a float64) Vec6 {
	var out Vec6
	for i := range v {
		out[i] = v[i] * a
	}
	return out
}

func (v Vec6) NormSq() float64 {
	var sum float64
	for _, e := range v {
		sum += e * e
	}
	return sum
}

func (v Vec6) Norm() float64 {
	return math.Sqrt(v.NormSq())
}

func (v Vec6) Translation() Vec3 {
	return Vec3{v[0], v[1], v[2]}
}

func (v Vec6) Rotation() Vec3 {
	return Vec3{v[3], v[4], v[5]}
}

func NewVec6(t, r Vec3) Vec6 {
	return Vec6{t[0], t[1], t[2], r[0], r[1], r[2]}
}
