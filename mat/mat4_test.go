package mat

import (
	"math"
	"testing"
)

func TestMul(t *testing.T) {
	m0 := Translate(0.1, 0.2, 0.3)
	m1 := Scale(1.1, 1.2, 1.3)
	m2 := Rotate(1, 0, 0, 0.1)
	m3 := Rotate(0, 1, 0, 0.1)
	m4 := Rotate(0, 0, 1, 0.1)

	r := m0.MulAffine(m1).MulAffine(m2).MulAffine(m3).MulAffine(m4)
	rNaive := m0.Mul(m1).Mul(m2).Mul(m3).Mul(m4)

	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			a := j*4 + i
			diff := r[a] - rNaive[a]
			if diff < -1e-9 || 1e-9 < diff {
				t.Errorf("m(%d, %d) expected to be %0.6f, got %0.6f",
					i, j, rNaive[a], r[a],
				)
			}
		}
	}
}

func TestInvAffine(t *testing.T) {
	m0 := Translate(0.1, 0.2, 0.3)
	m1 := Scale(1.1, 1.2, 1.3)
	m2 := Rotate(1, 0, 0, 0.5)

	m := m0.MulAffine(m1).MulAffine(m2)
	mi := m.InvAffine()

	diag := m.Mul(mi)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(diag[4*j+i]-want) > 1e-9 {
				t.Errorf("m(%d, %d): %0.6f", i, j, diag[4*j+i])
			}
		}
	}
}

func transformNaive(m Mat4, a Vec3) Vec3 {
	var out Vec3
	in := [4]float64{a[0], a[1], a[2], 1}
	for i := 0; i < 3; i++ {
		var sum float64
		for k := 0; k < 4; k++ {
			sum += m[4*k+i] * in[k]
		}
		out[i] = sum
	}
	return out
}

func TestTransformAffine(t *testing.T) {
	m := Translate(0.1, 0.2, 0.3).
		MulAffine(Rotate(0, 0, 1, 0.3)).
		MulAffine(Rotate(0, 1, 0, -0.2))
	v := NewVec3(1.0, -2.0, 0.5)

	got := m.TransformAffine(v)
	want := transformNaive(m, v)

	for i := 0; i < 3; i++ {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("element %d expected to be %0.6f, got %0.6f", i, want[i], got[i])
		}
	}
}

func TestIsRigid(t *testing.T) {
	testCases := map[string]struct {
		m     Mat4
		rigid bool
	}{
		"Ident":     {Ident(), true},
		"Translate": {Translate(1, 2, 3), true},
		"Rotate":    {Rotate(0, 0, 1, 0.5), true},
		"Composed":  {Translate(1, 2, 3).MulAffine(Rotate(0, 1, 0, 1.2)), true},
		"Scale":     {Scale(1.5, 1, 1), false},
		"Reflect":   {Scale(-1, 1, 1), false},
	}
	for name, tt := range testCases {
		tt := tt
		t.Run(name, func(t *testing.T) {
			if got := tt.m.IsRigid(1e-9); got != tt.rigid {
				t.Errorf("expected IsRigid=%v, got %v", tt.rigid, got)
			}
		})
	}
}

func TestRotationLogExp(t *testing.T) {
	testCases := map[string]Vec3{
		"Zero":     {},
		"SmallZ":   {0, 0, 0.001},
		"AxisX":    {0.5, 0, 0},
		"Mixed":    {0.3, -0.2, 0.8},
		"NearPi":   NewVec3(1, 2, 2).Normalized().Mul(math.Pi - 1e-8),
		"LargeRot": NewVec3(-1, 0.5, 0.2).Normalized().Mul(2.5),
	}
	for name, w := range testCases {
		w := w
		t.Run(name, func(t *testing.T) {
			got := RotationLog(RotationExp(w))
			if got.Sub(w).Norm() > 1e-6 {
				t.Errorf("expected %v, got %v", w, got)
			}
		})
	}
}

func TestPoseLogExp(t *testing.T) {
	m := Translate(0.4, -1.2, 3.0).MulAffine(Rotate(0, 0, 1, 0.7))
	r := PoseExp(PoseLog(m))
	for i := range m {
		if math.Abs(m[i]-r[i]) > 1e-12 {
			t.Errorf("element %d expected to be %0.9f, got %0.9f", i, m[i], r[i])
		}
	}
}
