package registration

import (
	"fmt"

	gmat "gonum.org/v1/gonum/mat"

	"github.com/scanreg/scanreg/mat"
	"github.com/scanreg/scanreg/pc"
)

// collinearityRatio is the minimum ratio between the second and first
// singular value of the cross-covariance matrix. Below it the
// correspondence set is (numerically) collinear and the rotation is
// underdetermined.
const collinearityRatio = 1e-9

// SolvePointToPoint computes the rigid transform minimizing the sum of
// squared distances between corresponding points: both sets are
// centered on their centroids, the 3x3 cross-covariance is decomposed
// by SVD, and R = V*U^T with a sign correction keeping det(R) = +1.
func SolvePointToPoint(src, tgt pc.Vec3RandomAccessor, corrs []Correspondence) (mat.Mat4, error) {
	if len(corrs) < minFilteredPairs {
		return mat.Ident(), fmt.Errorf("%w: got %d pairs", ErrInsufficientCorrespondences, len(corrs))
	}

	var cs, ct mat.Vec3
	for _, c := range corrs {
		cs = cs.Add(src.Vec3At(c.SourceIndex))
		ct = ct.Add(tgt.Vec3At(c.TargetIndex))
	}
	n := float64(len(corrs))
	cs = cs.Mul(1 / n)
	ct = ct.Mul(1 / n)

	h := gmat.NewDense(3, 3, nil)
	for _, c := range corrs {
		s := src.Vec3At(c.SourceIndex).Sub(cs)
		t := tgt.Vec3At(c.TargetIndex).Sub(ct)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				h.Set(i, j, h.At(i, j)+s[i]*t[j])
			}
		}
	}

	var svd gmat.SVD
	if ok := svd.Factorize(h, gmat.SVDFull); !ok {
		return mat.Ident(), fmt.Errorf("%w: covariance SVD failed", ErrInsufficientCorrespondences)
	}
	sv := svd.Values(nil)
	if sv[1] <= sv[0]*collinearityRatio {
		return mat.Ident(), fmt.Errorf("%w: correspondences are collinear", ErrInsufficientCorrespondences)
	}

	var u, v gmat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r gmat.Dense
	r.Mul(&v, u.T())
	if gmat.Det(&r) < 0 {
		// reflection: negate the last singular vector
		for i := 0; i < 3; i++ {
			v.Set(i, 2, -v.At(i, 2))
		}
		r.Mul(&v, u.T())
	}

	out := rigidFromDense(&r, mat.Vec3{})
	rt := out.TransformAffine(cs)
	out[4*3+0] = ct[0] - rt[0]
	out[4*3+1] = ct[1] - rt[1]
	out[4*3+2] = ct[2] - rt[2]
	return out, nil
}

// SolvePointToPlane computes the rigid transform minimizing the sum of
// squared point-to-plane distances, linearizing the rotation with a
// small-angle approximation and solving the 6-parameter least-squares
// system. The target cloud must carry unit normals.
func SolvePointToPlane(src pc.Vec3RandomAccessor, tgt *pc.PointCloud, corrs []Correspondence) (mat.Mat4, error) {
	if !tgt.HasNormals() {
		return mat.Ident(), ErrMissingNormals
	}
	if len(corrs) < minFilteredPairs {
		return mat.Ident(), fmt.Errorf("%w: got %d pairs", ErrInsufficientCorrespondences, len(corrs))
	}

	a := gmat.NewDense(len(corrs), 6, nil)
	b := gmat.NewVecDense(len(corrs), nil)
	for i, c := range corrs {
		s := src.Vec3At(c.SourceIndex)
		q := tgt.Vec3At(c.TargetIndex)
		nrm := tgt.NormalAt(c.TargetIndex)
		sxn := s.Cross(nrm)

		a.Set(i, 0, sxn[0])
		a.Set(i, 1, sxn[1])
		a.Set(i, 2, sxn[2])
		a.Set(i, 3, nrm[0])
		a.Set(i, 4, nrm[1])
		a.Set(i, 5, nrm[2])
		b.SetVec(i, nrm.Dot(q.Sub(s)))
	}

	var x gmat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return mat.Ident(), fmt.Errorf("%w: %v", ErrInsufficientCorrespondences, err)
	}

	w := mat.NewVec3(x.AtVec(0), x.AtVec(1), x.AtVec(2))
	t := mat.NewVec3(x.AtVec(3), x.AtVec(4), x.AtVec(5))
	return mat.PoseExp(mat.NewVec6(t, w)), nil
}

// rigidFromDense assembles a Mat4 from a row-major 3x3 gonum rotation
// and a translation.
func rigidFromDense(r *gmat.Dense, t mat.Vec3) mat.Mat4 {
	var out mat.Mat4
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[4*j+i] = r.At(i, j)
		}
	}
	out[4*3+0] = t[0]
	out[4*3+1] = t[1]
	out[4*3+2] = t[2]
	out[15] = 1
	return out
}
