// Package pc defines the point-cloud data model consumed by the
// registration core. Clouds are produced by I/O collaborators and are
// never mutated by the core; alignment produces transforms or new
// clouds.
package pc

import (
	"github.com/scanreg/scanreg/mat"
)

// Vec3RandomAccessor provides positional access to an ordered point
// sequence.
type Vec3RandomAccessor interface {
	Len() int
	Vec3At(i int) mat.Vec3
}

// Vec3Iterator iterates over an ordered point sequence.
type Vec3Iterator interface {
	Incr()
	IsValid() bool
	Vec3() mat.Vec3
}

// PointCloud is an ordered sequence of points with optional intensity
// and unit-normal attributes. Attribute slices are either empty or the
// same length as Points.
type PointCloud struct {
	Points    []mat.Vec3
	Intensity []float32
	Normals   []mat.Vec3
}

func (pp *PointCloud) Len() int {
	return len(pp.Points)
}

func (pp *PointCloud) Vec3At(i int) mat.Vec3 {
	return pp.Points[i]
}

func (pp *PointCloud) HasIntensity() bool {
	return len(pp.Intensity) == len(pp.Points) && len(pp.Points) > 0
}

func (pp *PointCloud) HasNormals() bool {
	return len(pp.Normals) == len(pp.Points) && len(pp.Points) > 0
}

func (pp *PointCloud) NormalAt(i int) mat.Vec3 {
	return pp.Normals[i]
}

func (pp *PointCloud) Vec3Iterator() Vec3Iterator {
	return &sliceIterator{points: pp.Points}
}

type sliceIterator struct {
	points []mat.Vec3
	pos    int
}

func (i *sliceIterator) Incr()         { i.pos++ }
func (i *sliceIterator) IsValid() bool { return i.pos < len(i.points) }
func (i *sliceIterator) Vec3() mat.Vec3 {
	return i.points[i.pos]
}

// Vec3Slice is a bare point slice exposed as a Vec3RandomAccessor.
type Vec3Slice []mat.Vec3

func (s Vec3Slice) Len() int             { return len(s) }
func (s Vec3Slice) Vec3At(i int) mat.Vec3 { return s[i] }

type transformedVec3RandomAccessor struct {
	Vec3RandomAccessor
	trans mat.Mat4
}

func (a *transformedVec3RandomAccessor) Vec3At(i int) mat.Vec3 {
	return a.trans.TransformAffine(a.Vec3RandomAccessor.Vec3At(i))
}

// Transformed returns a read-only view of ra with trans applied to
// every point.
func Transformed(ra Vec3RandomAccessor, trans mat.Mat4) Vec3RandomAccessor {
	return &transformedVec3RandomAccessor{
		Vec3RandomAccessor: ra,
		trans:              trans,
	}
}
