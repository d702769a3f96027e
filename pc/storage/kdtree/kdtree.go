// Package kdtree provides a nearest-neighbor acceleration structure
// over a fixed target point set. The tree is built once per target and
// is read-only afterwards, so concurrent queries are safe.
package kdtree

import (
	"math"
	"sort"

	"github.com/scanreg/scanreg/mat"
	"github.com/scanreg/scanreg/pc"
)

type node struct {
	index       int
	axis        int
	left, right *node
}

// KDTree is a balanced binary spatial partition of the accessor's
// points, split at the median along the widest axis of each subset.
type KDTree struct {
	ra     pc.Vec3RandomAccessor
	root   *node
	linear []int
}

// New builds a KDTree over ra in O(n log n). Inputs with fewer than
// two points degrade to a linear scan.
func New(ra pc.Vec3RandomAccessor) *KDTree {
	n := ra.Len()
	t := &KDTree{ra: ra}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	if n < 2 {
		t.linear = indices
		return t
	}
	t.root = t.build(indices)
	return t
}

func (t *KDTree) build(indices []int) *node {
	if len(indices) == 0 {
		return nil
	}
	axis := t.widestAxis(indices)
	sort.Slice(indices, func(a, b int) bool {
		return t.ra.Vec3At(indices[a])[axis] < t.ra.Vec3At(indices[b])[axis]
	})
	mid := len(indices) / 2
	return &node{
		index: indices[mid],
		axis:  axis,
		left:  t.build(indices[:mid]),
		right: t.build(indices[mid+1:]),
	}
}

func (t *KDTree) widestAxis(indices []int) int {
	min := t.ra.Vec3At(indices[0])
	max := min
	for _, i := range indices[1:] {
		v := t.ra.Vec3At(i)
		for j := range v {
			if v[j] < min[j] {
				min[j] = v[j]
			}
			if v[j] > max[j] {
				max[j] = v[j]
			}
		}
	}
	axis := 0
	width := max[0] - min[0]
	for j := 1; j < 3; j++ {
		if w := max[j] - min[j]; w > width {
			axis, width = j, w
		}
	}
	return axis
}

// Nearest returns the index of the point closest to q and its
// Euclidean distance. ok is false if the tree is empty.
func (t *KDTree) Nearest(q mat.Vec3) (index int, dist float64, ok bool) {
	best := -1
	bestSq := math.Inf(1)

	if t.root == nil {
		for _, i := range t.linear {
			if d := q.Sub(t.ra.Vec3At(i)).NormSq(); d < bestSq {
				best, bestSq = i, d
			}
		}
	} else {
		t.search(t.root, q, &best, &bestSq)
	}
	if best < 0 {
		return 0, 0, false
	}
	return best, math.Sqrt(bestSq), true
}

func (t *KDTree) search(n *node, q mat.Vec3, best *int, bestSq *float64) {
	if n == nil {
		return
	}
	if d := q.Sub(t.ra.Vec3At(n.index)).NormSq(); d < *bestSq {
		*best, *bestSq = n.index, d
	}
	delta := q[n.axis] - t.ra.Vec3At(n.index)[n.axis]
	near, far := n.left, n.right
	if delta > 0 {
		near, far = n.right, n.left
	}
	t.search(near, q, best, bestSq)
	if delta*delta < *bestSq {
		t.search(far, q, best, bestSq)
	}
}
