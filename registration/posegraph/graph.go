// Package posegraph implements global refinement of scan poses: a
// graph of scan poses constrained by pairwise relative-transform
// measurements, and a Levenberg-Marquardt optimizer distributing
// accumulated registration error over the graph.
package posegraph

import (
	"fmt"

	"github.com/scanreg/scanreg/mat"
)

// Node is one scan pose. Index is the stable position of the node in
// the graph's node sequence.
type Node struct {
	ScanID string
	Pose   mat.Mat4
	Index  int
}

// Edge is one relative-transform measurement between two nodes. The
// edge is directed From -> To but constrains both poses symmetrically.
// InfoWeight is the measurement confidence, typically the inverse of
// the source registration's RMS error.
type Edge struct {
	From     int
	To       int
	Measured mat.Mat4
	Weight   float64
}

// Graph is a pose graph. It may be disconnected; the optimizer anchors
// each connected component independently.
type Graph struct {
	Nodes []Node
	Edges []Edge
}

// AddNode appends a node and returns its index.
func (g *Graph) AddNode(scanID string, pose mat.Mat4) int {
	idx := len(g.Nodes)
	g.Nodes = append(g.Nodes, Node{ScanID: scanID, Pose: pose, Index: idx})
	return idx
}

// AddEdge appends a measurement between two existing nodes.
func (g *Graph) AddEdge(from, to int, measured mat.Mat4, weight float64) error {
	if from < 0 || from >= len(g.Nodes) || to < 0 || to >= len(g.Nodes) {
		return fmt.Errorf("edge references unknown node: %d -> %d (have %d nodes)",
			from, to, len(g.Nodes))
	}
	if weight <= 0 {
		return fmt.Errorf("edge weight must be positive, got %g", weight)
	}
	g.Edges = append(g.Edges, Edge{From: from, To: to, Measured: measured, Weight: weight})
	return nil
}

// Clone deep-copies the graph.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	copy(out.Nodes, g.Nodes)
	copy(out.Edges, g.Edges)
	return out
}

// Residuals returns, for every edge, the unweighted 6-vector mismatch
// (translation difference, rotation log difference) between the
// measured relative transform and the one implied by the current node
// poses.
func (g *Graph) Residuals() []mat.Vec6 {
	out := make([]mat.Vec6, len(g.Edges))
	for i, e := range g.Edges {
		implied := g.Nodes[e.To].Pose.InvAffine().MulAffine(g.Nodes[e.From].Pose)
		out[i] = mat.NewVec6(
			implied.Translation().Sub(e.Measured.Translation()),
			mat.RotationLog(implied.MulAffine(e.Measured.InvAffine())),
		)
	}
	return out
}

// Components returns the connected components of the graph as sorted
// node-index lists. Nodes without edges form singleton components.
func (g *Graph) Components() [][]int {
	parent := make([]int, len(g.Nodes))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for _, e := range g.Edges {
		a, b := find(e.From), find(e.To)
		if a != b {
			parent[b] = a
		}
	}

	groups := map[int][]int{}
	for i := range g.Nodes {
		r := find(i)
		groups[r] = append(groups[r], i)
	}
	var out [][]int
	for i := range g.Nodes {
		if find(i) == i {
			out = append(out, groups[i])
		}
	}
	return out
}
