package posegraph

import (
	"github.com/scanreg/scanreg/mat"
)

// minRMSError floors the RMS error used for edge weighting so a
// perfect (zero-error) registration does not divide by zero.
const minRMSError = 1e-9

// Builder assembles a pose graph from accepted pairwise registration
// results. Scan IDs are interned as nodes on first sight; repeated
// registrations of the same pair are kept as independent measurements.
type Builder struct {
	graph *Graph
	byID  map[string]int
}

func NewBuilder() *Builder {
	return &Builder{
		graph: &Graph{},
		byID:  map[string]int{},
	}
}

// SetPose sets the initial pose of a scan's node, creating the node if
// needed. Results added later reuse the same node.
func (b *Builder) SetPose(scanID string, pose mat.Mat4) {
	idx := b.node(scanID)
	b.graph.Nodes[idx].Pose = pose
}

// Add records one accepted pairwise result: transform maps the source
// scan's frame onto the target scan's frame with the given RMS error.
func (b *Builder) Add(sourceID, targetID string, transform mat.Mat4, rmsError float64) {
	from := b.node(sourceID)
	to := b.node(targetID)

	rms := rmsError
	if rms < minRMSError {
		rms = minRMSError
	}
	// ignoring the error: both endpoints were just interned
	_ = b.graph.AddEdge(from, to, transform, 1/rms)
}

func (b *Builder) node(scanID string) int {
	if idx, ok := b.byID[scanID]; ok {
		return idx
	}
	idx := b.graph.AddNode(scanID, mat.Ident())
	b.byID[scanID] = idx
	return idx
}

// Build returns the assembled graph. The builder must not be reused
// afterwards.
func (b *Builder) Build() *Graph {
	return b.graph
}
