package posegraph

import (
	"fmt"
	"math"

	gmat "gonum.org/v1/gonum/mat"

	"github.com/scanreg/scanreg/mat"
)

// OptimizeParams configures the Levenberg-Marquardt refinement.
type OptimizeParams struct {
	MaxIterations int
	// ConvergenceThreshold stops the loop once the total squared
	// error improvement of an accepted step falls below it.
	ConvergenceThreshold float64
	// FixFirstPose anchors the lowest-index node of every connected
	// component, removing the per-component gauge freedom.
	FixFirstPose bool
}

func DefaultOptimizeParams() OptimizeParams {
	return OptimizeParams{
		MaxIterations:        100,
		ConvergenceThreshold: 1e-10,
		FixFirstPose:         true,
	}
}

// OptimizeResult summarizes one optimization run.
type OptimizeResult struct {
	Converged    bool
	Iterations   int
	InitialError float64
	FinalError   float64
}

const (
	lambdaInit = 1e-4
	lambdaMax  = 1e12
	jacobianH  = 1e-7
)

// Optimize jointly refines all node poses to minimize the total
// weighted edge residual. The input graph is not modified; the refined
// copy is returned. Disconnected components are optimized together but
// anchored independently; nodes without edges keep their prior pose.
func Optimize(g *Graph, params OptimizeParams) (*Graph, OptimizeResult, error) {
	out := g.Clone()
	for _, e := range out.Edges {
		if e.From < 0 || e.From >= len(out.Nodes) || e.To < 0 || e.To >= len(out.Nodes) {
			return nil, OptimizeResult{}, fmt.Errorf(
				"edge references unknown node: %d -> %d", e.From, e.To)
		}
	}

	free := freeNodes(out, params.FixFirstPose)
	p := newProblem(out, free)

	x := p.initialState()
	r := p.residuals(x)
	errSq := dot(r, r)
	res := OptimizeResult{InitialError: errSq, FinalError: errSq}

	if len(x) == 0 || len(out.Edges) == 0 {
		// nothing to refine: fully anchored or unconstrained
		res.Converged = true
		return out, res, nil
	}

	lambda := lambdaInit
	maxIter := params.MaxIterations
	if maxIter <= 0 {
		maxIter = 1
	}

	for iter := 0; iter < maxIter; iter++ {
		res.Iterations = iter + 1

		j := p.jacobian(x, r)

		var jtj, jtr gmat.Dense
		jtj.Mul(j.T(), j)
		rVec := gmat.NewVecDense(len(r), r)
		jtr.Mul(j.T(), rVec)

		accepted := false
		for ; lambda <= lambdaMax; lambda *= 10 {
			a := gmat.DenseCopyOf(&jtj)
			for i := 0; i < len(x); i++ {
				a.Set(i, i, a.At(i, i)+lambda)
			}

			var delta gmat.VecDense
			if err := delta.SolveVec(a, jtr.ColView(0)); err != nil {
				// singular block even with damping: push lambda up
				continue
			}

			xNew := make([]float64, len(x))
			for i := range x {
				xNew[i] = x[i] - delta.AtVec(i)
			}
			rNew := p.residuals(xNew)
			errNew := dot(rNew, rNew)
			if errNew < errSq {
				improvement := errSq - errNew
				x, r, errSq = xNew, rNew, errNew
				lambda /= 10
				if lambda < 1e-12 {
					lambda = 1e-12
				}
				accepted = true
				if improvement < params.ConvergenceThreshold {
					res.Converged = true
				}
				break
			}
		}
		if !accepted {
			// no damping value improves the error: local minimum
			res.Converged = true
			break
		}
		if res.Converged {
			break
		}
	}

	p.applyState(x)
	res.FinalError = errSq
	return out, res, nil
}

// freeNodes returns the indices of nodes participating in the state
// vector: nodes with at least one edge, minus one anchor per connected
// component when anchoring is enabled.
func freeNodes(g *Graph, anchor bool) []int {
	hasEdge := make([]bool, len(g.Nodes))
	for _, e := range g.Edges {
		hasEdge[e.From] = true
		hasEdge[e.To] = true
	}

	var free []int
	for _, comp := range g.Components() {
		if len(comp) == 1 && !hasEdge[comp[0]] {
			continue // isolated node: nothing to refine
		}
		for i, idx := range comp {
			if anchor && i == 0 {
				continue // component anchor holds its initial pose
			}
			free = append(free, idx)
		}
	}
	return free
}

type problem struct {
	graph  *Graph
	free   []int
	offset map[int]int // node index -> state offset
}

func newProblem(g *Graph, free []int) *problem {
	offset := make(map[int]int, len(free))
	for i, idx := range free {
		offset[idx] = i * 6
	}
	return &problem{graph: g, free: free, offset: offset}
}

func (p *problem) initialState() []float64 {
	x := make([]float64, 6*len(p.free))
	for i, idx := range p.free {
		v := mat.PoseLog(p.graph.Nodes[idx].Pose)
		copy(x[i*6:], v[:])
	}
	return x
}

func (p *problem) applyState(x []float64) {
	for i, idx := range p.free {
		var v mat.Vec6
		copy(v[:], x[i*6:])
		p.graph.Nodes[idx].Pose = mat.PoseExp(v)
	}
}

func (p *problem) pose(x []float64, node int) mat.Mat4 {
	off, ok := p.offset[node]
	if !ok {
		return p.graph.Nodes[node].Pose
	}
	var v mat.Vec6
	copy(v[:], x[off:])
	return mat.PoseExp(v)
}

// residuals stacks, per edge, the 6-vector mismatch between the
// measured relative transform and the one implied by the current
// poses, scaled by the square root of the edge weight.
func (p *problem) residuals(x []float64) []float64 {
	r := make([]float64, 6*len(p.graph.Edges))
	for i, e := range p.graph.Edges {
		implied := p.pose(x, e.To).InvAffine().MulAffine(p.pose(x, e.From))
		dt := implied.Translation().Sub(e.Measured.Translation())
		dr := mat.RotationLog(implied.MulAffine(e.Measured.InvAffine()))

		v := mat.NewVec6(dt, dr).Mul(math.Sqrt(e.Weight))
		copy(r[i*6:], v[:])
	}
	return r
}

// jacobian computes the residual Jacobian by forward differences.
// Only the residuals of edges touching the perturbed node change, but
// graphs are small enough that recomputing the full vector is fine.
func (p *problem) jacobian(x, r0 []float64) *gmat.Dense {
	j := gmat.NewDense(len(r0), len(x), nil)
	xp := make([]float64, len(x))
	copy(xp, x)
	for c := range x {
		h := jacobianH * math.Max(1, math.Abs(x[c]))
		xp[c] = x[c] + h
		r := p.residuals(xp)
		xp[c] = x[c]
		for i := range r {
			j.Set(i, c, (r[i]-r0[i])/h)
		}
	}
	return j
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
