// Package icp implements iterative-closest-point refinement of a
// rigid alignment between two point clouds.
package icp

import (
	"context"
	"errors"
	"math"

	"github.com/scanreg/scanreg/mat"
	"github.com/scanreg/scanreg/pc"
	"github.com/scanreg/scanreg/pc/storage/kdtree"
	"github.com/scanreg/scanreg/registration"
)

// Variant selects the per-iteration error metric and solver.
type Variant int

const (
	PointToPoint Variant = iota
	PointToPlane
)

func (v Variant) String() string {
	switch v {
	case PointToPoint:
		return "point_to_point"
	case PointToPlane:
		return "point_to_plane"
	}
	return "unknown"
}

// Status is the terminal state of an alignment run.
type Status int

const (
	StatusFailed Status = iota
	StatusConverged
	StatusMaxIterations
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusConverged:
		return "converged"
	case StatusMaxIterations:
		return "max_iterations"
	case StatusCancelled:
		return "cancelled"
	}
	return "failed"
}

// Params configures an alignment run.
type Params struct {
	// MaxIterations bounds the outer loop.
	MaxIterations int
	// ConvergenceThreshold stops the loop once the RMS error change
	// between consecutive iterations falls below it.
	ConvergenceThreshold float64
	// OutlierRejection prunes correspondences beyond mean + 2*stddev
	// of the per-pair distances.
	OutlierRejection bool
	// Variant selects point-to-point or point-to-plane estimation.
	Variant Variant
	// Workers caps the parallelism of the correspondence search.
	// Zero means one goroutine per available CPU.
	Workers int
}

func DefaultParams() Params {
	return Params{
		MaxIterations:        50,
		ConvergenceThreshold: 1e-8,
		OutlierRejection:     true,
		Variant:              PointToPoint,
	}
}

// Progress reports the state of a completed iteration.
type Progress struct {
	Iteration int
	RMS       float64
}

// Result is the outcome of an alignment run. On cancellation it holds
// the transform accumulated so far; RMSError is zero if no iteration
// completed before the cancellation.
type Result struct {
	Transform  mat.Mat4
	RMSError   float64
	Iterations int
	Converged  bool
	Status     Status
}

// Engine runs the ICP loop: correspond, filter, solve, compose,
// check convergence. A fresh spatial index is built per Compute call;
// independent runs share no mutable state.
type Engine struct {
	Params Params
	// Progress, if set, is called once after every completed
	// iteration with a monotonically increasing iteration index.
	Progress func(Progress)
}

// Compute refines initial so that source aligns onto target.
// Cancellation is cooperative: ctx is checked at the top of every
// iteration, and a cancelled run returns the best transform found so
// far with Status = StatusCancelled, not an error.
func (e *Engine) Compute(ctx context.Context, source pc.Vec3RandomAccessor, target *pc.PointCloud, initial mat.Mat4) (Result, error) {
	failed := func(err error) (Result, error) {
		return Result{Transform: initial, Status: StatusFailed}, err
	}
	if source.Len() == 0 {
		return failed(registration.ErrEmptySource)
	}
	if target.Len() == 0 {
		return failed(registration.ErrEmptyTarget)
	}
	if e.Params.Variant == PointToPlane && !target.HasNormals() {
		return failed(registration.ErrMissingNormals)
	}

	// The target never moves within one run: index it once.
	kdt := kdtree.New(target)

	accum := initial
	prevRMS := math.Inf(1)
	lastRMS := math.Inf(1)

	maxIter := e.Params.MaxIterations
	if maxIter <= 0 {
		maxIter = 1
	}

	for iter := 0; iter < maxIter; iter++ {
		if ctx.Err() != nil {
			if iter == 0 {
				lastRMS = 0
			}
			return Result{
				Transform:  accum,
				RMSError:   lastRMS,
				Iterations: iter,
				Status:     StatusCancelled,
			}, nil
		}

		moving := pc.Transformed(source, accum)
		corrs := e.correspond(moving, kdt)
		if e.Params.OutlierRejection {
			corrs = registration.RejectOutliers(corrs)
		}
		if iter == 0 {
			// baseline: RMS under the initial guess, so a run that
			// starts at the optimum converges on its first iteration
			prevRMS = e.rms(moving, target, corrs)
		}

		delta, err := e.solve(moving, target, corrs)
		if err != nil {
			if iter == 0 {
				return Result{Transform: initial, Status: StatusFailed},
					errors.Join(registration.ErrInsufficientOverlap, err)
			}
			// failed-to-improve step: keep the previous accumulated
			// transform and try again with fresh correspondences
			continue
		}
		accum = delta.MulAffine(accum)

		rms := e.rms(pc.Transformed(source, accum), target, corrs)
		lastRMS = rms

		if e.Progress != nil {
			e.Progress(Progress{Iteration: iter, RMS: rms})
		}

		if math.Abs(prevRMS-rms) < e.Params.ConvergenceThreshold {
			return Result{
				Transform:  accum,
				RMSError:   rms,
				Iterations: iter + 1,
				Converged:  true,
				Status:     StatusConverged,
			}, nil
		}
		prevRMS = rms
	}

	return Result{
		Transform:  accum,
		RMSError:   lastRMS,
		Iterations: maxIter,
		Status:     StatusMaxIterations,
	}, nil
}

func (e *Engine) solve(moving pc.Vec3RandomAccessor, target *pc.PointCloud, corrs []registration.Correspondence) (mat.Mat4, error) {
	if e.Params.Variant == PointToPlane {
		return registration.SolvePointToPlane(moving, target, corrs)
	}
	return registration.SolvePointToPoint(moving, target, corrs)
}

// rms evaluates the per-variant RMS error of corrs under the updated
// transform.
func (e *Engine) rms(moving pc.Vec3RandomAccessor, target *pc.PointCloud, corrs []registration.Correspondence) float64 {
	if len(corrs) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for _, c := range corrs {
		d := moving.Vec3At(c.SourceIndex).Sub(target.Vec3At(c.TargetIndex))
		if e.Params.Variant == PointToPlane {
			r := target.NormalAt(c.TargetIndex).Dot(d)
			sum += r * r
		} else {
			sum += d.NormSq()
		}
	}
	return math.Sqrt(sum / float64(len(corrs)))
}
