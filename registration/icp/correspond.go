package icp

import (
	"runtime"
	"sync"

	"github.com/scanreg/scanreg/pc"
	"github.com/scanreg/scanreg/pc/storage/kdtree"
	"github.com/scanreg/scanreg/registration"
)

// correspond finds the nearest target point for every moving point.
// The search fans out over disjoint index ranges; each worker writes
// its own region of the result slice, so the output is independent of
// goroutine scheduling.
func (e *Engine) correspond(moving pc.Vec3RandomAccessor, kdt *kdtree.KDTree) []registration.Correspondence {
	n := moving.Len()
	corrs := make([]registration.Correspondence, n)

	workers := e.Params.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}

	fill := func(lo, hi int) {
		for i := lo; i < hi; i++ {
			j, d, ok := kdt.Nearest(moving.Vec3At(i))
			if !ok {
				// target emptiness is rejected before the loop starts
				continue
			}
			corrs[i] = registration.Correspondence{
				SourceIndex: i,
				TargetIndex: j,
				Distance:    d,
			}
		}
	}

	if workers == 1 {
		fill(0, n)
		return corrs
	}

	var wg sync.WaitGroup
	chunk := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fill(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
	return corrs
}
