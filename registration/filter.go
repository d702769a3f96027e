package registration

import (
	"gonum.org/v1/gonum/stat"
)

// minFilteredPairs is the smallest correspondence set the solver can
// work with; filtering never reduces a set below it.
const minFilteredPairs = 3

// RejectOutliers drops correspondences whose distance exceeds
// mean + 2*stddev of the set. This bounds the influence of
// partial-overlap and noisy regions. If filtering would leave fewer
// than 3 pairs, the input is returned unchanged so the solver is not
// starved.
func RejectOutliers(corrs []Correspondence) []Correspondence {
	if len(corrs) <= minFilteredPairs {
		return corrs
	}
	dists := make([]float64, len(corrs))
	for i, c := range corrs {
		dists[i] = c.Distance
	}
	mean, std := stat.MeanStdDev(dists, nil)
	limit := mean + 2*std

	out := corrs[:0:0]
	for _, c := range corrs {
		if c.Distance < limit {
			out = append(out, c)
		}
	}
	if len(out) < minFilteredPairs {
		return corrs
	}
	return out
}
