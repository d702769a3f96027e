// Package registration implements the numerical building blocks of
// pairwise rigid alignment: correspondence filtering and closed-form /
// linearized rigid-transform estimation.
package registration

// Correspondence pairs a source point with its nearest target point.
// Correspondences are ephemeral; they are rebuilt on every alignment
// iteration.
type Correspondence struct {
	SourceIndex int
	TargetIndex int
	Distance    float64
}
