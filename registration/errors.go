package registration

import (
	"errors"
)

var (
	// ErrEmptySource is returned when the moving cloud has no points.
	ErrEmptySource = errors.New("source cloud has no points")
	// ErrEmptyTarget is returned when the fixed cloud has no points.
	ErrEmptyTarget = errors.New("target cloud has no points")
	// ErrInsufficientCorrespondences is returned when fewer than 3
	// non-collinear point pairs are available to the solver.
	ErrInsufficientCorrespondences = errors.New("insufficient correspondences")
	// ErrInsufficientOverlap is returned when the very first alignment
	// iteration cannot produce a usable correspondence set.
	ErrInsufficientOverlap = errors.New("insufficient overlap between clouds")
	// ErrMissingNormals is returned when point-to-plane alignment is
	// requested on a target without normals.
	ErrMissingNormals = errors.New("target cloud has no normals")
)
