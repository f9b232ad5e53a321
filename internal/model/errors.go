package model

import "errors"

// Fatal conditions of a sizing run. Callers match them with errors.Is;
// the wrapped message carries the details.
var (
	// ErrShapeMismatch: the input series have the wrong length or contain
	// negative / non-finite values. Reported before anything is solved.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrInvalidParams: a scalar parameter is out of range.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrOptimizationFailed: the solver reported infeasible, unbounded or an
	// internal error.
	ErrOptimizationFailed = errors.New("optimization failed")

	// ErrOptimizationTimedOut: the solver ran out of the caller's time budget
	// or the run was cancelled. Retrying with a larger budget may succeed.
	ErrOptimizationTimedOut = errors.New("optimization timed out")

	// ErrSolverUnavailable: the solver could not be started at all.
	ErrSolverUnavailable = errors.New("solver unavailable")
)
