package lp

import "context"

// Status is the termination status reported by a solver.
type Status string

const (
	StatusOptimal    Status = "optimal"
	StatusInfeasible Status = "infeasible"
	StatusUnbounded  Status = "unbounded"
	StatusTimeout    Status = "timeout"
	StatusError      Status = "error"
)

// Solution is what a solver hands back. Values is indexed by VarID and is
// only meaningful when Status is StatusOptimal.
type Solution struct {
	Status    Status
	Objective float64
	Values    []float64
	// Message is the solver's own description of the outcome.
	Message string
}

// Solver is the boundary to an LP back-end.
//
// A returned error means the back-end could not run at all (missing binary,
// problem too large, I/O failure). Everything the back-end decided about the
// problem itself, including running out of time, is reported through
// Solution.Status.
type Solver interface {
	Name() string
	Solve(ctx context.Context, p *Problem) (*Solution, error)
}
