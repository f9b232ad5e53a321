package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	golp "gonum.org/v1/gonum/optimize/convex/lp"

	"battery-sizer/internal/lp"
	"battery-sizer/internal/model"
)

// DefaultMaxVariables bounds the standard-form column count the dense simplex
// accepts. The tableau is dense, so memory grows with rows*columns.
const DefaultMaxVariables = 4000

const defaultSimplexTol = 1e-9

// bigM scales the cost of the artificial columns relative to the largest
// objective coefficient.
const bigM = 1e6

// artificialTol is the largest artificial value still read as feasible,
// relative to the largest right-hand side.
const artificialTol = 1e-7

// Simplex solves problems in process with gonum's dense simplex. It is meant
// for short horizons; full-year models should go to an external solver.
//
// Every row gets an artificial column with a big-M cost and those columns
// form the starting basis, so gonum never has to search for one.
//
// Cancelling the context returns StatusTimeout at once, but the gonum call
// cannot be interrupted and runs to completion in its goroutine. MaxVariables
// keeps that leftover work bounded.
type Simplex struct {
	MaxVariables int
	Tolerance    float64
}

func NewSimplex() *Simplex {
	return &Simplex{MaxVariables: DefaultMaxVariables, Tolerance: defaultSimplexTol}
}

func (s *Simplex) Name() string { return "simplex" }

// standardForm is min c'x s.t. Ax = b, x >= 0 together with the mapping
// back to the original variables.
type standardForm struct {
	c    []float64
	a    []float64 // row-major m x n, artificial columns included
	b    []float64
	m, n int
	// art is the first artificial column; columns art..n-1 are artificial.
	art int

	// col[i] is the standard-form column of original variable i, or -1 when
	// the variable is fixed at shift[i].
	col   []int
	shift []float64
}

type simplexResult struct {
	x   []float64
	err error
}

func (s *Simplex) Solve(ctx context.Context, p *lp.Problem) (*lp.Solution, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: simplex: %v", model.ErrSolverUnavailable, err)
	}
	maxVars := s.MaxVariables
	if maxVars <= 0 {
		maxVars = DefaultMaxVariables
	}
	tol := s.Tolerance
	if tol <= 0 {
		tol = defaultSimplexTol
	}

	if err := ctx.Err(); err != nil {
		return &lp.Solution{Status: lp.StatusTimeout, Message: err.Error()}, nil
	}

	sf, sol, err := toStandardForm(p, maxVars)
	if err != nil {
		return nil, err
	}
	if sol != nil {
		return sol, nil
	}
	if sf.m == 0 {
		return s.finish(p, sf, make([]float64, sf.n)), nil
	}

	done := make(chan simplexResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- simplexResult{err: fmt.Errorf("simplex panic: %v", r)}
			}
		}()
		a := mat.NewDense(sf.m, sf.n, sf.a)
		basis := make([]int, sf.m)
		for k := range basis {
			basis[k] = sf.art + k
		}
		_, x, err := golp.Simplex(sf.c, a, sf.b, tol, basis)
		done <- simplexResult{x: x, err: err}
	}()

	select {
	case <-ctx.Done():
		return &lp.Solution{Status: lp.StatusTimeout, Message: ctx.Err().Error()}, nil
	case res := <-done:
		if res.err != nil {
			return &lp.Solution{Status: statusFromGonum(res.err), Message: res.err.Error()}, nil
		}
		if k, v := sf.residual(res.x); k >= 0 {
			return &lp.Solution{
				Status:  lp.StatusInfeasible,
				Message: fmt.Sprintf("row %d stays violated by %g", k, v),
			}, nil
		}
		return s.finish(p, sf, res.x), nil
	}
}

func (s *Simplex) finish(p *lp.Problem, sf *standardForm, x []float64) *lp.Solution {
	values := make([]float64, len(p.Vars))
	for i := range p.Vars {
		values[i] = sf.shift[i]
		if j := sf.col[i]; j >= 0 {
			values[i] += x[j]
		}
	}
	return &lp.Solution{
		Status:    lp.StatusOptimal,
		Objective: p.Objective(values),
		Values:    values,
		Message:   "optimal",
	}
}

// residual returns the first row whose artificial column is still positive,
// or -1 when x satisfies every row.
func (sf *standardForm) residual(x []float64) (int, float64) {
	scale := 1.0
	for _, b := range sf.b {
		scale = math.Max(scale, b)
	}
	for k := 0; k < sf.m; k++ {
		if v := x[sf.art+k]; v > artificialTol*scale {
			return k, v
		}
	}
	return -1, 0
}

func statusFromGonum(err error) lp.Status {
	switch {
	case errors.Is(err, golp.ErrInfeasible):
		return lp.StatusInfeasible
	case errors.Is(err, golp.ErrUnbounded):
		return lp.StatusUnbounded
	default:
		return lp.StatusError
	}
}

// toStandardForm shifts every variable to a zero lower bound, removes fixed
// and unused variables, adds a slack per inequality row and per finite upper
// bound and an artificial per row, and drops empty rows. A non-nil Solution
// means the problem was decided during conversion.
func toStandardForm(p *lp.Problem, maxVars int) (*standardForm, *lp.Solution, error) {
	nv := len(p.Vars)
	sf := &standardForm{
		col:   make([]int, nv),
		shift: make([]float64, nv),
	}

	used := make([]bool, nv)
	for _, r := range p.Rows {
		for _, t := range r.Terms {
			if t.Coef != 0 {
				used[t.Var] = true
			}
		}
	}

	cols := 0
	var uppers []int
	for i, v := range p.Vars {
		if math.IsInf(v.Lower, -1) {
			return nil, nil, fmt.Errorf("%w: simplex: variable %q has no finite lower bound", model.ErrSolverUnavailable, v.Name)
		}
		sf.shift[i] = v.Lower
		sf.col[i] = -1
		switch {
		case v.Lower == v.Upper:
		case !used[i] && v.Cost >= 0:
		case !used[i] && math.IsInf(v.Upper, 1):
			return nil, &lp.Solution{
				Status:  lp.StatusUnbounded,
				Message: fmt.Sprintf("variable %q has negative cost and no limit", v.Name),
			}, nil
		case !used[i]:
			sf.shift[i] = v.Upper
		default:
			sf.col[i] = cols
			cols++
			if !math.IsInf(v.Upper, 1) {
				uppers = append(uppers, i)
			}
		}
	}

	type row struct {
		coef  map[int]float64
		slack float64
		rhs   float64
	}
	rows := make([]row, 0, len(p.Rows)+len(uppers))
	for _, r := range p.Rows {
		rw := row{coef: make(map[int]float64, len(r.Terms)), rhs: r.RHS}
		for _, t := range r.Terms {
			// x = shift + x' for every variable, kept or not.
			rw.rhs -= t.Coef * sf.shift[t.Var]
			if j := sf.col[t.Var]; j >= 0 {
				rw.coef[j] += t.Coef
			}
		}
		for j, c := range rw.coef {
			if c == 0 {
				delete(rw.coef, j)
			}
		}
		switch r.Sense {
		case lp.LE:
			rw.slack = 1
		case lp.GE:
			rw.slack = -1
		}
		if len(rw.coef) == 0 {
			if rowHolds(r.Sense, rw.rhs) {
				continue
			}
			return nil, &lp.Solution{
				Status:  lp.StatusInfeasible,
				Message: fmt.Sprintf("row %q cannot hold", r.Name),
			}, nil
		}
		rows = append(rows, rw)
	}
	for _, i := range uppers {
		v := p.Vars[i]
		rows = append(rows, row{
			coef:  map[int]float64{sf.col[i]: 1},
			slack: 1,
			rhs:   v.Upper - v.Lower,
		})
	}

	slacks := 0
	for _, rw := range rows {
		if rw.slack != 0 {
			slacks++
		}
	}
	sf.m = len(rows)
	sf.art = cols + slacks
	sf.n = sf.art + sf.m
	if sf.art > maxVars {
		return nil, nil, fmt.Errorf("%w: simplex: %d standard-form columns exceed the limit of %d",
			model.ErrSolverUnavailable, sf.art, maxVars)
	}

	sf.c = make([]float64, sf.n)
	maxCost := 1.0
	for i, v := range p.Vars {
		if j := sf.col[i]; j >= 0 {
			sf.c[j] = v.Cost
			maxCost = math.Max(maxCost, math.Abs(v.Cost))
		}
	}
	for k := 0; k < sf.m; k++ {
		sf.c[sf.art+k] = bigM * maxCost
	}
	sf.a = make([]float64, sf.m*sf.n)
	sf.b = make([]float64, sf.m)
	next := cols
	for k, rw := range rows {
		sign := 1.0
		if rw.rhs < 0 {
			sign = -1
		}
		base := k * sf.n
		for j, c := range rw.coef {
			sf.a[base+j] = sign * c
		}
		if rw.slack != 0 {
			sf.a[base+next] = sign * rw.slack
			next++
		}
		sf.a[base+sf.art+k] = 1
		sf.b[k] = sign * rw.rhs
	}
	return sf, nil, nil
}

func rowHolds(s lp.Sense, rhs float64) bool {
	const eps = 1e-12
	switch s {
	case lp.LE:
		return 0 <= rhs+eps
	case lp.GE:
		return 0 >= rhs-eps
	default:
		return math.Abs(rhs) <= eps
	}
}
