// Package lp holds the solver-independent linear program artifact: named
// variables with bounds, linear rows and a minimization objective.
package lp

import (
	"fmt"
	"math"
)

// VarID indexes a variable in its Problem.
type VarID int

// Sense is the relation of a row's left-hand side to its right-hand side.
type Sense int

const (
	LE Sense = iota // <=
	GE              // >=
	EQ              // =
)

func (s Sense) String() string {
	switch s {
	case LE:
		return "<="
	case GE:
		return ">="
	case EQ:
		return "="
	default:
		return fmt.Sprintf("Sense(%d)", int(s))
	}
}

// Variable is a continuous decision variable. Upper may be +Inf and Lower
// may be -Inf.
type Variable struct {
	Name  string
	Lower float64
	Upper float64
	// Cost is the objective coefficient.
	Cost float64
}

// Term is coef * variable.
type Term struct {
	Var  VarID
	Coef float64
}

// Constraint is sum(terms) <sense> RHS.
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Problem is a minimization LP.
type Problem struct {
	Name string
	Vars []Variable
	Rows []Constraint
}

func NewProblem(name string) *Problem {
	return &Problem{Name: name}
}

// AddVariable appends a variable and returns its id.
func (p *Problem) AddVariable(name string, lower, upper float64) VarID {
	p.Vars = append(p.Vars, Variable{Name: name, Lower: lower, Upper: upper})
	return VarID(len(p.Vars) - 1)
}

// SetCost sets the objective coefficient of v.
func (p *Problem) SetCost(v VarID, cost float64) {
	p.Vars[v].Cost = cost
}

// AddConstraint appends a row and returns its index. Terms are kept as given;
// a variable listed twice contributes the sum of its coefficients.
func (p *Problem) AddConstraint(name string, terms []Term, sense Sense, rhs float64) int {
	p.Rows = append(p.Rows, Constraint{Name: name, Terms: terms, Sense: sense, RHS: rhs})
	return len(p.Rows) - 1
}

func (p *Problem) NumVariables() int { return len(p.Vars) }
func (p *Problem) NumRows() int      { return len(p.Rows) }

// NumNonZeros counts the row coefficients.
func (p *Problem) NumNonZeros() int {
	n := 0
	for _, r := range p.Rows {
		n += len(r.Terms)
	}
	return n
}

// Objective evaluates the objective at values.
func (p *Problem) Objective(values []float64) float64 {
	var sum float64
	for i, v := range p.Vars {
		if v.Cost != 0 {
			sum += v.Cost * values[i]
		}
	}
	return sum
}

// Validate reports structural problems: bad bounds, unknown variable ids and
// non-finite coefficients.
func (p *Problem) Validate() error {
	for i, v := range p.Vars {
		if math.IsNaN(v.Lower) || math.IsNaN(v.Upper) || math.IsInf(v.Lower, 1) || math.IsInf(v.Upper, -1) {
			return fmt.Errorf("variable %q: invalid bounds [%v, %v]", v.Name, v.Lower, v.Upper)
		}
		if v.Lower > v.Upper {
			return fmt.Errorf("variable %q: lower bound %v above upper bound %v", v.Name, v.Lower, v.Upper)
		}
		if math.IsNaN(v.Cost) || math.IsInf(v.Cost, 0) {
			return fmt.Errorf("variable %d %q: objective coefficient not finite", i, v.Name)
		}
	}
	for _, r := range p.Rows {
		if math.IsNaN(r.RHS) || math.IsInf(r.RHS, 0) {
			return fmt.Errorf("row %q: rhs not finite", r.Name)
		}
		for _, t := range r.Terms {
			if t.Var < 0 || int(t.Var) >= len(p.Vars) {
				return fmt.Errorf("row %q: unknown variable id %d", r.Name, t.Var)
			}
			if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
				return fmt.Errorf("row %q: coefficient of %q not finite", r.Name, p.Vars[t.Var].Name)
			}
		}
	}
	return nil
}

// Activity returns the left-hand side of row r at values.
func (r Constraint) Activity(values []float64) float64 {
	var sum float64
	for _, t := range r.Terms {
		sum += t.Coef * values[t.Var]
	}
	return sum
}
