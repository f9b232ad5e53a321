package lp

import (
	"fmt"
	"math"
)

// Violation describes one bound or row not satisfied by a candidate point.
type Violation struct {
	Name   string
	Kind   string // "bound" or "row"
	Amount float64
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s violated by %g", v.Kind, v.Name, v.Amount)
}

// Check evaluates every bound and row of p at values and returns those
// violated by more than tol. A length mismatch is reported as a single
// violation.
func Check(p *Problem, values []float64, tol float64) []Violation {
	if len(values) != len(p.Vars) {
		return []Violation{{
			Name:   "values",
			Kind:   "shape",
			Amount: math.Abs(float64(len(values) - len(p.Vars))),
		}}
	}

	var out []Violation
	for i, v := range p.Vars {
		x := values[i]
		if d := v.Lower - x; d > tol {
			out = append(out, Violation{Name: v.Name, Kind: "bound", Amount: d})
		}
		if d := x - v.Upper; d > tol {
			out = append(out, Violation{Name: v.Name, Kind: "bound", Amount: d})
		}
	}
	for _, r := range p.Rows {
		lhs := r.Activity(values)
		var d float64
		switch r.Sense {
		case LE:
			d = lhs - r.RHS
		case GE:
			d = r.RHS - lhs
		case EQ:
			d = math.Abs(lhs - r.RHS)
		}
		if d > tol {
			out = append(out, Violation{Name: r.Name, Kind: "row", Amount: d})
		}
	}
	return out
}
