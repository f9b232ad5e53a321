package model

import (
	"fmt"
	"math"
)

// Annuity converts a one-time capital expenditure into the equivalent
// constant yearly payment over lifetimeYears at discount rate wacc
// (capital recovery factor):
//
//	capex * wacc*(1+wacc)^n / ((1+wacc)^n - 1)
//
// A zero rate degenerates to straight-line capex/n.
func Annuity(capex float64, lifetimeYears int, wacc float64) (float64, error) {
	if !finiteNonNegative(capex) {
		return 0, fmt.Errorf("%w: capex must be >= 0, got %v", ErrInvalidParams, capex)
	}
	if lifetimeYears <= 0 {
		return 0, fmt.Errorf("%w: lifetime must be > 0 years, got %d", ErrInvalidParams, lifetimeYears)
	}
	if !finiteNonNegative(wacc) {
		return 0, fmt.Errorf("%w: wacc must be >= 0, got %v", ErrInvalidParams, wacc)
	}
	n := float64(lifetimeYears)
	if wacc == 0 {
		return capex / n, nil
	}
	f := math.Pow(1+wacc, n)
	return capex * (wacc * f) / (f - 1), nil
}
