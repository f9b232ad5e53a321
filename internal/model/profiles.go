package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// HoursPerYear is the length of a reference year (non-leap, hourly).
const HoursPerYear = 8760

// TimeSeries is one value per hour of the reference year; the index is the
// hour of the year.
type TimeSeries []float64

func (ts TimeSeries) Len() int { return len(ts) }

func (ts TimeSeries) Sum() float64 {
	if len(ts) == 0 {
		return 0
	}
	return floats.Sum(ts)
}

// Scale returns a new series with every value multiplied by f.
func (ts TimeSeries) Scale(f float64) TimeSeries {
	out := make(TimeSeries, len(ts))
	copy(out, ts)
	floats.Scale(f, out)
	return out
}

// Profiles are the two yearly input shapes:
// - DemandFraction: per-unit share of the annual demand per hour (sums to ~1)
// - PVFraction: PV output per kWp installed, kW
type Profiles struct {
	DemandFraction TimeSeries `json:"demand_fraction"`
	PVFraction     TimeSeries `json:"pv_fraction"`
}

// Validate checks that both series have exactly `steps` entries and that
// every value is finite and non-negative.
func (p Profiles) Validate(steps int) error {
	if len(p.DemandFraction) != len(p.PVFraction) {
		return fmt.Errorf("%w: demand has %d values, pv has %d", ErrShapeMismatch, len(p.DemandFraction), len(p.PVFraction))
	}
	if len(p.DemandFraction) != steps {
		return fmt.Errorf("%w: expected %d hourly values, got %d", ErrShapeMismatch, steps, len(p.DemandFraction))
	}
	if err := checkValues("demand", p.DemandFraction); err != nil {
		return err
	}
	return checkValues("pv", p.PVFraction)
}

func checkValues(name string, ts TimeSeries) error {
	for i, v := range ts {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s[%d] is not finite", ErrShapeMismatch, name, i)
		}
		if v < 0 {
			return fmt.Errorf("%w: %s[%d] is negative (%v)", ErrShapeMismatch, name, i, v)
		}
	}
	return nil
}
