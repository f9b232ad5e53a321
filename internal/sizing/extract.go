package sizing

import (
	"fmt"
	"math"

	"battery-sizer/internal/lp"
	"battery-sizer/internal/model"
)

// zeroTol is the magnitude below which solver output is treated as zero.
const zeroTol = 1e-9

// Extract maps an optimal solution back to hourly flows. Any other status is
// an error: timeouts wrap model.ErrOptimizationTimedOut, everything else
// model.ErrOptimizationFailed.
func Extract(m *Model, sol *lp.Solution) (*model.Flows, error) {
	if sol == nil {
		return nil, fmt.Errorf("%w: no solution", model.ErrOptimizationFailed)
	}
	switch sol.Status {
	case lp.StatusOptimal:
	case lp.StatusTimeout:
		return nil, fmt.Errorf("%w: %s", model.ErrOptimizationTimedOut, sol.Message)
	default:
		return nil, fmt.Errorf("%w: solver status %s: %s", model.ErrOptimizationFailed, sol.Status, sol.Message)
	}
	if len(sol.Values) != m.Problem.NumVariables() {
		return nil, fmt.Errorf("%w: solution has %d values, model has %d variables",
			model.ErrOptimizationFailed, len(sol.Values), m.Problem.NumVariables())
	}

	value := func(id lp.VarID) (float64, error) {
		v := sol.Values[id]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: %s is not finite", model.ErrOptimizationFailed, m.Problem.Vars[id].Name)
		}
		if math.Abs(v) < zeroTol {
			return 0, nil
		}
		return v, nil
	}
	series := func(ids []lp.VarID, dst []float64) error {
		for t, id := range ids {
			v, err := value(id)
			if err != nil {
				return err
			}
			dst[t] = v
		}
		return nil
	}

	es := m.System
	f := model.NewFlows(es.Steps)
	copy(f.Demand, es.Demand.Fixed)
	copy(f.PVGen, es.PV.Fixed)

	var err error
	if f.CapacityKWh, err = value(m.Capacity); err != nil {
		return nil, err
	}
	for _, s := range []struct {
		ids []lp.VarID
		dst []float64
	}{
		{m.GridImport, f.GridImport},
		{m.GridExport, f.GridExport},
		{m.Charge, f.Charge},
		{m.Discharge, f.Discharge},
		{m.SOC, f.SOC},
	} {
		if err := series(s.ids, s.dst); err != nil {
			return nil, err
		}
	}
	return f, nil
}
