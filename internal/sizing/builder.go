package sizing

import (
	"fmt"
	"math"
	"strconv"

	"battery-sizer/internal/lp"
	"battery-sizer/internal/model"
)

// Model is the built LP together with the index tables needed to read a
// solution back.
type Model struct {
	Problem *lp.Problem
	System  *EnergySystem

	Capacity   lp.VarID
	GridImport []lp.VarID
	GridExport []lp.VarID
	Charge     []lp.VarID
	Discharge  []lp.VarID
	SOC        []lp.VarID
}

type buildConfig struct {
	horizon int
}

// BuildOption adjusts model construction.
type BuildOption func(*buildConfig)

// WithHorizon sets the number of hourly steps the profiles must have.
// The default is a full year.
func WithHorizon(steps int) BuildOption {
	return func(c *buildConfig) { c.horizon = steps }
}

// Validate checks all inputs before anything is built. Profile problems are
// model.ErrShapeMismatch, scalar problems model.ErrInvalidParams.
func Validate(sys model.SystemParams, st model.StorageParams, profiles model.Profiles, opts ...BuildOption) error {
	cfg := buildConfig{horizon: model.HoursPerYear}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.horizon <= 0 {
		return fmt.Errorf("%w: horizon must be > 0 hours, got %d", model.ErrInvalidParams, cfg.horizon)
	}
	if err := profiles.Validate(cfg.horizon); err != nil {
		return err
	}
	if err := sys.Validate(); err != nil {
		return err
	}
	return st.Validate()
}

// BuildModel validates the inputs, assembles the household energy system and
// builds its LP.
func BuildModel(sys model.SystemParams, st model.StorageParams, profiles model.Profiles, opts ...BuildOption) (*Model, error) {
	if err := Validate(sys, st, profiles, opts...); err != nil {
		return nil, err
	}
	return Build(NewHouseholdSystem(sys, st, profiles))
}

// Build turns an energy system into the LP:
//
//	min  sum_t(price*import[t] - feedin*export[t]) + ep_costs*capacity
//	s.t. pv[t] + import[t] + discharge[t] = demand[t] + export[t] + charge[t]
//	     soc[t] = soc[t-1]*(1-loss) + charge[t]*eta_in - discharge[t]/eta_out
//	     soc[t] <= capacity
//	     charge[t] <= ratio_in*capacity, discharge[t] <= ratio_out*capacity
//	     0 <= export[t] <= max_export[t]
//
// with soc[-1] = soc[T-1] for a balanced storage and 0 otherwise.
func Build(es *EnergySystem) (*Model, error) {
	T := es.Steps
	if T <= 0 {
		return nil, fmt.Errorf("%w: energy system has no time steps", model.ErrShapeMismatch)
	}
	for _, f := range []Flow{es.PV, es.Demand} {
		if len(f.Fixed) != T {
			return nil, fmt.Errorf("%w: %s has %d values, want %d", model.ErrShapeMismatch, f.Label, len(f.Fixed), T)
		}
	}
	if es.GridFeedIn.Max != nil && len(es.GridFeedIn.Max) != T {
		return nil, fmt.Errorf("%w: %s limit has %d values, want %d", model.ErrShapeMismatch, es.GridFeedIn.Label, len(es.GridFeedIn.Max), T)
	}
	st := es.Storage
	if st.InflowConversion <= 0 || st.OutflowConversion <= 0 {
		return nil, fmt.Errorf("%w: storage conversion factors must be > 0", model.ErrInvalidParams)
	}

	inf := math.Inf(1)
	p := lp.NewProblem("household_battery_sizing")
	m := &Model{
		Problem:    p,
		System:     es,
		GridImport: make([]lp.VarID, T),
		GridExport: make([]lp.VarID, T),
		Charge:     make([]lp.VarID, T),
		Discharge:  make([]lp.VarID, T),
		SOC:        make([]lp.VarID, T),
	}

	m.Capacity = p.AddVariable(st.Label+"_capacity", 0, inf)
	p.SetCost(m.Capacity, st.EPCosts)

	for t := 0; t < T; t++ {
		h := strconv.Itoa(t)
		m.GridImport[t] = p.AddVariable(es.GridSupply.Label+"_"+h, 0, inf)
		p.SetCost(m.GridImport[t], es.GridSupply.VariableCost)

		upper := inf
		if es.GridFeedIn.Max != nil {
			upper = es.GridFeedIn.Max[t]
		}
		m.GridExport[t] = p.AddVariable(es.GridFeedIn.Label+"_"+h, 0, upper)
		p.SetCost(m.GridExport[t], es.GridFeedIn.VariableCost)

		m.Charge[t] = p.AddVariable(st.Label+"_in_"+h, 0, inf)
		m.Discharge[t] = p.AddVariable(st.Label+"_out_"+h, 0, inf)
		m.SOC[t] = p.AddVariable(st.Label+"_soc_"+h, 0, inf)
	}

	keep := 1 - st.LossRate
	for t := 0; t < T; t++ {
		h := strconv.Itoa(t)

		p.AddConstraint("balance_"+h, []lp.Term{
			{Var: m.GridImport[t], Coef: 1},
			{Var: m.Discharge[t], Coef: 1},
			{Var: m.GridExport[t], Coef: -1},
			{Var: m.Charge[t], Coef: -1},
		}, lp.EQ, es.Demand.Fixed[t]-es.PV.Fixed[t])

		// soc[t] - keep*soc[t-1] - eta_in*charge[t] + discharge[t]/eta_out = 0
		storage := []lp.Term{
			{Var: m.SOC[t], Coef: 1},
			{Var: m.Charge[t], Coef: -st.InflowConversion},
			{Var: m.Discharge[t], Coef: 1 / st.OutflowConversion},
		}
		prev := t - 1
		if t == 0 && st.Balanced {
			prev = T - 1
		}
		if prev >= 0 && keep != 0 {
			if prev == t {
				storage[0].Coef -= keep
			} else {
				storage = append(storage, lp.Term{Var: m.SOC[prev], Coef: -keep})
			}
		}
		p.AddConstraint("storage_"+h, storage, lp.EQ, 0)

		p.AddConstraint("soc_max_"+h, []lp.Term{
			{Var: m.SOC[t], Coef: 1},
			{Var: m.Capacity, Coef: -1},
		}, lp.LE, 0)
		p.AddConstraint("charge_max_"+h, []lp.Term{
			{Var: m.Charge[t], Coef: 1},
			{Var: m.Capacity, Coef: -st.InvestRelationInput},
		}, lp.LE, 0)
		p.AddConstraint("discharge_max_"+h, []lp.Term{
			{Var: m.Discharge[t], Coef: 1},
			{Var: m.Capacity, Coef: -st.InvestRelationOutput},
		}, lp.LE, 0)
	}

	return m, nil
}
