package backtest

import (
	"fmt"
	"time"

	"battery-sizer/internal/analysis"
	"battery-sizer/internal/model"
	"battery-sizer/internal/sizing"
	"battery-sizer/internal/strategy"
)

// Comparison sets the optimized dispatch of a sizing result next to a
// rule-based replay of the same battery.
type Comparison struct {
	Optimized     *Result          `json:"optimized"`
	Replay        *Result          `json:"replay"`
	ReplayMetrics analysis.Metrics `json:"replay_metrics"`
	// ExtraCost is what the replay pays on top of the optimized dispatch.
	ExtraCost float64 `json:"extra_cost"`
}

// InputsFor scales the scenario profiles to hourly energies.
func InputsFor(sc sizing.Scenario, start time.Time) Inputs {
	n := len(sc.Profiles.DemandFraction)
	if h := sc.Options.Horizon; h > 0 && h < n {
		n = h
	}
	return Inputs{
		Demand:           sc.Profiles.DemandFraction[:n].Scale(sc.System.AnnualDemandKWh),
		PV:               sc.Profiles.PVFraction[:n].Scale(sc.System.PVCapacityKWp),
		Start:            start,
		ElectricityPrice: sc.System.ElectricityPrice,
		FeedInPrice:      sc.System.FeedInPrice,
	}
}

// Replay runs spec on a battery of the optimal size. Both runs start from
// the SOC the optimized (cyclic) schedule starts with.
func Replay(sc sizing.Scenario, res *sizing.Result, spec strategy.Spec, start time.Time) (*Comparison, error) {
	if res == nil || res.Flows == nil {
		return nil, fmt.Errorf("no sizing result to replay")
	}
	f := res.Flows
	in := InputsFor(sc, start)
	if len(in.Demand) != f.Len() {
		return nil, fmt.Errorf("%w: result has %d hours, scenario %d", model.ErrShapeMismatch, f.Len(), len(in.Demand))
	}
	initialSOC := 0.0
	if f.Len() > 0 {
		initialSOC = f.SOC[f.Len()-1]
	}

	params := model.BatteryParamsFor(f.CapacityKWh, sc.Storage)
	strat, err := strategy.Build(spec, strategy.OracleInputs{
		Demand:           in.Demand,
		PV:               in.PV,
		ElectricityPrice: in.ElectricityPrice,
		FeedInPrice:      in.FeedInPrice,
	}, params, initialSOC)
	if err != nil {
		return nil, err
	}
	batt, err := model.NewBattery(params, initialSOC)
	if err != nil {
		return nil, err
	}
	replay, err := New().Run(in, batt, strat)
	if err != nil {
		return nil, err
	}

	pricing := Pricing{ElectricityPrice: in.ElectricityPrice, FeedInPrice: in.FeedInPrice}
	ledger := BuildLedger(f, pricing, start, initialSOC)
	optimized := &Result{
		Strategy:  "optimized",
		Flows:     f,
		Ledger:    ledger,
		TotalCost: OperatingCost(f, pricing),
		FinalSOC:  initialSOC,
	}
	return &Comparison{
		Optimized:     optimized,
		Replay:        replay,
		ReplayMetrics: analysis.ComputeMetrics(replay.Flows.Totals()),
		ExtraCost:     replay.TotalCost - optimized.TotalCost,
	}, nil
}
