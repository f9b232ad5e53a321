// Package backtest replays a battery of known size hour by hour under a
// dispatch strategy and settles each hour against the grid.
package backtest

import (
	"fmt"
	"time"

	"battery-sizer/internal/model"
	"battery-sizer/internal/strategy"
)

// Inputs are the hourly energies (kWh) of the household and its flat prices.
type Inputs struct {
	Demand model.TimeSeries
	PV     model.TimeSeries
	// Start is the timestamp of hour 0.
	Start            time.Time
	ElectricityPrice float64
	FeedInPrice      float64
}

type Engine struct{}

func New() *Engine { return &Engine{} }

// Run replays the strategy over every hour of the inputs.
func (e *Engine) Run(in Inputs, batt *model.Battery, strat strategy.Strategy) (*Result, error) {
	if batt == nil {
		return nil, fmt.Errorf("battery is nil")
	}
	if strat == nil {
		return nil, fmt.Errorf("strategy is nil")
	}
	n := len(in.Demand)
	if n == 0 {
		return nil, fmt.Errorf("no hours")
	}
	if len(in.PV) != n {
		return nil, fmt.Errorf("%w: demand has %d hours, pv has %d", model.ErrShapeMismatch, n, len(in.PV))
	}

	f := model.NewFlows(n)
	f.CapacityKWh = batt.Params.CapacityKWh
	copy(f.Demand, in.Demand)
	copy(f.PVGen, in.PV)
	initialSOC := batt.State.SOCKWh

	for idx := 0; idx < n; idx++ {
		req := strat.Decide(strategy.Context{
			Index:     idx,
			Time:      in.Start.Add(time.Duration(idx) * time.Hour),
			DemandKWh: in.Demand[idx],
			PVKWh:     in.PV[idx],
			Battery:   batt,
		})

		res, err := batt.ApplyDispatch(req, 1)
		if err != nil {
			return nil, fmt.Errorf("hour %d apply dispatch: %w", idx, err)
		}

		f.Charge[idx] = res.ChargeKWh
		f.Discharge[idx] = res.DischargeKWh
		f.SOC[idx] = res.SOCEnd

		grid := in.Demand[idx] + res.ChargeKWh - in.PV[idx] - res.DischargeKWh
		if grid > 0 {
			f.GridImport[idx] = grid
		} else {
			f.GridExport[idx] = -grid
		}
	}

	pricing := Pricing{ElectricityPrice: in.ElectricityPrice, FeedInPrice: in.FeedInPrice}
	ledger := BuildLedger(f, pricing, in.Start, initialSOC)
	total := 0.0
	if len(ledger) > 0 {
		total = ledger[len(ledger)-1].CumCost
	}
	return &Result{
		Strategy:  strat.Name(),
		Flows:     f,
		Ledger:    ledger,
		TotalCost: total,
		FinalSOC:  batt.State.SOCKWh,
	}, nil
}
