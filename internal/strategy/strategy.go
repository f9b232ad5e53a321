// Package strategy holds the hourly dispatch rules used to replay a battery
// of known size against the household profiles.
package strategy

import (
	"time"

	"battery-sizer/internal/model"
)

type Context struct {
	Index     int
	Time      time.Time
	DemandKWh float64
	PVKWh     float64
	Battery   *model.Battery
}

// Surplus is PV output not needed by the demand of the hour (negative when
// demand exceeds PV).
func (c Context) Surplus() float64 { return c.PVKWh - c.DemandKWh }

type Strategy interface {
	Name() string
	Decide(ctx Context) model.Dispatch
}

// SelfConsumption stores every kWh of PV surplus it can and discharges to
// cover any deficit. It never charges from the grid.
type SelfConsumption struct{}

func (SelfConsumption) Name() string { return "self_consumption" }

func (SelfConsumption) Decide(ctx Context) model.Dispatch {
	return model.Dispatch{PowerKW: -ctx.Surplus()}
}

// Idle never dispatches; it gives the no-battery reference.
type Idle struct{}

func (Idle) Name() string { return "idle" }

func (Idle) Decide(Context) model.Dispatch { return model.Dispatch{} }

// Plan replays a precomputed dispatch per hour.
type Plan struct {
	Label    string
	Dispatch []model.Dispatch
}

func (p *Plan) Name() string {
	if p.Label == "" {
		return "plan"
	}
	return p.Label
}

func (p *Plan) Decide(ctx Context) model.Dispatch {
	if ctx.Index < 0 || ctx.Index >= len(p.Dispatch) {
		return model.Dispatch{}
	}
	return p.Dispatch[ctx.Index]
}

// PlanFromFlows turns optimized flows into a replayable plan.
func PlanFromFlows(label string, f *model.Flows) *Plan {
	out := make([]model.Dispatch, f.Len())
	for i := range out {
		out[i] = model.Dispatch{PowerKW: f.Discharge[i] - f.Charge[i]}
	}
	return &Plan{Label: label, Dispatch: out}
}
