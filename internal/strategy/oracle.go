package strategy

import (
	"fmt"
	"math"

	"battery-sizer/internal/model"
)

// OracleStrategy is a perfect-foresight dispatch for a battery of fixed size.
// It computes a plan up-front by dynamic programming over a discretized SOC
// grid, minimizing grid cost over the whole horizon.
//
// The LP finds the exact optimum together with the size; the oracle answers
// the narrower question of how a given battery should be run, and its plan
// replays through model.Battery unchanged.
type OracleStrategy struct {
	plan []model.Dispatch
	cost float64
}

type OracleParams struct {
	// SocSteps controls SOC discretization between 0 and capacity.
	// Higher = more accurate, slower.
	SocSteps int

	// PowerSteps controls action discretization between [-P, +P].
	PowerSteps int
}

// OracleInputs are the hourly energies (kWh) and flat prices of the replay.
type OracleInputs struct {
	Demand           []float64
	PV               []float64
	ElectricityPrice float64
	FeedInPrice      float64
}

func NewOracleStrategy(in OracleInputs, params model.BatteryParams, initialSOC float64, cfg OracleParams) (*OracleStrategy, error) {
	n := len(in.Demand)
	if n == 0 {
		return nil, fmt.Errorf("no hours")
	}
	if len(in.PV) != n {
		return nil, fmt.Errorf("demand has %d hours, pv has %d", n, len(in.PV))
	}
	if cfg.SocSteps <= 0 {
		cfg.SocSteps = 100
	}
	if cfg.PowerSteps <= 0 {
		cfg.PowerSteps = 10
	}
	plan, cost := optimizeDP(in, params, initialSOC, cfg.SocSteps, cfg.PowerSteps)
	return &OracleStrategy{plan: plan, cost: cost}, nil
}

func (s *OracleStrategy) Name() string { return "oracle" }

func (s *OracleStrategy) Decide(ctx Context) model.Dispatch {
	if ctx.Index < 0 || ctx.Index >= len(s.plan) {
		return model.Dispatch{}
	}
	return s.plan[ctx.Index]
}

// PlannedCost is the grid cost of the plan as the DP computed it.
func (s *OracleStrategy) PlannedCost() float64 { return s.cost }

func optimizeDP(in OracleInputs, p model.BatteryParams, initialSOC float64, socSteps, powerSteps int) ([]model.Dispatch, float64) {
	nStates := socSteps + 1
	T := len(in.Demand)

	socToIdx := func(soc float64) int {
		if p.CapacityKWh <= 0 || soc <= 0 {
			return 0
		}
		if soc >= p.CapacityKWh {
			return socSteps
		}
		return int(math.Round(soc / p.CapacityKWh * float64(socSteps)))
	}
	idxToSoc := func(idx int) float64 {
		return float64(idx) / float64(socSteps) * p.CapacityKWh
	}

	actions := make([]float64, 0, 2*powerSteps+1)
	step := p.PowerKW / float64(powerSteps)
	for k := -powerSteps; k <= powerSteps; k++ {
		actions = append(actions, float64(k)*step)
	}

	inf := math.Inf(1)
	dp := make([]float64, nStates)
	next := make([]float64, nStates)
	for i := range dp {
		dp[i] = inf
	}
	initIdx := socToIdx(initialSOC)
	dp[initIdx] = 0

	// Backpointers: the predecessor state and the power that led to each
	// state at the end of hour t.
	prevState := make([][]int32, T)
	prevPower := make([][]float64, T)

	batt := model.Battery{Params: p}
	for t := 0; t < T; t++ {
		prevState[t] = make([]int32, nStates)
		prevPower[t] = make([]float64, nStates)
		for i := range next {
			next[i] = inf
			prevState[t][i] = -1
		}

		for s := 0; s < nStates; s++ {
			if math.IsInf(dp[s], 1) {
				continue
			}
			for _, power := range actions {
				batt.State.SOCKWh = idxToSoc(s)
				res, err := batt.ApplyDispatch(model.Dispatch{PowerKW: power}, 1)
				if err != nil {
					continue
				}
				grid := in.Demand[t] + res.ChargeKWh - in.PV[t] - res.DischargeKWh
				// Battery energy is not fed into the grid.
				if -grid > in.PV[t]+1e-9 {
					continue
				}
				ns := socToIdx(res.SOCEnd)
				v := dp[s] + hourCost(grid, in.ElectricityPrice, in.FeedInPrice)
				if v < next[ns] {
					next[ns] = v
					prevState[t][ns] = int32(s)
					prevPower[t][ns] = res.PowerKW
				}
			}
		}
		dp, next = next, dp
	}

	best := 0
	for i, v := range dp {
		if v < dp[best] {
			best = i
		}
	}

	plan := make([]model.Dispatch, T)
	state := best
	for t := T - 1; t >= 0; t-- {
		plan[t] = model.Dispatch{PowerKW: prevPower[t][state]}
		state = int(prevState[t][state])
	}
	return plan, dp[best]
}

// hourCost settles one hour's net grid energy: positive is import.
func hourCost(grid, price, feedIn float64) float64 {
	if grid >= 0 {
		return grid * price
	}
	return grid * feedIn
}
