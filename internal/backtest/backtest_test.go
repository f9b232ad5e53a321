package backtest

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battery-sizer/internal/model"
	"battery-sizer/internal/sizing"
	"battery-sizer/internal/solver"
	"battery-sizer/internal/strategy"
)

var start = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

// household returns n hours of 1 kWh demand and 4 kWh PV between 08:00
// and 16:00.
func household(n int) Inputs {
	in := Inputs{
		Demand:           make(model.TimeSeries, n),
		PV:               make(model.TimeSeries, n),
		Start:            start,
		ElectricityPrice: 0.30,
		FeedInPrice:      0.08,
	}
	for i := 0; i < n; i++ {
		in.Demand[i] = 1
		if h := i % 24; h >= 8 && h < 16 {
			in.PV[i] = 4
		}
	}
	return in
}

func newBattery(t *testing.T, p model.BatteryParams, soc float64) *model.Battery {
	t.Helper()
	b, err := model.NewBattery(p, soc)
	require.NoError(t, err)
	return b
}

func TestSelfConsumptionReplay(t *testing.T) {
	in := household(24)
	b := newBattery(t, model.BatteryParams{CapacityKWh: 10, PowerKW: 2, ChargeEfficiency: 1, DischargeEfficiency: 1}, 0)

	res, err := New().Run(in, b, strategy.SelfConsumption{})
	require.NoError(t, err)
	tot := res.Flows.Totals()

	// Night before sunrise is imported, the evening is covered by the battery.
	assert.InDelta(t, 8, tot.GridImport, 1e-9)
	// 24 kWh surplus, 10 stored.
	assert.InDelta(t, 14, tot.GridExport, 1e-9)
	assert.InDelta(t, 2, res.FinalSOC, 1e-9)
	assert.InDelta(t, 8*0.30-14*0.08, res.TotalCost, 1e-9)

	require.Len(t, res.Ledger, 24)
	assert.Equal(t, model.ActionCharging, res.Ledger[8].Action)
	assert.Equal(t, model.ActionIdle, res.Ledger[13].Action)
	assert.Equal(t, model.ActionDischarging, res.Ledger[20].Action)
	assert.Equal(t, start.Add(20*time.Hour), res.Ledger[20].Time)
	assert.Equal(t, res.Ledger[19].SOCEnd, res.Ledger[20].SOCStart)
}

func TestIdleIsNoBatteryReference(t *testing.T) {
	in := household(24)
	b := newBattery(t, model.BatteryParams{CapacityKWh: 10, PowerKW: 2, ChargeEfficiency: 1, DischargeEfficiency: 1}, 0)

	res, err := New().Run(in, b, strategy.Idle{})
	require.NoError(t, err)
	tot := res.Flows.Totals()
	assert.InDelta(t, 16, tot.GridImport, 1e-9)
	assert.InDelta(t, 24, tot.GridExport, 1e-9)
}

func TestRunRejectsBadInputs(t *testing.T) {
	b := newBattery(t, model.BatteryParams{ChargeEfficiency: 1, DischargeEfficiency: 1}, 0)
	_, err := New().Run(Inputs{}, b, strategy.Idle{})
	assert.Error(t, err)
	_, err = New().Run(household(24), nil, strategy.Idle{})
	assert.Error(t, err)

	in := household(24)
	in.PV = in.PV[:5]
	_, err = New().Run(in, b, strategy.Idle{})
	assert.ErrorIs(t, err, model.ErrShapeMismatch)
}

func sizeFor(t *testing.T, in Inputs) (*sizing.Result, sizing.Scenario) {
	t.Helper()
	n := len(in.Demand)
	sc := sizing.Scenario{
		Name: "replay-check",
		System: model.SystemParams{
			AnnualDemandKWh:  in.Demand.Sum(),
			PVCapacityKWp:    4,
			ElectricityPrice: in.ElectricityPrice,
			FeedInPrice:      in.FeedInPrice,
		},
		Storage: model.DefaultStorageParams(0.01),
		Profiles: model.Profiles{
			DemandFraction: in.Demand.Scale(1 / in.Demand.Sum()),
			PVFraction:     in.PV.Scale(0.25),
		},
		Options: sizing.Options{Horizon: n},
	}
	res, err := sizing.New(solver.NewSimplex(), nil).Run(context.Background(), sc)
	require.NoError(t, err)
	require.Greater(t, res.CapacityKWh(), 0.0)
	return res, sc
}

func TestOptimizedCostNotAboveReplay(t *testing.T) {
	in := household(48)
	res, sc := sizeFor(t, in)

	b := newBattery(t, model.BatteryParamsFor(res.CapacityKWh(), sc.Storage), 0)
	replay, err := New().Run(in, b, strategy.SelfConsumption{})
	require.NoError(t, err)

	pricing := Pricing{ElectricityPrice: in.ElectricityPrice, FeedInPrice: in.FeedInPrice}
	lpCost := OperatingCost(res.Flows, pricing)
	assert.LessOrEqual(t, lpCost, replay.TotalCost+1e-6)
}

func TestOptimizedPlanReplaysExactly(t *testing.T) {
	in := household(48)
	res, sc := sizeFor(t, in)
	f := res.Flows

	b := newBattery(t, model.BatteryParamsFor(f.CapacityKWh, sc.Storage), f.SOC[f.Len()-1])
	replay, err := New().Run(in, b, strategy.PlanFromFlows("lp", f))
	require.NoError(t, err)

	for i := 0; i < f.Len(); i++ {
		require.InDelta(t, f.SOC[i], replay.Flows.SOC[i], 1e-6, "hour %d", i)
	}
	pricing := Pricing{ElectricityPrice: in.ElectricityPrice, FeedInPrice: in.FeedInPrice}
	assert.InDelta(t, OperatingCost(f, pricing), replay.TotalCost, 1e-6)

	ledger := BuildLedger(f, pricing, start, f.SOC[f.Len()-1])
	assert.InDelta(t, replay.TotalCost, ledger[len(ledger)-1].CumCost, 1e-6)
}

func TestOracleNotWorseThanSelfConsumption(t *testing.T) {
	in := household(48)
	p := model.BatteryParams{CapacityKWh: 12, PowerKW: 2, ChargeEfficiency: 1, DischargeEfficiency: 1}

	oracle, err := strategy.NewOracleStrategy(strategy.OracleInputs{
		Demand:           in.Demand,
		PV:               in.PV,
		ElectricityPrice: in.ElectricityPrice,
		FeedInPrice:      in.FeedInPrice,
	}, p, 0, strategy.OracleParams{SocSteps: 12, PowerSteps: 2})
	require.NoError(t, err)

	withOracle, err := New().Run(in, newBattery(t, p, 0), oracle)
	require.NoError(t, err)
	withRule, err := New().Run(in, newBattery(t, p, 0), strategy.SelfConsumption{})
	require.NoError(t, err)

	assert.InDelta(t, oracle.PlannedCost(), withOracle.TotalCost, 1e-9)
	assert.LessOrEqual(t, withOracle.TotalCost, withRule.TotalCost+1e-9)
}

func TestWriteLedgerCSV(t *testing.T) {
	in := household(24)
	b := newBattery(t, model.BatteryParams{CapacityKWh: 5, PowerKW: 1, ChargeEfficiency: 1, DischargeEfficiency: 1}, 0)
	res, err := New().Run(in, b, strategy.SelfConsumption{})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ledger.csv")
	require.NoError(t, WriteLedgerCSV(path, res.Ledger))

	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	records, err := csv.NewReader(fh).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 25)
	assert.Equal(t, "index", records[0][0])
	assert.Equal(t, "2023-01-01T08:00:00Z", records[9][1])
	assert.Equal(t, "CHARGING", records[9][10])
	assert.Equal(t, "1.000000", records[9][6])
}

func TestReplayComparison(t *testing.T) {
	in := household(48)
	res, sc := sizeFor(t, in)

	cmp, err := Replay(sc, res, strategy.Spec{Name: "self_consumption"}, start)
	require.NoError(t, err)
	assert.Equal(t, "optimized", cmp.Optimized.Strategy)
	assert.Equal(t, "self_consumption", cmp.Replay.Strategy)
	require.Len(t, cmp.Optimized.Ledger, 48)
	require.Len(t, cmp.Replay.Ledger, 48)

	pricing := Pricing{ElectricityPrice: in.ElectricityPrice, FeedInPrice: in.FeedInPrice}
	assert.InDelta(t, OperatingCost(res.Flows, pricing), cmp.Optimized.TotalCost, 1e-9)
	assert.InDelta(t, cmp.Replay.TotalCost-cmp.Optimized.TotalCost, cmp.ExtraCost, 1e-12)
	assert.True(t, cmp.ReplayMetrics.SelfSufficiency.Defined)

	for i := range in.Demand {
		require.InDelta(t, in.Demand[i], cmp.Replay.Flows.Demand[i], 1e-9)
	}
}

func TestReplayErrors(t *testing.T) {
	in := household(24)
	res, sc := sizeFor(t, in)

	_, err := Replay(sc, nil, strategy.Spec{}, start)
	assert.Error(t, err)
	_, err = Replay(sc, res, strategy.Spec{Name: "moon"}, start)
	assert.Error(t, err)

	short := sc
	short.Options.Horizon = 12
	_, err = Replay(short, res, strategy.Spec{}, start)
	assert.ErrorIs(t, err, model.ErrShapeMismatch)
}
