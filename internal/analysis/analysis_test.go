package analysis

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battery-sizer/internal/model"
)

func TestComputeMetrics(t *testing.T) {
	m := ComputeMetrics(model.FlowTotals{
		Demand:     4000,
		PVGen:      5000,
		GridExport: 2000,
		GridImport: 1000,
	})
	assert.True(t, m.SelfConsumption.Defined)
	assert.InDelta(t, 60, m.SelfConsumption.Value, 1e-12)
	assert.InDelta(t, 75, m.SelfSufficiency.Value, 1e-12)
	assert.InDelta(t, 40, m.FeedInPercentage.Value, 1e-12)
}

func TestComputeMetricsZeroPV(t *testing.T) {
	m := ComputeMetrics(model.FlowTotals{Demand: 8760, GridImport: 8760})
	assert.False(t, m.SelfConsumption.Defined)
	assert.False(t, m.FeedInPercentage.Defined)
	require.True(t, m.SelfSufficiency.Defined)
	assert.Equal(t, 0.0, m.SelfSufficiency.Value)
	assert.Equal(t, "N/A", m.FeedInPercentage.String())

	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"self_consumption":null,"self_sufficiency":0,"feedin_percentage":null}`, string(b))

	var back Metrics
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, m, back)
}

func TestPercentageRounding(t *testing.T) {
	p := percentOf(1, 3)
	assert.InDelta(t, 33.3333333, p.Value, 1e-6)
	assert.Equal(t, 33.33, p.Rounded())
	assert.Equal(t, "33.33 %", p.String())
	require.NotNil(t, p.Ptr())
	assert.Equal(t, 33.33, *p.Ptr())
	assert.Nil(t, Percentage{}.Ptr())
}

func TestAnalyze(t *testing.T) {
	f := Analyze(FinancialInputs{
		System: model.SystemParams{
			AnnualDemandKWh:  4000,
			PVCapacityKWp:    5,
			ElectricityPrice: 0.30,
			FeedInPrice:      0.08,
		},
		Economics:   model.EconomicParams{PVUnitCost: 1200, BatteryUnitCost: 500},
		Totals:      model.FlowTotals{Demand: 4000, PVGen: 4750, GridExport: 2000, GridImport: 1500},
		CapacityKWh: 4,
	})

	assert.InDelta(t, 1200, f.BaselineCost, 1e-9)
	assert.InDelta(t, 450, f.GridImportCost, 1e-9)
	assert.InDelta(t, 160, f.FeedInIncome, 1e-9)
	assert.InDelta(t, 910, f.YearlySavings, 1e-9)
	assert.InDelta(t, 6000, f.PVInvestment, 1e-9)
	assert.InDelta(t, 2000, f.BatteryInvestment, 1e-9)
	assert.InDelta(t, 8000, f.TotalInvestment, 1e-9)
	require.True(t, f.Payback.Defined)
	assert.InDelta(t, 8000.0/910.0, f.Payback.Years, 1e-9)
	assert.Equal(t, DefaultCurrency, f.Inputs.Currency)
}

func TestAnalyzeUndefinedPayback(t *testing.T) {
	// Nothing changes against the baseline: no savings.
	f := Analyze(FinancialInputs{
		System:   model.SystemParams{AnnualDemandKWh: 8760, ElectricityPrice: 30, FeedInPrice: 10},
		Totals:   model.FlowTotals{Demand: 8760, GridImport: 8760},
		Currency: "ct",
	})
	assert.InDelta(t, 0, f.YearlySavings, 1e-9)
	assert.False(t, f.Payback.Defined)
	assert.Equal(t, "N/A", f.Payback.String())

	b, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"payback_years":null`)
}

func TestFinancialsDecode(t *testing.T) {
	in := Financials{YearlySavings: 120, Payback: Payback{Years: 8.3333, Defined: true}}
	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out Financials
	require.NoError(t, json.Unmarshal(b, &out))
	assert.True(t, out.Payback.Defined)
	assert.InDelta(t, 8.33, out.Payback.Years, 1e-9)
	assert.InDelta(t, 120, out.YearlySavings, 1e-9)

	out.Payback = Payback{Years: 3, Defined: true}
	require.NoError(t, json.Unmarshal([]byte(`{"payback_years":null}`), &out))
	assert.False(t, out.Payback.Defined)
	assert.Equal(t, "N/A", out.Payback.String())

	assert.Error(t, json.Unmarshal([]byte(`{"payback_years":"soon"}`), &out))
}

func TestRowsOrder(t *testing.T) {
	f := Analyze(FinancialInputs{
		System:      model.SystemParams{AnnualDemandKWh: 4000, PVCapacityKWp: 5, ElectricityPrice: 0.3, FeedInPrice: 0.08},
		Economics:   model.EconomicParams{PVUnitCost: 1200, BatteryUnitCost: 500},
		Totals:      model.FlowTotals{Demand: 4000, PVGen: 4750, GridExport: 2000, GridImport: 1500},
		CapacityKWh: 4,
	})
	rows := f.Rows()

	var labels []string
	var sections []string
	for _, r := range rows {
		labels = append(labels, r.Label)
		if r.Section {
			sections = append(sections, r.Label)
			assert.Empty(t, r.Value)
		}
	}
	assert.Equal(t, []string{
		"Yearly Energy Costs (Without PV+BESS)",
		"Yearly Energy Costs (With PV+BESS)",
		"Investment Costs",
		"Savings and Payback Period",
	}, sections)
	assert.Equal(t, "Electricity Price", labels[0])
	assert.Equal(t, "Payback Period", labels[len(labels)-1])
	assert.Equal(t, "8.79 Yr", rows[len(rows)-1].Value)
	assert.Equal(t, "1200.00 €/Yr", rows[5].Value)
	assert.Equal(t, "8000.00 €", rows[17].Value)
}

func TestDescribeSeries(t *testing.T) {
	s := DescribeSeries(model.TimeSeries{0, 1, 2, 3, 4, 0})
	assert.Equal(t, 6, s.Count)
	assert.Equal(t, 10.0, s.Sum)
	assert.Equal(t, 0.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
	assert.Equal(t, 4, s.PeakHour)
	assert.Equal(t, 4, s.NonZeroHours)
	assert.InDelta(t, 10.0/6.0, s.Mean, 1e-12)
	// sorted 0,0,1,2,3,4: pos 0.25 -> 0, pos 4.75 -> 3.75
	assert.InDelta(t, 0, s.P05, 1e-12)
	assert.InDelta(t, 3.75, s.P95, 1e-12)

	assert.Equal(t, SeriesStats{}, DescribeSeries(nil))
}

func TestHourOfDayMean(t *testing.T) {
	ts := make(model.TimeSeries, 48)
	ts[12] = 2
	ts[36] = 4
	m := HourOfDayMean(ts)
	assert.Equal(t, 3.0, m[12])
	assert.Equal(t, 0.0, m[0])
}

func TestRankByPayback(t *testing.T) {
	fin := func(years float64, defined bool, savings float64) Financials {
		return Financials{Payback: Payback{Years: years, Defined: defined}, YearlySavings: savings}
	}
	in := []Ranked{
		{Name: "failed", Err: errors.New("boom")},
		{Name: "never", Financials: fin(0, false, -10)},
		{Name: "slow", Financials: fin(12, true, 100)},
		{Name: "flat", Financials: fin(0, false, 0)},
		{Name: "fast", Financials: fin(6, true, 300)},
	}
	out := RankByPayback(in)
	var names []string
	for _, r := range out {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"fast", "slow", "flat", "never", "failed"}, names)
	assert.Equal(t, "failed", in[0].Name)
}
