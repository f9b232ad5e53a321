package model

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnuity_ReferenceStorage(t *testing.T) {
	// 10 years at 3%: capital recovery factor ~0.117231
	rate, err := Annuity(1000, 10, 0.03)
	require.NoError(t, err)
	assert.InDelta(t, 117.2305, rate, 1e-3)
}

func TestAnnuity_ZeroRateIsStraightLine(t *testing.T) {
	rate, err := Annuity(1200, 12, 0)
	require.NoError(t, err)
	assert.InDelta(t, 100, rate, 1e-12)
}

func TestAnnuity_Invalid(t *testing.T) {
	_, err := Annuity(1000, 0, 0.03)
	assert.ErrorIs(t, err, ErrInvalidParams)
	_, err = Annuity(-1, 10, 0.03)
	assert.ErrorIs(t, err, ErrInvalidParams)
	_, err = Annuity(1000, 10, -0.01)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestProfilesValidate(t *testing.T) {
	ok := Profiles{
		DemandFraction: make(TimeSeries, HoursPerYear),
		PVFraction:     make(TimeSeries, HoursPerYear),
	}
	assert.NoError(t, ok.Validate(HoursPerYear))

	short := Profiles{
		DemandFraction: make(TimeSeries, HoursPerYear),
		PVFraction:     make(TimeSeries, HoursPerYear-1),
	}
	assert.ErrorIs(t, short.Validate(HoursPerYear), ErrShapeMismatch)

	wrongHorizon := Profiles{
		DemandFraction: make(TimeSeries, 24),
		PVFraction:     make(TimeSeries, 24),
	}
	assert.ErrorIs(t, wrongHorizon.Validate(HoursPerYear), ErrShapeMismatch)
	assert.NoError(t, wrongHorizon.Validate(24))

	negative := Profiles{DemandFraction: TimeSeries{0, -1}, PVFraction: TimeSeries{0, 0}}
	assert.ErrorIs(t, negative.Validate(2), ErrShapeMismatch)

	nan := Profiles{DemandFraction: TimeSeries{0, 0}, PVFraction: TimeSeries{math.NaN(), 0}}
	err := nan.Validate(2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
	assert.Contains(t, err.Error(), "pv[0]")
}

func TestTimeSeriesScaleDoesNotAlias(t *testing.T) {
	ts := TimeSeries{1, 2, 3}
	scaled := ts.Scale(2)
	assert.Equal(t, TimeSeries{2, 4, 6}, scaled)
	assert.Equal(t, TimeSeries{1, 2, 3}, ts)
	assert.Equal(t, 6.0, ts.Sum())
	assert.Equal(t, 0.0, TimeSeries(nil).Sum())
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, SystemParams{AnnualDemandKWh: 0, PVCapacityKWp: 0}.Validate())
	assert.ErrorIs(t, SystemParams{AnnualDemandKWh: -1}.Validate(), ErrInvalidParams)
	assert.ErrorIs(t, SystemParams{FeedInPrice: math.Inf(1)}.Validate(), ErrInvalidParams)

	assert.NoError(t, DefaultStorageParams(100).Validate())
	sp := DefaultStorageParams(100)
	sp.LossRate = 1
	assert.ErrorIs(t, sp.Validate(), ErrInvalidParams)
	sp = DefaultStorageParams(100)
	sp.PowerToCapacityRatio = 0
	assert.ErrorIs(t, sp.Validate(), ErrInvalidParams)
	sp = DefaultStorageParams(100)
	sp.ChargeEfficiency = 1.2
	assert.ErrorIs(t, sp.Validate(), ErrInvalidParams)

	assert.ErrorIs(t, EconomicParams{PVUnitCost: -5}.Validate(), ErrInvalidParams)
}

func TestFlowsTotals(t *testing.T) {
	f := NewFlows(3)
	f.Demand = []float64{1, 1, 1}
	f.PVGen = []float64{0, 2, 0}
	f.GridImport = []float64{1, 0, 0.5}
	f.GridExport = []float64{0, 0.5, 0}
	tot := f.Totals()
	assert.Equal(t, 3.0, tot.Demand)
	assert.Equal(t, 2.0, tot.PVGen)
	assert.Equal(t, 1.5, tot.GridImport)
	assert.Equal(t, 0.5, tot.GridExport)
	assert.Equal(t, 3, f.Len())
}

func TestBattery_ChargeDischargeWithLoss(t *testing.T) {
	b, err := NewBattery(BatteryParams{
		CapacityKWh:         10,
		PowerKW:             2,
		LossRate:            0.01,
		ChargeEfficiency:    1,
		DischargeEfficiency: 1,
	}, 5)
	require.NoError(t, err)

	// Charge request above the power limit is clipped.
	res, err := b.ApplyDispatch(Dispatch{PowerKW: -5}, 1)
	require.NoError(t, err)
	assert.InDelta(t, -2, res.PowerKW, 1e-12)
	assert.InDelta(t, 2, res.ChargeKWh, 1e-12)
	assert.InDelta(t, 0.05, res.LossKWh, 1e-12)
	assert.InDelta(t, 5*0.99+2, b.State.SOCKWh, 1e-12)

	// Discharge limited by stored energy.
	b.State.SOCKWh = 1
	res, err = b.ApplyDispatch(Dispatch{PowerKW: 2}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.99, res.DischargeKWh, 1e-12)
	assert.InDelta(t, 0, b.State.SOCKWh, 1e-12)
	assert.Equal(t, ActionDischarging, ActionFromPowerKW(res.PowerKW))
}

func TestBattery_ChargeLimitedByCapacity(t *testing.T) {
	b, err := NewBattery(BatteryParams{CapacityKWh: 4, PowerKW: 4, ChargeEfficiency: 0.5, DischargeEfficiency: 1}, 3)
	require.NoError(t, err)
	res, err := b.ApplyDispatch(Dispatch{PowerKW: -4}, 1)
	require.NoError(t, err)
	// 1 kWh of room at 50% efficiency takes 2 kWh from the bus.
	assert.InDelta(t, 2, res.ChargeKWh, 1e-12)
	assert.InDelta(t, 4, b.State.SOCKWh, 1e-12)
}

func TestBattery_Validate(t *testing.T) {
	_, err := NewBattery(BatteryParams{CapacityKWh: 1, ChargeEfficiency: 1, DischargeEfficiency: 1}, 2)
	assert.Error(t, err)
	_, err = NewBattery(BatteryParams{CapacityKWh: 0, ChargeEfficiency: 1, DischargeEfficiency: 1}, 0)
	assert.NoError(t, err)
}
