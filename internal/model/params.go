package model

import (
	"fmt"
	"math"
)

// SystemParams describes the household: its yearly demand, the installed
// PV system and the prices it trades energy at.
// Units:
// - AnnualDemandKWh: kWh/year
// - PVCapacityKWp: kWp
// - ElectricityPrice, FeedInPrice: currency/kWh
type SystemParams struct {
	AnnualDemandKWh  float64
	PVCapacityKWp    float64
	ElectricityPrice float64
	FeedInPrice      float64
}

func (p SystemParams) Validate() error {
	if !finiteNonNegative(p.AnnualDemandKWh) {
		return fmt.Errorf("%w: annual demand must be >= 0, got %v", ErrInvalidParams, p.AnnualDemandKWh)
	}
	if !finiteNonNegative(p.PVCapacityKWp) {
		return fmt.Errorf("%w: PV capacity must be >= 0, got %v", ErrInvalidParams, p.PVCapacityKWp)
	}
	if !finiteNonNegative(p.ElectricityPrice) {
		return fmt.Errorf("%w: electricity price must be >= 0, got %v", ErrInvalidParams, p.ElectricityPrice)
	}
	if !finiteNonNegative(p.FeedInPrice) {
		return fmt.Errorf("%w: feed-in price must be >= 0, got %v", ErrInvalidParams, p.FeedInPrice)
	}
	return nil
}

// StorageParams defines the physical and economic parameters of the battery
// being sized. The capacity itself is not a parameter; the optimizer picks it.
// Units:
// - LossRate: fraction of the stored energy lost per hour
// - PowerToCapacityRatio: kW of charge/discharge power per kWh of capacity
// - Efficiencies: 0..1
// - CostPerKWhYear: annualized cost of one kWh of capacity (see Annuity)
type StorageParams struct {
	LossRate             float64
	PowerToCapacityRatio float64
	ChargeEfficiency     float64
	DischargeEfficiency  float64
	CostPerKWhYear       float64
}

// Reference storage configuration.
const (
	DefaultLossRate             = 0.005
	DefaultPowerToCapacityRatio = 1.0 / 6.0
	DefaultLifetimeYears        = 10
	DefaultWACC                 = 0.03
)

// DefaultStorageParams returns the reference storage with the given
// annualized cost rate.
func DefaultStorageParams(costPerKWhYear float64) StorageParams {
	return StorageParams{
		LossRate:             DefaultLossRate,
		PowerToCapacityRatio: DefaultPowerToCapacityRatio,
		ChargeEfficiency:     1,
		DischargeEfficiency:  1,
		CostPerKWhYear:       costPerKWhYear,
	}
}

func (p StorageParams) Validate() error {
	if math.IsNaN(p.LossRate) || p.LossRate < 0 || p.LossRate >= 1 {
		return fmt.Errorf("%w: loss rate must be in [0, 1), got %v", ErrInvalidParams, p.LossRate)
	}
	if math.IsNaN(p.PowerToCapacityRatio) || math.IsInf(p.PowerToCapacityRatio, 0) || p.PowerToCapacityRatio <= 0 {
		return fmt.Errorf("%w: power to capacity ratio must be > 0, got %v", ErrInvalidParams, p.PowerToCapacityRatio)
	}
	if !(p.ChargeEfficiency > 0 && p.ChargeEfficiency <= 1) {
		return fmt.Errorf("%w: charge efficiency must be in (0, 1], got %v", ErrInvalidParams, p.ChargeEfficiency)
	}
	if !(p.DischargeEfficiency > 0 && p.DischargeEfficiency <= 1) {
		return fmt.Errorf("%w: discharge efficiency must be in (0, 1], got %v", ErrInvalidParams, p.DischargeEfficiency)
	}
	if !finiteNonNegative(p.CostPerKWhYear) {
		return fmt.Errorf("%w: storage cost rate must be >= 0, got %v", ErrInvalidParams, p.CostPerKWhYear)
	}
	return nil
}

// EconomicParams are the one-time capital costs used by the financial report.
// Units: PVUnitCost currency/kWp, BatteryUnitCost currency/kWh.
type EconomicParams struct {
	PVUnitCost      float64
	BatteryUnitCost float64
}

func (p EconomicParams) Validate() error {
	if !finiteNonNegative(p.PVUnitCost) {
		return fmt.Errorf("%w: PV unit cost must be >= 0, got %v", ErrInvalidParams, p.PVUnitCost)
	}
	if !finiteNonNegative(p.BatteryUnitCost) {
		return fmt.Errorf("%w: battery unit cost must be >= 0, got %v", ErrInvalidParams, p.BatteryUnitCost)
	}
	return nil
}

func finiteNonNegative(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0) && x >= 0
}
