// Package sizing turns a household description into the battery sizing LP,
// solves it and maps the solution back to hourly flows.
package sizing

import "battery-sizer/internal/model"

// Component labels. They double as variable name prefixes in the LP.
const (
	LabelBus        = "electricity"
	LabelPV         = "pv"
	LabelDemand     = "demand"
	LabelGridSupply = "grid_supply"
	LabelGridFeedIn = "grid_feed_in"
	LabelStorage    = "storage"
)

// FlowKind says whether a flow is fixed by a profile or chosen by the
// optimizer, and in which direction it crosses the bus.
type FlowKind int

const (
	FixedSource FlowKind = iota
	FixedSink
	VariableSource
	VariableSink
)

// Bus is the single electricity node every flow connects to.
type Bus struct {
	Label string
}

// Flow is one component connected to the bus.
type Flow struct {
	Label string
	Kind  FlowKind
	// Fixed is the hourly energy, kWh, of a fixed flow.
	Fixed model.TimeSeries
	// Max is an optional hourly upper limit of a variable flow, kWh.
	Max model.TimeSeries
	// VariableCost is paid per kWh of a variable flow. Negative values are
	// income.
	VariableCost float64
}

// Storage is the battery whose capacity is invested in.
type Storage struct {
	Label string
	// LossRate is the fraction of stored energy lost per hour.
	LossRate float64
	// InvestRelationInput/Output tie the charge/discharge power limit to
	// the invested capacity.
	InvestRelationInput  float64
	InvestRelationOutput float64
	InflowConversion     float64
	OutflowConversion    float64
	// EPCosts is the annualized cost per kWh of capacity.
	EPCosts float64
	// Balanced storages end the horizon at the level they started with.
	Balanced bool
}

// EnergySystem is the household around one bus.
type EnergySystem struct {
	Steps int
	Bus   Bus

	PV         Flow
	Demand     Flow
	GridSupply Flow
	GridFeedIn Flow
	Storage    Storage
}

// NewHouseholdSystem scales the profiles to absolute hourly energy and wires
// the components. It does not validate; see BuildModel.
func NewHouseholdSystem(sys model.SystemParams, st model.StorageParams, profiles model.Profiles) *EnergySystem {
	pv := profiles.PVFraction.Scale(sys.PVCapacityKWp)
	return &EnergySystem{
		Steps: profiles.DemandFraction.Len(),
		Bus:   Bus{Label: LabelBus},
		PV: Flow{
			Label: LabelPV,
			Kind:  FixedSource,
			Fixed: pv,
		},
		Demand: Flow{
			Label: LabelDemand,
			Kind:  FixedSink,
			Fixed: profiles.DemandFraction.Scale(sys.AnnualDemandKWh),
		},
		GridSupply: Flow{
			Label:        LabelGridSupply,
			Kind:         VariableSource,
			VariableCost: sys.ElectricityPrice,
		},
		GridFeedIn: Flow{
			Label:        LabelGridFeedIn,
			Kind:         VariableSink,
			Max:          pv,
			VariableCost: -sys.FeedInPrice,
		},
		Storage: Storage{
			Label:                LabelStorage,
			LossRate:             st.LossRate,
			InvestRelationInput:  st.PowerToCapacityRatio,
			InvestRelationOutput: st.PowerToCapacityRatio,
			InflowConversion:     st.ChargeEfficiency,
			OutflowConversion:    st.DischargeEfficiency,
			EPCosts:              st.CostPerKWhYear,
			Balanced:             true,
		},
	}
}
