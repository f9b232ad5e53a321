package analysis

import (
	"encoding/json"
	"fmt"
	"strconv"

	"battery-sizer/internal/model"
)

// Disclaimer accompanies every financial report.
const Disclaimer = "Disclaimer: Results and analysis are estimations and may vary in real-world scenarios"

// DefaultCurrency is the symbol used when FinancialInputs leaves it empty.
const DefaultCurrency = "€"

type FinancialInputs struct {
	System      model.SystemParams
	Economics   model.EconomicParams
	Totals      model.FlowTotals
	CapacityKWh float64
	// Currency is the display symbol for money rows.
	Currency string
}

// Payback is the simple payback period. Defined is false when the yearly
// savings are not positive.
type Payback struct {
	Years   float64
	Defined bool
}

func (p Payback) String() string {
	if !p.Defined {
		return "N/A"
	}
	return strconv.FormatFloat(round2(p.Years), 'f', 2, 64) + " Yr"
}

func (p Payback) MarshalJSON() ([]byte, error) {
	if !p.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(round2(p.Years))
}

func (p *Payback) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*p = Payback{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*p = Payback{Years: v, Defined: true}
	return nil
}

// Financials is the yearly cash-flow comparison of one run. Money values
// are in the currency of the prices; energy in kWh.
type Financials struct {
	Inputs FinancialInputs `json:"-"`

	BaselineCost      float64 `json:"baseline_cost"`
	PVGenerated       float64 `json:"pv_generated_kwh"`
	FedIntoGrid       float64 `json:"fed_into_grid_kwh"`
	FeedInIncome      float64 `json:"feedin_income"`
	GridImport        float64 `json:"grid_import_kwh"`
	GridImportCost    float64 `json:"grid_import_cost"`
	PVInvestment      float64 `json:"pv_investment"`
	BatteryInvestment float64 `json:"battery_investment"`
	TotalInvestment   float64 `json:"total_investment"`
	YearlySavings     float64 `json:"yearly_savings"`
	Payback           Payback `json:"payback_years"`
}

// Analyze computes the cash-flow comparison. It never fails; a non-positive
// saving yields an undefined payback.
func Analyze(in FinancialInputs) Financials {
	if in.Currency == "" {
		in.Currency = DefaultCurrency
	}
	sys := in.System
	f := Financials{
		Inputs:            in,
		BaselineCost:      sys.AnnualDemandKWh * sys.ElectricityPrice,
		PVGenerated:       in.Totals.PVGen,
		FedIntoGrid:       in.Totals.GridExport,
		FeedInIncome:      in.Totals.GridExport * sys.FeedInPrice,
		GridImport:        in.Totals.GridImport,
		GridImportCost:    in.Totals.GridImport * sys.ElectricityPrice,
		PVInvestment:      sys.PVCapacityKWp * in.Economics.PVUnitCost,
		BatteryInvestment: in.CapacityKWh * in.Economics.BatteryUnitCost,
	}
	f.TotalInvestment = f.PVInvestment + f.BatteryInvestment
	f.YearlySavings = f.BaselineCost - f.GridImportCost + f.FeedInIncome
	if f.YearlySavings > 0 {
		f.Payback = Payback{Years: f.TotalInvestment / f.YearlySavings, Defined: true}
	}
	return f
}

// Row is one line of the presentation table. Section rows carry only a
// label and start a new block.
type Row struct {
	Label   string `json:"label"`
	Value   string `json:"value"`
	Section bool   `json:"section,omitempty"`
}

// Rows returns the report table in presentation order.
func (f Financials) Rows() []Row {
	cur := f.Inputs.Currency
	sys := f.Inputs.System
	money := func(v float64) string { return fmt.Sprintf("%.2f %s", v, cur) }
	perYear := func(v float64) string { return fmt.Sprintf("%.2f %s/Yr", v, cur) }
	energy := func(v float64) string { return fmt.Sprintf("%.2f kWh", v) }
	section := func(label string) Row { return Row{Label: label, Section: true} }

	return []Row{
		{Label: "Electricity Price", Value: fmt.Sprintf("%.4g %s/kWh", sys.ElectricityPrice, cur)},
		{Label: "Feed-in Tariff (FiT)", Value: fmt.Sprintf("%.4g %s/kWh", sys.FeedInPrice, cur)},
		{Label: "PV System Capacity", Value: fmt.Sprintf("%.4g kWp", sys.PVCapacityKWp)},
		{Label: "Energy Demand", Value: fmt.Sprintf("%.0f kWh/Yr", sys.AnnualDemandKWh)},
		section("Yearly Energy Costs (Without PV+BESS)"),
		{Label: "Energy bill for Grid Import", Value: perYear(f.BaselineCost)},
		section("Yearly Energy Costs (With PV+BESS)"),
		{Label: "Total PV Generated", Value: energy(f.PVGenerated)},
		{Label: "Fed-into-Grid", Value: energy(f.FedIntoGrid)},
		{Label: "Income from FiT", Value: money(f.FeedInIncome)},
		{Label: "Grid Import", Value: energy(f.GridImport)},
		{Label: "Energy bill for Grid Import", Value: perYear(f.GridImportCost)},
		section("Investment Costs"),
		{Label: "PV-CAPEX", Value: fmt.Sprintf("%.0f %s/kWp", f.Inputs.Economics.PVUnitCost, cur)},
		{Label: "BESS-CAPEX", Value: fmt.Sprintf("%.0f %s/kWh", f.Inputs.Economics.BatteryUnitCost, cur)},
		{Label: "PV Investment", Value: money(f.PVInvestment)},
		{Label: "BESS Investment", Value: money(f.BatteryInvestment)},
		{Label: "Total Investments", Value: money(f.TotalInvestment)},
		section("Savings and Payback Period"),
		{Label: "Energy bill Savings (with PV+BESS)", Value: perYear(f.YearlySavings)},
		{Label: "Payback Period", Value: f.Payback.String()},
	}
}
