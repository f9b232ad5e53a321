package backtest

import (
	"time"

	"battery-sizer/internal/model"
)

// LedgerRow is one row of per-hour output.
// This is the primary artifact for "what happened" in a run.
type LedgerRow struct {
	Index int       `json:"index"`
	Time  time.Time `json:"time"`

	DemandKWh     float64 `json:"demand_kwh"`
	PVKWh         float64 `json:"pv_kwh"`
	GridImportKWh float64 `json:"grid_import_kwh"`
	GridExportKWh float64 `json:"grid_export_kwh"`
	ChargeKWh     float64 `json:"charge_kwh"`
	DischargeKWh  float64 `json:"discharge_kwh"`

	SOCStart float64 `json:"soc_start_kwh"`
	SOCEnd   float64 `json:"soc_end_kwh"`

	Action model.Action `json:"action"`

	// Cost is import cost minus feed-in income for the hour.
	Cost    float64 `json:"cost"`
	CumCost float64 `json:"cum_cost"`
}

type Result struct {
	Strategy  string       `json:"strategy"`
	Flows     *model.Flows `json:"-"`
	Ledger    []LedgerRow  `json:"ledger,omitempty"`
	TotalCost float64      `json:"total_cost"`
	FinalSOC  float64      `json:"final_soc_kwh"`
}

// Pricing is the flat tariff the ledger settles with.
type Pricing struct {
	ElectricityPrice float64
	FeedInPrice      float64
}

// BuildLedger settles flows hour by hour. initialSOC is the stored energy
// before hour 0; for a balanced optimization result pass the last hour's SOC.
func BuildLedger(f *model.Flows, p Pricing, start time.Time, initialSOC float64) []LedgerRow {
	n := f.Len()
	rows := make([]LedgerRow, 0, n)
	cum := 0.0
	socStart := initialSOC
	for i := 0; i < n; i++ {
		cost := f.GridImport[i]*p.ElectricityPrice - f.GridExport[i]*p.FeedInPrice
		cum += cost
		var soc float64
		if i < len(f.SOC) {
			soc = f.SOC[i]
		}
		var ts time.Time
		if !start.IsZero() {
			ts = start.Add(time.Duration(i) * time.Hour)
		}
		rows = append(rows, LedgerRow{
			Index:         i,
			Time:          ts,
			DemandKWh:     f.Demand[i],
			PVKWh:         f.PVGen[i],
			GridImportKWh: f.GridImport[i],
			GridExportKWh: f.GridExport[i],
			ChargeKWh:     f.Charge[i],
			DischargeKWh:  f.Discharge[i],
			SOCStart:      socStart,
			SOCEnd:        soc,
			Action:        model.ActionFromPowerKW(f.Discharge[i] - f.Charge[i]),
			Cost:          cost,
			CumCost:       cum,
		})
		socStart = soc
	}
	return rows
}

// OperatingCost is the total grid cost of the flows.
func OperatingCost(f *model.Flows, p Pricing) float64 {
	t := f.Totals()
	return t.GridImport*p.ElectricityPrice - t.GridExport*p.FeedInPrice
}
