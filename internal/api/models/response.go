package models

import (
	"time"

	"battery-sizer/internal/analysis"
	"battery-sizer/internal/backtest"
	"battery-sizer/internal/model"
	"battery-sizer/internal/sizing"
)

// SizingResponse is the result of one sizing run.
type SizingResponse struct {
	ID          string               `json:"id,omitempty"`
	Name        string               `json:"name"`
	Status      string               `json:"status"`
	CapacityKWh float64              `json:"capacity_kwh"`
	PowerKW     float64              `json:"power_kw"`
	Metrics     analysis.Metrics     `json:"metrics"`
	Financials  analysis.Financials  `json:"financials"`
	Report      []analysis.Row       `json:"report"`
	Totals      model.FlowTotals     `json:"totals"`
	Stats       sizing.Stats         `json:"stats"`
	Profiles    ProfileSummary       `json:"profiles"`
	Hourly      []backtest.LedgerRow `json:"hourly,omitempty"`
	Replay      *ReplaySummary       `json:"replay,omitempty"`
	Disclaimer  string               `json:"disclaimer"`
}

// ProfileSummary describes the main hourly series of a run.
type ProfileSummary struct {
	Demand     analysis.SeriesStats `json:"demand"`
	PV         analysis.SeriesStats `json:"pv"`
	GridImport analysis.SeriesStats `json:"grid_import"`
}

// ReplaySummary compares the optimized dispatch with a rule-based replay.
type ReplaySummary struct {
	Strategy      string               `json:"strategy"`
	OptimizedCost float64              `json:"optimized_cost"`
	ReplayCost    float64              `json:"replay_cost"`
	ExtraCost     float64              `json:"extra_cost"`
	Metrics       analysis.Metrics     `json:"metrics"`
	FinalSOC      float64              `json:"final_soc_kwh"`
	Hourly        []backtest.LedgerRow `json:"hourly,omitempty"`
}

// CompareResponse lists the variations ranked by payback.
type CompareResponse struct {
	Results []CompareResult `json:"results"`
}

type CompareResult struct {
	Rank        int                  `json:"rank"`
	Name        string               `json:"name"`
	Status      string               `json:"status"`
	CapacityKWh *float64             `json:"capacity_kwh,omitempty"`
	Metrics     *analysis.Metrics    `json:"metrics,omitempty"`
	Financials  *analysis.Financials `json:"financials,omitempty"`
	Error       *ErrorDetail         `json:"error,omitempty"`
}

// StoragePresetInfo is one entry of GET /api/v1/storage-presets.
type StoragePresetInfo struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	CapexPerKWh    float64 `json:"capex_per_kwh"`
	CostPerKWhYear float64 `json:"cost_per_kwh_year"`
	LossRate       float64 `json:"loss_rate"`
	Ratio          float64 `json:"power_to_capacity_ratio"`
	LifetimeYears  int     `json:"lifetime_years"`
}

// ProfileSourceInfo documents one profile source type.
type ProfileSourceInfo struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Fields      []string `json:"fields"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string    `json:"status"`
	Solver string    `json:"solver"`
	Store  bool      `json:"store"`
	Time   time.Time `json:"time"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
