package model

// Flows are the hourly energy flows at the household bus (kWh per hour)
// together with the battery size they were computed for. The JSON names are
// the column names the financial layer and the exports rely on.
type Flows struct {
	Demand     []float64 `json:"demand"`
	GridExport []float64 `json:"grid_export"`
	Charge     []float64 `json:"charge"`
	GridImport []float64 `json:"grid_import"`
	PVGen      []float64 `json:"pv_gen"`
	Discharge  []float64 `json:"discharge"`

	// SOC is the stored energy at the end of each hour, kWh.
	SOC []float64 `json:"soc"`

	CapacityKWh float64 `json:"capacity_kwh"`
}

// FlowTotals are the yearly sums of the hourly flows, kWh.
type FlowTotals struct {
	Demand     float64 `json:"demand"`
	GridExport float64 `json:"grid_export"`
	Charge     float64 `json:"charge"`
	GridImport float64 `json:"grid_import"`
	PVGen      float64 `json:"pv_gen"`
	Discharge  float64 `json:"discharge"`
}

func (f *Flows) Len() int { return len(f.Demand) }

func (f *Flows) Totals() FlowTotals {
	return FlowTotals{
		Demand:     TimeSeries(f.Demand).Sum(),
		GridExport: TimeSeries(f.GridExport).Sum(),
		Charge:     TimeSeries(f.Charge).Sum(),
		GridImport: TimeSeries(f.GridImport).Sum(),
		PVGen:      TimeSeries(f.PVGen).Sum(),
		Discharge:  TimeSeries(f.Discharge).Sum(),
	}
}

// NewFlows allocates zeroed series for n hours.
func NewFlows(n int) *Flows {
	return &Flows{
		Demand:     make([]float64, n),
		GridExport: make([]float64, n),
		Charge:     make([]float64, n),
		GridImport: make([]float64, n),
		PVGen:      make([]float64, n),
		Discharge:  make([]float64, n),
		SOC:        make([]float64, n),
	}
}
