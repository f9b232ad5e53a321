package analysis

import (
	"encoding/json"
	"math"
	"strconv"

	"battery-sizer/internal/model"
)

// Percentage is a share in percent. Defined is false when the share has a
// zero denominator; such a value renders as "N/A" and marshals to null.
type Percentage struct {
	Value   float64
	Defined bool
}

func percentOf(num, den float64) Percentage {
	if den == 0 {
		return Percentage{}
	}
	return Percentage{Value: 100 * num / den, Defined: true}
}

// Rounded returns the value rounded to two decimals.
func (p Percentage) Rounded() float64 {
	return round2(p.Value)
}

func (p Percentage) String() string {
	if !p.Defined {
		return "N/A"
	}
	return strconv.FormatFloat(p.Rounded(), 'f', 2, 64) + " %"
}

func (p Percentage) MarshalJSON() ([]byte, error) {
	if !p.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(p.Rounded())
}

func (p *Percentage) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*p = Percentage{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*p = Percentage{Value: v, Defined: true}
	return nil
}

// Ptr returns the rounded value or nil when undefined, for storage columns.
func (p Percentage) Ptr() *float64 {
	if !p.Defined {
		return nil
	}
	v := p.Rounded()
	return &v
}

// Metrics are the self-consumption figures of one run.
type Metrics struct {
	// SelfConsumption is the share of PV production used on site.
	SelfConsumption Percentage `json:"self_consumption"`
	// SelfSufficiency is the share of demand met without grid import.
	SelfSufficiency Percentage `json:"self_sufficiency"`
	// FeedInPercentage is the share of PV production exported.
	FeedInPercentage Percentage `json:"feedin_percentage"`
}

func ComputeMetrics(t model.FlowTotals) Metrics {
	return Metrics{
		SelfConsumption:  percentOf(t.PVGen-t.GridExport, t.PVGen),
		SelfSufficiency:  percentOf(t.Demand-t.GridImport, t.Demand),
		FeedInPercentage: percentOf(t.GridExport, t.PVGen),
	}
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
