package strategy

import (
	"fmt"
	"sort"

	"battery-sizer/internal/model"
)

// Spec names a strategy and its parameters, as given in requests and
// configuration.
type Spec struct {
	Name   string         `json:"name" yaml:"name"`
	Params map[string]any `json:"params,omitempty" yaml:"params"`
}

// Build constructs the strategy named by spec. The oracle needs the whole
// horizon up-front; the other strategies ignore in.
func Build(spec Spec, in OracleInputs, batt model.BatteryParams, initialSOC float64) (Strategy, error) {
	switch spec.Name {
	case "", "self_consumption":
		return SelfConsumption{}, nil
	case "idle":
		return Idle{}, nil
	case "schedule":
		return NewScheduleStrategy(ScheduleParams{
			ChargeStart:    getString(spec.Params, "charge_start", ""),
			ChargeEnd:      getString(spec.Params, "charge_end", ""),
			DischargeStart: getString(spec.Params, "discharge_start", ""),
			DischargeEnd:   getString(spec.Params, "discharge_end", ""),
		})
	case "oracle":
		return NewOracleStrategy(in, batt, initialSOC, OracleParams{
			SocSteps:   getInt(spec.Params, "soc_steps", 100),
			PowerSteps: getInt(spec.Params, "power_steps", 10),
		})
	default:
		return nil, fmt.Errorf("unknown strategy %q", spec.Name)
	}
}

// ParamInfo documents one strategy parameter.
type ParamInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
}

// Info documents one strategy.
type Info struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []ParamInfo `json:"parameters"`
}

// Catalog lists the strategies Build understands, sorted by name.
func Catalog() []Info {
	out := []Info{
		{
			Name:        "self_consumption",
			Description: "Stores PV surplus and discharges to cover any deficit. Never charges from the grid.",
			Parameters:  []ParamInfo{},
		},
		{
			Name:        "idle",
			Description: "Never dispatches the battery; the no-storage reference.",
			Parameters:  []ParamInfo{},
		},
		{
			Name:        "schedule",
			Description: "Self-consumption restricted to daily charge and discharge windows.",
			Parameters: []ParamInfo{
				{Name: "charge_start", Type: "string", Description: "Start of the charge window (HH:MM)", Default: "09:00"},
				{Name: "charge_end", Type: "string", Description: "End of the charge window (HH:MM)", Default: "17:00"},
				{Name: "discharge_start", Type: "string", Description: "Start of the discharge window (HH:MM)", Default: "17:00"},
				{Name: "discharge_end", Type: "string", Description: "End of the discharge window (HH:MM)", Default: "09:00"},
			},
		},
		{
			Name:        "oracle",
			Description: "Perfect-foresight dispatch of the sized battery by dynamic programming over a discretized SOC grid.",
			Parameters: []ParamInfo{
				{Name: "soc_steps", Type: "int", Description: "SOC discretization steps (higher = more accurate but slower)", Default: 100},
				{Name: "power_steps", Type: "int", Description: "Power discretization steps per direction", Default: 10},
			},
		},
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func getString(m map[string]any, key, def string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// getInt accepts the numeric shapes JSON and YAML decoders produce.
func getInt(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}
