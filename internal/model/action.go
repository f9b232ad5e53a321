package model

// Action is a human-friendly battery operating mode for an hour.
// Keep these values stable; they are intended for CSV output.
type Action string

const (
	ActionCharging    Action = "CHARGING"
	ActionIdle        Action = "IDLE"
	ActionDischarging Action = "DISCHARGING"
)

// ActionFromPowerKW maps a net battery power to an action.
// Convention: positive kW = discharge, negative kW = charge.
func ActionFromPowerKW(powerKW float64) Action {
	switch {
	case powerKW < 0:
		return ActionCharging
	case powerKW > 0:
		return ActionDischarging
	default:
		return ActionIdle
	}
}
