package models

import (
	"battery-sizer/internal/config"
	"battery-sizer/internal/data"
	"battery-sizer/internal/strategy"
)

// SizingRequest is the body of POST /api/v1/sizing.
type SizingRequest struct {
	Name string `json:"name,omitempty"`
	// StorageFile names a preset in the server's storage directory; fields
	// under Storage override it.
	StorageFile string                 `json:"storage_file,omitempty"`
	System      config.SystemConfig    `json:"system"`
	Storage     config.StorageConfig   `json:"storage"`
	Economics   config.EconomicsConfig `json:"economics"`
	Profiles    ProfilesInput          `json:"profiles"`
	Options     SizingOptions          `json:"options,omitempty"`
}

// ProfilesInput is either a source description or inline hourly arrays.
type ProfilesInput struct {
	Source         *data.SourceSpec `json:"source,omitempty"`
	DemandFraction []float64        `json:"demand_fraction,omitempty"`
	PVFraction     []float64        `json:"pv_fraction,omitempty"`
}

// Inline reports whether the profiles were sent in the body.
func (p ProfilesInput) Inline() bool {
	return len(p.DemandFraction) > 0 || len(p.PVFraction) > 0
}

type SizingOptions struct {
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"` // 0 = server default
	HorizonHours   int     `json:"horizon_hours,omitempty"`   // 0 = full year
	IncludeHourly  bool    `json:"include_hourly,omitempty"`
	Verify         bool    `json:"verify,omitempty"`
	// Replay, when set, replays the sized battery under a rule-based strategy.
	Replay *strategy.Spec `json:"replay,omitempty"`
}

// CompareRequest is the body of POST /api/v1/sizing/compare. Each variation
// overlays its non-zero fields onto the base.
type CompareRequest struct {
	Base       SizingRequest `json:"base"`
	Variations []Variation   `json:"variations"`
}

type Variation struct {
	Name      string                 `json:"name"`
	System    config.SystemConfig    `json:"system"`
	Storage   config.StorageConfig   `json:"storage"`
	Economics config.EconomicsConfig `json:"economics"`
}
