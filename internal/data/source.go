package data

import (
	"context"
	"fmt"
	"strings"

	"battery-sizer/internal/model"
)

// Source produces the two yearly input shapes. Loaders do not check the
// length against a horizon; that is done when the model is built.
type Source interface {
	Load(ctx context.Context) (model.Profiles, error)
}

// Source types accepted by NewSource.
const (
	TypeCSV       = "csv"
	TypeJSON      = "json"
	TypeSynthetic = "synthetic"
	TypeHTTP      = "http"
)

// Default CSV column names.
const (
	DefaultDemandColumn = "h0"
	DefaultPVColumn     = "AC_Power"
)

// SourceSpec is the serializable description of a Source, as it appears in
// configuration files and API requests.
type SourceSpec struct {
	Type         string `yaml:"type" json:"type"`
	Path         string `yaml:"path" json:"path,omitempty"`
	URL          string `yaml:"url" json:"url,omitempty"`
	APIKey       string `yaml:"api_key" json:"-"`
	DemandColumn string `yaml:"demand_column" json:"demand_column,omitempty"`
	PVColumn     string `yaml:"pv_column" json:"pv_column,omitempty"`

	Latitude             float64 `yaml:"latitude" json:"latitude,omitempty"`
	Longitude            float64 `yaml:"longitude" json:"longitude,omitempty"`
	Year                 int     `yaml:"year" json:"year,omitempty"`
	Timezone             string  `yaml:"timezone" json:"timezone,omitempty"`
	AnnualYieldKWhPerKWp float64 `yaml:"annual_yield_kwh_per_kwp" json:"annual_yield_kwh_per_kwp,omitempty"`
}

// NewSource returns the Source described by spec. An empty type means csv.
func NewSource(spec SourceSpec) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(spec.Type)) {
	case "", TypeCSV:
		if spec.Path == "" {
			return nil, fmt.Errorf("csv source: path is required")
		}
		return &CSVSource{Path: spec.Path, DemandColumn: spec.DemandColumn, PVColumn: spec.PVColumn}, nil
	case TypeJSON:
		if spec.Path == "" {
			return nil, fmt.Errorf("json source: path is required")
		}
		return &JSONSource{Path: spec.Path}, nil
	case TypeSynthetic:
		return &SyntheticSource{Options: SyntheticOptions{
			Latitude:             spec.Latitude,
			Longitude:            spec.Longitude,
			Year:                 spec.Year,
			Timezone:             spec.Timezone,
			AnnualYieldKWhPerKWp: spec.AnnualYieldKWhPerKWp,
		}}, nil
	case TypeHTTP:
		if spec.URL == "" {
			return nil, fmt.Errorf("http source: url is required")
		}
		return NewHTTPSource(spec.URL, spec.APIKey, nil), nil
	default:
		return nil, fmt.Errorf("unknown profile source type %q", spec.Type)
	}
}

// StaticSource serves profiles already in memory (inline API payloads).
type StaticSource struct {
	Profiles model.Profiles
}

func (s StaticSource) Load(ctx context.Context) (model.Profiles, error) {
	if err := ctx.Err(); err != nil {
		return model.Profiles{}, err
	}
	return s.Profiles, nil
}
