package data

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sixdouglas/suncalc"

	"battery-sizer/internal/model"
)

// Synthetic reference-year defaults.
const (
	DefaultSyntheticYear        = 2023
	DefaultAnnualYieldKWhPerKWp = 950.0
	DefaultLatitude             = 48.14
	DefaultLongitude            = 11.58
)

// SyntheticOptions describe a generated reference year.
type SyntheticOptions struct {
	Latitude             float64
	Longitude            float64
	Year                 int
	Timezone             string
	AnnualYieldKWhPerKWp float64
}

func (o SyntheticOptions) withDefaults() SyntheticOptions {
	if o.Latitude == 0 && o.Longitude == 0 {
		o.Latitude, o.Longitude = DefaultLatitude, DefaultLongitude
	}
	if o.Year == 0 {
		o.Year = DefaultSyntheticYear
	}
	if o.AnnualYieldKWhPerKWp <= 0 {
		o.AnnualYieldKWhPerKWp = DefaultAnnualYieldKWhPerKWp
	}
	return o
}

// yearStart returns local midnight of Jan 1st, rejecting years that do not
// have exactly model.HoursPerYear hours.
func (o SyntheticOptions) yearStart() (time.Time, error) {
	loc := time.UTC
	if o.Timezone != "" {
		l, err := time.LoadLocation(o.Timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("timezone %q: %w", o.Timezone, err)
		}
		loc = l
	}
	start := time.Date(o.Year, time.January, 1, 0, 0, 0, 0, loc)
	days := time.Date(o.Year, time.December, 31, 12, 0, 0, 0, time.UTC).YearDay()
	if days*24 != model.HoursPerYear {
		return time.Time{}, fmt.Errorf("year %d has %d hours, reference year needs %d", o.Year, days*24, model.HoursPerYear)
	}
	return start, nil
}

// SyntheticPV returns PV output per kWp for every hour of the reference year:
// the sine of the sun altitude at mid-hour (zero below the horizon), scaled
// so the year sums to AnnualYieldKWhPerKWp.
func SyntheticPV(opts SyntheticOptions) (model.TimeSeries, error) {
	opts = opts.withDefaults()
	if opts.Latitude < -90 || opts.Latitude > 90 || opts.Longitude < -180 || opts.Longitude > 180 {
		return nil, fmt.Errorf("coordinates out of range: %v, %v", opts.Latitude, opts.Longitude)
	}
	start, err := opts.yearStart()
	if err != nil {
		return nil, err
	}
	out := make(model.TimeSeries, model.HoursPerYear)
	for h := range out {
		t := start.Add(time.Duration(h)*time.Hour + 30*time.Minute)
		pos := suncalc.GetPosition(t, opts.Latitude, opts.Longitude)
		if s := math.Sin(pos.Altitude); s > 0 {
			out[h] = s
		}
	}
	sum := out.Sum()
	if sum == 0 {
		return out, nil
	}
	return out.Scale(opts.AnnualYieldKWhPerKWp / sum), nil
}

// Household daily shapes (relative, per hour of day).
var (
	weekdayShape = [24]float64{
		0.55, 0.45, 0.40, 0.38, 0.38, 0.45, 0.75, 1.05, 0.95, 0.80, 0.75, 0.80,
		0.95, 0.90, 0.80, 0.78, 0.85, 1.05, 1.35, 1.50, 1.40, 1.20, 0.95, 0.70,
	}
	weekendShape = [24]float64{
		0.65, 0.52, 0.45, 0.40, 0.38, 0.40, 0.50, 0.70, 0.95, 1.15, 1.20, 1.25,
		1.35, 1.20, 1.00, 0.92, 0.95, 1.10, 1.35, 1.45, 1.35, 1.20, 1.00, 0.80,
	}
)

// StandardLoadProfile returns a residential load shape for the reference
// year: weekday and weekend daily curves with a winter-peaking seasonal
// factor, normalized to sum to 1.
func StandardLoadProfile(opts SyntheticOptions) (model.TimeSeries, error) {
	opts = opts.withDefaults()
	start, err := opts.yearStart()
	if err != nil {
		return nil, err
	}
	out := make(model.TimeSeries, model.HoursPerYear)
	for h := range out {
		t := start.Add(time.Duration(h) * time.Hour)
		shape := weekdayShape
		if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
			shape = weekendShape
		}
		season := 1 + 0.2*math.Cos(2*math.Pi*float64(t.YearDay()-15)/365)
		out[h] = shape[t.Hour()] * season
	}
	return out.Scale(1 / out.Sum()), nil
}

// SyntheticSource generates both profiles from SyntheticOptions.
type SyntheticSource struct {
	Options SyntheticOptions
}

func (s *SyntheticSource) Load(ctx context.Context) (model.Profiles, error) {
	if err := ctx.Err(); err != nil {
		return model.Profiles{}, err
	}
	pv, err := SyntheticPV(s.Options)
	if err != nil {
		return model.Profiles{}, err
	}
	demand, err := StandardLoadProfile(s.Options)
	if err != nil {
		return model.Profiles{}, err
	}
	return model.Profiles{DemandFraction: demand, PVFraction: pv}, nil
}
