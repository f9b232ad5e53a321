package analysis

import (
	"math"
	"sort"

	"battery-sizer/internal/model"
)

// SeriesStats summarizes one hourly series.
type SeriesStats struct {
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	P05   float64 `json:"p05"`
	P95   float64 `json:"p95"`
	// PeakHour is the index of the first maximum.
	PeakHour int `json:"peak_hour"`
	// NonZeroHours counts hours with a positive value.
	NonZeroHours int `json:"nonzero_hours"`
}

func DescribeSeries(ts model.TimeSeries) SeriesStats {
	s := SeriesStats{}
	if len(ts) == 0 {
		return s
	}
	s.Count = len(ts)

	sum := 0.0
	minv := math.Inf(1)
	maxv := math.Inf(-1)
	vals := make([]float64, 0, len(ts))
	for i, v := range ts {
		vals = append(vals, v)
		sum += v
		if v < minv {
			minv = v
		}
		if v > maxv {
			maxv = v
			s.PeakHour = i
		}
		if v > 0 {
			s.NonZeroHours++
		}
	}
	sort.Float64s(vals)
	s.Sum = sum
	s.Min = minv
	s.Max = maxv
	s.Mean = sum / float64(len(vals))
	s.P05 = percentileSorted(vals, 0.05)
	s.P95 = percentileSorted(vals, 0.95)
	return s
}

// HourOfDayMean averages a series by hour of day, assuming it starts at
// midnight.
func HourOfDayMean(ts model.TimeSeries) [24]float64 {
	var sum [24]float64
	var n [24]int
	for i, v := range ts {
		sum[i%24] += v
		n[i%24]++
	}
	var out [24]float64
	for h := range out {
		if n[h] > 0 {
			out[h] = sum[h] / float64(n[h])
		}
	}
	return out
}

func percentileSorted(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	// Linear interpolation between order stats.
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
