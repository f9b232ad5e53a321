package analysis

import "sort"

// Ranked is one scenario outcome entering a ranking.
type Ranked struct {
	Name       string
	Financials Financials
	// Err marks a scenario that produced no result.
	Err error
}

// RankByPayback orders outcomes by payback, shortest first. Undefined
// paybacks follow the defined ones (higher savings first) and failed
// scenarios come last. The input order breaks ties.
func RankByPayback(in []Ranked) []Ranked {
	out := make([]Ranked, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.Err == nil) != (b.Err == nil) {
			return a.Err == nil
		}
		if a.Err != nil {
			return false
		}
		pa, pb := a.Financials.Payback, b.Financials.Payback
		if pa.Defined != pb.Defined {
			return pa.Defined
		}
		if pa.Defined {
			return pa.Years < pb.Years
		}
		return a.Financials.YearlySavings > b.Financials.YearlySavings
	})
	return out
}
