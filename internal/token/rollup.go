package token

import "github.com/flowkernel/kernel/internal/clock"

// Rollup summarizes the waste/time accounting recorded across a token's
// history. It is a pure view computed on demand; nothing new is
// persisted.
type Rollup struct {
	TotalProcessTime float64 // seconds
	TotalWaitTime    float64 // seconds
	ValueAddedSteps  int
	NonValueAddedSteps int
	WasteCounts      map[WasteCategory]int
}

// ComputeRollup derives a Rollup from a token's history.
func ComputeRollup(history []HistoryEntry) Rollup {
	r := Rollup{WasteCounts: make(map[WasteCategory]int)}
	for _, e := range history {
		if e.Analytics == nil {
			continue
		}
		if d, err := clock.ParseDuration(e.Analytics.ProcessTime); err == nil {
			r.TotalProcessTime += d.Seconds()
		}
		if d, err := clock.ParseDuration(e.Analytics.WaitTime); err == nil {
			r.TotalWaitTime += d.Seconds()
		}
		if e.Analytics.ValueAdded != nil {
			if *e.Analytics.ValueAdded {
				r.ValueAddedSteps++
			} else {
				r.NonValueAddedSteps++
			}
		}
		for _, wc := range e.Analytics.WasteCategories {
			r.WasteCounts[wc]++
		}
	}
	return r
}
