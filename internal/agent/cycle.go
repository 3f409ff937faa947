// internal/agent/cycle.go
package agent

import (
	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
)

// criticalCycle reports whether any single step description failed at least
// twice within the last window records. It is the signal that the current
// approach is not working and the plan needs a genuinely different angle.
func criticalCycle(records []schemas.ExecutionRecord, window int) bool {
	if window < 2 {
		window = 2
	}
	start := len(records) - window
	if start < 0 {
		start = 0
	}
	failures := make(map[string]int)
	for _, rec := range records[start:] {
		if !rec.Failed() {
			continue
		}
		failures[rec.Description]++
		if failures[rec.Description] >= 2 {
			return true
		}
	}
	return false
}

// repeatCycle reports whether the run just produced the same record twice in
// a row: identical description and identical outcome.
func repeatCycle(records []schemas.ExecutionRecord) bool {
	n := len(records)
	if n < 2 {
		return false
	}
	a, b := records[n-2], records[n-1]
	return a.Description == b.Description && a.Outcome == b.Outcome
}

// cycleWarnings renders the active cycle flags as planner-facing warnings.
func cycleWarnings(records []schemas.ExecutionRecord, window int) []string {
	var warnings []string
	if criticalCycle(records, window) {
		warnings = append(warnings,
			"the same step has failed repeatedly; do not plan it again, take a different approach")
	}
	if repeatCycle(records) {
		warnings = append(warnings,
			"the last two steps were identical with identical outcomes; the run is looping")
	}
	return warnings
}
