package results

import (
	"sort"
)

// Prioritize returns a copy of findings ordered most severe first. Findings of
// equal severity keep their service order. The input is not modified.
func Prioritize(findings []ClassifiedFinding) []ClassifiedFinding {
	out := make([]ClassifiedFinding, len(findings))
	copy(out, findings)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() > out[j].Severity.Rank()
	})
	return out
}
