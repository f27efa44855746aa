package results

import (
	"time"

	"github.com/xkilldash9x/sentinai-cli/api/schemas"
	"github.com/xkilldash9x/sentinai-cli/internal/owasp"
)

// Filter selects a subset of classified results. Zero-valued fields do not
// restrict anything.
type Filter struct {
	InputTypes []schemas.InputType
	// Categories and MinSeverity narrow the findings of each result; a result
	// left with no findings is dropped.
	Categories  []owasp.Category
	MinSeverity schemas.Severity
	// Since is inclusive, Until exclusive. When either is set, results with an
	// unparseable createdAt are dropped.
	Since time.Time
	Until time.Time
	// Limit keeps the first Limit results that pass, in source order. The
	// local cache lists newest first; service history is taken as received.
	Limit int
}

func (f Filter) narrowsFindings() bool {
	return len(f.Categories) > 0 || f.MinSeverity != ""
}

func (f Filter) keepsFinding(cf ClassifiedFinding) bool {
	if f.MinSeverity != "" && cf.Severity.Rank() < f.MinSeverity.Rank() {
		return false
	}
	if len(f.Categories) == 0 {
		return true
	}
	for _, c := range f.Categories {
		if cf.Category == c {
			return true
		}
	}
	return false
}

func (f Filter) keepsResult(r schemas.AnalysisResult) bool {
	if len(f.InputTypes) > 0 {
		found := false
		for _, it := range f.InputTypes {
			if r.InputType == it {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Since.IsZero() && f.Until.IsZero() {
		return true
	}
	created, err := r.CreatedTime()
	if err != nil {
		return false
	}
	if !f.Since.IsZero() && created.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !created.Before(f.Until) {
		return false
	}
	return true
}

// Apply returns the results that pass f, in their original order. Narrowed
// results carry fresh Findings, Vulnerabilities and CategoryCounts so the
// aggregate of the subset matches what is shown. The input is not modified.
func (f Filter) Apply(in []ClassifiedResult) []ClassifiedResult {
	out := make([]ClassifiedResult, 0, len(in))
	for _, cr := range in {
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
		if !f.keepsResult(cr.AnalysisResult) {
			continue
		}
		if f.narrowsFindings() {
			narrowed, ok := f.narrow(cr)
			if !ok {
				continue
			}
			cr = narrowed
		}
		out = append(out, cr)
	}
	return out
}

func (f Filter) narrow(cr ClassifiedResult) (ClassifiedResult, bool) {
	findings := make([]ClassifiedFinding, 0, len(cr.Findings))
	vulns := make([]schemas.Vulnerability, 0, len(cr.Findings))
	counts := CategoryCounts{}
	for _, cf := range cr.Findings {
		if !f.keepsFinding(cf) {
			continue
		}
		findings = append(findings, cf)
		vulns = append(vulns, cf.Vulnerability)
		counts[cf.Category.String()]++
	}
	if len(findings) == 0 {
		return ClassifiedResult{}, false
	}
	cr.Findings = findings
	cr.Vulnerabilities = vulns
	cr.CategoryCounts = counts
	return cr, true
}

// Raw strips the classification, yielding the results as the aggregator expects them.
func Raw(in []ClassifiedResult) []schemas.AnalysisResult {
	out := make([]schemas.AnalysisResult, len(in))
	for i, cr := range in {
		out[i] = cr.AnalysisResult
	}
	return out
}
