package reporting

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/xkilldash9x/sentinai-cli/api/schemas"
	"github.com/xkilldash9x/sentinai-cli/internal/owasp"
	"github.com/xkilldash9x/sentinai-cli/internal/results"
)

// TextReporter prints tab-aligned tables for a terminal.
type TextReporter struct {
	writer io.WriteCloser
}

// NewTextReporter creates a text reporter that takes ownership of writer.
func NewTextReporter(writer io.WriteCloser) *TextReporter {
	return &TextReporter{writer: writer}
}

func (r *TextReporter) Write(envelope *Envelope) error {
	tw := tabwriter.NewWriter(r.writer, 0, 4, 2, ' ', 0)

	if envelope.Metrics != nil {
		writeMetrics(tw, envelope.Metrics)
	}

	switch {
	case len(envelope.Results) == 1 && envelope.Metrics == nil:
		writeResultDetail(tw, envelope.Results[0])
	case len(envelope.Results) > 0:
		writeResultTable(tw, envelope.Results)
	case envelope.Metrics == nil:
		fmt.Fprintln(tw, "No analysis results.")
	}
	return tw.Flush()
}

func (r *TextReporter) Close() error {
	return r.writer.Close()
}

// categoryLabel renders Unclassified as "-".
func categoryLabel(c owasp.Category) string {
	if !c.Classified() {
		return "-"
	}
	return string(c)
}

func writeMetrics(w io.Writer, m *schemas.DashboardMetrics) {
	fmt.Fprintf(w, "Total scans:\t%d\n", m.TotalScans)
	fmt.Fprintf(w, "Total vulnerabilities:\t%d\n", m.TotalVulnerabilities)
	for _, s := range schemas.Severities {
		fmt.Fprintf(w, "  %s\t%d\n", s, m.SeverityDistribution.Count(s))
	}
	if len(m.RiskTrend) > 0 {
		fmt.Fprintln(w, "\nDATE\tAVERAGE RISK")
		for _, p := range m.RiskTrend {
			fmt.Fprintf(w, "%s\t%.2f\n", p.Date, p.AverageRisk)
		}
	}
	if len(m.RecentScans) > 0 {
		fmt.Fprintln(w, "\nRECENT SCANS")
		fmt.Fprintln(w, "ID\tTYPE\tRISK\tFINDINGS\tCREATED")
		for _, r := range m.RecentScans {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", r.ID, r.InputType, r.RiskScore, len(r.Vulnerabilities), r.CreatedAt)
		}
	}
	fmt.Fprintln(w)
}

func writeResultTable(w io.Writer, rs []results.ClassifiedResult) {
	fmt.Fprintln(w, "ID\tTYPE\tRISK\tFINDINGS\tCATEGORIES\tCREATED")
	for _, cr := range rs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			cr.ID, cr.InputType, cr.RiskScore, len(cr.Findings), summarizeCategories(cr.CategoryCounts), cr.CreatedAt)
	}
}

func writeResultDetail(w io.Writer, cr results.ClassifiedResult) {
	fmt.Fprintf(w, "Scan:\t%s\n", cr.ID)
	fmt.Fprintf(w, "Input type:\t%s\n", cr.InputType)
	fmt.Fprintf(w, "Risk score:\t%d/%d\n", cr.RiskScore, schemas.MaxRiskScore)
	fmt.Fprintf(w, "Created:\t%s\n\n", cr.CreatedAt)

	if len(cr.Findings) == 0 {
		fmt.Fprintln(w, "No vulnerabilities detected.")
		return
	}
	fmt.Fprintln(w, "SEVERITY\tOWASP\tTYPE\tLOCATION\tSTAGE")
	for _, f := range results.Prioritize(cr.Findings) {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			f.Severity, categoryLabel(f.Category), f.Type, f.Location, f.KillChainStage)
	}
}

// summarizeCategories lists the built-in categories in their fixed order, then
// any custom ones alphabetically, then the unclassified count.
func summarizeCategories(counts results.CategoryCounts) string {
	var parts []string
	builtin := make(map[string]bool, len(owasp.Categories))
	for _, c := range owasp.Categories {
		builtin[c.String()] = true
		if n := counts[c.String()]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", c, n))
		}
	}
	var custom []string
	for label := range counts {
		if !builtin[label] && label != owasp.Unclassified.String() {
			custom = append(custom, label)
		}
	}
	sort.Strings(custom)
	for _, label := range custom {
		parts = append(parts, fmt.Sprintf("%s:%d", label, counts[label]))
	}
	if n := counts[owasp.Unclassified.String()]; n > 0 {
		parts = append(parts, fmt.Sprintf("-:%d", n))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}
