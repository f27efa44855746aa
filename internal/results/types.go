package results

import (
	"context"

	"github.com/xkilldash9x/sentinai-cli/api/schemas"
	"github.com/xkilldash9x/sentinai-cli/internal/owasp"
)

// ClassifiedFinding is a vulnerability tagged for display.
type ClassifiedFinding struct {
	schemas.Vulnerability `yaml:",inline"`
	Category              owasp.Category `json:"owaspCategory" yaml:"owasp_category"`
	CWE                   string         `json:"cwe,omitempty" yaml:"cwe,omitempty"`
}

// CategoryCounts counts findings per category label. Unclassified findings are
// counted under "Unclassified".
type CategoryCounts map[string]int

// ClassifiedResult is an analysis result with every finding classified. Findings
// keep the order returned by the service.
type ClassifiedResult struct {
	schemas.AnalysisResult `yaml:",inline"`
	Findings               []ClassifiedFinding `json:"findings" yaml:"findings"`
	CategoryCounts         CategoryCounts      `json:"categoryCounts" yaml:"category_counts"`
}

// Source yields the raw result history. The API client and the local cache
// both satisfy it.
type Source interface {
	History(ctx context.Context) ([]schemas.AnalysisResult, error)
}
