package results

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/sentinai-cli/api/schemas"
	"github.com/xkilldash9x/sentinai-cli/internal/owasp"
	"github.com/xkilldash9x/sentinai-cli/internal/results/providers"
)

// Enricher tags findings with their OWASP category and, when a provider is
// configured, the matching CWE.
type Enricher struct {
	classifier  *owasp.Classifier
	cweProvider providers.CWEProvider
	logger      *zap.Logger
}

// NewEnricher creates an Enricher. A nil classifier selects the built-in rules;
// a nil provider skips CWE tagging.
func NewEnricher(classifier *owasp.Classifier, cweProvider providers.CWEProvider, logger *zap.Logger) *Enricher {
	if classifier == nil {
		classifier = owasp.NewClassifier()
	}
	return &Enricher{
		classifier:  classifier,
		cweProvider: cweProvider,
		logger:      logger.Named("enricher"),
	}
}

// ClassifyFinding tags a single vulnerability.
func (e *Enricher) ClassifyFinding(v schemas.Vulnerability) ClassifiedFinding {
	f := ClassifiedFinding{Vulnerability: v, Category: e.classifier.Classify(v.Type)}
	if e.cweProvider != nil {
		if entry, ok := e.cweProvider.ForCategory(f.Category); ok {
			f.CWE = entry.ID
		}
	}
	return f
}

// ClassifyResult tags every finding of r. r itself is copied, not modified.
func (e *Enricher) ClassifyResult(r schemas.AnalysisResult) ClassifiedResult {
	out := ClassifiedResult{
		AnalysisResult: r,
		Findings:       make([]ClassifiedFinding, 0, len(r.Vulnerabilities)),
		CategoryCounts: CategoryCounts{},
	}
	for _, v := range r.Vulnerabilities {
		f := e.ClassifyFinding(v)
		out.Findings = append(out.Findings, f)
		out.CategoryCounts[f.Category.String()]++
	}
	if unclassified := out.CategoryCounts[owasp.Unclassified.String()]; unclassified > 0 {
		e.logger.Debug("Findings left unclassified",
			zap.String("result_id", r.ID), zap.Int("count", unclassified))
	}
	return out
}

// ClassifyAll tags every result, preserving order.
func (e *Enricher) ClassifyAll(rs []schemas.AnalysisResult) []ClassifiedResult {
	out := make([]ClassifiedResult, 0, len(rs))
	for _, r := range rs {
		out = append(out, e.ClassifyResult(r))
	}
	return out
}
