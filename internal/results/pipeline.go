package results

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sentinai-cli/api/schemas"
	"github.com/xkilldash9x/sentinai-cli/internal/dashboard"
)

// Pipeline turns raw history into classified, filtered results plus the
// dashboard metrics computed over exactly that subset.
type Pipeline struct {
	source   Source
	enricher *Enricher
	logger   *zap.Logger
}

// NewPipeline creates a results pipeline reading from source.
func NewPipeline(source Source, enricher *Enricher, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		source:   source,
		enricher: enricher,
		logger:   logger.Named("results_pipeline"),
	}
}

// Report is the outcome of a pipeline run.
type Report struct {
	Results []ClassifiedResult
	Summary *dashboard.Summary
}

// Process fetches, classifies, filters and aggregates.
func (p *Pipeline) Process(ctx context.Context, filter Filter, opts dashboard.Options) (*Report, error) {
	raw, err := p.source.History(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	p.logger.Debug("Retrieved raw results", zap.Int("count", len(raw)))

	if err := p.validate(raw); err != nil {
		return nil, err
	}

	classified := filter.Apply(p.enricher.ClassifyAll(raw))
	p.logger.Debug("Filtered results", zap.Int("kept", len(classified)))

	summary, err := dashboard.Aggregate(Raw(classified), opts)
	if err != nil {
		return nil, fmt.Errorf("aggregate results: %w", err)
	}
	for _, d := range summary.Diagnostics {
		p.logger.Warn("Result excluded from risk trend",
			zap.String("result_id", d.ResultID), zap.String("created_at", d.CreatedAt))
	}

	return &Report{Results: classified, Summary: summary}, nil
}

// validate rejects the batch when any vulnerability carries a severity
// outside the closed set, before filtering can hide it. Other contract
// violations are logged and the result is kept.
func (p *Pipeline) validate(raw []schemas.AnalysisResult) error {
	for _, r := range raw {
		err := r.Validate()
		if err == nil {
			continue
		}
		for _, v := range r.Vulnerabilities {
			if !v.Severity.Valid() {
				return fmt.Errorf("validate results: %w", &dashboard.InvalidSeverityError{
					ResultID: r.ID, VulnerabilityID: v.ID, Severity: v.Severity,
				})
			}
		}
		p.logger.Warn("Result violates the data contract",
			zap.String("result_id", r.ID), zap.Error(err))
	}
	return nil
}
