package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sentinai-cli/api/schemas"
	"github.com/xkilldash9x/sentinai-cli/internal/observability"
	"github.com/xkilldash9x/sentinai-cli/internal/reporting"
	"github.com/xkilldash9x/sentinai-cli/internal/results"
)

// errFindingsAtThreshold is returned when --fail-on matches a finding, so CI
// jobs can gate on the exit code.
type errFindingsAtThreshold struct {
	threshold schemas.Severity
	count     int
}

func (e *errFindingsAtThreshold) Error() string {
	return fmt.Sprintf("%d finding(s) at or above %s", e.count, e.threshold)
}

func newAnalyzeCmd(deps *dependencies, opts *rootOptions) *cobra.Command {
	var (
		inputType string
		failOn    string
	)

	analyzeCmd := &cobra.Command{
		Use:   "analyze [file|-]",
		Short: "Submit code, an API definition, SQL or configuration for analysis",
		Long: `Submits an artifact to the analysis service and prints the classified findings.
Reads stdin when the file is "-" or omitted. Without --type the input type is
inferred from the file extension and defaults to code.`,
		Example: `  sentinai analyze handler.go
  cat schema.sql | sentinai analyze --type sql
  sentinai analyze app.yaml --format sarif --output findings.sarif --fail-on high`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			var threshold schemas.Severity
			if failOn != "" {
				if threshold, err = schemas.ParseSeverity(failOn); err != nil {
					return err
				}
			}

			name, content, err := readInput(deps, args)
			if err != nil {
				return err
			}

			t := inferInputType(name)
			if inputType != "" {
				if t, err = schemas.ParseInputType(inputType); err != nil {
					return err
				}
			}

			c, err := newAPIClient(cfg, false)
			if err != nil {
				return err
			}

			logger.Info("Submitting artifact for analysis",
				zap.String("input_type", t.String()),
				zap.String("source", sourceLabel(name)),
				zap.Int("bytes", len(content)))

			result, err := c.Analyze(ctx, schemas.AnalysisRequest{InputType: t, Content: string(content)})
			if err != nil {
				return err
			}

			if err := result.Validate(); err != nil {
				logger.Warn("Analysis result violates the data contract", zap.Error(err))
			}
			classified := newEnricher(logger).ClassifyResult(*result)
			envelope := &reporting.Envelope{
				GeneratedAt: deps.now().UTC(),
				Results:     []results.ClassifiedResult{classified},
			}
			if err := writeReport(cmd, cfg, opts, envelope, logger); err != nil {
				return err
			}

			if threshold != "" {
				if n := countAtOrAbove(classified, threshold); n > 0 {
					return &errFindingsAtThreshold{threshold: threshold, count: n}
				}
			}
			return nil
		},
	}

	analyzeCmd.Flags().StringVarP(&inputType, "type", "t", "", "input type: code, api, sql, config")
	analyzeCmd.Flags().StringVar(&failOn, "fail-on", "", "exit non-zero when a finding has at least this severity")
	return analyzeCmd
}

// inferInputType guesses the input type from a file name.
func inferInputType(name string) schemas.InputType {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".sql":
		return schemas.InputSQL
	case ".yaml", ".yml", ".json", ".env", ".ini", ".toml", ".conf":
		return schemas.InputConfig
	default:
		return schemas.InputCode
	}
}

func countAtOrAbove(cr results.ClassifiedResult, threshold schemas.Severity) int {
	n := 0
	for _, f := range cr.Findings {
		if f.Severity.Rank() >= threshold.Rank() {
			n++
		}
	}
	return n
}

func sourceLabel(name string) string {
	if name == "" {
		return "stdin"
	}
	return name
}
