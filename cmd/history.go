package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sentinai-cli/api/schemas"
	"github.com/xkilldash9x/sentinai-cli/internal/observability"
	"github.com/xkilldash9x/sentinai-cli/internal/owasp"
	"github.com/xkilldash9x/sentinai-cli/internal/reporting"
	"github.com/xkilldash9x/sentinai-cli/internal/results"
)

// historyFlags are the raw filter flags shared by history and its tests.
type historyFlags struct {
	types       []string
	categories  []string
	minSeverity string
	since       string
	until       string
	limit       int
	cache       bool
}

func newHistoryCmd(deps *dependencies, opts *rootOptions) *cobra.Command {
	hf := &historyFlags{}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List past analyses with OWASP categories and metrics for the selection",
		Long: `Lists analysis history from the service, or from the local cache with --cache.
Filters narrow the results; the metrics in the report are computed over exactly
the selected subset.`,
		Example: `  sentinai history --type sql --min-severity high
  sentinai history --category "SQL Injection" --since 2024-01-01 --format json
  sentinai history --cache --limit 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			filter, err := hf.toFilter()
			if err != nil {
				return err
			}
			dopts, err := dashboardOptions(cfg)
			if err != nil {
				return err
			}

			var source results.Source
			if hf.cache {
				cache, cleanup, err := deps.stores.Create(ctx, cfg)
				if err != nil {
					return err
				}
				defer cleanup()
				source = cache
			} else {
				c, err := newAPIClient(cfg, false)
				if err != nil {
					return err
				}
				source = c
			}

			report, err := results.NewPipeline(source, newEnricher(logger), logger).Process(ctx, filter, dopts)
			if err != nil {
				return err
			}
			if n := len(report.Summary.Diagnostics); n > 0 {
				logger.Warn("Some results were left out of the risk trend", zap.Int("count", n))
			}

			metrics := report.Summary.Metrics
			return writeReport(cmd, cfg, opts, &reporting.Envelope{
				GeneratedAt: deps.now().UTC(),
				Results:     report.Results,
				Metrics:     &metrics,
			}, logger)
		},
	}

	flags := historyCmd.Flags()
	flags.StringSliceVarP(&hf.types, "type", "t", nil, "only these input types (repeatable): code, api, sql, config")
	flags.StringSliceVar(&hf.categories, "category", nil, `only findings in these OWASP categories (repeatable); "Unclassified" selects unmatched findings`)
	flags.StringVar(&hf.minSeverity, "min-severity", "", "only findings at or above this severity")
	flags.StringVar(&hf.since, "since", "", "only results created at or after this time (YYYY-MM-DD or RFC 3339)")
	flags.StringVar(&hf.until, "until", "", "only results created before this time (YYYY-MM-DD or RFC 3339)")
	flags.IntVar(&hf.limit, "limit", 0, "keep the first N matching results in listing order (the cache lists newest first)")
	flags.BoolVar(&hf.cache, "cache", false, "read from the local PostgreSQL cache instead of the service")
	return historyCmd
}

// toFilter validates the flags and converts them into a results.Filter.
func (hf *historyFlags) toFilter() (results.Filter, error) {
	var f results.Filter
	for _, raw := range hf.types {
		t, err := schemas.ParseInputType(raw)
		if err != nil {
			return f, err
		}
		f.InputTypes = append(f.InputTypes, t)
	}
	for _, raw := range hf.categories {
		c, err := owasp.ParseCategory(raw)
		if err != nil {
			return f, err
		}
		f.Categories = append(f.Categories, c)
	}
	if hf.minSeverity != "" {
		s, err := schemas.ParseSeverity(hf.minSeverity)
		if err != nil {
			return f, err
		}
		f.MinSeverity = s
	}

	var err error
	if f.Since, err = parseBound("since", hf.since); err != nil {
		return f, err
	}
	if f.Until, err = parseBound("until", hf.until); err != nil {
		return f, err
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && !f.Since.Before(f.Until) {
		return f, fmt.Errorf("--since must be before --until")
	}
	if hf.limit < 0 {
		return f, fmt.Errorf("--limit must not be negative")
	}
	f.Limit = hf.limit
	return f, nil
}

func parseBound(flag, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := schemas.ParseTimestamp(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s: %w", flag, err)
	}
	return t, nil
}
