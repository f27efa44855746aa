package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/sentinai-cli/api/schemas"
	"github.com/xkilldash9x/sentinai-cli/internal/config"
	"github.com/xkilldash9x/sentinai-cli/internal/dashboard"
	"github.com/xkilldash9x/sentinai-cli/internal/observability"
	"github.com/xkilldash9x/sentinai-cli/internal/reporting"
	"github.com/xkilldash9x/sentinai-cli/internal/results"
)

// errMetricsDiffer is returned by dashboard --compare when the service and the
// local aggregator disagree.
var errMetricsDiffer = errors.New("remote and local dashboard metrics differ")

// trendTolerance absorbs rounding differences in averageRisk.
const trendTolerance = 0.005

func newDashboardCmd(deps *dependencies, opts *rootOptions) *cobra.Command {
	var local, cached, compare bool

	dashboardCmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show dashboard metrics: totals, severity distribution, risk trend and recent scans",
		Long: `Shows dashboard metrics as computed by the analysis service. With --local the
metrics are computed here from the fetched history, with --cache from the local
PostgreSQL cache. --compare computes both remote and local metrics concurrently
and exits non-zero when they differ.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			modes := 0
			for _, on := range []bool{local, cached, compare} {
				if on {
					modes++
				}
			}
			if modes > 1 {
				return errors.New("--local, --cache and --compare are mutually exclusive")
			}

			dopts, err := dashboardOptions(cfg)
			if err != nil {
				return err
			}

			var metrics *schemas.DashboardMetrics
			switch {
			case compare:
				return runDashboardCompare(cmd, cfg, dopts, logger)
			case cached:
				store, cleanup, err := deps.stores.Create(ctx, cfg)
				if err != nil {
					return err
				}
				defer cleanup()
				if metrics, err = aggregateFrom(ctx, store, dopts, logger); err != nil {
					return err
				}
			case local:
				c, err := newAPIClient(cfg, false)
				if err != nil {
					return err
				}
				if metrics, err = aggregateFrom(ctx, c, dopts, logger); err != nil {
					return err
				}
			default:
				c, err := newAPIClient(cfg, false)
				if err != nil {
					return err
				}
				if metrics, err = c.DashboardMetrics(ctx); err != nil {
					return err
				}
			}

			return writeReport(cmd, cfg, opts, &reporting.Envelope{
				GeneratedAt: deps.now().UTC(),
				Metrics:     metrics,
			}, logger)
		},
	}

	flags := dashboardCmd.Flags()
	flags.BoolVar(&local, "local", false, "aggregate the fetched history locally")
	flags.BoolVar(&cached, "cache", false, "aggregate the local PostgreSQL cache")
	flags.BoolVar(&compare, "compare", false, "compare service metrics with a local aggregation")
	return dashboardCmd
}

// aggregateFrom runs the local aggregator over the full history of source.
func aggregateFrom(ctx context.Context, source results.Source, opts dashboard.Options, logger *zap.Logger) (*schemas.DashboardMetrics, error) {
	history, err := source.History(ctx)
	if err != nil {
		return nil, err
	}
	summary, err := dashboard.Aggregate(history, opts)
	if err != nil {
		return nil, err
	}
	for _, d := range summary.Diagnostics {
		logger.Warn("Result excluded from risk trend",
			zap.String("result_id", d.ResultID), zap.String("created_at", d.CreatedAt))
	}
	return &summary.Metrics, nil
}

func runDashboardCompare(cmd *cobra.Command, cfg config.Interface, opts dashboard.Options, logger *zap.Logger) error {
	c, err := newAPIClient(cfg, false)
	if err != nil {
		return err
	}

	var remote, local *schemas.DashboardMetrics
	g, gctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		m, err := c.DashboardMetrics(gctx)
		if err != nil {
			return fmt.Errorf("remote metrics: %w", err)
		}
		remote = m
		return nil
	})
	g.Go(func() error {
		m, err := aggregateFrom(gctx, c, opts, logger)
		if err != nil {
			return fmt.Errorf("local metrics: %w", err)
		}
		local = m
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	diff := cmp.Diff(remote, local,
		cmpopts.EquateEmpty(),
		cmpopts.EquateApprox(0, trendTolerance))
	if diff == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "Remote and local metrics agree.")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Metrics differ (-remote +local):\n%s", diff)
	return errMetricsDiffer
}
