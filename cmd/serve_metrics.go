package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/sentinai-cli/api/schemas"
	"github.com/xkilldash9x/sentinai-cli/internal/config"
	"github.com/xkilldash9x/sentinai-cli/internal/observability"
)

const shutdownTimeout = 5 * time.Second

func newServeMetricsCmd(deps *dependencies) *cobra.Command {
	var listenAddr, source string

	serveCmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Expose dashboard metrics for Prometheus until interrupted",
		Long: `Serves dashboard metrics in the Prometheus exposition format on /metrics and a
liveness probe on /healthz. Metrics are refreshed every metrics.refresh_interval
from the analysis service (source "remote") or by aggregating the local cache
(source "cache").`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			mcfg := cfg.Metrics()
			if listenAddr != "" {
				mcfg.ListenAddr = listenAddr
			}
			if source != "" {
				mcfg.Source = source
				if err := mcfg.Validate(); err != nil {
					return err
				}
			}

			metricsSource, cleanup, err := newMetricsSource(ctx, deps, cfg, mcfg.Source)
			if err != nil {
				return err
			}
			defer cleanup()

			exporter := observability.NewExporter(logger)
			mux := http.NewServeMux()
			mux.Handle("/metrics", exporter.Handler())
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("ok\n"))
			})

			ln, err := deps.listen("tcp", mcfg.ListenAddr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", mcfg.ListenAddr, err)
			}
			server := &http.Server{
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			logger.Info("Serving metrics",
				zap.String("addr", ln.Addr().String()),
				zap.String("source", mcfg.Source),
				zap.Duration("refresh_interval", mcfg.RefreshInterval))
			fmt.Fprintf(cmd.OutOrStdout(), "Serving metrics on http://%s/metrics\n", ln.Addr())

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				exporter.Run(gctx, mcfg.RefreshInterval, metricsSource)
				return nil
			})
			g.Go(func() error {
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("metrics server failed: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("failed to shut down metrics server: %w", err)
				}
				logger.Info("Metrics server stopped")
				return nil
			})
			return g.Wait()
		},
	}

	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides metrics.listen_addr)")
	serveCmd.Flags().StringVar(&source, "source", "", "remote or cache (overrides metrics.source)")
	return serveCmd
}

// newMetricsSource returns the refresh function for the configured source and a
// cleanup for any resources it holds.
func newMetricsSource(ctx context.Context, deps *dependencies, cfg config.Interface, source string) (observability.MetricsSource, func(), error) {
	logger := observability.GetLogger()
	dopts, err := dashboardOptions(cfg)
	if err != nil {
		return nil, nil, err
	}

	if strings.EqualFold(source, config.MetricsSourceCache) {
		cache, cleanup, err := deps.stores.Create(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return func(ctx context.Context) (*schemas.DashboardMetrics, error) {
			return aggregateFrom(ctx, cache, dopts, logger)
		}, cleanup, nil
	}

	c, err := newAPIClient(cfg, false)
	if err != nil {
		return nil, nil, err
	}
	return c.DashboardMetrics, func() {}, nil
}
