package observability

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sentinai-cli/api/schemas"
)

// MetricsSource yields the dashboard metrics the exporter publishes.
type MetricsSource func(ctx context.Context) (*schemas.DashboardMetrics, error)

// Exporter publishes dashboard metrics as Prometheus gauges on its own
// registry, so nothing leaks into the global default registry.
type Exporter struct {
	registry *prometheus.Registry

	scans         prometheus.Gauge
	vulns         prometheus.Gauge
	bySeverity    *prometheus.GaugeVec
	latestRisk    prometheus.Gauge
	lastRefresh   prometheus.Gauge
	refreshErrors prometheus.Counter

	logger *zap.Logger
	now    func() time.Time
}

// NewExporter registers the gauges on a fresh registry.
func NewExporter(logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		scans: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinai_scans_total",
			Help: "Number of analysis results in the dashboard aggregate.",
		}),
		vulns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinai_vulnerabilities_total",
			Help: "Number of findings across all analysis results.",
		}),
		bySeverity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sentinai_vulnerabilities",
			Help: "Number of findings by severity.",
		}, []string{"severity"}),
		latestRisk: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinai_average_risk_latest",
			Help: "Average risk score of the most recent day in the risk trend.",
		}),
		lastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinai_last_refresh_timestamp_seconds",
			Help: "Unix timestamp of the last successful refresh.",
		}),
		refreshErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinai_refresh_errors_total",
			Help: "Number of failed metric refreshes.",
		}),
		logger: logger.Named("exporter"),
		now:    time.Now,
	}
	e.registry.MustRegister(e.scans, e.vulns, e.bySeverity, e.latestRisk, e.lastRefresh, e.refreshErrors)
	return e
}

// Registry exposes the private registry, mainly for tests.
func (e *Exporter) Registry() *prometheus.Registry { return e.registry }

// Export replaces every gauge value with the contents of m.
func (e *Exporter) Export(m schemas.DashboardMetrics) {
	e.scans.Set(float64(m.TotalScans))
	e.vulns.Set(float64(m.TotalVulnerabilities))
	for _, s := range schemas.Severities {
		e.bySeverity.WithLabelValues(strings.ToLower(string(s))).Set(float64(m.SeverityDistribution.Count(s)))
	}
	if n := len(m.RiskTrend); n > 0 {
		e.latestRisk.Set(m.RiskTrend[n-1].AverageRisk)
	} else {
		e.latestRisk.Set(0)
	}
	e.lastRefresh.Set(float64(e.now().Unix()))
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}

// Refresh pulls once from source and exports the result.
func (e *Exporter) Refresh(ctx context.Context, source MetricsSource) error {
	m, err := source(ctx)
	if err != nil {
		e.refreshErrors.Inc()
		return err
	}
	if m == nil {
		return nil
	}
	e.Export(*m)
	return nil
}

// Run refreshes immediately and then every interval until ctx is cancelled.
// Failed refreshes are logged and keep the previous values.
func (e *Exporter) Run(ctx context.Context, interval time.Duration, source MetricsSource) {
	refresh := func() {
		if err := e.Refresh(ctx, source); err != nil && ctx.Err() == nil {
			e.logger.Warn("Failed to refresh dashboard metrics", zap.Error(err))
		}
	}

	refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
