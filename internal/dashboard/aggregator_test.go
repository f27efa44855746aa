package dashboard_test

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/sentinai-cli/api/schemas"
	"github.com/xkilldash9x/sentinai-cli/internal/dashboard"
)

// -- Test Helpers --

func result(id, createdAt string, risk int, severities ...schemas.Severity) schemas.AnalysisResult {
	r := schemas.AnalysisResult{
		ID:        id,
		InputType: schemas.InputCode,
		Content:   "content-" + id,
		RiskScore: risk,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	for i, s := range severities {
		r.Vulnerabilities = append(r.Vulnerabilities, schemas.Vulnerability{
			ID:       fmt.Sprintf("%s-v%d", id, i),
			Type:     "SQL Injection",
			Severity: s,
		})
	}
	return r
}

func cloneResults(in []schemas.AnalysisResult) []schemas.AnalysisResult {
	out := make([]schemas.AnalysisResult, len(in))
	for i, r := range in {
		out[i] = r
		if r.Vulnerabilities != nil {
			out[i].Vulnerabilities = append([]schemas.Vulnerability(nil), r.Vulnerabilities...)
		}
	}
	return out
}

// diagnostics flattens diagnostics for comparison; the wrapped errors carry
// unexported state that cmp cannot walk.
func diagnostics(s *dashboard.Summary) []string {
	out := make([]string, len(s.Diagnostics))
	for i, d := range s.Diagnostics {
		out[i] = d.Error()
	}
	return out
}

func ids(results []schemas.AnalysisResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

// -- Test Cases --

func TestAggregate_Empty(t *testing.T) {
	t.Parallel()
	for _, input := range [][]schemas.AnalysisResult{nil, {}} {
		summary, err := dashboard.Aggregate(input, dashboard.Options{})
		require.NoError(t, err)

		want := schemas.DashboardMetrics{
			RiskTrend:   []schemas.RiskTrendPoint{},
			RecentScans: []schemas.AnalysisResult{},
		}
		assert.Equal(t, want, summary.Metrics)
		assert.Empty(t, summary.Diagnostics)
	}
}

func TestAggregate_RiskTrendByDate(t *testing.T) {
	t.Parallel()
	input := []schemas.AnalysisResult{
		result("d", "2024-01-02T08:00:00.000Z", 90),
		result("a", "2024-01-01T09:00:00.000Z", 10),
		result("b", "2024-01-01T12:30:00.000Z", 20),
		result("c", "2024-01-01T23:59:59.999Z", 30),
	}

	summary, err := dashboard.Aggregate(input, dashboard.Options{})
	require.NoError(t, err)

	want := []schemas.RiskTrendPoint{
		{Date: "2024-01-01", AverageRisk: 20},
		{Date: "2024-01-02", AverageRisk: 90},
	}
	if diff := cmp.Diff(want, summary.Metrics.RiskTrend); diff != "" {
		t.Errorf("risk trend mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 4, summary.Metrics.TotalScans)
}

func TestAggregate_AverageIsRoundedToTwoPlaces(t *testing.T) {
	t.Parallel()
	input := []schemas.AnalysisResult{
		result("a", "2024-05-01T01:00:00Z", 10),
		result("b", "2024-05-01T02:00:00Z", 10),
		result("c", "2024-05-01T03:00:00Z", 11),
	}

	summary, err := dashboard.Aggregate(input, dashboard.Options{})
	require.NoError(t, err)
	require.Len(t, summary.Metrics.RiskTrend, 1)
	assert.Equal(t, 10.33, summary.Metrics.RiskTrend[0].AverageRisk)
}

func TestAggregate_SeverityDistribution(t *testing.T) {
	t.Parallel()
	input := []schemas.AnalysisResult{
		result("a", "2024-01-01T00:00:00Z", 40, schemas.SeverityLow, schemas.SeverityLow),
		result("b", "2024-01-01T00:00:00Z", 80, schemas.SeverityHigh),
		result("c", "2024-01-02T00:00:00Z", 95, schemas.SeverityCritical, schemas.SeverityCritical),
		result("e", "2024-01-03T00:00:00Z", 0),
	}

	summary, err := dashboard.Aggregate(input, dashboard.Options{})
	require.NoError(t, err)

	assert.Equal(t, schemas.SeverityDistribution{Low: 2, Medium: 0, High: 1, Critical: 2}, summary.Metrics.SeverityDistribution)
	assert.Equal(t, 5, summary.Metrics.TotalVulnerabilities)
	assert.Equal(t, summary.Metrics.TotalVulnerabilities, summary.Metrics.SeverityDistribution.Total())
}

func TestAggregate_InvalidSeverityRejects(t *testing.T) {
	t.Parallel()
	bad := result("r2", "2024-01-01T00:00:00Z", 50, schemas.SeverityLow, "SEVERE")
	input := []schemas.AnalysisResult{result("r1", "2024-01-01T00:00:00Z", 10, schemas.SeverityHigh), bad}

	summary, err := dashboard.Aggregate(input, dashboard.Options{})
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.ErrorIs(t, err, schemas.ErrInvalidSeverity)

	var sevErr *dashboard.InvalidSeverityError
	require.True(t, errors.As(err, &sevErr))
	assert.Equal(t, "r2", sevErr.ResultID)
	assert.Equal(t, "r2-v1", sevErr.VulnerabilityID)
	assert.Equal(t, schemas.Severity("SEVERE"), sevErr.Severity)

	// Lower case is not coerced.
	_, err = dashboard.Aggregate([]schemas.AnalysisResult{result("r3", "2024-01-01", 1, "high")}, dashboard.Options{})
	assert.ErrorIs(t, err, schemas.ErrInvalidSeverity)
}

func TestAggregate_MalformedTimestamp(t *testing.T) {
	t.Parallel()
	input := []schemas.AnalysisResult{
		result("ok", "2024-02-10T10:00:00Z", 60, schemas.SeverityMedium),
		result("broken", "last tuesday", 99, schemas.SeverityHigh, schemas.SeverityLow),
		result("blank", "", 10),
	}

	summary, err := dashboard.Aggregate(input, dashboard.Options{})
	require.NoError(t, err, "a bad timestamp must not fail the batch")

	m := summary.Metrics
	assert.Equal(t, 3, m.TotalScans)
	assert.Equal(t, 3, m.TotalVulnerabilities)
	assert.Equal(t, []schemas.RiskTrendPoint{{Date: "2024-02-10", AverageRisk: 60}}, m.RiskTrend)

	require.Len(t, summary.Diagnostics, 2)
	assert.Equal(t, "blank", summary.Diagnostics[0].ResultID)
	assert.Equal(t, "broken", summary.Diagnostics[1].ResultID)
	assert.Equal(t, "last tuesday", summary.Diagnostics[1].CreatedAt)
	for _, d := range summary.Diagnostics {
		assert.ErrorIs(t, d, schemas.ErrMalformedTimestamp)
	}

	// Unparseable entries sort after every dated scan.
	assert.Equal(t, []string{"ok", "blank", "broken"}, ids(m.RecentScans))
}

func TestAggregate_TimezonePolicy(t *testing.T) {
	t.Parallel()
	input := []schemas.AnalysisResult{
		result("east", "2024-01-02T00:30:00+05:00", 40),
		result("west", "2024-01-01T22:00:00-08:00", 80),
	}

	t.Run("Own offset", func(t *testing.T) {
		t.Parallel()
		summary, err := dashboard.Aggregate(input, dashboard.Options{})
		require.NoError(t, err)
		assert.Equal(t, []schemas.RiskTrendPoint{
			{Date: "2024-01-01", AverageRisk: 80},
			{Date: "2024-01-02", AverageRisk: 40},
		}, summary.Metrics.RiskTrend)
	})

	t.Run("Pinned to UTC", func(t *testing.T) {
		t.Parallel()
		summary, err := dashboard.Aggregate(input, dashboard.Options{Location: time.UTC})
		require.NoError(t, err)
		// 2024-01-01T19:30Z and 2024-01-02T06:00Z.
		assert.Equal(t, []schemas.RiskTrendPoint{
			{Date: "2024-01-01", AverageRisk: 40},
			{Date: "2024-01-02", AverageRisk: 80},
		}, summary.Metrics.RiskTrend)
	})
}

func TestAggregate_RecentScans(t *testing.T) {
	t.Parallel()
	var input []schemas.AnalysisResult
	for day := 1; day <= 8; day++ {
		input = append(input, result(fmt.Sprintf("s%d", day), fmt.Sprintf("2024-03-%02dT10:00:00Z", day), day*10))
	}
	// Same instant as s8 written with a different offset; id breaks the tie.
	input = append(input, result("s0", "2024-03-08T12:00:00+02:00", 5))

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{"Default bound", 0, []string{"s0", "s8", "s7", "s6", "s5"}},
		{"Custom bound", 2, []string{"s0", "s8"}},
		{"Bound larger than input", 50, []string{"s0", "s8", "s7", "s6", "s5", "s4", "s3", "s2", "s1"}},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			summary, err := dashboard.Aggregate(input, dashboard.Options{RecentLimit: tc.limit})
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(summary.Metrics.RecentScans))
		})
	}
}

func TestAggregate_DoesNotMutateInput(t *testing.T) {
	t.Parallel()
	input := []schemas.AnalysisResult{
		result("a", "2024-01-01T00:00:00Z", 10, schemas.SeverityLow),
		result("b", "2024-01-03T00:00:00Z", 30, schemas.SeverityHigh),
		result("c", "garbage", 20),
	}
	before := cloneResults(input)

	_, err := dashboard.Aggregate(input, dashboard.Options{RecentLimit: 1})
	require.NoError(t, err)
	if diff := cmp.Diff(before, input); diff != "" {
		t.Errorf("input mutated (-before +after):\n%s", diff)
	}
}

func TestAggregate_Idempotent(t *testing.T) {
	t.Parallel()
	input := []schemas.AnalysisResult{
		result("a", "2024-01-01T00:00:00Z", 33, schemas.SeverityLow),
		result("b", "2024-01-01T05:00:00Z", 67, schemas.SeverityCritical),
		result("c", "nope", 20),
	}

	first, err := dashboard.Aggregate(input, dashboard.Options{})
	require.NoError(t, err)
	second, err := dashboard.Aggregate(input, dashboard.Options{})
	require.NoError(t, err)

	if diff := cmp.Diff(first.Metrics, second.Metrics); diff != "" {
		t.Errorf("repeated aggregation differs (-first +second):\n%s", diff)
	}
	assert.Equal(t, diagnostics(first), diagnostics(second))
}

func TestAggregate_OrderIndependent(t *testing.T) {
	t.Parallel()
	var input []schemas.AnalysisResult
	severities := schemas.Severities
	for i := 0; i < 40; i++ {
		created := fmt.Sprintf("2024-04-%02dT%02d:00:00Z", 1+i%6, i%24)
		if i%13 == 0 {
			created = "???"
		}
		input = append(input, result(fmt.Sprintf("r%02d", i), created, (i*37)%101, severities[i%4], severities[(i+1)%4]))
	}

	want, err := dashboard.Aggregate(input, dashboard.Options{})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := cloneResults(input)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, err := dashboard.Aggregate(shuffled, dashboard.Options{})
		require.NoError(t, err)
		if diff := cmp.Diff(want.Metrics, got.Metrics); diff != "" {
			t.Fatalf("permutation %d changed the output (-want +got):\n%s", i, diff)
		}
		require.Equal(t, diagnostics(want), diagnostics(got))
	}
}

type fuzzBatch struct {
	Results []schemas.AnalysisResult
	Limit   int
}

// FuzzAggregate checks the structural invariants over arbitrary batches.
func FuzzAggregate(f *testing.F) {
	f.Fuzz(func(t *testing.T, data []byte) {
		batch := &fuzzBatch{}
		if err := fuzz.NewConsumer(data).GenerateStruct(batch); err != nil {
			return
		}
		before := cloneResults(batch.Results)

		summary, err := dashboard.Aggregate(batch.Results, dashboard.Options{RecentLimit: batch.Limit})
		if diff := cmp.Diff(before, batch.Results); diff != "" {
			t.Fatalf("input mutated:\n%s", diff)
		}
		if err != nil {
			var sevErr *dashboard.InvalidSeverityError
			require.True(t, errors.As(err, &sevErr), "unexpected error type: %v", err)
			return
		}

		m := summary.Metrics
		require.Equal(t, len(batch.Results), m.TotalScans)
		require.Equal(t, m.TotalVulnerabilities, m.SeverityDistribution.Total())
		require.NotNil(t, m.RiskTrend)
		require.NotNil(t, m.RecentScans)
		require.True(t, sort.SliceIsSorted(m.RiskTrend, func(i, j int) bool {
			return m.RiskTrend[i].Date < m.RiskTrend[j].Date
		}))

		limit := batch.Limit
		if limit <= 0 {
			limit = dashboard.DefaultRecentLimit
		}
		if limit > len(batch.Results) {
			limit = len(batch.Results)
		}
		require.Len(t, m.RecentScans, limit)

		dated := 0
		for _, r := range batch.Results {
			if _, err := r.CreatedTime(); err == nil {
				dated++
			}
		}
		require.Len(t, summary.Diagnostics, len(batch.Results)-dated)
	})
}
