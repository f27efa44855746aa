// Package dashboard computes DashboardMetrics from a list of analysis results.
// It is the local counterpart of the service's dashboard endpoint and produces
// the same shape, so cached or filtered subsets render identically.
package dashboard

import (
	"math"
	"sort"
	"time"

	"github.com/xkilldash9x/sentinai-cli/api/schemas"
)

// DefaultRecentLimit bounds RecentScans when Options.RecentLimit is not set.
const DefaultRecentLimit = 5

// averagePlaces is the number of decimals kept in RiskTrendPoint.AverageRisk.
const averagePlaces = 2

const dateLayout = "2006-01-02"

// Options tunes an aggregation.
type Options struct {
	// RecentLimit bounds RecentScans. Zero or negative selects DefaultRecentLimit.
	RecentLimit int
	// Location, when set, converts each createdAt into this zone before taking
	// its calendar date. When nil the date is the one written in the timestamp.
	Location *time.Location
}

func (o Options) recentLimit() int {
	if o.RecentLimit <= 0 {
		return DefaultRecentLimit
	}
	return o.RecentLimit
}

// Summary is the outcome of an aggregation: the metrics plus one diagnostic per
// result that was excluded from the risk trend.
type Summary struct {
	Metrics     schemas.DashboardMetrics
	Diagnostics []*MalformedTimestampError
}

// Aggregate computes dashboard metrics over results. The input slice and its
// elements are never modified. The output depends only on the set of results,
// not on their order.
func Aggregate(results []schemas.AnalysisResult, opts Options) (*Summary, error) {
	summary := &Summary{}
	m := &summary.Metrics
	m.TotalScans = len(results)

	// Parse once; the trend and the recent ordering both need it.
	parsed := make([]scan, len(results))

	type bucket struct {
		sum   int
		count int
	}
	buckets := make(map[string]*bucket)

	for i := range results {
		r := &results[i]
		m.TotalVulnerabilities += len(r.Vulnerabilities)
		for _, v := range r.Vulnerabilities {
			if !m.SeverityDistribution.Increment(v.Severity) {
				return nil, &InvalidSeverityError{ResultID: r.ID, VulnerabilityID: v.ID, Severity: v.Severity}
			}
		}

		parsed[i] = scan{result: r}
		created, err := r.CreatedTime()
		if err != nil {
			summary.Diagnostics = append(summary.Diagnostics, &MalformedTimestampError{
				ResultID:  r.ID,
				CreatedAt: r.CreatedAt,
				Err:       err,
			})
			continue
		}
		parsed[i].created = created
		parsed[i].valid = true

		if opts.Location != nil {
			created = created.In(opts.Location)
		}
		date := created.Format(dateLayout)
		b, ok := buckets[date]
		if !ok {
			b = &bucket{}
			buckets[date] = b
		}
		b.sum += r.RiskScore
		b.count++
	}

	m.RiskTrend = make([]schemas.RiskTrendPoint, 0, len(buckets))
	for date, b := range buckets {
		m.RiskTrend = append(m.RiskTrend, schemas.RiskTrendPoint{
			Date:        date,
			AverageRisk: round(float64(b.sum)/float64(b.count), averagePlaces),
		})
	}
	// YYYY-MM-DD sorts chronologically as a string.
	sort.Slice(m.RiskTrend, func(i, j int) bool {
		return m.RiskTrend[i].Date < m.RiskTrend[j].Date
	})

	sort.SliceStable(parsed, func(i, j int) bool { return parsed[i].newerThan(parsed[j]) })
	limit := opts.recentLimit()
	if limit > len(parsed) {
		limit = len(parsed)
	}
	m.RecentScans = make([]schemas.AnalysisResult, 0, limit)
	for _, s := range parsed[:limit] {
		m.RecentScans = append(m.RecentScans, *s.result)
	}

	sort.SliceStable(summary.Diagnostics, func(i, j int) bool {
		a, b := summary.Diagnostics[i], summary.Diagnostics[j]
		if a.ResultID != b.ResultID {
			return a.ResultID < b.ResultID
		}
		return a.CreatedAt < b.CreatedAt
	})
	return summary, nil
}

type scan struct {
	result  *schemas.AnalysisResult
	created time.Time
	valid   bool
}

// newerThan orders scans newest first. Equal instants fall back to id then to
// the raw timestamp. Unparseable timestamps go last. Result ids are unique per
// history, so two scans equal on id and raw timestamp keep their input order.
func (s scan) newerThan(o scan) bool {
	if s.valid != o.valid {
		return s.valid
	}
	if s.valid && !s.created.Equal(o.created) {
		return s.created.After(o.created)
	}
	if s.result.ID != o.result.ID {
		return s.result.ID < o.result.ID
	}
	return s.result.CreatedAt < o.result.CreatedAt
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
