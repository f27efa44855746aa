package schemas

import (
	"fmt"
	"strings"
	"time"
)

// InputType identifies the kind of artifact submitted for analysis.
type InputType string

const (
	InputCode   InputType = "code"
	InputAPI    InputType = "api"
	InputSQL    InputType = "sql"
	InputConfig InputType = "config"
)

// InputTypes lists every accepted input type.
var InputTypes = []InputType{InputCode, InputAPI, InputSQL, InputConfig}

// Valid reports whether t is one of the accepted input types.
func (t InputType) Valid() bool {
	switch t {
	case InputCode, InputAPI, InputSQL, InputConfig:
		return true
	}
	return false
}

func (t InputType) String() string { return string(t) }

// ParseInputType accepts an input type name in any case.
func ParseInputType(raw string) (InputType, error) {
	t := InputType(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q (want one of code, api, sql, config)", ErrInvalidInputType, raw)
	}
	return t, nil
}

// AnalysisRequest is the payload submitted to the analysis service.
type AnalysisRequest struct {
	InputType InputType `json:"inputType"`
	Content   string    `json:"content"`
}

// AnalysisResult is one completed scan as returned by the analysis service.
//
// CreatedAt and UpdatedAt hold the ISO 8601 strings exactly as received, so a
// single malformed timestamp never prevents decoding the rest of a batch. Use
// CreatedTime to obtain the parsed value.
type AnalysisResult struct {
	ID              string          `json:"_id" yaml:"id"`
	InputType       InputType       `json:"inputType" yaml:"input_type"`
	Content         string          `json:"content" yaml:"content"`
	RiskScore       int             `json:"riskScore" yaml:"risk_score"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities" yaml:"vulnerabilities"`
	CreatedAt       string          `json:"createdAt" yaml:"created_at"`
	UpdatedAt       string          `json:"updatedAt" yaml:"updated_at"`
}

// CreatedTime parses CreatedAt.
func (r AnalysisResult) CreatedTime() (time.Time, error) {
	return ParseTimestamp(r.CreatedAt)
}

// Risk score bounds.
const (
	MinRiskScore = 0
	MaxRiskScore = 100
)

// timestampLayouts are tried in order. Values without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses an ISO 8601 timestamp. The returned time keeps the
// offset written in the input, so its calendar date is the one the string shows.
func ParseTimestamp(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrMalformedTimestamp)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, raw)
}

// SeverityDistribution counts findings per severity level.
type SeverityDistribution struct {
	Low      int `json:"LOW" yaml:"LOW"`
	Medium   int `json:"MEDIUM" yaml:"MEDIUM"`
	High     int `json:"HIGH" yaml:"HIGH"`
	Critical int `json:"CRITICAL" yaml:"CRITICAL"`
}

// Count returns the counter for s, or 0 for an unrecognized level.
func (d SeverityDistribution) Count(s Severity) int {
	switch s {
	case SeverityLow:
		return d.Low
	case SeverityMedium:
		return d.Medium
	case SeverityHigh:
		return d.High
	case SeverityCritical:
		return d.Critical
	}
	return 0
}

// Total is the sum of all four counters.
func (d SeverityDistribution) Total() int {
	return d.Low + d.Medium + d.High + d.Critical
}

// Increment bumps the counter for s. It returns false, leaving the distribution
// untouched, when s is outside the closed set.
func (d *SeverityDistribution) Increment(s Severity) bool {
	switch s {
	case SeverityLow:
		d.Low++
	case SeverityMedium:
		d.Medium++
	case SeverityHigh:
		d.High++
	case SeverityCritical:
		d.Critical++
	default:
		return false
	}
	return true
}

// RiskTrendPoint is the mean risk score of all scans on one calendar date.
type RiskTrendPoint struct {
	Date        string  `json:"date" yaml:"date"` // YYYY-MM-DD
	AverageRisk float64 `json:"averageRisk" yaml:"average_risk"`
}

// DashboardMetrics is the aggregate view over a set of results. The analysis
// service can return it directly; the local aggregator produces the same shape.
type DashboardMetrics struct {
	TotalScans           int                  `json:"totalScans" yaml:"total_scans"`
	TotalVulnerabilities int                  `json:"totalVulnerabilities" yaml:"total_vulnerabilities"`
	SeverityDistribution SeverityDistribution `json:"severityDistribution" yaml:"severity_distribution"`
	RiskTrend            []RiskTrendPoint     `json:"riskTrend" yaml:"risk_trend"`
	RecentScans          []AnalysisResult     `json:"recentScans" yaml:"recent_scans"`
}

// Normalize replaces nil slices with empty ones so the value always encodes
// riskTrend and recentScans as [] rather than null.
func (m *DashboardMetrics) Normalize() {
	if m.RiskTrend == nil {
		m.RiskTrend = []RiskTrendPoint{}
	}
	if m.RecentScans == nil {
		m.RecentScans = []AnalysisResult{}
	}
}
