package schemas

import (
	"errors"
	"fmt"
	"strings"
)

// Data contract violations. Validation errors wrap one of these so callers can
// test with errors.Is.
var (
	ErrInvalidSeverity     = errors.New("invalid severity value")
	ErrMalformedTimestamp  = errors.New("malformed timestamp")
	ErrInvalidInputType    = errors.New("invalid input type")
	ErrRiskScoreOutOfRange = errors.New("risk score out of range")
	ErrMissingID           = errors.New("missing id")
	ErrEmptyContent        = errors.New("please enter content to analyze")
)

// Normalize trims the submitted content. The analysis service always receives
// trimmed text.
func (r AnalysisRequest) Normalize() AnalysisRequest {
	r.Content = strings.TrimSpace(r.Content)
	return r
}

// Validate checks a request before submission.
func (r AnalysisRequest) Validate() error {
	var errs []error
	if !r.InputType.Valid() {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidInputType, r.InputType))
	}
	if strings.TrimSpace(r.Content) == "" {
		errs = append(errs, ErrEmptyContent)
	}
	return errors.Join(errs...)
}

// Validate checks a vulnerability against the data contract.
func (v Vulnerability) Validate() error {
	if !v.Severity.Valid() {
		return fmt.Errorf("vulnerability %q: %w: %q", v.ID, ErrInvalidSeverity, v.Severity)
	}
	return nil
}

// Validate reports every contract violation in the result, joined. A nil return
// means the result can be consumed by the classifier and aggregator without
// diagnostics.
func (r AnalysisResult) Validate() error {
	var errs []error
	if r.ID == "" {
		errs = append(errs, ErrMissingID)
	}
	if !r.InputType.Valid() {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidInputType, r.InputType))
	}
	if r.RiskScore < MinRiskScore || r.RiskScore > MaxRiskScore {
		errs = append(errs, fmt.Errorf("%w: %d", ErrRiskScoreOutOfRange, r.RiskScore))
	}
	if _, err := r.CreatedTime(); err != nil {
		errs = append(errs, fmt.Errorf("createdAt: %w", err))
	}
	for _, v := range r.Vulnerabilities {
		if err := v.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("analysis result %q: %w", r.ID, errors.Join(errs...))
}
