package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Fallback messages used when the service does not explain a failure.
const (
	MsgAnalyzeFailed    = "Analysis failed. Please try again."
	MsgHistoryFailed    = "Failed to load analysis history"
	MsgMetricsFailed    = "Failed to load dashboard metrics"
	MsgLoginFailed      = "Login failed"
	MsgUserFailed       = "Failed to load current user"
	MsgLogoutFailed     = "Logout failed"
	MsgComplianceFailed = "Compliance check failed"
	MsgPoliciesFailed   = "Failed to load ethical-use policies"
)

// APIError is a non-2xx response from the analysis service.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.RequestID == "" {
		return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s (HTTP %d, request %s)", e.Message, e.StatusCode, e.RequestID)
}

// Temporary reports whether retrying the same request can succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// IsUnauthorized reports whether err is a 401 from the service.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// errorBody is the error envelope the service uses.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
