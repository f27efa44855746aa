package dashboard

import (
	"fmt"

	"github.com/xkilldash9x/sentinai-cli/api/schemas"
)

// InvalidSeverityError reports a vulnerability whose severity is outside the
// closed set. It rejects the whole aggregation.
type InvalidSeverityError struct {
	ResultID        string
	VulnerabilityID string
	Severity        schemas.Severity
}

func (e *InvalidSeverityError) Error() string {
	return fmt.Sprintf("result %q vulnerability %q: invalid severity %q", e.ResultID, e.VulnerabilityID, e.Severity)
}

func (e *InvalidSeverityError) Unwrap() error { return schemas.ErrInvalidSeverity }

// MalformedTimestampError is a diagnostic for a result left out of the risk
// trend because its createdAt could not be parsed.
type MalformedTimestampError struct {
	ResultID  string
	CreatedAt string
	Err       error
}

func (e *MalformedTimestampError) Error() string {
	return fmt.Sprintf("result %q excluded from risk trend: %v", e.ResultID, e.Err)
}

func (e *MalformedTimestampError) Unwrap() error { return e.Err }
