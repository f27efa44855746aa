// -- internal/reporting/reporter.go --
package reporting

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/xkilldash9x/sentinai-cli/api/schemas"
	"github.com/xkilldash9x/sentinai-cli/internal/reporting/format"
	"github.com/xkilldash9x/sentinai-cli/internal/results"
)

// Envelope is one unit of report output: classified scans and, optionally,
// the dashboard metrics computed over them.
type Envelope struct {
	GeneratedAt time.Time                  `json:"generatedAt" yaml:"generated_at"`
	Results     []results.ClassifiedResult `json:"results" yaml:"results"`
	Metrics     *schemas.DashboardMetrics  `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// Reporter defines the interface for writing results to an output.
type Reporter interface {
	// Write processes a single envelope.
	Write(envelope *Envelope) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// NopCloser lets a reporter write to w without ever closing it.
func NopCloser(w io.Writer) io.WriteCloser {
	return &nopWriteCloser{w}
}

// New creates a reporter for the named format writing to outputPath. An empty
// path or "stdout" selects standard output.
func New(formatName, outputPath, toolVersion string) (Reporter, error) {
	f, err := format.Parse(formatName)
	if err != nil {
		return nil, err
	}

	if outputPath == "" || outputPath == "stdout" {
		return NewForWriter(f, NopCloser(os.Stdout), toolVersion), nil
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
	}
	return NewForWriter(f, file, toolVersion), nil
}

// NewForWriter creates a reporter that takes ownership of writer.
func NewForWriter(f format.Format, writer io.WriteCloser, toolVersion string) Reporter {
	switch f {
	case format.SARIF:
		return NewSARIFReporter(writer, toolVersion)
	case format.JUnit:
		return NewJUnitReporter(writer)
	case format.JSON:
		return NewJSONReporter(writer)
	case format.YAML:
		return NewYAMLReporter(writer)
	default:
		return NewTextReporter(writer)
	}
}
