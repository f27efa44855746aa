package reporting

import (
	"fmt"
	"io"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/sentinai-cli/internal/results"
)

// JSONReporter writes each envelope as an indented JSON document.
type JSONReporter struct {
	writer  io.WriteCloser
	encoder *json.Encoder
}

// NewJSONReporter creates a JSON reporter that takes ownership of writer.
func NewJSONReporter(writer io.WriteCloser) *JSONReporter {
	enc := json.NewEncoder(writer)
	enc.SetIndent("", "  ")
	return &JSONReporter{writer: writer, encoder: enc}
}

func (r *JSONReporter) Write(envelope *Envelope) error {
	if err := r.encoder.Encode(normalized(envelope)); err != nil {
		return fmt.Errorf("failed to encode JSON report: %w", err)
	}
	return nil
}

func (r *JSONReporter) Close() error {
	return r.writer.Close()
}

// normalized returns a copy of envelope whose slices encode as [] rather than null.
func normalized(envelope *Envelope) *Envelope {
	out := *envelope
	if out.Results == nil {
		out.Results = []results.ClassifiedResult{}
	}
	if out.Metrics != nil {
		m := *out.Metrics
		m.Normalize()
		out.Metrics = &m
	}
	return &out
}
