package reporting

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLReporter writes each envelope as a YAML document in a single stream.
type YAMLReporter struct {
	writer  io.WriteCloser
	encoder *yaml.Encoder
}

// NewYAMLReporter creates a YAML reporter that takes ownership of writer.
func NewYAMLReporter(writer io.WriteCloser) *YAMLReporter {
	enc := yaml.NewEncoder(writer)
	enc.SetIndent(2)
	return &YAMLReporter{writer: writer, encoder: enc}
}

func (r *YAMLReporter) Write(envelope *Envelope) error {
	if err := r.encoder.Encode(normalized(envelope)); err != nil {
		return fmt.Errorf("failed to encode YAML report: %w", err)
	}
	return nil
}

func (r *YAMLReporter) Close() error {
	encErr := r.encoder.Close()
	closeErr := r.writer.Close()
	if encErr != nil {
		return fmt.Errorf("failed to flush YAML report: %w", encErr)
	}
	return closeErr
}
