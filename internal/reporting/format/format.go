// Package format names the report encodings understood by the reporting package.
// It has no dependencies so the config layer can validate a format without
// importing the reporters.
package format

import (
	"fmt"
	"strings"
)

// Format is a report encoding.
type Format string

const (
	JSON  Format = "json"
	YAML  Format = "yaml"
	SARIF Format = "sarif"
	JUnit Format = "junit"
	Text  Format = "text"
)

// All lists the supported formats.
var All = []Format{Text, JSON, YAML, SARIF, JUnit}

// Parse accepts a format name in any case. "yml" is an alias for YAML.
func Parse(raw string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "yml" {
		return YAML, nil
	}
	for _, f := range All {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported output format: %s", raw)
}
