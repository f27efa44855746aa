package schemas

import (
	"fmt"
	"strings"
)

// -- Finding Schemas --

// Severity represents the severity level of a single finding. The values are
// uppercase to match the analysis service's wire format.
type Severity string

// Constants defining the recognized severity levels, in increasing order.
const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severities lists every recognized level from least to most severe.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank returns the ordinal position of the severity (LOW=1 ... CRITICAL=4), or 0
// for a value outside the closed set.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is one of the four recognized levels.
func (s Severity) Valid() bool { return s.Rank() > 0 }

func (s Severity) String() string { return string(s) }

// ParseSeverity accepts a level name in any case with surrounding whitespace.
// It is meant for user input (CLI flags); wire values are never coerced.
func ParseSeverity(raw string) (Severity, error) {
	s := Severity(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, raw)
	}
	return s, nil
}

// Impact describes the consequences of a finding in two registers.
type Impact struct {
	Technical string `json:"technical" yaml:"technical"`
	Business  string `json:"business" yaml:"business"`
}

// Vulnerability is one detected issue within one analysis. Narrative fields are
// produced by the analysis service and passed through unmodified.
type Vulnerability struct {
	ID   string `json:"_id" yaml:"id"`
	Type string `json:"type" yaml:"type"` // Free-form; not a closed enumeration on the wire.

	Severity    Severity `json:"severity" yaml:"severity"`
	Location    string   `json:"location" yaml:"location"`
	Description string   `json:"description" yaml:"description"`

	AttackerLogic    string `json:"attackerLogic" yaml:"attacker_logic"`
	DefenderLogic    string `json:"defenderLogic" yaml:"defender_logic"`
	SecureCodeFix    string `json:"secureCodeFix" yaml:"secure_code_fix"`
	SimulatedPayload string `json:"simulatedPayload" yaml:"simulated_payload"`
	KillChainStage   string `json:"killChainStage" yaml:"kill_chain_stage"`

	Impact Impact `json:"impact" yaml:"impact"`
}
