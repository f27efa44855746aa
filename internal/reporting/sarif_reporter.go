// internal/reporting/sarif_reporter.go
package reporting

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sentinai-cli/api/schemas"
	"github.com/xkilldash9x/sentinai-cli/internal/observability"
	"github.com/xkilldash9x/sentinai-cli/internal/reporting/sarif"
	"github.com/xkilldash9x/sentinai-cli/internal/results"
)

// Constants for tool identification in the SARIF report.
const (
	ToolName     = "SentinAI CLI"
	ToolInfoURI  = "https://github.com/xkilldash9x/sentinai-cli"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"

	// resultURIPrefix addresses a scan stored by the analysis service.
	resultURIPrefix = "sentinai://results/"
)

// ruleIDSanitizer collapses every run of characters outside [A-Za-z0-9_.] to one hyphen.
var ruleIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

// RuleFingerprint identifies a rule definition by its content.
type RuleFingerprint string

// ruleKey is what a rule is defined by. Classified findings share one rule per
// category; unclassified findings get one rule per distinct type label.
func ruleKey(f results.ClassifiedFinding) (name string, cwe string) {
	if f.Category.Classified() {
		return string(f.Category), f.CWE
	}
	name = strings.TrimSpace(f.Type)
	if name == "" {
		name = "Unclassified"
	}
	return name, f.CWE
}

func calculateFingerprint(f results.ClassifiedFinding) RuleFingerprint {
	name, cwe := ruleKey(f)
	data := struct {
		Name       string
		Classified bool
		CWE        string
	}{name, f.Category.Classified(), cwe}

	h := sha1.New()
	_ = json.NewEncoder(h).Encode(data)
	return RuleFingerprint(hex.EncodeToString(h.Sum(nil)))
}

// findingFingerprint is stable across report runs for the same finding.
func findingFingerprint(resultID string, f results.ClassifiedFinding) string {
	h := sha1.Sum([]byte(resultID + "\x00" + f.ID + "\x00" + f.Type + "\x00" + f.Location))
	return hex.EncodeToString(h[:])
}

// SARIFReporter implements the Reporter interface for the SARIF 2.1.0 format.
// It is thread safe.
type SARIFReporter struct {
	writer io.WriteCloser
	logger *zap.Logger
	log    *sarif.Log
	// mu protects the log structure and the maps.
	mu                 sync.Mutex
	rulesByFingerprint map[RuleFingerprint]string
	// ruleIDUsage counts how often a base rule ID was issued, to suffix collisions.
	ruleIDUsage map[string]int
}

// NewSARIFReporter creates a new reporter that writes SARIF output.
func NewSARIFReporter(writer io.WriteCloser, toolVersion string) *SARIFReporter {
	log := &sarif.Log{
		Version: SARIFVersion,
		Schema:  SARIFSchema,
		Runs: []*sarif.Run{
			{
				Tool: &sarif.Tool{
					Driver: &sarif.ToolComponent{
						Name:           ToolName,
						Version:        pString(toolVersion),
						InformationURI: pString(ToolInfoURI),
						Rules:          []*sarif.ReportingDescriptor{},
					},
				},
				Results: []*sarif.Result{},
			},
		},
	}

	return &SARIFReporter{
		writer:             writer,
		logger:             observability.GetLogger().Named("sarif_reporter"),
		log:                log,
		rulesByFingerprint: make(map[RuleFingerprint]string),
		ruleIDUsage:        make(map[string]int),
	}
}

// Write converts every finding of every result in the envelope into a SARIF result.
func (r *SARIFReporter) Write(envelope *Envelope) error {
	startTime := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.log.Runs[0]
	findingsCount := 0

	for _, cr := range envelope.Results {
		for _, finding := range cr.Findings {
			ruleID := r.ensureRule(finding)

			messageText := finding.Description
			if messageText == "" {
				messageText = finding.Type
			}

			props := sarif.PropertyBag{
				"severity":  string(finding.Severity),
				"inputType": string(cr.InputType),
				"riskScore": cr.RiskScore,
			}
			if finding.KillChainStage != "" {
				props["killChainStage"] = finding.KillChainStage
			}

			run.Results = append(run.Results, &sarif.Result{
				RuleID:              ruleID,
				Message:             &sarif.Message{Text: pString(messageText)},
				Level:               mapSeverityToSARIFLevel(finding.Severity),
				Locations:           createLocations(cr.ID, finding),
				PartialFingerprints: map[string]string{"sentinaiFinding/v1": findingFingerprint(cr.ID, finding)},
				Properties:          &props,
			})
			findingsCount++
		}
	}

	if envelope.Metrics != nil {
		run.Properties = &sarif.PropertyBag{
			"totalScans":           envelope.Metrics.TotalScans,
			"totalVulnerabilities": envelope.Metrics.TotalVulnerabilities,
		}
	}

	if findingsCount > 0 {
		r.logger.Debug("Wrote findings to SARIF buffer",
			zap.Int("findings_count", findingsCount),
			zap.Duration("duration", time.Since(startTime)),
		)
	}
	return nil
}

// Close finalizes the SARIF log and writes it to the output writer.
func (r *SARIFReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.log.Runs[0]
	r.logger.Debug("Finalizing SARIF report",
		zap.Int("total_results", len(run.Results)),
		zap.Int("total_rules", len(run.Tool.Driver.Rules)),
	)

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")

	encodeErr := encoder.Encode(r.log)
	// Always attempt to close the writer, regardless of encoding success.
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode SARIF log to JSON", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode SARIF output: %w", encodeErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}

func sanitizeRuleName(name string) string {
	sanitized := strings.Trim(ruleIDSanitizer.ReplaceAllString(strings.ToUpper(name), "-"), "-")
	if sanitized == "" {
		return "UNKNOWN-VULNERABILITY"
	}
	return sanitized
}

// ensureRule returns the rule ID for the finding, registering a new rule on
// first sight. Must be called while holding the mutex.
func (r *SARIFReporter) ensureRule(finding results.ClassifiedFinding) string {
	fingerprint := calculateFingerprint(finding)
	if ruleID, exists := r.rulesByFingerprint[fingerprint]; exists {
		return ruleID
	}

	name, cwe := ruleKey(finding)
	baseRuleID := "SENTINAI-" + sanitizeRuleName(name)

	usageCount := r.ruleIDUsage[baseRuleID]
	r.ruleIDUsage[baseRuleID] = usageCount + 1

	finalRuleID := baseRuleID
	if usageCount > 0 {
		finalRuleID = fmt.Sprintf("%s-%d", baseRuleID, usageCount)
		r.logger.Debug("Rule ID collision detected, generated new ID with suffix",
			zap.String("base_id", baseRuleID),
			zap.String("final_id", finalRuleID),
		)
	}

	tags := []string{"security", "sentinai"}
	if finding.Category.Classified() {
		tags = append(tags, "owasp", string(finding.Category))
	}
	props := sarif.PropertyBag{"tags": tags, "precision": "medium"}
	if cwe != "" {
		props["CWE"] = []string{cwe}
	}

	markdownHelp := fmt.Sprintf("**Category:** %s\n\n**Defender guidance:**\n%s\n\n**Secure fix:**\n%s",
		finding.Category, finding.DefenderLogic, finding.SecureCodeFix)

	driver := r.log.Runs[0].Tool.Driver
	driver.Rules = append(driver.Rules, &sarif.ReportingDescriptor{
		ID:               finalRuleID,
		Name:             pString(name),
		ShortDescription: &sarif.MultiformatMessageString{Text: pString(name)},
		FullDescription:  &sarif.MultiformatMessageString{Text: pString(finding.Description)},
		Help: &sarif.MultiformatMessageString{
			Text:     pString(finding.SecureCodeFix),
			Markdown: pString(markdownHelp),
		},
		Properties: &props,
	})
	r.rulesByFingerprint[fingerprint] = finalRuleID
	return finalRuleID
}

func createLocations(resultID string, finding results.ClassifiedFinding) []*sarif.Location {
	location := &sarif.Location{
		PhysicalLocation: &sarif.PhysicalLocation{
			ArtifactLocation: &sarif.ArtifactLocation{URI: pString(resultURIPrefix + resultID)},
		},
	}
	if finding.Location != "" {
		location.LogicalLocations = []*sarif.LogicalLocation{{Name: pString(finding.Location), Kind: pString("member")}}
		location.Message = &sarif.Message{Text: pString("Vulnerability found at " + finding.Location)}
	}
	return []*sarif.Location{location}
}

func mapSeverityToSARIFLevel(severity schemas.Severity) sarif.Level {
	switch severity {
	case schemas.SeverityCritical, schemas.SeverityHigh:
		return sarif.LevelError
	case schemas.SeverityMedium:
		return sarif.LevelWarning
	default:
		return sarif.LevelNote
	}
}

// pString returns a pointer to the given string value. Helper for optional SARIF fields.
func pString(s string) *string {
	return &s
}
