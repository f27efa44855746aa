package reporting

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/beevik/etree"

	"github.com/xkilldash9x/sentinai-cli/internal/results"
)

// JUnitReporter renders scans as JUnit XML so CI systems can gate on them: one
// testsuite per scan, one failing testcase per finding. A scan without findings
// gets a single passing testcase.
type JUnitReporter struct {
	writer io.WriteCloser
	mu     sync.Mutex
	doc    *etree.Document
	root   *etree.Element
	tests  int
	fails  int
}

// NewJUnitReporter creates a JUnit reporter that takes ownership of writer.
func NewJUnitReporter(writer io.WriteCloser) *JUnitReporter {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("testsuites")
	root.CreateAttr("name", ToolName)
	return &JUnitReporter{writer: writer, doc: doc, root: root}
}

func (r *JUnitReporter) Write(envelope *Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cr := range envelope.Results {
		r.addSuite(cr)
	}
	return nil
}

func (r *JUnitReporter) addSuite(cr results.ClassifiedResult) {
	suite := r.root.CreateElement("testsuite")
	suite.CreateAttr("name", fmt.Sprintf("%s scan %s", cr.InputType, cr.ID))
	suite.CreateAttr("id", cr.ID)
	if cr.CreatedAt != "" {
		suite.CreateAttr("timestamp", cr.CreatedAt)
	}

	props := suite.CreateElement("properties")
	addProperty(props, "riskScore", strconv.Itoa(cr.RiskScore))
	addProperty(props, "inputType", string(cr.InputType))

	tests := len(cr.Findings)
	if tests == 0 {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("classname", "sentinai."+string(cr.InputType))
		tc.CreateAttr("name", "no vulnerabilities detected")
		tests = 1
	}
	for _, f := range cr.Findings {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("classname", "sentinai."+classNameFor(f))
		tc.CreateAttr("name", testCaseName(f))

		failure := tc.CreateElement("failure")
		failure.CreateAttr("type", string(f.Severity))
		failure.CreateAttr("message", f.Description)
		failure.SetText(failureBody(f))
	}

	suite.CreateAttr("tests", strconv.Itoa(tests))
	suite.CreateAttr("failures", strconv.Itoa(len(cr.Findings)))
	r.tests += tests
	r.fails += len(cr.Findings)
}

func addProperty(parent *etree.Element, name, value string) {
	p := parent.CreateElement("property")
	p.CreateAttr("name", name)
	p.CreateAttr("value", value)
}

func classNameFor(f results.ClassifiedFinding) string {
	if !f.Category.Classified() {
		return "unclassified"
	}
	return strings.ToLower(strings.ReplaceAll(string(f.Category), " ", "_"))
}

func testCaseName(f results.ClassifiedFinding) string {
	if f.Location == "" {
		return f.Type
	}
	return fmt.Sprintf("%s at %s", f.Type, f.Location)
}

func failureBody(f results.ClassifiedFinding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Severity: %s\n", f.Severity)
	if f.CWE != "" {
		fmt.Fprintf(&b, "CWE: %s\n", f.CWE)
	}
	if f.Impact.Technical != "" {
		fmt.Fprintf(&b, "Technical impact: %s\n", f.Impact.Technical)
	}
	if f.Impact.Business != "" {
		fmt.Fprintf(&b, "Business impact: %s\n", f.Impact.Business)
	}
	if f.SecureCodeFix != "" {
		fmt.Fprintf(&b, "Fix: %s\n", f.SecureCodeFix)
	}
	return b.String()
}

// Close serializes the document and closes the writer.
func (r *JUnitReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.root.CreateAttr("tests", strconv.Itoa(r.tests))
	r.root.CreateAttr("failures", strconv.Itoa(r.fails))
	r.doc.Indent(2)

	_, writeErr := r.doc.WriteTo(r.writer)
	closeErr := r.writer.Close()
	if writeErr != nil {
		return fmt.Errorf("failed to write JUnit report: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}
