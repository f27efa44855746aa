// Package owasp tags findings with a coarse OWASP category derived from the
// free-form vulnerability type reported by the analysis service.
package owasp

import (
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
)

// Category is a display bucket for a finding. The zero value, Unclassified,
// means no rule matched and encodes as JSON null.
type Category string

const (
	Unclassified     Category = ""
	SQLInjection     Category = "SQL Injection"
	XSS              Category = "XSS"
	HardcodedSecrets Category = "Hardcoded Secrets"
)

// Categories lists the built-in categories in evaluation order.
var Categories = []Category{SQLInjection, XSS, HardcodedSecrets}

// Classified reports whether c names a category.
func (c Category) Classified() bool { return c != Unclassified }

func (c Category) String() string {
	if c == Unclassified {
		return "Unclassified"
	}
	return string(c)
}

// ParseCategory resolves a category label in any case. "Unclassified" and "none"
// select Unclassified.
func ParseCategory(raw string) (Category, error) {
	label := strings.ToLower(strings.TrimSpace(raw))
	switch label {
	case "unclassified", "none":
		return Unclassified, nil
	case "sqli":
		return SQLInjection, nil
	}
	for _, c := range Categories {
		if strings.ToLower(string(c)) == label {
			return c, nil
		}
	}
	return Unclassified, fmt.Errorf("unknown category %q", raw)
}

// MarshalJSON encodes Unclassified as null and every other category as its label.
func (c Category) MarshalJSON() ([]byte, error) {
	if c == Unclassified {
		return []byte("null"), nil
	}
	return json.Marshal(string(c))
}

// MarshalYAML mirrors MarshalJSON: Unclassified becomes null.
func (c Category) MarshalYAML() (interface{}, error) {
	if c == Unclassified {
		return nil, nil
	}
	return string(c), nil
}

// UnmarshalJSON accepts null or a label.
func (c *Category) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = Unclassified
		return nil
	}
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	*c = Category(label)
	return nil
}

// Rule assigns Category to any normalized type containing one of Tokens.
// Tokens must already be lower case.
type Rule struct {
	Category Category
	Tokens   []string
}

func (r Rule) matches(normalized string) bool {
	for _, token := range r.Tokens {
		if strings.Contains(normalized, token) {
			return true
		}
	}
	return false
}

// DefaultRules returns the built-in rules in priority order. The order is
// observable: "SQL injection via hardcoded credential" is SQL Injection because
// that rule is checked first.
func DefaultRules() []Rule {
	return []Rule{
		{
			Category: SQLInjection,
			Tokens:   []string{"sql", "injection", "sqli", "database injection"},
		},
		{
			Category: XSS,
			Tokens: []string{
				"xss", "cross-site scripting", "script injection",
				"dom-based xss", "stored xss", "reflected xss",
			},
		},
		{
			Category: HardcodedSecrets,
			Tokens: []string{
				"hardcoded", "secret", "credential", "password",
				"api key", "apikey", "token", "private key",
			},
		},
	}
}

// Classifier evaluates an ordered rule list with first-match-wins semantics.
// It is immutable after construction and safe for concurrent use.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier from the default rules followed by any
// extra rules. Extra tokens are lower-cased so callers may write them naturally.
func NewClassifier(extra ...Rule) *Classifier {
	rules := DefaultRules()
	for _, r := range extra {
		tokens := make([]string, 0, len(r.Tokens))
		for _, t := range r.Tokens {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				tokens = append(tokens, t)
			}
		}
		rules = append(rules, Rule{Category: r.Category, Tokens: tokens})
	}
	return &Classifier{rules: rules}
}

// Rules returns a copy of the rule list in evaluation order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Classify maps a raw vulnerability type to a category. It never fails; an empty
// or unrecognized type yields Unclassified.
func (c *Classifier) Classify(rawType string) Category {
	normalized := strings.ToLower(strings.TrimSpace(rawType))
	if normalized == "" {
		return Unclassified
	}
	for _, rule := range c.rules {
		if rule.matches(normalized) {
			return rule.Category
		}
	}
	return Unclassified
}

var defaultClassifier = NewClassifier()

// Classify uses the built-in rules.
func Classify(rawType string) Category {
	return defaultClassifier.Classify(rawType)
}
