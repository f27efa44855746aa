package providers

import (
	"fmt"

	"github.com/xkilldash9x/sentinai-cli/internal/owasp"
)

// CWEEntry holds details about a specific CWE.
type CWEEntry struct {
	ID          string
	Name        string
	Description string
}

// CWEProvider maps an OWASP category to the weakness it most commonly stands for.
type CWEProvider interface {
	ForCategory(c owasp.Category) (*CWEEntry, bool)
	GetCWE(id string) (*CWEEntry, error)
}

// InMemoryCWEProvider is a static CWEProvider covering the built-in categories.
type InMemoryCWEProvider struct {
	data       map[string]CWEEntry
	categories map[owasp.Category]string
}

// NewInMemoryCWEProvider returns a provider preloaded with the CWEs behind the
// built-in categories.
func NewInMemoryCWEProvider() *InMemoryCWEProvider {
	data := map[string]CWEEntry{
		"CWE-79":  {ID: "CWE-79", Name: "Improper Neutralization of Input During Web Page Generation ('Cross-site Scripting')", Description: "The software does not neutralize or incorrectly neutralizes user-controllable input before it is placed in output that is used as a web page that is served to other users."},
		"CWE-89":  {ID: "CWE-89", Name: "Improper Neutralization of Special Elements used in an SQL Command ('SQL Injection')", Description: "The software constructs all or part of an SQL command using externally-influenced input from an upstream component, but it does not neutralize or incorrectly neutralizes special elements that could modify the intended SQL command."},
		"CWE-798": {ID: "CWE-798", Name: "Use of Hard-coded Credentials", Description: "The product contains hard-coded credentials, such as a password or cryptographic key, which it uses for its own inbound authentication, outbound communication to external components, or encryption of internal data."},
	}
	return &InMemoryCWEProvider{
		data: data,
		categories: map[owasp.Category]string{
			owasp.SQLInjection:     "CWE-89",
			owasp.XSS:              "CWE-79",
			owasp.HardcodedSecrets: "CWE-798",
		},
	}
}

// ForCategory returns the CWE for c. Unclassified and unknown categories have none.
func (p *InMemoryCWEProvider) ForCategory(c owasp.Category) (*CWEEntry, bool) {
	id, ok := p.categories[c]
	if !ok {
		return nil, false
	}
	entry := p.data[id]
	return &entry, true
}

// GetCWE retrieves CWE details by ID. Unknown IDs yield a placeholder entry
// rather than an error so enrichment never fails.
func (p *InMemoryCWEProvider) GetCWE(id string) (*CWEEntry, error) {
	entry, exists := p.data[id]
	if !exists {
		return &CWEEntry{ID: id, Name: fmt.Sprintf("%s (Details Not Found)", id), Description: "Details for this CWE ID are not available in the local database."}, nil
	}
	return &entry, nil
}
