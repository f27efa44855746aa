package schemas

// User is the authenticated account as reported by the service.
type User struct {
	ID      string `json:"_id" yaml:"id"`
	Email   string `json:"email" yaml:"email"`
	Name    string `json:"name" yaml:"name"`
	Picture string `json:"picture,omitempty" yaml:"picture,omitempty"`
}

// AuthResponse is returned by the token exchange endpoint.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// GoogleLoginRequest carries a Google ID token to exchange for a session token.
type GoogleLoginRequest struct {
	Token string `json:"token"`
}

// EthicalNotice is one ethical-use policy published by the service.
type EthicalNotice struct {
	Title       string `json:"title" yaml:"title"`
	Content     string `json:"content" yaml:"content"`
	LastUpdated string `json:"lastUpdated" yaml:"last_updated"`
}

// ComplianceCheck asks the service whether an intended use is acceptable.
type ComplianceCheck struct {
	InputType InputType `json:"inputType,omitempty"`
	Content   string    `json:"content"`
	Purpose   string    `json:"purpose,omitempty"`
}

// ComplianceVerdict is the service's answer to a ComplianceCheck.
type ComplianceVerdict struct {
	Compliant bool     `json:"compliant" yaml:"compliant"`
	Message   string   `json:"message,omitempty" yaml:"message,omitempty"`
	Warnings  []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}
