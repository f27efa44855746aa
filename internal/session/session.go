// Package session persists the bearer token obtained from the analysis service
// between CLI invocations.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/sentinai-cli/api/schemas"
)

var (
	// ErrNoSession is returned by Load when nobody is logged in.
	ErrNoSession = errors.New("not logged in: run 'sentinai login' first")
	// ErrSessionExpired is returned when the stored token is past its exp claim.
	ErrSessionExpired = errors.New("session expired: run 'sentinai login' again")
)

const fileMode = 0o600

// Session is the persisted login state.
type Session struct {
	Token      string       `json:"token"`
	User       schemas.User `json:"user"`
	ObtainedAt time.Time    `json:"obtainedAt"`
}

// New builds a session from a token exchange response.
func New(resp schemas.AuthResponse, now time.Time) *Session {
	return &Session{Token: resp.Token, User: resp.User, ObtainedAt: now.UTC()}
}

// ExpiresAt reads the exp claim from the token. The signature is not checked;
// the service does that on every request. ok is false for opaque tokens or
// tokens without exp.
func (s *Session) ExpiresAt() (exp time.Time, ok bool) {
	if s == nil || s.Token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, claims); err != nil {
		return time.Time{}, false
	}
	date, err := claims.GetExpirationTime()
	if err != nil || date == nil {
		return time.Time{}, false
	}
	return date.Time, true
}

// Expired reports whether the token has an exp claim at or before now.
func (s *Session) Expired(now time.Time) bool {
	exp, ok := s.ExpiresAt()
	return ok && !now.Before(exp)
}

// Check returns ErrNoSession or ErrSessionExpired when s cannot be used.
func (s *Session) Check(now time.Time) error {
	if s == nil || s.Token == "" {
		return ErrNoSession
	}
	if s.Expired(now) {
		return ErrSessionExpired
	}
	return nil
}

// Load reads the session file at path.
func Load(path string) (*Session, error) {
	resolved, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand session path: %w", err)
	}
	data, err := os.ReadFile(resolved)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session file %s: %w", resolved, err)
	}
	if s.Token == "" {
		return nil, ErrNoSession
	}
	return &s, nil
}

// Save writes s to path with owner-only permissions, creating parent directories.
func Save(path string, s *Session) error {
	if s == nil || s.Token == "" {
		return errors.New("refusing to save an empty session")
	}
	resolved, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("failed to expand session path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	// Write then rename so a crash never leaves a truncated token behind.
	tmp, err := os.CreateTemp(filepath.Dir(resolved), ".session-*")
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict session file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), resolved); err != nil {
		return fmt.Errorf("failed to install session file: %w", err)
	}
	return nil
}

// Clear removes the session file. A missing file is not an error.
func Clear(path string) error {
	resolved, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("failed to expand session path: %w", err)
	}
	if err := os.Remove(resolved); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
