package model

import "time"

// TokenRecord is the single token grant held per (platform, subject).
// ExpiresAt is the authoritative input for refresh scheduling; a record with
// no refresh token cannot be renewed and its expiry is terminal.
type TokenRecord struct {
	Platform     string    `json:"platform"`
	Subject      string    `json:"subject"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       []string  `json:"scopes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Expired reports whether the token is unusable at the given instant.
func (t TokenRecord) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// Refreshable reports whether the record carries a refresh token.
func (t TokenRecord) Refreshable() bool {
	return t.RefreshToken != ""
}

// PkceChallenge is the ephemeral verifier/challenge/state triple created when
// an authorization URL is issued. It is consumed exactly once by the matching
// code exchange.
type PkceChallenge struct {
	Verifier  string    `json:"verifier"`
	Challenge string    `json:"challenge"`
	State     string    `json:"state"`
	Platform  string    `json:"platform"`
	Scopes    []string  `json:"scopes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Logger provides the minimal logging contract required by the auth domain.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}
