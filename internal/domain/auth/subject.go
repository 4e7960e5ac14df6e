package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// SubjectFromIDToken extracts a stable user identifier from an OpenID Connect
// id_token. The token arrives over the freshly established TLS channel to the
// vendor's token endpoint, so the signature is not re-verified here; claims
// are read as-is.
func SubjectFromIDToken(idToken string) (string, error) {
	if idToken == "" {
		return "", errors.New("empty id token")
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return "", fmt.Errorf("parse id token: %w", err)
	}

	// Prefer a human readable identity when the vendor provides one.
	for _, claim := range []string{"preferred_username", "email", "upn", "sub"} {
		if v, ok := claims[claim].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", errors.New("id token carries no subject claim")
}
