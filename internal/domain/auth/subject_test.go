package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func signedIDToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestSubjectFromIDToken(t *testing.T) {
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   string
	}{
		{
			name:   "preferred username wins",
			claims: jwt.MapClaims{"preferred_username": "user@contoso.com", "sub": "abc123"},
			want:   "user@contoso.com",
		},
		{
			name:   "email fallback",
			claims: jwt.MapClaims{"email": "user@gmail.com", "sub": "abc123"},
			want:   "user@gmail.com",
		},
		{
			name:   "sub as last resort",
			claims: jwt.MapClaims{"sub": "abc123"},
			want:   "abc123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SubjectFromIDToken(signedIDToken(t, tt.claims))
			if err != nil {
				t.Fatalf("SubjectFromIDToken: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSubjectFromIDTokenErrors(t *testing.T) {
	if _, err := SubjectFromIDToken(""); err == nil {
		t.Fatalf("expected error for empty token")
	}
	if _, err := SubjectFromIDToken("not-a-jwt"); err == nil {
		t.Fatalf("expected error for malformed token")
	}
	if _, err := SubjectFromIDToken(signedIDToken(t, jwt.MapClaims{"aud": "x"})); err == nil {
		t.Fatalf("expected error when no subject claim present")
	}
}
