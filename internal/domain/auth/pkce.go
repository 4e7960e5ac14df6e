package auth

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/auth/model"
)

// newPkceChallenge issues a fresh verifier/challenge/state triple for one
// authorization attempt. The verifier never leaves the process.
func newPkceChallenge(platform string, scopes []string) model.PkceChallenge {
	verifier := oauth2.GenerateVerifier()
	return model.PkceChallenge{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
		State:     uuid.NewString(),
		Platform:  platform,
		Scopes:    scopes,
		CreatedAt: time.Now(),
	}
}
