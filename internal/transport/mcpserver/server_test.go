package mcpserver

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/auth"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/auth/model"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/auth/store"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/pim"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/resilience/circuit"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/resilience/ratelimit"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type stubExchanger struct{}

func (stubExchanger) AuthCodeURL(state, challenge string, scopes []string) string {
	return "https://auth.example.com/authorize?state=" + state
}

func (stubExchanger) ExchangeCode(ctx context.Context, code, verifier string) (model.TokenRecord, error) {
	return model.TokenRecord{
		AccessToken: "at-" + code,
		ExpiresAt:   time.Now().Add(time.Hour),
	}, nil
}

func (stubExchanger) RefreshToken(ctx context.Context, refreshToken string) (model.TokenRecord, error) {
	return model.TokenRecord{}, errors.New("not refreshable")
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	tokens, err := auth.NewManager(auth.Options{
		Store:      store.NewMemory(store.Config{TTL: time.Hour}),
		Logger:     nopLogger{},
		Exchangers: map[string]auth.TokenExchanger{"fake": stubExchanger{}},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { _ = tokens.Close() })

	svc := pim.NewService(map[string]*pim.Adapter{}, nil, time.Minute)
	srv, err := New(Options{
		Service: svc,
		Tokens:  tokens,
		Logger:  nopLogger{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) != 1 {
		t.Fatalf("expected single content item, got %d", len(result.Content))
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestAuthBeginReturnsURLAndState(t *testing.T) {
	srv := newTestServer(t)

	result, err := srv.handleAuthBegin(context.Background(), callRequest(map[string]any{
		"platform": "fake",
		"scopes":   "mail.read calendar.read",
	}))
	if err != nil {
		t.Fatalf("handleAuthBegin: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", textOf(t, result))
	}
	text := textOf(t, result)
	if !strings.Contains(text, "authorization_url") || !strings.Contains(text, "https://auth.example.com/authorize") {
		t.Fatalf("missing authorization url: %s", text)
	}
	if !strings.Contains(text, "state") {
		t.Fatalf("missing state: %s", text)
	}
}

func TestAuthBeginMissingPlatform(t *testing.T) {
	srv := newTestServer(t)

	result, err := srv.handleAuthBegin(context.Background(), callRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handleAuthBegin: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected tool error for missing platform")
	}
}

func TestAuthCompleteUnknownStateSanitized(t *testing.T) {
	srv := newTestServer(t)

	result, err := srv.handleAuthComplete(context.Background(), callRequest(map[string]any{
		"state": "bogus",
		"code":  "abc",
	}))
	if err != nil {
		t.Fatalf("handleAuthComplete: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected tool error for unknown state")
	}
	text := textOf(t, result)
	if !strings.Contains(text, codeInvalidState) {
		t.Fatalf("expected %s code, got: %s", codeInvalidState, text)
	}
}

func TestEmailGetUnknownPlatform(t *testing.T) {
	srv := newTestServer(t)

	result, err := srv.handleEmailGet(context.Background(), callRequest(map[string]any{
		"platform": "nope",
		"subject":  "user@example.com",
		"id":       "m1",
	}))
	if err != nil {
		t.Fatalf("handleEmailGet: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected tool error for unknown platform")
	}
}

func TestClassifyStableCodes(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{auth.ErrInvalidState, codeInvalidState},
		{auth.ErrReauthRequired, codeReauth},
		{&ratelimit.LimitedError{Identity: "x", ResetAt: time.Now()}, codeRateLimited},
		{&circuit.OpenError{Dependency: "microsoft", RetryAfter: 30 * time.Second}, codeCircuitOpen},
		{&pim.UpstreamError{Platform: "microsoft", Status: 404}, codeNotFound},
		{&pim.UpstreamError{Platform: "microsoft", Status: 503}, codeUpstream},
		{&pim.NetworkError{Platform: "google", Cause: errors.New("dial tcp: timeout")}, codeNetwork},
		{context.Canceled, codeCancelled},
		{errors.New("anything else"), codeInternal},
	}
	for _, tc := range cases {
		code, message := classify(tc.err)
		if code != tc.code {
			t.Fatalf("classify(%v) = %s, want %s", tc.err, code, tc.code)
		}
		if message == "" {
			t.Fatalf("classify(%v) returned empty message", tc.err)
		}
	}
}

func TestClassifyNeverLeaksDetail(t *testing.T) {
	_, message := classify(errors.New("token at-secret-value leaked in wrapped error"))
	if strings.Contains(message, "secret") {
		t.Fatalf("internal detail leaked: %s", message)
	}
}
