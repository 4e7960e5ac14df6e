package httptransport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/auth"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/auth/model"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/auth/store"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/pim"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/platform/config"
)

type stubExchanger struct{}

func (stubExchanger) AuthCodeURL(state, challenge string, scopes []string) string {
	return "https://auth.example.com/authorize?state=" + state
}

func (stubExchanger) ExchangeCode(ctx context.Context, code, verifier string) (model.TokenRecord, error) {
	if code != "good-code" {
		return model.TokenRecord{}, errors.New("bad code")
	}
	return model.TokenRecord{
		AccessToken: "at",
		ExpiresAt:   time.Now().Add(time.Hour),
	}, nil
}

func (stubExchanger) RefreshToken(ctx context.Context, refreshToken string) (model.TokenRecord, error) {
	return model.TokenRecord{}, errors.New("not refreshable")
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func newTestServer(t *testing.T) (*Server, *auth.Manager) {
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

	cfg := config.Default()
	cfg.Web.Port = 0

	srv, err := NewServer(ServerOptions{
		Config:  cfg,
		Service: pim.NewService(map[string]*pim.Adapter{}, nil, time.Minute),
		Tokens:  tokens,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv, tokens
}

func doRequest(srv *Server, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	srv.httpSrv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthzReportsPlatforms(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}

	var resp APIResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success {
		t.Fatalf("healthz not successful: %+v", resp)
	}
}

func TestAuthBeginEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/auth/fake/begin")
	if rec.Code != http.StatusOK {
		t.Fatalf("begin status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "authorization_url") {
		t.Fatalf("missing authorization_url: %s", rec.Body.String())
	}

	rec = doRequest(srv, http.MethodPost, "/api/auth/unknown/begin")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown platform must fail, got %d", rec.Code)
	}
}

func TestOAuthCallbackCompletesFlow(t *testing.T) {
	srv, tokens := newTestServer(t)

	_, state, err := tokens.BeginAuthorization(context.Background(), "fake", nil)
	if err != nil {
		t.Fatalf("BeginAuthorization: %v", err)
	}

	target := "/oauth/callback?state=" + url.QueryEscape(state) + "&code=good-code"
	rec := doRequest(srv, http.MethodGet, target)
	if rec.Code != http.StatusOK {
		t.Fatalf("callback status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "connected") {
		t.Fatalf("missing confirmation page: %s", rec.Body.String())
	}

	if !tokens.HasValidToken(context.Background(), "fake", "default") {
		t.Fatalf("grant not stored after callback")
	}
}

func TestOAuthCallbackRejectsUnknownState(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/oauth/callback?state=bogus&code=x")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown state must 400, got %d", rec.Code)
	}
}

func TestOAuthCallbackPropagatesUpstreamDenial(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/oauth/callback?error=access_denied&error_description=user+cancelled")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("denial must 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "access_denied") {
		t.Fatalf("denial reason missing: %s", rec.Body.String())
	}
}
