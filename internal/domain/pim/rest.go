package pim

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/auth"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/auth/model"
)

// BackendConfig describes one vendor's OAuth endpoints and API root.
type BackendConfig struct {
	Name         string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	BaseURL      string
	RedirectURI  string
	Timeout      time.Duration
}

// RESTBackend carries the OAuth2 and HTTP plumbing shared by every vendor.
// Vendor packages embed it and contribute only their codec.
type RESTBackend struct {
	name    string
	baseURL string
	oauth   *oauth2.Config
	client  *http.Client
}

// NewRESTBackend builds the shared transport for one vendor.
func NewRESTBackend(cfg BackendConfig) *RESTBackend {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RESTBackend{
		name:    cfg.Name,
		baseURL: cfg.BaseURL,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		client: &http.Client{Timeout: timeout},
	}
}

// Name returns the vendor identifier used for circuits and cache keys.
func (b *RESTBackend) Name() string {
	return b.name
}

// AuthCodeURL builds the vendor authorization URL with the PKCE challenge.
func (b *RESTBackend) AuthCodeURL(state, challenge string, scopes []string) string {
	cfg := *b.oauth
	cfg.Scopes = scopes
	return cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// ExchangeCode trades the authorization code plus verifier for a token
// record. The subject is taken from the id_token when present.
func (b *RESTBackend) ExchangeCode(ctx context.Context, code, verifier string) (model.TokenRecord, error) {
	token, err := b.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return model.TokenRecord{}, fmt.Errorf("token exchange: %w", err)
	}
	return b.recordFromToken(token), nil
}

// RefreshToken renews the grant using the stored refresh token.
func (b *RESTBackend) RefreshToken(ctx context.Context, refreshToken string) (model.TokenRecord, error) {
	source := b.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return model.TokenRecord{}, fmt.Errorf("token refresh: %w", err)
	}
	return b.recordFromToken(token), nil
}

func (b *RESTBackend) recordFromToken(token *oauth2.Token) model.TokenRecord {
	record := model.TokenRecord{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		if subject, err := auth.SubjectFromIDToken(idToken); err == nil {
			record.Subject = subject
		}
	}
	return record
}

// Do issues the HTTP call with the bearer token injected. A non-nil error
// means the transport failed; otherwise the raw body and status are returned
// for the adapter to classify.
func (b *RESTBackend) Do(ctx context.Context, accessToken string, req Request) ([]byte, int, error) {
	url := b.baseURL + req.Path
	if len(req.Query) > 0 {
		url += "?" + req.Query.Encode()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Accept", "application/json")
	if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return raw, resp.StatusCode, nil
}
