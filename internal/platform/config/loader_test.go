package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	loader := NewLoader().WithDotEnv(false).WithPath(filepath.Join(t.TempDir(), "absent.yaml"))

	result, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := result.Config

	if cfg.Server.Name != "unified-pim" {
		t.Fatalf("default server name missing: %s", cfg.Server.Name)
	}
	if cfg.Resilience.RateLimit.Limit != 100 || cfg.Resilience.RateLimit.Window != time.Minute {
		t.Fatalf("default rate limit wrong: %+v", cfg.Resilience.RateLimit)
	}
	if _, ok := cfg.Platforms["microsoft"]; !ok {
		t.Fatalf("microsoft platform missing from defaults")
	}
	if _, ok := cfg.Platforms["google"]; !ok {
		t.Fatalf("google platform missing from defaults")
	}
}

func TestLoadOverlaysYaml(t *testing.T) {
	path := writeConfig(t, `
server:
  name: pim-test
web:
  port: 9000
resilience:
  circuit:
    failure_threshold: 2
cache:
  driver: redis
  redis:
    addr: localhost:6379
`)

	result, err := NewLoader().WithDotEnv(false).WithPath(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := result.Config

	if cfg.Server.Name != "pim-test" {
		t.Fatalf("yaml overlay lost: %s", cfg.Server.Name)
	}
	if cfg.Web.Port != 9000 {
		t.Fatalf("yaml port lost: %d", cfg.Web.Port)
	}
	if cfg.Resilience.Circuit.FailureThreshold != 2 {
		t.Fatalf("yaml circuit threshold lost: %d", cfg.Resilience.Circuit.FailureThreshold)
	}
	if cfg.Cache.Driver != "redis" || cfg.Cache.Redis.Addr != "localhost:6379" {
		t.Fatalf("yaml cache config lost: %+v", cfg.Cache)
	}
	if result.Path != path {
		t.Fatalf("origin path not recorded: %s", result.Path)
	}
}

func TestEnvOverridesInjectSecrets(t *testing.T) {
	t.Setenv("MICROSOFT_CLIENT_ID", "ms-client")
	t.Setenv("GOOGLE_CLIENT_SECRET", "g-secret")
	t.Setenv("PIM_ENCRYPTION_KEY", "abc123")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	result, err := NewLoader().WithDotEnv(false).WithPath(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := result.Config

	if cfg.Platforms["microsoft"].ClientID != "ms-client" {
		t.Fatalf("microsoft client id not injected")
	}
	if cfg.Platforms["google"].ClientSecret != "g-secret" {
		t.Fatalf("google client secret not injected")
	}
	if cfg.Auth.EncryptionKey != "abc123" {
		t.Fatalf("encryption key not injected")
	}
	if cfg.Cache.Semantic.APIKey != "sk-test" {
		t.Fatalf("openai key not injected")
	}
}

func TestLoadRejectsMalformedYaml(t *testing.T) {
	path := writeConfig(t, "server: [broken")

	if _, err := NewLoader().WithDotEnv(false).WithPath(path).Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}
