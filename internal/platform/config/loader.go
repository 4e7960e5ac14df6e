package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Loader reads the yaml configuration file and overlays environment values.
type Loader struct {
	useDotEnv bool
	path      string
}

// NewLoader creates a loader resolving the config path from PIM_CONFIG or
// the default ./config.yaml.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		path:      os.Getenv("PIM_CONFIG"),
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the configuration file path (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load builds the effective configuration: defaults, then yaml file (if
// present), then environment overrides for secrets.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		_ = godotenv.Load()
	}

	path := l.path
	if path == "" {
		path = "config.yaml"
	}

	cfg := Default()
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	} else {
		path = "defaults"
	}

	applyEnvOverrides(cfg)

	return &Result{
		Config: cfg,
		Path:   path,
	}, nil
}

// applyEnvOverrides injects secrets that should never live in the yaml file:
// MICROSOFT_CLIENT_ID, GOOGLE_CLIENT_SECRET, PIM_ENCRYPTION_KEY, OPENAI_API_KEY.
func applyEnvOverrides(cfg *Config) {
	for name, platform := range cfg.Platforms {
		prefix := strings.ToUpper(name)
		if v := os.Getenv(prefix + "_CLIENT_ID"); v != "" {
			platform.ClientID = v
		}
		if v := os.Getenv(prefix + "_CLIENT_SECRET"); v != "" {
			platform.ClientSecret = v
		}
		cfg.Platforms[name] = platform
	}
	if v := os.Getenv("PIM_ENCRYPTION_KEY"); v != "" {
		cfg.Auth.EncryptionKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Cache.Semantic.APIKey = v
	}
}
