package config

import (
	"time"
)

type Config struct {
	Server     ServerConfig              `yaml:"server" mapstructure:"server"`
	Log        LogConfig                 `yaml:"log" mapstructure:"log"`
	Web        WebConfig                 `yaml:"web" mapstructure:"web"`
	Auth       AuthConfig                `yaml:"auth" mapstructure:"auth"`
	Resilience ResilienceConfig          `yaml:"resilience" mapstructure:"resilience"`
	Cache      CacheConfig               `yaml:"cache" mapstructure:"cache"`
	Platforms  map[string]PlatformConfig `yaml:"platforms" mapstructure:"platforms"`
}

type ServerConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
}

type LogConfig struct {
	Level string `yaml:"log_level" mapstructure:"log_level"`
	Dir   string `yaml:"log_dir" mapstructure:"log_dir"`
	File  string `yaml:"log_file" mapstructure:"log_file"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	IP      string `yaml:"ip" mapstructure:"ip"`
	Port    int    `yaml:"port" mapstructure:"port"`
}

// AuthConfig controls token persistence and at-rest encryption.
type AuthConfig struct {
	// EncryptionKey seals token records before they reach the store.
	// Hex-encoded 32 bytes; empty disables sealing (tests only).
	EncryptionKey string      `yaml:"encryption_key" mapstructure:"encryption_key"`
	Store         StoreConfig `yaml:"store" mapstructure:"store"`
}

type StoreConfig struct {
	Type    string           `yaml:"type" mapstructure:"type"`
	Expiry  time.Duration    `yaml:"expiry" mapstructure:"expiry"`
	Cleanup time.Duration    `yaml:"cleanup" mapstructure:"cleanup"`
	Redis   RedisStoreConfig `yaml:"redis,omitempty" mapstructure:"redis"`
	SQLite  SQLiteConfig     `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
}

type RedisStoreConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Username string `yaml:"username,omitempty" mapstructure:"username"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db,omitempty" mapstructure:"db"`
	Prefix   string `yaml:"prefix,omitempty" mapstructure:"prefix"`
}

type SQLiteConfig struct {
	DSN string `yaml:"dsn,omitempty" mapstructure:"dsn"`
}

// ResilienceConfig tunes the admission and failure-isolation layers shared by
// every platform adapter.
type ResilienceConfig struct {
	Circuit   CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
}

type CircuitConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold" mapstructure:"success_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout" mapstructure:"reset_timeout"`
}

type RateLimitConfig struct {
	Window        time.Duration `yaml:"window" mapstructure:"window"`
	Limit         int           `yaml:"limit" mapstructure:"limit"`
	MaxConcurrent int           `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff" mapstructure:"base_backoff"`
}

type CacheConfig struct {
	Driver   string           `yaml:"driver" mapstructure:"driver"`
	TTL      time.Duration    `yaml:"ttl" mapstructure:"ttl"`
	Cleanup  time.Duration    `yaml:"cleanup" mapstructure:"cleanup"`
	Redis    RedisStoreConfig `yaml:"redis,omitempty" mapstructure:"redis"`
	Semantic SemanticConfig   `yaml:"semantic" mapstructure:"semantic"`
}

// SemanticConfig enables the auxiliary vector index over cached documents.
type SemanticConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"url,omitempty" mapstructure:"url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// PlatformConfig describes one vendor backend (Microsoft Graph, Google
// Workspace). Secrets are normally injected via environment overrides.
type PlatformConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	ClientID     string        `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string        `yaml:"client_secret,omitempty" mapstructure:"client_secret"`
	AuthURL      string        `yaml:"auth_url" mapstructure:"auth_url"`
	TokenURL     string        `yaml:"token_url" mapstructure:"token_url"`
	BaseURL      string        `yaml:"base_url" mapstructure:"base_url"`
	RedirectURI  string        `yaml:"redirect_uri" mapstructure:"redirect_uri"`
	Scopes       []string      `yaml:"scopes" mapstructure:"scopes"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
}
