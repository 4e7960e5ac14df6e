package config

import "time"

// Default returns the built-in configuration. Values here are the documented
// defaults; the loader overlays the yaml file and environment on top.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:    "unified-pim",
			Version: "1.0.0",
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "logs",
			File:  "server.log",
		},
		Web: WebConfig{
			Enabled: true,
			IP:      "0.0.0.0",
			Port:    8090,
		},
		Auth: AuthConfig{
			Store: StoreConfig{
				Type:    "memory",
				Expiry:  90 * 24 * time.Hour,
				Cleanup: 10 * time.Minute,
				SQLite: SQLiteConfig{
					DSN: "data/unified-pim.db",
				},
			},
		},
		Resilience: ResilienceConfig{
			Circuit: CircuitConfig{
				FailureThreshold: 5,
				SuccessThreshold: 3,
				ResetTimeout:     60 * time.Second,
			},
			RateLimit: RateLimitConfig{
				Window:        time.Minute,
				Limit:         100,
				MaxConcurrent: 10,
			},
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseBackoff: 500 * time.Millisecond,
			},
		},
		Cache: CacheConfig{
			Driver:  "memory",
			TTL:     5 * time.Minute,
			Cleanup: time.Minute,
			Semantic: SemanticConfig{
				Enabled: false,
				Model:   "text-embedding-3-small",
			},
		},
		Platforms: map[string]PlatformConfig{
			"microsoft": {
				Enabled:     true,
				AuthURL:     "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
				TokenURL:    "https://login.microsoftonline.com/common/oauth2/v2.0/token",
				BaseURL:     "https://graph.microsoft.com/v1.0",
				RedirectURI: "http://localhost:8090/oauth/callback",
				Scopes: []string{
					"offline_access",
					"User.Read",
					"Mail.ReadWrite",
					"Mail.Send",
					"Calendars.ReadWrite",
					"Contacts.ReadWrite",
					"Tasks.ReadWrite",
				},
				Timeout: 30 * time.Second,
			},
			"google": {
				Enabled:     true,
				AuthURL:     "https://accounts.google.com/o/oauth2/v2/auth",
				TokenURL:    "https://oauth2.googleapis.com/token",
				BaseURL:     "https://www.googleapis.com",
				RedirectURI: "http://localhost:8090/oauth/callback",
				Scopes: []string{
					"https://www.googleapis.com/auth/gmail.modify",
					"https://www.googleapis.com/auth/calendar",
					"https://www.googleapis.com/auth/contacts",
					"https://www.googleapis.com/auth/tasks",
				},
				Timeout: 30 * time.Second,
			},
		},
	}
}
