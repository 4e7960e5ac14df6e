package eventbus

import "time"

// Topic identifiers published across the adapter stack.
const (
	// Token lifecycle events.
	EventTokenAcquired  = "token:acquired"
	EventTokenRefreshed = "token:refreshed"
	EventTokenRevoked   = "token:revoked"
	EventReauthRequired = "token:reauth_required"

	// Circuit breaker transitions.
	EventCircuitOpened   = "circuit:opened"
	EventCircuitHalfOpen = "circuit:half_open"
	EventCircuitClosed   = "circuit:closed"

	// Rate limiter denials.
	EventRateLimited = "ratelimit:denied"

	// Cache activity.
	EventCacheInvalidated = "cache:invalidated"

	// System events.
	EventSystemError = "system:error"
)

// TokenEventData describes a token lifecycle change for one grant.
type TokenEventData struct {
	Platform  string    `json:"platform"`
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// CircuitEventData describes a breaker state transition.
type CircuitEventData struct {
	Dependency string `json:"dependency"`
	From       string `json:"from"`
	To         string `json:"to"`
}

// RateLimitEventData describes a denied admission.
type RateLimitEventData struct {
	Identity string    `json:"identity"`
	ResetAt  time.Time `json:"reset_at"`
}

// CacheEventData describes an invalidation.
type CacheEventData struct {
	Key    string `json:"key"`
	Prefix bool   `json:"prefix"`
}

// SystemEventData carries non-fatal operational errors.
type SystemEventData struct {
	Level   string      `json:"level"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
