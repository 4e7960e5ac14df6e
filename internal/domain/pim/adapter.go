package pim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/auth"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/cache"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/eventbus"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/resilience/circuit"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/resilience/ratelimit"
)

// Operation is one domain-level call flowing through the adapter.
type Operation struct {
	Name    string
	Subject string
	Request Request

	// Read marks the operation idempotent and cacheable.
	Read bool

	// CacheKey, when set, is probed before the network on reads and
	// invalidated after mutations.
	CacheKey string
	CacheTTL time.Duration

	// InvalidatePrefixes removes related list-level entries after a
	// mutation, before the call returns.
	InvalidatePrefixes []string

	// IndexText, when set, derives the text indexed semantically from the
	// successful response. Indexing is best-effort.
	IndexText func(body []byte) string
}

// RetryConfig bounds local retries for transient upstream failures.
type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

// AdapterOptions wires one platform adapter.
type AdapterOptions struct {
	Backend  Backend
	Tokens   *auth.Manager
	Limiter  *ratelimit.Limiter
	Breaker  *circuit.Breaker
	Cache    cache.Cache
	Semantic *cache.SemanticIndex
	Logger   auth.Logger
	Retry    RetryConfig
}

// Adapter orchestrates every vendor call: admission, circuit, cache, token,
// HTTP, cache maintenance. One instance exists per platform, all sharing the
// process-wide limiter and breaker.
type Adapter struct {
	platform string
	backend  Backend
	tokens   *auth.Manager
	limiter  *ratelimit.Limiter
	breaker  *circuit.Breaker
	cache    cache.Cache
	semantic *cache.SemanticIndex
	logger   auth.Logger
	retry    RetryConfig

	sleep func(ctx context.Context, d time.Duration) error
}

// NewAdapter builds an adapter for one backend.
func NewAdapter(opts AdapterOptions) (*Adapter, error) {
	if opts.Backend == nil {
		return nil, errors.New("adapter requires a backend")
	}
	if opts.Tokens == nil || opts.Limiter == nil || opts.Breaker == nil || opts.Cache == nil {
		return nil, errors.New("adapter requires tokens, limiter, breaker and cache")
	}
	if opts.Logger == nil {
		return nil, errors.New("adapter requires a logger")
	}
	retry := opts.Retry
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 3
	}
	if retry.BaseBackoff <= 0 {
		retry.BaseBackoff = 500 * time.Millisecond
	}

	return &Adapter{
		platform: opts.Backend.Name(),
		backend:  opts.Backend,
		tokens:   opts.Tokens,
		limiter:  opts.Limiter,
		breaker:  opts.Breaker,
		cache:    opts.Cache,
		semantic: opts.Semantic,
		logger:   opts.Logger,
		retry:    retry,
		sleep:    sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Platform returns the backend name the adapter serves.
func (a *Adapter) Platform() string {
	return a.platform
}

// Invoke runs one operation through the full pipeline. Admission is charged
// on attempt and never refunded; cache invalidation for mutations happens
// synchronously before return.
func (a *Adapter) Invoke(ctx context.Context, op Operation) ([]byte, error) {
	identity := a.platform + "/" + op.Subject

	_, release, err := a.limiter.Acquire(identity)
	if err != nil {
		var limited *ratelimit.LimitedError
		if errors.As(err, &limited) {
			eventbus.PublishAsync(eventbus.EventRateLimited, eventbus.RateLimitEventData{
				Identity: identity,
				ResetAt:  limited.ResetAt,
			})
		}
		a.logger.Debug("admission denied: op=%s identity=%s", op.Name, identity)
		return nil, err
	}
	defer release()

	if op.Read && op.CacheKey != "" {
		if value, hit, cerr := a.cache.Get(ctx, op.CacheKey); cerr != nil {
			a.logger.Warn("cache probe failed: key=%s: %v", op.CacheKey, cerr)
		} else if hit {
			a.logger.Debug("cache hit: op=%s key=%s", op.Name, op.CacheKey)
			return value, nil
		}
	}

	token, err := a.tokens.GetValidToken(ctx, a.platform, op.Subject)
	if err != nil {
		return nil, err
	}

	body, err := a.call(ctx, token.AccessToken, op)
	if err != nil {
		return nil, err
	}

	if op.Read {
		if op.CacheKey != "" {
			if cerr := a.cache.Set(ctx, op.CacheKey, body, op.CacheTTL); cerr != nil {
				a.logger.Warn("cache write failed: key=%s: %v", op.CacheKey, cerr)
			}
			a.indexSemantic(ctx, op, body)
		}
	} else {
		a.invalidate(ctx, op)
	}
	return body, nil
}

// call performs the HTTP request under the circuit with bounded retries for
// transient failures.
func (a *Adapter) call(ctx context.Context, accessToken string, op Operation) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= a.retry.MaxAttempts; attempt++ {
		var body []byte
		var opErr error

		err := a.breaker.Execute(ctx, a.platform, func(ctx context.Context) error {
			raw, status, doErr := a.backend.Do(ctx, accessToken, op.Request)
			if doErr != nil {
				opErr = &NetworkError{Platform: a.platform, Cause: doErr}
				return opErr
			}
			if status >= 500 || status == 429 {
				opErr = upstreamFromBody(a.platform, status, raw)
				return opErr
			}
			if status >= 400 {
				// Client error: surfaced, but neither retried nor
				// counted against backend health.
				opErr = upstreamFromBody(a.platform, status, raw)
				return nil
			}
			body, opErr = raw, nil
			return nil
		})

		var open *circuit.OpenError
		if errors.As(err, &open) {
			return nil, err
		}

		if opErr == nil {
			return body, nil
		}
		lastErr = opErr
		if !retryableError(opErr) || attempt == a.retry.MaxAttempts {
			break
		}

		backoff := a.retry.BaseBackoff << (attempt - 1)
		a.logger.Debug("retrying op=%s attempt=%d backoff=%s: %v", op.Name, attempt, backoff, opErr)
		if serr := a.sleep(ctx, backoff); serr != nil {
			return nil, serr
		}
	}
	return nil, lastErr
}

func retryableError(err error) bool {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Retryable()
	}
	var network *NetworkError
	return errors.As(err, &network)
}

// upstreamFromBody extracts a vendor error code when the body carries the
// common {"error":{"code","message"}} envelope.
func upstreamFromBody(platform string, status int, body []byte) *UpstreamError {
	upstream := &UpstreamError{Platform: platform, Status: status}

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := sonic.Unmarshal(body, &envelope); err == nil {
		upstream.Code = envelope.Error.Code
		if upstream.Code == "" {
			upstream.Code = envelope.Error.Status
		}
		upstream.Message = envelope.Error.Message
	}
	if upstream.Message == "" {
		upstream.Message = fmt.Sprintf("http status %d", status)
	}
	return upstream
}

func (a *Adapter) indexSemantic(ctx context.Context, op Operation, body []byte) {
	if a.semantic == nil || op.IndexText == nil {
		return
	}
	text := op.IndexText(body)
	if text == "" {
		return
	}
	if err := a.semantic.Upsert(ctx, op.CacheKey, text); err != nil {
		a.logger.Warn("semantic index skipped: key=%s: %v", op.CacheKey, err)
	}
}

func (a *Adapter) invalidate(ctx context.Context, op Operation) {
	if op.CacheKey != "" {
		if err := a.cache.Invalidate(ctx, op.CacheKey); err != nil {
			a.logger.Warn("cache invalidation failed: key=%s: %v", op.CacheKey, err)
		}
		if a.semantic != nil {
			a.semantic.Remove(op.CacheKey)
		}
		eventbus.PublishAsync(eventbus.EventCacheInvalidated, eventbus.CacheEventData{Key: op.CacheKey})
	}
	for _, prefix := range op.InvalidatePrefixes {
		if err := a.cache.InvalidatePrefix(ctx, prefix); err != nil {
			a.logger.Warn("cache prefix invalidation failed: prefix=%s: %v", prefix, err)
		}
		eventbus.PublishAsync(eventbus.EventCacheInvalidated, eventbus.CacheEventData{Key: prefix, Prefix: true})
	}
}

// Health reports the adapter's current resilience posture for one subject.
func (a *Adapter) Health(ctx context.Context, subject string) map[string]any {
	identity := a.platform + "/" + subject
	decision := a.limiter.Peek(identity)

	return map[string]any{
		"platform":             a.platform,
		"circuit_state":        string(a.breaker.StateOf(a.platform)),
		"rate_limit_remaining": decision.Remaining,
		"rate_limit_reset_at":  decision.ResetAt.Format(time.RFC3339),
		"token_valid":          a.tokens.HasValidToken(ctx, a.platform, subject),
	}
}
