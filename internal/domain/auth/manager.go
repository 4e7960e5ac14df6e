package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/auth/model"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/auth/store"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/eventbus"
)

type (
	// TokenRecord re-exports the shared auth entity for callers.
	TokenRecord = model.TokenRecord
	// Logger re-exports the logging interface used across the domain.
	Logger = model.Logger
)

var (
	// ErrInvalidState is returned when a code exchange arrives with an
	// unknown or already consumed state parameter.
	ErrInvalidState = errors.New("authorization state unknown or already used")

	// ErrReauthRequired is returned when no usable token exists and the
	// grant cannot be renewed silently.
	ErrReauthRequired = errors.New("reauthentication required")
)

const (
	// refreshBuffer is how long before expiry a token is treated as due
	// for renewal.
	refreshBuffer = 5 * time.Minute

	// pendingTTL bounds how long an issued authorization URL stays
	// exchangeable.
	pendingTTL = 10 * time.Minute

	defaultCleanupInterval = 10 * time.Minute
	minCleanupInterval     = 30 * time.Second
)

// TokenExchanger is the narrow vendor capability the manager needs: build an
// authorization URL and trade codes or refresh tokens for token records.
// Implementations fill Subject on exchange; Platform is set by the manager.
type TokenExchanger interface {
	AuthCodeURL(state, challenge string, scopes []string) string
	ExchangeCode(ctx context.Context, code, verifier string) (model.TokenRecord, error)
	RefreshToken(ctx context.Context, refreshToken string) (model.TokenRecord, error)
}

// Options encapsulates the dependencies required to construct a Manager.
type Options struct {
	Store           store.Store
	Logger          Logger
	Exchangers      map[string]TokenExchanger
	CleanupInterval time.Duration
}

// Manager owns the PKCE flow, token persistence and proactive refresh for
// every configured platform.
type Manager struct {
	store      store.Store
	logger     Logger
	exchangers map[string]TokenExchanger

	pending   map[string]model.PkceChallenge
	pendingMu sync.Mutex

	timers   map[string]*time.Timer
	timersMu sync.Mutex

	refreshGroup singleflight.Group

	cleanupInterval time.Duration
	cleanupStop     chan struct{}
	cleanupOnce     sync.Once

	now func() time.Time
}

// NewManager wires a Manager using the supplied options.
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("token manager requires a store")
	}
	if opts.Logger == nil {
		return nil, errors.New("token manager requires a logger")
	}
	if len(opts.Exchangers) == 0 {
		return nil, errors.New("token manager requires at least one platform exchanger")
	}
	cleanupInterval := opts.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	} else if cleanupInterval < minCleanupInterval {
		opts.Logger.Warn("cleanup interval too small, adjusting to %s", minCleanupInterval)
		cleanupInterval = minCleanupInterval
	}

	mgr := &Manager{
		store:           opts.Store,
		logger:          opts.Logger,
		exchangers:      opts.Exchangers,
		pending:         make(map[string]model.PkceChallenge),
		timers:          make(map[string]*time.Timer),
		cleanupInterval: cleanupInterval,
		cleanupStop:     make(chan struct{}),
		now:             time.Now,
	}

	go mgr.runCleanup()
	return mgr, nil
}

func (m *Manager) runCleanup() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.store.CleanupExpired(context.Background()); err != nil {
				m.logger.Warn("token store cleanup failed: %v", err)
			}
			m.dropStaleChallenges()
		case <-m.cleanupStop:
			return
		}
	}
}

func (m *Manager) dropStaleChallenges() {
	cutoff := m.now().Add(-pendingTTL)

	m.pendingMu.Lock()
	for state, challenge := range m.pending {
		if challenge.CreatedAt.Before(cutoff) {
			delete(m.pending, state)
		}
	}
	m.pendingMu.Unlock()
}

func (m *Manager) exchanger(platform string) (TokenExchanger, error) {
	ex, ok := m.exchangers[platform]
	if !ok {
		return nil, fmt.Errorf("no exchanger registered for platform %q", platform)
	}
	return ex, nil
}

// BeginAuthorization issues a PKCE challenge and returns the vendor
// authorization URL plus the state that identifies the attempt.
func (m *Manager) BeginAuthorization(ctx context.Context, platform string, scopes []string) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	ex, err := m.exchanger(platform)
	if err != nil {
		return "", "", err
	}

	challenge := newPkceChallenge(platform, scopes)

	m.pendingMu.Lock()
	m.pending[challenge.State] = challenge
	m.pendingMu.Unlock()

	m.logger.Debug("authorization started: platform=%s state=%s", platform, challenge.State)
	return ex.AuthCodeURL(challenge.State, challenge.Challenge, scopes), challenge.State, nil
}

// CompleteAuthorization consumes the pending challenge matching state and
// exchanges the authorization code for a token record. The challenge is
// discarded whether or not the exchange succeeds.
func (m *Manager) CompleteAuthorization(ctx context.Context, state, code string) (model.TokenRecord, error) {
	m.pendingMu.Lock()
	challenge, ok := m.pending[state]
	delete(m.pending, state)
	m.pendingMu.Unlock()

	if !ok {
		return model.TokenRecord{}, ErrInvalidState
	}

	ex, err := m.exchanger(challenge.Platform)
	if err != nil {
		return model.TokenRecord{}, err
	}

	record, err := ex.ExchangeCode(ctx, code, challenge.Verifier)
	if err != nil {
		m.logger.Error("code exchange failed: platform=%s: %v", challenge.Platform, err)
		return model.TokenRecord{}, fmt.Errorf("exchange authorization code: %w", err)
	}

	record.Platform = challenge.Platform
	if record.Subject == "" {
		record.Subject = "default"
	}
	if len(record.Scopes) == 0 {
		record.Scopes = challenge.Scopes
	}
	record.CreatedAt = m.now()

	if err := m.store.Put(ctx, record); err != nil {
		return model.TokenRecord{}, fmt.Errorf("persist token record: %w", err)
	}
	m.scheduleRefresh(record)

	m.logger.Info("authorization completed: platform=%s subject=%s", record.Platform, record.Subject)
	eventbus.PublishAsync(eventbus.EventTokenAcquired, eventbus.TokenEventData{
		Platform:  record.Platform,
		Subject:   record.Subject,
		ExpiresAt: record.ExpiresAt,
	})
	return record, nil
}

// GetValidToken returns a token with at least the refresh buffer of life
// left, renewing it synchronously when necessary. Concurrent callers for the
// same grant share a single refresh.
func (m *Manager) GetValidToken(ctx context.Context, platform, subject string) (model.TokenRecord, error) {
	record, err := m.store.Get(ctx, platform, subject)
	if errors.Is(err, store.ErrNotFound) {
		return model.TokenRecord{}, ErrReauthRequired
	}
	if err != nil {
		return model.TokenRecord{}, fmt.Errorf("load token record: %w", err)
	}

	if m.now().Before(record.ExpiresAt.Add(-refreshBuffer)) {
		return record, nil
	}

	refreshed, err := m.refresh(ctx, platform, subject)
	if err != nil {
		return model.TokenRecord{}, err
	}
	return refreshed, nil
}

// refresh renews the grant behind a singleflight key so overlapping callers
// and the background timer never race duplicate token requests.
func (m *Manager) refresh(ctx context.Context, platform, subject string) (model.TokenRecord, error) {
	key := platform + "/" + subject
	result, err, _ := m.refreshGroup.Do(key, func() (any, error) {
		record, err := m.store.Get(ctx, platform, subject)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrReauthRequired
		}
		if err != nil {
			return nil, fmt.Errorf("load token record: %w", err)
		}

		// Another caller may have refreshed while we waited on the group.
		if m.now().Before(record.ExpiresAt.Add(-refreshBuffer)) {
			return record, nil
		}

		if !record.Refreshable() {
			_ = m.store.Delete(ctx, platform, subject)
			m.cancelTimer(key)
			return nil, ErrReauthRequired
		}

		ex, err := m.exchanger(platform)
		if err != nil {
			return nil, err
		}

		renewed, err := ex.RefreshToken(ctx, record.RefreshToken)
		if err != nil {
			m.logger.Warn("token refresh failed: platform=%s subject=%s: %v", platform, subject, err)
			_ = m.store.Delete(ctx, platform, subject)
			m.cancelTimer(key)
			eventbus.PublishAsync(eventbus.EventReauthRequired, eventbus.TokenEventData{
				Platform: platform,
				Subject:  subject,
				Reason:   err.Error(),
			})
			return nil, fmt.Errorf("%w: %v", ErrReauthRequired, err)
		}

		renewed.Platform = platform
		renewed.Subject = subject
		if renewed.RefreshToken == "" {
			renewed.RefreshToken = record.RefreshToken
		}
		if len(renewed.Scopes) == 0 {
			renewed.Scopes = record.Scopes
		}
		renewed.CreatedAt = m.now()

		if err := m.store.Put(ctx, renewed); err != nil {
			return nil, fmt.Errorf("persist refreshed token: %w", err)
		}
		m.scheduleRefresh(renewed)

		m.logger.Debug("token refreshed: platform=%s subject=%s expires=%s",
			platform, subject, renewed.ExpiresAt.Format(time.RFC3339))
		eventbus.PublishAsync(eventbus.EventTokenRefreshed, eventbus.TokenEventData{
			Platform:  platform,
			Subject:   subject,
			ExpiresAt: renewed.ExpiresAt,
		})
		return renewed, nil
	})
	if err != nil {
		return model.TokenRecord{}, err
	}
	return result.(model.TokenRecord), nil
}

// scheduleRefresh arms the single background timer for the grant, replacing
// any previous one. Grants without a refresh token get no timer; their
// expiry is terminal.
func (m *Manager) scheduleRefresh(record model.TokenRecord) {
	key := record.Platform + "/" + record.Subject

	m.timersMu.Lock()
	defer m.timersMu.Unlock()

	if existing, ok := m.timers[key]; ok {
		existing.Stop()
		delete(m.timers, key)
	}
	if !record.Refreshable() {
		return
	}

	delay := record.ExpiresAt.Add(-refreshBuffer).Sub(m.now())
	if delay < 0 {
		delay = 0
	}

	platform, subject := record.Platform, record.Subject
	m.timers[key] = time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := m.refresh(ctx, platform, subject); err != nil {
			m.logger.Warn("background refresh gave up: platform=%s subject=%s: %v", platform, subject, err)
		}
	})
}

func (m *Manager) cancelTimer(key string) {
	m.timersMu.Lock()
	if timer, ok := m.timers[key]; ok {
		timer.Stop()
		delete(m.timers, key)
	}
	m.timersMu.Unlock()
}

// SignOut revokes the grant: the stored record is deleted, the refresh timer
// cancelled, and any pending challenges for the platform discarded.
func (m *Manager) SignOut(ctx context.Context, platform, subject string) error {
	m.cancelTimer(platform + "/" + subject)

	m.pendingMu.Lock()
	for state, challenge := range m.pending {
		if challenge.Platform == platform {
			delete(m.pending, state)
		}
	}
	m.pendingMu.Unlock()

	if err := m.store.Delete(ctx, platform, subject); err != nil {
		return fmt.Errorf("delete token record: %w", err)
	}

	m.logger.Info("signed out: platform=%s subject=%s", platform, subject)
	eventbus.PublishAsync(eventbus.EventTokenRevoked, eventbus.TokenEventData{
		Platform: platform,
		Subject:  subject,
	})
	return nil
}

// List returns the platform/subject keys of active grants.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// HasValidToken reports whether a usable token exists without renewing it.
func (m *Manager) HasValidToken(ctx context.Context, platform, subject string) bool {
	record, err := m.store.Get(ctx, platform, subject)
	if err != nil {
		return false
	}
	return !record.Expired(m.now()) || record.Refreshable()
}

// Stats returns debug information about grants, challenges and timers.
func (m *Manager) Stats(ctx context.Context) (map[string]any, error) {
	stats, err := m.store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	m.pendingMu.Lock()
	stats["pending_challenges"] = len(m.pending)
	m.pendingMu.Unlock()

	m.timersMu.Lock()
	stats["refresh_timers"] = len(m.timers)
	m.timersMu.Unlock()

	return stats, nil
}

// Close stops timers and background cleanup and releases the store.
func (m *Manager) Close() error {
	m.cleanupOnce.Do(func() {
		close(m.cleanupStop)
	})

	m.timersMu.Lock()
	for key, timer := range m.timers {
		timer.Stop()
		delete(m.timers, key)
	}
	m.timersMu.Unlock()

	if err := m.store.Close(context.Background()); err != nil {
		m.logger.Error("failed closing token store: %v", err)
		return err
	}
	return nil
}
