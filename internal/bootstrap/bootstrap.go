// Package bootstrap wires configuration, logging, storage, the token
// lifecycle, resilience layers and both transports into a running service.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	domainauth "github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/auth"
	authstore "github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/auth/store"
	domaincache "github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/cache"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/eventbus"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/pim"
	pimgoogle "github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/pim/google"
	pimgraph "github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/pim/graph"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/resilience/circuit"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/resilience/ratelimit"
	platformconfig "github.com/semiprobono/unified-pim-mcp-sub003/internal/platform/config"
	platformerrors "github.com/semiprobono/unified-pim-mcp-sub003/internal/platform/errors"
	platformlogging "github.com/semiprobono/unified-pim-mcp-sub003/internal/platform/logging"
	platformstorage "github.com/semiprobono/unified-pim-mcp-sub003/internal/platform/storage"
	httptransport "github.com/semiprobono/unified-pim-mcp-sub003/internal/transport/http"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/transport/mcpserver"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config     *platformconfig.Config
	configPath string
	logger     *platformlogging.Logger

	cipher     authstore.Cipher
	tokenStore authstore.Store
	backends   map[string]pim.Backend
	tokens     *domainauth.Manager

	limiter       *ratelimit.Limiter
	breaker       *circuit.Breaker
	responseCache domaincache.Cache
	semantic      *domaincache.SemanticIndex

	service    *pim.Service
	mcpServer  *mcpserver.Server
	httpServer *httptransport.Server
}

// Run drives the whole service lifecycle: init graph, transports, graceful
// shutdown on SIGINT/SIGTERM.
func Run(ctx context.Context) error {
	state := &appState{}

	if err := executeInitSteps(ctx, InitGraph(), state); err != nil {
		return err
	}

	logger := state.logger
	if state.config == nil || logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger not initialised",
		)
	}
	if state.tokens == nil || state.service == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"token manager/service not initialised",
		)
	}

	defer func() {
		if err := state.tokens.Close(); err != nil {
			logger.ErrorTag("AUTH", "token manager shutdown failed: %v", err)
		}
		if state.responseCache != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := state.responseCache.Close(closeCtx); err != nil {
				logger.ErrorTag("CACHE", "cache shutdown failed: %v", err)
			}
			cancel()
		}
		eventbus.Shutdown()
		logger.Close()
	}()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)

	if state.config.Web.Enabled {
		httpServer := state.httpServer
		group.Go(func() error {
			defer cancel()
			return httpServer.Run(groupCtx)
		})
	}

	// Stdin EOF means the MCP client is gone; treat it as a shutdown request.
	mcpServer := state.mcpServer
	group.Go(func() error {
		defer cancel()
		err := mcpServer.Run(groupCtx)
		if err != nil && groupCtx.Err() == nil {
			return err
		}
		return nil
	})

	logger.InfoTag("BOOT", "service started: platforms=%s config=%s",
		strings.Join(state.service.Platforms(), ","), state.configPath)

	return waitForShutdown(signalCtx, cancel, logger, group)
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph declares every bootstrap step and its dependencies.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "events:subscribe-observers",
			Title:     "Subscribe event observers",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   subscribeObserversStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Initialise database",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initDatabaseStep,
		},
		{
			ID:        "auth:init-cipher",
			Title:     "Initialise token cipher",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindAuth,
			Execute:   initCipherStep,
		},
		{
			ID:        "auth:init-store",
			Title:     "Initialise token store",
			DependsOn: []string{"storage:init-database", "auth:init-cipher"},
			Kind:      platformerrors.KindStorage,
			Execute:   initTokenStoreStep,
		},
		{
			ID:        "platforms:init-backends",
			Title:     "Initialise platform backends",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initBackendsStep,
		},
		{
			ID:        "auth:init-manager",
			Title:     "Initialise token manager",
			DependsOn: []string{"auth:init-store", "platforms:init-backends"},
			Kind:      platformerrors.KindAuth,
			Execute:   initTokenManagerStep,
		},
		{
			ID:        "cache:init",
			Title:     "Initialise response cache",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindCache,
			Execute:   initCacheStep,
		},
		{
			ID:        "adapters:init",
			Title:     "Initialise platform adapters",
			DependsOn: []string{"auth:init-manager", "cache:init"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initAdaptersStep,
		},
		{
			ID:        "transport:init",
			Title:     "Initialise transports",
			DependsOn: []string{"adapters:init"},
			Kind:      platformerrors.KindTransport,
			Execute:   initTransportsStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	result, err := platformconfig.NewLoader().Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load", "failed to load configuration", err)
	}
	state.config = result.Config
	state.configPath = result.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state.config == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "logging:init-provider", "config not loaded")
	}

	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}

	state.logger = logger
	logger.InfoTag("BOOT", "logging ready [%s] %s", state.config.Log.Level, state.configPath)
	return nil
}

// subscribeObserversStep attaches log observers to the async bus so circuit
// transitions, token loss and admission denials show up in operator logs
// regardless of which transport triggered them.
func subscribeObserversStep(_ context.Context, state *appState) error {
	logger := state.logger

	subscriptions := map[string]interface{}{
		eventbus.EventCircuitOpened: func(data eventbus.CircuitEventData) {
			logger.WarnTag("CIRCUIT", "%s: %s -> %s", data.Dependency, data.From, data.To)
		},
		eventbus.EventCircuitHalfOpen: func(data eventbus.CircuitEventData) {
			logger.InfoTag("CIRCUIT", "%s: %s -> %s", data.Dependency, data.From, data.To)
		},
		eventbus.EventCircuitClosed: func(data eventbus.CircuitEventData) {
			logger.InfoTag("CIRCUIT", "%s recovered", data.Dependency)
		},
		eventbus.EventReauthRequired: func(data eventbus.TokenEventData) {
			logger.WarnTag("AUTH", "grant lost for %s/%s: %s", data.Platform, data.Subject, data.Reason)
		},
		eventbus.EventTokenRefreshed: func(data eventbus.TokenEventData) {
			logger.DebugTag("AUTH", "token refreshed for %s/%s", data.Platform, data.Subject)
		},
		eventbus.EventRateLimited: func(data eventbus.RateLimitEventData) {
			logger.WarnTag("LIMIT", "admission denied for %s, resets %s", data.Identity, data.ResetAt.Format(time.RFC3339))
		},
	}
	for topic, handler := range subscriptions {
		if err := eventbus.SubscribeAsync(topic, handler); err != nil {
			return platformerrors.Wrap(platformerrors.KindBootstrap, "events:subscribe-observers", "failed to subscribe "+topic, err)
		}
	}
	return nil
}

func initDatabaseStep(_ context.Context, state *appState) error {
	driver := strings.ToLower(strings.TrimSpace(state.config.Auth.Store.Type))
	if driver != authstore.DriverSQLite && driver != "" && driver != "database" {
		return nil
	}

	if err := platformstorage.InitDatabase(state.config.Auth.Store.SQLite.DSN); err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "storage:init-database", "failed to initialize database", err)
	}
	return nil
}

func initCipherStep(_ context.Context, state *appState) error {
	key := state.config.Auth.EncryptionKey
	if key == "" {
		state.logger.WarnTag("AUTH", "no encryption key configured, token records stored unsealed")
		return nil
	}

	cipher, err := domainauth.NewAESCipher(key)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindAuth, "auth:init-cipher", "invalid encryption key", err)
	}
	state.cipher = cipher
	return nil
}

func initTokenStoreStep(_ context.Context, state *appState) error {
	cfg := state.config.Auth.Store
	driver := strings.ToLower(strings.TrimSpace(cfg.Type))
	if driver == "" || driver == "database" {
		driver = authstore.DriverSQLite
	}

	storeCfg := authstore.Config{
		Driver: driver,
		TTL:    cfg.Expiry,
		Cipher: state.cipher,
	}

	switch driver {
	case authstore.DriverMemory:
		storeCfg.Memory = &authstore.MemoryConfig{GCInterval: cfg.Cleanup}
	case authstore.DriverSQLite:
		storeCfg.SQLite = &authstore.SQLiteConfig{DSN: cfg.SQLite.DSN}
	case authstore.DriverRedis:
		if cfg.Redis.Addr == "" {
			return platformerrors.New(platformerrors.KindStorage, "auth:init-store", "redis store addr is required")
		}
		storeCfg.Redis = &authstore.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}
	default:
		state.logger.WarnTag("AUTH", "unsupported store type %s, falling back to memory", driver)
		storeCfg.Driver = authstore.DriverMemory
		storeCfg.Memory = &authstore.MemoryConfig{GCInterval: cfg.Cleanup}
	}

	deps := authstore.Dependencies{}
	if storeCfg.Driver == authstore.DriverSQLite {
		deps.SQLiteDB = platformstorage.GetDB()
	}

	tokenStore, err := authstore.New(storeCfg, deps)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "auth:init-store", "failed to create token store", err)
	}
	state.tokenStore = tokenStore
	return nil
}

func initBackendsStep(_ context.Context, state *appState) error {
	backends := make(map[string]pim.Backend)
	for name, platform := range state.config.Platforms {
		if !platform.Enabled {
			continue
		}
		cfg := pim.BackendConfig{
			Name:         name,
			ClientID:     platform.ClientID,
			ClientSecret: platform.ClientSecret,
			AuthURL:      platform.AuthURL,
			TokenURL:     platform.TokenURL,
			BaseURL:      platform.BaseURL,
			RedirectURI:  platform.RedirectURI,
			Timeout:      platform.Timeout,
		}
		switch name {
		case "microsoft":
			backends[name] = pimgraph.New(cfg)
		case "google":
			backends[name] = pimgoogle.New(cfg)
		default:
			state.logger.WarnTag("BOOT", "unknown platform %s ignored", name)
			continue
		}
		state.logger.InfoTag("BOOT", "platform %s enabled", name)
	}

	if len(backends) == 0 {
		return platformerrors.New(platformerrors.KindConfig, "platforms:init-backends", "no platform enabled")
	}
	state.backends = backends
	return nil
}

func initTokenManagerStep(_ context.Context, state *appState) error {
	exchangers := make(map[string]domainauth.TokenExchanger, len(state.backends))
	for name, backend := range state.backends {
		exchangers[name] = &scopedExchanger{
			TokenExchanger: backend,
			defaults:       state.config.Platforms[name].Scopes,
		}
	}

	tokens, err := domainauth.NewManager(domainauth.Options{
		Store:           state.tokenStore,
		Logger:          state.logger,
		Exchangers:      exchangers,
		CleanupInterval: state.config.Auth.Store.Cleanup,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindAuth, "auth:init-manager", "failed to create token manager", err)
	}
	state.tokens = tokens
	return nil
}

// scopedExchanger applies the platform's configured default scopes when the
// caller does not name any.
type scopedExchanger struct {
	domainauth.TokenExchanger
	defaults []string
}

func (e *scopedExchanger) AuthCodeURL(state, challenge string, scopes []string) string {
	if len(scopes) == 0 {
		scopes = e.defaults
	}
	return e.TokenExchanger.AuthCodeURL(state, challenge, scopes)
}

func initCacheStep(_ context.Context, state *appState) error {
	cfg := state.config.Cache

	cacheCfg := domaincache.Config{
		Driver:  cfg.Driver,
		TTL:     cfg.TTL,
		Cleanup: cfg.Cleanup,
	}
	if cfg.Driver == domaincache.DriverRedis {
		cacheCfg.Redis = &domaincache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}
	}

	responseCache, err := domaincache.New(cacheCfg)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindCache, "cache:init", "failed to create response cache", err)
	}
	state.responseCache = responseCache

	if cfg.Semantic.Enabled {
		if cfg.Semantic.APIKey == "" {
			state.logger.WarnTag("CACHE", "semantic index enabled without api key, skipping")
			return nil
		}
		embedder, err := domaincache.NewOpenAIEmbedder(domaincache.EmbedderConfig{
			APIKey:  cfg.Semantic.APIKey,
			BaseURL: cfg.Semantic.BaseURL,
			Model:   cfg.Semantic.Model,
		})
		if err != nil {
			return platformerrors.Wrap(platformerrors.KindCache, "cache:init", "failed to create embedder", err)
		}
		state.semantic = domaincache.NewSemanticIndex(embedder)
		state.logger.InfoTag("CACHE", "semantic index enabled")
	}
	return nil
}

func initAdaptersStep(_ context.Context, state *appState) error {
	res := state.config.Resilience

	state.limiter = ratelimit.NewLimiter(ratelimit.Config{
		Window:        res.RateLimit.Window,
		Limit:         res.RateLimit.Limit,
		MaxConcurrent: res.RateLimit.MaxConcurrent,
	})
	state.breaker = circuit.NewBreaker(circuit.Config{
		FailureThreshold: res.Circuit.FailureThreshold,
		SuccessThreshold: res.Circuit.SuccessThreshold,
		ResetTimeout:     res.Circuit.ResetTimeout,
	})

	adapters := make(map[string]*pim.Adapter, len(state.backends))
	for name, backend := range state.backends {
		adapter, err := pim.NewAdapter(pim.AdapterOptions{
			Backend:  backend,
			Tokens:   state.tokens,
			Limiter:  state.limiter,
			Breaker:  state.breaker,
			Cache:    state.responseCache,
			Semantic: state.semantic,
			Logger:   state.logger,
			Retry: pim.RetryConfig{
				MaxAttempts: res.Retry.MaxAttempts,
				BaseBackoff: res.Retry.BaseBackoff,
			},
		})
		if err != nil {
			return platformerrors.Wrap(platformerrors.KindBootstrap, "adapters:init", "failed to create adapter for "+name, err)
		}
		adapters[name] = adapter
	}

	state.service = pim.NewService(adapters, state.semantic, state.config.Cache.TTL)
	return nil
}

func initTransportsStep(_ context.Context, state *appState) error {
	mcpServer, err := mcpserver.New(mcpserver.Options{
		Name:    state.config.Server.Name,
		Version: state.config.Server.Version,
		Service: state.service,
		Tokens:  state.tokens,
		Logger:  state.logger,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindTransport, "transport:init", "failed to create mcp server", err)
	}
	state.mcpServer = mcpServer

	if state.config.Web.Enabled {
		httpServer, err := httptransport.NewServer(httptransport.ServerOptions{
			Config:  state.config,
			Logger:  state.logger,
			Service: state.service,
			Tokens:  state.tokens,
		})
		if err != nil {
			return platformerrors.Wrap(platformerrors.KindTransport, "transport:init", "failed to create http server", err)
		}
		state.httpServer = httpServer
	}
	return nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag("BOOT", "shutdown requested: %v", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("BOOT", "shutdown finished with error: %v", err)
			return err
		}
		logger.InfoTag("BOOT", "all services stopped")
	case <-time.After(15 * time.Second):
		logger.ErrorTag("BOOT", "shutdown timed out")
		return errors.New("shutdown timed out")
	}
	return nil
}
