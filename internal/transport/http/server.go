package httptransport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/auth"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/pim"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/platform/config"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/platform/logging"
)

// ServerOptions wires the HTTP service.
type ServerOptions struct {
	Config  *config.Config
	Logger  *logging.Logger
	Service *pim.Service
	Tokens  *auth.Manager
}

// Server hosts the OAuth callback and health endpoints.
type Server struct {
	cfg     *config.Config
	logger  *logging.Logger
	service *pim.Service
	tokens  *auth.Manager
	httpSrv *http.Server
}

// NewServer builds the router and binds all routes.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Config == nil || opts.Service == nil || opts.Tokens == nil {
		return nil, fmt.Errorf("http server requires config, service and token manager")
	}

	router, err := Build(Options{Config: opts.Config, Logger: opts.Logger})
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     opts.Config,
		logger:  opts.Logger,
		service: opts.Service,
		tokens:  opts.Tokens,
	}
	s.registerRoutes(router)

	addr := fmt.Sprintf("%s:%d", opts.Config.Web.IP, opts.Config.Web.Port)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) registerRoutes(router *Router) {
	router.Engine.GET("/healthz", s.handleHealthz)
	router.Engine.GET("/oauth/callback", s.handleOAuthCallback)

	router.API.GET("/platforms", s.handlePlatforms)
	router.API.GET("/platforms/:platform/health", s.handlePlatformHealth)
	router.API.POST("/auth/:platform/begin", s.handleAuthBegin)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Info("http server listening on %s", s.httpSrv.Addr)
		}
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) handleHealthz(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, gin.H{
		"name":      s.cfg.Server.Name,
		"version":   s.cfg.Server.Version,
		"platforms": s.service.Platforms(),
	}, "")
}

// handleOAuthCallback is where the browser lands after the vendor's consent
// screen. It completes the code exchange and renders a page the user can
// close; the MCP client polls token validity separately.
func (s *Server) handleOAuthCallback(c *gin.Context) {
	if reason := c.Query("error"); reason != "" {
		desc := c.Query("error_description")
		if s.logger != nil {
			s.logger.Warn("authorization denied upstream: %s", reason)
		}
		c.Data(http.StatusBadRequest, "text/html; charset=utf-8",
			[]byte(callbackPage("Authorization failed", reason+": "+desc)))
		return
	}

	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		c.Data(http.StatusBadRequest, "text/html; charset=utf-8",
			[]byte(callbackPage("Authorization failed", "missing state or code parameter")))
		return
	}

	record, err := s.tokens.CompleteAuthorization(c.Request.Context(), state, code)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, auth.ErrInvalidState) {
			status = http.StatusBadRequest
		}
		if s.logger != nil {
			s.logger.Error("code exchange failed: %v", err)
		}
		c.Data(status, "text/html; charset=utf-8",
			[]byte(callbackPage("Authorization failed", "the code exchange did not succeed; start over from your client")))
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8",
		[]byte(callbackPage("Authorized", fmt.Sprintf("%s account %s is connected. You can close this window.", record.Platform, record.Subject))))
}

func (s *Server) handlePlatforms(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, s.service.Platforms(), "")
}

func (s *Server) handlePlatformHealth(c *gin.Context) {
	platform := c.Param("platform")
	subject := c.DefaultQuery("subject", "default")

	health, err := s.service.Health(c.Request.Context(), platform, subject)
	if err != nil {
		RespondError(c, http.StatusNotFound, "unknown platform", nil)
		return
	}
	RespondSuccess(c, http.StatusOK, health, "")
}

func (s *Server) handleAuthBegin(c *gin.Context) {
	platform := c.Param("platform")

	var body struct {
		Scopes []string `json:"scopes"`
	}
	_ = c.ShouldBindJSON(&body)

	url, state, err := s.tokens.BeginAuthorization(c.Request.Context(), platform, body.Scopes)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "cannot start authorization for this platform", nil)
		return
	}
	RespondSuccess(c, http.StatusOK, gin.H{
		"authorization_url": url,
		"state":             state,
	}, "")
}

func callbackPage(title, detail string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body style="font-family: sans-serif; max-width: 40em; margin: 4em auto;">
<h2>%s</h2>
<p>%s</p>
</body>
</html>`, title, title, detail)
}
