// Package mcpserver exposes the PIM service as MCP tools over stdio.
package mcpserver

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/auth"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/pim"
)

// Options wires the MCP transport.
type Options struct {
	Name    string
	Version string
	Service *pim.Service
	Tokens  *auth.Manager
	Logger  auth.Logger
}

// Server owns the MCP tool surface.
type Server struct {
	mcp     *server.MCPServer
	service *pim.Service
	tokens  *auth.Manager
	logger  auth.Logger
}

// New builds the MCP server and registers every tool.
func New(opts Options) (*Server, error) {
	if opts.Service == nil || opts.Tokens == nil {
		return nil, fmt.Errorf("mcp server requires service and token manager")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("mcp server requires a logger")
	}
	name := opts.Name
	if name == "" {
		name = "unified-pim"
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		mcp: server.NewMCPServer(name, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		service: opts.Service,
		tokens:  opts.Tokens,
		logger:  opts.Logger,
	}
	s.registerTools()
	return s, nil
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("mcp server listening on stdio")
	return server.ServeStdio(s.mcp)
}

// Run serves stdio until ctx is cancelled or stdin closes.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server listening on stdio")
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func (s *Server) registerTools() {
	s.registerAuthTools()
	s.registerEmailTools()
	s.registerCalendarTools()
	s.registerContactTools()
	s.registerTaskTools()
	s.registerHealthTools()
}

func (s *Server) registerAuthTools() {
	s.mcp.AddTool(mcp.NewTool("auth_begin",
		mcp.WithDescription("Start OAuth2 authorization for a platform, returning the URL to open in a browser"),
		mcp.WithString("platform", mcp.Required(), mcp.Description("Platform name: microsoft or google")),
		mcp.WithString("scopes", mcp.Description("Space separated scopes overriding the configured defaults")),
	), s.handleAuthBegin)

	s.mcp.AddTool(mcp.NewTool("auth_complete",
		mcp.WithDescription("Finish authorization with the code and state from the OAuth callback"),
		mcp.WithString("state", mcp.Required(), mcp.Description("State parameter from the callback")),
		mcp.WithString("code", mcp.Required(), mcp.Description("Authorization code from the callback")),
	), s.handleAuthComplete)

	s.mcp.AddTool(mcp.NewTool("auth_signout",
		mcp.WithDescription("Revoke the stored grant for a platform account"),
		mcp.WithString("platform", mcp.Required(), mcp.Description("Platform name")),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Account identifier")),
	), s.handleAuthSignOut)
}

func (s *Server) registerEmailTools() {
	s.mcp.AddTool(mcp.NewTool("email_get",
		mcp.WithDescription("Fetch one email message by id"),
		mcp.WithString("platform", mcp.Required(), mcp.Description("Platform name")),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Account identifier")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Message id")),
	), s.handleEmailGet)

	s.mcp.AddTool(mcp.NewTool("email_list",
		mcp.WithDescription("List messages in a folder, newest first"),
		mcp.WithString("platform", mcp.Required(), mcp.Description("Platform name")),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Account identifier")),
		mcp.WithString("folder", mcp.Description("Folder or label, defaults to the inbox")),
		mcp.WithNumber("limit", mcp.Description("Maximum messages to return")),
	), s.handleEmailList)

	s.mcp.AddTool(mcp.NewTool("email_send",
		mcp.WithDescription("Send an email message"),
		mcp.WithString("platform", mcp.Required(), mcp.Description("Platform name")),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Account identifier")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Comma separated recipient addresses")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Message subject line")),
		mcp.WithString("body", mcp.Required(), mcp.Description("Message body")),
		mcp.WithString("cc", mcp.Description("Comma separated cc addresses")),
		mcp.WithString("body_type", mcp.Description("text or html, defaults to text")),
	), s.handleEmailSend)

	s.mcp.AddTool(mcp.NewTool("email_send_batch",
		mcp.WithDescription("Send several messages; each succeeds or fails independently"),
		mcp.WithString("platform", mcp.Required(), mcp.Description("Platform name")),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Account identifier")),
		mcp.WithString("messages", mcp.Required(), mcp.Description("JSON array of {subject, to[], body} messages")),
	), s.handleEmailSendBatch)
}

func (s *Server) registerCalendarTools() {
	s.mcp.AddTool(mcp.NewTool("calendar_get",
		mcp.WithDescription("Fetch one calendar event by id"),
		mcp.WithString("platform", mcp.Required(), mcp.Description("Platform name")),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Account identifier")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Event id")),
	), s.handleCalendarGet)

	s.mcp.AddTool(mcp.NewTool("calendar_list",
		mcp.WithDescription("List calendar events in a time window"),
		mcp.WithString("platform", mcp.Required(), mcp.Description("Platform name")),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Account identifier")),
		mcp.WithString("from", mcp.Description("Window start, RFC3339; defaults to now")),
		mcp.WithString("to", mcp.Description("Window end, RFC3339; defaults to seven days out")),
		mcp.WithNumber("limit", mcp.Description("Maximum events to return")),
	), s.handleCalendarList)
}

func (s *Server) registerContactTools() {
	s.mcp.AddTool(mcp.NewTool("contact_list",
		mcp.WithDescription("List contacts"),
		mcp.WithString("platform", mcp.Required(), mcp.Description("Platform name")),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Account identifier")),
		mcp.WithNumber("limit", mcp.Description("Maximum contacts to return")),
	), s.handleContactList)
}

func (s *Server) registerTaskTools() {
	s.mcp.AddTool(mcp.NewTool("task_list",
		mcp.WithDescription("List tasks"),
		mcp.WithString("platform", mcp.Required(), mcp.Description("Platform name")),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Account identifier")),
		mcp.WithString("list", mcp.Description("Task list id, defaults to the primary list")),
		mcp.WithNumber("limit", mcp.Description("Maximum tasks to return")),
	), s.handleTaskList)
}

func (s *Server) registerHealthTools() {
	s.mcp.AddTool(mcp.NewTool("platform_health",
		mcp.WithDescription("Report circuit state, remaining rate quota and token validity for a platform"),
		mcp.WithString("platform", mcp.Required(), mcp.Description("Platform name")),
		mcp.WithString("subject", mcp.Description("Account identifier")),
	), s.handlePlatformHealth)

	s.mcp.AddTool(mcp.NewTool("cache_search",
		mcp.WithDescription("Semantic search over recently cached documents"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Free text query")),
		mcp.WithNumber("limit", mcp.Description("Maximum matches to return")),
	), s.handleCacheSearch)
}

func (s *Server) handleAuthBegin(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	platform, err := req.RequireString("platform")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var scopes []string
	if raw := req.GetString("scopes", ""); raw != "" {
		scopes = strings.Fields(raw)
	}

	url, state, err := s.tokens.BeginAuthorization(ctx, platform, scopes)
	if err != nil {
		return s.toolError("auth_begin", err), nil
	}
	return jsonResult(map[string]any{
		"authorization_url": url,
		"state":             state,
	})
}

func (s *Server) handleAuthComplete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, err := req.RequireString("state")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	code, err := req.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	record, err := s.tokens.CompleteAuthorization(ctx, state, code)
	if err != nil {
		return s.toolError("auth_complete", err), nil
	}
	return jsonResult(map[string]any{
		"status":     "authorized",
		"platform":   record.Platform,
		"subject":    record.Subject,
		"scopes":     record.Scopes,
		"expires_at": record.ExpiresAt.Format(time.RFC3339),
	})
}

func (s *Server) handleAuthSignOut(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	platform, err := req.RequireString("platform")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	subject, err := req.RequireString("subject")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.tokens.SignOut(ctx, platform, subject); err != nil {
		return s.toolError("auth_signout", err), nil
	}
	return jsonResult(map[string]any{"status": "signed_out"})
}

func (s *Server) handleEmailGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	platform, subject, errResult := s.requireAccount(req)
	if errResult != nil {
		return errResult, nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	msg, err := s.service.GetEmail(ctx, platform, subject, id)
	if err != nil {
		return s.toolError("email_get", err), nil
	}
	return jsonResult(msg)
}

func (s *Server) handleEmailList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	platform, subject, errResult := s.requireAccount(req)
	if errResult != nil {
		return errResult, nil
	}

	msgs, err := s.service.ListEmails(ctx, platform, subject, pim.ListQuery{
		Folder: req.GetString("folder", ""),
		Limit:  req.GetInt("limit", 0),
	})
	if err != nil {
		return s.toolError("email_list", err), nil
	}
	return jsonResult(msgs)
}

func parseAddressField(raw string) []pim.EmailAddress {
	var out []pim.EmailAddress
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, pim.EmailAddress{Address: part})
		}
	}
	return out
}

func (s *Server) handleEmailSend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	platform, subject, errResult := s.requireAccount(req)
	if errResult != nil {
		return errResult, nil
	}
	to, err := req.RequireString("to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	body, err := req.RequireString("body")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	msg := pim.OutgoingEmail{
		Subject:  title,
		To:       parseAddressField(to),
		Cc:       parseAddressField(req.GetString("cc", "")),
		Body:     body,
		BodyType: req.GetString("body_type", ""),
	}
	if err := s.service.SendEmail(ctx, platform, subject, msg); err != nil {
		return s.toolError("email_send", err), nil
	}
	return jsonResult(map[string]any{"status": "sent"})
}

func (s *Server) handleEmailSendBatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	platform, subject, errResult := s.requireAccount(req)
	if errResult != nil {
		return errResult, nil
	}
	raw, err := req.RequireString("messages")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var msgs []pim.OutgoingEmail
	if err := sonic.Unmarshal([]byte(raw), &msgs); err != nil {
		return mcp.NewToolResultError("messages must be a JSON array of outgoing emails"), nil
	}

	results := s.service.SendEmails(ctx, platform, subject, msgs)
	return jsonResult(results)
}

func (s *Server) handleCalendarGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	platform, subject, errResult := s.requireAccount(req)
	if errResult != nil {
		return errResult, nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	event, err := s.service.GetEvent(ctx, platform, subject, id)
	if err != nil {
		return s.toolError("calendar_get", err), nil
	}
	return jsonResult(event)
}

func (s *Server) handleCalendarList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	platform, subject, errResult := s.requireAccount(req)
	if errResult != nil {
		return errResult, nil
	}

	from := time.Now()
	if raw := req.GetString("from", ""); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return mcp.NewToolResultError("from must be RFC3339"), nil
		}
		from = parsed
	}
	to := from.Add(7 * 24 * time.Hour)
	if raw := req.GetString("to", ""); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return mcp.NewToolResultError("to must be RFC3339"), nil
		}
		to = parsed
	}

	events, err := s.service.ListEvents(ctx, platform, subject, pim.EventQuery{
		From:  from,
		To:    to,
		Limit: req.GetInt("limit", 0),
	})
	if err != nil {
		return s.toolError("calendar_list", err), nil
	}
	return jsonResult(events)
}

func (s *Server) handleContactList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	platform, subject, errResult := s.requireAccount(req)
	if errResult != nil {
		return errResult, nil
	}

	contacts, err := s.service.ListContacts(ctx, platform, subject, pim.ListQuery{
		Limit: req.GetInt("limit", 0),
	})
	if err != nil {
		return s.toolError("contact_list", err), nil
	}
	return jsonResult(contacts)
}

func (s *Server) handleTaskList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	platform, subject, errResult := s.requireAccount(req)
	if errResult != nil {
		return errResult, nil
	}

	tasks, err := s.service.ListTasks(ctx, platform, subject, pim.ListQuery{
		Folder: req.GetString("list", ""),
		Limit:  req.GetInt("limit", 0),
	})
	if err != nil {
		return s.toolError("task_list", err), nil
	}
	return jsonResult(tasks)
}

func (s *Server) handlePlatformHealth(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	platform, err := req.RequireString("platform")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	health, err := s.service.Health(ctx, platform, req.GetString("subject", "default"))
	if err != nil {
		return s.toolError("platform_health", err), nil
	}
	return jsonResult(health)
}

func (s *Server) handleCacheSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	matches, err := s.service.SearchCached(ctx, query, req.GetInt("limit", 5))
	if err != nil {
		return s.toolError("cache_search", err), nil
	}
	return jsonResult(matches)
}

func (s *Server) requireAccount(req mcp.CallToolRequest) (string, string, *mcp.CallToolResult) {
	platform, err := req.RequireString("platform")
	if err != nil {
		return "", "", mcp.NewToolResultError(err.Error())
	}
	subject, err := req.RequireString("subject")
	if err != nil {
		return "", "", mcp.NewToolResultError(err.Error())
	}
	return platform, subject, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := sonic.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError("internal_error: failed to encode result"), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolError maps internal failures to stable, sanitized codes. Token
// material and stack detail never cross the tool boundary.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	code, message := classify(err)
	s.logger.Warn("tool %s failed: code=%s: %v", tool, code, err)
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", code, message))
}
