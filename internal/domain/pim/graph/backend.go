// Package graph implements the Microsoft Graph backend: Outlook mail,
// calendar, contacts and To Do tasks.
package graph

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/pim"
)

// Backend is the Microsoft Graph implementation of pim.Backend.
type Backend struct {
	*pim.RESTBackend
}

// New builds a Graph backend from the shared transport configuration.
func New(cfg pim.BackendConfig) *Backend {
	cfg.Name = "microsoft"
	return &Backend{RESTBackend: pim.NewRESTBackend(cfg)}
}

func (b *Backend) GetMessage(id string) pim.Request {
	return pim.Request{
		Method: "GET",
		Path:   "/me/messages/" + url.PathEscape(id),
	}
}

func (b *Backend) ListMessages(q pim.ListQuery) pim.Request {
	folder := q.Folder
	if folder == "" {
		folder = "inbox"
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 25
	}
	query := url.Values{}
	query.Set("$top", strconv.Itoa(limit))
	query.Set("$orderby", "receivedDateTime desc")
	return pim.Request{
		Method: "GET",
		Path:   "/me/mailFolders/" + url.PathEscape(folder) + "/messages",
		Query:  query,
	}
}

func (b *Backend) SendMessage(msg pim.OutgoingEmail) (pim.Request, error) {
	contentType := "Text"
	if msg.BodyType == "html" {
		contentType = "HTML"
	}
	payload := map[string]any{
		"message": map[string]any{
			"subject": msg.Subject,
			"body": map[string]any{
				"contentType": contentType,
				"content":     msg.Body,
			},
			"toRecipients": recipients(msg.To),
			"ccRecipients": recipients(msg.Cc),
		},
		"saveToSentItems": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return pim.Request{}, fmt.Errorf("encode sendMail payload: %w", err)
	}
	return pim.Request{
		Method: "POST",
		Path:   "/me/sendMail",
		Body:   body,
	}, nil
}

func recipients(addrs []pim.EmailAddress) []map[string]any {
	out := make([]map[string]any, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, map[string]any{
			"emailAddress": map[string]string{
				"name":    addr.Name,
				"address": addr.Address,
			},
		})
	}
	return out
}

func (b *Backend) GetEvent(id string) pim.Request {
	return pim.Request{
		Method: "GET",
		Path:   "/me/events/" + url.PathEscape(id),
	}
}

func (b *Backend) ListEvents(q pim.EventQuery) pim.Request {
	limit := q.Limit
	if limit <= 0 {
		limit = 25
	}
	query := url.Values{}
	query.Set("startDateTime", q.From.UTC().Format("2006-01-02T15:04:05Z"))
	query.Set("endDateTime", q.To.UTC().Format("2006-01-02T15:04:05Z"))
	query.Set("$top", strconv.Itoa(limit))
	query.Set("$orderby", "start/dateTime")
	return pim.Request{
		Method: "GET",
		Path:   "/me/calendarView",
		Query:  query,
	}
}

func (b *Backend) ListContacts(q pim.ListQuery) pim.Request {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	query := url.Values{}
	query.Set("$top", strconv.Itoa(limit))
	query.Set("$orderby", "displayName")
	return pim.Request{
		Method: "GET",
		Path:   "/me/contacts",
		Query:  query,
	}
}

func (b *Backend) ListTasks(q pim.ListQuery) pim.Request {
	list := q.Folder
	if list == "" {
		list = "tasks"
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	query := url.Values{}
	query.Set("$top", strconv.Itoa(limit))
	return pim.Request{
		Method: "GET",
		Path:   "/me/todo/lists/" + url.PathEscape(list) + "/tasks",
		Query:  query,
	}
}
