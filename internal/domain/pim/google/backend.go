// Package google implements the Google Workspace backend: Gmail, Calendar,
// People contacts and Tasks, all routed through the shared googleapis host.
package google

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/pim"
)

// Backend is the Google Workspace implementation of pim.Backend.
type Backend struct {
	*pim.RESTBackend
}

// New builds a Google backend from the shared transport configuration.
func New(cfg pim.BackendConfig) *Backend {
	cfg.Name = "google"
	return &Backend{RESTBackend: pim.NewRESTBackend(cfg)}
}

func (b *Backend) GetMessage(id string) pim.Request {
	query := url.Values{}
	query.Set("format", "full")
	return pim.Request{
		Method: "GET",
		Path:   "/gmail/v1/users/me/messages/" + url.PathEscape(id),
		Query:  query,
	}
}

// ListMessages returns message stubs (IDs only); Gmail's list endpoint does
// not include content. Callers hydrate interesting messages via GetMessage.
func (b *Backend) ListMessages(q pim.ListQuery) pim.Request {
	limit := q.Limit
	if limit <= 0 {
		limit = 25
	}
	query := url.Values{}
	query.Set("maxResults", strconv.Itoa(limit))
	if q.Folder != "" {
		query.Set("labelIds", strings.ToUpper(q.Folder))
	} else {
		query.Set("labelIds", "INBOX")
	}
	return pim.Request{
		Method: "GET",
		Path:   "/gmail/v1/users/me/messages",
		Query:  query,
	}
}

func (b *Backend) SendMessage(msg pim.OutgoingEmail) (pim.Request, error) {
	if len(msg.To) == 0 {
		return pim.Request{}, fmt.Errorf("message requires at least one recipient")
	}

	contentType := "text/plain"
	if msg.BodyType == "html" {
		contentType = "text/html"
	}

	var raw strings.Builder
	raw.WriteString("To: " + joinAddresses(msg.To) + "\r\n")
	if len(msg.Cc) > 0 {
		raw.WriteString("Cc: " + joinAddresses(msg.Cc) + "\r\n")
	}
	raw.WriteString("Subject: " + msg.Subject + "\r\n")
	raw.WriteString("Content-Type: " + contentType + "; charset=UTF-8\r\n")
	raw.WriteString("MIME-Version: 1.0\r\n\r\n")
	raw.WriteString(msg.Body)

	payload := fmt.Sprintf(`{"raw":%q}`, base64.URLEncoding.EncodeToString([]byte(raw.String())))
	return pim.Request{
		Method: "POST",
		Path:   "/gmail/v1/users/me/messages/send",
		Body:   []byte(payload),
	}, nil
}

func joinAddresses(addrs []pim.EmailAddress) string {
	parts := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if addr.Name != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", addr.Name, addr.Address))
		} else {
			parts = append(parts, addr.Address)
		}
	}
	return strings.Join(parts, ", ")
}

func (b *Backend) GetEvent(id string) pim.Request {
	return pim.Request{
		Method: "GET",
		Path:   "/calendar/v3/calendars/primary/events/" + url.PathEscape(id),
	}
}

func (b *Backend) ListEvents(q pim.EventQuery) pim.Request {
	limit := q.Limit
	if limit <= 0 {
		limit = 25
	}
	query := url.Values{}
	query.Set("timeMin", q.From.UTC().Format("2006-01-02T15:04:05Z"))
	query.Set("timeMax", q.To.UTC().Format("2006-01-02T15:04:05Z"))
	query.Set("maxResults", strconv.Itoa(limit))
	query.Set("singleEvents", "true")
	query.Set("orderBy", "startTime")
	return pim.Request{
		Method: "GET",
		Path:   "/calendar/v3/calendars/primary/events",
		Query:  query,
	}
}

func (b *Backend) ListContacts(q pim.ListQuery) pim.Request {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	query := url.Values{}
	query.Set("pageSize", strconv.Itoa(limit))
	query.Set("personFields", "names,emailAddresses,phoneNumbers,organizations")
	return pim.Request{
		Method: "GET",
		Path:   "/people/v1/people/me/connections",
		Query:  query,
	}
}

func (b *Backend) ListTasks(q pim.ListQuery) pim.Request {
	list := q.Folder
	if list == "" {
		list = "@default"
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	query := url.Values{}
	query.Set("maxResults", strconv.Itoa(limit))
	query.Set("showCompleted", "true")
	return pim.Request{
		Method: "GET",
		Path:   "/tasks/v1/lists/" + url.PathEscape(list) + "/tasks",
		Query:  query,
	}
}
