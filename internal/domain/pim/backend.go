package pim

import (
	"context"
	"net/url"

	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/auth/model"
)

// Request describes one vendor REST call. The adapter injects the bearer
// token; backends only shape paths and bodies.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// Codec builds vendor requests and converts vendor payloads into the typed
// domain model. Raw vendor JSON never crosses the adapter boundary.
type Codec interface {
	GetMessage(id string) Request
	ListMessages(q ListQuery) Request
	SendMessage(msg OutgoingEmail) (Request, error)
	GetEvent(id string) Request
	ListEvents(q EventQuery) Request
	ListContacts(q ListQuery) Request
	ListTasks(q ListQuery) Request

	DecodeMessage(data []byte) (EmailMessage, error)
	DecodeMessages(data []byte) ([]EmailMessage, error)
	DecodeEvent(data []byte) (CalendarEvent, error)
	DecodeEvents(data []byte) ([]CalendarEvent, error)
	DecodeContacts(data []byte) ([]Contact, error)
	DecodeTasks(data []byte) ([]TaskItem, error)
}

// Backend is the full vendor capability set: OAuth endpoints, the raw HTTP
// surface, and the codec. One implementation exists per vendor; the
// resilience core is generic over this interface.
type Backend interface {
	Name() string

	AuthCodeURL(state, challenge string, scopes []string) string
	ExchangeCode(ctx context.Context, code, verifier string) (model.TokenRecord, error)
	RefreshToken(ctx context.Context, refreshToken string) (model.TokenRecord, error)

	// Do performs the HTTP call and returns the response body and status.
	// A non-nil error means the transport failed before a status existed.
	Do(ctx context.Context, accessToken string, req Request) ([]byte, int, error)

	Codec
}
