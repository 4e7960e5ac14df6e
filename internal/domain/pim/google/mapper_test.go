package google

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/pim"
)

func testBackend() *Backend {
	return New(pim.BackendConfig{
		ClientID: "client",
		AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL: "https://oauth2.googleapis.com/token",
		BaseURL:  "https://www.googleapis.com",
	})
}

func rawBody(text string) string {
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(text))
}

func TestDecodeMessage(t *testing.T) {
	payload := `{
		"id": "17c2",
		"snippet": "Quarterly numbers",
		"labelIds": ["INBOX", "UNREAD"],
		"internalDate": "1772361000000",
		"payload": {
			"mimeType": "multipart/alternative",
			"headers": [
				{"name": "Subject", "value": "Budget review"},
				{"name": "From", "value": "Dana <dana@gmail.com>"},
				{"name": "To", "value": "user@gmail.com, Pat <pat@gmail.com>"}
			],
			"parts": [
				{"mimeType": "text/plain", "body": {"data": "` + rawBody("Quarterly numbers attached") + `"}},
				{"mimeType": "application/pdf", "filename": "q1.pdf", "body": {}}
			]
		}
	}`

	msg, err := testBackend().DecodeMessage([]byte(payload))
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if msg.ID != "17c2" || msg.Subject != "Budget review" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.From.Name != "Dana" || msg.From.Address != "dana@gmail.com" {
		t.Fatalf("from not parsed: %+v", msg.From)
	}
	if len(msg.To) != 2 || msg.To[1].Name != "Pat" {
		t.Fatalf("to not parsed: %+v", msg.To)
	}
	if msg.Read {
		t.Fatalf("UNREAD label must map to unread")
	}
	if !msg.HasAttach {
		t.Fatalf("attachment not detected")
	}
	if msg.Body != "Quarterly numbers attached" || msg.BodyType != "plain" {
		t.Fatalf("body not decoded: %q (%s)", msg.Body, msg.BodyType)
	}
	if msg.Received.IsZero() {
		t.Fatalf("internalDate not parsed")
	}
}

func TestDecodeMessagesStubs(t *testing.T) {
	payload := `{"messages": [{"id": "m1", "threadId": "t1"}, {"id": "m2", "threadId": "t2"}]}`

	msgs, err := testBackend().DecodeMessages([]byte(payload))
	if err != nil {
		t.Fatalf("DecodeMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m1" {
		t.Fatalf("unexpected stubs: %+v", msgs)
	}
}

func TestDecodeEvent(t *testing.T) {
	payload := `{
		"id": "evt1",
		"summary": "Planning",
		"description": "Roadmap session",
		"location": "Meet",
		"start": {"dateTime": "2026-03-02T10:00:00Z"},
		"end": {"dateTime": "2026-03-02T11:00:00Z"},
		"organizer": {"email": "lead@gmail.com", "displayName": "Lead"},
		"attendees": [{"email": "user@gmail.com"}],
		"recurrence": ["RRULE:FREQ=WEEKLY"],
		"htmlLink": "https://calendar.google.com/event?eid=abc"
	}`

	event, err := testBackend().DecodeEvent([]byte(payload))
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if event.Title != "Planning" || !event.Recurring || event.AllDay {
		t.Fatalf("unexpected event: %+v", event)
	}
	if !event.Start.Equal(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("start not mapped: %s", event.Start)
	}
}

func TestDecodeAllDayEvent(t *testing.T) {
	payload := `{"id": "evt2", "summary": "Offsite", "start": {"date": "2026-03-05"}, "end": {"date": "2026-03-06"}}`

	event, err := testBackend().DecodeEvent([]byte(payload))
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if !event.AllDay {
		t.Fatalf("date-only start must map to all-day")
	}
}

func TestDecodeContactsAndTasks(t *testing.T) {
	contacts, err := testBackend().DecodeContacts([]byte(`{"connections": [{
		"resourceName": "people/c1",
		"names": [{"displayName": "Dana Li"}],
		"emailAddresses": [{"value": "dana@gmail.com"}],
		"phoneNumbers": [{"value": "+1 555 0100"}],
		"organizations": [{"name": "Acme", "title": "CFO"}]
	}]}`))
	if err != nil {
		t.Fatalf("DecodeContacts: %v", err)
	}
	if len(contacts) != 1 || contacts[0].Company != "Acme" || contacts[0].JobTitle != "CFO" {
		t.Fatalf("unexpected contacts: %+v", contacts)
	}

	tasks, err := testBackend().DecodeTasks([]byte(`{"items": [{
		"id": "t1",
		"title": "File report",
		"due": "2026-03-06T00:00:00Z",
		"status": "needsAction"
	}]}`))
	if err != nil {
		t.Fatalf("DecodeTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Completed || tasks[0].Due == nil {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
}

func TestSendMessageBuildsRFC822(t *testing.T) {
	req, err := testBackend().SendMessage(pim.OutgoingEmail{
		Subject: "Hello",
		To:      []pim.EmailAddress{{Name: "Pat", Address: "pat@gmail.com"}},
		Body:    "hi there",
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if req.Path != "/gmail/v1/users/me/messages/send" {
		t.Fatalf("unexpected path: %s", req.Path)
	}

	var envelope struct {
		Raw string `json:"raw"`
	}
	if err := sonic.Unmarshal(req.Body, &envelope); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	decoded, err := base64.URLEncoding.DecodeString(envelope.Raw)
	if err != nil {
		t.Fatalf("decode raw: %v", err)
	}
	raw := string(decoded)
	if !strings.Contains(raw, "To: Pat <pat@gmail.com>") || !strings.Contains(raw, "Subject: Hello") {
		t.Fatalf("rfc822 headers missing: %s", raw)
	}
	if !strings.HasSuffix(raw, "hi there") {
		t.Fatalf("body missing: %s", raw)
	}
}

func TestSendMessageRequiresRecipient(t *testing.T) {
	if _, err := testBackend().SendMessage(pim.OutgoingEmail{Subject: "x"}); err == nil {
		t.Fatalf("expected error without recipients")
	}
}
