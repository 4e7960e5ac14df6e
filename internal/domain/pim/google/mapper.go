package google

import (
	"encoding/base64"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/pim"
)

type gmailPart struct {
	MimeType string `json:"mimeType"`
	Filename string `json:"filename"`
	Body     struct {
		Data string `json:"data"`
	} `json:"body"`
	Parts []gmailPart `json:"parts"`
}

type gmailMessage struct {
	ID           string   `json:"id"`
	Snippet      string   `json:"snippet"`
	LabelIDs     []string `json:"labelIds"`
	InternalDate string   `json:"internalDate"`
	Payload      gmailPart `json:"payload"`
}

type gmailHeaderPart struct {
	MimeType string `json:"mimeType"`
	Headers  []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"headers"`
}

func parseAddress(raw string) pim.EmailAddress {
	if addr, err := mail.ParseAddress(raw); err == nil {
		return pim.EmailAddress{Name: addr.Name, Address: addr.Address}
	}
	return pim.EmailAddress{Address: strings.TrimSpace(raw)}
}

func parseAddressList(raw string) []pim.EmailAddress {
	if raw == "" {
		return nil
	}
	if addrs, err := mail.ParseAddressList(raw); err == nil {
		out := make([]pim.EmailAddress, 0, len(addrs))
		for _, addr := range addrs {
			out = append(out, pim.EmailAddress{Name: addr.Name, Address: addr.Address})
		}
		return out
	}
	return []pim.EmailAddress{{Address: strings.TrimSpace(raw)}}
}

// bodyText walks the MIME tree for the first text part, preferring plain.
func bodyText(part gmailPart) (string, string) {
	if strings.HasPrefix(part.MimeType, "text/") && part.Body.Data != "" {
		if decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(part.Body.Data); err == nil {
			return string(decoded), strings.TrimPrefix(part.MimeType, "text/")
		}
	}
	for _, child := range part.Parts {
		if child.MimeType == "text/plain" {
			if text, kind := bodyText(child); text != "" {
				return text, kind
			}
		}
	}
	for _, child := range part.Parts {
		if text, kind := bodyText(child); text != "" {
			return text, kind
		}
	}
	return "", ""
}

func hasAttachment(part gmailPart) bool {
	if part.Filename != "" {
		return true
	}
	for _, child := range part.Parts {
		if hasAttachment(child) {
			return true
		}
	}
	return false
}

func (b *Backend) DecodeMessage(data []byte) (pim.EmailMessage, error) {
	var msg gmailMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return pim.EmailMessage{}, fmt.Errorf("decode gmail message: %w", err)
	}

	var withHeaders struct {
		Payload gmailHeaderPart `json:"payload"`
	}
	if err := sonic.Unmarshal(data, &withHeaders); err != nil {
		return pim.EmailMessage{}, fmt.Errorf("decode gmail headers: %w", err)
	}

	out := pim.EmailMessage{
		ID:        msg.ID,
		Preview:   msg.Snippet,
		Read:      !containsLabel(msg.LabelIDs, "UNREAD"),
		HasAttach: hasAttachment(msg.Payload),
	}
	for _, header := range withHeaders.Payload.Headers {
		switch strings.ToLower(header.Name) {
		case "subject":
			out.Subject = header.Value
		case "from":
			out.From = parseAddress(header.Value)
		case "to":
			out.To = parseAddressList(header.Value)
		case "cc":
			out.Cc = parseAddressList(header.Value)
		}
	}
	if ms, err := strconv.ParseInt(msg.InternalDate, 10, 64); err == nil {
		out.Received = time.UnixMilli(ms).UTC()
	}
	out.Body, out.BodyType = bodyText(msg.Payload)
	for _, label := range msg.LabelIDs {
		if label == "INBOX" || strings.HasPrefix(label, "CATEGORY_") {
			out.FolderID = label
			break
		}
	}
	return out, nil
}

func containsLabel(labels []string, want string) bool {
	for _, label := range labels {
		if label == want {
			return true
		}
	}
	return false
}

// DecodeMessages decodes the list response's message stubs. Gmail lists
// carry only identifiers; content requires a follow-up GetMessage.
func (b *Backend) DecodeMessages(data []byte) ([]pim.EmailMessage, error) {
	var page struct {
		Messages []struct {
			ID       string `json:"id"`
			ThreadID string `json:"threadId"`
		} `json:"messages"`
	}
	if err := sonic.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("decode gmail message list: %w", err)
	}
	out := make([]pim.EmailMessage, 0, len(page.Messages))
	for _, stub := range page.Messages {
		out = append(out, pim.EmailMessage{ID: stub.ID, FolderID: stub.ThreadID})
	}
	return out, nil
}

type calendarTime struct {
	DateTime time.Time `json:"dateTime"`
	Date     string    `json:"date"`
}

func (c calendarTime) toTime() (time.Time, bool) {
	if !c.DateTime.IsZero() {
		return c.DateTime, false
	}
	if t, err := time.Parse("2006-01-02", c.Date); err == nil {
		return t, true
	}
	return time.Time{}, false
}

type calendarPerson struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

func (p calendarPerson) toDomain() pim.EmailAddress {
	return pim.EmailAddress{Name: p.DisplayName, Address: p.Email}
}

type calendarEvent struct {
	ID          string           `json:"id"`
	Summary     string           `json:"summary"`
	Description string           `json:"description"`
	Location    string           `json:"location"`
	Start       calendarTime     `json:"start"`
	End         calendarTime     `json:"end"`
	Organizer   calendarPerson   `json:"organizer"`
	Attendees   []calendarPerson `json:"attendees"`
	Recurrence  []string         `json:"recurrence"`
	HTMLLink    string           `json:"htmlLink"`
}

func (e calendarEvent) toDomain() pim.CalendarEvent {
	start, allDay := e.Start.toTime()
	end, _ := e.End.toTime()

	attendees := make([]pim.EmailAddress, 0, len(e.Attendees))
	for _, attendee := range e.Attendees {
		attendees = append(attendees, attendee.toDomain())
	}
	return pim.CalendarEvent{
		ID:        e.ID,
		Title:     e.Summary,
		Start:     start,
		End:       end,
		AllDay:    allDay,
		Location:  e.Location,
		Organizer: e.Organizer.toDomain(),
		Attendees: attendees,
		Body:      e.Description,
		Recurring: len(e.Recurrence) > 0,
		WebLink:   e.HTMLLink,
	}
}

func (b *Backend) DecodeEvent(data []byte) (pim.CalendarEvent, error) {
	var event calendarEvent
	if err := sonic.Unmarshal(data, &event); err != nil {
		return pim.CalendarEvent{}, fmt.Errorf("decode calendar event: %w", err)
	}
	return event.toDomain(), nil
}

func (b *Backend) DecodeEvents(data []byte) ([]pim.CalendarEvent, error) {
	var page struct {
		Items []calendarEvent `json:"items"`
	}
	if err := sonic.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("decode calendar event list: %w", err)
	}
	out := make([]pim.CalendarEvent, 0, len(page.Items))
	for _, event := range page.Items {
		out = append(out, event.toDomain())
	}
	return out, nil
}

type person struct {
	ResourceName string `json:"resourceName"`
	Names        []struct {
		DisplayName string `json:"displayName"`
	} `json:"names"`
	EmailAddresses []struct {
		Value string `json:"value"`
	} `json:"emailAddresses"`
	PhoneNumbers []struct {
		Value string `json:"value"`
	} `json:"phoneNumbers"`
	Organizations []struct {
		Name  string `json:"name"`
		Title string `json:"title"`
	} `json:"organizations"`
}

func (p person) toDomain() pim.Contact {
	contact := pim.Contact{ID: p.ResourceName}
	if len(p.Names) > 0 {
		contact.Name = p.Names[0].DisplayName
	}
	for _, email := range p.EmailAddresses {
		contact.Emails = append(contact.Emails, email.Value)
	}
	for _, phone := range p.PhoneNumbers {
		contact.Phones = append(contact.Phones, phone.Value)
	}
	if len(p.Organizations) > 0 {
		contact.Company = p.Organizations[0].Name
		contact.JobTitle = p.Organizations[0].Title
	}
	return contact
}

func (b *Backend) DecodeContacts(data []byte) ([]pim.Contact, error) {
	var page struct {
		Connections []person `json:"connections"`
	}
	if err := sonic.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("decode people connections: %w", err)
	}
	out := make([]pim.Contact, 0, len(page.Connections))
	for _, contact := range page.Connections {
		out = append(out, contact.toDomain())
	}
	return out, nil
}

type googleTask struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Notes  string `json:"notes"`
	Due    string `json:"due"`
	Status string `json:"status"`
}

func (t googleTask) toDomain() pim.TaskItem {
	task := pim.TaskItem{
		ID:        t.ID,
		Title:     t.Title,
		Notes:     t.Notes,
		Completed: t.Status == "completed",
	}
	if t.Due != "" {
		if due, err := time.Parse(time.RFC3339, t.Due); err == nil {
			task.Due = &due
		}
	}
	return task
}

func (b *Backend) DecodeTasks(data []byte) ([]pim.TaskItem, error) {
	var page struct {
		Items []googleTask `json:"items"`
	}
	if err := sonic.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("decode task list: %w", err)
	}
	out := make([]pim.TaskItem, 0, len(page.Items))
	for _, task := range page.Items {
		out = append(out, task.toDomain())
	}
	return out, nil
}
