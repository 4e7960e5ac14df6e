package graph

import (
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/pim"
)

// Graph wire shapes, converted to the domain model immediately at the
// boundary.

type graphRecipient struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

func (r graphRecipient) toDomain() pim.EmailAddress {
	return pim.EmailAddress{Name: r.EmailAddress.Name, Address: r.EmailAddress.Address}
}

func recipientsToDomain(in []graphRecipient) []pim.EmailAddress {
	if len(in) == 0 {
		return nil
	}
	out := make([]pim.EmailAddress, 0, len(in))
	for _, r := range in {
		out = append(out, r.toDomain())
	}
	return out
}

type graphMessage struct {
	ID             string `json:"id"`
	Subject        string `json:"subject"`
	BodyPreview    string `json:"bodyPreview"`
	Body           struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	From           graphRecipient   `json:"from"`
	ToRecipients   []graphRecipient `json:"toRecipients"`
	CcRecipients   []graphRecipient `json:"ccRecipients"`
	ReceivedAt     time.Time        `json:"receivedDateTime"`
	IsRead         bool             `json:"isRead"`
	HasAttachments bool             `json:"hasAttachments"`
	ParentFolderID string           `json:"parentFolderId"`
	WebLink        string           `json:"webLink"`
}

func (m graphMessage) toDomain() pim.EmailMessage {
	return pim.EmailMessage{
		ID:        m.ID,
		Subject:   m.Subject,
		From:      m.From.toDomain(),
		To:        recipientsToDomain(m.ToRecipients),
		Cc:        recipientsToDomain(m.CcRecipients),
		Preview:   m.BodyPreview,
		Body:      m.Body.Content,
		BodyType:  strings.ToLower(m.Body.ContentType),
		Received:  m.ReceivedAt,
		Read:      m.IsRead,
		HasAttach: m.HasAttachments,
		FolderID:  m.ParentFolderID,
		WebLink:   m.WebLink,
	}
}

func (b *Backend) DecodeMessage(data []byte) (pim.EmailMessage, error) {
	var msg graphMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return pim.EmailMessage{}, fmt.Errorf("decode graph message: %w", err)
	}
	return msg.toDomain(), nil
}

func (b *Backend) DecodeMessages(data []byte) ([]pim.EmailMessage, error) {
	var page struct {
		Value []graphMessage `json:"value"`
	}
	if err := sonic.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("decode graph message list: %w", err)
	}
	out := make([]pim.EmailMessage, 0, len(page.Value))
	for _, msg := range page.Value {
		out = append(out, msg.toDomain())
	}
	return out, nil
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

func (d graphDateTime) toTime() time.Time {
	loc := time.UTC
	if d.TimeZone != "" && d.TimeZone != "UTC" {
		if parsed, err := time.LoadLocation(d.TimeZone); err == nil {
			loc = parsed
		}
	}
	for _, layout := range []string{"2006-01-02T15:04:05.0000000", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, d.DateTime, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}

type graphEvent struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	BodyPreview string `json:"bodyPreview"`
	Start       graphDateTime `json:"start"`
	End         graphDateTime `json:"end"`
	IsAllDay    bool          `json:"isAllDay"`
	Location    struct {
		DisplayName string `json:"displayName"`
	} `json:"location"`
	Organizer  graphRecipient   `json:"organizer"`
	Attendees  []graphRecipient `json:"attendees"`
	Recurrence *struct{}        `json:"recurrence"`
	WebLink    string           `json:"webLink"`
}

func (e graphEvent) toDomain() pim.CalendarEvent {
	return pim.CalendarEvent{
		ID:        e.ID,
		Title:     e.Subject,
		Start:     e.Start.toTime(),
		End:       e.End.toTime(),
		AllDay:    e.IsAllDay,
		Location:  e.Location.DisplayName,
		Organizer: e.Organizer.toDomain(),
		Attendees: recipientsToDomain(e.Attendees),
		Body:      e.BodyPreview,
		Recurring: e.Recurrence != nil,
		WebLink:   e.WebLink,
	}
}

func (b *Backend) DecodeEvent(data []byte) (pim.CalendarEvent, error) {
	var event graphEvent
	if err := sonic.Unmarshal(data, &event); err != nil {
		return pim.CalendarEvent{}, fmt.Errorf("decode graph event: %w", err)
	}
	return event.toDomain(), nil
}

func (b *Backend) DecodeEvents(data []byte) ([]pim.CalendarEvent, error) {
	var page struct {
		Value []graphEvent `json:"value"`
	}
	if err := sonic.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("decode graph event list: %w", err)
	}
	out := make([]pim.CalendarEvent, 0, len(page.Value))
	for _, event := range page.Value {
		out = append(out, event.toDomain())
	}
	return out, nil
}

type graphContact struct {
	ID             string `json:"id"`
	DisplayName    string `json:"displayName"`
	EmailAddresses []struct {
		Address string `json:"address"`
	} `json:"emailAddresses"`
	BusinessPhones []string `json:"businessPhones"`
	MobilePhone    string   `json:"mobilePhone"`
	CompanyName    string   `json:"companyName"`
	JobTitle       string   `json:"jobTitle"`
}

func (c graphContact) toDomain() pim.Contact {
	emails := make([]string, 0, len(c.EmailAddresses))
	for _, e := range c.EmailAddresses {
		emails = append(emails, e.Address)
	}
	phones := append([]string(nil), c.BusinessPhones...)
	if c.MobilePhone != "" {
		phones = append(phones, c.MobilePhone)
	}
	return pim.Contact{
		ID:       c.ID,
		Name:     c.DisplayName,
		Emails:   emails,
		Phones:   phones,
		Company:  c.CompanyName,
		JobTitle: c.JobTitle,
	}
}

func (b *Backend) DecodeContacts(data []byte) ([]pim.Contact, error) {
	var page struct {
		Value []graphContact `json:"value"`
	}
	if err := sonic.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("decode graph contact list: %w", err)
	}
	out := make([]pim.Contact, 0, len(page.Value))
	for _, contact := range page.Value {
		out = append(out, contact.toDomain())
	}
	return out, nil
}

type graphTask struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  struct {
		Content string `json:"content"`
	} `json:"body"`
	DueDateTime *graphDateTime `json:"dueDateTime"`
	Status      string         `json:"status"`
}

func (t graphTask) toDomain() pim.TaskItem {
	task := pim.TaskItem{
		ID:        t.ID,
		Title:     t.Title,
		Notes:     t.Body.Content,
		Completed: t.Status == "completed",
	}
	if t.DueDateTime != nil {
		due := t.DueDateTime.toTime()
		if !due.IsZero() {
			task.Due = &due
		}
	}
	return task
}

func (b *Backend) DecodeTasks(data []byte) ([]pim.TaskItem, error) {
	var page struct {
		Value []graphTask `json:"value"`
	}
	if err := sonic.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("decode graph task list: %w", err)
	}
	out := make([]pim.TaskItem, 0, len(page.Value))
	for _, task := range page.Value {
		out = append(out, task.toDomain())
	}
	return out, nil
}
