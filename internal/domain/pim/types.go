package pim

import "time"

// EmailAddress is a display name plus address pair.
type EmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// EmailMessage is the vendor-neutral mail entity. Vendor payloads are
// converted to this shape at the adapter boundary and never passed through
// untyped.
type EmailMessage struct {
	ID         string         `json:"id"`
	Subject    string         `json:"subject"`
	From       EmailAddress   `json:"from"`
	To         []EmailAddress `json:"to,omitempty"`
	Cc         []EmailAddress `json:"cc,omitempty"`
	Preview    string         `json:"preview,omitempty"`
	Body       string         `json:"body,omitempty"`
	BodyType   string         `json:"body_type,omitempty"`
	Received   time.Time      `json:"received"`
	Read       bool           `json:"read"`
	HasAttach  bool           `json:"has_attachments"`
	FolderID   string         `json:"folder_id,omitempty"`
	WebLink    string         `json:"web_link,omitempty"`
}

// OutgoingEmail is a message to be sent.
type OutgoingEmail struct {
	Subject  string         `json:"subject"`
	To       []EmailAddress `json:"to"`
	Cc       []EmailAddress `json:"cc,omitempty"`
	Body     string         `json:"body"`
	BodyType string         `json:"body_type,omitempty"`
}

// SendResult reports the outcome for one message of a batch. Items are
// independent; one failure never aborts its siblings.
type SendResult struct {
	Index   int    `json:"index"`
	Sent    bool   `json:"sent"`
	Error   string `json:"error,omitempty"`
	Subject string `json:"subject"`
}

// CalendarEvent is the vendor-neutral calendar entity.
type CalendarEvent struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Start     time.Time      `json:"start"`
	End       time.Time      `json:"end"`
	AllDay    bool           `json:"all_day"`
	Location  string         `json:"location,omitempty"`
	Organizer EmailAddress   `json:"organizer,omitempty"`
	Attendees []EmailAddress `json:"attendees,omitempty"`
	Body      string         `json:"body,omitempty"`
	Recurring bool           `json:"recurring"`
	WebLink   string         `json:"web_link,omitempty"`
}

// Contact is the vendor-neutral contact entity.
type Contact struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Emails    []string `json:"emails,omitempty"`
	Phones    []string `json:"phones,omitempty"`
	Company   string   `json:"company,omitempty"`
	JobTitle  string   `json:"job_title,omitempty"`
}

// TaskItem is the vendor-neutral task entity.
type TaskItem struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Notes     string     `json:"notes,omitempty"`
	Due       *time.Time `json:"due,omitempty"`
	Completed bool       `json:"completed"`
	ListID    string     `json:"list_id,omitempty"`
}

// ListQuery bounds list operations.
type ListQuery struct {
	Folder string
	Limit  int
}

// EventQuery bounds calendar list operations.
type EventQuery struct {
	From  time.Time
	To    time.Time
	Limit int
}
