package pim

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/cache"
)

// Service exposes the domain operations the tool layer consumes. It owns one
// adapter per enabled platform; callers never touch the resilience layers
// directly.
type Service struct {
	adapters map[string]*Adapter
	semantic *cache.SemanticIndex
	cacheTTL time.Duration
}

// NewService builds a service over the given adapters.
func NewService(adapters map[string]*Adapter, semantic *cache.SemanticIndex, cacheTTL time.Duration) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Service{
		adapters: adapters,
		semantic: semantic,
		cacheTTL: cacheTTL,
	}
}

func (s *Service) adapter(platform string) (*Adapter, error) {
	a, ok := s.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("platform %q not configured", platform)
	}
	return a, nil
}

// Platforms lists the configured platform names.
func (s *Service) Platforms() []string {
	names := make([]string, 0, len(s.adapters))
	for name := range s.adapters {
		names = append(names, name)
	}
	return names
}

func emailKey(platform, id string) string {
	return platform + "/email:" + id
}

func emailListPrefix(platform string) string {
	return platform + "/email-list:"
}

// GetEmail fetches one message, serving repeat reads from cache.
func (s *Service) GetEmail(ctx context.Context, platform, subject, id string) (EmailMessage, error) {
	a, err := s.adapter(platform)
	if err != nil {
		return EmailMessage{}, err
	}

	body, err := a.Invoke(ctx, Operation{
		Name:     "email.get",
		Subject:  subject,
		Request:  a.backend.GetMessage(id),
		Read:     true,
		CacheKey: emailKey(platform, id),
		CacheTTL: s.cacheTTL,
		IndexText: func(raw []byte) string {
			msg, derr := a.backend.DecodeMessage(raw)
			if derr != nil {
				return ""
			}
			return strings.TrimSpace(msg.Subject + "\n" + msg.Preview + "\n" + msg.Body)
		},
	})
	if err != nil {
		return EmailMessage{}, err
	}
	return a.backend.DecodeMessage(body)
}

// ListEmails fetches a folder page, cached per folder and limit.
func (s *Service) ListEmails(ctx context.Context, platform, subject string, q ListQuery) ([]EmailMessage, error) {
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}

	body, err := a.Invoke(ctx, Operation{
		Name:     "email.list",
		Subject:  subject,
		Request:  a.backend.ListMessages(q),
		Read:     true,
		CacheKey: fmt.Sprintf("%s%s:%d", emailListPrefix(platform), q.Folder, q.Limit),
		CacheTTL: s.cacheTTL,
	})
	if err != nil {
		return nil, err
	}
	return a.backend.DecodeMessages(body)
}

// SendEmail sends one message and invalidates list-level cache entries.
func (s *Service) SendEmail(ctx context.Context, platform, subject string, msg OutgoingEmail) error {
	a, err := s.adapter(platform)
	if err != nil {
		return err
	}
	req, err := a.backend.SendMessage(msg)
	if err != nil {
		return err
	}

	_, err = a.Invoke(ctx, Operation{
		Name:               "email.send",
		Subject:            subject,
		Request:            req,
		InvalidatePrefixes: []string{emailListPrefix(platform)},
	})
	return err
}

// SendEmails sends a batch with independent-item semantics: each message
// succeeds or fails on its own.
func (s *Service) SendEmails(ctx context.Context, platform, subject string, msgs []OutgoingEmail) []SendResult {
	results := make([]SendResult, len(msgs))
	for i, msg := range msgs {
		results[i] = SendResult{Index: i, Subject: msg.Subject}
		if err := s.SendEmail(ctx, platform, subject, msg); err != nil {
			results[i].Error = err.Error()
			continue
		}
		results[i].Sent = true
	}
	return results
}

// GetEvent fetches one calendar event.
func (s *Service) GetEvent(ctx context.Context, platform, subject, id string) (CalendarEvent, error) {
	a, err := s.adapter(platform)
	if err != nil {
		return CalendarEvent{}, err
	}

	body, err := a.Invoke(ctx, Operation{
		Name:     "calendar.get",
		Subject:  subject,
		Request:  a.backend.GetEvent(id),
		Read:     true,
		CacheKey: platform + "/event:" + id,
		CacheTTL: s.cacheTTL,
		IndexText: func(raw []byte) string {
			event, derr := a.backend.DecodeEvent(raw)
			if derr != nil {
				return ""
			}
			return strings.TrimSpace(event.Title + "\n" + event.Location + "\n" + event.Body)
		},
	})
	if err != nil {
		return CalendarEvent{}, err
	}
	return a.backend.DecodeEvent(body)
}

// ListEvents fetches events in a window.
func (s *Service) ListEvents(ctx context.Context, platform, subject string, q EventQuery) ([]CalendarEvent, error) {
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}

	body, err := a.Invoke(ctx, Operation{
		Name:    "calendar.list",
		Subject: subject,
		Request: a.backend.ListEvents(q),
		Read:    true,
		CacheKey: fmt.Sprintf("%s/event-list:%s:%s:%d",
			platform, q.From.Format("20060102"), q.To.Format("20060102"), q.Limit),
		CacheTTL: s.cacheTTL,
	})
	if err != nil {
		return nil, err
	}
	return a.backend.DecodeEvents(body)
}

// ListContacts fetches the contact directory page.
func (s *Service) ListContacts(ctx context.Context, platform, subject string, q ListQuery) ([]Contact, error) {
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}

	body, err := a.Invoke(ctx, Operation{
		Name:     "contact.list",
		Subject:  subject,
		Request:  a.backend.ListContacts(q),
		Read:     true,
		CacheKey: fmt.Sprintf("%s/contact-list:%d", platform, q.Limit),
		CacheTTL: s.cacheTTL,
	})
	if err != nil {
		return nil, err
	}
	return a.backend.DecodeContacts(body)
}

// ListTasks fetches open tasks.
func (s *Service) ListTasks(ctx context.Context, platform, subject string, q ListQuery) ([]TaskItem, error) {
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}

	body, err := a.Invoke(ctx, Operation{
		Name:     "task.list",
		Subject:  subject,
		Request:  a.backend.ListTasks(q),
		Read:     true,
		CacheKey: fmt.Sprintf("%s/task-list:%s:%d", platform, q.Folder, q.Limit),
		CacheTTL: s.cacheTTL,
	})
	if err != nil {
		return nil, err
	}
	return a.backend.DecodeTasks(body)
}

// SearchCached runs a semantic lookup over documents the cache has seen.
// Available only when the semantic index is configured.
func (s *Service) SearchCached(ctx context.Context, query string, topK int) ([]cache.Match, error) {
	if s.semantic == nil {
		return nil, fmt.Errorf("semantic search not configured")
	}
	return s.semantic.Search(ctx, query, topK)
}

// Health reports per-platform resilience posture.
func (s *Service) Health(ctx context.Context, platform, subject string) (map[string]any, error) {
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}
	return a.Health(ctx, subject), nil
}
