// Package notifications delivers violation notices to moderators: the Transport
// abstraction, the Redis-backed live feed and the retrying Dispatcher.
package notifications

import (
	"context"
	"errors"
	"time"

	"chatwarden/internal/models"
)

// Payload is one violation notice addressed to a moderator.
type Payload struct {
	Type            string                      `json:"type"`
	ViolationID     uint                        `json:"violation_id"`
	RuleID          uint                        `json:"rule_id"`
	ChatID          int64                       `json:"chat_id"`
	ChatTitle       string                      `json:"chat_title,omitempty"`
	RuleType        models.RuleType             `json:"rule_type"`
	Category        models.NotificationCategory `json:"category"`
	RuleText        string                      `json:"rule_text"`
	ExplanationText string                      `json:"explanation_text,omitempty"`
	MessageText     string                      `json:"message_text"`
	PostID          int64                       `json:"post_id"`
	ViolatorID      int64                       `json:"violator_id"`
	Username        string                      `json:"username,omitempty"`
	FullName        string                      `json:"full_name,omitempty"`
	DetectedAt      time.Time                   `json:"detected_at"`
}

// PayloadTypeViolation marks a payload as a violation notice on the feed.
const PayloadTypeViolation = "violation"

// Transport sends one payload to one moderator. A nil error means delivered.
type Transport interface {
	Send(ctx context.Context, moderatorID int64, payload Payload) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, moderatorID int64, payload Payload) error

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, moderatorID int64, payload Payload) error {
	return f(ctx, moderatorID, payload)
}

// MultiTransport sends to every transport and fails if any of them failed.
// A retry resends to all of them, so delivery stays at-least-once per transport.
type MultiTransport []Transport

// Send fans out to each transport in order.
func (m MultiTransport) Send(ctx context.Context, moderatorID int64, payload Payload) error {
	var errs []error
	for _, t := range m {
		if t == nil {
			continue
		}
		if err := t.Send(ctx, moderatorID, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
