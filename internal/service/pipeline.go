package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"chatwarden/internal/middleware"
	"chatwarden/internal/models"
	"chatwarden/internal/observability"
	"chatwarden/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// Sources label where an inbound message came from.
const (
	SourceHTTP     = "http"
	SourceKafka    = "kafka"
	SourceTelegram = "telegram"
)

// Skip reasons reported in DetectResult.Skipped.
const (
	SkipUnknownChat   = "unknown_chat"
	SkipInactiveChat  = "chat_not_activated"
	SkipNoReadRights  = "cannot_read_messages"
	SkipEmptyText     = "empty_text"
	maxInboundTextLen = 16384
)

// InboundMessage is one message observed in a chat by an ingestion source.
type InboundMessage struct {
	ChatID     int64     `json:"chat_id"`
	ViolatorID int64     `json:"violator_id"`
	Username   string    `json:"username"`
	FullName   string    `json:"full_name"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	PostID     int64     `json:"post_id"`
}

// Validate checks the fields every source must fill in.
func (m InboundMessage) Validate() error {
	switch {
	case m.ChatID == 0:
		return models.NewValidationError("chat_id is required")
	case m.ViolatorID == 0:
		return models.NewValidationError("violator_id is required")
	case len(m.Text) > maxInboundTextLen:
		return models.NewValidationError("text is too long")
	}
	return nil
}

// Pipeline is the ingestion entry point: gate, detect, route, enforce.
type Pipeline struct {
	chats       repository.ChatRepository
	users       repository.UserRepository
	rules       *RulesService
	detector    *Detector
	router      *Router
	enforcement *Enforcement
}

// NewPipeline returns a new Pipeline. enforcement may be nil.
func NewPipeline(
	chats repository.ChatRepository,
	users repository.UserRepository,
	rules *RulesService,
	detector *Detector,
	router *Router,
	enforcement *Enforcement,
) *Pipeline {
	return &Pipeline{
		chats:       chats,
		users:       users,
		rules:       rules,
		detector:    detector,
		router:      router,
		enforcement: enforcement,
	}
}

// OnMessage runs one message through the engine. Messages from chats that are
// unknown, deactivated or unreadable are skipped without error. Routing and
// enforcement failures are logged; the recorded violations stand.
func (p *Pipeline) OnMessage(ctx context.Context, source string, in InboundMessage) (*DetectResult, error) {
	if err := in.Validate(); err != nil {
		observability.MessagesIngested.WithLabelValues(source, "invalid").Inc()
		return nil, err
	}
	ctx = middleware.WithChatID(ctx, in.ChatID)
	span, ctx := observability.NewSpan(ctx, "pipeline.on_message",
		attribute.String("source", source),
		attribute.Int64("chat_id", in.ChatID),
	)
	defer span.End()

	chat, skip, err := p.gate(ctx, in)
	if err != nil {
		span.SetError(err)
		observability.MessagesIngested.WithLabelValues(source, "error").Inc()
		return nil, err
	}
	if skip != "" {
		observability.MessagesIngested.WithLabelValues(source, "skipped").Inc()
		return &DetectResult{Skipped: skip}, nil
	}

	if err := p.users.Upsert(ctx, &models.User{ID: in.ViolatorID, Username: in.Username, FullName: in.FullName}); err != nil {
		observability.MessagesIngested.WithLabelValues(source, "error").Inc()
		span.SetError(err)
		return nil, err
	}

	rules, err := p.rules.ActiveRules(ctx, in.ChatID)
	if err != nil {
		observability.MessagesIngested.WithLabelValues(source, "error").Inc()
		span.SetError(err)
		return nil, err
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = utcNow()
	}
	msg := &models.ViolatorMessage{
		ViolatorID: in.ViolatorID,
		ChatID:     in.ChatID,
		Text:       in.Text,
		Timestamp:  ts.UTC(),
		PostID:     in.PostID,
	}
	res, err := p.detector.Detect(ctx, msg, rules)
	if err != nil {
		observability.MessagesIngested.WithLabelValues(source, "error").Inc()
		span.SetError(err)
		return nil, err
	}
	observability.MessagesIngested.WithLabelValues(source, "processed").Inc()

	banned := false
	for i, violation := range res.Violations {
		rule := res.Matched[i]
		if _, err := p.router.Route(ctx, violation, rule, *chat); err != nil {
			observability.LogAsyncOperationError(ctx, "route_violation", err, map[string]interface{}{
				"violation_id": violation.ID,
				"rule_id":      rule.ID,
			})
		}
		if rule.Type == models.RuleTypeBan && !banned {
			banned = p.autoBan(ctx, chat.ID, in.ViolatorID)
		}
	}
	return res, nil
}

// gate returns the chat, or a skip reason when the message must be ignored.
func (p *Pipeline) gate(ctx context.Context, in InboundMessage) (*models.Chat, string, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, SkipEmptyText, nil
	}
	chat, err := p.chats.GetByID(ctx, in.ChatID)
	switch {
	case models.HasCode(err, models.CodeNotFound):
		return nil, SkipUnknownChat, nil
	case err != nil:
		return nil, "", err
	case !chat.Activated:
		return nil, SkipInactiveChat, nil
	case !chat.CanReadMessages:
		return nil, SkipNoReadRights, nil
	}
	return chat, "", nil
}

func (p *Pipeline) autoBan(ctx context.Context, chatID, userID int64) bool {
	applied, err := p.enforcement.Apply(ctx, chatID, userID, models.DecisionBan)
	if err != nil {
		observability.L().WarnContext(ctx, "auto ban failed",
			slog.Int64("violator_id", userID),
			slog.String("error", err.Error()),
		)
	}
	return applied
}
